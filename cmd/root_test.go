package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDebugFlagDefaultFalse(t *testing.T) {
	flag := rootCmd.PersistentFlags().Lookup("debug")
	if flag == nil {
		t.Fatal("--debug flag not found")
	}
	if flag.DefValue != "false" {
		t.Errorf("--debug default = %q, want %q", flag.DefValue, "false")
	}
}

func TestQuietFlagExists(t *testing.T) {
	flag := rootCmd.PersistentFlags().Lookup("quiet")
	if flag == nil {
		t.Fatal("--quiet flag not found")
	}
	if flag.Shorthand != "q" {
		t.Errorf("--quiet shorthand = %q, want %q", flag.Shorthand, "q")
	}
}

func TestInitLoggingQuietOverridesDebug(t *testing.T) {
	origDebug, origQuiet := debugMode, quietMode
	defer func() { debugMode, quietMode = origDebug, origQuiet }()

	debugMode = true
	quietMode = true

	// Should not panic - quiet takes precedence
	initLogging()
}

func TestVersionTemplate(t *testing.T) {
	origV, origC, origD := version, commit, date
	defer func() { version, commit, date = origV, origC, origD }()

	SetVersionInfo("1.2.3", "abc1234", "2026-01-01")
	got := versionTemplate()
	if !strings.Contains(got, "1.2.3") || !strings.Contains(got, "abc1234") {
		t.Errorf("versionTemplate() = %q, want version and commit", got)
	}

	SetVersionInfo("dev", "none", "unknown")
	got = versionTemplate()
	if strings.Contains(got, "none") {
		t.Errorf("versionTemplate() = %q, want no commit line", got)
	}
}

func TestExitCodeErrorCarriesCode(t *testing.T) {
	err := fmt.Errorf("run: %w", &ExitCodeError{Code: 3})

	var exitErr *ExitCodeError
	if !errors.As(err, &exitErr) {
		t.Fatal("errors.As failed to extract ExitCodeError")
	}
	if exitErr.Code != 3 {
		t.Errorf("Code = %d, want 3", exitErr.Code)
	}
	if !strings.Contains(exitErr.Error(), "3") {
		t.Errorf("Error() = %q, want the code in the message", exitErr.Error())
	}
}

func TestSubcommandsRegistered(t *testing.T) {
	for _, name := range []string{"run", "validate"} {
		found := false
		for _, c := range rootCmd.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestValidateCommandRejectsBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cards.json")
	if err := os.WriteFile(path, []byte(`[{"name": 42}]`), 0644); err != nil {
		t.Fatal(err)
	}

	if err := validateCards(validateCmd, []string{path}); err == nil {
		t.Error("validateCards() succeeded on malformed card, want error")
	}

	if err := validateCards(validateCmd, []string{path + ".missing"}); err == nil {
		t.Error("validateCards() succeeded on missing file, want error")
	}
}

func TestValidateCommandAcceptsEmptyArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cards.json")
	if err := os.WriteFile(path, []byte(`[]`), 0644); err != nil {
		t.Fatal(err)
	}

	if err := validateCards(validateCmd, []string{path}); err != nil {
		t.Errorf("validateCards() on empty array error = %v", err)
	}
}
