package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chezu/antler/internal/config"
	"github.com/chezu/antler/internal/logger"
	"github.com/chezu/antler/internal/terminal"
)

// ExitCodeError reports a non-zero agent exit through Execute, so deferred
// teardown (the logger in particular) still runs before the process exits.
type ExitCodeError struct {
	Code int
}

func (e *ExitCodeError) Error() string {
	return fmt.Sprintf("agent exited with code %d", e.Code)
}

var runCmd = &cobra.Command{
	Use:   "run [dir]",
	Short: "Run the configured agent in a directory",
	Long: `Run spawns the configured agent command behind a PTY in the given
directory (default: the current directory), streams its output to stdout and
forwards stdin to it. The command exits with the agent's exit code.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAgent,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}

	tm := terminal.New(terminal.Config{
		MaxSessions: cfg.MaxSessions,
		DefaultCols: cfg.Cols,
		DefaultRows: cfg.Rows,
	}, logger.ComponentLogger("terminal"))

	h, err := tm.Spawn(terminal.SpawnOptions{
		Cmd:  cfg.AgentCommand,
		Args: cfg.AgentArgs,
		Cwd:  dir,
	})
	if err != nil {
		return err
	}

	h.OnData(func(data string) {
		os.Stdout.WriteString(data)
	})

	done := make(chan *int, 1)
	h.OnExit(func(code *int) { done <- code })

	// Forward stdin until the agent goes away. Write errors after cleanup
	// just end the loop.
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				if werr := h.Write(string(buf[:n])); werr != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	code := <-done
	if code == nil {
		return fmt.Errorf("agent terminated by signal")
	}
	if *code != 0 {
		return &ExitCodeError{Code: *code}
	}
	return nil
}
