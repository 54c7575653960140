// Package errors provides structured error types for the Antler application.
// Every fallible operation returns an error carrying a closed, machine-
// checkable code so callers can branch on outcome instead of parsing text.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Op describes an operation, usually as "package.function".
type Op string

// Code categorizes a failure. Codes form closed sets per subsystem; callers
// should treat an unlisted code as CodeUnknown.
type Code string

// Agent / PTY session codes.
const (
	CodeClaudeNotInstalled  Code = "claude_not_installed"
	CodeSpawnFailed         Code = "spawn_failed"
	CodePTYError            Code = "pty_error"
	CodeSessionNotFound     Code = "session_not_found"
	CodeMaxSessionsExceeded Code = "max_sessions_exceeded"
)

// Worktree codes.
const (
	CodeGitNotInstalled      Code = "git_not_installed"
	CodeWorktreeExists       Code = "worktree_exists"
	CodeWorktreeCreateFailed Code = "worktree_create_failed"
	CodeWorktreeRemoveFailed Code = "worktree_remove_failed"
	CodeBranchCheckedOut     Code = "branch_checked_out"
	CodeInvalidBranchName    Code = "invalid_branch_name"
	CodeRepoNotFound         Code = "repo_not_found"
)

// Work-session codes for composed operations.
const (
	CodePrerequisiteFailed   Code = "prerequisite_failed"
	CodeWorktreeFailed       Code = "worktree_failed"
	CodePortAllocationFailed Code = "port_allocation_failed"
	CodeCancelled            Code = "cancelled"
)

// Validation codes used by the JSON codecs.
const (
	CodeInvalidCard    Code = "invalid_card"
	CodeInvalidSession Code = "invalid_session"
	CodeUnknown        Code = "unknown"
)

// Error is the structured error type for Antler.
type Error struct {
	Op      Op     // Operation that failed
	Code    Code   // Closed failure code
	Err     error  // Underlying error
	Context string // Additional human-readable detail
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Context, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// E creates a new Error. Arguments can be:
// - Op: the operation name
// - Code: the failure code
// - string: context message
// - error: the underlying error
func E(args ...interface{}) error {
	e := &Error{Code: CodeUnknown}
	for _, arg := range args {
		switch a := arg.(type) {
		case Op:
			e.Op = a
		case Code:
			e.Code = a
		case string:
			e.Context = a
		case error:
			e.Err = a
		}
	}
	if e.Err == nil {
		e.Err = errors.New(e.Context)
		e.Context = ""
	}
	return e
}

// Is reports whether err carries the given Code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode returns the Code of an error, or CodeUnknown for unclassified errors.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// spawnNotFoundPatterns are the OS error fragments that indicate a missing
// executable. This is a heuristic fallback; callers should prefer structured
// checks (exec.LookPath, errors.Is against exec.ErrNotFound) and only fall
// back to message matching when no structured signal is available.
var spawnNotFoundPatterns = []string{
	"command not found",
	"no such file",
	"executable file not found",
}

// ClassifySpawn maps a spawn-time failure onto the closed agent code set.
// A missing-binary error becomes CodeClaudeNotInstalled; everything else is
// CodeSpawnFailed.
func ClassifySpawn(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range spawnNotFoundPatterns {
		if strings.Contains(msg, pattern) {
			return CodeClaudeNotInstalled
		}
	}
	return CodeSpawnFailed
}

// Session errors
func SessionNotFound(id int) error {
	return E(Op("terminal.Get"), CodeSessionNotFound, fmt.Sprintf("session %d not found", id))
}

func MaxSessionsExceeded(limit int) error {
	return E(Op("terminal.Spawn"), CodeMaxSessionsExceeded, fmt.Sprintf("session limit %d reached", limit))
}

// Spawn errors
func SpawnFailed(cmd string, err error) error {
	return E(Op("terminal.Spawn"), ClassifySpawn(err), fmt.Sprintf("failed to spawn %s", cmd), err)
}

// Work-session errors
func PrerequisiteFailed(reason string) error {
	return E(Op("worksession.Start"), CodePrerequisiteFailed, reason)
}

func WorktreeFailed(cardID string, err error) error {
	return E(Op("worksession.Start"), CodeWorktreeFailed, fmt.Sprintf("worktree operation failed for card %s", cardID), err)
}

func PortAllocationFailed(err error) error {
	return E(Op("worksession.Start"), CodePortAllocationFailed, "no free port available", err)
}

func Cancelled(op Op, err error) error {
	return E(op, CodeCancelled, "operation cancelled", err)
}
