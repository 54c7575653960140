// Package card implements the immutable kanban card model at the heart of a
// work session. A Card pairs kanban state with the status of its git worktree
// and agent linkage. Cards are plain values: every operation returns a new
// Card and never mutates its input, so concurrent holders of an old value
// never observe later changes.
package card

import (
	"fmt"
	"time"

	"github.com/chezu/antler/internal/errors"
	"github.com/chezu/antler/internal/ident"
)

// Status is the kanban column a card sits in.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusInProgress Status = "in_progress"
	StatusWaiting    Status = "waiting"
	StatusDone       Status = "done"
)

// ValidStatus reports whether s is a member of the closed status set.
func ValidStatus(s Status) bool {
	switch s {
	case StatusIdle, StatusInProgress, StatusWaiting, StatusDone:
		return true
	}
	return false
}

// WorktreeOp is the sub-state governing the create/remove lifecycle of the
// card's worktree. The worktree commands themselves run in an external
// collaborator; the card only records progress and outcome.
type WorktreeOp string

const (
	OpIdle     WorktreeOp = "idle"
	OpCreating WorktreeOp = "creating"
	OpRemoving WorktreeOp = "removing"
	OpError    WorktreeOp = "error"
)

// ValidWorktreeOp reports whether op is a member of the closed operation set.
func ValidWorktreeOp(op WorktreeOp) bool {
	switch op {
	case OpIdle, OpCreating, OpRemoving, OpError:
		return true
	}
	return false
}

// GitHubInfo carries the card's issue linkage. The core treats it as
// pass-through data owned by the GitHub sync collaborator.
type GitHubInfo struct {
	IssueNumber int      `json:"issueNumber,omitempty"`
	IssueTitle  string   `json:"issueTitle,omitempty"`
	IssueURL    string   `json:"issueUrl,omitempty"`
	State       string   `json:"state,omitempty"`
	Labels      []string `json:"labels,omitempty"`
	Assignees   []string `json:"assignees,omitempty"`
	Column      string   `json:"column,omitempty"`
}

// Card is the immutable record of one work session's kanban state.
//
// Invariants maintained by the operations in this package:
//   - WorktreeOperation == OpError exactly when WorktreeError != nil.
//   - Port != nil implies WorktreeCreated.
//   - SessionUID never changes after creation.
type Card struct {
	Name              string     `json:"name"`
	SessionUID        string     `json:"sessionUid"`
	Status            Status     `json:"status"`
	WorktreeCreated   bool       `json:"worktreeCreated"`
	WorktreePath      *string    `json:"worktreePath"`
	Port              *int       `json:"port"`
	WorktreeOperation WorktreeOp `json:"worktreeOperation"`
	WorktreeError     *string    `json:"worktreeError"`
	HasError          bool       `json:"hasError"`
	GitHub            GitHubInfo `json:"github"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// Options are caller overrides merged onto the defaults by New.
type Options struct {
	Name   string
	Status Status
	GitHub GitHubInfo
}

// New creates a card with a fresh session UID and defaults merged with opts.
func New(opts Options) Card {
	uid := ident.NewUID()
	name := opts.Name
	if name == "" {
		name = ident.NewName(uid)
	}
	status := opts.Status
	if status == "" {
		status = StatusIdle
	}

	now := time.Now()
	return Card{
		Name:              name,
		SessionUID:        uid,
		Status:            status,
		WorktreeOperation: OpIdle,
		GitHub:            opts.GitHub,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// touched returns a copy of c with UpdatedAt refreshed.
func touched(c Card) Card {
	c.UpdatedAt = time.Now()
	return c
}

// Update returns a new card with key set to value. Only status,
// worktreeCreated and hasError may be updated generically; everything else
// moves through the compound transitions below.
func Update(c Card, key string, value interface{}) (Card, error) {
	const op = errors.Op("card.Update")

	switch key {
	case "status":
		s, ok := value.(Status)
		if !ok {
			if str, isStr := value.(string); isStr {
				s = Status(str)
			} else {
				return c, errors.E(op, errors.CodeInvalidCard, fmt.Sprintf("status must be a string, got %T", value))
			}
		}
		if !ValidStatus(s) {
			return c, errors.E(op, errors.CodeInvalidCard, fmt.Sprintf("invalid status %q", s))
		}
		c.Status = s
	case "worktreeCreated":
		b, ok := value.(bool)
		if !ok {
			return c, errors.E(op, errors.CodeInvalidCard, fmt.Sprintf("worktreeCreated must be a bool, got %T", value))
		}
		c.WorktreeCreated = b
	case "hasError":
		b, ok := value.(bool)
		if !ok {
			return c, errors.E(op, errors.CodeInvalidCard, fmt.Sprintf("hasError must be a bool, got %T", value))
		}
		c.HasError = b
	default:
		return c, errors.E(op, errors.CodeInvalidCard, fmt.Sprintf("field %q is not updatable", key))
	}

	return touched(c), nil
}

// SetStatus moves the card to a new kanban column.
func SetStatus(c Card, s Status) (Card, error) {
	return Update(c, "status", s)
}

// SetWorktreeCreated flips the worktree-created flag.
func SetWorktreeCreated(c Card, created bool) Card {
	next, _ := Update(c, "worktreeCreated", created)
	return next
}

// SetHasError flips the generic error flag. This flag is independent of the
// worktree error state; the two are never reconciled.
func SetHasError(c Card, hasError bool) Card {
	next, _ := Update(c, "hasError", hasError)
	return next
}

// StartWorktreeCreation marks the worktree as being created and clears any
// prior worktree error. Allowed from idle and error (explicit retry); a card
// mid-removal must land in idle or error first.
func StartWorktreeCreation(c Card) (Card, error) {
	const op = errors.Op("card.StartWorktreeCreation")
	if c.WorktreeOperation != OpIdle && c.WorktreeOperation != OpError {
		return c, errors.E(op, errors.CodeInvalidCard,
			fmt.Sprintf("cannot start creation while %s", c.WorktreeOperation))
	}
	c.WorktreeOperation = OpCreating
	c.WorktreeError = nil
	return touched(c), nil
}

// CompleteWorktreeCreation records a successful create: the worktree exists
// at path and the session owns port.
func CompleteWorktreeCreation(c Card, path string, port int) (Card, error) {
	const op = errors.Op("card.CompleteWorktreeCreation")
	if c.WorktreeOperation != OpCreating {
		return c, errors.E(op, errors.CodeInvalidCard,
			fmt.Sprintf("cannot complete creation while %s", c.WorktreeOperation))
	}
	c.WorktreeOperation = OpIdle
	c.WorktreeCreated = true
	c.WorktreePath = &path
	c.Port = &port
	c.WorktreeError = nil
	return touched(c), nil
}

// StartWorktreeRemoval marks the worktree as being removed and clears any
// prior worktree error. Allowed from idle and error; a card mid-creation must
// land in idle or error first.
func StartWorktreeRemoval(c Card) (Card, error) {
	const op = errors.Op("card.StartWorktreeRemoval")
	if c.WorktreeOperation != OpIdle && c.WorktreeOperation != OpError {
		return c, errors.E(op, errors.CodeInvalidCard,
			fmt.Sprintf("cannot start removal while %s", c.WorktreeOperation))
	}
	c.WorktreeOperation = OpRemoving
	c.WorktreeError = nil
	return touched(c), nil
}

// CompleteWorktreeRemoval records a successful remove, clearing the path,
// the port and the created flag.
func CompleteWorktreeRemoval(c Card) (Card, error) {
	const op = errors.Op("card.CompleteWorktreeRemoval")
	if c.WorktreeOperation != OpRemoving {
		return c, errors.E(op, errors.CodeInvalidCard,
			fmt.Sprintf("cannot complete removal while %s", c.WorktreeOperation))
	}
	c.WorktreeOperation = OpIdle
	c.WorktreeCreated = false
	c.WorktreePath = nil
	c.Port = nil
	c.WorktreeError = nil
	return touched(c), nil
}

// ClearPort drops the card's port, leaving the worktree state untouched.
// Used when the port was returned to the allocator while the worktree
// survives, so the card never advertises a port another session may hold.
func ClearPort(c Card) Card {
	c.Port = nil
	return touched(c)
}

// SetWorktreeError records a failed worktree operation. There is no
// automatic retry: the card stays in the error state until a caller invokes
// StartWorktreeCreation or StartWorktreeRemoval again.
func SetWorktreeError(c Card, msg string) Card {
	c.WorktreeOperation = OpError
	c.WorktreeError = &msg
	return touched(c)
}
