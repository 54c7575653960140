// Package agent models the binding between a kanban card and a spawned
// interactive CLI agent process. Like cards, sessions are immutable values:
// every update returns a new session.
package agent

import (
	"fmt"
	"time"

	"github.com/chezu/antler/internal/errors"
	"github.com/chezu/antler/internal/ident"
)

// Status is the lifecycle state of an agent session.
type Status string

const (
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopped  Status = "stopped"
	StatusError    Status = "error"
)

// ValidStatus reports whether s is a member of the closed status set.
func ValidStatus(s Status) bool {
	switch s {
	case StatusStarting, StatusRunning, StatusStopped, StatusError:
		return true
	}
	return false
}

// Session binds a card to a spawned agent process. There is no automatic
// restart; recovery means creating a new session.
type Session struct {
	ID           string  `json:"id"`
	CardID       string  `json:"cardId"` // the card's sessionUid
	WorktreePath string  `json:"worktreePath"`
	Port         *int    `json:"port"`
	Status       Status  `json:"status"`
	PID          *int    `json:"pid"`
	Error        *string `json:"error"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// New creates a session in the starting state with no pid and no error.
func New(cardID, worktreePath string, port *int) Session {
	now := time.Now()
	return Session{
		ID:           ident.NewUID(),
		CardID:       cardID,
		WorktreePath: worktreePath,
		Port:         port,
		Status:       StatusStarting,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Patch carries the updatable subset of session fields. Nil fields are left
// unchanged.
type Patch struct {
	Status *Status
	PID    *int
	Error  *string
}

// Update returns a new session with the patch applied.
func Update(s Session, p Patch) (Session, error) {
	const op = errors.Op("agent.Update")

	if p.Status != nil {
		if !ValidStatus(*p.Status) {
			return s, errors.E(op, errors.CodeInvalidSession, fmt.Sprintf("invalid status %q", *p.Status))
		}
		s.Status = *p.Status
	}
	if p.PID != nil {
		pid := *p.PID
		s.PID = &pid
	}
	if p.Error != nil {
		msg := *p.Error
		s.Error = &msg
	}
	s.UpdatedAt = time.Now()
	return s, nil
}

// MarkRunning records the pid reported by the spawned process.
func MarkRunning(s Session, pid int) Session {
	status := StatusRunning
	next, _ := Update(s, Patch{Status: &status, PID: &pid})
	return next
}

// MarkStopped records a clean process exit.
func MarkStopped(s Session) Session {
	status := StatusStopped
	next, _ := Update(s, Patch{Status: &status})
	return next
}

// MarkFailed records a spawn failure or abnormal exit.
func MarkFailed(s Session, msg string) Session {
	status := StatusError
	next, _ := Update(s, Patch{Status: &status, Error: &msg})
	return next
}
