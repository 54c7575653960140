// Package worksession composes the card state machine, the worktree
// provider, the port allocator and the terminal manager into the two
// operations a caller actually performs: starting work on a card and
// stopping it again.
package worksession

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"

	"github.com/chezu/antler/internal/agent"
	"github.com/chezu/antler/internal/card"
	"github.com/chezu/antler/internal/errors"
	"github.com/chezu/antler/internal/ports"
	"github.com/chezu/antler/internal/terminal"
)

// WorktreeProvider prepares and tears down the isolated working directory a
// session runs in. The git commands live behind this interface; the
// coordinator only sees paths and errors.
type WorktreeProvider interface {
	Create(ctx context.Context, c card.Card) (path string, err error)
	Remove(ctx context.Context, path string) error
}

// Config carries the agent command the coordinator spawns per session.
type Config struct {
	AgentCmd  string
	AgentArgs []string
	Cols      uint16
	Rows      uint16
}

// Coordinator drives the start-work and stop-work flows. It holds no card
// state itself; callers pass cards in and receive the updated value back.
type Coordinator struct {
	provider WorktreeProvider
	ports    *ports.Allocator
	terminal *terminal.Manager
	cfg      Config
	log      *slog.Logger
}

// New assembles a coordinator from its collaborators.
func New(provider WorktreeProvider, alloc *ports.Allocator, tm *terminal.Manager, cfg Config, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		provider: provider,
		ports:    alloc,
		terminal: tm,
		cfg:      cfg,
		log:      log,
	}
}

// Result is what a successful StartWork hands back: the card with its
// worktree recorded, the agent session in running state, and the live
// terminal handle.
type Result struct {
	Card    card.Card
	Session agent.Session
	Handle  *terminal.Handle
}

// StartWork takes an idle card through prerequisite checks, worktree
// creation, port allocation and agent spawn. On any failure the card is
// returned carrying the corresponding error state, and resources acquired
// so far are rolled back.
func (co *Coordinator) StartWork(ctx context.Context, c card.Card) (Result, error) {
	const op = errors.Op("worksession.StartWork")

	if _, err := exec.LookPath(co.cfg.AgentCmd); err != nil {
		return Result{Card: c}, errors.PrerequisiteFailed(
			fmt.Sprintf("agent command %q not found in PATH", co.cfg.AgentCmd))
	}

	c, err := card.StartWorktreeCreation(c)
	if err != nil {
		return Result{Card: c}, err
	}

	if err := ctx.Err(); err != nil {
		return Result{Card: card.SetWorktreeError(c, "cancelled")}, errors.Cancelled(op, err)
	}

	path, err := co.provider.Create(ctx, c)
	if err != nil {
		co.log.Error("worktree creation failed", "card", c.SessionUID, "error", err)
		c = card.SetWorktreeError(c, err.Error())
		if ctx.Err() != nil {
			return Result{Card: c}, errors.Cancelled(op, err)
		}
		return Result{Card: c}, errors.WorktreeFailed(c.SessionUID, err)
	}

	port, err := co.ports.Allocate()
	if err != nil {
		// The worktree already exists; tear it down rather than orphan
		// it, since the card never recorded its path.
		if rerr := co.provider.Remove(ctx, path); rerr != nil {
			co.log.Error("worktree rollback failed", "card", c.SessionUID, "path", path, "error", rerr)
		}
		c = card.SetWorktreeError(c, err.Error())
		return Result{Card: c}, err
	}

	c, err = card.CompleteWorktreeCreation(c, path, port)
	if err != nil {
		co.ports.Release(port)
		return Result{Card: c}, err
	}

	if err := ctx.Err(); err != nil {
		co.ports.Release(port)
		c = card.ClearPort(c)
		return Result{Card: card.SetWorktreeError(c, "cancelled")}, errors.Cancelled(op, err)
	}

	sess := agent.New(c.SessionUID, path, &port)

	h, err := co.terminal.Spawn(terminal.SpawnOptions{
		Cmd:  co.cfg.AgentCmd,
		Args: co.cfg.AgentArgs,
		Cwd:  path,
		Cols: co.cfg.Cols,
		Rows: co.cfg.Rows,
		Env:  map[string]string{"PORT": fmt.Sprintf("%d", port)},
	})
	if err != nil {
		co.ports.Release(port)
		c = card.ClearPort(c)
		sess = agent.MarkFailed(sess, err.Error())
		return Result{Card: card.SetHasError(c, true), Session: sess}, err
	}

	sess = agent.MarkRunning(sess, h.PID())
	co.log.Info("work started", "card", c.SessionUID, "path", path, "port", port, "pid", h.PID())

	return Result{Card: c, Session: sess, Handle: h}, nil
}

// StopWork kills the agent, removes the worktree and releases the port. The
// handle may be nil when the agent already exited on its own. A removal
// failure leaves the card in worktree error state so the caller can retry.
func (co *Coordinator) StopWork(ctx context.Context, c card.Card, sess agent.Session, h *terminal.Handle) (card.Card, agent.Session, error) {
	const op = errors.Op("worksession.StopWork")

	if h != nil {
		if err := h.Kill(); err != nil {
			co.log.Warn("kill failed", "card", c.SessionUID, "error", err)
		}
	}
	sess = agent.MarkStopped(sess)

	port := c.Port

	c, err := card.StartWorktreeRemoval(c)
	if err != nil {
		return c, sess, err
	}

	if err := ctx.Err(); err != nil {
		return card.SetWorktreeError(c, "cancelled"), sess, errors.Cancelled(op, err)
	}

	if c.WorktreePath != nil {
		if err := co.provider.Remove(ctx, *c.WorktreePath); err != nil {
			co.log.Error("worktree removal failed", "card", c.SessionUID, "error", err)
			c = card.SetWorktreeError(c, err.Error())
			if ctx.Err() != nil {
				return c, sess, errors.Cancelled(op, err)
			}
			return c, sess, errors.WorktreeFailed(c.SessionUID, err)
		}
	}

	c, err = card.CompleteWorktreeRemoval(c)
	if err != nil {
		return c, sess, err
	}

	if port != nil {
		co.ports.Release(*port)
	}
	co.log.Info("work stopped", "card", c.SessionUID)

	return c, sess, nil
}
