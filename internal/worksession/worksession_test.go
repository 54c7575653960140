package worksession

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/chezu/antler/internal/agent"
	"github.com/chezu/antler/internal/card"
	"github.com/chezu/antler/internal/errors"
	"github.com/chezu/antler/internal/ports"
	"github.com/chezu/antler/internal/terminal"
)

// fakeProvider records calls and can be primed to fail.
type fakeProvider struct {
	path      string
	createErr error
	removeErr error

	created []string
	removed []string
}

func (f *fakeProvider) Create(ctx context.Context, c card.Card) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, c.SessionUID)
	return f.path, nil
}

func (f *fakeProvider) Remove(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, path)
	return nil
}

func newTestCoordinator(t *testing.T, provider *fakeProvider) (*Coordinator, *ports.Allocator) {
	t.Helper()
	alloc := ports.NewAllocator(43000, 43050)
	tm := terminal.New(terminal.Config{DefaultCols: 80, DefaultRows: 24}, nil)
	cfg := Config{AgentCmd: "sh", AgentArgs: []string{"-c", "sleep 30"}}
	return New(provider, alloc, tm, cfg, nil), alloc
}

func TestStartWorkHappyPath(t *testing.T) {
	provider := &fakeProvider{path: t.TempDir()}
	co, alloc := newTestCoordinator(t, provider)

	c := card.New(card.Options{Name: "feature-x"})
	res, err := co.StartWork(context.Background(), c)
	if err != nil {
		t.Fatalf("StartWork() error = %v", err)
	}
	defer res.Handle.Kill()

	got := res.Card
	if !got.WorktreeCreated {
		t.Error("worktreeCreated = false, want true")
	}
	if got.WorktreePath == nil || *got.WorktreePath != provider.path {
		t.Errorf("worktreePath = %v, want %q", got.WorktreePath, provider.path)
	}
	if got.Port == nil {
		t.Fatal("port = nil, want allocated")
	}
	if !alloc.InUse(*got.Port) {
		t.Errorf("port %d not held by allocator", *got.Port)
	}
	if got.WorktreeOperation != card.OpIdle {
		t.Errorf("worktreeOperation = %q, want %q", got.WorktreeOperation, card.OpIdle)
	}
	if res.Session.Status != agent.StatusRunning {
		t.Errorf("session status = %q, want %q", res.Session.Status, agent.StatusRunning)
	}
	if res.Session.PID == nil {
		t.Error("session pid = nil, want set")
	}
	if len(provider.created) != 1 || provider.created[0] != c.SessionUID {
		t.Errorf("provider.created = %v, want [%s]", provider.created, c.SessionUID)
	}
}

func TestStartWorkPrerequisiteFailed(t *testing.T) {
	provider := &fakeProvider{path: t.TempDir()}
	co, _ := newTestCoordinator(t, provider)
	co.cfg.AgentCmd = "no-such-agent-binary-9z"

	c := card.New(card.Options{Name: "feature-x"})
	_, err := co.StartWork(context.Background(), c)
	if !errors.Is(err, errors.CodePrerequisiteFailed) {
		t.Errorf("error code = %v, want %v", errors.GetCode(err), errors.CodePrerequisiteFailed)
	}
	if len(provider.created) != 0 {
		t.Error("provider.Create called despite failed prerequisite")
	}
}

func TestStartWorkWorktreeCreateFailure(t *testing.T) {
	provider := &fakeProvider{createErr: fmt.Errorf("disk full")}
	co, _ := newTestCoordinator(t, provider)

	c := card.New(card.Options{Name: "feature-x"})
	res, err := co.StartWork(context.Background(), c)
	if !errors.Is(err, errors.CodeWorktreeFailed) {
		t.Errorf("error code = %v, want %v", errors.GetCode(err), errors.CodeWorktreeFailed)
	}
	got := res.Card
	if got.WorktreeOperation != card.OpError {
		t.Errorf("worktreeOperation = %q, want %q", got.WorktreeOperation, card.OpError)
	}
	if got.WorktreeError == nil || *got.WorktreeError != "disk full" {
		t.Errorf("worktreeError = %v, want %q", got.WorktreeError, "disk full")
	}
	if got.WorktreeCreated {
		t.Error("worktreeCreated = true after failed creation")
	}
}

func TestStartWorkPortExhaustionRemovesWorktree(t *testing.T) {
	provider := &fakeProvider{path: t.TempDir()}
	co, _ := newTestCoordinator(t, provider)
	co.ports = ports.NewAllocator(43900, 43900) // empty range, always exhausted

	c := card.New(card.Options{Name: "feature-x"})
	res, err := co.StartWork(context.Background(), c)
	if !errors.Is(err, errors.CodePortAllocationFailed) {
		t.Errorf("error code = %v, want %v", errors.GetCode(err), errors.CodePortAllocationFailed)
	}
	if res.Card.WorktreeOperation != card.OpError {
		t.Errorf("worktreeOperation = %q, want %q", res.Card.WorktreeOperation, card.OpError)
	}

	// The created worktree must not be orphaned.
	if len(provider.removed) != 1 || provider.removed[0] != provider.path {
		t.Errorf("provider.removed = %v, want [%s]", provider.removed, provider.path)
	}
}

func TestStartWorkSpawnFailureReleasesPort(t *testing.T) {
	// A worktree path that does not exist makes the process start fail
	// after the port was already allocated.
	provider := &fakeProvider{path: "/nonexistent/worktree/path"}
	co, alloc := newTestCoordinator(t, provider)

	c := card.New(card.Options{Name: "feature-x"})
	res, err := co.StartWork(context.Background(), c)
	if err == nil {
		res.Handle.Kill()
		t.Fatal("StartWork() succeeded with nonexistent worktree path")
	}
	// The port went back to the allocator, so the card must not keep
	// advertising it.
	if res.Card.Port != nil {
		t.Errorf("card port = %d after spawn failure, want nil", *res.Card.Port)
	}
	for p := 43000; p < 43050; p++ {
		if alloc.InUse(p) {
			t.Errorf("port %d leaked after spawn failure", p)
		}
	}
	if !res.Card.HasError {
		t.Error("hasError = false after spawn failure")
	}
	if res.Session.Status != agent.StatusError {
		t.Errorf("session status = %q, want %q", res.Session.Status, agent.StatusError)
	}
}

func TestStartWorkCancelled(t *testing.T) {
	provider := &fakeProvider{path: t.TempDir()}
	co, _ := newTestCoordinator(t, provider)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := card.New(card.Options{Name: "feature-x"})
	res, err := co.StartWork(ctx, c)
	if !errors.Is(err, errors.CodeCancelled) {
		t.Errorf("error code = %v, want %v", errors.GetCode(err), errors.CodeCancelled)
	}
	if res.Card.WorktreeOperation != card.OpError {
		t.Errorf("worktreeOperation = %q, want %q", res.Card.WorktreeOperation, card.OpError)
	}
}

func TestStopWorkHappyPath(t *testing.T) {
	provider := &fakeProvider{path: t.TempDir()}
	co, alloc := newTestCoordinator(t, provider)

	c := card.New(card.Options{Name: "feature-x"})
	res, err := co.StartWork(context.Background(), c)
	if err != nil {
		t.Fatalf("StartWork() error = %v", err)
	}
	port := *res.Card.Port

	exited := make(chan struct{})
	res.Handle.OnExit(func(*int) { close(exited) })

	got, sess, err := co.StopWork(context.Background(), res.Card, res.Session, res.Handle)
	if err != nil {
		t.Fatalf("StopWork() error = %v", err)
	}

	select {
	case <-exited:
	case <-time.After(5 * time.Second):
		t.Fatal("agent process not killed by StopWork")
	}

	if got.WorktreeCreated {
		t.Error("worktreeCreated = true after StopWork")
	}
	if got.WorktreePath != nil || got.Port != nil {
		t.Errorf("worktreePath = %v, port = %v, want both nil", got.WorktreePath, got.Port)
	}
	if got.WorktreeOperation != card.OpIdle {
		t.Errorf("worktreeOperation = %q, want %q", got.WorktreeOperation, card.OpIdle)
	}
	if alloc.InUse(port) {
		t.Errorf("port %d still held after StopWork", port)
	}
	if sess.Status != agent.StatusStopped {
		t.Errorf("session status = %q, want %q", sess.Status, agent.StatusStopped)
	}
	if len(provider.removed) != 1 || provider.removed[0] != provider.path {
		t.Errorf("provider.removed = %v, want [%s]", provider.removed, provider.path)
	}
}

func TestStopWorkRemovalFailureKeepsErrorState(t *testing.T) {
	provider := &fakeProvider{path: t.TempDir()}
	co, _ := newTestCoordinator(t, provider)

	c := card.New(card.Options{Name: "feature-x"})
	res, err := co.StartWork(context.Background(), c)
	if err != nil {
		t.Fatalf("StartWork() error = %v", err)
	}

	provider.removeErr = fmt.Errorf("worktree is dirty")
	got, _, err := co.StopWork(context.Background(), res.Card, res.Session, res.Handle)
	if !errors.Is(err, errors.CodeWorktreeFailed) {
		t.Errorf("error code = %v, want %v", errors.GetCode(err), errors.CodeWorktreeFailed)
	}
	if got.WorktreeOperation != card.OpError {
		t.Errorf("worktreeOperation = %q, want %q", got.WorktreeOperation, card.OpError)
	}
	if !got.WorktreeCreated {
		t.Error("worktreeCreated cleared despite failed removal")
	}

	// Error state permits a retry; this time removal succeeds.
	provider.removeErr = nil
	got, _, err = co.StopWork(context.Background(), got, res.Session, nil)
	if err != nil {
		t.Fatalf("retry StopWork() error = %v", err)
	}
	if got.WorktreeCreated || got.WorktreeError != nil {
		t.Errorf("card not cleared after retried removal: %+v", got)
	}
}

func TestStopWorkWithNilHandle(t *testing.T) {
	provider := &fakeProvider{path: t.TempDir()}
	co, _ := newTestCoordinator(t, provider)

	c := card.New(card.Options{Name: "feature-x"})
	res, err := co.StartWork(context.Background(), c)
	if err != nil {
		t.Fatalf("StartWork() error = %v", err)
	}
	defer res.Handle.Kill()

	// Agent already gone; StopWork still tears down the worktree.
	got, sess, err := co.StopWork(context.Background(), res.Card, agent.MarkStopped(res.Session), nil)
	if err != nil {
		t.Fatalf("StopWork() error = %v", err)
	}
	if got.WorktreeCreated {
		t.Error("worktreeCreated = true after StopWork with nil handle")
	}
	if sess.Status != agent.StatusStopped {
		t.Errorf("session status = %q, want %q", sess.Status, agent.StatusStopped)
	}
}
