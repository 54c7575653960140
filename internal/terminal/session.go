package terminal

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"

	"github.com/chezu/antler/internal/errors"
)

type dataListener struct {
	seq int
	fn  func(data string)
}

type exitListener struct {
	seq int
	fn  func(code *int)
}

// session is the manager's private record of a live PTY process. Listener
// registration, removal and cleanup race freely against output delivery;
// everything mutable sits behind mu except PTY writes, which have their own
// mutex so a slow write never stalls reads or listener churn.
type session struct {
	id   int
	cmd  *exec.Cmd
	ptmx *os.File
	log  *slog.Logger

	writeMu sync.Mutex

	mu        sync.Mutex
	nextSeq   int
	data      []dataListener
	exits     []exitListener
	cleanedUp bool
	exitCode  *int
}

// deliver fans one output chunk out to the listeners registered at snapshot
// time, in registration order. Called only from the session's read loop.
func (s *session) deliver(chunk string) {
	s.mu.Lock()
	listeners := append([]dataListener(nil), s.data...)
	s.mu.Unlock()

	for _, l := range listeners {
		l.fn(chunk)
	}
}

func (s *session) removeData(seq int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, l := range s.data {
		if l.seq == seq {
			s.data = append(s.data[:i], s.data[i+1:]...)
			return
		}
	}
}

func (s *session) removeExit(seq int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, l := range s.exits {
		if l.seq == seq {
			s.exits = append(s.exits[:i], s.exits[i+1:]...)
			return
		}
	}
}

// Handle is the caller-facing view of a session. It exposes no raw process
// or file; copies of a handle all refer to the same session.
type Handle struct {
	m *Manager
	s *session
}

// ID returns the session's integer id.
func (h *Handle) ID() int {
	return h.s.id
}

// PID returns the OS process id of the spawned agent.
func (h *Handle) PID() int {
	return h.s.cmd.Process.Pid
}

// Write sends data to the session's stdin. Writes are serialized per
// session. After cleanup it returns session_not_found.
func (h *Handle) Write(data string) error {
	const op = errors.Op("terminal.Write")
	s := h.s

	s.mu.Lock()
	closed := s.cleanedUp
	s.mu.Unlock()
	if closed {
		return errors.SessionNotFound(s.id)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.ptmx.Write([]byte(data)); err != nil {
		return errors.E(op, errors.CodePTYError,
			fmt.Sprintf("write to session %d", s.id), err)
	}
	return nil
}

// Resize adjusts the PTY window. Resize is advisory: a failure is reported
// but never terminates the session.
func (h *Handle) Resize(cols, rows uint16) error {
	const op = errors.Op("terminal.Resize")
	s := h.s

	s.mu.Lock()
	closed := s.cleanedUp
	s.mu.Unlock()
	if closed {
		return errors.SessionNotFound(s.id)
	}

	if err := pty.Setsize(s.ptmx, &pty.Winsize{Rows: rows, Cols: cols}); err != nil {
		return errors.E(op, errors.CodePTYError,
			fmt.Sprintf("resize session %d", s.id), err)
	}
	return nil
}

// Kill force-terminates the session and runs cleanup. Killing an
// already-finished session is a no-op. A killed session reports a nil exit
// code to exit listeners.
func (h *Handle) Kill() error {
	s := h.s

	s.mu.Lock()
	if s.cleanedUp {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if s.cmd.Process != nil {
		// The process may have exited between the check and here; the
		// resulting error is benign and cleanup converges either way.
		_ = s.cmd.Process.Kill()
	}
	h.m.cleanup(s, nil)
	return nil
}

// OnData registers fn for every output chunk the session produces from now
// on. The returned remove function unregisters it and is idempotent.
// Registering on a finished session is a no-op.
func (h *Handle) OnData(fn func(data string)) (remove func()) {
	s := h.s

	s.mu.Lock()
	if s.cleanedUp {
		s.mu.Unlock()
		return func() {}
	}
	s.nextSeq++
	seq := s.nextSeq
	s.data = append(s.data, dataListener{seq: seq, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { s.removeData(seq) }) }
}

// OnExit registers fn to receive the session's exit code, or nil when the
// session was terminated by signal or Kill. A listener registered after the
// session already finished is invoked immediately with the stored code, so
// late observers never miss the exit.
func (h *Handle) OnExit(fn func(code *int)) (remove func()) {
	s := h.s

	s.mu.Lock()
	if s.cleanedUp {
		code := s.exitCode
		s.mu.Unlock()
		fn(code)
		return func() {}
	}
	s.nextSeq++
	seq := s.nextSeq
	s.exits = append(s.exits, exitListener{seq: seq, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { s.removeExit(seq) }) }
}
