// Package terminal owns the lifecycle of agent processes attached to
// pseudo-terminals. The Manager spawns OS processes behind a PTY, assigns
// integer session ids, multiplexes output to registered listeners, and
// guarantees exactly-once cleanup whether a session ends by process exit or
// by an explicit kill.
//
// Callers never see the underlying process or PTY file; they hold a Handle,
// which carries no raw resource and is safe to copy across observers.
package terminal

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"sync"

	"github.com/creack/pty"

	"github.com/chezu/antler/internal/errors"
)

// Config carries the manager's construction-time state. There are no
// package-level singletons: two managers in one process are fully
// independent.
type Config struct {
	// MaxSessions bounds concurrently-live sessions. Zero means unbounded.
	MaxSessions int
	// DefaultCols and DefaultRows size the PTY when SpawnOptions leaves
	// cols/rows zero.
	DefaultCols uint16
	DefaultRows uint16
}

// SpawnOptions describes the process to start.
type SpawnOptions struct {
	Cmd  string
	Args []string
	Cwd  string
	Cols uint16
	Rows uint16
	Env  map[string]string
}

// Manager spawns and tracks PTY sessions. All methods are safe for
// concurrent use; sessions never block one another.
type Manager struct {
	cfg Config
	log *slog.Logger

	mu       sync.Mutex
	sessions map[int]*session
	reserved int
	nextID   int
}

// New creates a manager. A nil logger falls back to slog.Default.
func New(cfg Config, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if cfg.DefaultCols == 0 {
		cfg.DefaultCols = 80
	}
	if cfg.DefaultRows == 0 {
		cfg.DefaultRows = 24
	}
	return &Manager{
		cfg:      cfg,
		log:      log,
		sessions: make(map[int]*session),
	}
}

// Spawn starts opts.Cmd attached to a fresh PTY and returns a handle for it.
// A missing executable is reported as claude_not_installed, any other
// spawn-time failure as spawn_failed, and exhaustion of the session bound as
// max_sessions_exceeded.
func (m *Manager) Spawn(opts SpawnOptions) (*Handle, error) {
	const op = errors.Op("terminal.Spawn")

	if opts.Cmd == "" {
		return nil, errors.E(op, errors.CodeSpawnFailed, "command is empty")
	}

	// Reserve the slot and the id in one critical section so the bound
	// holds under concurrent spawns; in-flight spawns count against it
	// until they either land in the session map or fail and release.
	m.mu.Lock()
	if m.cfg.MaxSessions > 0 && len(m.sessions)+m.reserved >= m.cfg.MaxSessions {
		m.mu.Unlock()
		return nil, errors.MaxSessionsExceeded(m.cfg.MaxSessions)
	}
	m.reserved++
	m.nextID++
	id := m.nextID
	m.mu.Unlock()

	release := func() {
		m.mu.Lock()
		m.reserved--
		m.mu.Unlock()
	}

	// Structured missing-binary check up front; the message-pattern
	// heuristic in ClassifySpawn is only the fallback for failures that
	// surface later, inside pty start.
	if _, err := exec.LookPath(opts.Cmd); err != nil {
		release()
		return nil, errors.E(op, errors.CodeClaudeNotInstalled,
			fmt.Sprintf("%s not found in PATH", opts.Cmd), err)
	}

	cmd := exec.Command(opts.Cmd, opts.Args...)
	cmd.Dir = opts.Cwd
	env := os.Environ()
	for k, v := range opts.Env {
		env = append(env, k+"="+v)
	}
	env = append(env, "TERM=xterm-256color")
	cmd.Env = env

	cols, rows := opts.Cols, opts.Rows
	if cols == 0 {
		cols = m.cfg.DefaultCols
	}
	if rows == 0 {
		rows = m.cfg.DefaultRows
	}

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: rows, Cols: cols})
	if err != nil {
		release()
		return nil, errors.E(op, errors.ClassifySpawn(err),
			fmt.Sprintf("failed to spawn %s", opts.Cmd), err)
	}

	s := &session{
		id:   id,
		cmd:  cmd,
		ptmx: ptmx,
		log:  m.log.With(slog.Int("session", id)),
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.reserved--
	m.mu.Unlock()

	m.log.Info("session spawned", "id", id, "cmd", opts.Cmd, "cwd", opts.Cwd, "pid", cmd.Process.Pid)

	go m.readLoop(s)
	go m.waitLoop(s)

	return &Handle{m: m, s: s}, nil
}

// Sessions returns the ids of currently-live sessions, sorted. Best-effort:
// it never fails and returns an empty slice rather than propagating internal
// errors.
func (m *Manager) Sessions() []int {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]int, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// readLoop is the single reader for a session's PTY output. Delivering each
// chunk synchronously from this one goroutine gives strict per-session
// ordering: every listener sees chunk N before any listener sees chunk N+1.
func (m *Manager) readLoop(s *session) {
	buf := make([]byte, 4096)
	for {
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			s.deliver(string(buf[:n]))
		}
		if err != nil {
			// EOF or the ptmx was closed by cleanup. Exit delivery is
			// waitLoop's job once the process is reaped.
			return
		}
	}
}

// waitLoop reaps the process and converges on cleanup with the terminal exit
// code: the real code for a clean exit, nil when terminated by signal/kill.
func (m *Manager) waitLoop(s *session) {
	err := s.cmd.Wait()

	var code *int
	switch e := err.(type) {
	case nil:
		zero := 0
		code = &zero
	case *exec.ExitError:
		if e.ProcessState.Exited() {
			c := e.ProcessState.ExitCode()
			code = &c
		}
	}

	m.cleanup(s, code)
}

// cleanup releases the session's OS resources, drops it from the live set
// and notifies exit listeners. It runs at most once per session no matter
// how many triggers race to call it; later triggers are no-ops.
func (m *Manager) cleanup(s *session, code *int) {
	s.mu.Lock()
	if s.cleanedUp {
		s.mu.Unlock()
		return
	}
	s.cleanedUp = true
	s.exitCode = code
	exits := append([]exitListener(nil), s.exits...)
	s.data = nil
	s.exits = nil
	s.mu.Unlock()

	// Closing an already-released PTY is benign; never surface it.
	_ = s.ptmx.Close()

	m.mu.Lock()
	delete(m.sessions, s.id)
	m.mu.Unlock()

	for _, l := range exits {
		l.fn(code)
	}

	if code != nil {
		s.log.Info("session exited", "code", *code)
	} else {
		s.log.Info("session terminated by signal")
	}
}
