// Package ports hands out TCP ports for work sessions from a fixed range.
package ports

import (
	"fmt"
	"net"
	"sync"

	"github.com/chezu/antler/internal/errors"
)

// Allocator manages a half-open port range [Min, Max). It tracks ports it
// has handed out and probes a candidate with a real bind before returning
// it, so ports held by unrelated processes are skipped.
type Allocator struct {
	min int
	max int

	mu    sync.Mutex
	inUse map[int]bool
}

// NewAllocator returns an allocator over [min, max).
func NewAllocator(min, max int) *Allocator {
	return &Allocator{
		min:   min,
		max:   max,
		inUse: make(map[int]bool),
	}
}

// Allocate reserves the lowest free port in the range. It returns
// port_allocation_failed when every port is taken.
func (a *Allocator) Allocate() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for port := a.min; port < a.max; port++ {
		if a.inUse[port] {
			continue
		}
		if !bindable(port) {
			continue
		}
		a.inUse[port] = true
		return port, nil
	}
	return 0, errors.PortAllocationFailed(
		fmt.Errorf("no free port in range %d-%d", a.min, a.max))
}

// Release returns a port to the pool. Releasing a port that was never
// allocated is a no-op.
func (a *Allocator) Release(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.inUse, port)
}

// InUse reports whether the allocator currently holds the port.
func (a *Allocator) InUse(port int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inUse[port]
}

func bindable(port int) bool {
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	l.Close()
	return true
}
