// Package ports implements the process-wide PortAllocator described in
// spec.md §4.2: a singleton port registry scoped by session, backed by an
// OS-level bind probe. Exposed as a package-level handle (mirroring the
// teacher's preference for explicit singletons with a reset entry point
// for tests, spec.md §9) rather than relying on any runtime's lazy
// module-load semantics.
package ports

import (
	"fmt"
	"net"
	"sync"
	"time"
)

const (
	// DefaultRangeStart is the default lower bound (inclusive) of the
	// allocatable port range.
	DefaultRangeStart = 9000
	// DefaultRangeEnd is the default upper bound (inclusive) of the
	// allocatable port range.
	DefaultRangeEnd = 9999
)

// None is the sentinel returned by Allocate when no free port was found.
const None = -1

// Claim is a single port ownership record.
type Claim struct {
	Port      int
	Project   string
	SessionID string
	Timestamp time.Time
}

// Allocator is a process-wide port registry scoped by session.
type Allocator struct {
	mu         sync.Mutex
	rangeStart int
	rangeEnd   int
	claims     map[int]Claim

	// probe reports whether a port is already bound on the host. It is
	// swappable for tests. A port the probe cannot bind is reported as in
	// use, so Allocate skips it (spec.md §4.2).
	probe func(port int) bool
}

var (
	defaultMu       sync.Mutex
	defaultInstance *Allocator
)

// Default returns the process-wide singleton allocator, constructing it
// with the default range on first use.
func Default() *Allocator {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultInstance == nil {
		defaultInstance = New(DefaultRangeStart, DefaultRangeEnd)
	}
	return defaultInstance
}

// ResetDefault replaces the process-wide singleton with a fresh allocator.
// Intended for use in tests only.
func ResetDefault() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultInstance = New(DefaultRangeStart, DefaultRangeEnd)
}

// New constructs an allocator over the inclusive range [rangeStart, rangeEnd].
func New(rangeStart, rangeEnd int) *Allocator {
	return &Allocator{
		rangeStart: rangeStart,
		rangeEnd:   rangeEnd,
		claims:     make(map[int]Claim),
		probe:      osPortInUse,
	}
}

func osPortInUse(port int) bool {
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		// Probe failures (including EADDRINUSE) are reported as "in use".
		return true
	}
	_ = l.Close()
	return false
}

// SetProbe overrides the OS-level probe function used by Allocate. Intended
// for use in tests only.
func (a *Allocator) SetProbe(probe func(port int) bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.probe = probe
}

// Claim claims port for (project, sessionID) if it is unclaimed or already
// owned by the same session. Returns false if owned by a different session.
func (a *Allocator) Claim(port int, project, sessionID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.claimLocked(port, project, sessionID)
}

func (a *Allocator) claimLocked(port int, project, sessionID string) bool {
	if existing, ok := a.claims[port]; ok && existing.SessionID != sessionID {
		return false
	}
	a.claims[port] = Claim{Port: port, Project: project, SessionID: sessionID, Timestamp: time.Now()}
	return true
}

// Release releases the claim on port if it is owned by sessionID.
func (a *Allocator) Release(port int, sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if existing, ok := a.claims[port]; ok && existing.SessionID == sessionID {
		delete(a.claims, port)
	}
}

// ReleaseSession releases every claim owned by sessionID.
func (a *Allocator) ReleaseSession(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for port, claim := range a.claims {
		if claim.SessionID == sessionID {
			delete(a.claims, port)
		}
	}
}

// Allocate finds and claims a free port for (project, sessionID), starting
// at max(preferred, rangeStart) and wrapping modulo the range size,
// visiting every candidate in the range exactly once. Returns None if no
// port is available. The check-and-claim is atomic with respect to other
// Allocator calls.
func (a *Allocator) Allocate(preferred int, project, sessionID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	size := a.rangeEnd - a.rangeStart + 1
	if size <= 0 {
		return None
	}

	start := preferred
	if start < a.rangeStart {
		start = a.rangeStart
	}
	offset := start - a.rangeStart

	for i := 0; i < size; i++ {
		candidate := a.rangeStart + (offset+i)%size

		if existing, ok := a.claims[candidate]; ok && existing.SessionID != sessionID {
			continue
		}
		if a.probe != nil && a.probe(candidate) {
			continue
		}

		a.claimLocked(candidate, project, sessionID)
		return candidate
	}

	return None
}

// Claims returns a snapshot of all active claims. Exposed for diagnostics
// and tests.
func (a *Allocator) Claims() []Claim {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Claim, 0, len(a.claims))
	for _, c := range a.claims {
		out = append(out, c)
	}
	return out
}
