package nb2doc

import (
	"runtime"
	"sync"
)

// Worker sizing constants.
const (
	// MinWorkers ensures at least one parse worker is available.
	MinWorkers = 1

	// MaxWorkers caps parse workers; notebook execution dominates cost
	// and more workers mostly add kernel memory pressure.
	MaxWorkers = 8

	// cpuDivisor leaves headroom for executor subprocesses.
	cpuDivisor = 2
)

// sessionPool manages build-worker sessions. Sessions are created
// lazily on first acquire; each carries an isolated metadata store that
// the service merges after the parse phase.
type sessionPool struct {
	size     int
	create   func() *Session
	sessions []*Session
	sem      chan *Session
	mu       sync.Mutex
	created  int
}

func newSessionPool(n int, create func() *Session) *sessionPool {
	if n < 1 {
		n = 1
	}
	return &sessionPool{
		size:     n,
		create:   create,
		sessions: make([]*Session, 0, n),
		sem:      make(chan *Session, n),
	}
}

// Acquire gets a session from the pool, creating one if capacity
// allows. Blocks if all sessions are in use.
func (p *sessionPool) Acquire() *Session {
	select {
	case s := <-p.sem:
		return s
	default:
	}

	p.mu.Lock()
	if p.created < p.size {
		p.created++
		p.mu.Unlock()

		s := p.create()

		p.mu.Lock()
		p.sessions = append(p.sessions, s)
		p.mu.Unlock()

		return s
	}
	p.mu.Unlock()

	return <-p.sem
}

// Release returns a session to the pool.
func (p *sessionPool) Release(s *Session) {
	p.sem <- s
}

// Sessions returns every session created so far, for the merge phase.
func (p *sessionPool) Sessions() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessions
}

// Size returns the pool capacity.
func (p *sessionPool) Size() int { return p.size }

// ResolveWorkerCount determines the parse worker count.
// Priority: explicit workers > GOMAXPROCS-based calculation.
func ResolveWorkerCount(workers int) int {
	if workers > 0 {
		return workers
	}

	// Auto-calculate based on GOMAXPROCS (adjusted by automaxprocs for
	// containers).
	available := runtime.GOMAXPROCS(0)
	n := available / cpuDivisor

	if n < MinWorkers {
		return MinWorkers
	}
	if n > MaxWorkers {
		return MaxWorkers
	}
	return n
}
