package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type SuspendState int

const (
	Listening SuspendState = iota
	Suspended
)

func (s SuspendState) String() string {
	if s == Suspended {
		return "suspended"
	}
	return "listening"
}

// Suspension gates local push while the reconciler writes pulled data into
// the local store. Holders nest; the deadline is a failsafe that forces the
// machine back to Listening if a holder never releases.
type Suspension struct {
	mu         sync.Mutex
	state      SuspendState
	holders    int
	generation int
	deadline   time.Time
	resumed    chan struct{}
	timeout    time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

func NewSuspension(timeout time.Duration, now func() time.Time, logger *slog.Logger) *Suspension {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Suspension{timeout: timeout, now: now, logger: logger}
}

// Suspend enters Suspended and pushes the deadline out by the timeout. The
// returned release is safe to call more than once.
func (s *Suspension) Suspend(reason string) (release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked()
	if s.state == Listening {
		s.resumed = make(chan struct{})
	}
	s.state = Suspended
	s.holders++
	s.deadline = s.now().Add(s.timeout)
	gen := s.generation
	s.logger.Debug("sync suspended", "reason", reason, "holders", s.holders)

	var once sync.Once
	return func() {
		once.Do(func() { s.release(gen) })
	}
}

// Active reports whether local push is currently suspended. An expired
// deadline is observed here and forces a resume.
func (s *Suspension) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked()
	return s.state == Suspended
}

func (s *Suspension) State() SuspendState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked()
	return s.state
}

// Wait blocks until the machine is Listening again, either by release or by
// the deadline forcing a resume.
func (s *Suspension) Wait(ctx context.Context) error {
	for {
		s.mu.Lock()
		s.expireLocked()
		if s.state == Listening {
			s.mu.Unlock()
			return nil
		}
		resumed := s.resumed
		wait := s.deadline.Sub(s.now())
		s.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-resumed:
			timer.Stop()
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

func (s *Suspension) release(gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// A forced resume already cleared this holder.
	if gen != s.generation || s.holders == 0 {
		return
	}
	s.holders--
	if s.holders == 0 {
		s.resumeLocked()
	}
}

func (s *Suspension) expireLocked() {
	if s.state != Suspended || s.now().Before(s.deadline) {
		return
	}
	s.logger.Warn("sync suspension exceeded its deadline; forcing resume",
		"holders", s.holders, "timeout", s.timeout)
	s.generation++
	s.resumeLocked()
}

func (s *Suspension) resumeLocked() {
	s.state = Listening
	s.holders = 0
	s.deadline = time.Time{}
	if s.resumed != nil {
		close(s.resumed)
		s.resumed = nil
	}
}
