// Package worker holds background maintenance loops.
package worker

import (
	"context"
	"log/slog"
	"time"
)

// ExpiredSessionDeleter is implemented by repository.SessionRepo.
type ExpiredSessionDeleter interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper reclaims session rows whose expiry has passed.  It is never on
// the request path; ValidateToken already rejects expired rows.
type Sweeper struct {
	sessions ExpiredSessionDeleter
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
	log      *slog.Logger
}

func NewSweeper(sessions ExpiredSessionDeleter, interval time.Duration, log *slog.Logger) *Sweeper {
	return &Sweeper{
		sessions: sessions,
		interval: interval,
		timeout:  30 * time.Second,
		now:      time.Now,
		log:      log.With("component", "session_sweeper"),
	}
}

// Start runs the sweep loop until ctx is cancelled.  Blocking call.  A
// non-positive interval disables sweeping and returns immediately.
func (s *Sweeper) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.log.Info("disabled")
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.log.Info("started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("stopping")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce deletes expired rows and returns how many went.  Errors are
// logged; the next tick retries.
func (s *Sweeper) SweepOnce(ctx context.Context) int64 {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.sessions.DeleteExpired(ctx, s.now())
	if err != nil {
		s.log.Warn("sweep failed", "error", err)
		return 0
	}
	if n > 0 {
		s.log.Info("reclaimed expired sessions", "count", n)
	}
	return n
}
