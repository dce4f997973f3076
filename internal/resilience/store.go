package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/noah-isme/tagihan-wa/internal/store"
)

// Store guards a record store with a breaker and bounded retries. Missing
// records are answers, not faults, so they neither trip the breaker nor retry.
type Store struct {
	Next     store.Store
	Breaker  *Breaker
	Attempts int
	Backoff  time.Duration
}

var _ store.Store = (*Store)(nil)

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.retry(ctx, func(ctx context.Context) error {
		v, err := s.Next.Get(ctx, key)
		out = v
		return err
	})
	return out, err
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	return s.retry(ctx, func(ctx context.Context) error {
		return s.Next.Put(ctx, key, value)
	})
}

// Ping bypasses the breaker so readiness reflects the backend itself.
func (s *Store) Ping(ctx context.Context) error {
	return s.Next.Ping(ctx)
}

func (s *Store) retry(ctx context.Context, fn func(context.Context) error) error {
	attempts := s.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		if s.Breaker != nil {
			err = s.Breaker.Do(ctx, fn, countsAgainst)
		} else {
			err = fn(ctx)
		}
		if err == nil || !retryable(err) || i == attempts {
			return err
		}
		t := time.NewTimer(Backoff(s.Backoff, i, 0.2))
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
	}
	return err
}

func countsAgainst(err error) bool {
	return !errors.Is(err, store.ErrNotFound) && !errors.Is(err, context.Canceled)
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, ErrOpenCircuit),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}
