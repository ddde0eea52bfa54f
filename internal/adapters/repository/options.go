package repository

import "time"

const (
	defaultMaxConns = 10
	defaultMinConns = 2
)

type settings struct {
	clock    *Clock
	maxConns int32
	minConns int32
}

func newSettings(opts []Option) settings {
	s := settings{maxConns: defaultMaxConns, minConns: defaultMinConns}
	for _, opt := range opts {
		opt(&s)
	}
	if s.clock == nil {
		s.clock = NewClock(nil)
	}
	return s
}

// Option applies a configuration option to a store.
type Option func(*settings)

// WithClock sets the time source for created_at and updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.clock = NewClock(now)
		}
	}
}

// WithPoolSize bounds the Postgres connection pool. Zero keeps the default.
func WithPoolSize(maxConns, minConns int32) Option {
	return func(s *settings) {
		if maxConns > 0 {
			s.maxConns = maxConns
		}
		if minConns > 0 {
			s.minConns = minConns
		}
	}
}
