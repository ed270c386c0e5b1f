// Package timeutil abstracts the wall clock so time-driven logic can be
// exercised deterministically.
package timeutil

import (
	"context"
	"sync"
	"time"
)

// Provider supplies the current time and blocking waits.
type Provider interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the
	// latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

type realProvider struct{}

// Default returns a Provider backed by the system clock.
func Default() Provider { return realProvider{} }

func (realProvider) Now() time.Time { return time.Now().UTC() }

func (realProvider) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Mock is a manually driven Provider. Sleep advances CurrentTime instead of
// blocking and records every requested duration.
type Mock struct {
	mu          sync.Mutex
	CurrentTime time.Time
	Sleeps      []time.Duration
}

// NewMock returns a Mock starting at t.
func NewMock(t time.Time) *Mock { return &Mock{CurrentTime: t} }

// Now returns the mocked current time.
func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CurrentTime
}

// Set moves the clock to t.
func (m *Mock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CurrentTime = t
}

// Advance moves the clock forward by d.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CurrentTime = m.CurrentTime.Add(d)
}

// Sleep records d and advances the clock without blocking.
func (m *Mock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sleeps = append(m.Sleeps, d)
	m.CurrentTime = m.CurrentTime.Add(d)
	return nil
}

// SleepCalls returns a copy of the recorded sleep durations.
func (m *Mock) SleepCalls() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.Sleeps...)
}
