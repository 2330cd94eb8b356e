// Package clock provides time abstraction for testing and production use.
// Components that poll or tick take a Clock so tests can drive time and
// ticker firings deterministically.
package clock

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Clock provides an abstraction for time operations.
type Clock interface {
	// Now returns the current time
	Now() time.Time
	// NewTicker returns a ticker firing every d
	NewTicker(d time.Duration) Ticker
}

// Ticker is the subset of time.Ticker used by periodic tasks.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock implements Clock using actual system time.
type RealClock struct{}

// Now returns the current system time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// NewTicker wraps time.NewTicker.
func (RealClock) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// MockClock implements Clock and provides a controllable, thread-safe time for tests.
// Tickers created from a MockClock fire only when Advance moves time past
// their next deadline.
type MockClock struct {
	mu          sync.Mutex
	currentTime time.Time
	tickers     []*mockTicker
}

// NewMockClock creates a new MockClock set to the specified time.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{currentTime: t}
}

// Now returns the mock clock's current time.
func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentTime
}

// Set changes the mock clock's current time without firing tickers.
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTime = t
}

// Advance moves the mock clock forward and fires every ticker whose deadline
// has passed. Like time.Ticker, a slow receiver drops ticks.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	m.currentTime = m.currentTime.Add(d)
	now := m.currentTime
	active := make([]*mockTicker, 0, len(m.tickers))
	for _, t := range m.tickers {
		if !t.stopped() {
			active = append(active, t)
		}
	}
	m.tickers = active
	m.mu.Unlock()

	for _, t := range active {
		t.fire(now)
	}
}

// NewTicker registers a ticker driven by Advance.
func (m *MockClock) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &mockTicker{
		c:        make(chan time.Time, 1),
		interval: d,
		next:     m.currentTime.Add(d),
	}
	m.tickers = append(m.tickers, t)
	return t
}

// TickerCount reports how many tickers are still running.
func (m *MockClock) TickerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tickers {
		if !t.stopped() {
			n++
		}
	}
	return n
}

type mockTicker struct {
	mu       sync.Mutex
	c        chan time.Time
	interval time.Duration
	next     time.Time
	done     bool
}

func (t *mockTicker) C() <-chan time.Time { return t.c }

func (t *mockTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done = true
}

func (t *mockTicker) stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

func (t *mockTicker) fire(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done || now.Before(t.next) {
		return
	}
	for !now.Before(t.next) {
		t.next = t.next.Add(t.interval)
	}
	select {
	case t.c <- now:
	default:
	}
}

// EnvironmentClock implements Clock using a time from an environment variable or file.
// Priority: environment variable > file > system time (fallback).
// Used to pin the morning/evening direction window when demonstrating the tracker.
type EnvironmentClock struct {
	envVar   string
	filePath string
	location *time.Location
}

// NewEnvironmentClock creates a new EnvironmentClock with the given options.
// If no sources are configured, it will fall back to system time.
func NewEnvironmentClock(envVar string, filePath string, location *time.Location) *EnvironmentClock {
	return &EnvironmentClock{
		envVar:   envVar,
		filePath: filePath,
		location: location,
	}
}

// Now returns the current time by checking sources in priority order.
func (e *EnvironmentClock) Now() time.Time {
	if t, err := e.syncFromEnvVar(); err == nil {
		return t
	}
	if t, err := e.syncFromFile(); err == nil {
		return t
	}
	slog.Warn("EnvironmentClock: failed to sync from env var, falling back to system time",
		slog.String("envVar", e.envVar), slog.String("filePath", e.filePath))
	return time.Now()
}

// NewTicker uses real time; only Now is overridden.
func (e *EnvironmentClock) NewTicker(d time.Duration) Ticker {
	return RealClock{}.NewTicker(d)
}

func (e *EnvironmentClock) syncFromEnvVar() (time.Time, error) {
	if e.envVar == "" {
		return time.Time{}, errors.New("environment variable name not configured")
	}
	timeStr := os.Getenv(e.envVar)
	if timeStr == "" {
		return time.Time{}, errors.New("environment variable is empty: " + e.envVar)
	}
	return e.parseTime(timeStr)
}

func (e *EnvironmentClock) syncFromFile() (time.Time, error) {
	if e.filePath == "" {
		return time.Time{}, errors.New("file path not configured")
	}
	data, err := os.ReadFile(e.filePath)
	if err != nil {
		return time.Time{}, err
	}
	return e.parseTime(string(data))
}

// parseTime attempts to parse a time string using multiple common formats.
func (e *EnvironmentClock) parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}

	// requires timezone
	if e.location == nil {
		return time.Time{}, errors.New("timezone not configured")
	}

	formats := []string{
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02",
	}
	for _, format := range formats {
		if t, err := time.ParseInLocation(format, s, e.location); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse time %q: expected RFC3339 (2006-01-02T15:04:05Z07:00), or YYYY-MM-DD HH:MM:SS, YYYY-MM-DDTHH:MM:SS, or YYYY-MM-DD", s)
}
