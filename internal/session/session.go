// session.go — Grouped test session accumulator.
// Single-tenant: at most one session is active at a time. Assertions
// recorded while idle buffer into an implicit unnamed session so the next
// End still reports them.
package session

import (
	"sync"
	"time"
)

// unnamedSession labels assertions recorded before any Start call.
const unnamedSession = "unnamed"

// Assertion is one recorded pass/fail outcome.
type Assertion struct {
	Passed    bool      `json:"passed"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Summary is the result emitted when a session ends.
type Summary struct {
	Name        string      `json:"name"`
	Passed      bool        `json:"passed"`
	Total       int         `json:"total"`
	PassedCount int         `json:"passed_count"`
	FailedCount int         `json:"failed_count"`
	Assertions  []Assertion `json:"assertions"`
	StartedAt   time.Time   `json:"started_at"`
	EndedAt     time.Time   `json:"ended_at"`
	DurationMs  int64       `json:"duration_ms"`
}

// Session accumulates assertions across a named window.
type Session struct {
	mu         sync.Mutex
	name       string
	startedAt  time.Time
	assertions []Assertion
	now        func() time.Time
}

// New creates an idle session accumulator.
func New() *Session {
	return &Session{now: time.Now}
}

// Start transitions to active under the given name and clears the buffer.
// Starting while already active replaces the name and resets assertions.
func (s *Session) Start(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.name = name
	s.startedAt = s.now()
	s.assertions = nil
}

// AddAssertion appends one outcome with the current timestamp. Permitted
// while idle: the assertion buffers into an implicit unnamed session.
func (s *Session) AddAssertion(passed bool, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.name == "" && len(s.assertions) == 0 {
		s.startedAt = s.now()
	}
	s.assertions = append(s.assertions, Assertion{
		Passed:    passed,
		Message:   message,
		Timestamp: s.now(),
	})
}

// End emits a summary and returns to idle.
func (s *Session) End() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := s.name
	if name == "" {
		name = unnamedSession
	}

	endedAt := s.now()
	startedAt := s.startedAt
	if startedAt.IsZero() {
		startedAt = endedAt
	}

	passed := 0
	for _, a := range s.assertions {
		if a.Passed {
			passed++
		}
	}
	failed := len(s.assertions) - passed

	summary := Summary{
		Name:        name,
		Passed:      failed == 0,
		Total:       len(s.assertions),
		PassedCount: passed,
		FailedCount: failed,
		Assertions:  s.assertions,
		StartedAt:   startedAt,
		EndedAt:     endedAt,
		DurationMs:  endedAt.Sub(startedAt).Milliseconds(),
	}

	s.name = ""
	s.startedAt = time.Time{}
	s.assertions = nil

	return summary
}

// Active reports whether a named session is in progress.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name != ""
}

// Name returns the active session name, or "" when idle.
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}
