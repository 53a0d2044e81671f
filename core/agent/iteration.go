package agent

import (
	"context"
	"errors"
	"time"

	"github.com/llmbridge/bridge/providers/ai"
	"github.com/llmbridge/bridge/providers/observability"
)

// Manager accounts for the iterations of one conversation. It is not safe for
// concurrent use; a conversation runs on a single goroutine.
type Manager struct {
	max int
	now func() time.Time

	current     int
	active      bool
	activeStart time.Time
	startedAt   time.Time

	durations []time.Duration

	terminated bool
	reason     ai.TerminationReason
}

// NewManager creates a manager capped at max iterations.
func NewManager(max int) *Manager {
	return newManagerWithClock(max, time.Now)
}

func newManagerWithClock(max int, now func() time.Time) *Manager {
	return &Manager{max: max, now: now, startedAt: now()}
}

// StartIteration opens the next iteration and returns its one-based number.
// Starting while another iteration is active, or after termination, is a
// contract violation and returns an error.
func (m *Manager) StartIteration() (int, error) {
	if m.terminated {
		return 0, errors.New("cannot start an iteration after termination")
	}
	if m.active {
		return 0, errors.New("cannot start an iteration while one is active")
	}
	m.current++
	m.active = true
	m.activeStart = m.now()
	return m.current, nil
}

// CompleteIteration closes the active iteration and records its duration.
// Negative durations (clock skew) are recorded as-is but flagged through the
// observer. Completing the final permitted iteration terminates the manager,
// so a later StartIteration fails rather than opening iteration max+1.
func (m *Manager) CompleteIteration(ctx context.Context) (time.Duration, error) {
	if !m.active {
		return 0, errors.New("no active iteration to complete")
	}
	duration := m.now().Sub(m.activeStart)
	if duration < 0 {
		if observer := observability.ObserverFromContext(ctx); observer != nil {
			observer.Warn(ctx, "iteration duration is negative, clock skew suspected",
				observability.Int(observability.AttrAgentIteration, m.current),
				observability.Duration(observability.AttrDuration, duration),
			)
		}
	}
	m.durations = append(m.durations, duration)
	m.active = false
	if m.current >= m.max {
		m.Terminate(m.DetermineTerminationReason(ctx))
	}
	return duration, nil
}

// CanContinue reports whether another iteration may start: the context is
// live, the loop has not terminated, and the iteration cap is not reached.
func (m *Manager) CanContinue(ctx context.Context) bool {
	return ctx.Err() == nil && !m.terminated && m.current < m.max
}

// Terminate marks the conversation terminated. Only the first call sets the
// reason; later calls are no-ops.
func (m *Manager) Terminate(reason ai.TerminationReason) {
	if m.terminated {
		return
	}
	m.terminated = true
	m.reason = reason
}

// Terminated reports whether the conversation has terminated and why.
func (m *Manager) Terminated() (bool, ai.TerminationReason) {
	return m.terminated, m.reason
}

// DetermineTerminationReason resolves why the loop must stop, in precedence
// order: cancelled, then timeout, then max_iterations, then natural
// completion.
func (m *Manager) DetermineTerminationReason(ctx context.Context) ai.TerminationReason {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return ai.TerminationCancelled
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return ai.TerminationTimeout
	case m.current >= m.max:
		return ai.TerminationMaxIterations
	default:
		return ai.TerminationNaturalCompletion
	}
}

// Metrics is a snapshot of the manager's accounting.
type Metrics struct {
	TotalTime        time.Duration        `json:"totalTime"`
	Iterations       int                  `json:"iterations"`
	CurrentIteration int                  `json:"currentIteration"`
	MinIteration     time.Duration        `json:"minIteration"`
	MaxIteration     time.Duration        `json:"maxIteration"`
	MeanIteration    time.Duration        `json:"meanIteration"`
	Terminated       bool                 `json:"terminated"`
	Reason           ai.TerminationReason `json:"reason,omitempty"`
}

// Metrics returns the current accounting snapshot.
func (m *Manager) Metrics() Metrics {
	metrics := Metrics{
		TotalTime:        m.now().Sub(m.startedAt),
		Iterations:       len(m.durations),
		CurrentIteration: m.current,
		Terminated:       m.terminated,
		Reason:           m.reason,
	}
	if len(m.durations) == 0 {
		return metrics
	}
	var total time.Duration
	metrics.MinIteration = m.durations[0]
	metrics.MaxIteration = m.durations[0]
	for _, d := range m.durations {
		total += d
		if d < metrics.MinIteration {
			metrics.MinIteration = d
		}
		if d > metrics.MaxIteration {
			metrics.MaxIteration = d
		}
	}
	metrics.MeanIteration = total / time.Duration(len(m.durations))
	return metrics
}
