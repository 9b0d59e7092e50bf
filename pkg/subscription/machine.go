package subscription

import (
	"context"
	"time"
)

// Guard evaluates whether a transition should be allowed for a specific
// subscription at a specific time.
type Guard func(ctx context.Context, sub *Subscription, now time.Time) bool

type transition struct {
	to     Status
	guards []Guard
}

// Machine is a stateless transition table for the subscription lifecycle.
// It holds no per-subscription state: the subscription row is the state,
// the machine only answers which status an event leads to from it.
type Machine struct {
	transitions map[Status]map[Event][]transition
}

// MachineOption configures a Machine during construction.
type MachineOption func(*Machine)

// WithTransition registers a transition. Multiple transitions for the same
// from/event pair are allowed; the first one whose guards all pass wins.
func WithTransition(from, to Status, event Event, guards ...Guard) MachineOption {
	return func(m *Machine) {
		if _, ok := m.transitions[from]; !ok {
			m.transitions[from] = make(map[Event][]transition)
		}
		m.transitions[from][event] = append(m.transitions[from][event], transition{to: to, guards: guards})
	}
}

// NewMachine builds a transition table from the given options.
func NewMachine(opts ...MachineOption) *Machine {
	m := &Machine{transitions: make(map[Status]map[Event][]transition)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Next returns the status the event leads to from the subscription's
// current stored status, or a TransitionError when the event is not legal.
func (m *Machine) Next(ctx context.Context, sub *Subscription, event Event, now time.Time) (Status, error) {
	candidates, ok := m.transitions[sub.Status][event]
	if !ok || len(candidates) == 0 {
		return "", &TransitionError{From: sub.Status, Event: event}
	}

	for _, t := range candidates {
		if guardsPass(ctx, t.guards, sub, now) {
			return t.to, nil
		}
	}
	return "", &TransitionError{From: sub.Status, Event: event}
}

// Can reports whether the event has a legal transition from the
// subscription's current status.
func (m *Machine) Can(ctx context.Context, sub *Subscription, event Event, now time.Time) bool {
	_, err := m.Next(ctx, sub, event, now)
	return err == nil
}

func guardsPass(ctx context.Context, guards []Guard, sub *Subscription, now time.Time) bool {
	for _, g := range guards {
		if g != nil && !g(ctx, sub, now) {
			return false
		}
	}
	return true
}

// Lifecycle returns the marketplace subscription lifecycle:
//
//	payment_succeeded:    trialing|past_due|suspended|active -> active
//	payment_failed:       active|trialing -> past_due (grace window opens)
//	payment_failed_final: past_due -> suspended (gated access removed)
//	cancel_requested:     active|trialing -> same state, lapse at period end
//	reactivate_requested: legal only while the scheduled cancellation has
//	                      not yet elapsed; status is untouched
//
// Expiry is not an event here: it is derived at read time by
// EffectiveStatus because the processor's webhook may lag the boundary.
func Lifecycle() *Machine {
	notFlagged := func(_ context.Context, sub *Subscription, _ time.Time) bool {
		return !sub.CancelAtPeriodEnd
	}
	reactivatable := func(_ context.Context, sub *Subscription, now time.Time) bool {
		return sub.CancelAtPeriodEnd && now.Before(sub.CurrentPeriodEnd)
	}

	return NewMachine(
		WithTransition(StatusTrialing, StatusActive, EventPaymentSucceeded),
		WithTransition(StatusPastDue, StatusActive, EventPaymentSucceeded),
		WithTransition(StatusSuspended, StatusActive, EventPaymentSucceeded),
		WithTransition(StatusActive, StatusActive, EventPaymentSucceeded),

		WithTransition(StatusActive, StatusPastDue, EventPaymentFailed),
		WithTransition(StatusTrialing, StatusPastDue, EventPaymentFailed),

		WithTransition(StatusPastDue, StatusSuspended, EventPaymentFailedFinal),

		WithTransition(StatusActive, StatusActive, EventCancelRequested, notFlagged),
		WithTransition(StatusTrialing, StatusTrialing, EventCancelRequested, notFlagged),

		WithTransition(StatusActive, StatusActive, EventReactivateRequested, reactivatable),
		WithTransition(StatusTrialing, StatusTrialing, EventReactivateRequested, reactivatable),
		WithTransition(StatusCanceled, StatusCanceled, EventReactivateRequested, reactivatable),
	)
}
