package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Service owns the authoritative subscription lifecycle: user-initiated
// cancellation and reactivation, webhook intake, and reconciliation against
// the payment processor.
type Service struct {
	store    Store
	provider BillingProvider
	dedup    Deduper
	machine  *Machine
	log      *slog.Logger
	now      func() time.Time
}

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// WithClock overrides the time source. Used by tests to pin transitions to
// fixed instants.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService creates a lifecycle service. Panics if required dependencies
// are nil to fail fast during initialization.
func NewService(store Store, provider BillingProvider, dedup Deduper, opts ...ServiceOption) *Service {
	if store == nil {
		panic("subscription: Store is required")
	}
	if provider == nil {
		panic("subscription: BillingProvider is required")
	}
	if dedup == nil {
		panic("subscription: Deduper is required")
	}

	s := &Service{
		store:    store,
		provider: provider,
		dedup:    dedup,
		machine:  Lifecycle(),
		log:      slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CancelResult is returned by Cancel.
type CancelResult struct {
	CancelAtPeriodEnd bool      `json:"cancel_at_period_end"`
	EffectiveDate     time.Time `json:"effective_date"`
}

// Cancel schedules the subscription to lapse at period end. There is no
// immediate downgrade; access continues until CurrentPeriodEnd.
func (s *Service) Cancel(ctx context.Context, sub *Subscription) (*CancelResult, error) {
	now := s.now()

	if sub.CancelAtPeriodEnd {
		return nil, ErrAlreadyCanceling
	}
	if _, err := s.machine.Next(ctx, sub, EventCancelRequested, now); err != nil {
		return nil, err
	}

	if sub.HasProviderSub() {
		if err := s.provider.CancelAtPeriodEnd(ctx, sub.ProviderSubID); err != nil {
			return nil, errors.Join(ErrProviderError, err)
		}
	}

	sub.CancelAtPeriodEnd = true
	sub.UpdatedAt = now
	if err := s.store.Save(ctx, sub); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "subscription cancellation scheduled",
		slog.String("account_id", sub.AccountID.String()),
		slog.Time("effective_date", sub.CurrentPeriodEnd))

	return &CancelResult{CancelAtPeriodEnd: true, EffectiveDate: sub.CurrentPeriodEnd}, nil
}

// Reactivate removes a scheduled cancellation while the period has not yet
// elapsed. The stored status is untouched; only the flag flips back.
//
// Returns ErrFullyCanceled when no processor subscription exists (trial-only
// accounts must check out a paid plan instead) and ErrCannotReactivate when
// the processor has already terminated the subscription.
func (s *Service) Reactivate(ctx context.Context, sub *Subscription) error {
	now := s.now()

	if !sub.HasProviderSub() {
		return ErrFullyCanceled
	}
	if !sub.CancelAtPeriodEnd {
		return ErrNoScheduledCancel
	}
	if _, err := s.machine.Next(ctx, sub, EventReactivateRequested, now); err != nil {
		// The period elapsed out from under the scheduled cancellation.
		return ErrCannotReactivate
	}

	// The processor may have terminated the record already even though the
	// local row still looks reactivatable; its view wins.
	remote, err := s.provider.Fetch(ctx, sub.ProviderSubID)
	if err != nil {
		return errors.Join(ErrProviderError, err)
	}
	if remote.Terminated {
		return ErrCannotReactivate
	}

	if err := s.provider.Reactivate(ctx, sub.ProviderSubID); err != nil {
		return errors.Join(ErrProviderError, err)
	}

	sub.CancelAtPeriodEnd = false
	sub.UpdatedAt = now
	if err := s.store.Save(ctx, sub); err != nil {
		return err
	}

	s.log.InfoContext(ctx, "subscription reactivated",
		slog.String("account_id", sub.AccountID.String()))
	return nil
}

// SyncStatus reconciles the local row against the processor, which is the
// source of truth. The remote view overwrites local status and period
// bounds unconditionally.
func (s *Service) SyncStatus(ctx context.Context, sub *Subscription) error {
	if !sub.HasProviderSub() {
		return nil
	}

	remote, err := s.provider.Fetch(ctx, sub.ProviderSubID)
	if err != nil {
		return errors.Join(ErrProviderError, err)
	}

	now := s.now()
	sub.Status = remote.Status
	if !remote.PeriodStart.IsZero() {
		sub.CurrentPeriodStart = remote.PeriodStart
	}
	if !remote.PeriodEnd.IsZero() {
		sub.CurrentPeriodEnd = remote.PeriodEnd
	}
	sub.CancelAtPeriodEnd = remote.CancelAtPeriodEnd
	if remote.Terminated && sub.CanceledAt == nil {
		sub.CanceledAt = &now
	}
	sub.UpdatedAt = now

	return s.store.Save(ctx, sub)
}

// ApplyWebhook processes a normalized provider event. Duplicate deliveries
// of the same event ID are no-ops; events referencing unknown subscriptions
// are logged and dropped so a stray delivery can never crash the handler.
func (s *Service) ApplyWebhook(ctx context.Context, event *WebhookEvent) error {
	first, err := s.dedup.MarkSeen(ctx, event.ID)
	if err != nil {
		return fmt.Errorf("webhook dedup check: %w", err)
	}
	if !first {
		s.log.DebugContext(ctx, "duplicate webhook delivery dropped",
			slog.String("event_id", event.ID),
			slog.String("event_type", string(event.Type)))
		return nil
	}

	sub, err := s.store.GetByProviderSubID(ctx, event.ProviderSubID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			s.log.WarnContext(ctx, "webhook references unknown subscription, dropped",
				slog.String("event_id", event.ID),
				slog.String("provider_sub_id", event.ProviderSubID))
			return nil
		}
		s.release(ctx, event.ID)
		return err
	}

	now := s.now()

	switch event.Type {
	case EventTypePaymentSucceeded:
		s.applyPaymentSucceeded(ctx, sub, event, now)

	case EventTypePaymentFailed:
		// Grace window first; a failure arriving while already past due is
		// the final notice and suspends gated access.
		if sub.Status == StatusPastDue {
			sub.Status = StatusSuspended
		} else if next, err := s.machine.Next(ctx, sub, EventPaymentFailed, now); err == nil {
			sub.Status = next
		}

	case EventTypeSubscriptionUpdated:
		// Webhook is always considered newer than any locally cached value.
		if event.Status != "" {
			sub.Status = Status(event.Status)
		}
		if event.PlanID != "" {
			sub.PlanID = event.PlanID
		}
		if !event.PeriodStart.IsZero() {
			sub.CurrentPeriodStart = event.PeriodStart
		}
		if !event.PeriodEnd.IsZero() {
			sub.CurrentPeriodEnd = event.PeriodEnd
		}
		sub.CancelAtPeriodEnd = event.CancelAtPeriodEnd

	case EventTypeSubscriptionDeleted:
		sub.Status = StatusCanceled
		if sub.CanceledAt == nil {
			sub.CanceledAt = &now
		}

	default:
		s.log.DebugContext(ctx, "unhandled webhook event type ignored",
			slog.String("event_type", string(event.Type)))
		return nil
	}

	sub.UpdatedAt = now
	if err := s.store.Save(ctx, sub); err != nil {
		// Give the event ID back so the provider's redelivery is not
		// swallowed as a duplicate; otherwise the state change is lost.
		s.release(ctx, event.ID)
		return fmt.Errorf("apply webhook %s: %w", event.ID, err)
	}

	s.log.InfoContext(ctx, "webhook applied",
		slog.String("event_id", event.ID),
		slog.String("event_type", string(event.Type)),
		slog.String("account_id", sub.AccountID.String()),
		slog.String("status", string(sub.Status)))
	return nil
}

func (s *Service) release(ctx context.Context, eventID string) {
	if err := s.dedup.Unmark(ctx, eventID); err != nil {
		s.log.ErrorContext(ctx, "failed to release webhook event for redelivery",
			slog.String("event_id", eventID),
			slog.Any("error", err))
	}
}

func (s *Service) applyPaymentSucceeded(ctx context.Context, sub *Subscription, event *WebhookEvent, now time.Time) {
	reactivation := sub.Status == StatusPastDue || sub.Status == StatusSuspended

	if next, err := s.machine.Next(ctx, sub, EventPaymentSucceeded, now); err == nil {
		sub.Status = next
	}

	// A recovery payment also wipes any lapse that was pending; a routine
	// renewal must not touch the cancel flag.
	if reactivation {
		sub.CancelAtPeriodEnd = false
	}

	if !event.PeriodStart.IsZero() {
		sub.CurrentPeriodStart = event.PeriodStart
	}
	if !event.PeriodEnd.IsZero() {
		sub.CurrentPeriodEnd = event.PeriodEnd
	}
}
