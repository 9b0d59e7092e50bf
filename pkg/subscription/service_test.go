package subscription_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/propkit/billing/pkg/subscription"
)

// Mock implementations

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Get(ctx context.Context, accountID uuid.UUID) (*subscription.Subscription, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Subscription), args.Error(1)
}

func (m *mockStore) GetByProviderSubID(ctx context.Context, providerSubID string) (*subscription.Subscription, error) {
	args := m.Called(ctx, providerSubID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Subscription), args.Error(1)
}

func (m *mockStore) Save(ctx context.Context, sub *subscription.Subscription) error {
	args := m.Called(ctx, sub)
	return args.Error(0)
}

type mockBillingProvider struct {
	mock.Mock
}

func (m *mockBillingProvider) ChargeProrated(ctx context.Context, req subscription.ProratedChargeRequest) (*subscription.ChargeResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.ChargeResult), args.Error(1)
}

func (m *mockBillingProvider) ChangePlan(ctx context.Context, providerSubID, priceID string, timing subscription.ChangeTiming) error {
	args := m.Called(ctx, providerSubID, priceID, timing)
	return args.Error(0)
}

func (m *mockBillingProvider) CancelAtPeriodEnd(ctx context.Context, providerSubID string) error {
	args := m.Called(ctx, providerSubID)
	return args.Error(0)
}

func (m *mockBillingProvider) Reactivate(ctx context.Context, providerSubID string) error {
	args := m.Called(ctx, providerSubID)
	return args.Error(0)
}

func (m *mockBillingProvider) Fetch(ctx context.Context, providerSubID string) (*subscription.RemoteSubscription, error) {
	args := m.Called(ctx, providerSubID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.RemoteSubscription), args.Error(1)
}

func (m *mockBillingProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (*subscription.WebhookEvent, error) {
	args := m.Called(ctx, payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.WebhookEvent), args.Error(1)
}

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func activeSub() *subscription.Subscription {
	return &subscription.Subscription{
		AccountID:          uuid.New(),
		PlanID:             "pri_pro_monthly",
		Cycle:              "monthly",
		Status:             subscription.StatusActive,
		ProviderSubID:      "sub_123",
		CurrentPeriodStart: testNow.AddDate(0, 0, -15),
		CurrentPeriodEnd:   testNow.AddDate(0, 0, 15),
	}
}

func TestService_Cancel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("schedules lapse at period end", func(t *testing.T) {
		t.Parallel()

		store := new(mockStore)
		provider := new(mockBillingProvider)
		sub := activeSub()

		provider.On("CancelAtPeriodEnd", ctx, "sub_123").Return(nil)
		store.On("Save", ctx, sub).Return(nil)

		svc := subscription.NewService(store, provider, subscription.NewMemoryDeduper(),
			subscription.WithClock(fixedClock))

		res, err := svc.Cancel(ctx, sub)
		require.NoError(t, err)

		assert.True(t, res.CancelAtPeriodEnd)
		assert.Equal(t, sub.CurrentPeriodEnd, res.EffectiveDate)
		assert.True(t, sub.CancelAtPeriodEnd)
		assert.Equal(t, subscription.StatusActive, sub.Status, "status is untouched until the period lapses")
		provider.AssertExpectations(t)
		store.AssertExpectations(t)
	})

	t.Run("second cancel is rejected", func(t *testing.T) {
		t.Parallel()

		sub := activeSub()
		sub.CancelAtPeriodEnd = true

		svc := subscription.NewService(new(mockStore), new(mockBillingProvider), subscription.NewMemoryDeduper(),
			subscription.WithClock(fixedClock))

		_, err := svc.Cancel(ctx, sub)
		assert.ErrorIs(t, err, subscription.ErrAlreadyCanceling)
	})

	t.Run("suspended cannot cancel", func(t *testing.T) {
		t.Parallel()

		sub := activeSub()
		sub.Status = subscription.StatusSuspended

		svc := subscription.NewService(new(mockStore), new(mockBillingProvider), subscription.NewMemoryDeduper(),
			subscription.WithClock(fixedClock))

		_, err := svc.Cancel(ctx, sub)
		assert.True(t, subscription.IsTransitionError(err))
	})
}

func TestService_Reactivate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("clears a scheduled cancellation before the period ends", func(t *testing.T) {
		t.Parallel()

		store := new(mockStore)
		provider := new(mockBillingProvider)

		sub := activeSub()
		sub.CancelAtPeriodEnd = true
		sub.CurrentPeriodEnd = testNow.AddDate(0, 0, 2)

		provider.On("Fetch", ctx, "sub_123").Return(&subscription.RemoteSubscription{
			Status: subscription.StatusActive, CancelAtPeriodEnd: true,
		}, nil)
		provider.On("Reactivate", ctx, "sub_123").Return(nil)
		store.On("Save", ctx, sub).Return(nil)

		svc := subscription.NewService(store, provider, subscription.NewMemoryDeduper(),
			subscription.WithClock(fixedClock))

		require.NoError(t, svc.Reactivate(ctx, sub))
		assert.False(t, sub.CancelAtPeriodEnd)
		provider.AssertExpectations(t)
	})

	t.Run("fully canceled account must go through checkout", func(t *testing.T) {
		t.Parallel()

		sub := activeSub()
		sub.ProviderSubID = ""
		sub.CancelAtPeriodEnd = true

		svc := subscription.NewService(new(mockStore), new(mockBillingProvider), subscription.NewMemoryDeduper(),
			subscription.WithClock(fixedClock))

		assert.ErrorIs(t, svc.Reactivate(ctx, sub), subscription.ErrFullyCanceled)
	})

	t.Run("nothing scheduled", func(t *testing.T) {
		t.Parallel()

		svc := subscription.NewService(new(mockStore), new(mockBillingProvider), subscription.NewMemoryDeduper(),
			subscription.WithClock(fixedClock))

		assert.ErrorIs(t, svc.Reactivate(ctx, activeSub()), subscription.ErrNoScheduledCancel)
	})

	t.Run("period already elapsed", func(t *testing.T) {
		t.Parallel()

		sub := activeSub()
		sub.CancelAtPeriodEnd = true
		sub.CurrentPeriodEnd = testNow.AddDate(0, 0, -1)

		svc := subscription.NewService(new(mockStore), new(mockBillingProvider), subscription.NewMemoryDeduper(),
			subscription.WithClock(fixedClock))

		assert.ErrorIs(t, svc.Reactivate(ctx, sub), subscription.ErrCannotReactivate)
	})

	t.Run("processor already terminated the record", func(t *testing.T) {
		t.Parallel()

		provider := new(mockBillingProvider)
		sub := activeSub()
		sub.CancelAtPeriodEnd = true

		provider.On("Fetch", ctx, "sub_123").Return(&subscription.RemoteSubscription{Terminated: true}, nil)

		svc := subscription.NewService(new(mockStore), provider, subscription.NewMemoryDeduper(),
			subscription.WithClock(fixedClock))

		assert.ErrorIs(t, svc.Reactivate(ctx, sub), subscription.ErrCannotReactivate)
		provider.AssertNotCalled(t, "Reactivate", mock.Anything, mock.Anything)
	})
}

func TestService_SyncStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := new(mockStore)
	provider := new(mockBillingProvider)

	sub := activeSub()
	sub.Status = subscription.StatusPastDue

	remote := &subscription.RemoteSubscription{
		Status:      subscription.StatusActive,
		PeriodStart: testNow,
		PeriodEnd:   testNow.AddDate(0, 1, 0),
	}
	provider.On("Fetch", ctx, "sub_123").Return(remote, nil)
	store.On("Save", ctx, sub).Return(nil)

	svc := subscription.NewService(store, provider, subscription.NewMemoryDeduper(),
		subscription.WithClock(fixedClock))

	require.NoError(t, svc.SyncStatus(ctx, sub))
	assert.Equal(t, subscription.StatusActive, sub.Status, "the processor's view wins")
	assert.Equal(t, remote.PeriodEnd, sub.CurrentPeriodEnd)
	store.AssertExpectations(t)
}

func TestService_ApplyWebhook(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("duplicate delivery is a no-op", func(t *testing.T) {
		t.Parallel()

		store := new(mockStore)
		provider := new(mockBillingProvider)
		sub := activeSub()

		store.On("GetByProviderSubID", ctx, "sub_123").Return(sub, nil).Once()
		store.On("Save", ctx, sub).Return(nil).Once()

		svc := subscription.NewService(store, provider, subscription.NewMemoryDeduper(),
			subscription.WithClock(fixedClock))

		event := &subscription.WebhookEvent{
			ID:            "evt_1",
			Type:          subscription.EventTypePaymentSucceeded,
			ProviderSubID: "sub_123",
			PeriodStart:   testNow,
			PeriodEnd:     testNow.AddDate(0, 1, 0),
		}
		require.NoError(t, svc.ApplyWebhook(ctx, event))
		require.NoError(t, svc.ApplyWebhook(ctx, event), "redelivery must not error")

		store.AssertNumberOfCalls(t, "Save", 1)
	})

	t.Run("unknown subscription is dropped, not an error", func(t *testing.T) {
		t.Parallel()

		store := new(mockStore)
		store.On("GetByProviderSubID", ctx, "sub_ghost").Return(nil, subscription.ErrSubscriptionNotFound)

		svc := subscription.NewService(store, new(mockBillingProvider), subscription.NewMemoryDeduper(),
			subscription.WithClock(fixedClock))

		err := svc.ApplyWebhook(ctx, &subscription.WebhookEvent{
			ID: "evt_2", Type: subscription.EventTypePaymentFailed, ProviderSubID: "sub_ghost",
		})
		assert.NoError(t, err)
		store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("payment failure opens the grace window", func(t *testing.T) {
		t.Parallel()

		store := new(mockStore)
		sub := activeSub()
		store.On("GetByProviderSubID", ctx, "sub_123").Return(sub, nil)
		store.On("Save", ctx, sub).Return(nil)

		svc := subscription.NewService(store, new(mockBillingProvider), subscription.NewMemoryDeduper(),
			subscription.WithClock(fixedClock))

		require.NoError(t, svc.ApplyWebhook(ctx, &subscription.WebhookEvent{
			ID: "evt_3", Type: subscription.EventTypePaymentFailed, ProviderSubID: "sub_123",
		}))
		assert.Equal(t, subscription.StatusPastDue, sub.Status)
	})

	t.Run("payment failure while past due suspends", func(t *testing.T) {
		t.Parallel()

		store := new(mockStore)
		sub := activeSub()
		sub.Status = subscription.StatusPastDue
		store.On("GetByProviderSubID", ctx, "sub_123").Return(sub, nil)
		store.On("Save", ctx, sub).Return(nil)

		svc := subscription.NewService(store, new(mockBillingProvider), subscription.NewMemoryDeduper(),
			subscription.WithClock(fixedClock))

		require.NoError(t, svc.ApplyWebhook(ctx, &subscription.WebhookEvent{
			ID: "evt_4", Type: subscription.EventTypePaymentFailed, ProviderSubID: "sub_123",
		}))
		assert.Equal(t, subscription.StatusSuspended, sub.Status)
	})

	t.Run("recovery payment reactivates and wipes a pending lapse", func(t *testing.T) {
		t.Parallel()

		store := new(mockStore)
		sub := activeSub()
		sub.Status = subscription.StatusSuspended
		sub.CancelAtPeriodEnd = true
		store.On("GetByProviderSubID", ctx, "sub_123").Return(sub, nil)
		store.On("Save", ctx, sub).Return(nil)

		svc := subscription.NewService(store, new(mockBillingProvider), subscription.NewMemoryDeduper(),
			subscription.WithClock(fixedClock))

		newEnd := testNow.AddDate(0, 1, 0)
		require.NoError(t, svc.ApplyWebhook(ctx, &subscription.WebhookEvent{
			ID:            "evt_5",
			Type:          subscription.EventTypePaymentSucceeded,
			ProviderSubID: "sub_123",
			PeriodStart:   testNow,
			PeriodEnd:     newEnd,
		}))
		assert.Equal(t, subscription.StatusActive, sub.Status)
		assert.False(t, sub.CancelAtPeriodEnd)
		assert.Equal(t, newEnd, sub.CurrentPeriodEnd)
	})

	t.Run("routine renewal keeps the cancel flag", func(t *testing.T) {
		t.Parallel()

		store := new(mockStore)
		sub := activeSub()
		sub.CancelAtPeriodEnd = true
		store.On("GetByProviderSubID", ctx, "sub_123").Return(sub, nil)
		store.On("Save", ctx, sub).Return(nil)

		svc := subscription.NewService(store, new(mockBillingProvider), subscription.NewMemoryDeduper(),
			subscription.WithClock(fixedClock))

		require.NoError(t, svc.ApplyWebhook(ctx, &subscription.WebhookEvent{
			ID: "evt_6", Type: subscription.EventTypePaymentSucceeded, ProviderSubID: "sub_123",
		}))
		assert.True(t, sub.CancelAtPeriodEnd)
	})

	t.Run("subscription update overwrites the local cache", func(t *testing.T) {
		t.Parallel()

		store := new(mockStore)
		sub := activeSub()
		store.On("GetByProviderSubID", ctx, "sub_123").Return(sub, nil)
		store.On("Save", ctx, sub).Return(nil)

		svc := subscription.NewService(store, new(mockBillingProvider), subscription.NewMemoryDeduper(),
			subscription.WithClock(fixedClock))

		require.NoError(t, svc.ApplyWebhook(ctx, &subscription.WebhookEvent{
			ID:                "evt_7",
			Type:              subscription.EventTypeSubscriptionUpdated,
			ProviderSubID:     "sub_123",
			Status:            string(subscription.StatusPastDue),
			PlanID:            "pri_premium_monthly",
			CancelAtPeriodEnd: true,
		}))
		assert.Equal(t, subscription.StatusPastDue, sub.Status)
		assert.Equal(t, "pri_premium_monthly", sub.PlanID)
		assert.True(t, sub.CancelAtPeriodEnd)
	})

	t.Run("deletion marks the subscription canceled", func(t *testing.T) {
		t.Parallel()

		store := new(mockStore)
		sub := activeSub()
		store.On("GetByProviderSubID", ctx, "sub_123").Return(sub, nil)
		store.On("Save", ctx, sub).Return(nil)

		svc := subscription.NewService(store, new(mockBillingProvider), subscription.NewMemoryDeduper(),
			subscription.WithClock(fixedClock))

		require.NoError(t, svc.ApplyWebhook(ctx, &subscription.WebhookEvent{
			ID: "evt_8", Type: subscription.EventTypeSubscriptionDeleted, ProviderSubID: "sub_123",
		}))
		assert.Equal(t, subscription.StatusCanceled, sub.Status)
		require.NotNil(t, sub.CanceledAt)
		assert.Equal(t, testNow, *sub.CanceledAt)
	})

	t.Run("update without a status keeps the current one", func(t *testing.T) {
		t.Parallel()

		store := new(mockStore)
		sub := activeSub()
		store.On("GetByProviderSubID", ctx, "sub_123").Return(sub, nil)
		store.On("Save", ctx, sub).Return(nil)

		svc := subscription.NewService(store, new(mockBillingProvider), subscription.NewMemoryDeduper(),
			subscription.WithClock(fixedClock))

		newEnd := testNow.AddDate(0, 1, 0)
		require.NoError(t, svc.ApplyWebhook(ctx, &subscription.WebhookEvent{
			ID:            "evt_9",
			Type:          subscription.EventTypeSubscriptionUpdated,
			ProviderSubID: "sub_123",
			PlanID:        "pri_premium_monthly",
			PeriodEnd:     newEnd,
		}))
		assert.Equal(t, subscription.StatusActive, sub.Status)
		assert.Equal(t, "pri_premium_monthly", sub.PlanID)
		assert.Equal(t, newEnd, sub.CurrentPeriodEnd)
	})

	t.Run("failed save releases the event for redelivery", func(t *testing.T) {
		t.Parallel()

		// The failed save never persisted the first mutation, so the
		// redelivery reads the unchanged row back from the store.
		first, second := activeSub(), activeSub()
		store := new(mockStore)
		store.On("GetByProviderSubID", ctx, "sub_123").Return(first, nil).Once()
		store.On("Save", ctx, first).Return(assert.AnError).Once()
		store.On("GetByProviderSubID", ctx, "sub_123").Return(second, nil).Once()
		store.On("Save", ctx, second).Return(nil).Once()

		svc := subscription.NewService(store, new(mockBillingProvider), subscription.NewMemoryDeduper(),
			subscription.WithClock(fixedClock))

		event := &subscription.WebhookEvent{
			ID: "evt_10", Type: subscription.EventTypePaymentFailed, ProviderSubID: "sub_123",
		}
		require.Error(t, svc.ApplyWebhook(ctx, event))

		// The provider redelivers the same event ID; it must apply, not be
		// dropped as a duplicate.
		require.NoError(t, svc.ApplyWebhook(ctx, event))
		assert.Equal(t, subscription.StatusPastDue, second.Status)
		store.AssertNumberOfCalls(t, "Save", 2)
	})
}
