package entitlement_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/propkit/billing/pkg/catalog"
	"github.com/propkit/billing/pkg/entitlement"
	"github.com/propkit/billing/pkg/subscription"
)

type mockSubStore struct {
	mock.Mock
}

func (m *mockSubStore) Get(ctx context.Context, accountID uuid.UUID) (*subscription.Subscription, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Subscription), args.Error(1)
}

func (m *mockSubStore) GetByProviderSubID(ctx context.Context, providerSubID string) (*subscription.Subscription, error) {
	args := m.Called(ctx, providerSubID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Subscription), args.Error(1)
}

func (m *mockSubStore) Save(ctx context.Context, sub *subscription.Subscription) error {
	args := m.Called(ctx, sub)
	return args.Error(0)
}

var testNow = time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New(context.Background(), catalog.NewInMemSource(catalog.Plan{
		ID:           "pri_pro_monthly",
		Name:         "pro",
		PriceMonthly: catalog.Money{Amount: 24900, Currency: "USD"},
		Limits: map[catalog.Resource]int64{
			catalog.ResourceListings:    25,
			catalog.ResourceTeamMembers: catalog.Unlimited,
		},
		Features: []catalog.Feature{catalog.FeatureAnalytics},
		Active:   true,
	}))
	require.NoError(t, err)
	return cat
}

func proSub(accountID uuid.UUID, status subscription.Status) *subscription.Subscription {
	return &subscription.Subscription{
		AccountID:        accountID,
		PlanID:           "pri_pro_monthly",
		Status:           status,
		CurrentPeriodEnd: testNow.AddDate(0, 0, 15),
	}
}

func verified(v bool) entitlement.AccountVerifier {
	return entitlement.AccountVerifierFunc(func(context.Context, uuid.UUID) (bool, error) {
		return v, nil
	})
}

func fixedCounter(n int64) entitlement.CounterFunc {
	return func(context.Context, uuid.UUID) (int64, error) { return n, nil }
}

func newResolver(t *testing.T, subs *mockSubStore, verifier entitlement.AccountVerifier, used int64) *entitlement.Resolver {
	t.Helper()
	return entitlement.NewResolver(testCatalog(t), subs, verifier,
		entitlement.WithCounter(catalog.ResourceListings, fixedCounter(used)),
		entitlement.WithCounter(catalog.ResourceTeamMembers, fixedCounter(used)),
		entitlement.WithClock(fixedClock))
}

func TestResolver_CanCreate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("all gates pass", func(t *testing.T) {
		t.Parallel()

		accountID := uuid.New()
		subs := new(mockSubStore)
		subs.On("Get", ctx, accountID).Return(proSub(accountID, subscription.StatusActive), nil)

		r := newResolver(t, subs, verified(true), 10)

		d, err := r.CanCreate(ctx, accountID, catalog.ResourceListings)
		require.NoError(t, err)
		assert.True(t, d.CanCreate)
		assert.Empty(t, d.Reason)
		assert.Equal(t, int64(15), d.Remaining)
	})

	t.Run("no subscription at all", func(t *testing.T) {
		t.Parallel()

		accountID := uuid.New()
		subs := new(mockSubStore)
		subs.On("Get", ctx, accountID).Return(nil, subscription.ErrSubscriptionNotFound)

		r := newResolver(t, subs, verified(true), 0)

		d, err := r.CanCreate(ctx, accountID, catalog.ResourceListings)
		require.NoError(t, err)
		assert.False(t, d.CanCreate)
		assert.Equal(t, entitlement.ReasonNoSubscription, d.Reason)
	})

	t.Run("lapsed subscription reads as no subscription", func(t *testing.T) {
		t.Parallel()

		accountID := uuid.New()
		subs := new(mockSubStore)
		sub := proSub(accountID, subscription.StatusActive)
		sub.CancelAtPeriodEnd = true
		sub.CurrentPeriodEnd = testNow.AddDate(0, 0, -1)
		subs.On("Get", ctx, accountID).Return(sub, nil)

		r := newResolver(t, subs, verified(true), 0)

		d, err := r.CanCreate(ctx, accountID, catalog.ResourceListings)
		require.NoError(t, err)
		assert.False(t, d.CanCreate)
		assert.Equal(t, entitlement.ReasonNoSubscription, d.Reason)
	})

	t.Run("suspended subscription blocks", func(t *testing.T) {
		t.Parallel()

		accountID := uuid.New()
		subs := new(mockSubStore)
		subs.On("Get", ctx, accountID).Return(proSub(accountID, subscription.StatusSuspended), nil)

		r := newResolver(t, subs, verified(true), 0)

		d, err := r.CanCreate(ctx, accountID, catalog.ResourceListings)
		require.NoError(t, err)
		assert.False(t, d.CanCreate)
		assert.Equal(t, entitlement.ReasonNoSubscription, d.Reason)
	})

	t.Run("unverified account with room left still blocks", func(t *testing.T) {
		t.Parallel()

		accountID := uuid.New()
		subs := new(mockSubStore)
		subs.On("Get", ctx, accountID).Return(proSub(accountID, subscription.StatusActive), nil)

		r := newResolver(t, subs, verified(false), 3)

		d, err := r.CanCreate(ctx, accountID, catalog.ResourceListings)
		require.NoError(t, err)
		assert.False(t, d.CanCreate)
		assert.Equal(t, entitlement.ReasonVerificationRequired, d.Reason)
		assert.Equal(t, int64(22), d.Remaining, "remaining is reported even when another gate fails")
	})

	t.Run("limit reached", func(t *testing.T) {
		t.Parallel()

		accountID := uuid.New()
		subs := new(mockSubStore)
		subs.On("Get", ctx, accountID).Return(proSub(accountID, subscription.StatusActive), nil)

		r := newResolver(t, subs, verified(true), 25)

		d, err := r.CanCreate(ctx, accountID, catalog.ResourceListings)
		require.NoError(t, err)
		assert.False(t, d.CanCreate)
		assert.Equal(t, entitlement.ReasonLimitReached, d.Reason)
		assert.Equal(t, int64(0), d.Remaining)
	})

	t.Run("unlimited resource never hits the limit gate", func(t *testing.T) {
		t.Parallel()

		accountID := uuid.New()
		subs := new(mockSubStore)
		subs.On("Get", ctx, accountID).Return(proSub(accountID, subscription.StatusActive), nil)

		r := newResolver(t, subs, verified(true), 100000)

		d, err := r.CanCreate(ctx, accountID, catalog.ResourceTeamMembers)
		require.NoError(t, err)
		assert.True(t, d.CanCreate)
		assert.Equal(t, catalog.Unlimited, d.Remaining)
	})

	t.Run("counter failure propagates", func(t *testing.T) {
		t.Parallel()

		accountID := uuid.New()
		subs := new(mockSubStore)
		subs.On("Get", ctx, accountID).Return(proSub(accountID, subscription.StatusActive), nil)

		r := entitlement.NewResolver(testCatalog(t), subs, verified(true),
			entitlement.WithCounter(catalog.ResourceListings, func(context.Context, uuid.UUID) (int64, error) {
				return 0, errors.New("db down")
			}),
			entitlement.WithClock(fixedClock))

		_, err := r.CanCreate(ctx, accountID, catalog.ResourceListings)
		assert.ErrorIs(t, err, entitlement.ErrFailedToCountUsage)
	})
}

func TestResolver_Usage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	usage := func(t *testing.T, used int64, res catalog.Resource) entitlement.UsageInfo {
		t.Helper()
		accountID := uuid.New()
		subs := new(mockSubStore)
		subs.On("Get", ctx, accountID).Return(proSub(accountID, subscription.StatusActive), nil)

		r := newResolver(t, subs, verified(true), used)
		info, err := r.Usage(ctx, accountID, res)
		require.NoError(t, err)
		return info
	}

	t.Run("under the warning threshold", func(t *testing.T) {
		t.Parallel()

		info := usage(t, 10, catalog.ResourceListings)
		assert.Equal(t, 40, info.Percent)
		assert.False(t, info.NearLimit)
		assert.False(t, info.AtLimit)
	})

	t.Run("eighty percent flips the warning", func(t *testing.T) {
		t.Parallel()

		info := usage(t, 20, catalog.ResourceListings)
		assert.Equal(t, 80, info.Percent)
		assert.True(t, info.NearLimit)
		assert.False(t, info.AtLimit)
	})

	t.Run("at the limit", func(t *testing.T) {
		t.Parallel()

		info := usage(t, 25, catalog.ResourceListings)
		assert.Equal(t, 100, info.Percent)
		assert.True(t, info.AtLimit)
	})

	t.Run("over the limit caps at one hundred", func(t *testing.T) {
		t.Parallel()

		info := usage(t, 40, catalog.ResourceListings)
		assert.Equal(t, 100, info.Percent)
		assert.True(t, info.AtLimit)
	})

	t.Run("unlimited reports negative percent", func(t *testing.T) {
		t.Parallel()

		info := usage(t, 40, catalog.ResourceTeamMembers)
		assert.Equal(t, -1, info.Percent)
		assert.False(t, info.NearLimit)
		assert.False(t, info.AtLimit)
	})
}

func TestResolver_HasFeature(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	accountID := uuid.New()
	subs := new(mockSubStore)
	subs.On("Get", ctx, accountID).Return(proSub(accountID, subscription.StatusActive), nil)

	r := newResolver(t, subs, verified(true), 0)

	assert.True(t, r.HasFeature(ctx, accountID, catalog.FeatureAnalytics))
	assert.False(t, r.HasFeature(ctx, accountID, catalog.FeatureVirtualTours))

	t.Run("fails closed on store errors", func(t *testing.T) {
		t.Parallel()

		broken := new(mockSubStore)
		ghost := uuid.New()
		broken.On("Get", ctx, ghost).Return(nil, errors.New("db down"))

		r := newResolver(t, broken, verified(true), 0)
		assert.False(t, r.HasFeature(ctx, ghost, catalog.FeatureAnalytics))
	})
}

func TestWithCounter_DuplicatePanics(t *testing.T) {
	t.Parallel()

	subs := new(mockSubStore)
	assert.Panics(t, func() {
		entitlement.NewResolver(testCatalog(t), subs, verified(true),
			entitlement.WithCounter(catalog.ResourceListings, fixedCounter(0)),
			entitlement.WithCounter(catalog.ResourceListings, fixedCounter(0)))
	})
}
