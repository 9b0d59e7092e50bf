package billing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFeaturedUsage struct {
	gotSince time.Time
	count    int64
}

func (s *stubFeaturedUsage) CountFeaturedSince(_ context.Context, _ uuid.UUID, since time.Time) (int64, error) {
	s.gotSince = since
	return s.count, nil
}

func TestFeaturedThisMonthCounter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("counts from the start of the UTC month", func(t *testing.T) {
		t.Parallel()

		// A local-zone clock must not shift the month boundary.
		clock := func() time.Time {
			return time.Date(2026, 3, 1, 0, 30, 0, 0, time.FixedZone("CET", 3600))
		}
		usage := &stubFeaturedUsage{count: 3}

		counter := FeaturedThisMonthCounter(usage, clock)

		n, err := counter(ctx, uuid.New())
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
		// 00:30 CET on March 1st is still February in UTC.
		assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), usage.gotSince)
	})

	t.Run("nil clock falls back to the wall clock", func(t *testing.T) {
		t.Parallel()

		usage := &stubFeaturedUsage{count: 1}
		counter := FeaturedThisMonthCounter(usage, nil)

		n, err := counter(ctx, uuid.New())
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		assert.Equal(t, 1, usage.gotSince.Day())
		assert.Equal(t, time.UTC, usage.gotSince.Location())
	})
}
