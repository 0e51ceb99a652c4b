package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLicense_Capacity(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name      string
		license   License
		inactive  bool
		remaining *int
		available int
	}{
		{
			name:      "concurrency limited",
			license:   License{Status: LicenseStatusAvailable, Concurrency: intPtr(3), CheckoutsAvailable: 2},
			remaining: intPtr(3),
			available: 2,
		},
		{
			name:      "loans bounded by checkouts left",
			license:   License{Status: LicenseStatusAvailable, Concurrency: intPtr(5), CheckoutsLeft: intPtr(2), CheckoutsAvailable: 2},
			remaining: intPtr(2),
			available: 2,
		},
		{
			name:      "loan limited without concurrency",
			license:   License{Status: LicenseStatusAvailable, CheckoutsLeft: intPtr(7), CheckoutsAvailable: 1},
			remaining: intPtr(7),
			available: 1,
		},
		{
			name:      "unlimited",
			license:   License{Status: LicenseStatusAvailable, CheckoutsAvailable: 1, Expires: &future},
			remaining: nil,
			available: 1,
		},
		{
			name:      "no checkouts left",
			license:   License{Status: LicenseStatusAvailable, Concurrency: intPtr(1), CheckoutsLeft: intPtr(0), CheckoutsAvailable: 1},
			inactive:  true,
			remaining: intPtr(0),
		},
		{
			name:      "expired",
			license:   License{Status: LicenseStatusAvailable, Concurrency: intPtr(1), CheckoutsAvailable: 1, Expires: &past},
			inactive:  true,
			remaining: intPtr(0),
		},
		{
			name:      "withdrawn by distributor",
			license:   License{Status: LicenseStatusUnavailable, Concurrency: intPtr(1), CheckoutsAvailable: 1},
			inactive:  true,
			remaining: intPtr(0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.inactive, tt.license.IsInactive(now))
			assert.Equal(t, tt.remaining, tt.license.TotalRemainingLoans(now))
			assert.Equal(t, tt.available, tt.license.CurrentlyAvailableLoans(now))
		})
	}
}

func TestLicense_Slots(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("checkout then checkin restores the slot", func(t *testing.T) {
		t.Parallel()
		l := License{Status: LicenseStatusAvailable, Concurrency: intPtr(2), CheckoutsLeft: intPtr(10), CheckoutsAvailable: 2}

		require.True(t, l.TakeSlot(now))
		l.ConsumeCheckout()
		assert.Equal(t, 1, l.CheckoutsAvailable)
		assert.Equal(t, 9, *l.CheckoutsLeft)

		require.True(t, l.ReleaseSlot(now))
		assert.Equal(t, 2, l.CheckoutsAvailable)
	})

	t.Run("release never exceeds checkouts left", func(t *testing.T) {
		t.Parallel()
		l := License{Status: LicenseStatusAvailable, Concurrency: intPtr(5), CheckoutsLeft: intPtr(1), CheckoutsAvailable: 1}

		require.True(t, l.ReleaseSlot(now))
		assert.Equal(t, 1, l.CheckoutsAvailable)
	})

	t.Run("no slot to take", func(t *testing.T) {
		t.Parallel()
		l := License{Status: LicenseStatusAvailable, Concurrency: intPtr(1)}
		assert.False(t, l.TakeSlot(now))
		assert.Equal(t, 0, l.CheckoutsAvailable)
	})

	t.Run("last checkout deactivates", func(t *testing.T) {
		t.Parallel()
		l := License{Status: LicenseStatusAvailable, Concurrency: intPtr(1), CheckoutsLeft: intPtr(1), CheckoutsAvailable: 1}

		require.True(t, l.TakeSlot(now))
		l.ConsumeCheckout()
		assert.True(t, l.IsInactive(now))
		assert.False(t, l.ReleaseSlot(now))
	})
}

func TestKind(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("%w: checkout: %w", ErrCannotLoan, errors.New("boom"))
	assert.Equal(t, "cannot_loan", Kind(wrapped))
	assert.Equal(t, "internal", Kind(errors.New("boom")))
	assert.Equal(t, "", Kind(nil))

	assert.True(t, IsRetryable(fmt.Errorf("fetch: %w", ErrIntegrationTimeout)))
	assert.False(t, IsRetryable(ErrBadResponse))
}
