package planchange

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/propkit/billing/pkg/catalog"
)

// IdempotencyKey derives the processor idempotency key for a plan-change
// charge. The key is stable for a given account, target and billing period,
// so any retry of the same change within the period collapses into the
// original charge instead of double-billing.
func IdempotencyKey(accountID uuid.UUID, targetPlanID string, targetCycle catalog.BillingCycle, periodStart time.Time) string {
	h := sha256.Sum256([]byte(
		accountID.String() + "|" + targetPlanID + "|" + string(targetCycle) + "|" +
			strconv.FormatInt(periodStart.Unix(), 10),
	))
	return hex.EncodeToString(h[:])
}
