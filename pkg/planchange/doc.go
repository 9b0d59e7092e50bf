// Package planchange orchestrates upgrades, downgrades and billing-cycle
// switches: it combines the cooldown policy, the proration calculator and
// the payment processor into a previewable, idempotently committable
// operation.
//
// Preview is pure and reservation-free; callers may poll it. Commit never
// trusts a client-held preview: it re-validates the cooldown, re-reads the
// subscription (aborting if a suspension webhook won the race) and quotes
// fresh before charging. The processor charge carries an idempotency key
// stable for the billing period, substituting for mutual exclusion across
// network retries.
//
// Downgrades never charge mid-period and are rejected while a cancellation
// is scheduled. Every committed change appends exactly one ChangeRecord;
// admin-bypassed cooldowns are flagged on the record for downstream
// notification dispatch.
package planchange
