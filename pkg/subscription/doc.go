// Package subscription owns the authoritative subscription lifecycle for
// the marketplace: the stored subscription row, the legal transitions
// between its states, and the reconciliation of local state against the
// payment processor.
//
// # State model
//
// Stored statuses are trialing, active, past_due, suspended and canceled.
// Expiry is never stored: EffectiveStatus derives it at read time from the
// cancel flag and the period bounds, because the processor's status webhook
// can lag a period boundary. Every consumer of subscription state goes
// through that one function.
//
// The Lifecycle machine is a stateless transition table: the subscription
// row is the state, the machine only validates which status an event leads
// to from it. Illegal events surface as *TransitionError, never panics.
//
// # Source of truth
//
// The payment processor is authoritative. Webhook events always overwrite
// local fields (last-writer-wins, webhook considered newer than any cached
// value) and SyncStatus pulls the processor view on demand. Duplicate
// webhook deliveries are dropped through a Deduper keyed by provider event
// ID; deliveries referencing unknown subscriptions are logged and dropped.
//
// A Paddle implementation of BillingProvider is included; the interface
// keeps the rest of the core provider-agnostic.
package subscription
