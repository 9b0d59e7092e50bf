// Package billing mounts the subscription, plan-change, entitlement, and
// upsell services as a chi router, and provides the PostgreSQL-backed
// stores the services persist through.
//
// The module expects an authenticated actor in the request context (see
// pkg/actor); admins may act on another account via the account_id query
// parameter. The payment processor's webhook intake is mounted unauthenticated
// at /webhooks/paddle and relies on signature verification instead.
package billing
