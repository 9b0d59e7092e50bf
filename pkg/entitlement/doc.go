// Package entitlement decides whether an account may perform a gated
// marketplace action (publish a listing, feature a listing, add a team
// member) and how close the account is to its plan limits.
//
// Three gates apply independently to every check, each with its own reason
// so the caller can route the user correctly: subscription standing
// (derived status, so a lapsed period gates immediately even if the status
// webhook is late), account verification, and the plan's resource limit.
//
// Usage counting is delegated to CounterFunc callbacks registered per
// resource; counts live outside this subsystem and are recomputed on every
// read, never cached here.
//
//	resolver := entitlement.NewResolver(cat, store, verifier,
//		entitlement.WithCounter(catalog.ResourceListings, countActiveListings),
//	)
//
//	d, err := resolver.CanCreate(ctx, accountID, catalog.ResourceListings)
//	if err == nil && !d.CanCreate {
//		// d.Reason tells the UI where to send the user
//	}
package entitlement
