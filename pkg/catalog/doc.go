// Package catalog provides an immutable read view of the marketplace's
// subscription plans: tier pricing per billing cycle, listing and feature
// limits, and boolean capabilities.
//
// Plans are loaded once from a Source (in-memory for tests, YAML for
// deployments) and validated at startup. A published plan is never mutated
// in place; pricing revisions are new plan rows with the superseded row
// deactivated via the Active flag.
//
//	cat, err := catalog.New(ctx, catalog.NewYAMLSource("config/plans.yaml"))
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	plan, err := cat.Get("price_pro_monthly")
//	price := plan.PriceFor(catalog.CycleYearly) // falls back to monthly x 12
package catalog
