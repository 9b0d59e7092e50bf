// Package upsell manages time-boxed and recurring add-on grants: featured
// listing slots and other extras purchased on top of a subscription.
//
// Grants are independent of plan changes but gated by subscription
// activity: purchase requires a strictly active (not merely trialing)
// subscription. Cancelling a recurring grant only disables auto-renew; the
// capability stays usable until the end date. Featured-listing grants are
// leases with a hard end date, and an elapsed end date means inactive no
// matter what status the row still stores.
package upsell
