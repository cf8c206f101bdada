// Package webhooks notifies external systems about content changes.
// Administrators register subscriptions with a target URL, a shared
// secret and an event filter; matching events are delivered as signed
// JSON POSTs with retries on a background worker pool.
package webhooks
