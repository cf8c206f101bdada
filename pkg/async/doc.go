// Package async provides guarded goroutine helpers: fire-and-forget
// tasks with panic recovery and timeouts, and a bounded worker pool used
// for outbound webhook deliveries.
package async
