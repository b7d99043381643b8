// Package notifier fans a formatted order notification out to the configured
// chat destinations.
//
// # Delivery
//
// Every destination is attempted independently and concurrently; a failure
// for one never blocks or cancels the others. Sends share a token-bucket
// limiter so bursts stay under the chat platform's global rate limit, and
// each send is bounded by its own timeout.
//
// # Reporting
//
// Dispatch never returns an error. It returns a Report with one
// DeliveryResult per destination, in configured order, which callers log.
// Nothing is retried here: retry belongs to whoever triggered the pipeline.
package notifier
