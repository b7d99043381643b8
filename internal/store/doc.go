// Package store is a small WooCommerce REST API client covering the calls the
// relay needs: listing orders, fetching the newest order and a connectivity
// check. Requests go through a circuit breaker so an unreachable store does
// not get hammered on every poll tick.
package store
