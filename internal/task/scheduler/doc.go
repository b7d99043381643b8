// Package scheduler triggers named jobs on a cron or fixed-interval schedule.
//
// Jobs never overlap with themselves: a trigger that fires while the previous
// run is still going is skipped. Stop waits for running jobs before returning.
package scheduler
