package notifier

import (
	"time"

	kit "ordercast/internal/transport"
)

// Config controls the dispatcher.
type Config struct {
	Destinations []kit.ChatTarget
	RatePerSec   int
	SendTimeout  time.Duration
}

type Outcome int

const (
	Sent Outcome = iota
	Rejected
	TransientFailure
)

func (o Outcome) String() string {
	switch o {
	case Sent:
		return "sent"
	case Rejected:
		return "rejected"
	case TransientFailure:
		return "transient_failure"
	default:
		return "unknown"
	}
}

// DeliveryResult is the outcome for a single destination.
type DeliveryResult struct {
	Destination kit.ChatTarget
	Outcome     Outcome
	Reason      string
	Err         error
	Took        time.Duration
}

// Report holds one result per configured destination, in configured order.
type Report struct {
	Results []DeliveryResult
}

func (r Report) Count(o Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}

// For returns the result for a destination.
func (r Report) For(dest kit.ChatTarget) (DeliveryResult, bool) {
	for _, res := range r.Results {
		if res.Destination == dest {
			return res, true
		}
	}
	return DeliveryResult{}, false
}
