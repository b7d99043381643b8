package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"ordercast/internal/metrics"
	kit "ordercast/internal/transport"
	"ordercast/pkg/logx"
	"ordercast/pkg/mdv2"
)

// Dispatcher sends one message to every configured destination.
// It is safe for concurrent use; the destination set is fixed at construction.
type Dispatcher struct {
	log     logx.Logger
	sender  kit.Sender
	metrics *metrics.Metrics

	dests       []kit.ChatTarget
	limiter     *rate.Limiter
	sendTimeout time.Duration
}

func NewDispatcher(cfg Config, sender kit.Sender, log logx.Logger, m *metrics.Metrics) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 25
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	return &Dispatcher{
		log:     log,
		sender:  sender,
		metrics: m,
		dests:   append([]kit.ChatTarget(nil), cfg.Destinations...),
		// Token bucket: burst = rate per sec, so one order fan-out never waits.
		limiter:     rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		sendTimeout: cfg.SendTimeout,
	}
}

// Destinations returns a copy of the configured destination set.
func (d *Dispatcher) Destinations() []kit.ChatTarget {
	return append([]kit.ChatTarget(nil), d.dests...)
}

// Dispatch sends text to all destinations concurrently and waits for every
// attempt to settle.
func (d *Dispatcher) Dispatch(ctx context.Context, text string) Report {
	if len(d.dests) == 0 {
		d.log.Warn("no destinations configured; notification dropped")
		return Report{}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	results := make([]DeliveryResult, len(d.dests))
	var wg sync.WaitGroup
	for i, dest := range d.dests {
		wg.Add(1)
		go func(i int, dest kit.ChatTarget) {
			defer wg.Done()
			results[i] = d.deliver(ctx, dest, text)
		}(i, dest)
	}
	wg.Wait()

	rep := Report{Results: results}
	for _, res := range results {
		d.metrics.Delivery(res.Outcome.String())
		fields := []logx.Field{
			logx.String("chat_id", res.Destination.String()),
			logx.String("outcome", res.Outcome.String()),
			logx.Duration("took", res.Took),
		}
		switch res.Outcome {
		case Sent:
			d.log.Info("notification sent", fields...)
		case Rejected:
			d.log.Warn("destination rejected notification", append(fields, logx.Err(res.Err))...)
		default:
			d.log.Error("notification delivery failed", append(fields, logx.Err(res.Err))...)
		}
	}
	return rep
}

func (d *Dispatcher) deliver(ctx context.Context, dest kit.ChatTarget, text string) (res DeliveryResult) {
	start := time.Now()
	res.Destination = dest
	defer func() {
		if r := recover(); r != nil {
			res.Outcome = TransientFailure
			res.Err = fmt.Errorf("panic during send: %v", r)
			res.Reason = res.Err.Error()
		}
		res.Took = time.Since(start)
	}()

	if d.sender == nil {
		res.Outcome = TransientFailure
		res.Err = errors.New("no sender configured")
		res.Reason = res.Err.Error()
		return res
	}
	if err := d.limiter.Wait(ctx); err != nil {
		res.Outcome = TransientFailure
		res.Err = fmt.Errorf("rate limit wait: %w", err)
		res.Reason = res.Err.Error()
		return res
	}

	callCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()
	_, err := d.sender.SendText(callCtx, dest, text, &kit.SendOptions{ParseMode: mdv2.ParseMode, DisablePreview: true})
	switch {
	case err == nil:
		res.Outcome = Sent
	case errors.Is(err, kit.ErrDestinationRejected):
		res.Outcome = Rejected
		res.Err = err
		res.Reason = err.Error()
	default:
		res.Outcome = TransientFailure
		res.Err = err
		res.Reason = err.Error()
	}
	return res
}
