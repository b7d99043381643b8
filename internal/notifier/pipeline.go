package notifier

import (
	"context"
	"time"

	"ordercast/internal/metrics"
	"ordercast/internal/order"
	"ordercast/pkg/logx"
)

// Dispatch is the fan-out step of the pipeline.
type Dispatch interface {
	Dispatch(ctx context.Context, text string) Report
}

// Pipeline runs normalize, format and dispatch for one raw order.
type Pipeline struct {
	log      logx.Logger
	dispatch Dispatch
	metrics  *metrics.Metrics
}

func NewPipeline(d Dispatch, log logx.Logger, m *metrics.Metrics) *Pipeline {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Pipeline{log: log, dispatch: d, metrics: m}
}

// Process never fails: malformed order fields degrade to defaults and
// delivery failures are reported, not returned.
func (p *Pipeline) Process(ctx context.Context, raw order.RawOrder) (order.Order, Report) {
	start := time.Now()
	o := order.Normalize(raw)
	text := order.Format(o)
	rep := p.dispatch.Dispatch(ctx, text)
	p.metrics.OrderNotified()

	p.log.Info("order processed",
		logx.Int64("order_id", o.ID),
		logx.Int("items", len(o.Items)),
		logx.Int("sent", rep.Count(Sent)),
		logx.Int("rejected", rep.Count(Rejected)),
		logx.Int("failed", rep.Count(TransientFailure)),
		logx.Duration("took", time.Since(start)),
	)
	return o, rep
}
