// Package poller periodically queries the store for orders newer than the
// watermark and pushes each one through the notification pipeline.
package poller

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"time"

	"ordercast/internal/metrics"
	"ordercast/internal/notifier"
	"ordercast/internal/order"
	"ordercast/internal/store"
	"ordercast/internal/task/scheduler"
	"ordercast/pkg/logx"
)

// Store is the part of the store client the poller needs.
type Store interface {
	ListOrders(ctx context.Context, p store.ListParams) ([]order.RawOrder, error)
	Latest(ctx context.Context) (order.RawOrder, error)
}

// Processor runs the notification pipeline for one order.
type Processor interface {
	Process(ctx context.Context, raw order.RawOrder) (order.Order, notifier.Report)
}

type Config struct {
	Schedule   scheduler.ParsedSpec
	Lookback   time.Duration
	SendPause  time.Duration
	FirstDelay time.Duration
	PerPage    int
}

type TickResult struct {
	Fetched   int
	New       int
	Processed int
	Watermark int64
	Err       error
}

type Poller struct {
	cfg     Config
	log     logx.Logger
	store   Store
	proc    Processor
	metrics *metrics.Metrics
	wm      *Watermark
	sched   *scheduler.Service

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, st Store, proc Processor, log logx.Logger, m *metrics.Metrics) *Poller {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 24 * time.Hour
	}
	return &Poller{
		cfg:     cfg,
		log:     log,
		store:   st,
		proc:    proc,
		metrics: m,
		wm:      NewWatermark(0),
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

func (p *Poller) Watermark() int64 { return p.wm.Get() }

// Init seeds the watermark from the newest order so only orders created after
// startup are notified.
func (p *Poller) Init(ctx context.Context) error {
	latest, err := p.store.Latest(ctx)
	if err != nil {
		return fmt.Errorf("fetch latest order: %w", err)
	}
	if latest != nil {
		p.wm.Advance(order.ID(latest))
	}
	p.metrics.SetWatermark(p.wm.Get())
	p.log.Info("watermark initialized", logx.Int64("watermark", p.wm.Get()))
	return nil
}

// Tick runs one poll cycle. It never panics; failures end the tick early and
// leave the watermark at the last order that was processed.
func (p *Poller) Tick(ctx context.Context) (res TickResult) {
	start := p.now()
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("panic in poll tick: %v", r)
			p.log.Error("poll tick panic", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
		res.Watermark = p.wm.Get()
		p.metrics.SetWatermark(res.Watermark)
		p.metrics.PollTick(tickLabel(res))
	}()

	wm := p.wm.Get()
	p.log.Debug("checking for new orders", logx.Int64("watermark", wm))

	orders, err := p.store.ListOrders(ctx, store.ListParams{
		After:   start.Add(-p.cfg.Lookback),
		OrderBy: "id",
		Order:   "asc",
		PerPage: p.cfg.PerPage,
	})
	if err != nil {
		res.Err = fmt.Errorf("list orders: %w", err)
		p.log.Error("order query failed", logx.Err(err))
		return res
	}
	res.Fetched = len(orders)

	type pending struct {
		id  int64
		raw order.RawOrder
	}
	var fresh []pending
	for _, raw := range orders {
		if id := order.ID(raw); id > wm {
			fresh = append(fresh, pending{id: id, raw: raw})
		}
	}
	sort.SliceStable(fresh, func(i, j int) bool { return fresh[i].id < fresh[j].id })
	res.New = len(fresh)
	if len(fresh) == 0 {
		p.log.Debug("no new orders", logx.Int("fetched", res.Fetched))
		return res
	}
	p.log.Info("new orders found", logx.Int("count", len(fresh)))

	for i, o := range fresh {
		if i > 0 {
			if err := p.sleep(ctx, p.cfg.SendPause); err != nil {
				res.Err = err
				return res
			}
		}
		if err := ctx.Err(); err != nil {
			res.Err = err
			return res
		}
		p.proc.Process(ctx, o.raw)
		p.wm.Advance(o.id)
		res.Processed++
	}
	p.log.Info("poll tick done",
		logx.Int("processed", res.Processed),
		logx.Int64("watermark", p.wm.Get()),
		logx.Duration("took", p.now().Sub(start)),
	)
	return res
}

// Start schedules Tick. Ticks never overlap.
func (p *Poller) Start(ctx context.Context) error {
	p.sched = scheduler.New(p.log.With(logx.String("comp", "scheduler")), nil)
	if err := p.sched.Add("poll-orders", p.cfg.Schedule, p.cfg.FirstDelay, func(ctx context.Context) {
		p.Tick(ctx)
	}); err != nil {
		return err
	}
	p.sched.Start(ctx)
	return nil
}

// Stop waits for a running tick until ctx expires.
func (p *Poller) Stop(ctx context.Context) {
	if p.sched != nil {
		p.sched.Stop(ctx)
	}
}

func tickLabel(res TickResult) string {
	switch {
	case res.Err != nil && (errors.Is(res.Err, context.Canceled) || errors.Is(res.Err, context.DeadlineExceeded)):
		return "canceled"
	case res.Err != nil:
		return "error"
	case res.Processed > 0:
		return "notified"
	default:
		return "empty"
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
