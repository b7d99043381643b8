package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ordercast/internal/notifier"
	"ordercast/internal/order"
	"ordercast/internal/store"
	"ordercast/pkg/logx"
)

type fakeStore struct {
	orders  []order.RawOrder
	latest  order.RawOrder
	listErr error
	params  store.ListParams
}

func (f *fakeStore) ListOrders(ctx context.Context, p store.ListParams) ([]order.RawOrder, error) {
	f.params = p
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.orders, nil
}

func (f *fakeStore) Latest(ctx context.Context) (order.RawOrder, error) {
	return f.latest, nil
}

type fakeProc struct {
	mu      sync.Mutex
	ids     []int64
	panicOn int64
}

func (f *fakeProc) Process(ctx context.Context, raw order.RawOrder) (order.Order, notifier.Report) {
	id := order.ID(raw)
	if id == f.panicOn {
		panic("formatter exploded")
	}
	f.mu.Lock()
	f.ids = append(f.ids, id)
	f.mu.Unlock()
	return order.Order{ID: id}, notifier.Report{}
}

func raws(ids ...float64) []order.RawOrder {
	out := make([]order.RawOrder, 0, len(ids))
	for _, id := range ids {
		out = append(out, order.RawOrder{"id": id})
	}
	return out
}

func newTestPoller(st Store, proc Processor, wm int64) *Poller {
	p := New(Config{Lookback: 24 * time.Hour, SendPause: time.Second}, st, proc, logx.Nop(), nil)
	p.wm = NewWatermark(wm)
	p.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return p
}

func TestTick_NotifiesOnlyNewOrdersInOrder(t *testing.T) {
	t.Parallel()

	st := &fakeStore{orders: raws(103, 98, 101)}
	proc := &fakeProc{}
	p := newTestPoller(st, proc, 100)
	now := time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	res := p.Tick(context.Background())
	if res.Err != nil {
		t.Fatalf("Tick err: %v", res.Err)
	}
	if len(proc.ids) != 2 || proc.ids[0] != 101 || proc.ids[1] != 103 {
		t.Fatalf("processed=%v want [101 103]", proc.ids)
	}
	if p.Watermark() != 103 || res.Watermark != 103 {
		t.Fatalf("watermark=%d want 103", p.Watermark())
	}
	if res.Fetched != 3 || res.New != 2 || res.Processed != 2 {
		t.Fatalf("result=%+v", res)
	}
	if !st.params.After.Equal(now.Add(-24*time.Hour)) || st.params.OrderBy != "id" || st.params.Order != "asc" {
		t.Fatalf("query params=%+v", st.params)
	}
}

func TestTick_QueryFailureKeepsWatermark(t *testing.T) {
	t.Parallel()

	st := &fakeStore{listErr: errors.New("503 service unavailable")}
	proc := &fakeProc{}
	p := newTestPoller(st, proc, 100)

	res := p.Tick(context.Background())
	if res.Err == nil {
		t.Fatal("expected tick error")
	}
	if len(proc.ids) != 0 {
		t.Fatalf("processed=%v want none", proc.ids)
	}
	if p.Watermark() != 100 {
		t.Fatalf("watermark=%d want 100", p.Watermark())
	}
}

func TestTick_PanicStopsTickAtLastProcessed(t *testing.T) {
	t.Parallel()

	st := &fakeStore{orders: raws(101, 102, 103)}
	proc := &fakeProc{panicOn: 102}
	p := newTestPoller(st, proc, 100)

	res := p.Tick(context.Background())
	if res.Err == nil {
		t.Fatal("expected panic to surface as error")
	}
	if p.Watermark() != 101 {
		t.Fatalf("watermark=%d want 101", p.Watermark())
	}
}

func TestTick_CanceledBetweenOrders(t *testing.T) {
	t.Parallel()

	st := &fakeStore{orders: raws(101, 102)}
	proc := &fakeProc{}
	p := newTestPoller(st, proc, 100)
	ctx, cancel := context.WithCancel(context.Background())
	p.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	res := p.Tick(ctx)
	if !errors.Is(res.Err, context.Canceled) {
		t.Fatalf("err=%v want canceled", res.Err)
	}
	if len(proc.ids) != 1 || p.Watermark() != 101 {
		t.Fatalf("processed=%v watermark=%d", proc.ids, p.Watermark())
	}
}

func TestInit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		latest order.RawOrder
		want   int64
	}{
		{name: "seeds from newest order", latest: order.RawOrder{"id": float64(57)}, want: 57},
		{name: "empty store", latest: nil, want: 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := New(Config{}, &fakeStore{latest: tt.latest}, &fakeProc{}, logx.Nop(), nil)
			if err := p.Init(context.Background()); err != nil {
				t.Fatalf("Init: %v", err)
			}
			if p.Watermark() != tt.want {
				t.Fatalf("watermark=%d want %d", p.Watermark(), tt.want)
			}
		})
	}
}
