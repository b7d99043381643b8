// Package app wires configuration, transport, pipeline and ingress together
// and owns the process lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ordercast/internal/commands"
	"ordercast/internal/config"
	"ordercast/internal/metrics"
	"ordercast/internal/notifier"
	"ordercast/internal/observability/httpserver"
	"ordercast/internal/poller"
	rtsup "ordercast/internal/runtime/supervisor"
	"ordercast/internal/store"
	kit "ordercast/internal/transport"
	telegram "ordercast/internal/transport/telegram/adapter"
	"ordercast/internal/webhook"
	"ordercast/pkg/logx"
	"ordercast/pkg/systemd"
)

type App struct {
	cfgm *config.Manager
	cfg  *config.Config
	res  *config.Resolved

	log  logx.Logger
	logs *logx.Service
	sup  *rtsup.Supervisor

	metrics  *metrics.Metrics
	adapter  kit.Adapter
	store    *store.Client
	pipeline *notifier.Pipeline
	poller   *poller.Poller
	http     *httpserver.Server
	router   *commands.Router

	started time.Time
	msgs    chan kit.Message
}

// Options lets tests replace the chat adapter.
type Options struct {
	Adapter kit.Adapter
}

// New loads and validates the configuration and builds every component.
// Nothing is started yet.
func New(cfgPath string, opt Options) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	res, err := config.Resolve(cfg)
	if err != nil {
		return nil, err
	}

	logs, log := logx.NewService(logConfig(cfg))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	a := &App{
		cfgm: cfgm,
		cfg:  cfg,
		res:  res,
		log:  log.With(logx.String("comp", "app")),
		logs: logs,
		msgs: make(chan kit.Message, 64),
	}
	if cfg.Metrics.Enabled {
		a.metrics = metrics.New()
	}

	a.adapter = opt.Adapter
	if a.adapter == nil {
		ad, err := telegram.New(telegram.Config{
			Token:       cfg.Telegram.Token,
			PollTimeout: res.PollTimeout,
			SendTimeout: res.SendTimeout,
		}, log.With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		a.adapter = ad
	}

	if strings.TrimSpace(cfg.Store.URL) != "" {
		a.store, err = store.New(store.Config{
			URL:     cfg.Store.URL,
			Key:     cfg.Store.Key,
			Secret:  cfg.Store.Secret,
			Version: cfg.Store.Version,
			Timeout: res.StoreTimeout,
		}, log.With(logx.String("comp", "store")))
		if err != nil {
			return nil, err
		}
	}

	dispatcher := notifier.NewDispatcher(notifier.Config{
		Destinations: res.Destinations,
		RatePerSec:   cfg.Dispatch.RatePerSec,
		SendTimeout:  res.SendTimeout,
	}, a.adapter, log.With(logx.String("comp", "dispatcher")), a.metrics)
	a.pipeline = notifier.NewPipeline(dispatcher, log.With(logx.String("comp", "pipeline")), a.metrics)

	if cfg.Mode == config.ModePoll {
		a.poller = poller.New(poller.Config{
			Schedule:   res.Schedule,
			Lookback:   res.Lookback,
			SendPause:  res.SendPause,
			FirstDelay: res.FirstDelay,
			PerPage:    cfg.Poller.PerPage,
		}, a.store, a.pipeline, log.With(logx.String("comp", "poller")), a.metrics)
	}

	if h := a.httpHandler(log); h != nil {
		a.http = httpserver.New(httpserver.Config{Addr: cfg.Webhook.Addr}, h, log.With(logx.String("comp", "http")))
	}

	if cfg.CommandsEnabled() {
		a.router = commands.NewRouter(a.adapter, log.With(logx.String("comp", "commands")))
		a.router.Register(commands.Start(), commands.StatusCmd(a.status))
		if a.store != nil {
			a.router.Register(commands.TestAPI(a.store))
		}
	}
	return a, nil
}

// httpHandler returns nil when nothing needs an HTTP listener.
func (a *App) httpHandler(log logx.Logger) http.Handler {
	cfg := a.cfg
	if cfg.Mode != config.ModeWebhook && !cfg.Metrics.Enabled {
		return nil
	}
	hlog := log.With(logx.String("comp", "webhook"))
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if a.metrics != nil {
		mux.Handle("/metrics", a.metrics.Handler())
	}
	if cfg.Mode == config.ModeWebhook {
		h := webhook.NewHandler(a.pipeline, cfg.Webhook.MaxBodyBytes, hlog, a.metrics)
		mux.Handle(a.res.WebhookPath, webhook.Instrument("webhook", h, hlog, a.metrics))
		if a.res.DebugPath != "" {
			d := webhook.NewDebugCatcher(cfg.Webhook.DebugFile, cfg.Webhook.MaxBodyBytes, hlog)
			mux.Handle(a.res.DebugPath, webhook.Instrument("debug", d, hlog, a.metrics))
		}
	}
	return mux
}

func (a *App) status() commands.Status {
	s := commands.Status{
		Mode:         a.cfg.Mode,
		Destinations: len(a.res.Destinations),
		Started:      a.started,
	}
	if a.poller != nil {
		s.Watermark = a.poller.Watermark()
	}
	return s
}

// HTTPAddr returns the bound HTTP address, or "" when no listener runs.
func (a *App) HTTPAddr() string {
	if a.http == nil {
		return ""
	}
	return a.http.Addr()
}

// Done is closed when the app stops or a component fails fatally.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start brings up the configured ingress. Failing to seed the poll
// watermark is fatal.
func (a *App) Start(ctx context.Context) error {
	a.started = time.Now()
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	if len(a.res.Destinations) == 0 {
		a.log.Warn("no chat destinations configured; notifications will be dropped")
	}

	if a.poller != nil {
		initCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
		err := a.poller.Init(initCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("poller init: %w", err)
		}
	}

	if a.router != nil {
		if err := a.adapter.Start(a.sup.Context(), a.msgs); err != nil {
			return fmt.Errorf("telegram start: %w", err)
		}
		a.sup.Go("commands.dispatch", func(c context.Context) error {
			return a.router.DispatchLoop(c, a.msgs)
		})
	}

	if a.http != nil {
		a.http.Start(a.sup.Context())
		select {
		case <-a.http.Ready():
		case <-time.After(5 * time.Second):
			a.log.Warn("http listener not ready yet; still retrying", logx.String("addr", a.cfg.Webhook.Addr))
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if a.poller != nil {
		if err := a.poller.Start(a.sup.Context()); err != nil {
			return fmt.Errorf("poller start: %w", err)
		}
	}

	a.sup.Go0("config.watch", func(c context.Context) {
		if err := a.cfgm.Watch(c); err != nil {
			a.log.Warn("config watch disabled", logx.Err(err))
		}
	})
	a.sup.Go0("config.reload", a.reloadLoop)

	if ok, err := systemd.Ready(); err != nil {
		a.log.Warn("sd_notify READY failed", logx.Err(err))
	} else if ok {
		a.log.Debug("notified systemd: ready")
	}
	if iv := systemd.WatchdogInterval(); iv > 0 {
		a.sup.Go0("systemd.watchdog", func(c context.Context) {
			t := time.NewTicker(iv / 2)
			defer t.Stop()
			for {
				select {
				case <-c.Done():
					return
				case <-t.C:
					_, _ = systemd.Watchdog()
				}
			}
		})
	}

	a.log.Info("started",
		logx.String("mode", a.cfg.Mode),
		logx.Int("destinations", len(a.res.Destinations)),
		logx.Bool("commands", a.router != nil),
		logx.Bool("metrics", a.metrics != nil),
	)
	return nil
}

// reloadLoop applies logging changes live and flags everything else as
// needing a restart.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(4)
	last := a.cfg
	for {
		select {
		case <-ctx.Done():
			return
		case next := <-sub:
			changed, attrs := config.SummarizeConfigChange(last, next)
			if len(changed) == 0 {
				continue
			}
			a.log.Info("config reloaded", append([]logx.Field{logx.Strs("changed", changed)}, attrs...)...)
			if last.Logging != next.Logging {
				a.logs.Apply(logConfig(next))
			}
			if pending := config.RestartRequired(changed); len(pending) > 0 {
				a.log.Warn("config sections changed; restart required to apply", logx.Strs("sections", pending))
			}
			last = next
		}
	}
}

// Stop shuts components down in reverse dependency order, letting a running
// poll tick or webhook request finish within ctx.
func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")
	_, _ = systemd.Stopping()

	step := func(name string, max time.Duration, fn func(context.Context)) {
		start := time.Now()
		c, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		fn(c)
		a.log.Debug("stop step done", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	if a.poller != nil {
		step("poller", 30*time.Second, a.poller.Stop)
	}
	if a.http != nil {
		step("http", 30*time.Second, a.http.Stop)
	}
	a.sup.Cancel()
	step("adapter", 3*time.Second, func(c context.Context) { _ = a.adapter.Stop(c) })

	var err error
	step("supervisor", 3*time.Second, func(c context.Context) {
		if werr := a.sup.Wait(c); werr != nil && !errors.Is(werr, context.Canceled) {
			err = werr
		}
	})
	a.log.Info("stopped")
	_ = a.logs.Close()
	return err
}

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}
