package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"ordercast/internal/task/scheduler"
	kit "ordercast/internal/transport"
)

// Resolved holds typed values derived from a Config.
type Resolved struct {
	Destinations []kit.ChatTarget

	StoreTimeout time.Duration
	PollTimeout  time.Duration
	SendTimeout  time.Duration
	Schedule     scheduler.ParsedSpec
	Lookback     time.Duration
	SendPause    time.Duration
	FirstDelay   time.Duration
	WebhookPath  string
	DebugPath    string
}

// Validate reports every problem in c, joined.
func Validate(c *Config) error {
	_, err := Resolve(c)
	return err
}

// Resolve parses and checks c. Defaults must already be applied.
func Resolve(c *Config) (*Resolved, error) {
	if c == nil {
		return nil, errors.New("config is nil")
	}
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }
	dur := func(path, raw string) time.Duration {
		d, err := ParseDurationField(path, raw)
		if err != nil {
			errs = append(errs, err)
		}
		return d
	}

	r := &Resolved{}

	switch c.Mode {
	case ModeWebhook, ModePoll:
	default:
		add("mode: must be %q or %q, got %q", ModeWebhook, ModePoll, c.Mode)
	}

	if strings.TrimSpace(c.Telegram.Token) == "" {
		add("telegram.token: required (or set %s)", EnvBotToken)
	}
	seen := map[kit.ChatTarget]bool{}
	for i, raw := range c.Telegram.ChatIDs {
		t, err := kit.ParseChatTarget(raw)
		if err != nil {
			add("telegram.chat_ids[%d]: %v", i, err)
			continue
		}
		if seen[t] {
			add("telegram.chat_ids[%d]: duplicate destination %s", i, t)
			continue
		}
		seen[t] = true
		r.Destinations = append(r.Destinations, t)
	}
	r.PollTimeout = dur("telegram.poll_timeout", c.Telegram.PollTimeout)

	needStore := c.Mode == ModePoll || anyStoreField(c.Store)
	if needStore {
		if u, err := url.Parse(strings.TrimSpace(c.Store.URL)); err != nil || u.Scheme == "" || u.Host == "" {
			add("store.url: required absolute URL (or set %s)", EnvStoreURL)
		}
		if strings.TrimSpace(c.Store.Key) == "" {
			add("store.key: required (or set %s)", EnvStoreKey)
		}
		if strings.TrimSpace(c.Store.Secret) == "" {
			add("store.secret: required (or set %s)", EnvStoreSecret)
		}
	}
	r.StoreTimeout = dur("store.timeout", c.Store.Timeout)

	if c.Dispatch.RatePerSec < 1 || c.Dispatch.RatePerSec > 30 {
		add("dispatch.rate_per_sec: must be between 1 and 30, got %d", c.Dispatch.RatePerSec)
	}
	r.SendTimeout = dur("dispatch.send_timeout", c.Dispatch.SendTimeout)

	r.WebhookPath = c.Webhook.Path
	if !strings.HasPrefix(r.WebhookPath, "/") {
		add("webhook.path: must start with '/'")
	}
	r.DebugPath = strings.TrimSpace(c.Webhook.DebugPath)
	if r.DebugPath != "" {
		if !strings.HasPrefix(r.DebugPath, "/") {
			add("webhook.debug_path: must start with '/'")
		} else if r.DebugPath == r.WebhookPath {
			add("webhook.debug_path: must differ from webhook.path")
		}
	}

	spec, err := scheduler.ParseSchedule(c.Poller.Interval)
	if err != nil {
		add("poller.interval: %v", err)
	}
	r.Schedule = spec
	r.Lookback = dur("poller.lookback", c.Poller.Lookback)
	r.SendPause = dur("poller.send_pause", c.Poller.SendPause)
	r.FirstDelay = dur("poller.first_delay", c.Poller.FirstDelay)
	if err == nil && c.Mode == ModePoll {
		if period := spec.Period(time.Now()); r.Lookback <= period {
			add("poller.lookback: %s must exceed the poll interval (%s)", r.Lookback, period)
		}
	}
	if c.Poller.PerPage > 100 {
		add("poller.per_page: store caps pages at 100, got %d", c.Poller.PerPage)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		add("logging.level: unknown level %q", c.Logging.Level)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return r, nil
}

func anyStoreField(s StoreConfig) bool {
	return strings.TrimSpace(s.URL) != "" || strings.TrimSpace(s.Key) != "" || strings.TrimSpace(s.Secret) != ""
}
