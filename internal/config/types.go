package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	ModeWebhook = "webhook"
	ModePoll    = "poll"
)

type Config struct {
	Mode     string         `json:"mode"`
	Store    StoreConfig    `json:"store"`
	Telegram TelegramConfig `json:"telegram"`
	Dispatch DispatchConfig `json:"dispatch"`
	Webhook  WebhookConfig  `json:"webhook"`
	Poller   PollerConfig   `json:"poller"`
	Metrics  MetricsConfig  `json:"metrics"`
	Logging  LoggingConfig  `json:"logging"`
}

// StoreConfig points at the WooCommerce REST API.
type StoreConfig struct {
	URL     string `json:"url"`
	Key     string `json:"key"`
	Secret  string `json:"secret"`
	Version string `json:"version"`
	Timeout string `json:"timeout"`
}

type TelegramConfig struct {
	Token       string  `json:"token"`
	ChatIDs     ChatIDs `json:"chat_ids"`
	PollTimeout string  `json:"poll_timeout"`
	// Commands enables /start, /testapi and /status. Defaults to on in poll mode.
	Commands *bool `json:"commands,omitempty"`
}

type DispatchConfig struct {
	RatePerSec  int    `json:"rate_per_sec"`
	SendTimeout string `json:"send_timeout"`
}

type WebhookConfig struct {
	Addr         string `json:"addr"`
	Path         string `json:"path"`
	MaxBodyBytes int64  `json:"max_body_bytes"`
	DebugPath    string `json:"debug_path"`
	DebugFile    string `json:"debug_file"`
}

type PollerConfig struct {
	Interval   string `json:"interval"`
	Lookback   string `json:"lookback"`
	SendPause  string `json:"send_pause"`
	FirstDelay string `json:"first_delay"`
	PerPage    int    `json:"per_page"`
}

type MetricsConfig struct {
	Enabled bool `json:"enabled"`
}

type LoggingConfig struct {
	Level   string     `json:"level"`
	Console bool       `json:"console"`
	File    FileConfig `json:"file"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// CommandsEnabled reports whether the bot should answer commands.
func (c *Config) CommandsEnabled() bool {
	if c.Telegram.Commands != nil {
		return *c.Telegram.Commands
	}
	return c.Mode == ModePoll
}

// ChatIDs accepts a list of strings or numbers, or a single comma-separated
// string, so that both `chat_ids: [-100123]` and `chat_ids: "-100123,@shop"`
// work.
type ChatIDs []string

func (c *ChatIDs) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*c = nil
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = SplitChatIDs(s)
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("chat_ids: want list or comma-separated string: %w", err)
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		var s string
		if err := json.Unmarshal(r, &s); err == nil {
			out = append(out, strings.TrimSpace(s))
			continue
		}
		var n json.Number
		if err := json.Unmarshal(r, &n); err != nil {
			return fmt.Errorf("chat_ids: invalid entry %s", r)
		}
		out = append(out, n.String())
	}
	*c = out
	return nil
}

// SplitChatIDs splits a comma-separated list, dropping blanks.
func SplitChatIDs(s string) ChatIDs {
	var out ChatIDs
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
