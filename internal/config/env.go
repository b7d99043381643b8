package config

import (
	"os"
	"strings"
)

// Environment variables that override file values. Secrets usually come from
// here rather than the config file.
const (
	EnvStoreURL     = "WC_URL"
	EnvStoreKey     = "WC_KEY"
	EnvStoreSecret  = "WC_SECRET"
	EnvBotToken     = "TELEGRAM_TOKEN"
	EnvChatIDs      = "TELEGRAM_CHAT_IDS"
	EnvPollInterval = "POLL_INTERVAL"
)

// ApplyEnv overlays non-empty environment variables onto c.
func ApplyEnv(c *Config, lookup func(string) (string, bool)) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(k string) (string, bool) {
		v, ok := lookup(k)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	if v, ok := get(EnvStoreURL); ok {
		c.Store.URL = v
	}
	if v, ok := get(EnvStoreKey); ok {
		c.Store.Key = v
	}
	if v, ok := get(EnvStoreSecret); ok {
		c.Store.Secret = v
	}
	if v, ok := get(EnvBotToken); ok {
		c.Telegram.Token = v
	}
	if v, ok := get(EnvChatIDs); ok {
		c.Telegram.ChatIDs = SplitChatIDs(v)
	}
	if v, ok := get(EnvPollInterval); ok {
		c.Poller.Interval = v
	}
}
