package config

import "strings"

// ApplyDefaults fills unset fields in place.
func ApplyDefaults(c *Config) {
	if strings.TrimSpace(c.Mode) == "" {
		c.Mode = ModePoll
	}
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	if c.Store.Version == "" {
		c.Store.Version = "wc/v3"
	}
	if c.Store.Timeout == "" {
		c.Store.Timeout = "30s"
	}
	if c.Telegram.PollTimeout == "" {
		c.Telegram.PollTimeout = "10s"
	}
	if c.Dispatch.RatePerSec <= 0 {
		c.Dispatch.RatePerSec = 25
	}
	if c.Dispatch.SendTimeout == "" {
		c.Dispatch.SendTimeout = "10s"
	}
	if c.Webhook.Addr == "" {
		c.Webhook.Addr = ":8080"
	}
	if c.Webhook.Path == "" {
		c.Webhook.Path = "/webhook"
	}
	if c.Webhook.MaxBodyBytes <= 0 {
		c.Webhook.MaxBodyBytes = 1 << 20
	}
	if c.Webhook.DebugPath != "" && c.Webhook.DebugFile == "" {
		c.Webhook.DebugFile = "webhook_log.txt"
	}
	if c.Poller.Interval == "" {
		c.Poller.Interval = "5m"
	}
	if c.Poller.Lookback == "" {
		c.Poller.Lookback = "24h"
	}
	if c.Poller.SendPause == "" {
		c.Poller.SendPause = "1s"
	}
	if c.Poller.FirstDelay == "" {
		c.Poller.FirstDelay = "10s"
	}
	if c.Poller.PerPage <= 0 {
		c.Poller.PerPage = 100
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}
