package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ordercast/internal/store"
)

// StoreChecker reports the store's WooCommerce version.
type StoreChecker interface {
	SystemStatus(ctx context.Context) (string, error)
}

// Status is a point-in-time view of the relay for /status.
type Status struct {
	Mode         string
	Destinations int
	Watermark    int64
	Started      time.Time
}

func Start() Command {
	return Command{
		Name:        "start",
		Description: "greeting",
		Handle: func(ctx context.Context, req *Request) error {
			name := req.Message.FromFirstName
			if name == "" {
				name = "there"
			}
			return req.Reply(ctx, fmt.Sprintf(
				"Hi %s! I am your WooCommerce Order Bot.\n"+
					"I will notify you here about new orders.\n"+
					"Use /testapi to check the connection to your store.", name))
		},
	}
}

func TestAPI(st StoreChecker) Command {
	return Command{
		Name:        "testapi",
		Description: "check the store connection",
		Timeout:     45 * time.Second,
		Handle: func(ctx context.Context, req *Request) error {
			if err := req.Reply(ctx, "Connecting to WooCommerce API to test connection..."); err != nil {
				return err
			}
			version, err := st.SystemStatus(ctx)
			var se *store.StatusError
			switch {
			case err == nil:
				return req.Reply(ctx, "✅ Connection successful!\nWooCommerce Version: "+version)
			case errors.As(err, &se):
				_ = req.Reply(ctx, fmt.Sprintf("❌ Connection failed. Status Code: %d", se.Code))
			default:
				_ = req.Reply(ctx, "❌ An error occurred during connection: "+err.Error())
			}
			return err
		},
	}
}

func StatusCmd(status func() Status) Command {
	return Command{
		Name:        "status",
		Description: "relay status",
		Handle: func(ctx context.Context, req *Request) error {
			s := status()
			var b strings.Builder
			fmt.Fprintf(&b, "Mode: %s\n", s.Mode)
			fmt.Fprintf(&b, "Destinations: %d\n", s.Destinations)
			if s.Mode == "poll" {
				fmt.Fprintf(&b, "Last notified order: %d\n", s.Watermark)
			}
			if !s.Started.IsZero() {
				fmt.Fprintf(&b, "Uptime: %s", time.Since(s.Started).Truncate(time.Second))
			}
			return req.Reply(ctx, strings.TrimRight(b.String(), "\n"))
		},
	}
}
