package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"ordercast/internal/order"
	"ordercast/pkg/logx"
)

// ErrUnexpectedResponse is returned when the store answers 2xx with a body of
// the wrong shape.
var ErrUnexpectedResponse = errors.New("unexpected store response")

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("store: http %d", e.Code)
	}
	return fmt.Sprintf("store: http %d: %s", e.Code, e.Body)
}

type Config struct {
	URL     string
	Key     string
	Secret  string
	Version string // default "wc/v3"
	Timeout time.Duration
}

// ListParams maps to the orders endpoint query string.
type ListParams struct {
	After   time.Time
	OrderBy string
	Order   string
	PerPage int
}

type Client struct {
	base    *url.URL
	key     string
	secret  string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	log     logx.Logger
}

const maxErrorBody = 512

func New(cfg Config, log logx.Logger) (*Client, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	raw := strings.TrimSpace(cfg.URL)
	if raw == "" {
		return nil, errors.New("store url is required")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid store url %q", cfg.URL)
	}
	version := strings.Trim(strings.TrimSpace(cfg.Version), "/")
	if version == "" {
		version = "wc/v3"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/wp-json/" + version + "/"
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	c := &Client{
		base:   u,
		key:    cfg.Key,
		secret: cfg.Secret,
		http:   &http.Client{Timeout: cfg.Timeout},
		log:    log,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "store",
		Timeout: time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Client errors are our fault, not the store's.
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return se.Code < 500
			}
			return err == nil || errors.Is(err, ErrUnexpectedResponse)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("store circuit breaker state changed",
				logx.String("from", from.String()),
				logx.String("to", to.String()),
			)
		},
	})
	return c, nil
}

// ListOrders returns every order matching p, following pagination.
func (c *Client) ListOrders(ctx context.Context, p ListParams) ([]order.RawOrder, error) {
	q := url.Values{}
	if !p.After.IsZero() {
		q.Set("after", p.After.UTC().Format(time.RFC3339))
	}
	if p.OrderBy != "" {
		q.Set("orderby", p.OrderBy)
	}
	if p.Order != "" {
		q.Set("order", p.Order)
	}
	perPage := p.PerPage
	if perPage <= 0 {
		perPage = 100
	}
	q.Set("per_page", strconv.Itoa(perPage))

	var all []order.RawOrder
	for page := 1; ; page++ {
		q.Set("page", strconv.Itoa(page))
		var batch []order.RawOrder
		hdr, err := c.get(ctx, "orders", q, &batch)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)

		total, _ := strconv.Atoi(hdr.Get("X-WP-TotalPages"))
		if page >= total || len(batch) == 0 {
			return all, nil
		}
	}
}

// Latest returns the newest order, or nil when the store has none.
func (c *Client) Latest(ctx context.Context) (order.RawOrder, error) {
	q := url.Values{}
	q.Set("per_page", "1")
	var batch []order.RawOrder
	if _, err := c.get(ctx, "orders", q, &batch); err != nil {
		return nil, err
	}
	if len(batch) == 0 {
		return nil, nil
	}
	return batch[0], nil
}

// SystemStatus returns the WooCommerce version reported by the store.
func (c *Client) SystemStatus(ctx context.Context) (string, error) {
	var st struct {
		Environment struct {
			Version string `json:"version"`
		} `json:"environment"`
	}
	if _, err := c.get(ctx, "system_status", nil, &st); err != nil {
		return "", err
	}
	if st.Environment.Version == "" {
		return "N/A", nil
	}
	return st.Environment.Version, nil
}

func (c *Client) get(ctx context.Context, endpoint string, q url.Values, out any) (http.Header, error) {
	res, err := c.breaker.Execute(func() (any, error) {
		return c.do(ctx, endpoint, q, out)
	})
	if err != nil {
		return nil, err
	}
	return res.(http.Header), nil
}

func (c *Client) do(ctx context.Context, endpoint string, q url.Values, out any) (http.Header, error) {
	u := c.base.JoinPath(endpoint)
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(c.key, c.secret)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "ordercast")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("store request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	c.log.Debug("store request",
		logx.String("endpoint", endpoint),
		logx.Int("status", resp.StatusCode),
		logx.Duration("took", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnexpectedResponse, endpoint, err)
	}
	return resp.Header, nil
}
