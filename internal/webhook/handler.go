package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"ordercast/internal/metrics"
	"ordercast/internal/notifier"
	"ordercast/internal/order"
	"ordercast/pkg/logx"
)

const (
	DefaultPath         = "/webhook"
	DefaultMaxBodyBytes = 1 << 20

	msgOK      = "Webhook received successfully"
	msgNotJSON = "Request does not appear to be JSON"
	msgBadJSON = "Failed to parse JSON body"
)

// Processor runs the notification pipeline for one order.
type Processor interface {
	Process(ctx context.Context, raw order.RawOrder) (order.Order, notifier.Report)
}

type Handler struct {
	log     logx.Logger
	proc    Processor
	metrics *metrics.Metrics
	maxBody int64
}

func NewHandler(proc Processor, maxBody int64, log logx.Logger, m *metrics.Metrics) *Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	return &Handler{log: log, proc: proc, metrics: m, maxBody: maxBody}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(logx.String("request_id", RequestID(r.Context())))

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.reply(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
		return
	}

	if !isJSON(r.Header.Get("Content-Type")) {
		// WooCommerce sends a form-encoded "webhook_id=N" ping when a webhook is saved.
		log.Warn("rejecting non-JSON request", logx.String("content_type", r.Header.Get("Content-Type")))
		h.reply(w, http.StatusBadRequest, msgNotJSON)
		return
	}

	raw, err := decodeObject(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		log.Warn("failed to parse JSON body", logx.Err(err))
		h.reply(w, http.StatusBadRequest, msgBadJSON)
		return
	}

	log.Info("order webhook received",
		logx.Int64("order_id", order.ID(raw)),
		logx.String("topic", r.Header.Get("X-WC-Webhook-Topic")),
	)
	h.proc.Process(r.Context(), raw)
	h.reply(w, http.StatusOK, msgOK)
}

func (h *Handler) reply(w http.ResponseWriter, code int, msg string) {
	h.metrics.WebhookRequest(code)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = io.WriteString(w, msg)
}

// isJSON accepts application/json and application/*+json, ignoring parameters.
func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || (strings.HasPrefix(mt, "application/") && strings.HasSuffix(mt, "+json"))
}

var errNotObject = errors.New("body is not a JSON object")

// decodeObject reads exactly one non-empty JSON object. Numbers stay
// json.Number so large order ids keep their precision.
func decodeObject(r io.Reader) (order.RawOrder, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty body")
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	// A second value, or stray closing brackets, must not follow the object.
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON value")
	}
	obj, ok := v.(map[string]any)
	if !ok || len(obj) == 0 {
		return nil, errNotObject
	}
	return order.RawOrder(obj), nil
}
