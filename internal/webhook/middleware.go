package webhook

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"ordercast/internal/metrics"
	"ordercast/pkg/logx"
)

type ctxKey struct{}

const RequestIDHeader = "X-Request-Id"

// RequestID returns the id assigned by Instrument, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// Instrument assigns a request id, logs the request and records its latency.
func Instrument(name string, next http.Handler, log logx.Logger, m *metrics.Metrics) http.Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		r = r.WithContext(context.WithValue(r.Context(), ctxKey{}, id))

		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		took := time.Since(start)
		m.ObserveHTTP(name, r.Method, took)
		log.Debug("http request",
			logx.String("request_id", id),
			logx.String("handler", name),
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.String("remote", r.RemoteAddr),
			logx.Int("status", rec.status),
			logx.Int("bytes", rec.bytes),
			logx.Duration("took", took),
		)
	})
}
