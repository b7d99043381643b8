package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"ordercast/pkg/logx"
)

// DebugCatcher appends every request it receives (headers and body) to a
// file. It is meant for inspecting what the store actually sends.
type DebugCatcher struct {
	log     logx.Logger
	path    string
	maxBody int64
	now     func() time.Time

	mu sync.Mutex
}

func NewDebugCatcher(path string, maxBody int64, log logx.Logger) *DebugCatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	return &DebugCatcher{log: log, path: path, maxBody: maxBody, now: time.Now}
}

func (d *DebugCatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	body, _ := io.ReadAll(http.MaxBytesReader(w, r.Body, d.maxBody))

	headers := make(map[string]string, len(r.Header))
	for k, v := range r.Header {
		headers[k] = strings.Join(v, ", ")
	}
	hdrJSON, _ := json.MarshalIndent(headers, "", "  ")

	var bodyJSON []byte
	var v any
	if err := json.Unmarshal(body, &v); err == nil {
		bodyJSON, _ = json.MarshalIndent(v, "", "  ")
	} else {
		bodyJSON, _ = json.MarshalIndent(map[string]string{
			"error":    "Could not parse JSON",
			"raw_data": string(body),
		}, "", "  ")
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "--- Webhook Received at %s ---\n\n", d.now().Format("2006-01-02 15:04:05"))
	buf.WriteString("[HEADERS]\n")
	buf.Write(hdrJSON)
	buf.WriteString("\n\n[BODY]\n")
	buf.Write(bodyJSON)
	buf.WriteString("\n\n----------------------------------------\n\n")

	if err := d.append(buf.Bytes()); err != nil {
		d.log.Error("failed to write debug webhook log", logx.String("path", d.path), logx.Err(err))
		http.Error(w, "Internal Server Error: Could not write to log file.", http.StatusInternalServerError)
		return
	}
	d.log.Info("debug webhook logged",
		logx.String("path", d.path),
		logx.String("request_id", RequestID(r.Context())),
		logx.Strs("headers", sortedKeys(headers)),
	)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "Webhook data received and logged.")
}

func (d *DebugCatcher) append(b []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, err := os.OpenFile(d.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
