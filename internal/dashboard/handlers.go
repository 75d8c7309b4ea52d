package dashboard

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"MatrixConnectionRelay/internal/relaylog"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 200
)

// LimiterStats is implemented by the rate limiter when it is enabled.
type LimiterStats interface {
	Clients() int
}

// Handlers serves the read-only relay status API.
type Handlers struct {
	Stats   *StatsCollector
	LogPath string
	Limiter LimiterStats
}

// ServeStats handles GET /api/relay/stats.
func (h *Handlers) ServeStats(w http.ResponseWriter, r *http.Request) {
	forwarded, failed, uptime := h.Stats.Snapshot()

	body := map[string]interface{}{
		"forwarded":      forwarded,
		"failed":         failed,
		"uptime_seconds": int64(uptime.Seconds()),
	}
	if h.Limiter != nil {
		body["rate_limited_clients"] = h.Limiter.Clients()
	}

	writeJSON(w, body)
}

type entryDTO struct {
	Timestamp string `json:"timestamp"`
	RequestID string `json:"request_id"`
	Label     string `json:"label"`
	Payload   string `json:"payload"`
}

// ServeLog handles GET /api/relay/log?limit=N.
func (h *Handlers) ServeLog(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= maxLogLimit {
			limit = n
		}
	}

	entries, err := relaylog.ReadLastEntries(h.LogPath, limit)
	if err != nil {
		http.Error(w, "failed to read relay log", http.StatusInternalServerError)
		return
	}

	dtos := make([]entryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = entryDTO{
			Timestamp: e.Timestamp.Format(time.RFC3339Nano),
			RequestID: e.RequestID,
			Label:     string(e.Label),
			Payload:   e.Payload,
		}
	}

	writeJSON(w, map[string]interface{}{"entries": dtos})
}

// ServeHealth handles GET /healthz.
func ServeHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
