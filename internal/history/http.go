package history

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

const defaultListLimit = 20

type entryJSON struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Provider   string    `json:"provider"`
	Mode       string    `json:"mode"`
	Text       string    `json:"text"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Handler lists recent entries of s as JSON, newest first. The optional
// "limit" query parameter caps the count (default 20).
func Handler(s Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := defaultListLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}

		entries, err := s.Recent(r.Context(), limit)
		if err != nil {
			slog.Error("history: list failed", "err", err)
			http.Error(w, "history unavailable", http.StatusInternalServerError)
			return
		}

		out := make([]entryJSON, len(entries))
		for i, e := range entries {
			out[i] = entryJSON{
				ID:         e.ID,
				SessionID:  e.SessionID,
				Provider:   e.Provider,
				Mode:       e.Mode,
				Text:       e.Text,
				DurationMS: e.Duration.Milliseconds(),
				CreatedAt:  e.CreatedAt,
			}
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(out)
	})
}
