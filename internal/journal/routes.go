package journal

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
)

const (
	defaultSessionLimit = 50
	maxSessionLimit     = 500
)

// Reader is the query side of Store.
type Reader interface {
	ListSessions(limit, offset int) ([]Session, int, error)
	GetSession(id string) (*Session, []Turn, []Signal, error)
}

// RegisterRoutes mounts the journal API on mux. A nil reader answers 404.
func RegisterRoutes(mux *http.ServeMux, store Reader) {
	mux.HandleFunc("GET /api/journal/sessions", func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			http.Error(w, "journal disabled", http.StatusNotFound)
			return
		}
		limit := min(queryInt(r, "limit", defaultSessionLimit), maxSessionLimit)
		offset := max(queryInt(r, "offset", 0), 0)
		sessions, total, err := store.ListSessions(limit, offset)
		if err != nil {
			slog.Error("journal list sessions", "error", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]interface{}{"sessions": sessions, "total": total})
	})

	mux.HandleFunc("GET /api/journal/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			http.Error(w, "journal disabled", http.StatusNotFound)
			return
		}
		sess, turns, signals, err := store.GetSession(r.PathValue("id"))
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err != nil {
			slog.Error("journal get session", "error", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]interface{}{"session": sess, "turns": turns, "signals": signals})
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
