package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"eleusis-bench/server/engine"
	"eleusis-bench/server/judge"
	"eleusis-bench/server/session"
	"eleusis-bench/server/store"
)

// sessionStore is the part of store.DB the API reads from.
type sessionStore interface {
	judge.AuditStore
	Ping(ctx context.Context) error
	ListSessions(ctx context.Context, limit int) ([]store.SessionSummary, error)
}

// Router serves the stored sessions read-only. Nothing here touches a live game.
func Router(db sessionStore, rules *engine.RuleSet, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(requestLogger(log))

	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := withTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		writeJSON(w, map[string]any{"ok": true})
	})

	r.Get("/api/rules", func(w http.ResponseWriter, r *http.Request) {
		type ruleView struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		out := []ruleView{}
		for _, rule := range rules.Rules() {
			out = append(out, ruleView{rule.Name, rule.Description})
		}
		writeJSON(w, out)
	})

	r.Get("/api/sessions", func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		list, err := db.ListSessions(r.Context(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, list)
	})

	r.Route("/api/sessions/{id}", func(r chi.Router) {
		r.Get("/events", func(w http.ResponseWriter, r *http.Request) {
			recs, ok := loadRecords(w, r, db)
			if !ok {
				return
			}
			writeJSON(w, recs)
		})
		r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
			recs, ok := loadRecords(w, r, db)
			if !ok {
				return
			}
			writeJSON(w, sessionStats(recs))
		})
		r.Get("/audit", func(w http.ResponseWriter, r *http.Request) {
			rep, err := judge.EvaluateSession(r.Context(), db, chi.URLParam(r, "id"), rules)
			if err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, rep)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("not found: "+r.URL.Path))
	})
	return r
}

func loadRecords(w http.ResponseWriter, r *http.Request, db sessionStore) ([]session.Record, bool) {
	stored, err := db.SessionRecords(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return nil, false
	}
	recs := make([]session.Record, len(stored))
	for i, s := range stored {
		recs[i] = s.Record
	}
	return recs, true
}

func statusFor(err error) int {
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("took", time.Since(start)).
				Str("request_id", chimw.GetReqID(r.Context())).
				Msg("http")
		})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
