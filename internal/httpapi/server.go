// Package httpapi exposes the thin HTTP surface: contest listing, the
// on-demand aggregation trigger, and preference reads/updates. It is
// request/response plumbing only; authentication happens upstream and
// the authenticated identity arrives in the X-User-ID header.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"contestalert/internal/aggregator"
	"contestalert/internal/contest"
	"contestalert/internal/storage"
	logx "contestalert/pkg/logx"
)

type Config struct {
	Addr string // default ":8080"
}

// Refresher runs one merge cycle on demand.
type Refresher interface {
	Refresh(ctx context.Context) (aggregator.Report, error)
}

type Server struct {
	cfg       Config
	store     storage.Store
	refresher Refresher
	log       logx.Logger

	srv *http.Server
}

func New(cfg Config, store storage.Store, refresher Refresher, log logx.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{cfg: cfg, store: store, refresher: refresher, log: log}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/contests", s.handleListContests).Methods(http.MethodGet)
	r.HandleFunc("/api/updateContests", s.handleUpdateContests).Methods(http.MethodPost)
	r.HandleFunc("/api/user/preferences", s.handleGetPreferences).Methods(http.MethodGet)
	r.HandleFunc("/api/user/preferences", s.handlePutPreferences).Methods(http.MethodPut, http.MethodPost)

	s.srv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start serves in the background until Stop.
func (s *Server) Start() {
	go func() {
		s.log.Info("http listening", logx.String("addr", s.cfg.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server exited", logx.Err(err))
		}
	}()
}

func (s *Server) Stop(ctx context.Context) {
	_ = s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListContests(w http.ResponseWriter, r *http.Request) {
	contests, err := s.store.ListContests(r.Context())
	if err != nil {
		s.log.Error("list contests failed", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to retrieve contests")
		return
	}
	if contests == nil {
		contests = []contest.Contest{}
	}
	writeJSON(w, http.StatusOK, contests)
}

func (s *Server) handleUpdateContests(w http.ResponseWriter, r *http.Request) {
	rep, err := s.refresher.Refresh(r.Context())
	if err != nil {
		s.log.Error("on-demand refresh failed", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to update contests")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Message string `json:"message"`
		Count   int    `json:"count"`
		aggregator.Report
	}{Message: "Contests updated", Count: rep.Stored, Report: rep})
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	id := userID(r)
	if id == "" {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	u, ok, err := s.store.GetUser(r.Context(), id)
	if err != nil {
		s.log.Error("get user failed", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, u.Preferences)
}

func (s *Server) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	id := userID(r)
	if id == "" {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var body struct {
		Preferences contest.Preferences `json:"reminderPreferences"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid preferences payload")
		return
	}

	if err := s.store.UpdatePreferences(r.Context(), id, body.Preferences); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		s.log.Error("update preferences failed", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to update preferences")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Preferences updated"})
}

func userID(r *http.Request) string { return r.Header.Get("X-User-ID") }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
