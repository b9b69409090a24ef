// Package server exposes the agent over HTTP and WebSocket.
package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"kblight/internal/config"
	"kblight/internal/core"
	"kblight/internal/scheduler"
)

// Controller is what the API asks to change the lighting.
type Controller interface {
	ApplyProfile(name string) error
	SetProfile(p core.Profile) error
	RunCustom(name string) error
	Refresh() error
	Stop()
	State() core.Snapshot
}

// ProfileStore holds the named profiles.
type ProfileStore interface {
	Get(name string) (core.Profile, error)
	Put(name string, p core.Profile) error
	Delete(name string) error
	All() map[string]core.Profile
}

// ScriptStore holds the Lua custom effect scripts.
type ScriptStore interface {
	List() ([]string, error)
	Code(name string) (string, error)
	Save(name, code string) error
	Delete(name string) error
}

// ScheduleStore holds the cron schedules.
type ScheduleStore interface {
	Add(spec, command string) (scheduler.Entry, error)
	Remove(id int) error
	All() []scheduler.Entry
}

// CommandHandler handles commands sent by WebSocket clients.
type CommandHandler interface {
	Handle(msg Message, hub *Hub)
}

// Deps are the parts of the agent the server talks to.
type Deps struct {
	Controller Controller
	Profiles   ProfileStore
	Scripts    ScriptStore
	Schedules  ScheduleStore
}

// Server manages the HTTP and WebSocket services.
type Server struct {
	Hub        *Hub
	deps       Deps
	handler    CommandHandler
	httpServer *http.Server
	router     chi.Router

	staticFilesDir string
	allowedOrigins []string
	upgrader       websocket.Upgrader
	logger         zerolog.Logger
}

// New creates a server and starts its hub.
func New(cfg config.ServerConfig, deps Deps) *Server {
	hub := NewHub()
	go hub.Run()

	s := &Server{
		Hub:            hub,
		deps:           deps,
		staticFilesDir: cfg.WebFilesDir,
		allowedOrigins: cfg.AllowedOrigins,
		logger:         log.With().Str("component", "server").Logger(),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", s.handleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Post("/profile", s.handleSetProfile)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/stop", s.handleStop)

		r.Get("/profiles", s.handleListProfiles)
		r.Get("/profiles/{name}", s.handleGetProfile)
		r.Put("/profiles/{name}", s.handlePutProfile)
		r.Delete("/profiles/{name}", s.handleDeleteProfile)
		r.Post("/profiles/{name}/apply", s.handleApplyProfile)

		r.Post("/custom/{name}", s.handleRunCustom)
		r.Get("/scripts", s.handleListScripts)
		r.Get("/scripts/{name}", s.handleGetScript)
		r.Put("/scripts/{name}", s.handlePutScript)
		r.Delete("/scripts/{name}", s.handleDeleteScript)

		r.Get("/schedules", s.handleListSchedules)
		r.Post("/schedules", s.handleAddSchedule)
		r.Delete("/schedules/{id}", s.handleDeleteSchedule)
	})

	if s.staticFilesDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.staticFilesDir)))
	}

	s.router = r
	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// SetHandler sets the WebSocket command handler.
func (s *Server) SetHandler(h CommandHandler) {
	s.handler = h
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) ListenAndServe() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	defer s.Hub.Close()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.allowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.allowedOrigins {
		if allowed == "*" || strings.EqualFold(origin, allowed) {
			return true
		}
	}
	s.logger.Warn().Str("origin", origin).Msg("websocket origin rejected")
	return false
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	for _, msg := range s.Snapshot() {
		if err := conn.WriteJSON(msg); err != nil {
			conn.Close()
			return
		}
	}

	if !s.Hub.add(conn) {
		conn.Close()
		return
	}
	defer s.Hub.remove(conn)

	for {
		_, msgBytes, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if s.handler != nil {
			s.handler.Handle(Message{Raw: msgBytes}, s.Hub)
		}
	}
}

// Snapshot is the set of messages a freshly connected client receives.
func (s *Server) Snapshot() []Message {
	msgs := []Message{NewMessage("state", s.deps.Controller.State())}
	if s.deps.Profiles != nil {
		msgs = append(msgs, NewMessage("profile_list", s.deps.Profiles.All()))
	}
	if s.deps.Scripts != nil {
		if names, err := s.deps.Scripts.List(); err == nil {
			msgs = append(msgs, NewMessage("script_list", names))
		}
	}
	if s.deps.Schedules != nil {
		msgs = append(msgs, NewMessage("schedule_list", s.deps.Schedules.All()))
	}
	return msgs
}
