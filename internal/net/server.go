// Package net exposes the engine over HTTP and websockets: a JSON API for
// joining, applying, and querying effects, and a push channel that streams
// HUD overlay frames to connected sessions.
package net

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/raymoo/monoidal-effects/effects"
	"github.com/raymoo/monoidal-effects/effects/catalog"
	"github.com/raymoo/monoidal-effects/internal/host"
	"github.com/raymoo/monoidal-effects/internal/hud"
	"github.com/raymoo/monoidal-effects/internal/runner"
	"github.com/raymoo/monoidal-effects/logging"
	"github.com/raymoo/monoidal-effects/monoid"
)

// Deps carries the engine-side collaborators the API fronts.
type Deps struct {
	Loop       *runner.Loop
	Roster     *host.Host
	Overlay    *hud.Tracker
	Catalog    *catalog.Resolver
	Quantities *monoid.Registry
	Types      *effects.TypeRegistry
}

// Config tunes the transport. PushEvery is in ticks; 0 disables the HUD
// stream.
type Config struct {
	Version   string
	TickRate  int
	PushEvery int
	Logger    *log.Logger
	Publisher logging.Publisher
	Clock     logging.Clock
}

// Server is the HTTP and websocket front end for one engine loop.
type Server struct {
	deps      Deps
	version   string
	tickRate  int
	pushEvery int
	logger    *log.Logger
	publisher logging.Publisher
	clock     logging.Clock
	started   time.Time
	router    chi.Router
	sessions  *sessionTable

	subMu       sync.Mutex
	subscribers map[string]*wsSession
}

// New wires the API around a running loop.
func New(deps Deps, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = logging.SystemClock()
	}
	s := &Server{
		deps:        deps,
		version:     cfg.Version,
		tickRate:    cfg.TickRate,
		pushEvery:   cfg.PushEvery,
		logger:      logger,
		publisher:   publisher,
		clock:       clock,
		started:     clock.Now(),
		sessions:    newSessionTable(),
		subscribers: make(map[string]*wsSession),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/diagnostics", s.handleDiagnostics)

		r.Post("/join", s.handleJoin)
		r.Post("/leave", s.handleLeave)

		r.Post("/effects", s.handleApply)
		r.Delete("/effects/{effectID}", s.handleCancel)
		r.Post("/effects/cancel", s.handleCancelBy)

		r.Get("/actors/{actorID}/effects", s.handleActorEffects)
		r.Get("/actors/{actorID}/values", s.handleActorValues)
		r.Get("/actors/{actorID}/hud", s.handleActorHUD)
		r.Post("/actors/{actorID}/death", s.handleDeath)

		r.Get("/catalog", s.handleCatalog)
		r.Post("/catalog/reload", s.handleCatalogReload)
		r.Post("/save", s.handleSave)
	})
	r.Get("/ws", s.handleWS)

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  s.clock.Now().Sub(s.started).Seconds(),
	})
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	var tick uint64
	var records, timers, cached int
	err := s.deps.Loop.Call(r.Context(), func(m *effects.Manager) error {
		tick = m.CurrentTick()
		records = m.Count()
		timers = m.RunningTimers()
		cached = m.CachedValues()
		return nil
	})
	if err != nil {
		http.Error(w, `{"error":"engine unavailable"}`, http.StatusServiceUnavailable)
		return
	}

	actors := 0
	if s.deps.Roster != nil {
		actors = s.deps.Roster.Len()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":          "ok",
		"serverTime":      s.clock.Now().UnixMilli(),
		"tick":            tick,
		"tickRate":        s.tickRate,
		"records":         records,
		"runningTimers":   timers,
		"cachedValues":    cached,
		"actors":          actors,
		"sessions":        s.sessions.count(),
		"pendingCommands": s.deps.Loop.Pending(),
	})
}
