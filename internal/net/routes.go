package net

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/raymoo/monoidal-effects/effects"
	"github.com/raymoo/monoidal-effects/effectset"
	"github.com/raymoo/monoidal-effects/internal/runner"
	"github.com/raymoo/monoidal-effects/logging"
	"github.com/raymoo/monoidal-effects/logging/network"
	"github.com/raymoo/monoidal-effects/monoid"
)

var errAlreadyJoined = errors.New("actor already joined")

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ActorID string `json:"actorId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	if req.ActorID == "" {
		http.Error(w, `{"error":"actorId required"}`, http.StatusBadRequest)
		return
	}

	now := s.clock.Now()
	var restored int
	var tick uint64
	err := s.deps.Loop.Call(r.Context(), func(m *effects.Manager) error {
		if s.deps.Roster != nil && !s.deps.Roster.Join(req.ActorID, now) {
			return errAlreadyJoined
		}
		restored = m.Defrost(req.ActorID, now)
		tick = m.CurrentTick()
		return nil
	})
	if errors.Is(err, errAlreadyJoined) {
		http.Error(w, `{"error":"actor already joined"}`, http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}

	sess := s.sessions.create(req.ActorID, now)
	network.Joined(r.Context(), s.publisher, tick, logging.ActorRef(req.ActorID), network.SessionPayload{
		SessionID: sess.ID,
		Remote:    r.RemoteAddr,
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"actorId":   req.ActorID,
		"sessionId": sess.ID,
		"restored":  restored,
	})
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	sess, ok := s.sessions.resolve(req.SessionID)
	if !ok {
		http.Error(w, `{"error":"unknown session"}`, http.StatusNotFound)
		return
	}

	now := s.clock.Now()
	var hibernated int
	var tick uint64
	err := s.deps.Loop.Call(r.Context(), func(m *effects.Manager) error {
		hibernated = m.Hibernate(sess.ActorID, now)
		if s.deps.Roster != nil {
			s.deps.Roster.Leave(sess.ActorID)
		}
		if s.deps.Overlay != nil {
			s.deps.Overlay.RemoveActor(sess.ActorID)
		}
		tick = m.CurrentTick()
		return nil
	})
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}

	for _, id := range s.sessions.dropActor(sess.ActorID) {
		s.closeSubscriber(id)
	}
	network.Left(r.Context(), s.publisher, tick, logging.ActorRef(sess.ActorID), network.SessionPayload{
		SessionID: sess.ID,
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":     "left",
		"actorId":    sess.ActorID,
		"hibernated": hibernated,
	})
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type       string                  `json:"type"`
		Actors     []string                `json:"actors"`
		DurationMs int64                   `json:"durationMs"`
		Permanent  bool                    `json:"permanent"`
		Values     map[string]monoid.Value `json:"values"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}

	now := s.clock.Now()
	var id uint64
	err := s.deps.Loop.Call(r.Context(), func(m *effects.Manager) error {
		var applyErr error
		id, applyErr = m.Apply(effects.Application{
			TypeName:  req.Type,
			Actors:    req.Actors,
			Duration:  time.Duration(req.DurationMs) * time.Millisecond,
			Permanent: req.Permanent,
			Values:    req.Values,
		}, now)
		return applyErr
	})
	if err != nil {
		switch {
		case errors.Is(err, effects.ErrUnknownEffectType):
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusNotFound)
		case errors.Is(err, monoid.ErrConfiguration), errors.Is(err, monoid.ErrUnknownQuantity):
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusBadRequest)
		default:
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{"id": id})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "effectID"), 10, 64)
	if err != nil {
		http.Error(w, `{"error":"invalid effect id"}`, http.StatusBadRequest)
		return
	}

	cancelled := false
	err = s.deps.Loop.Call(r.Context(), func(m *effects.Manager) error {
		cancelled = m.Cancel(id)
		return nil
	})
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	if !cancelled {
		http.Error(w, `{"error":"unknown effect"}`, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "cancelled"})
}

func (s *Server) handleCancelBy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Index string `json:"index"`
		Key   string `json:"key"`
		Actor string `json:"actor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	kind, ok := effectset.ParseIndexKind(req.Index)
	if !ok {
		http.Error(w, `{"error":"unknown index"}`, http.StatusBadRequest)
		return
	}

	cancelled := 0
	err := s.deps.Loop.Call(r.Context(), func(m *effects.Manager) error {
		cancelled = m.CancelBy(kind, req.Key, req.Actor)
		return nil
	})
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"cancelled": cancelled})
}

func (s *Server) handleActorEffects(w http.ResponseWriter, r *http.Request) {
	actorID := chi.URLParam(r, "actorID")

	type effectJSON struct {
		ID          uint64   `json:"id"`
		Type        string   `json:"type"`
		Tags        []string `json:"tags,omitempty"`
		Actors      []string `json:"actors"`
		Permanent   bool     `json:"permanent,omitempty"`
		RemainingMs int64    `json:"remainingMs,omitempty"`
	}

	now := s.clock.Now()
	out := make([]effectJSON, 0)
	err := s.deps.Loop.Call(r.Context(), func(m *effects.Manager) error {
		for _, id := range m.EffectsFor(actorID).Sorted() {
			rec, ok := m.Record(id)
			if !ok {
				continue
			}
			entry := effectJSON{
				ID:        rec.ID,
				Type:      rec.TypeName,
				Tags:      rec.Tags.Sorted(),
				Actors:    rec.Actors.Sorted(),
				Permanent: rec.Permanent,
			}
			if remaining, permanent, ok := m.RemainingTime(id, now); ok && !permanent {
				entry.RemainingMs = remaining.Milliseconds()
			}
			out = append(out, entry)
		}
		return nil
	})
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"actorId": actorID,
		"effects": out,
	})
}

func (s *Server) handleActorValues(w http.ResponseWriter, r *http.Request) {
	actorID := chi.URLParam(r, "actorID")
	only := r.URL.Query().Get("quantity")

	names := []string{only}
	if only == "" {
		names = s.deps.Quantities.Names()
	}

	values := make(map[string]monoid.Value, len(names))
	err := s.deps.Loop.Call(r.Context(), func(m *effects.Manager) error {
		for _, name := range names {
			value, valueErr := m.QuantityValue(name, actorID)
			if valueErr != nil {
				return valueErr
			}
			values[name] = value
		}
		return nil
	})
	if errors.Is(err, monoid.ErrUnknownQuantity) {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"actorId": actorID,
		"values":  values,
	})
}

func (s *Server) handleActorHUD(w http.ResponseWriter, r *http.Request) {
	actorID := chi.URLParam(r, "actorID")
	entries := s.hudEntries(actorID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"actorId": actorID,
		"entries": entries,
	})
}

func (s *Server) handleDeath(w http.ResponseWriter, r *http.Request) {
	actorID := chi.URLParam(r, "actorID")
	if ok, reason := s.deps.Loop.Enqueue(runner.Command{Type: runner.CommandDeath, ActorID: actorID}); !ok {
		http.Error(w, `{"error":"`+reason+`"}`, http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "queued"})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	type catalogEntryJSON struct {
		Name          string                  `json:"name"`
		DisplayName   string                  `json:"displayName,omitempty"`
		Tags          []string                `json:"tags,omitempty"`
		Quantities    []string                `json:"quantities"`
		Values        map[string]monoid.Value `json:"values,omitempty"`
		Dynamic       bool                    `json:"dynamic,omitempty"`
		Hidden        bool                    `json:"hidden,omitempty"`
		CancelOnDeath bool                    `json:"cancelOnDeath,omitempty"`
		Icon          string                  `json:"icon,omitempty"`
	}

	out := make([]catalogEntryJSON, 0)
	if s.deps.Catalog != nil {
		for _, typ := range s.deps.Catalog.Types() {
			out = append(out, catalogEntryJSON{
				Name:          typ.Name,
				DisplayName:   typ.DisplayName,
				Tags:          typ.Tags.Sorted(),
				Quantities:    typ.Quantities.Sorted(),
				Values:        typ.Values,
				Dynamic:       typ.Dynamic,
				Hidden:        typ.Hidden,
				CancelOnDeath: typ.CancelOnDeath,
				Icon:          typ.Icon,
			})
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"effectCatalog": out})
}

// handleCatalogReload re-reads the catalog files and installs any new types
// into the live registry. Registered types are immutable, so edits to
// existing entries only take effect on restart.
func (s *Server) handleCatalogReload(w http.ResponseWriter, r *http.Request) {
	if s.deps.Catalog == nil {
		http.Error(w, `{"error":"no catalog configured"}`, http.StatusServiceUnavailable)
		return
	}
	if err := s.deps.Catalog.Reload(); err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusUnprocessableEntity)
		return
	}

	installed := 0
	err := s.deps.Loop.Call(r.Context(), func(*effects.Manager) error {
		if s.deps.Types == nil {
			return nil
		}
		for _, typ := range s.deps.Catalog.Types() {
			if _, exists := s.deps.Types.Lookup(typ.Name); exists {
				continue
			}
			if err := s.deps.Types.Register(typ); err != nil {
				return err
			}
			installed++
		}
		return nil
	})
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":    "reloaded",
		"types":     s.deps.Catalog.Len(),
		"installed": installed,
	})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if ok, reason := s.deps.Loop.Enqueue(runner.Command{Type: runner.CommandSave}); !ok {
		http.Error(w, `{"error":"`+reason+`"}`, http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "queued"})
}
