package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"hubward/internal/catalog"
	"hubward/internal/ingest"
	"hubward/internal/logging"
	"hubward/internal/scoring"
)

// HubView is the wire shape of one hub.
type HubView struct {
	ID        string     `json:"id"`
	Name      string     `json:"display_name"`
	CreatedAt time.Time  `json:"created_at"`
	Works     []WorkView `json:"works"`
}

// WorkView is the wire shape of one work.
type WorkView struct {
	ID              string           `json:"id"`
	MediaType       string           `json:"media_type"`
	SequenceIndex   *int             `json:"sequence_index,omitempty"`
	CanonicalValues []CanonicalEntry `json:"canonical_values"`
}

// CanonicalEntry is one canonical key/value pair.
type CanonicalEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.opts.Version,
	})
}

func (s *Server) handleHubs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	hubs, err := s.opts.Store.ListHubs(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	views := make([]HubView, 0, len(hubs))
	for _, hub := range hubs {
		views = append(views, hubToView(hub))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"hubs": views})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if len(query) < 2 {
		s.writeError(w, http.StatusBadRequest, "query must be at least 2 characters")
		return
	}
	hubs, err := s.opts.Store.SearchHubs(r.Context(), query, 20)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	views := make([]HubView, 0, len(hubs))
	for _, hub := range hubs {
		views = append(views, hubToView(hub))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"hubs": views})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	pending, err := ingest.DryRunScan(r.Context(), s.opts.ScanRoot, s.opts.Store)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"pending": pending})
}

type resolveRequest struct {
	EntityID string `json:"entity_id"`
	Key      string `json:"key"`
	Value    string `json:"value"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.EntityID) == "" || strings.TrimSpace(req.Key) == "" {
		s.writeError(w, http.StatusBadRequest, "entity_id and key are required")
		return
	}
	if err := s.opts.Store.UpsertCanonical(r.Context(), req.EntityID, req.Key, req.Value, time.Now().UTC()); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.opts.Store.LogEvent(r.Context(), "CANONICAL_RESOLVED", "entity", req.EntityID); err != nil {
		s.logger.Warn("journal write failed", logging.Error(err))
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

type lockClaimRequest struct {
	EntityID string `json:"entity_id"`
	Key      string `json:"key"`
	Value    string `json:"value"`
}

func (s *Server) handleLockClaim(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req lockClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.EntityID) == "" || strings.TrimSpace(req.Key) == "" {
		s.writeError(w, http.StatusBadRequest, "entity_id and key are required")
		return
	}

	claim := &catalog.Claim{
		EntityID:     req.EntityID,
		ProviderID:   "user",
		Key:          req.Key,
		Value:        req.Value,
		Confidence:   1.0,
		IsUserLocked: true,
	}
	if err := s.opts.Store.AppendClaim(r.Context(), claim); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Re-score the entity so the lock takes effect immediately.
	claims, err := s.opts.Store.ListClaims(r.Context(), req.EntityID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	result := scoring.Score(scoring.Context{
		EntityID:             req.EntityID,
		Claims:               claims,
		ProviderWeights:      s.opts.ProviderWeights,
		ProviderFieldWeights: s.opts.ProviderFieldWeights,
		Config:               s.opts.ScoringConfig,
	})
	for _, field := range result.FieldScores {
		if err := s.opts.Store.UpsertCanonical(r.Context(), req.EntityID, field.Key, field.Value, result.ScoredAt); err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	if err := s.opts.Store.LogEvent(r.Context(), "CLAIM_LOCKED", "entity", req.EntityID); err != nil {
		s.logger.Warn("journal write failed", logging.Error(err))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":             "locked",
		"overall_confidence": result.OverallConfidence,
	})
}

// handleEvents streams the event bus over server-sent events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.opts.Bus == nil {
		s.writeError(w, http.StatusServiceUnavailable, "event stream unavailable")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub, unsubscribe := s.opts.Bus.Subscribe(64)
	defer unsubscribe()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-sub:
			if !ok {
				return
			}
			payload, err := json.Marshal(event.Payload)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Name, payload)
			flusher.Flush()
		}
	}
}

func hubToView(hub *catalog.Hub) HubView {
	view := HubView{
		ID:        hub.ID,
		Name:      hub.DisplayName,
		CreatedAt: hub.CreatedAt,
		Works:     make([]WorkView, 0, len(hub.Works)),
	}
	for _, work := range hub.Works {
		workView := WorkView{
			ID:            work.ID,
			MediaType:     string(work.MediaType),
			SequenceIndex: work.SequenceIndex,
		}
		for _, value := range work.CanonicalValues {
			workView.CanonicalValues = append(workView.CanonicalValues, CanonicalEntry{Key: value.Key, Value: value.Value})
		}
		view.Works = append(view.Works, workView)
	}
	return view
}
