package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/strideworks/formsync/internal/inference"
	"github.com/strideworks/formsync/internal/model"
	"github.com/strideworks/formsync/internal/storage"
	"github.com/strideworks/formsync/internal/trend"
)

// RoomService is the room coordinator surface the handlers consume.
type RoomService interface {
	Create(ctx context.Context, req model.CreateRoomSessionRequest) (model.RoomSession, error)
	Sync(ctx context.Context, id uuid.UUID, req model.SyncRoomSessionRequest) (model.RoomSession, error)
	Resume(ctx context.Context, id uuid.UUID) (model.RoomSession, error)
	Complete(ctx context.Context, id uuid.UUID, req model.CompleteRoomSessionRequest) (model.RoomSession, error)
	RecordMetrics(ctx context.Context, id uuid.UUID, req model.RecordSnapshotRequest) (model.PerformanceSnapshot, error)
	SyncStatus(ctx context.Context, id uuid.UUID) (model.SyncStatus, error)
	SessionsForUser(ctx context.Context, userID string) (model.UserSessions, error)
	Trends(ctx context.Context, userID string) (trend.Report, error)
	CompletedStats(ctx context.Context, userID string) ([]model.SessionStats, error)
}

// SafetyService is the safety monitor surface the handlers consume.
type SafetyService interface {
	LogIncident(ctx context.Context, sessionID uuid.UUID, req model.LogIncidentRequest) (model.SafetyIncident, bool, error)
}

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	rooms     RoomService
	safety    SafetyService
	inference inference.Client
	registry  LiveCounter
	broker    *Broker
	db        *storage.DB

	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
}

// LiveCounter reports how many live analysis sessions are registered.
type LiveCounter interface {
	Len() int
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Optional (nil-safe): Broker, DB, Registry.
type HandlersDeps struct {
	Rooms               RoomService
	Safety              SafetyService
	Inference           inference.Client
	Registry            LiveCounter
	Broker              *Broker
	DB                  *storage.DB
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		rooms:               d.Rooms,
		safety:              d.Safety,
		inference:           d.Inference,
		registry:            d.Registry,
		broker:              d.Broker,
		db:                  d.DB,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
	}
}

// sessionIDFromPath parses the {session_id} path value. Writes the error
// response itself and reports ok=false on failure.
func sessionIDFromPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("session_id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeValidation, "session_id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// HandleCreateRoom handles POST /v1/rooms.
func (h *Handlers) HandleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req model.CreateRoomSessionRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeValidation, err.Error())
		return
	}

	s, err := h.rooms.Create(r.Context(), req)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, s)
}

// HandleSyncRoom handles POST /v1/rooms/{session_id}/sync.
func (h *Handlers) HandleSyncRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDFromPath(w, r)
	if !ok {
		return
	}

	var req model.SyncRoomSessionRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeValidation, err.Error())
		return
	}

	s, err := h.rooms.Sync(r.Context(), id, req)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, s)
}

// HandleLogIncident handles POST /v1/rooms/{session_id}/incidents.
func (h *Handlers) HandleLogIncident(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDFromPath(w, r)
	if !ok {
		return
	}

	var req model.LogIncidentRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeValidation, err.Error())
		return
	}

	inc, paused, err := h.safety.LogIncident(r.Context(), id, req)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, map[string]any{
		"incident":        inc,
		"triggered_pause": paused,
	})
}

// HandleRecordMetrics handles POST /v1/rooms/{session_id}/metrics.
func (h *Handlers) HandleRecordMetrics(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDFromPath(w, r)
	if !ok {
		return
	}

	var req model.RecordSnapshotRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeValidation, err.Error())
		return
	}

	snap, err := h.rooms.RecordMetrics(r.Context(), id, req)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, snap)
}

// HandleResumeRoom handles POST /v1/rooms/{session_id}/resume.
func (h *Handlers) HandleResumeRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDFromPath(w, r)
	if !ok {
		return
	}

	s, err := h.rooms.Resume(r.Context(), id)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, s)
}

// HandleCompleteRoom handles POST /v1/rooms/{session_id}/complete.
func (h *Handlers) HandleCompleteRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDFromPath(w, r)
	if !ok {
		return
	}

	var req model.CompleteRoomSessionRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeValidation, err.Error())
		return
	}

	s, err := h.rooms.Complete(r.Context(), id, req)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, s)
}

// HandleSyncStatus handles GET /v1/rooms/{session_id}/status.
func (h *Handlers) HandleSyncStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDFromPath(w, r)
	if !ok {
		return
	}

	status, err := h.rooms.SyncStatus(r.Context(), id)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, status)
}

// HandleUserRooms handles GET /v1/users/{user_id}/rooms.
func (h *Handlers) HandleUserRooms(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	if userID == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeValidation, "user_id is required")
		return
	}

	sessions, err := h.rooms.SessionsForUser(r.Context(), userID)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sessions)
}

// HandleUserTrends handles GET /v1/users/{user_id}/trends.
func (h *Handlers) HandleUserTrends(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	if userID == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeValidation, "user_id is required")
		return
	}

	report, err := h.rooms.Trends(r.Context(), userID)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, report)
}

// HandleUserDrills handles GET /v1/users/{user_id}/drills?sport=...
// Weak areas come from the user's trend history; the drill selection itself
// is delegated to the inference service.
func (h *Handlers) HandleUserDrills(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	if userID == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeValidation, "user_id is required")
		return
	}
	sport := r.URL.Query().Get("sport")
	if sport == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeValidation, "sport query parameter is required")
		return
	}

	stats, err := h.rooms.CompletedStats(r.Context(), userID)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}

	req := inference.DrillRequest{
		Sport:     sport,
		WeakAreas: trend.WeakAreas(stats),
	}
	if len(stats) > 0 {
		req.CurrentScore = stats[0].TotalScore
	}

	drills, err := h.inference.RecommendDrills(r.Context(), req)
	if err != nil {
		h.logger.Warn("drill recommendation failed", "user_id", userID, "error", err)
		writeError(w, r, http.StatusBadGateway, model.ErrCodeUpstreamUnavailable, "drill recommendation unavailable")
		return
	}
	writeJSON(w, r, http.StatusOK, drills)
}

// recommendPatternsRequest is the payload for POST /v1/patterns/recommend.
type recommendPatternsRequest struct {
	Width         float64  `json:"width"`
	Height        float64  `json:"height"`
	IsFlat        bool     `json:"is_flat"`
	CeilingHeight *float64 `json:"ceiling_height,omitempty"`
	Sport         string   `json:"sport"`
}

// HandleRecommendPatterns handles POST /v1/patterns/recommend.
func (h *Handlers) HandleRecommendPatterns(w http.ResponseWriter, r *http.Request) {
	var req recommendPatternsRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	geo := model.RoomGeometry{
		Width:         req.Width,
		Height:        req.Height,
		Area:          req.Width * req.Height,
		CeilingHeight: req.CeilingHeight,
		IsFlat:        req.IsFlat,
	}
	if err := geo.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeValidation, err.Error())
		return
	}

	writeJSON(w, r, http.StatusOK, trend.RecommendPatterns(geo, req.Sport))
}

// HandleSubscribe handles GET /v1/subscribe: a long-lived SSE stream of
// incident and session lifecycle events.
func (h *Handlers) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	if h.broker == nil {
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeInternalError, "event stream not available")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := h.broker.Subscribe()
	defer h.broker.Unsubscribe(events)

	// Heartbeat keeps intermediaries from closing an idle stream.
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if _, err := w.Write(event); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := w.Write([]byte(": heartbeat\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := model.HealthResponse{
		Status:  "ok",
		Version: h.version,
		Uptime:  int64(time.Since(h.startedAt).Seconds()),
	}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Postgres = "unreachable"
		} else {
			resp.Postgres = "ok"
		}
	}
	if h.registry != nil {
		resp.LiveSessions = h.registry.Len()
	}
	if h.broker != nil {
		resp.Broker = "ok"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, r, status, resp)
}
