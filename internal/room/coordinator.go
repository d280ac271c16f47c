// Package room owns the durable multi-platform training sessions: creation,
// the per-field sync merge, lifecycle transitions, and the abandonment reaper.
//
// A room session is created once by the first platform to report in and then
// updated in place. Concurrent syncs for the same session serialize behind a
// per-session lock so the merge policy stays deterministic; different sessions
// never contend.
package room

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/strideworks/formsync/internal/model"
	"github.com/strideworks/formsync/internal/trend"
)

// SessionStore is the slice of the storage layer the coordinator needs.
type SessionStore interface {
	CreateRoomSession(ctx context.Context, req model.CreateRoomSessionRequest) (model.RoomSession, error)
	GetRoomSession(ctx context.Context, id uuid.UUID) (model.RoomSession, error)
	UpdateRoomSession(ctx context.Context, s model.RoomSession) error
	ResumeSession(ctx context.Context, id uuid.UUID) (model.RoomSession, error)
	CompleteSession(ctx context.Context, id uuid.UUID, totalScore float64) (model.RoomSession, error)
	FailSession(ctx context.Context, id uuid.UUID) error
	ListStaleSessions(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
	ListRoomSessionsByUser(ctx context.Context, userID string) ([]model.RoomSession, error)
	ListCompletedSessionStats(ctx context.Context, userID string) ([]model.SessionStats, error)
	ListIncidents(ctx context.Context, sessionID uuid.UUID) ([]model.SafetyIncident, error)
	AppendSnapshot(ctx context.Context, sessionID uuid.UUID, req model.RecordSnapshotRequest) (model.PerformanceSnapshot, error)
	ListSnapshots(ctx context.Context, sessionID uuid.UUID) ([]model.PerformanceSnapshot, error)
}

// Notifier publishes session lifecycle events for SSE subscribers.
type Notifier interface {
	Notify(ctx context.Context, channel, payload string) error
}

// Coordinator is the single writer for room session records.
type Coordinator struct {
	store    SessionStore
	notifier Notifier
	channel  string
	locks    *sessionLocks
	logger   *slog.Logger
}

// New creates a Coordinator. notifier may be nil to disable event broadcast.
func New(store SessionStore, notifier Notifier, channel string, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:    store,
		notifier: notifier,
		channel:  channel,
		locks:    newSessionLocks(),
		logger:   logger,
	}
}

// sessionEvent is the payload broadcast on lifecycle changes.
type sessionEvent struct {
	SessionID uuid.UUID           `json:"session_id"`
	UserID    string              `json:"user_id,omitempty"`
	Status    model.SessionStatus `json:"status"`
	Event     string              `json:"event"`
}

// Create validates and inserts a new session with status=active.
func (c *Coordinator) Create(ctx context.Context, req model.CreateRoomSessionRequest) (model.RoomSession, error) {
	if err := req.Validate(); err != nil {
		return model.RoomSession{}, err
	}
	s, err := c.store.CreateRoomSession(ctx, req)
	if err != nil {
		return model.RoomSession{}, err
	}
	c.broadcast(ctx, sessionEvent{SessionID: s.ID, UserID: s.UserID, Status: s.Status, Event: "created"})
	return s, nil
}

// Sync applies one platform's partial update under the per-session lock:
// read, merge per the field policy, write back. Returns the merged record.
func (c *Coordinator) Sync(ctx context.Context, id uuid.UUID, req model.SyncRoomSessionRequest) (model.RoomSession, error) {
	if err := req.Validate(); err != nil {
		return model.RoomSession{}, err
	}

	release := c.locks.acquire(id.String())
	defer release()

	s, err := c.store.GetRoomSession(ctx, id)
	if err != nil {
		return model.RoomSession{}, err
	}

	applySync(&s, req, time.Now().UTC())

	if err := c.store.UpdateRoomSession(ctx, s); err != nil {
		return model.RoomSession{}, err
	}
	return s, nil
}

// Resume transitions a paused session back to active.
func (c *Coordinator) Resume(ctx context.Context, id uuid.UUID) (model.RoomSession, error) {
	release := c.locks.acquire(id.String())
	defer release()

	s, err := c.store.ResumeSession(ctx, id)
	if err != nil {
		return model.RoomSession{}, err
	}
	c.broadcast(ctx, sessionEvent{SessionID: s.ID, UserID: s.UserID, Status: s.Status, Event: "resumed"})
	return s, nil
}

// Complete records the final score and closes the session.
func (c *Coordinator) Complete(ctx context.Context, id uuid.UUID, req model.CompleteRoomSessionRequest) (model.RoomSession, error) {
	if err := req.Validate(); err != nil {
		return model.RoomSession{}, err
	}

	release := c.locks.acquire(id.String())
	defer release()

	s, err := c.store.CompleteSession(ctx, id, req.TotalScore)
	if err != nil {
		return model.RoomSession{}, err
	}
	c.broadcast(ctx, sessionEvent{SessionID: s.ID, UserID: s.UserID, Status: s.Status, Event: "completed"})
	return s, nil
}

// RecordMetrics appends one performance snapshot to a session's history.
func (c *Coordinator) RecordMetrics(ctx context.Context, id uuid.UUID, req model.RecordSnapshotRequest) (model.PerformanceSnapshot, error) {
	if err := req.Validate(); err != nil {
		return model.PerformanceSnapshot{}, err
	}
	return c.store.AppendSnapshot(ctx, id, req)
}

// SyncStatus returns the session with its full incident and metric history.
// IsConsistent is true by construction: there is exactly one writable row per
// session, so there is no replica to diverge from.
func (c *Coordinator) SyncStatus(ctx context.Context, id uuid.UUID) (model.SyncStatus, error) {
	s, err := c.store.GetRoomSession(ctx, id)
	if err != nil {
		return model.SyncStatus{}, err
	}
	incidents, err := c.store.ListIncidents(ctx, id)
	if err != nil {
		return model.SyncStatus{}, err
	}
	metrics, err := c.store.ListSnapshots(ctx, id)
	if err != nil {
		return model.SyncStatus{}, err
	}
	return model.SyncStatus{
		Session:      s,
		Incidents:    incidents,
		Metrics:      metrics,
		IsConsistent: true,
	}, nil
}

// SessionsForUser returns a user's sessions, newest first, grouped by the
// platform that last reported them.
func (c *Coordinator) SessionsForUser(ctx context.Context, userID string) (model.UserSessions, error) {
	sessions, err := c.store.ListRoomSessionsByUser(ctx, userID)
	if err != nil {
		return model.UserSessions{}, err
	}
	byPlatform := make(map[model.Platform][]model.RoomSession)
	for _, s := range sessions {
		byPlatform[s.Platform] = append(byPlatform[s.Platform], s)
	}
	return model.UserSessions{UserID: userID, Sessions: sessions, ByPlatform: byPlatform}, nil
}

// Trends computes the score and safety trends over a user's completed sessions.
func (c *Coordinator) Trends(ctx context.Context, userID string) (trend.Report, error) {
	stats, err := c.store.ListCompletedSessionStats(ctx, userID)
	if err != nil {
		return trend.Report{}, err
	}
	return trend.Analyze(stats), nil
}

// CompletedStats exposes the raw trend inputs, used for drill recommendations.
func (c *Coordinator) CompletedStats(ctx context.Context, userID string) ([]model.SessionStats, error) {
	return c.store.ListCompletedSessionStats(ctx, userID)
}

func (c *Coordinator) broadcast(ctx context.Context, event sessionEvent) {
	if c.notifier == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		c.logger.Error("marshal session event", "error", err)
		return
	}
	if err := c.notifier.Notify(ctx, c.channel, string(payload)); err != nil {
		c.logger.Error("notify session event", "event", event.Event, "error", err)
	}
}
