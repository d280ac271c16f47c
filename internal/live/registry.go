// Package live manages real-time analysis sessions: one ephemeral session per
// websocket connection, driven by the start_analysis / camera_frame /
// end_analysis protocol. Sessions never outlive the process.
package live

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/strideworks/formsync/internal/inference"
)

var (
	// ErrAlreadyActive is returned when start_analysis arrives on a
	// connection with an active session.
	ErrAlreadyActive = errors.New("live: analysis already active on this connection")

	// ErrNoActiveSession is returned when camera_frame or end_analysis
	// arrives before start_analysis.
	ErrNoActiveSession = errors.New("live: no active analysis session")
)

// Gateway is the slice of the inference client the registry needs.
type Gateway interface {
	Analyze(ctx context.Context, req inference.AnalyzeRequest) (inference.Verdict, error)
	SessionReport(ctx context.Context, req inference.ReportRequest) (inference.SessionReport, error)
}

// Session is the ephemeral per-connection analysis state. Owned exclusively
// by the connection handler; nothing outside the registry mutates it.
type Session struct {
	ID           string
	UserID       string
	Sport        string
	AnalysisType string
	IsActive     bool
	StartedAt    time.Time

	frameCount int
	scoreSum   float64
}

// Completion summarizes an ended session for the session_complete message.
type Completion struct {
	SessionID    string
	Sport        string
	AnalysisType string
	FrameCount   int
	AverageScore float64

	// Report is nil when the inference service could not produce one;
	// cleanup proceeds regardless.
	Report *inference.SessionReport
}

// Registry tracks live sessions keyed by connection id. All methods are safe
// for concurrent use; each connection only ever touches its own entry.
type Registry struct {
	gateway Gateway
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry backed by the given gateway.
func NewRegistry(gateway Gateway, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		gateway:  gateway,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Len reports the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// StartAnalysis creates the session for a connection. Fails with
// ErrAlreadyActive if the connection already has an active one.
func (r *Registry) StartAnalysis(connID, userID, sport, analysisType string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[connID]; ok && existing.IsActive {
		return Session{}, ErrAlreadyActive
	}

	s := &Session{
		ID:           uuid.NewString(),
		UserID:       userID,
		Sport:        sport,
		AnalysisType: analysisType,
		IsActive:     true,
		StartedAt:    time.Now().UTC(),
	}
	r.sessions[connID] = s

	r.logger.Info("analysis started",
		"conn_id", connID,
		"session_id", s.ID,
		"sport", sport,
		"analysis_type", analysisType,
	)
	return *s, nil
}

// SubmitFrame forwards one frame to the gateway and returns the verdict.
// Fails with ErrNoActiveSession before start_analysis. A gateway failure is
// returned to the caller but leaves the session active: failures are
// per-frame, never session-fatal.
func (r *Registry) SubmitFrame(ctx context.Context, connID string, frame []byte) (inference.Verdict, error) {
	r.mu.Lock()
	s, ok := r.sessions[connID]
	if !ok || !s.IsActive {
		r.mu.Unlock()
		return inference.Verdict{}, ErrNoActiveSession
	}
	req := inference.AnalyzeRequest{
		SessionID:    s.ID,
		Sport:        s.Sport,
		AnalysisType: s.AnalysisType,
		FrameData:    frame,
	}
	r.mu.Unlock()

	// Gateway call happens outside the lock: one stalled upstream request
	// must not block other connections.
	verdict, err := r.gateway.Analyze(ctx, req)
	if err != nil {
		return inference.Verdict{}, err
	}

	r.mu.Lock()
	if cur, ok := r.sessions[connID]; ok && cur.ID == req.SessionID {
		cur.frameCount++
		cur.scoreSum += verdict.Score
	}
	r.mu.Unlock()

	return verdict, nil
}

// EndAnalysis deactivates and removes the connection's session, requesting a
// final report from the gateway. The report is best-effort: a failure there
// still removes the session.
func (r *Registry) EndAnalysis(ctx context.Context, connID string) (Completion, error) {
	r.mu.Lock()
	s, ok := r.sessions[connID]
	if !ok {
		r.mu.Unlock()
		return Completion{}, ErrNoActiveSession
	}
	s.IsActive = false
	delete(r.sessions, connID)
	r.mu.Unlock()

	done := Completion{
		SessionID:    s.ID,
		Sport:        s.Sport,
		AnalysisType: s.AnalysisType,
		FrameCount:   s.frameCount,
	}
	if s.frameCount > 0 {
		done.AverageScore = s.scoreSum / float64(s.frameCount)
	}

	report, err := r.gateway.SessionReport(ctx, inference.ReportRequest{
		SessionID:    s.ID,
		UserID:       s.UserID,
		Sport:        s.Sport,
		AnalysisType: s.AnalysisType,
		FrameCount:   done.FrameCount,
		AverageScore: done.AverageScore,
	})
	if err != nil {
		r.logger.Warn("session report unavailable", "session_id", s.ID, "error", err)
	} else {
		done.Report = &report
	}

	r.logger.Info("analysis ended",
		"conn_id", connID,
		"session_id", s.ID,
		"frames", done.FrameCount,
	)
	return done, nil
}

// Disconnect removes any session for the connection without a report.
// Idempotent: a second call for the same connection is a no-op.
func (r *Registry) Disconnect(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[connID]; ok {
		s.IsActive = false
		delete(r.sessions, connID)
		r.logger.Info("connection closed with session", "conn_id", connID, "session_id", s.ID)
	}
}
