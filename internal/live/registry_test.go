package live

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strideworks/formsync/internal/inference"
)

// stubGateway scripts per-frame scores and records every call.
type stubGateway struct {
	mu         sync.Mutex
	scores     []float64
	calls      int
	analyzeErr error
	reportErr  error
	reports    []inference.ReportRequest
}

func (g *stubGateway) Analyze(_ context.Context, _ inference.AnalyzeRequest) (inference.Verdict, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.analyzeErr != nil {
		return inference.Verdict{}, g.analyzeErr
	}
	score := 50.0
	if g.calls < len(g.scores) {
		score = g.scores[g.calls]
	}
	g.calls++
	return inference.Verdict{Score: score}, nil
}

func (g *stubGateway) SessionReport(_ context.Context, req inference.ReportRequest) (inference.SessionReport, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reports = append(g.reports, req)
	if g.reportErr != nil {
		return inference.SessionReport{}, g.reportErr
	}
	return inference.SessionReport{OverallScore: req.AverageScore, Summary: "solid work"}, nil
}

func (g *stubGateway) analyzeCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func newTestRegistry(g Gateway) *Registry {
	return NewRegistry(g, slog.New(slog.DiscardHandler))
}

func TestStartAnalysisRejectsSecondStart(t *testing.T) {
	r := newTestRegistry(&stubGateway{})

	s, err := r.StartAnalysis("conn-a", "user-1", "basketball", "shooting_form")
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.True(t, s.IsActive)
	assert.Equal(t, 1, r.Len())

	_, err = r.StartAnalysis("conn-a", "user-1", "basketball", "shooting_form")
	assert.ErrorIs(t, err, ErrAlreadyActive)

	// A different connection is unaffected.
	_, err = r.StartAnalysis("conn-b", "user-2", "football", "dribbling")
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())
}

func TestSubmitFrameBeforeStart(t *testing.T) {
	gw := &stubGateway{}
	r := newTestRegistry(gw)

	_, err := r.SubmitFrame(context.Background(), "conn-a", []byte{0x01})
	assert.ErrorIs(t, err, ErrNoActiveSession)
	// The gateway must not have been called.
	assert.Equal(t, 0, gw.analyzeCalls())
}

func TestSubmitFrameFailureKeepsSessionAlive(t *testing.T) {
	gw := &stubGateway{analyzeErr: errors.New("model overloaded")}
	r := newTestRegistry(gw)

	_, err := r.StartAnalysis("conn-a", "user-1", "basketball", "")
	require.NoError(t, err)

	_, err = r.SubmitFrame(context.Background(), "conn-a", []byte{0x01})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoActiveSession)

	// The session survives the per-frame failure.
	gw.analyzeErr = nil
	v, err := r.SubmitFrame(context.Background(), "conn-a", []byte{0x02})
	require.NoError(t, err)
	assert.Equal(t, 50.0, v.Score)
}

func TestEndAnalysisLifecycle(t *testing.T) {
	gw := &stubGateway{scores: []float64{70, 75, 80}}
	r := newTestRegistry(gw)

	_, err := r.StartAnalysis("conn-a", "user-1", "basketball", "shooting_form")
	require.NoError(t, err)

	for _, frame := range [][]byte{{0x01}, {0x02}, {0x03}} {
		_, err := r.SubmitFrame(context.Background(), "conn-a", frame)
		require.NoError(t, err)
	}

	done, err := r.EndAnalysis(context.Background(), "conn-a")
	require.NoError(t, err)
	assert.Equal(t, 3, done.FrameCount)
	assert.InDelta(t, 75.0, done.AverageScore, 1e-9)
	require.NotNil(t, done.Report)
	assert.InDelta(t, 75.0, done.Report.OverallScore, 1e-9)
	assert.Equal(t, 0, r.Len())

	// Ending again fails: the session is gone.
	_, err = r.EndAnalysis(context.Background(), "conn-a")
	assert.ErrorIs(t, err, ErrNoActiveSession)

	// And frames after end are rejected without touching the gateway.
	calls := gw.analyzeCalls()
	_, err = r.SubmitFrame(context.Background(), "conn-a", []byte{0x04})
	assert.ErrorIs(t, err, ErrNoActiveSession)
	assert.Equal(t, calls, gw.analyzeCalls())
}

func TestEndAnalysisReportFailureStillCleansUp(t *testing.T) {
	gw := &stubGateway{reportErr: errors.New("report service down")}
	r := newTestRegistry(gw)

	_, err := r.StartAnalysis("conn-a", "user-1", "tennis", "")
	require.NoError(t, err)

	done, err := r.EndAnalysis(context.Background(), "conn-a")
	require.NoError(t, err)
	assert.Nil(t, done.Report)
	assert.Equal(t, 0, r.Len())
}

func TestDisconnectIsIdempotent(t *testing.T) {
	r := newTestRegistry(&stubGateway{})

	_, err := r.StartAnalysis("conn-a", "user-1", "basketball", "")
	require.NoError(t, err)

	r.Disconnect("conn-a")
	assert.Equal(t, 0, r.Len())

	// Second disconnect and disconnect of an unknown connection are no-ops.
	r.Disconnect("conn-a")
	r.Disconnect("conn-zzz")
	assert.Equal(t, 0, r.Len())
}
