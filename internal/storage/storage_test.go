package storage_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strideworks/formsync/internal/model"
	"github.com/strideworks/formsync/internal/storage"
	"github.com/strideworks/formsync/internal/testutil"
)

var testDB *storage.DB

func TestMain(m *testing.M) {
	tc := testutil.MustStartPostgres()

	var err error
	testDB, err = tc.NewTestDB(context.Background(), testutil.TestLogger())
	if err != nil {
		tc.Terminate()
		panic(err)
	}

	code := m.Run()
	testDB.Close(context.Background())
	tc.Terminate()
	os.Exit(code)
}

func createTestSession(t *testing.T, userID string) model.RoomSession {
	t.Helper()
	ceiling := 2.5
	s, err := testDB.CreateRoomSession(context.Background(), model.CreateRoomSessionRequest{
		UserID:      userID,
		Sport:       "basketball",
		Difficulty:  "intermediate",
		Platform:    model.PlatformWeb,
		SafetyScore: 90,
		Room: model.RoomGeometry{
			Width: 3, Height: 3, Area: 9,
			CeilingHeight: &ceiling, IsFlat: true, AspectRatio: 1,
		},
		Calibration: model.Calibration{
			BaselineDistance: 1.5,
			RoomCenter:       []float64{0, 0, 1.5},
			ScaleFactor:      1,
		},
	})
	require.NoError(t, err)
	return s
}

func TestCreateAndGetRoomSession(t *testing.T) {
	created := createTestSession(t, "store-user-1")

	got, err := testDB.GetRoomSession(context.Background(), created.ID)
	require.NoError(t, err)

	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "store-user-1", got.UserID)
	assert.Equal(t, model.StatusActive, got.Status)
	assert.Equal(t, created.Room, got.Room)
	assert.Equal(t, []float64{0, 0, 1.5}, got.Calibration.RoomCenter)
	assert.Equal(t, 90.0, got.SafetyScore)
	assert.Nil(t, got.TotalScore)
	assert.Nil(t, got.CompletedAt)
}

func TestGetRoomSessionNotFound(t *testing.T) {
	_, err := testDB.GetRoomSession(context.Background(), uuid.New())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdateRoomSession(t *testing.T) {
	s := createTestSession(t, "store-user-2")

	s.AverageFPS = 60
	s.TrackingQuality = 85
	s.SafetyScore = 70
	s.ObstacleCount = 2
	s.LightingConditions = "dim"
	s.ReflectiveSurfaces = true
	s.Platform = model.PlatformNativeAR
	s.UpdatedAt = time.Now().UTC()

	require.NoError(t, testDB.UpdateRoomSession(context.Background(), s))

	got, err := testDB.GetRoomSession(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, 60.0, got.AverageFPS)
	assert.Equal(t, 85.0, got.TrackingQuality)
	assert.Equal(t, 70.0, got.SafetyScore)
	assert.Equal(t, 2, got.ObstacleCount)
	assert.Equal(t, "dim", got.LightingConditions)
	assert.True(t, got.ReflectiveSurfaces)
	assert.Equal(t, model.PlatformNativeAR, got.Platform)
}

func TestUpdateUnknownSession(t *testing.T) {
	err := testDB.UpdateRoomSession(context.Background(), model.RoomSession{ID: uuid.New()})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := createTestSession(t, "store-user-3")

	// Resume on an active session is an invalid transition.
	_, err := testDB.ResumeSession(ctx, s.ID)
	assert.ErrorIs(t, err, storage.ErrInvalidTransition)

	// Pause via a critical incident, then resume.
	_, paused, err := testDB.AppendIncident(ctx, s.ID, model.IncidentCollisionRisk, model.SeverityCritical, "obstacle", nil)
	require.NoError(t, err)
	require.True(t, paused)

	resumed, err := testDB.ResumeSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, resumed.Status)

	completed, err := testDB.CompleteSession(ctx, s.ID, 82.5)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, completed.Status)
	require.NotNil(t, completed.TotalScore)
	assert.Equal(t, 82.5, *completed.TotalScore)
	assert.NotNil(t, completed.CompletedAt)

	// Terminal states admit nothing.
	_, err = testDB.CompleteSession(ctx, s.ID, 90)
	assert.ErrorIs(t, err, storage.ErrInvalidTransition)
	_, err = testDB.ResumeSession(ctx, s.ID)
	assert.ErrorIs(t, err, storage.ErrInvalidTransition)
	assert.ErrorIs(t, testDB.FailSession(ctx, s.ID), storage.ErrInvalidTransition)

	// Missing sessions are distinguished from bad transitions.
	_, err = testDB.CompleteSession(ctx, uuid.New(), 50)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCriticalIncidentPausesExactlyOnce(t *testing.T) {
	ctx := context.Background()
	s := createTestSession(t, "store-user-4")

	first, paused, err := testDB.AppendIncident(ctx, s.ID, model.IncidentBoundaryViolation, model.SeverityCritical, "stepped out", []float64{1, 0, 2})
	require.NoError(t, err)
	assert.True(t, paused)
	assert.True(t, first.TriggeredPause)

	second, paused, err := testDB.AppendIncident(ctx, s.ID, model.IncidentCollisionRisk, model.SeverityCritical, "near miss", nil)
	require.NoError(t, err)
	assert.False(t, paused)
	assert.False(t, second.TriggeredPause)

	got, err := testDB.GetRoomSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPaused, got.Status)
	assert.Equal(t, 2, got.IncidentCount)
	require.NotNil(t, got.LastIncidentSeverity)
	assert.Equal(t, model.SeverityCritical, *got.LastIncidentSeverity)

	incidents, err := testDB.ListIncidents(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, incidents, 2)
	assert.Equal(t, []float64{1, 0, 2}, incidents[0].UserPosition)
}

func TestNonCriticalIncidentDoesNotPause(t *testing.T) {
	ctx := context.Background()
	s := createTestSession(t, "store-user-5")

	_, paused, err := testDB.AppendIncident(ctx, s.ID, model.IncidentWallProximity, model.SeverityWarning, "close to wall", nil)
	require.NoError(t, err)
	assert.False(t, paused)

	got, err := testDB.GetRoomSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, got.Status)
	assert.Equal(t, 1, got.IncidentCount)
}

func TestIncidentUnknownSession(t *testing.T) {
	_, _, err := testDB.AppendIncident(context.Background(), uuid.New(), model.IncidentPoseUnsafe, model.SeverityInfo, "x", nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSnapshots(t *testing.T) {
	ctx := context.Background()
	s := createTestSession(t, "store-user-6")

	for i, scores := range [][3]float64{{70, 80, 90}, {75, 82, 91}} {
		snap, err := testDB.AppendSnapshot(ctx, s.ID, model.RecordSnapshotRequest{
			AdaptationScore:       scores[0],
			SpaceUtilizationScore: scores[1],
			SafetyComplianceScore: scores[2],
		})
		require.NoError(t, err, "snapshot %d", i)
		assert.Equal(t, s.ID, snap.SessionID)
	}

	snaps, err := testDB.ListSnapshots(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, 70.0, snaps[0].AdaptationScore)
	assert.Equal(t, 75.0, snaps[1].AdaptationScore)

	_, err = testDB.AppendSnapshot(ctx, uuid.New(), model.RecordSnapshotRequest{})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListRoomSessionsByUser(t *testing.T) {
	ctx := context.Background()
	const user = "store-user-7"

	first := createTestSession(t, user)
	second := createTestSession(t, user)

	sessions, err := testDB.ListRoomSessionsByUser(ctx, user)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	// Newest first.
	assert.Equal(t, second.ID, sessions[0].ID)
	assert.Equal(t, first.ID, sessions[1].ID)
}

func TestListCompletedSessionStats(t *testing.T) {
	ctx := context.Background()
	const user = "store-user-8"

	a := createTestSession(t, user)
	b := createTestSession(t, user)
	createTestSession(t, user) // stays active, excluded from stats

	_, _, err := testDB.AppendIncident(ctx, a.ID, model.IncidentTrackingLost, model.SeverityWarning, "lost tracking", nil)
	require.NoError(t, err)

	_, err = testDB.CompleteSession(ctx, a.ID, 75)
	require.NoError(t, err)
	_, err = testDB.CompleteSession(ctx, b.ID, 85)
	require.NoError(t, err)

	stats, err := testDB.ListCompletedSessionStats(ctx, user)
	require.NoError(t, err)
	require.Len(t, stats, 2)

	// Most recently completed first.
	assert.Equal(t, 85.0, stats[0].TotalScore)
	assert.Equal(t, 0, stats[0].IncidentCount)
	assert.Equal(t, 75.0, stats[1].TotalScore)
	assert.Equal(t, 1, stats[1].IncidentCount)
}

func TestListStaleSessions(t *testing.T) {
	ctx := context.Background()
	s := createTestSession(t, "store-user-9")

	// Nothing is stale yet.
	ids, err := testDB.ListStaleSessions(ctx, time.Now().UTC().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.NotContains(t, ids, s.ID)

	// With a future cutoff the fresh session qualifies.
	ids, err = testDB.ListStaleSessions(ctx, time.Now().UTC().Add(time.Hour), 100)
	require.NoError(t, err)
	assert.Contains(t, ids, s.ID)

	require.NoError(t, testDB.FailSession(ctx, s.ID))

	got, err := testDB.GetRoomSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)

	// Failed sessions never show up again.
	ids, err = testDB.ListStaleSessions(ctx, time.Now().UTC().Add(time.Hour), 100)
	require.NoError(t, err)
	assert.NotContains(t, ids, s.ID)
}

func TestNotifyRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.True(t, testDB.HasNotifyConn())
	require.NoError(t, testDB.Listen(ctx, storage.ChannelIncidents))
	require.NoError(t, testDB.Notify(ctx, storage.ChannelIncidents, `{"ping":true}`))

	channel, payload, err := testDB.WaitForNotification(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.ChannelIncidents, channel)
	assert.Equal(t, `{"ping":true}`, payload)
}
