package live

import (
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strideworks/formsync/internal/model"
)

func dialTestHandler(t *testing.T, h *Handler) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) model.LiveServerMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg model.LiveServerMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHandlerFullSession(t *testing.T) {
	gw := &stubGateway{scores: []float64{70, 75, 80}}
	registry := newTestRegistry(gw)
	h := NewHandler(registry, 1<<20, slog.New(slog.DiscardHandler))
	conn := dialTestHandler(t, h)

	require.NoError(t, conn.WriteJSON(model.LiveClientMessage{
		Type:         model.MsgStartAnalysis,
		UserID:       "user-1",
		Sport:        "basketball",
		AnalysisType: "shooting_form",
	}))
	started := readMessage(t, conn)
	assert.Equal(t, model.MsgAnalysisStarted, started.Type)
	assert.NotEmpty(t, started.SessionID)
	assert.Equal(t, "basketball", started.Sport)

	for range 3 {
		require.NoError(t, conn.WriteJSON(model.LiveClientMessage{
			Type:      model.MsgCameraFrame,
			FrameData: []byte{0xff, 0xd8},
		}))
		result := readMessage(t, conn)
		assert.Equal(t, model.MsgAnalysisResult, result.Type)
		assert.NotEmpty(t, result.Result)
	}

	require.NoError(t, conn.WriteJSON(model.LiveClientMessage{Type: model.MsgEndAnalysis}))
	complete := readMessage(t, conn)
	assert.Equal(t, model.MsgSessionComplete, complete.Type)
	assert.Equal(t, started.SessionID, complete.SessionID)
	assert.NotEmpty(t, complete.Report)

	// session_complete arrived exactly once and nothing is left registered.
	assert.Equal(t, 0, registry.Len())

	// A second end_analysis is an error, not another session_complete.
	require.NoError(t, conn.WriteJSON(model.LiveClientMessage{Type: model.MsgEndAnalysis}))
	errMsg := readMessage(t, conn)
	assert.Equal(t, model.MsgError, errMsg.Type)
	require.NotNil(t, errMsg.Error)
	assert.Equal(t, model.ErrCodeNoActiveSession, errMsg.Error.Code)
}

func TestHandlerFrameBeforeStart(t *testing.T) {
	gw := &stubGateway{}
	h := NewHandler(newTestRegistry(gw), 1<<20, slog.New(slog.DiscardHandler))
	conn := dialTestHandler(t, h)

	require.NoError(t, conn.WriteJSON(model.LiveClientMessage{
		Type:      model.MsgCameraFrame,
		FrameData: []byte{0x01},
	}))
	msg := readMessage(t, conn)
	assert.Equal(t, model.MsgError, msg.Type)
	require.NotNil(t, msg.Error)
	assert.Equal(t, model.ErrCodeNoActiveSession, msg.Error.Code)
	assert.Equal(t, 0, gw.analyzeCalls())
}

func TestHandlerDoubleStart(t *testing.T) {
	h := NewHandler(newTestRegistry(&stubGateway{}), 1<<20, slog.New(slog.DiscardHandler))
	conn := dialTestHandler(t, h)

	start := model.LiveClientMessage{Type: model.MsgStartAnalysis, UserID: "u", Sport: "tennis"}
	require.NoError(t, conn.WriteJSON(start))
	assert.Equal(t, model.MsgAnalysisStarted, readMessage(t, conn).Type)

	require.NoError(t, conn.WriteJSON(start))
	msg := readMessage(t, conn)
	assert.Equal(t, model.MsgError, msg.Type)
	require.NotNil(t, msg.Error)
	assert.Equal(t, model.ErrCodeAlreadyActive, msg.Error.Code)
}

func TestHandlerDisconnectCleansUp(t *testing.T) {
	registry := newTestRegistry(&stubGateway{})
	h := NewHandler(registry, 1<<20, slog.New(slog.DiscardHandler))
	conn := dialTestHandler(t, h)

	require.NoError(t, conn.WriteJSON(model.LiveClientMessage{
		Type: model.MsgStartAnalysis, UserID: "u", Sport: "tennis",
	}))
	readMessage(t, conn)
	assert.Equal(t, 1, registry.Len())

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		return registry.Len() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
