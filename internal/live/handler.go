package live

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/strideworks/formsync/internal/model"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
)

// Handler upgrades HTTP requests to websocket connections and runs the live
// analysis protocol over them. One goroutine per connection; the registry
// holds the per-connection session state.
type Handler struct {
	registry      *Registry
	logger        *slog.Logger
	maxFrameBytes int64
	upgrader      websocket.Upgrader
}

// NewHandler creates a websocket handler. maxFrameBytes bounds the size of a
// single client message; oversized frames close the connection.
func NewHandler(registry *Registry, maxFrameBytes int64, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		registry:      registry,
		logger:        logger,
		maxFrameBytes: maxFrameBytes,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients connect from app origins unknown at build
			// time; session state is connection-scoped, so cross-origin
			// reads expose nothing.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and runs the read loop until the client
// disconnects.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	connID := uuid.NewString()
	defer func() {
		h.registry.Disconnect(connID)
		_ = conn.Close()
	}()

	conn.SetReadLimit(h.maxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	stop := make(chan struct{})
	defer close(stop)
	go h.pingLoop(conn, stop)

	for {
		var msg model.LiveClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed", "conn_id", connID, "error", err)
			}
			return
		}
		h.dispatch(r, conn, connID, msg)
	}
}

func (h *Handler) dispatch(r *http.Request, conn *websocket.Conn, connID string, msg model.LiveClientMessage) {
	switch msg.Type {
	case model.MsgStartAnalysis:
		h.handleStart(conn, connID, msg)
	case model.MsgCameraFrame:
		h.handleFrame(r, conn, connID, msg)
	case model.MsgEndAnalysis:
		h.handleEnd(r, conn, connID)
	default:
		h.send(conn, model.LiveServerMessage{
			Type:      model.MsgError,
			Error:     &model.ErrorDetail{Code: model.ErrCodeValidation, Message: "unknown message type " + msg.Type},
			Timestamp: time.Now().UTC(),
		})
	}
}

func (h *Handler) handleStart(conn *websocket.Conn, connID string, msg model.LiveClientMessage) {
	if msg.UserID == "" || msg.Sport == "" {
		h.send(conn, model.LiveServerMessage{
			Type:      model.MsgError,
			Error:     &model.ErrorDetail{Code: model.ErrCodeValidation, Message: "user_id and sport are required"},
			Timestamp: time.Now().UTC(),
		})
		return
	}

	s, err := h.registry.StartAnalysis(connID, msg.UserID, msg.Sport, msg.AnalysisType)
	if err != nil {
		code := model.ErrCodeInternalError
		if errors.Is(err, ErrAlreadyActive) {
			code = model.ErrCodeAlreadyActive
		}
		h.send(conn, model.LiveServerMessage{
			Type:      model.MsgError,
			Error:     &model.ErrorDetail{Code: code, Message: err.Error()},
			Timestamp: time.Now().UTC(),
		})
		return
	}

	h.send(conn, model.LiveServerMessage{
		Type:         model.MsgAnalysisStarted,
		SessionID:    s.ID,
		Sport:        s.Sport,
		AnalysisType: s.AnalysisType,
		Timestamp:    s.StartedAt,
	})
}

func (h *Handler) handleFrame(r *http.Request, conn *websocket.Conn, connID string, msg model.LiveClientMessage) {
	verdict, err := h.registry.SubmitFrame(r.Context(), connID, msg.FrameData)
	if err != nil {
		if errors.Is(err, ErrNoActiveSession) {
			h.send(conn, model.LiveServerMessage{
				Type:      model.MsgError,
				Error:     &model.ErrorDetail{Code: model.ErrCodeNoActiveSession, Message: err.Error()},
				Timestamp: time.Now().UTC(),
			})
			return
		}
		// Inference failure: report it and keep the session alive for the
		// next frame.
		h.send(conn, model.LiveServerMessage{
			Type:      model.MsgAnalysisError,
			Error:     &model.ErrorDetail{Code: model.ErrCodeUpstreamUnavailable, Message: "analysis failed for this frame"},
			Timestamp: time.Now().UTC(),
		})
		return
	}

	result, err := json.Marshal(verdict)
	if err != nil {
		h.logger.Error("marshal verdict", "error", err)
		return
	}
	h.send(conn, model.LiveServerMessage{
		Type:      model.MsgAnalysisResult,
		Result:    result,
		Timestamp: verdict.Timestamp,
	})
}

func (h *Handler) handleEnd(r *http.Request, conn *websocket.Conn, connID string) {
	done, err := h.registry.EndAnalysis(r.Context(), connID)
	if err != nil {
		h.send(conn, model.LiveServerMessage{
			Type:      model.MsgError,
			Error:     &model.ErrorDetail{Code: model.ErrCodeNoActiveSession, Message: err.Error()},
			Timestamp: time.Now().UTC(),
		})
		return
	}

	out := model.LiveServerMessage{
		Type:         model.MsgSessionComplete,
		SessionID:    done.SessionID,
		Sport:        done.Sport,
		AnalysisType: done.AnalysisType,
		Timestamp:    time.Now().UTC(),
	}
	if done.Report != nil {
		if report, err := json.Marshal(done.Report); err == nil {
			out.Report = report
		}
	}
	h.send(conn, out)
}

func (h *Handler) send(conn *websocket.Conn, msg model.LiveServerMessage) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		h.logger.Warn("websocket write failed", "error", err)
	}
}

func (h *Handler) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}
