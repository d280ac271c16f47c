package model

import (
	"encoding/json"
	"time"
)

// Live protocol message types. One websocket connection carries at most one
// analysis session at a time; the connection handler owns the session state.
const (
	// Client -> server.
	MsgStartAnalysis = "start_analysis"
	MsgCameraFrame   = "camera_frame"
	MsgEndAnalysis   = "end_analysis"

	// Server -> client.
	MsgAnalysisStarted = "analysis_started"
	MsgAnalysisResult  = "analysis_result"
	MsgAnalysisError   = "analysis_error"
	MsgSessionComplete = "session_complete"
	MsgError           = "error"
)

// LiveClientMessage is the envelope for every client -> server message.
// Fields beyond Type are populated depending on the message type.
type LiveClientMessage struct {
	Type string `json:"type"`

	// start_analysis
	UserID       string `json:"user_id,omitempty"`
	Sport        string `json:"sport,omitempty"`
	AnalysisType string `json:"analysis_type,omitempty"`

	// camera_frame: base64-encoded frame payload.
	FrameData []byte `json:"frame_data,omitempty"`
}

// LiveServerMessage is the envelope for every server -> client message.
type LiveServerMessage struct {
	Type         string          `json:"type"`
	SessionID    string          `json:"session_id,omitempty"`
	Sport        string          `json:"sport,omitempty"`
	AnalysisType string          `json:"analysis_type,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	Report       json.RawMessage `json:"report,omitempty"`
	Error        *ErrorDetail    `json:"error,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}
