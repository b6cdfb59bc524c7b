package webmonitor

import (
	"github.com/chiliwax/QrCodeReader-v2/internal/effect"
	"github.com/chiliwax/QrCodeReader-v2/internal/payload"
	"github.com/chiliwax/QrCodeReader-v2/internal/recorder"
	"github.com/chiliwax/QrCodeReader-v2/internal/stream"
)

// MonitorStats summarises pipeline activity for /api/status.
type MonitorStats struct {
	UptimeSeconds      float64 `json:"uptime_seconds"`
	DetectionsReceived uint64  `json:"detections_received"`
	DetectionsDropped  uint64  `json:"detections_dropped"`
	WindowsFlushed     uint64  `json:"windows_flushed"`
	Selections         uint64  `json:"selections"`
	StreamClients      int64   `json:"stream_clients"`
}

// StatusEvent is the payload for /api/status and /api/status/stream.
type StatusEvent struct {
	State            stream.LockState         `json:"state"`
	Monitor          MonitorStats             `json:"monitor"`
	Candidates       stream.CandidateSet      `json:"candidates"`
	Selection        *stream.Selection        `json:"selection,omitempty"`
	RecentSelections []stream.Selection       `json:"recent_selections"`
	Recording        recorder.RecordingStatus `json:"recording"`
	Timestamp        float64                  `json:"timestamp"`
}

// SelectRequest is the body of POST /api/select.
type SelectRequest struct {
	Payload string `json:"payload"`
}

// ClassifyRequest is the body of POST /api/classify.
type ClassifyRequest struct {
	Data string `json:"data"`
}

// ClassifyResponse carries the parsed payload and, for MalformedURL, the
// error next to the TEXT fallback.
type ClassifyResponse struct {
	Parsed payload.Parsed `json:"parsed"`
	Error  string         `json:"error,omitempty"`
}

// ActionRequest is the body of POST /api/actions/run.
type ActionRequest struct {
	Action payload.Action `json:"action"`
}

// ActionResponse lists the platform commands the client must carry out.
type ActionResponse struct {
	Result      effect.Result    `json:"result"`
	Commands    []effect.Command `json:"commands"`
	Unsupported bool             `json:"unsupported,omitempty"`
	Notice      string           `json:"notice,omitempty"`
}

// SettingRequest is the body of PUT /api/settings/{key}. Value may be a JSON
// string or boolean.
type SettingRequest struct {
	Value any `json:"value"`
}

// RecordingRequest is the optional body of POST /api/recording/start.
type RecordingRequest struct {
	Name string `json:"name"`
}
