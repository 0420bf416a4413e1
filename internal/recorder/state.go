package recorder

import "time"

// State is the detection state of the process-wide session.
type State int

const (
	StateIdle State = iota
	StateArmed
	StateRecording
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateRecording:
		return "recording"
	default:
		return "unknown"
	}
}

// StopReason tells why a session returned to Idle.
type StopReason string

const (
	ReasonStop     StopReason = "stop"
	ReasonAutoStop StopReason = "auto-stop"
	ReasonAbort    StopReason = "abort"
)

// EventType identifies a session transition.
type EventType string

const (
	EventArmed     EventType = "armed"
	EventRecording EventType = "recording"
	EventIdle      EventType = "idle"
)

// Session is the state of the active session.
type Session struct {
	ID                   string
	ArmedAt              time.Time
	RecordingStart       time.Time
	LastAboveThresholdAt time.Time
	CurrentLevel         float64
	// Config is frozen when the session enters Recording.
	Config         RecordingConfig
	BuffersWritten uint64
	FramesWritten  uint64
	WriteFailures  uint64
}

// SessionSummary describes a session that has returned to Idle.
type SessionSummary struct {
	ID             string          `json:"id"`
	Reason         StopReason      `json:"reason"`
	Recorded       bool            `json:"recorded"` // false if the session never left Armed
	Config         RecordingConfig `json:"config"`
	ArmedAt        time.Time       `json:"armedAt"`
	RecordingStart time.Time       `json:"recordingStart,omitzero"`
	EndedAt        time.Time       `json:"endedAt"`
	Duration       time.Duration   `json:"duration"`
	FramesWritten  uint64          `json:"framesWritten"`
	BuffersWritten uint64          `json:"buffersWritten"`
	WriteFailures  uint64          `json:"writeFailures"`
	Cause          string          `json:"cause,omitempty"`
}

// Event is emitted on every session transition.
type Event struct {
	Type      EventType       `json:"type"`
	SessionID string          `json:"sessionId"`
	Time      time.Time       `json:"time"`
	Level     float64         `json:"level"`
	Config    RecordingConfig `json:"config"`
	Summary   *SessionSummary `json:"summary,omitempty"`
}

// Status is a point-in-time view for the control plane.
type Status struct {
	State     State
	SessionID string
	Config    RecordingConfig
	Level     float64
	// Duration is whole seconds since recording began, 0 unless Recording.
	Duration int
}
