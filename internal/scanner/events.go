package scanner

import "github.com/example/id-verify/internal/quality"

// Phase is the capture state machine's current state.
type Phase string

const (
	PhaseIdle           Phase = "IDLE"
	PhaseDetectingFront Phase = "DETECTING_FRONT"
	PhaseFrontCaptured  Phase = "FRONT_CAPTURED"
	PhaseDetectingBack  Phase = "DETECTING_BACK"
	PhaseBackCaptured   Phase = "BACK_CAPTURED"
	PhaseProcessing     Phase = "PROCESSING"
	PhaseCompleted      Phase = "COMPLETED"
	PhaseError          Phase = "ERROR"
)

// Side tags a frame with the document side it shows.
type Side string

const (
	SideFront Side = "front"
	SideBack  Side = "back"
)

// EventType discriminates engine events.
type EventType string

const (
	EventStatusChanged EventType = "status_changed"
	EventSideCaptured  EventType = "side_captured"
	EventScanCompleted EventType = "scan_completed"
	EventError         EventType = "error"
)

// Event is one engine notification, consumed by the host UI or bridge.
type Event struct {
	Type     EventType      `json:"type"`
	Phase    Phase          `json:"phase,omitempty"`
	Progress float64        `json:"progress"`
	Message  string         `json:"message,omitempty"`
	Side     Side           `json:"side,omitempty"`
	Image    []byte         `json:"image,omitempty"`
	Quality  *quality.Score `json:"quality,omitempty"`
	Result   *ScanResult    `json:"result,omitempty"`
	Code     ErrorCode      `json:"code,omitempty"`
	Details  string         `json:"details,omitempty"`
}

func progressFor(phase Phase) float64 {
	switch phase {
	case PhaseDetectingFront:
		return 0.1
	case PhaseFrontCaptured:
		return 0.4
	case PhaseDetectingBack:
		return 0.5
	case PhaseBackCaptured:
		return 0.8
	case PhaseProcessing:
		return 0.9
	case PhaseCompleted:
		return 1.0
	default:
		return 0
	}
}
