package scanner

import "fmt"

// ErrorCode classifies scan findings and failures.
type ErrorCode string

const (
	// Recoverable, recorded per frame.
	ErrStructural ErrorCode = "structural"
	ErrChecksum   ErrorCode = "checksum"
	ErrQuality    ErrorCode = "quality"

	// Fatal, transition the session to ERROR.
	ErrTimeout    ErrorCode = "timeout"
	ErrPermission ErrorCode = "permission"
	ErrInternal   ErrorCode = "internal"
)

// Fatal reports whether the code terminates the session. Non-fatal codes are
// per-frame findings the engine keeps scanning through.
func (c ErrorCode) Fatal() bool {
	switch c {
	case ErrTimeout, ErrPermission, ErrInternal:
		return true
	default:
		return false
	}
}

// ScanError is one coded finding. Recoverable findings accumulate and ship
// with the final result so the caller can show aggregate diagnostics; fatal
// ones terminate the session.
type ScanError struct {
	Code    ErrorCode `json:"code"`
	Side    Side      `json:"side,omitempty"`
	Message string    `json:"message"`
}

func (e ScanError) Error() string {
	if e.Side != "" {
		return fmt.Sprintf("%s (%s side): %s", e.Code, e.Side, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
