package market

import "time"

// StreamState is an upstream adapter's lifecycle position.
type StreamState int

const (
	Stopped StreamState = iota
	Connecting
	Running
	Failed
)

func (s StreamState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Running:
		return "running"
	case Failed:
		return "failed"
	default:
		return "stopped"
	}
}

// MarshalText renders the state name in JSON payloads.
func (s StreamState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText parses a state name; unknown names decode as Stopped.
func (s *StreamState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "connecting":
		*s = Connecting
	case "running":
		*s = Running
	case "failed":
		*s = Failed
	default:
		*s = Stopped
	}
	return nil
}

// StreamStatus is the supervisor's view of one adapter.
type StreamStatus struct {
	Stream    string      `json:"stream"`
	State     StreamState `json:"state"`
	Attempts  int         `json:"attempts"`
	LastError string      `json:"lastError,omitempty"`
	Since     time.Time   `json:"since"`
}
