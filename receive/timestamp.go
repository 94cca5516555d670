package receive

import "fmt"

// TimestampMode selects which timing information drives outgoing PTS.
type TimestampMode int

const (
	// TimestampModeReceiveTimeTimecode smooths the sender's timecode
	// against the local receive time. The default.
	TimestampModeReceiveTimeTimecode TimestampMode = iota
	// TimestampModeReceiveTimeTimestamp smooths the sender's timestamp
	// against the local receive time.
	TimestampModeReceiveTimeTimestamp
	// TimestampModeTimecode uses the sender's timecode directly.
	TimestampModeTimecode
	// TimestampModeTimestamp maps the sender's UNIX-epoch timestamp onto
	// the local timeline via the wall clock.
	TimestampModeTimestamp
	// TimestampModeReceiveTime uses the local receive time directly.
	TimestampModeReceiveTime
)

var timestampModeNames = []string{
	"receive-time-vs-timecode",
	"receive-time-vs-timestamp",
	"timecode",
	"timestamp",
	"receive-time",
}

func (m TimestampMode) String() string {
	if m < 0 || int(m) >= len(timestampModeNames) {
		return fmt.Sprintf("TimestampMode(%d)", int(m))
	}
	return timestampModeNames[m]
}

// UnmarshalText implements encoding.TextUnmarshaler so modes decode from
// their property string forms.
func (m *TimestampMode) UnmarshalText(text []byte) error {
	for i, name := range timestampModeNames {
		if name == string(text) {
			*m = TimestampMode(i)
			return nil
		}
	}
	return fmt.Errorf("unknown timestamp mode %q", text)
}

// MarshalText implements encoding.TextMarshaler.
func (m TimestampMode) MarshalText() ([]byte, error) {
	if m < 0 || int(m) >= len(timestampModeNames) {
		return nil, fmt.Errorf("unknown timestamp mode %d", int(m))
	}
	return []byte(timestampModeNames[m]), nil
}
