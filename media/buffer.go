package media

import (
	"fmt"
	"math"
	"time"
)

// Channel buffer sizes used between elements to decouple production from
// consumption. Sized to absorb jitter without excessive memory: ~2 seconds
// of video, ~2.5s of audio.
const (
	VideoBufferSize   = 60
	AudioBufferSize   = 120
	CaptionBufferSize = 30
)

// NoPTS marks a buffer whose presentation time is unknown.
const NoPTS = time.Duration(math.MinInt64)

// Flags carry per-buffer state alongside the payload.
type Flags uint32

const (
	// FlagDiscont marks the first buffer after a gap in the flow.
	FlagDiscont Flags = 1 << iota
	// FlagResync marks the first buffer after a flush.
	FlagResync
	// FlagGap marks a buffer that carries no payload of its own.
	FlagGap
	// FlagDeltaUnit marks a compressed frame that cannot be decoded on
	// its own.
	FlagDeltaUnit
	// FlagInterlaced marks a buffer with interlaced content.
	FlagInterlaced
	// FlagTFF marks an interleaved buffer whose top field is first.
	FlagTFF
	// FlagTopField marks an alternate-mode buffer carrying the top field.
	FlagTopField
	// FlagBottomField marks an alternate-mode buffer carrying the bottom
	// field.
	FlagBottomField
)

// Has reports whether all bits in mask are set.
func (f Flags) Has(mask Flags) bool {
	return f&mask == mask
}

// StreamKind distinguishes the media type of a buffer.
type StreamKind int

const (
	KindVideo StreamKind = iota
	KindAudio
)

func (k StreamKind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	default:
		return fmt.Sprintf("StreamKind(%d)", int(k))
	}
}

// StreamMeta is attached to every buffer produced by the source element and
// tells downstream elements what the payload is. Video is meaningful when
// Kind is KindVideo, Audio when Kind is KindAudio.
type StreamMeta struct {
	Kind  StreamKind
	Video VideoCaps
	Audio AudioCaps
}

// CapsEqual reports whether two metas describe the same flow.
func (m *StreamMeta) CapsEqual(other *StreamMeta) bool {
	if m == nil || other == nil {
		return m == other
	}
	if m.Kind != other.Kind {
		return false
	}
	if m.Kind == KindVideo {
		return m.Video.Equal(other.Video)
	}
	return m.Audio.Equal(other.Audio)
}

// AudioAttachment is one audio frame attached to a video buffer by the
// combiner element for the sink to send ahead of the video. Timecode is in
// the transport library's 100 nanosecond units.
type AudioAttachment struct {
	Caps     AudioCaps
	Data     []byte
	Timecode int64
}

// CaptionKind distinguishes the closed caption encodings carried in frame
// metadata.
type CaptionKind int

const (
	// CaptionCEA608 payloads are raw CEA-608 byte pairs.
	CaptionCEA608 CaptionKind = iota
	// CaptionCEA708 payloads are CEA-708 cc triples
	// (cc_valid/cc_type byte followed by two data bytes, repeated).
	CaptionCEA708
)

func (k CaptionKind) String() string {
	switch k {
	case CaptionCEA608:
		return "cea608"
	case CaptionCEA708:
		return "cea708"
	default:
		return fmt.Sprintf("CaptionKind(%d)", int(k))
	}
}

// Caption is closed caption data extracted from a video frame's metadata.
type Caption struct {
	Kind CaptionKind
	Line int
	Data []byte
}

// Buffer is the unit of data exchanged between elements.
//
// PTS is a running time assigned by the producing element. Timecode and
// Timestamp are the sender-side stamps from the transport library in its
// native 100 nanosecond units, carried for downstream use; Timestamp is
// only meaningful when HasTimestamp is set.
type Buffer struct {
	Data     []byte
	PTS      time.Duration
	Duration time.Duration
	Flags    Flags

	Timecode     int64
	Timestamp    int64
	HasTimestamp bool

	Stream   *StreamMeta
	Audio    []AudioAttachment
	Captions []Caption
}
