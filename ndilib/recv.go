package ndilib

import (
	"errors"
	"fmt"
	"runtime"
	"time"
)

// Bandwidth selects how much of a stream a receiver asks the sender for.
type Bandwidth int32

const (
	BandwidthMetadataOnly Bandwidth = -10
	BandwidthAudioOnly    Bandwidth = 10
	BandwidthLowest       Bandwidth = 0
	BandwidthHighest      Bandwidth = 100
)

func (b Bandwidth) String() string {
	switch b {
	case BandwidthMetadataOnly:
		return "metadata-only"
	case BandwidthAudioOnly:
		return "audio-only"
	case BandwidthLowest:
		return "lowest"
	case BandwidthHighest:
		return "highest"
	default:
		return fmt.Sprintf("Bandwidth(%d)", int32(b))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler so bandwidths decode
// from their property string forms.
func (b *Bandwidth) UnmarshalText(text []byte) error {
	switch string(text) {
	case "metadata-only":
		*b = BandwidthMetadataOnly
	case "audio-only":
		*b = BandwidthAudioOnly
	case "lowest":
		*b = BandwidthLowest
	case "highest":
		*b = BandwidthHighest
	default:
		return fmt.Errorf("unknown bandwidth %q", text)
	}
	return nil
}

// ColorFormat selects the pixel layouts a receiver is willing to accept.
// The compressed formats require the advanced runtime and deliver
// passthrough compressed packets instead of raw frames.
type ColorFormat int32

const (
	ColorFormatBGRXBGRA ColorFormat = 0
	ColorFormatUYVYBGRA ColorFormat = 1
	ColorFormatRGBXRGBA ColorFormat = 2
	ColorFormatUYVYRGBA ColorFormat = 3
	ColorFormatFastest  ColorFormat = 100
	ColorFormatBest     ColorFormat = 101

	ColorFormatCompressedV1          ColorFormat = 300
	ColorFormatCompressedV2          ColorFormat = 301
	ColorFormatCompressedV3          ColorFormat = 302
	ColorFormatCompressedV4          ColorFormat = 303
	ColorFormatCompressedV3WithAudio ColorFormat = 304
	ColorFormatCompressedV4WithAudio ColorFormat = 305
	ColorFormatCompressedV5          ColorFormat = 306
	ColorFormatCompressedV5WithAudio ColorFormat = 307
)

var colorFormatNames = map[ColorFormat]string{
	ColorFormatBGRXBGRA:              "bgrx-bgra",
	ColorFormatUYVYBGRA:              "uyvy-bgra",
	ColorFormatRGBXRGBA:              "rgbx-rgba",
	ColorFormatUYVYRGBA:              "uyvy-rgba",
	ColorFormatFastest:               "fastest",
	ColorFormatBest:                  "best",
	ColorFormatCompressedV1:          "compressed-v1",
	ColorFormatCompressedV2:          "compressed-v2",
	ColorFormatCompressedV3:          "compressed-v3",
	ColorFormatCompressedV4:          "compressed-v4",
	ColorFormatCompressedV3WithAudio: "compressed-v3-with-audio",
	ColorFormatCompressedV4WithAudio: "compressed-v4-with-audio",
	ColorFormatCompressedV5:          "compressed-v5",
	ColorFormatCompressedV5WithAudio: "compressed-v5-with-audio",
}

func (c ColorFormat) String() string {
	if s, ok := colorFormatNames[c]; ok {
		return s
	}
	return fmt.Sprintf("ColorFormat(%d)", int32(c))
}

// UnmarshalText implements encoding.TextUnmarshaler so color formats decode
// from their property string forms.
func (c *ColorFormat) UnmarshalText(text []byte) error {
	for format, name := range colorFormatNames {
		if name == string(text) {
			*c = format
			return nil
		}
	}
	return fmt.Errorf("unknown color format %q", text)
}

// Tally is the on-air state a receiver reports back to the sender.
type Tally struct {
	OnProgram bool
	OnPreview bool
}

// DefaultTally marks the receiver as on program.
func DefaultTally() Tally {
	return Tally{OnProgram: true}
}

// RecvOptions configure a receiver.
type RecvOptions struct {
	// Source to connect to; Name, URLAddress, or both.
	Source Source
	// Name identifies this receiver to the sender; empty uses the
	// library default.
	Name string
	// ColorFormat the receiver accepts.
	ColorFormat ColorFormat
	// Bandwidth to request.
	Bandwidth Bandwidth
	// AllowVideoFields lets the sender deliver fielded video.
	AllowVideoFields bool
}

// DefaultRecvOptions returns the receiving defaults: highest bandwidth,
// UYVY or BGRA frames, fielded video allowed.
func DefaultRecvOptions() RecvOptions {
	return RecvOptions{
		ColorFormat:      ColorFormatUYVYBGRA,
		Bandwidth:        BandwidthHighest,
		AllowVideoFields: true,
	}
}

// ErrCapture is returned when the library reports a connection error while
// capturing.
var ErrCapture = errors.New("capture error")

// Receiver captures frames from one source.
type Receiver struct {
	inst uintptr
}

// NewReceiver connects to a source, loading the runtime first if needed.
// Connection is asynchronous; the first frame may take a while.
func NewReceiver(opts RecvOptions) (*Receiver, error) {
	if err := Load(); err != nil {
		return nil, err
	}

	create := recvCreateV3T{
		source: sourceT{
			ndiName:    cStringOrNil(opts.Source.Name),
			urlAddress: cStringOrNil(opts.Source.URLAddress),
		},
		colorFormat:      int32(opts.ColorFormat),
		bandwidth:        int32(opts.Bandwidth),
		allowVideoFields: opts.AllowVideoFields,
		recvName:         cStringOrNil(opts.Name),
	}
	inst := lib.recvCreateV3(&create)
	runtime.KeepAlive(&create)
	if inst == 0 {
		return nil, fmt.Errorf("creating NDI receiver for %q failed", opts.Source.Name)
	}
	return &Receiver{inst: inst}, nil
}

// Frame is one captured frame: a *VideoFrame, *AudioFrame, or
// *MetadataFrame.
type Frame interface {
	frame()
}

// Capture waits up to timeout for the next frame. A nil frame with a nil
// error means nothing arrived in time. The frame's payload is copied out of
// the library before return.
func (r *Receiver) Capture(timeout time.Duration) (Frame, error) {
	var vf videoFrameV2T
	var af audioFrameV3T
	var mf metadataFrameT

	switch t := lib.recvCaptureV3(r.inst, &vf, &af, &mf, uint32(timeout.Milliseconds())); t {
	case frameTypeVideo:
		f := copyVideoFrame(&vf)
		lib.recvFreeVideoV2(r.inst, &vf)
		return f, nil
	case frameTypeAudio:
		f := copyAudioFrame(&af)
		lib.recvFreeAudioV3(r.inst, &af)
		return f, nil
	case frameTypeMetadata:
		f := copyMetadataFrame(&mf)
		lib.recvFreeMetadata(r.inst, &mf)
		return f, nil
	case frameTypeError:
		return nil, ErrCapture
	default:
		// None and status changes both mean no data this round.
		return nil, nil
	}
}

// SetTally reports the receiver's on-air state to the sender.
func (r *Receiver) SetTally(t Tally) bool {
	tally := tallyT{onProgram: t.OnProgram, onPreview: t.OnPreview}
	ok := lib.recvSetTally(r.inst, &tally)
	runtime.KeepAlive(&tally)
	return ok
}

// SendMetadata sends a metadata string upstream to the sender.
func (r *Receiver) SendMetadata(data string) bool {
	payload := cString(data)
	frame := metadataFrameT{
		length:   int32(len(data)),
		timecode: SendTimecodeSynthesize,
		data:     payload,
	}
	ok := lib.recvSendMetadata(r.inst, &frame)
	runtime.KeepAlive(payload)
	return ok
}

// Queue returns how many frames of each kind are waiting in the library.
func (r *Receiver) Queue() (video, audio, metadata int) {
	var q recvQueueT
	lib.recvGetQueue(r.inst, &q)
	return int(q.videoFrames), int(q.audioFrames), int(q.metadataFrames)
}

// Close disconnects and destroys the receiver.
func (r *Receiver) Close() {
	if r.inst != 0 {
		lib.recvDestroy(r.inst)
		r.inst = 0
	}
}
