// Package media defines the buffer and caps types that flow between the NDI
// elements, from the receiving source through demuxing and on to the sink.
package media

import (
	"fmt"
	"time"
)

// VideoFormat identifies the pixel layout of an uncompressed video buffer.
type VideoFormat int

const (
	FormatUnknown VideoFormat = iota
	FormatUYVY
	FormatI420
	FormatYV12
	FormatNV12
	FormatNV21
	FormatBGRA
	FormatBGRX
	FormatRGBA
	FormatRGBX
)

var videoFormatNames = map[VideoFormat]string{
	FormatUnknown: "unknown",
	FormatUYVY:    "UYVY",
	FormatI420:    "I420",
	FormatYV12:    "YV12",
	FormatNV12:    "NV12",
	FormatNV21:    "NV21",
	FormatBGRA:    "BGRA",
	FormatBGRX:    "BGRX",
	FormatRGBA:    "RGBA",
	FormatRGBX:    "RGBX",
}

func (f VideoFormat) String() string {
	if s, ok := videoFormatNames[f]; ok {
		return s
	}
	return fmt.Sprintf("VideoFormat(%d)", int(f))
}

// LineStride returns the packed stride in bytes of the first plane for a
// frame of the given width.
func (f VideoFormat) LineStride(width int) int {
	switch f {
	case FormatUYVY:
		return 2 * width
	case FormatBGRA, FormatBGRX, FormatRGBA, FormatRGBX:
		return 4 * width
	default:
		return width
	}
}

// FrameSize returns the total packed size in bytes of a frame of the given
// dimensions, covering all planes.
func (f VideoFormat) FrameSize(width, height int) int {
	switch f {
	case FormatUYVY:
		return 2 * width * height
	case FormatBGRA, FormatBGRX, FormatRGBA, FormatRGBX:
		return 4 * width * height
	case FormatNV12, FormatNV21:
		return width*height + width*((height+1)/2)
	case FormatI420, FormatYV12:
		chroma := ((width + 1) / 2) * ((height + 1) / 2)
		return width*height + 2*chroma
	default:
		return 0
	}
}

// VideoCodec identifies the compression of a video flow. Raw flows use
// CodecRawVideo together with a VideoFormat.
type VideoCodec int

const (
	CodecRawVideo VideoCodec = iota
	CodecSpeedHQ
	CodecH264
	CodecH265
)

func (c VideoCodec) String() string {
	switch c {
	case CodecRawVideo:
		return "raw"
	case CodecSpeedHQ:
		return "speedhq"
	case CodecH264:
		return "h264"
	case CodecH265:
		return "h265"
	default:
		return fmt.Sprintf("VideoCodec(%d)", int(c))
	}
}

// InterlaceMode describes how the lines of a video buffer are laid out in
// time.
type InterlaceMode int

const (
	// InterlaceProgressive frames carry a full picture.
	InterlaceProgressive InterlaceMode = iota
	// InterlaceInterleaved frames carry both fields, line-interleaved.
	InterlaceInterleaved
	// InterlaceAlternate buffers carry a single field each; the buffer
	// flags say which.
	InterlaceAlternate
)

func (m InterlaceMode) String() string {
	switch m {
	case InterlaceProgressive:
		return "progressive"
	case InterlaceInterleaved:
		return "interleaved"
	case InterlaceAlternate:
		return "alternate"
	default:
		return fmt.Sprintf("InterlaceMode(%d)", int(m))
	}
}

// FieldOrder describes which field of an interleaved frame is first in time.
type FieldOrder int

const (
	FieldOrderUnknown FieldOrder = iota
	FieldOrderTopFirst
)

// VideoCaps describes a video flow. Codec discriminates raw from compressed
// flows; Format is meaningful only for CodecRawVideo, Variant only for
// CodecSpeedHQ.
type VideoCaps struct {
	Codec      VideoCodec
	Format     VideoFormat
	Variant    string
	Width      int
	Height     int
	FpsN       int
	FpsD       int
	ParN       int
	ParD       int
	Interlace  InterlaceMode
	FieldOrder FieldOrder
}

func (c VideoCaps) Equal(other VideoCaps) bool {
	return c == other
}

// FrameDuration returns the duration of one frame, or 0 when the frame rate
// is unknown.
func (c VideoCaps) FrameDuration() time.Duration {
	if c.FpsN <= 0 || c.FpsD <= 0 {
		return 0
	}
	return time.Duration(int64(time.Second) * int64(c.FpsD) / int64(c.FpsN))
}

func (c VideoCaps) String() string {
	switch c.Codec {
	case CodecRawVideo:
		return fmt.Sprintf("video/raw %s %dx%d %d/%dfps %s", c.Format, c.Width, c.Height, c.FpsN, c.FpsD, c.Interlace)
	case CodecSpeedHQ:
		return fmt.Sprintf("video/speedhq %s %dx%d %d/%dfps", c.Variant, c.Width, c.Height, c.FpsN, c.FpsD)
	default:
		return fmt.Sprintf("video/%s %dx%d %d/%dfps", c.Codec, c.Width, c.Height, c.FpsN, c.FpsD)
	}
}

// AudioCodec identifies the compression of an audio flow. Raw flows are
// interleaved 32-bit float samples.
type AudioCodec int

const (
	CodecRawAudio AudioCodec = iota
	CodecAAC
)

func (c AudioCodec) String() string {
	switch c {
	case CodecRawAudio:
		return "f32le"
	case CodecAAC:
		return "aac"
	default:
		return fmt.Sprintf("AudioCodec(%d)", int(c))
	}
}

// AudioCaps describes an audio flow. Raw audio is interleaved F32LE;
// CodecData carries the decoder configuration for compressed flows.
type AudioCaps struct {
	Codec     AudioCodec
	Rate      int
	Channels  int
	CodecData []byte
}

func (c AudioCaps) Equal(other AudioCaps) bool {
	if c.Codec != other.Codec || c.Rate != other.Rate || c.Channels != other.Channels {
		return false
	}
	if len(c.CodecData) != len(other.CodecData) {
		return false
	}
	for i := range c.CodecData {
		if c.CodecData[i] != other.CodecData[i] {
			return false
		}
	}
	return true
}

// BPF returns the bytes per interleaved sample frame for raw audio.
func (c AudioCaps) BPF() int {
	return 4 * c.Channels
}

func (c AudioCaps) String() string {
	return fmt.Sprintf("audio/%s %dHz %dch", c.Codec, c.Rate, c.Channels)
}

// ApproximateFraction approximates val as a fraction with a denominator no
// larger than maxDenominator, using continued fraction expansion. Used to
// derive pixel-aspect-ratio caps from the floating point aspect the
// transport library reports.
func ApproximateFraction(val float64, maxDenominator int) (num, den int) {
	if val <= 0 || maxDenominator < 1 {
		return 1, 1
	}

	// Continued fraction expansion, stopping before the denominator bound.
	h0, h1 := 0, 1
	k0, k1 := 1, 0
	x := val
	for i := 0; i < 64; i++ {
		a := int(x)
		h2 := a*h1 + h0
		k2 := a*k1 + k0
		if k2 > maxDenominator {
			break
		}
		h0, h1 = h1, h2
		k0, k1 = k1, k2
		frac := x - float64(a)
		if frac < 1e-9 {
			break
		}
		x = 1 / frac
	}
	if k1 == 0 {
		return 1, 1
	}
	return h1, k1
}
