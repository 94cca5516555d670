package ndilib

import "unsafe"

// FrameFormat describes how a video frame's lines relate in time.
type FrameFormat int32

const (
	FrameFormatInterleaved FrameFormat = FrameFormat(frameFormatInterleaved)
	FrameFormatProgressive FrameFormat = FrameFormat(frameFormatProgressive)
	// Field frames carry a single field at half height.
	FrameFormatField0 FrameFormat = FrameFormat(frameFormatField0)
	FrameFormatField1 FrameFormat = FrameFormat(frameFormatField1)
)

func (f FrameFormat) String() string {
	switch f {
	case FrameFormatInterleaved:
		return "interleaved"
	case FrameFormatProgressive:
		return "progressive"
	case FrameFormatField0:
		return "field-0"
	case FrameFormatField1:
		return "field-1"
	default:
		return "unknown"
	}
}

// VideoFrame is a captured video frame, payload copied out of the library.
// For uncompressed fourccs Data holds the planes back to back at LineStride
// bytes per line; for compressed fourccs Data holds the packet payload and
// LineStride is its size.
type VideoFrame struct {
	Width              int
	Height             int
	FourCC             FourCC
	FrameRateN         int
	FrameRateD         int
	PictureAspectRatio float32
	FrameFormat        FrameFormat
	Timecode           int64
	Timestamp          int64
	LineStride         int
	Data               []byte
	Metadata           string
}

func (*VideoFrame) frame() {}

// Lines returns how many lines of payload the frame carries, half the
// height for single-field frames.
func (f *VideoFrame) Lines() int {
	if f.FrameFormat == FrameFormatField0 || f.FrameFormat == FrameFormatField1 {
		return f.Height / 2
	}
	return f.Height
}

// AudioFrame is a captured audio frame, payload copied out of the library.
// FLTp payloads are planar 32-bit floats at ChannelStride bytes per
// channel; compressed payloads hold the packet with ChannelStride as its
// size.
type AudioFrame struct {
	SampleRate    int
	Channels      int
	Samples       int
	FourCC        FourCC
	Timecode      int64
	Timestamp     int64
	ChannelStride int
	Data          []byte
	Metadata      string
}

func (*AudioFrame) frame() {}

// MetadataFrame is a standalone metadata frame.
type MetadataFrame struct {
	Timecode int64
	Data     string
}

func (*MetadataFrame) frame() {}

// IsCompressedVideo reports whether the fourcc is one of the advanced
// runtime's compressed video layouts.
func IsCompressedVideo(fourcc FourCC) bool {
	switch fourcc {
	case FourCCSHQ0Highest, FourCCSHQ0Lowest,
		FourCCSHQ2Highest, FourCCSHQ2Lowest,
		FourCCSHQ7Highest, FourCCSHQ7Lowest,
		FourCCH264Highest, FourCCH264Lowest,
		FourCCH264AlphaHighest, FourCCH264AlphaLowest,
		FourCCHEVCHighest, FourCCHEVCLowest,
		FourCCHEVCAlphaHighest, FourCCHEVCAlphaLowest:
		return true
	default:
		return false
	}
}

// packedLineStride returns the packed first-plane stride for an
// uncompressed fourcc, used when the library leaves the stride field unset.
func packedLineStride(fourcc FourCC, width int) int {
	switch fourcc {
	case FourCCUYVY, FourCCUYVA, FourCCP216, FourCCPA16:
		return 2 * width
	case FourCCBGRA, FourCCBGRX, FourCCRGBA, FourCCRGBX:
		return 4 * width
	case FourCCYV12, FourCCI420, FourCCNV12:
		return width
	default:
		return 0
	}
}

// videoDataSize returns the total payload size in bytes across all planes
// for lines lines of an uncompressed fourcc at the given stride.
func videoDataSize(fourcc FourCC, width, lines, stride int) int {
	switch fourcc {
	case FourCCUYVY, FourCCBGRA, FourCCBGRX, FourCCRGBA, FourCCRGBX:
		return lines * stride
	case FourCCUYVA:
		// Packed UYVY plane followed by an 8-bit alpha plane.
		return lines*stride + lines*width
	case FourCCNV12:
		return lines*stride + ((lines+1)/2)*stride
	case FourCCYV12, FourCCI420:
		return lines*stride + 2*((lines+1)/2)*(stride/2)
	case FourCCP216:
		// 16-bit Y plane followed by an interleaved 16-bit CbCr plane
		// of the same size.
		return 2 * lines * stride
	case FourCCPA16:
		return 2*lines*stride + lines*2*width
	default:
		return 0
	}
}

func copyVideoFrame(raw *videoFrameV2T) *VideoFrame {
	f := &VideoFrame{
		Width:              int(raw.xres),
		Height:             int(raw.yres),
		FourCC:             raw.fourCC,
		FrameRateN:         int(raw.frameRateN),
		FrameRateD:         int(raw.frameRateD),
		PictureAspectRatio: raw.pictureAspectRatio,
		FrameFormat:        FrameFormat(raw.frameFormatType),
		Timecode:           raw.timecode,
		Timestamp:          raw.timestamp,
		Metadata:           goString(raw.metadata),
	}

	var size int
	if IsCompressedVideo(raw.fourCC) {
		// The stride field doubles as the payload size for compressed
		// layouts.
		size = int(raw.lineStrideOrDataSize)
		f.LineStride = size
	} else {
		stride := int(raw.lineStrideOrDataSize)
		if stride == 0 {
			stride = packedLineStride(raw.fourCC, f.Width)
		}
		f.LineStride = stride
		size = videoDataSize(raw.fourCC, f.Width, f.Lines(), stride)
	}

	if raw.data != nil && size > 0 {
		f.Data = make([]byte, size)
		copy(f.Data, unsafe.Slice(raw.data, size))
	}
	return f
}

func copyAudioFrame(raw *audioFrameV3T) *AudioFrame {
	f := &AudioFrame{
		SampleRate:    int(raw.sampleRate),
		Channels:      int(raw.noChannels),
		Samples:       int(raw.noSamples),
		FourCC:        raw.fourCC,
		Timecode:      raw.timecode,
		Timestamp:     raw.timestamp,
		ChannelStride: int(raw.channelStrideOrDataSize),
		Metadata:      goString(raw.metadata),
	}

	size := f.Channels * f.ChannelStride
	if f.FourCC != FourCCFLTP {
		// The stride field doubles as the payload size for compressed
		// layouts.
		size = int(raw.channelStrideOrDataSize)
	}

	if raw.data != nil && size > 0 {
		f.Data = make([]byte, size)
		copy(f.Data, unsafe.Slice(raw.data, size))
	}
	return f
}

func copyMetadataFrame(raw *metadataFrameT) *MetadataFrame {
	return &MetadataFrame{
		Timecode: raw.timecode,
		Data:     goString(raw.data),
	}
}

// InterleaveAudio converts a planar FLTp payload into interleaved F32LE
// sample frames.
func InterleaveAudio(f *AudioFrame) []byte {
	out := make([]byte, f.Samples*f.Channels*4)
	for ch := 0; ch < f.Channels; ch++ {
		plane := f.Data[ch*f.ChannelStride:]
		for i := 0; i < f.Samples; i++ {
			copy(out[(i*f.Channels+ch)*4:], plane[i*4:i*4+4])
		}
	}
	return out
}

// DeinterleaveAudio converts interleaved F32LE sample frames into the
// planar FLTp layout the library sends, returning the plane data and the
// per-channel stride.
func DeinterleaveAudio(data []byte, channels, samples int) ([]byte, int) {
	stride := samples * 4
	out := make([]byte, channels*stride)
	for ch := 0; ch < channels; ch++ {
		plane := out[ch*stride:]
		for i := 0; i < samples; i++ {
			copy(plane[i*4:], data[(i*channels+ch)*4:(i*channels+ch)*4+4])
		}
	}
	return out, stride
}
