package ndilib

import (
	"fmt"
	"runtime"
	"unsafe"
)

// SendOptions configures an NDI send instance.
type SendOptions struct {
	// Name is the source name advertised on the network.
	Name string
	// Groups restricts which receiver groups the source is visible to.
	// Empty means the default group set.
	Groups string
	// ClockVideo and ClockAudio make the library pace submitted frames
	// against the wall clock.
	ClockVideo bool
	ClockAudio bool
}

// Sender wraps an NDI send instance.
type Sender struct {
	inst uintptr
}

// NewSender creates a send instance advertising a source with the given
// options.
func NewSender(opts SendOptions) (*Sender, error) {
	if err := Load(); err != nil {
		return nil, err
	}
	create := sendCreateT{
		ndiName:    cStringOrNil(opts.Name),
		groups:     cStringOrNil(opts.Groups),
		clockVideo: opts.ClockVideo,
		clockAudio: opts.ClockAudio,
	}
	inst := lib.sendCreate(&create)
	runtime.KeepAlive(&create)
	if inst == 0 {
		return nil, fmt.Errorf("creating NDI send instance %q failed", opts.Name)
	}
	return &Sender{inst: inst}, nil
}

// SendVideo submits one video frame. Data must match the frame's fourcc
// layout at LineStride bytes per line. Pass SendTimecodeSynthesize as the
// timecode to let the library clock it.
func (s *Sender) SendVideo(f *VideoFrame) {
	raw := videoFrameV2T{
		xres:                 int32(f.Width),
		yres:                 int32(f.Height),
		fourCC:               f.FourCC,
		frameRateN:           int32(f.FrameRateN),
		frameRateD:           int32(f.FrameRateD),
		pictureAspectRatio:   f.PictureAspectRatio,
		frameFormatType:      int32(f.FrameFormat),
		timecode:             f.Timecode,
		lineStrideOrDataSize: int32(f.LineStride),
		metadata:             cStringOrNil(f.Metadata),
	}
	if len(f.Data) > 0 {
		raw.data = unsafe.SliceData(f.Data)
	}
	lib.sendSendVideoV2(s.inst, &raw)
	runtime.KeepAlive(f)
	runtime.KeepAlive(&raw)
}

// SendAudio submits one planar FLTp audio frame. Data must hold Channels
// planes of ChannelStride bytes each.
func (s *Sender) SendAudio(f *AudioFrame) {
	raw := audioFrameV3T{
		sampleRate:              int32(f.SampleRate),
		noChannels:              int32(f.Channels),
		noSamples:               int32(f.Samples),
		timecode:                f.Timecode,
		fourCC:                  f.FourCC,
		channelStrideOrDataSize: int32(f.ChannelStride),
		metadata:                cStringOrNil(f.Metadata),
	}
	if len(f.Data) > 0 {
		raw.data = unsafe.SliceData(f.Data)
	}
	lib.sendSendAudioV3(s.inst, &raw)
	runtime.KeepAlive(f)
	runtime.KeepAlive(&raw)
}

// Close destroys the send instance.
func (s *Sender) Close() {
	if s.inst != 0 {
		lib.sendDestroy(s.inst)
		s.inst = 0
	}
}
