// Package ndisink implements the sink element. Buffers rendered into it
// are sent out on the network as an NDI source, video with its attached
// audio first so both flows stay in step.
package ndisink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/zsiec/ndi/element"
	"github.com/zsiec/ndi/media"
	"github.com/zsiec/ndi/ndilib"
)

// ElementName is the host-visible name of this element.
const ElementName = "ndisink"

// ErrNoName is returned when the required ndi-name property is missing.
var ErrNoName = errors.New("no NDI name given")

var instances atomic.Int64

// Sender is the transport send surface the sink drives.
type Sender interface {
	SendVideo(f *ndilib.VideoFrame)
	SendAudio(f *ndilib.AudioFrame)
	Close()
}

// Config holds the sink element's properties.
type Config struct {
	// NDIName is the source name advertised on the network. Required.
	NDIName string `json:"ndi-name"`
}

// Sink is the NDI sink element.
type Sink struct {
	log  *slog.Logger
	name string
	clk  clock.Clock

	mu       sync.Mutex
	cfg      Config
	send     Sender
	injected Sender
	epoch    int64
	cdpSeq   uint16
}

// SinkOptLogger sets the logger.
func SinkOptLogger(log *slog.Logger) func(*Sink) {
	return func(s *Sink) {
		s.log = log
	}
}

// SinkOptClock sets the clock used to derive the timecode epoch.
func SinkOptClock(clk clock.Clock) func(*Sink) {
	return func(s *Sink) {
		s.clk = clk
	}
}

// SinkOptSender makes Start use the given sender instead of creating one
// through the transport library.
func SinkOptSender(snd Sender) func(*Sink) {
	return func(s *Sink) {
		s.injected = snd
	}
}

// New creates a sink element from a property bag.
func New(props element.Properties, opts ...func(*Sink)) (*Sink, error) {
	var cfg Config
	if err := element.DecodeProperties(props, &cfg); err != nil {
		return nil, err
	}
	if cfg.NDIName == "" {
		return nil, ErrNoName
	}

	s := &Sink{
		log: slog.Default(),
		clk: clock.New(),
		cfg: cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	name := fmt.Sprintf("%s%d", ElementName, instances.Add(1)-1)
	s.name = name
	s.log = s.log.With("component", ElementName, "name", name)
	return s, nil
}

// Factory returns the registry factory for this element.
func Factory() element.Factory {
	return element.Factory{
		Name: ElementName,
		Doc:  "NDI sink: sends rendered audio/video out as an NDI source",
		New: func(props element.Properties) (element.Element, error) {
			return New(props)
		},
	}
}

// Name implements element.Element.
func (s *Sink) Name() string {
	return s.name
}

// Config returns the decoded properties.
func (s *Sink) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Start creates the network sender and records the epoch against which
// buffer running times become NDI timecodes. Starting twice is a no-op.
func (s *Sink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.send != nil {
		return nil
	}
	if s.injected != nil {
		s.send = s.injected
	} else {
		snd, err := ndilib.NewSender(ndilib.SendOptions{
			Name:       s.cfg.NDIName,
			ClockVideo: true,
			ClockAudio: true,
		})
		if err != nil {
			return fmt.Errorf("starting sender: %w", err)
		}
		s.send = snd
	}
	s.epoch = s.clk.Now().UnixNano()
	s.log.Info("started", "ndi-name", s.cfg.NDIName)
	return nil
}

// Stop closes the network sender.
func (s *Sink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.send == nil {
		return
	}
	s.send.Close()
	s.send = nil
	s.log.Info("stopped")
}

// Render sends one buffer. Video buffers first send every attached audio
// frame in order, then the picture itself; empty gap carriers from the
// combiner send only their audio. Audio buffers are sent directly.
func (s *Sink) Render(ctx context.Context, buf *media.Buffer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.send == nil {
		return fmt.Errorf("sink not started: %w", element.ErrFlushing)
	}
	if buf.Stream == nil {
		return fmt.Errorf("buffer without stream meta: %w", element.ErrNotNegotiated)
	}

	switch buf.Stream.Kind {
	case media.KindVideo:
		return s.renderVideo(buf)
	case media.KindAudio:
		return s.renderAudio(buf)
	default:
		return fmt.Errorf("unknown stream kind %v: %w", buf.Stream.Kind, element.ErrNotNegotiated)
	}
}

func (s *Sink) renderVideo(buf *media.Buffer) error {
	for i := range buf.Audio {
		if err := s.sendAttachment(&buf.Audio[i]); err != nil {
			return err
		}
	}

	// Gap carriers from the combiner have no picture of their own.
	if len(buf.Data) == 0 {
		return nil
	}

	caps := buf.Stream.Video
	if caps.Codec != media.CodecRawVideo {
		return fmt.Errorf("cannot send %s video: %w", caps.Codec, element.ErrNotNegotiated)
	}
	fourcc, err := videoFourCC(caps.Format)
	if err != nil {
		return err
	}

	frame := &ndilib.VideoFrame{
		Width:              caps.Width,
		Height:             caps.Height,
		FourCC:             fourcc,
		FrameRateN:         caps.FpsN,
		FrameRateD:         caps.FpsD,
		PictureAspectRatio: pictureAspect(caps),
		FrameFormat:        frameFormat(caps, buf.Flags),
		Timecode:           s.timecodeLocked(buf.PTS),
		LineStride:         caps.Format.LineStride(caps.Width),
		Data:               buf.Data,
	}
	if len(buf.Captions) > 0 {
		meta, err := media.CaptionXML(buf.Captions, caps.FpsN, caps.FpsD, s.cdpSeq)
		if err != nil {
			return fmt.Errorf("encoding captions: %w", err)
		}
		frame.Metadata = meta
		s.cdpSeq++
	}

	s.log.Debug("sending video frame", "pts", buf.PTS, "timecode", frame.Timecode, "caps", caps.String())
	s.send.SendVideo(frame)
	return nil
}

func (s *Sink) renderAudio(buf *media.Buffer) error {
	frame, err := audioFrame(buf.Stream.Audio, buf.Data, s.timecodeLocked(buf.PTS))
	if err != nil {
		return err
	}
	s.log.Debug("sending audio frame", "pts", buf.PTS, "timecode", frame.Timecode, "samples", frame.Samples)
	s.send.SendAudio(frame)
	return nil
}

func (s *Sink) sendAttachment(att *media.AudioAttachment) error {
	frame, err := audioFrame(att.Caps, att.Data, att.Timecode)
	if err != nil {
		return err
	}
	s.log.Debug("sending attached audio frame", "timecode", frame.Timecode, "samples", frame.Samples)
	s.send.SendAudio(frame)
	return nil
}

func (s *Sink) timecodeLocked(pts time.Duration) int64 {
	if pts == media.NoPTS {
		return ndilib.SendTimecodeSynthesize
	}
	return (s.epoch + int64(pts)) / 100
}

// audioFrame converts interleaved F32LE samples into the planar frame the
// transport library sends.
func audioFrame(caps media.AudioCaps, data []byte, timecode int64) (*ndilib.AudioFrame, error) {
	if caps.Codec != media.CodecRawAudio || caps.Channels <= 0 || caps.Rate <= 0 {
		return nil, fmt.Errorf("cannot send %s audio: %w", caps.Codec, element.ErrNotNegotiated)
	}
	samples := len(data) / caps.BPF()
	planar, stride := ndilib.DeinterleaveAudio(data, caps.Channels, samples)
	return &ndilib.AudioFrame{
		SampleRate:    caps.Rate,
		Channels:      caps.Channels,
		Samples:       samples,
		FourCC:        ndilib.FourCCFLTP,
		Timecode:      timecode,
		ChannelStride: stride,
		Data:          planar,
	}, nil
}

func videoFourCC(format media.VideoFormat) (ndilib.FourCC, error) {
	switch format {
	case media.FormatUYVY:
		return ndilib.FourCCUYVY, nil
	case media.FormatI420:
		return ndilib.FourCCI420, nil
	case media.FormatNV12:
		return ndilib.FourCCNV12, nil
	case media.FormatYV12:
		return ndilib.FourCCYV12, nil
	case media.FormatBGRA:
		return ndilib.FourCCBGRA, nil
	case media.FormatBGRX:
		return ndilib.FourCCBGRX, nil
	case media.FormatRGBA:
		return ndilib.FourCCRGBA, nil
	case media.FormatRGBX:
		return ndilib.FourCCRGBX, nil
	default:
		return 0, fmt.Errorf("cannot send %s video: %w", format, element.ErrNotNegotiated)
	}
}

func frameFormat(caps media.VideoCaps, flags media.Flags) ndilib.FrameFormat {
	switch caps.Interlace {
	case media.InterlaceInterleaved:
		return ndilib.FrameFormatInterleaved
	case media.InterlaceAlternate:
		if flags.Has(media.FlagTopField) {
			return ndilib.FrameFormatField0
		}
		return ndilib.FrameFormatField1
	default:
		return ndilib.FrameFormatProgressive
	}
}

func pictureAspect(caps media.VideoCaps) float32 {
	if caps.ParN <= 0 || caps.ParD <= 0 || caps.Width <= 0 || caps.Height <= 0 {
		return 0
	}
	return float32(caps.ParN*caps.Width) / float32(caps.ParD*caps.Height)
}
