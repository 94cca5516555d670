// Package ndisrc implements the NDI source element. Configured with a
// source name or URL address, it connects a receiver when moved to Paused
// and exposes the captured buffers through Pull. Hosts drive it through
// the element lifecycle states and read timing bounds from Latency.
package ndisrc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zsiec/ndi/element"
	"github.com/zsiec/ndi/media"
	"github.com/zsiec/ndi/ndilib"
	"github.com/zsiec/ndi/receive"
)

// ElementName is the host-visible name of this element.
const ElementName = "ndisrc"

// defaultReceiverName identifies this machine to senders when the
// receiver-ndi-name property is unset.
var defaultReceiverName = func() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "Go NDI Source"
	}
	return fmt.Sprintf("Go NDI Source (%s)", host)
}()

// Config lists the element's properties. Property names are the json tags.
type Config struct {
	NDIName         string                `json:"ndi-name"`
	URLAddress      string                `json:"url-address"`
	ReceiverName    string                `json:"receiver-ndi-name"`
	ConnectTimeout  time.Duration         `json:"connect-timeout"`
	Timeout         time.Duration         `json:"timeout"`
	MaxQueueLength  int                   `json:"max-queue-length"`
	Bandwidth       ndilib.Bandwidth      `json:"bandwidth"`
	ColorFormat     ndilib.ColorFormat    `json:"color-format"`
	TimestampMode   receive.TimestampMode `json:"timestamp-mode"`
	ExtractCaptions bool                  `json:"extract-captions"`
}

func defaultConfig() Config {
	return Config{
		ReceiverName:    defaultReceiverName,
		ConnectTimeout:  receive.DefaultConnectTimeout,
		Timeout:         receive.DefaultTimeout,
		MaxQueueLength:  receive.DefaultMaxQueueLength,
		Bandwidth:       ndilib.BandwidthHighest,
		ColorFormat:     ndilib.ColorFormatUYVYBGRA,
		TimestampMode:   receive.TimestampModeReceiveTimeTimecode,
		ExtractCaptions: true,
	}
}

func (c Config) receiverConfig() receive.Config {
	return receive.Config{
		NDIName:        c.NDIName,
		URLAddress:     c.URLAddress,
		ReceiverName:   c.ReceiverName,
		ConnectTimeout: c.ConnectTimeout,
		Timeout:        c.Timeout,
		MaxQueueLength: c.MaxQueueLength,
		Bandwidth:      c.Bandwidth,
		ColorFormat:    c.ColorFormat,
		TimestampMode:  c.TimestampMode,
	}
}

var instances atomic.Int64

// Source is the NDI source element.
type Source struct {
	log  *slog.Logger
	name string

	capsChanged func(*media.StreamMeta)
	recvOpts    []func(*receive.Receiver)

	mu        sync.Mutex
	cfg       Config
	state     element.State
	rec       *receive.Receiver
	videoCaps *media.VideoCaps
	audioCaps *media.AudioCaps
}

// SourceOptLogger sets the logger.
func SourceOptLogger(log *slog.Logger) func(*Source) {
	return func(s *Source) {
		s.log = log.With("component", ElementName, "name", s.name)
	}
}

// SourceOptCapsChanged registers a callback invoked from Pull whenever the
// flow's caps change, including the first buffer of each kind.
func SourceOptCapsChanged(fn func(*media.StreamMeta)) func(*Source) {
	return func(s *Source) {
		s.capsChanged = fn
	}
}

// SourceOptReceiveOptions forwards options to the receiver built on
// Ready to Paused, used by tests to substitute the transport.
func SourceOptReceiveOptions(opts ...func(*receive.Receiver)) func(*Source) {
	return func(s *Source) {
		s.recvOpts = append(s.recvOpts, opts...)
	}
}

// New builds a source element from a property bag.
func New(props element.Properties, opts ...func(*Source)) (*Source, error) {
	cfg := defaultConfig()
	if err := element.DecodeProperties(props, &cfg); err != nil {
		return nil, err
	}

	name := fmt.Sprintf("%s%d", ElementName, instances.Add(1)-1)
	s := &Source{
		log:  slog.With("component", ElementName, "name", name),
		name: name,
		cfg:  cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Factory returns the registry factory for this element.
func Factory() element.Factory {
	return element.Factory{
		Name: ElementName,
		Doc:  "NDI source: receives video, audio, and metadata from an NDI sender",
		New: func(props element.Properties) (element.Element, error) {
			return New(props)
		},
	}
}

// Name implements element.Element.
func (s *Source) Name() string {
	return s.name
}

// Config returns the element's decoded properties.
func (s *Source) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// State returns the current lifecycle state.
func (s *Source) State() element.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState walks the element to the target state one transition at a time.
// On error the element stays in the last state it reached.
func (s *Source) SetState(target element.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.state != target {
		var err error
		if target > s.state {
			err = s.stepUp()
		} else {
			err = s.stepDown()
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Source) stepUp() error {
	switch s.state {
	case element.StateNull:
		if s.cfg.NDIName == "" && s.cfg.URLAddress == "" {
			return receive.ErrNoSource
		}
		s.state = element.StateReady

	case element.StateReady:
		rec, err := receive.Connect(s.cfg.receiverConfig(), s.recvOpts...)
		if err != nil {
			return fmt.Errorf("starting receiver: %w", err)
		}
		s.rec = rec
		s.state = element.StatePaused

	case element.StatePaused:
		s.rec.SetPlaying(true)
		s.state = element.StatePlaying

	default:
		return fmt.Errorf("no state above %s", s.state)
	}
	return nil
}

func (s *Source) stepDown() error {
	switch s.state {
	case element.StatePlaying:
		s.rec.SetPlaying(false)
		s.state = element.StatePaused

	case element.StatePaused:
		s.rec.Shutdown()
		s.rec = nil
		s.videoCaps = nil
		s.audioCaps = nil
		s.state = element.StateReady

	case element.StateReady:
		s.state = element.StateNull

	default:
		return fmt.Errorf("no state below %s", s.state)
	}
	return nil
}

// SetFlushing starts or stops flushing on the receiver. A no-op before the
// element reaches Paused.
func (s *Source) SetFlushing(flushing bool) {
	s.mu.Lock()
	rec := s.rec
	s.mu.Unlock()
	if rec != nil {
		rec.SetFlushing(flushing)
	}
}

// Pull returns the next captured buffer. It blocks until a buffer is
// available, the stream ends (ErrEOS), the element flushes (ErrFlushing),
// or ctx ends. Buffers carry their caps as StreamMeta.
func (s *Source) Pull(ctx context.Context) (*media.Buffer, error) {
	s.mu.Lock()
	rec := s.rec
	extract := s.cfg.ExtractCaptions
	s.mu.Unlock()

	if rec == nil {
		return nil, fmt.Errorf("element not started: %w", element.ErrFlushing)
	}

	buf, err := rec.Capture(ctx)
	if err != nil {
		if errors.Is(err, element.ErrEOS) {
			s.log.Debug("receive timed out, end of stream")
		}
		return nil, err
	}

	if !extract {
		buf.Captions = nil
	}
	s.trackCaps(buf)
	return buf, nil
}

// Stats returns the receiver's capture metrics, zero before Paused.
func (s *Source) Stats() receive.ReceiverStats {
	s.mu.Lock()
	rec := s.rec
	s.mu.Unlock()
	if rec == nil {
		return receive.ReceiverStats{}
	}
	return rec.Stats()
}

// Latency reports the element's live latency bounds from the current video
// frame rate. known is false until video caps with a frame rate were seen.
func (s *Source) Latency() (min, max time.Duration, known bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.videoCaps == nil {
		return 0, 0, false
	}
	dur := s.videoCaps.FrameDuration()
	if dur == 0 {
		return 0, 0, false
	}

	switch s.cfg.TimestampMode {
	case receive.TimestampModeReceiveTimeTimecode, receive.TimestampModeReceiveTimeTimestamp:
		min = dur
	}
	return min, dur * time.Duration(s.cfg.MaxQueueLength), true
}

func (s *Source) trackCaps(buf *media.Buffer) {
	if buf.Stream == nil {
		return
	}

	var changed bool
	s.mu.Lock()
	switch buf.Stream.Kind {
	case media.KindVideo:
		if s.videoCaps == nil || !s.videoCaps.Equal(buf.Stream.Video) {
			caps := buf.Stream.Video
			s.videoCaps = &caps
			changed = true
		}
	case media.KindAudio:
		if s.audioCaps == nil || !s.audioCaps.Equal(buf.Stream.Audio) {
			caps := buf.Stream.Audio
			s.audioCaps = &caps
			changed = true
		}
	}
	cb := s.capsChanged
	s.mu.Unlock()

	if !changed {
		return
	}
	if buf.Stream.Kind == media.KindVideo {
		s.log.Info("video caps changed", "caps", buf.Stream.Video.String())
	} else {
		s.log.Info("audio caps changed", "caps", buf.Stream.Audio.String())
	}
	if cb != nil {
		cb(buf.Stream)
	}
}
