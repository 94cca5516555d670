// Package receive drives a single source connection: a capture goroutine
// pulls frames from the transport library, converts them into media
// buffers with skew-adjusted timestamps, and hands them to the consumer
// through a bounded queue.
package receive

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

// captureInterval is how long each library poll blocks before the loop
// rechecks flushing and shutdown.
const captureInterval = 50 * time.Millisecond

// Defaults for Config fields left zero.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultTimeout        = 5 * time.Second
	DefaultMaxQueueLength = 10
)

// ErrNoSource is returned by Connect when neither an NDI name nor a
// URL/address is configured.
var ErrNoSource = errors.New("no NDI name or URL/address given")

// Capturer is the capture side of a connected source. *ndilib.Receiver
// implements it; tests substitute their own.
type Capturer interface {
	Capture(timeout time.Duration) (ndilib.Frame, error)
	SetTally(ndilib.Tally) bool
	SendMetadata(string) bool
	Close()
}

// Config describes a source connection.
type Config struct {
	// NDIName and URLAddress identify the source. At least one must be
	// set.
	NDIName    string `json:"ndi-name"`
	URLAddress string `json:"url-address"`

	// ReceiverName identifies this receiver to the sender.
	ReceiverName string `json:"receiver-ndi-name"`

	// ConnectTimeout bounds the wait for the first frame, Timeout the
	// wait for any frame after that. Negative disables the timeout.
	ConnectTimeout time.Duration `json:"connect-timeout"`
	Timeout        time.Duration `json:"timeout"`

	// MaxQueueLength bounds the buffer queue. The capture goroutine
	// drops the oldest buffers beyond it.
	MaxQueueLength int `json:"max-queue-length"`

	Bandwidth     ndilib.Bandwidth   `json:"bandwidth"`
	ColorFormat   ndilib.ColorFormat `json:"color-format"`
	TimestampMode TimestampMode      `json:"timestamp-mode"`
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxQueueLength <= 0 {
		c.MaxQueueLength = DefaultMaxQueueLength
	}
	return c
}

// ReceiverStats captures capture-loop metrics for a source connection,
// exposed for monitoring receiver health.
type ReceiverStats struct {
	VideoFrames    int64 `json:"videoFrames"`
	AudioFrames    int64 `json:"audioFrames"`
	MetadataFrames int64 `json:"metadataFrames"`
	DroppedBuffers int64 `json:"droppedBuffers"`
	QueuedBuffers  int   `json:"queuedBuffers"`
	ConnectedAt    int64 `json:"connectedAt"`
	UptimeMs       int64 `json:"uptimeMs"`
}

// Receiver owns one source connection. Buffers captured by its goroutine
// are consumed through Capture.
type Receiver struct {
	log *slog.Logger
	clk clock.Clock
	cfg Config

	capturer Capturer
	obs      *observations

	// baseTime anchors the local timeline: receive times and PTS are
	// durations since connection.
	baseTime time.Time

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []*media.Buffer
	playing  bool
	flushing bool
	shutdown bool
	timedOut bool
	err      error

	videoFrames    atomic.Int64
	audioFrames    atomic.Int64
	metadataFrames atomic.Int64
	droppedBuffers atomic.Int64

	wg sync.WaitGroup
}

// ReceiverOptClock substitutes the wall clock, used by tests.
func ReceiverOptClock(clk clock.Clock) func(*Receiver) {
	return func(r *Receiver) {
		r.clk = clk
	}
}

// ReceiverOptLogger sets the logger.
func ReceiverOptLogger(log *slog.Logger) func(*Receiver) {
	return func(r *Receiver) {
		r.log = log
	}
}

// ReceiverOptCapturer substitutes the transport capturer, used by tests.
func ReceiverOptCapturer(c Capturer) func(*Receiver) {
	return func(r *Receiver) {
		r.capturer = c
	}
}

// Connect connects to the configured source and starts the capture
// goroutine. Connection is asynchronous: the first buffer, or the connect
// timeout, tells whether the source is live.
func Connect(cfg Config, opts ...func(*Receiver)) (*Receiver, error) {
	if cfg.NDIName == "" && cfg.URLAddress == "" {
		return nil, ErrNoSource
	}
	cfg = cfg.withDefaults()

	r := &Receiver{
		log: slog.With("component", "ndi-receiver"),
		clk: clock.New(),
		cfg: cfg,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.cond = sync.NewCond(&r.mu)
	r.obs = newObservations(r.log)

	r.log.Debug("connecting to NDI source",
		"ndi_name", cfg.NDIName, "url_address", cfg.URLAddress)

	if r.capturer == nil {
		recv, err := ndilib.NewReceiver(ndilib.RecvOptions{
			Source: ndilib.Source{
				Name:       cfg.NDIName,
				URLAddress: cfg.URLAddress,
			},
			Name:             cfg.ReceiverName,
			ColorFormat:      cfg.ColorFormat,
			Bandwidth:        cfg.Bandwidth,
			AllowVideoFields: true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to source: %w", err)
		}
		r.capturer = recv
	}

	r.capturer.SetTally(ndilib.DefaultTally())
	r.capturer.SendMetadata(`<ndi_hwaccel enabled="true"/>`)

	r.baseTime = r.clk.Now()
	r.wg.Add(1)
	go r.run()

	return r, nil
}

// SetPlaying controls whether captured buffers are queued or discarded.
func (r *Receiver) SetPlaying(playing bool) {
	r.mu.Lock()
	r.playing = playing
	r.mu.Unlock()
}

// SetFlushing starts or stops flushing. While flushing, queued buffers are
// discarded and Capture returns ErrFlushing immediately.
func (r *Receiver) SetFlushing(flushing bool) {
	r.mu.Lock()
	r.flushing = flushing
	r.cond.Broadcast()
	r.mu.Unlock()
}

// Shutdown stops the capture goroutine and releases the connection.
func (r *Receiver) Shutdown() {
	r.mu.Lock()
	r.shutdown = true
	r.cond.Broadcast()
	r.mu.Unlock()
	r.wg.Wait()
	r.log.Debug("closed NDI connection")
}

// Capture returns the next buffer. It blocks until a buffer is queued, the
// receiver times out (ErrEOS), flushing starts (ErrFlushing), an error is
// signalled, or ctx ends.
func (r *Receiver) Capture(ctx context.Context) (*media.Buffer, error) {
	if ctx.Done() != nil {
		stop := context.AfterFunc(ctx, func() {
			r.mu.Lock()
			r.cond.Broadcast()
			r.mu.Unlock()
		})
		defer stop()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		switch {
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case r.err != nil:
			return nil, r.err
		case len(r.queue) == 0 && r.timedOut:
			return nil, element.ErrEOS
		case r.flushing || r.shutdown:
			return nil, element.ErrFlushing
		case len(r.queue) > 0:
			buf := r.queue[0]
			r.queue = r.queue[1:]
			return buf, nil
		}
		r.cond.Wait()
	}
}

// Stats returns a snapshot of capture metrics.
func (r *Receiver) Stats() ReceiverStats {
	r.mu.Lock()
	queued := len(r.queue)
	r.mu.Unlock()

	return ReceiverStats{
		VideoFrames:    r.videoFrames.Load(),
		AudioFrames:    r.audioFrames.Load(),
		MetadataFrames: r.metadataFrames.Load(),
		DroppedBuffers: r.droppedBuffers.Load(),
		QueuedBuffers:  queued,
		ConnectedAt:    r.baseTime.UnixMilli(),
		UptimeMs:       r.clk.Since(r.baseTime).Milliseconds(),
	}
}

// run is the capture loop. It exits on shutdown, on a capture error, or
// once the receive timeout elapses with no frames.
func (r *Receiver) run() {
	defer r.wg.Done()
	defer r.capturer.Close()

	firstVideo, firstAudio, first := true, true, true
	lastProgress := r.clk.Now()

	for {
		r.mu.Lock()
		if r.shutdown {
			r.mu.Unlock()
			r.log.Debug("shutting down")
			return
		}
		if r.err != nil {
			r.mu.Unlock()
			return
		}
		flushing := r.flushing
		r.mu.Unlock()

		timeout := r.cfg.Timeout
		if first {
			timeout = r.cfg.ConnectTimeout
		}

		frame, err := r.capturer.Capture(captureInterval)
		switch {
		case flushing:
			r.mu.Lock()
			r.queue = nil
			r.cond.Broadcast()
			r.mu.Unlock()
			lastProgress = r.clk.Now()
			continue

		case err != nil:
			r.log.Error("error receiving frame", "err", err)
			r.signalError(fmt.Errorf("receiving frame: %w", err))
			return

		case frame == nil:
			if timeout > 0 && r.clk.Since(lastProgress) >= timeout {
				r.log.Debug("timed out, assuming end of stream")
				r.mu.Lock()
				r.timedOut = true
				r.cond.Broadcast()
				r.mu.Unlock()
				return
			}
			continue
		}

		var buf *media.Buffer
		switch f := frame.(type) {
		case *ndilib.VideoFrame:
			first = false
			r.videoFrames.Add(1)
			buf, err = r.videoBuffer(f)
			if err == nil && firstVideo {
				buf.Flags |= media.FlagDiscont
				firstVideo = false
			}

		case *ndilib.AudioFrame:
			first = false
			r.audioFrames.Add(1)
			buf, err = r.audioBuffer(f)
			if err == nil && firstAudio {
				buf.Flags |= media.FlagDiscont
				firstAudio = false
			}

		case *ndilib.MetadataFrame:
			r.metadataFrames.Add(1)
			r.log.Debug("received metadata",
				"timecode", time.Duration(f.Timecode)*100, "data", f.Data)
			continue
		}

		if err != nil {
			r.log.Error("converting frame failed", "err", err)
			r.signalError(err)
			return
		}

		r.push(buf)
		lastProgress = r.clk.Now()
	}
}

func (r *Receiver) signalError(err error) {
	r.mu.Lock()
	if r.err == nil {
		r.err = err
	}
	r.cond.Broadcast()
	r.mu.Unlock()
}

func (r *Receiver) push(buf *media.Buffer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.playing {
		return
	}
	for len(r.queue) > r.cfg.MaxQueueLength {
		r.log.Warn("dropping old buffer", "queued", len(r.queue))
		r.queue = r.queue[1:]
		r.droppedBuffers.Add(1)
	}
	r.queue = append(r.queue, buf)
	r.cond.Broadcast()
}

func (r *Receiver) videoBuffer(f *ndilib.VideoFrame) (*media.Buffer, error) {
	pts, resync := r.calculateTimestamp(f.Timestamp, f.Timecode)

	buf, err := buildVideoBuffer(f)
	if err != nil {
		return nil, err
	}
	buf.PTS = pts
	buf.Duration = buf.Stream.Video.FrameDuration()
	if resync {
		buf.Flags |= media.FlagResync
	}
	return buf, nil
}

func (r *Receiver) audioBuffer(f *ndilib.AudioFrame) (*media.Buffer, error) {
	pts, resync := r.calculateTimestamp(f.Timestamp, f.Timecode)

	buf, err := buildAudioBuffer(f)
	if err != nil {
		return nil, err
	}
	buf.PTS = pts
	if f.SampleRate > 0 {
		buf.Duration = time.Duration(int64(time.Second) * int64(f.Samples) / int64(f.SampleRate))
	}
	if resync {
		buf.Flags |= media.FlagResync
	}
	return buf, nil
}

// calculateTimestamp maps a frame's sender-side timing onto the local
// timeline according to the configured mode. The second return reports a
// timing discontinuity, surfaced as a resync flag.
func (r *Receiver) calculateTimestamp(timestamp, timecode int64) (time.Duration, bool) {
	receiveTime := r.clk.Since(r.baseTime)

	hasTimestamp := timestamp != ndilib.RecvTimestampUndefined
	var ts time.Duration
	if hasTimestamp {
		ts = time.Duration(timestamp) * 100
	}
	tc := time.Duration(timecode) * 100

	switch r.cfg.TimestampMode {
	case TimestampModeReceiveTimeTimecode:
		return r.obs.process(tc, receiveTime, true)

	case TimestampModeReceiveTimeTimestamp:
		return r.obs.process(ts, receiveTime, hasTimestamp)

	case TimestampModeTimecode:
		return tc, false

	case TimestampModeTimestamp:
		// Timestamps are relative to the UNIX epoch.
		if !hasTimestamp {
			return receiveTime, false
		}
		realTimeNow := time.Duration(r.clk.Now().UnixNano())
		if realTimeNow > ts {
			diff := realTimeNow - ts
			if diff > receiveTime {
				return 0, false
			}
			return receiveTime - diff, false
		}
		return receiveTime + (ts - realTimeNow), false

	default:
		return receiveTime, false
	}
}
