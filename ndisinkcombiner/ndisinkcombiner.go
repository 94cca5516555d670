// Package ndisinkcombiner implements the audio/video combiner element that
// sits in front of the sink. Video buffers pass through one frame behind
// the live edge; the audio covering each frame is attached to it so the
// sink can send both flows from a single ordered stream.
package ndisinkcombiner

import (
	"context"
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
const ElementName = "ndisinkcombiner"

var instances atomic.Int64

// Output delivers a finished video buffer downstream.
type Output func(ctx context.Context, buf *media.Buffer) error

type queuedAudio struct {
	att    media.AudioAttachment
	pts    time.Duration
	end    time.Duration
	hasEnd bool
}

// Combiner queues audio against the most recent video buffer and releases
// that buffer, audio attached, once the flow has moved past it.
type Combiner struct {
	log   *slog.Logger
	name  string
	clk   clock.Clock
	epoch int64

	mu            sync.Mutex
	out           Output
	pending       *media.Buffer
	videoMeta     *media.StreamMeta
	queued        []queuedAudio
	lastQueuedPTS time.Duration
	latency       time.Duration
	videoEOS      bool
	closed        bool
}

// CombinerOptLogger sets the logger.
func CombinerOptLogger(log *slog.Logger) func(*Combiner) {
	return func(c *Combiner) {
		c.log = log
	}
}

// CombinerOptClock sets the clock used to derive the timecode epoch.
func CombinerOptClock(clk clock.Clock) func(*Combiner) {
	return func(c *Combiner) {
		c.clk = clk
	}
}

// New creates a combiner. The output must be linked with SetOutput before
// buffers are pushed.
func New(opts ...func(*Combiner)) *Combiner {
	c := &Combiner{
		log: slog.Default(),
		clk: clock.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	name := fmt.Sprintf("%s%d", ElementName, instances.Add(1)-1)
	c.name = name
	c.log = c.log.With("component", ElementName, "name", name)
	c.epoch = c.clk.Now().UnixNano()
	return c
}

// Factory returns the registry factory for this element.
func Factory() element.Factory {
	return element.Factory{
		Name: ElementName,
		Doc:  "NDI sink audio/video combiner: attaches audio to the video flow for the sink",
		New: func(props element.Properties) (element.Element, error) {
			var empty struct{}
			if err := element.DecodeProperties(props, &empty); err != nil {
				return nil, err
			}
			return New(), nil
		},
	}
}

// Name implements element.Element.
func (c *Combiner) Name() string {
	return c.name
}

// SetOutput links the downstream consumer of finished buffers.
func (c *Combiner) SetOutput(out Output) {
	c.mu.Lock()
	c.out = out
	c.mu.Unlock()
}

// Latency reports the delay this element adds once video caps are known:
// one queued frame plus the audio covering it, so two frame durations.
func (c *Combiner) Latency() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.videoMeta == nil {
		return 0, false
	}
	return c.latency, true
}

// PushVideo accepts one video buffer. The first buffer is held back; each
// later buffer finishes the held one, which goes downstream with the
// queued audio that falls inside it attached.
func (c *Combiner) PushVideo(ctx context.Context, buf *media.Buffer) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return element.ErrEOS
	}
	if buf.Stream == nil || buf.Stream.Kind != media.KindVideo {
		c.mu.Unlock()
		return fmt.Errorf("video buffer without video caps: %w", element.ErrNotNegotiated)
	}
	if c.videoMeta == nil || !c.videoMeta.Video.Equal(buf.Stream.Video) {
		c.latency = combinerLatency(buf.Stream.Video)
		c.log.Debug("video caps", "caps", buf.Stream.Video.String(), "latency", c.latency)
	}
	c.videoMeta = buf.Stream

	prev := c.pending
	c.pending = buf
	if prev == nil {
		c.mu.Unlock()
		c.log.Debug("first video buffer, holding")
		return nil
	}

	end, bounded := videoEnd(prev)
	prev.Audio = append(prev.Audio, c.takeQueuedLocked(end, bounded)...)
	out := c.out
	c.mu.Unlock()

	return c.send(ctx, out, prev)
}

// PushAudio queues one audio buffer for attachment. Audio reaching past
// the held video buffer's end finishes that buffer; after the video flow
// has ended, audio rides downstream on empty gap buffers.
func (c *Combiner) PushAudio(ctx context.Context, buf *media.Buffer) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return element.ErrEOS
	}
	if buf.Stream == nil || buf.Stream.Kind != media.KindAudio {
		c.mu.Unlock()
		return fmt.Errorf("audio buffer without audio caps: %w", element.ErrNotNegotiated)
	}
	if len(buf.Data) == 0 {
		c.mu.Unlock()
		return nil
	}

	caps := buf.Stream.Audio
	end, hasEnd := audioEnd(buf, caps)
	c.queued = append(c.queued, queuedAudio{
		att: media.AudioAttachment{
			Caps:     caps,
			Data:     buf.Data,
			Timecode: c.timecode(buf.PTS),
		},
		pts:    buf.PTS,
		end:    end,
		hasEnd: hasEnd,
	})

	if c.videoEOS && c.pending == nil {
		gap := c.gapBufferLocked(buf.PTS)
		gap.Audio = c.takeQueuedLocked(0, false)
		out := c.out
		c.mu.Unlock()
		return c.send(ctx, out, gap)
	}

	if c.pending != nil {
		vend, bounded := videoEnd(c.pending)
		if bounded && hasEnd && end > vend {
			finished := c.pending
			c.pending = nil
			finished.Audio = append(finished.Audio, c.takeQueuedLocked(vend, true)...)
			out := c.out
			c.mu.Unlock()
			return c.send(ctx, out, finished)
		}
	}
	c.mu.Unlock()
	return nil
}

// CloseVideo marks the end of the video flow. The held buffer goes
// downstream with everything queued attached; audio keeps flowing on gap
// buffers until the element is closed.
func (c *Combiner) CloseVideo(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.videoEOS = true
	finished := c.pending
	c.pending = nil
	if finished == nil {
		c.mu.Unlock()
		return nil
	}
	finished.Audio = append(finished.Audio, c.takeQueuedLocked(0, false)...)
	out := c.out
	c.mu.Unlock()
	return c.send(ctx, out, finished)
}

// Close flushes the held video buffer with whatever audio is queued. Audio
// queued with no video to carry it goes out on a gap buffer.
func (c *Combiner) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	finished := c.pending
	c.pending = nil
	atts := c.takeQueuedLocked(0, false)
	switch {
	case finished != nil:
		finished.Audio = append(finished.Audio, atts...)
	case len(atts) > 0:
		finished = c.gapBufferLocked(c.lastQueuedPTS)
		finished.Audio = atts
	default:
		c.mu.Unlock()
		return nil
	}
	out := c.out
	c.mu.Unlock()
	return c.send(ctx, out, finished)
}

func (c *Combiner) send(ctx context.Context, out Output, buf *media.Buffer) error {
	if out == nil {
		return fmt.Errorf("combiner has no downstream: %w", element.ErrNotLinked)
	}
	c.log.Debug("finishing video buffer", "pts", buf.PTS, "audio", len(buf.Audio), "gap", buf.Flags.Has(media.FlagGap))
	return out(ctx, buf)
}

// takeQueuedLocked removes and returns the attachments for queued audio
// ending at or before end. Unbounded takes cover everything, as does audio
// whose own end is unknown.
func (c *Combiner) takeQueuedLocked(end time.Duration, bounded bool) []media.AudioAttachment {
	var atts []media.AudioAttachment
	remaining := c.queued[:0]
	for _, q := range c.queued {
		if !bounded || !q.hasEnd || q.end <= end {
			atts = append(atts, q.att)
			c.lastQueuedPTS = q.pts
		} else {
			remaining = append(remaining, q)
		}
	}
	c.queued = remaining
	return atts
}

func (c *Combiner) gapBufferLocked(pts time.Duration) *media.Buffer {
	meta := c.videoMeta
	if meta == nil {
		meta = &media.StreamMeta{Kind: media.KindVideo}
	}
	return &media.Buffer{PTS: pts, Flags: media.FlagGap, Stream: meta}
}

func (c *Combiner) timecode(pts time.Duration) int64 {
	if pts == media.NoPTS {
		return ndilib.SendTimecodeSynthesize
	}
	return (c.epoch + int64(pts)) / 100
}

func videoEnd(buf *media.Buffer) (time.Duration, bool) {
	if buf.PTS == media.NoPTS {
		return 0, false
	}
	d := buf.Duration
	if d <= 0 && buf.Stream != nil {
		d = buf.Stream.Video.FrameDuration()
	}
	if d <= 0 {
		// Assume 25 fps when the rate is unknown.
		d = 40 * time.Millisecond
	}
	return buf.PTS + d, true
}

func audioEnd(buf *media.Buffer, caps media.AudioCaps) (time.Duration, bool) {
	if buf.PTS == media.NoPTS {
		return 0, false
	}
	d := buf.Duration
	if d <= 0 && caps.Rate > 0 && caps.Channels > 0 {
		samples := len(buf.Data) / caps.BPF()
		d = time.Duration(int64(time.Second) * int64(samples) / int64(caps.Rate))
	}
	if d <= 0 {
		return 0, false
	}
	return buf.PTS + d, true
}

func combinerLatency(caps media.VideoCaps) time.Duration {
	if d := caps.FrameDuration(); d > 0 {
		return 2 * d
	}
	return 80 * time.Millisecond
}
