// Package ndisrcdemux implements the stream demuxer element. Buffers
// pushed from the source fan out to per-kind channels, each track being
// announced when it first appears, and closed caption data carried on
// video buffers is decoded into text caption frames.
//
// A demux instance is driven from a single goroutine; only the channel
// accessors are safe to use concurrently.
package ndisrcdemux

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/zsiec/ccx"

	"github.com/zsiec/ndi/element"
	"github.com/zsiec/ndi/media"
)

// ElementName is the host-visible name of this element.
const ElementName = "ndisrcdemux"

var instances atomic.Int64

// Demux is the NDI stream demuxer element.
type Demux struct {
	log  *slog.Logger
	name string

	video    chan *media.Buffer
	audio    chan *media.Buffer
	captions chan *ccx.CaptionFrame
	tracks   chan media.StreamKind

	videoCaps *media.VideoCaps
	audioCaps *media.AudioCaps

	cea608Decs map[int]*ccx.CEA608Decoder
	cea708Svcs map[int]*ccx.CEA708Service
	dtvccBuf   []byte

	// Adjacent frames often repeat 608 control codes for robustness;
	// the repeat is dropped so commands don't run twice.
	lastCCCtrl      [2][2]byte
	lastCCWasCtrl   [2]bool
	lastCCCtrlFrame [2]int64
	cur608Channel   [2]int
	videoCount      int64

	closed bool
}

// New creates a demuxer element. If log is nil, slog.Default() is used.
func New(log *slog.Logger) *Demux {
	if log == nil {
		log = slog.Default()
	}
	name := fmt.Sprintf("%s%d", ElementName, instances.Add(1)-1)
	return &Demux{
		log:      log.With("component", ElementName, "name", name),
		name:     name,
		video:    make(chan *media.Buffer, media.VideoBufferSize),
		audio:    make(chan *media.Buffer, media.AudioBufferSize),
		captions: make(chan *ccx.CaptionFrame, media.CaptionBufferSize),
		tracks:   make(chan media.StreamKind, 2),
		cea708Svcs: map[int]*ccx.CEA708Service{
			1: ccx.NewCEA708Service(),
			2: ccx.NewCEA708Service(),
			3: ccx.NewCEA708Service(),
			4: ccx.NewCEA708Service(),
			5: ccx.NewCEA708Service(),
			6: ccx.NewCEA708Service(),
		},
		cea608Decs: map[int]*ccx.CEA608Decoder{
			1: ccx.NewCEA608Decoder(),
			2: ccx.NewCEA608Decoder(),
			3: ccx.NewCEA608Decoder(),
			4: ccx.NewCEA608Decoder(),
		},
	}
}

// Factory returns the registry factory for this element.
func Factory() element.Factory {
	return element.Factory{
		Name: ElementName,
		Doc:  "NDI stream demuxer: splits source buffers into video, audio, and caption flows",
		New: func(props element.Properties) (element.Element, error) {
			var empty struct{}
			if err := element.DecodeProperties(props, &empty); err != nil {
				return nil, err
			}
			return New(nil), nil
		},
	}
}

// Name implements element.Element.
func (d *Demux) Name() string {
	return d.name
}

// Video returns the channel on which video buffers are delivered.
func (d *Demux) Video() <-chan *media.Buffer {
	return d.video
}

// Audio returns the channel on which audio buffers are delivered.
func (d *Demux) Audio() <-chan *media.Buffer {
	return d.audio
}

// Captions returns the channel on which decoded CEA-608/708 caption frames
// are delivered. CaptionFrame PTS is the source buffer's running time in
// nanoseconds.
func (d *Demux) Captions() <-chan *ccx.CaptionFrame {
	return d.captions
}

// TrackAdded returns the channel announcing each track the first time a
// buffer of its kind appears.
func (d *Demux) TrackAdded() <-chan media.StreamKind {
	return d.tracks
}

// Push routes one buffer to its track, announcing the track on first
// sight and decoding any caption metadata along the way. It blocks when
// the track channel is full until the consumer catches up or ctx ends.
func (d *Demux) Push(ctx context.Context, buf *media.Buffer) error {
	if d.closed {
		return element.ErrEOS
	}
	if buf.Stream == nil {
		return fmt.Errorf("buffer without stream meta: %w", element.ErrNotNegotiated)
	}

	switch buf.Stream.Kind {
	case media.KindVideo:
		caps := buf.Stream.Video
		if d.videoCaps == nil {
			d.log.Info("video track appeared", "caps", caps.String())
			d.tracks <- media.KindVideo
		} else if !d.videoCaps.Equal(caps) {
			d.log.Info("video caps changed", "old", d.videoCaps.String(), "new", caps.String())
		}
		d.videoCaps = &caps

		d.videoCount++
		if len(buf.Captions) > 0 {
			d.decodeCaptions(ctx, buf)
		}

		select {
		case d.video <- buf:
		case <-ctx.Done():
			return ctx.Err()
		}

	case media.KindAudio:
		caps := buf.Stream.Audio
		if d.audioCaps == nil {
			d.log.Info("audio track appeared", "caps", caps.String())
			d.tracks <- media.KindAudio
		} else if !d.audioCaps.Equal(caps) {
			d.log.Info("audio caps changed", "old", d.audioCaps.String(), "new", caps.String())
		}
		d.audioCaps = &caps

		select {
		case d.audio <- buf:
		case <-ctx.Done():
			return ctx.Err()
		}

	default:
		return fmt.Errorf("unknown stream kind %v: %w", buf.Stream.Kind, element.ErrNotNegotiated)
	}
	return nil
}

// Close ends the flow and closes all output channels. Closing before any
// track appeared reports an error, the stream carried nothing usable.
func (d *Demux) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	close(d.video)
	close(d.audio)
	close(d.captions)
	close(d.tracks)

	if d.videoCaps == nil && d.audioCaps == nil {
		return errors.New("end of stream before any track appeared")
	}
	return nil
}

func (d *Demux) decodeCaptions(ctx context.Context, buf *media.Buffer) {
	pts := int64(buf.PTS)
	for _, c := range buf.Captions {
		switch c.Kind {
		case media.CaptionCEA608:
			field := 0
			if c.Line >= 264 {
				field = 1
			}
			for i := 0; i+1 < len(c.Data); i += 2 {
				d.decode608(ctx, field, c.Data[i], c.Data[i+1], pts)
			}

		case media.CaptionCEA708:
			d.decodeTriples(ctx, c.Data, pts)
		}
	}
}

// decodeTriples walks CEA-708 cc triples: types 0 and 1 carry 608 pairs
// for the two fields, types 2 and 3 carry DTVCC packet bytes with type 3
// starting a new packet.
func (d *Demux) decodeTriples(ctx context.Context, triples []byte, pts int64) {
	for i := 0; i+2 < len(triples); i += 3 {
		ccByte, data1, data2 := triples[i], triples[i+1], triples[i+2]
		if ccByte&0x04 == 0 {
			continue
		}
		switch ccByte & 0x03 {
		case 0:
			d.decode608(ctx, 0, data1, data2, pts)
		case 1:
			d.decode608(ctx, 1, data1, data2, pts)
		case 3:
			d.drainDTVCC(ctx, pts)
			d.dtvccBuf = d.dtvccBuf[:0]
			d.dtvccBuf = append(d.dtvccBuf, data1, data2)
		case 2:
			d.dtvccBuf = append(d.dtvccBuf, data1, data2)
		}
	}
}

// route608 strips parity, applies the control code repeat filter, and
// derives the caption channel for a 608 pair. drop means the pair is a
// repeated control code and must not reach the decoder.
func (d *Demux) route608(field int, cc1, cc2 byte) (c1, c2 byte, channel int, drop bool) {
	cc1 &= 0x7F
	cc2 &= 0x7F

	if cc1 >= 0x10 && cc1 <= 0x1F {
		cp := [2]byte{cc1, cc2}
		frameGap := d.videoCount - d.lastCCCtrlFrame[field]
		if d.lastCCWasCtrl[field] && d.lastCCCtrl[field] == cp && frameGap <= 2 {
			d.lastCCWasCtrl[field] = false
			return cc1, cc2, 0, true
		}
		d.lastCCCtrl[field] = cp
		d.lastCCWasCtrl[field] = true
		d.lastCCCtrlFrame[field] = d.videoCount

		channel := 1
		if cc1&0x08 != 0 {
			channel = 2
		}
		d.cur608Channel[field] = channel + 2*field
	} else {
		d.lastCCWasCtrl[field] = false
	}

	channel = d.cur608Channel[field]
	if channel == 0 {
		channel = 1 + 2*field
	}
	return cc1, cc2, channel, false
}

func (d *Demux) decode608(ctx context.Context, field int, cc1, cc2 byte, pts int64) {
	cc1, cc2, channel, drop := d.route608(field, cc1, cc2)
	if drop {
		return
	}

	dec := d.cea608Decs[channel]
	if dec == nil {
		return
	}
	text := dec.Decode(cc1, cc2)
	if text != "" {
		frame := &ccx.CaptionFrame{PTS: pts, Text: text, Channel: channel}
		frame.Regions = dec.StyledRegions()
		select {
		case d.captions <- frame:
		case <-ctx.Done():
		}
	}
}

func (d *Demux) drainDTVCC(ctx context.Context, pts int64) {
	if len(d.dtvccBuf) < 1 {
		return
	}

	packetSize := ccx.DTVCCPacketSize(d.dtvccBuf[0])
	if len(d.dtvccBuf) < packetSize {
		return
	}

	for _, block := range ccx.ParseDTVCCPacket(d.dtvccBuf[:packetSize]) {
		svc := d.cea708Svcs[block.ServiceNum]
		if svc == nil {
			continue
		}
		if svc.ProcessBlock(block.Data) {
			text := svc.DisplayText()
			if text != "" {
				channel := block.ServiceNum + 6
				frame := &ccx.CaptionFrame{PTS: pts, Text: text, Channel: channel}
				frame.Regions = svc.StyledRegions()
				select {
				case d.captions <- frame:
				case <-ctx.Done():
					return
				}
			}
		}
	}
	d.dtvccBuf = d.dtvccBuf[packetSize:]
}
