package receive

import (
	"fmt"

	"github.com/zsiec/ndi/element"
	"github.com/zsiec/ndi/media"
	"github.com/zsiec/ndi/ndilib"
)

// buildAudioBuffer converts a captured audio frame into a media buffer
// with caps and an interleaved payload. PTS and duration are left for the
// caller.
func buildAudioBuffer(f *ndilib.AudioFrame) (*media.Buffer, error) {
	buf := &media.Buffer{
		PTS:      media.NoPTS,
		Timecode: f.Timecode,
	}
	if f.Timestamp != ndilib.RecvTimestampUndefined {
		buf.Timestamp = f.Timestamp
		buf.HasTimestamp = true
	}

	switch f.FourCC {
	case ndilib.FourCCFLTP:
		buf.Stream = &media.StreamMeta{
			Kind: media.KindAudio,
			Audio: media.AudioCaps{
				Codec:    media.CodecRawAudio,
				Rate:     f.SampleRate,
				Channels: f.Channels,
			},
		}
		buf.Data = ndilib.InterleaveAudio(f)

	case ndilib.FourCCAAC:
		packet, err := ndilib.ParseCompressedPacket(f.Data)
		if err != nil {
			return nil, fmt.Errorf("audio packet doesn't have compressed packet start: %w", err)
		}
		if packet.FourCC != ndilib.CompressedFourCCAAC {
			return nil, fmt.Errorf("unexpected %s packet in AAC stream", packet.FourCC)
		}
		if len(packet.ExtraData) == 0 {
			return nil, fmt.Errorf("AAC packet without codec data: %w", element.ErrNotNegotiated)
		}
		buf.Stream = &media.StreamMeta{
			Kind: media.KindAudio,
			Audio: media.AudioCaps{
				Codec:     media.CodecAAC,
				Rate:      f.SampleRate,
				Channels:  f.Channels,
				CodecData: append([]byte(nil), packet.ExtraData...),
			},
		}
		buf.Data = append([]byte(nil), packet.Data...)

	default:
		return nil, fmt.Errorf("unsupported audio fourcc %s: %w", f.FourCC, element.ErrNotNegotiated)
	}

	return buf, nil
}
