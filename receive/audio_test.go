package receive

import (
	"bytes"
	"errors"
	"testing"

	"github.com/zsiec/ndi/element"
	"github.com/zsiec/ndi/media"
	"github.com/zsiec/ndi/ndilib"
)

func TestBuildAudioBufferRaw(t *testing.T) {
	t.Parallel()

	// Two planar channels of four samples each, packed channel stride.
	src := make([]byte, 32)
	for i := range src {
		src[i] = byte(i)
	}
	f := &ndilib.AudioFrame{
		SampleRate:    48000,
		Channels:      2,
		Samples:       4,
		FourCC:        ndilib.FourCCFLTP,
		Timecode:      5678,
		Timestamp:     ndilib.RecvTimestampUndefined,
		ChannelStride: 16,
		Data:          src,
	}

	buf, err := buildAudioBuffer(f)
	if err != nil {
		t.Fatalf("buildAudioBuffer: %v", err)
	}
	if buf.Stream == nil || buf.Stream.Kind != media.KindAudio {
		t.Fatalf("Stream = %+v, want audio meta", buf.Stream)
	}
	caps := buf.Stream.Audio
	if caps.Codec != media.CodecRawAudio || caps.Rate != 48000 || caps.Channels != 2 {
		t.Errorf("caps = %+v, want raw 48000Hz 2ch", caps)
	}

	var want []byte
	for sample := 0; sample < 4; sample++ {
		want = append(want, src[sample*4:sample*4+4]...)
		want = append(want, src[16+sample*4:16+sample*4+4]...)
	}
	if !bytes.Equal(buf.Data, want) {
		t.Errorf("Data = %v, want interleaved %v", buf.Data, want)
	}
	if buf.Timecode != 5678 {
		t.Errorf("Timecode = %d, want 5678", buf.Timecode)
	}
	if buf.HasTimestamp {
		t.Error("HasTimestamp = true for undefined timestamp")
	}
}

func TestBuildAudioBufferAAC(t *testing.T) {
	t.Parallel()

	packet := &ndilib.CompressedPacket{
		FourCC:    ndilib.CompressedFourCCAAC,
		Keyframe:  true,
		Data:      []byte{0x21, 0x22, 0x23},
		ExtraData: []byte{0x11, 0x90},
	}
	f := &ndilib.AudioFrame{
		SampleRate: 48000,
		Channels:   2,
		Samples:    1024,
		FourCC:     ndilib.FourCCAAC,
		Timestamp:  ndilib.RecvTimestampUndefined,
		Data:       packet.Marshal(),
	}

	buf, err := buildAudioBuffer(f)
	if err != nil {
		t.Fatalf("buildAudioBuffer: %v", err)
	}
	caps := buf.Stream.Audio
	if caps.Codec != media.CodecAAC {
		t.Errorf("Codec = %v, want AAC", caps.Codec)
	}
	if !bytes.Equal(caps.CodecData, []byte{0x11, 0x90}) {
		t.Errorf("CodecData = %v, want {0x11, 0x90}", caps.CodecData)
	}
	if !bytes.Equal(buf.Data, []byte{0x21, 0x22, 0x23}) {
		t.Errorf("Data = %v, want packet payload", buf.Data)
	}
}

func TestBuildAudioBufferAACWithoutCodecData(t *testing.T) {
	t.Parallel()

	packet := &ndilib.CompressedPacket{
		FourCC:   ndilib.CompressedFourCCAAC,
		Keyframe: true,
		Data:     []byte{0x21},
	}
	f := &ndilib.AudioFrame{
		SampleRate: 48000,
		Channels:   2,
		FourCC:     ndilib.FourCCAAC,
		Timestamp:  ndilib.RecvTimestampUndefined,
		Data:       packet.Marshal(),
	}
	if _, err := buildAudioBuffer(f); !errors.Is(err, element.ErrNotNegotiated) {
		t.Errorf("err = %v, want ErrNotNegotiated", err)
	}
}

func TestBuildAudioBufferUnsupported(t *testing.T) {
	t.Parallel()

	f := &ndilib.AudioFrame{
		SampleRate: 48000,
		Channels:   2,
		FourCC:     ndilib.MakeFourCC('S', '1', '6', 's'),
		Timestamp:  ndilib.RecvTimestampUndefined,
	}
	if _, err := buildAudioBuffer(f); !errors.Is(err, element.ErrNotNegotiated) {
		t.Errorf("err = %v, want ErrNotNegotiated", err)
	}
}
