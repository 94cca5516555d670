package receive

import (
	"fmt"

	"github.com/zsiec/ndi/element"
	"github.com/zsiec/ndi/media"
	"github.com/zsiec/ndi/ndilib"
)

// videoCaps derives the stream caps for a captured video frame.
func videoCaps(f *ndilib.VideoFrame) (media.VideoCaps, error) {
	caps := media.VideoCaps{
		Codec:  media.CodecRawVideo,
		Width:  f.Width,
		Height: f.Height,
		FpsN:   f.FrameRateN,
		FpsD:   f.FrameRateD,
	}
	caps.ParN, caps.ParD = videoPAR(f)

	switch f.FrameFormat {
	case ndilib.FrameFormatProgressive:
		caps.Interlace = media.InterlaceProgressive
	case ndilib.FrameFormatInterleaved:
		caps.Interlace = media.InterlaceInterleaved
		caps.FieldOrder = media.FieldOrderTopFirst
	default:
		caps.Interlace = media.InterlaceAlternate
	}

	switch f.FourCC {
	case ndilib.FourCCUYVY:
		caps.Format = media.FormatUYVY
	case ndilib.FourCCUYVA:
		// No packed YUV format with alpha downstream, so the alpha
		// plane is dropped.
		caps.Format = media.FormatUYVY
	case ndilib.FourCCYV12:
		// YV12 and I420 chroma plane order is swapped between the
		// transport library and our formats.
		caps.Format = media.FormatI420
	case ndilib.FourCCI420:
		caps.Format = media.FormatYV12
	case ndilib.FourCCNV12:
		caps.Format = media.FormatNV12
	case ndilib.FourCCBGRA:
		caps.Format = media.FormatBGRA
	case ndilib.FourCCBGRX:
		caps.Format = media.FormatBGRX
	case ndilib.FourCCRGBA:
		caps.Format = media.FormatRGBA
	case ndilib.FourCCRGBX:
		caps.Format = media.FormatRGBX

	case ndilib.FourCCSHQ0Highest, ndilib.FourCCSHQ0Lowest:
		caps.Codec = media.CodecSpeedHQ
		caps.Variant = "SHQ0"
	case ndilib.FourCCSHQ2Highest, ndilib.FourCCSHQ2Lowest:
		caps.Codec = media.CodecSpeedHQ
		caps.Variant = "SHQ2"
	case ndilib.FourCCSHQ7Highest, ndilib.FourCCSHQ7Lowest:
		caps.Codec = media.CodecSpeedHQ
		caps.Variant = "SHQ7"

	case ndilib.FourCCH264Highest, ndilib.FourCCH264Lowest,
		ndilib.FourCCH264AlphaHighest, ndilib.FourCCH264AlphaLowest:
		caps.Codec = media.CodecH264

	case ndilib.FourCCHEVCHighest, ndilib.FourCCHEVCLowest,
		ndilib.FourCCHEVCAlphaHighest, ndilib.FourCCHEVCAlphaLowest:
		caps.Codec = media.CodecH265

	default:
		// P216 and PA16 have no downstream format.
		return media.VideoCaps{}, fmt.Errorf("unsupported video fourcc %s: %w", f.FourCC, element.ErrNotNegotiated)
	}

	return caps, nil
}

// videoPAR derives the pixel aspect ratio from the picture aspect ratio the
// transport library reports. Zero means unspecified, which we take as
// square pixels.
func videoPAR(f *ndilib.VideoFrame) (int, int) {
	if f.PictureAspectRatio <= 0 || f.Width <= 0 || f.Height <= 0 {
		return 1, 1
	}
	parN, parD := media.ApproximateFraction(float64(f.PictureAspectRatio), 1<<16)
	parN *= f.Height
	parD *= f.Width
	if g := gcd(parN, parD); g > 1 {
		parN /= g
		parD /= g
	}
	if parN <= 0 || parD <= 0 {
		return 1, 1
	}
	return parN, parD
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// buildVideoBuffer converts a captured video frame into a media buffer with
// caps, payload, and interlacing flags. PTS and duration are left for the
// caller.
func buildVideoBuffer(f *ndilib.VideoFrame) (*media.Buffer, error) {
	caps, err := videoCaps(f)
	if err != nil {
		return nil, err
	}

	buf := &media.Buffer{
		PTS:      media.NoPTS,
		Timecode: f.Timecode,
		Stream:   &media.StreamMeta{Kind: media.KindVideo, Video: caps},
	}
	if f.Timestamp != ndilib.RecvTimestampUndefined {
		buf.Timestamp = f.Timestamp
		buf.HasTimestamp = true
	}

	switch f.FrameFormat {
	case ndilib.FrameFormatInterleaved:
		buf.Flags |= media.FlagInterlaced | media.FlagTFF
	case ndilib.FrameFormatField0:
		buf.Flags |= media.FlagInterlaced | media.FlagTopField
	case ndilib.FrameFormatField1:
		buf.Flags |= media.FlagInterlaced | media.FlagBottomField
	}

	if f.Metadata != "" {
		buf.Captions = media.ParseCaptionXML(f.Metadata)
	}

	switch caps.Codec {
	case media.CodecRawVideo:
		buf.Data = copyVideoData(caps, f)

	case media.CodecSpeedHQ:
		if len(f.Data) == 0 {
			return nil, fmt.Errorf("video packet has no data")
		}
		buf.Data = append([]byte(nil), f.Data...)

	case media.CodecH264, media.CodecH265:
		packet, err := ndilib.ParseCompressedPacket(f.Data)
		if err != nil {
			return nil, fmt.Errorf("video packet doesn't have compressed packet start: %w", err)
		}
		want := ndilib.CompressedFourCCH264
		if caps.Codec == media.CodecH265 {
			want = ndilib.CompressedFourCCHEVC
		}
		if packet.FourCC != want {
			return nil, fmt.Errorf("unexpected %s packet in %s stream", packet.FourCC, caps.Codec)
		}

		data := make([]byte, 0, len(packet.ExtraData)+len(packet.Data))
		data = append(data, packet.ExtraData...)
		data = append(data, packet.Data...)
		buf.Data = data
		if !packet.Keyframe {
			buf.Flags |= media.FlagDeltaUnit
		}
	}

	return buf, nil
}

// copyVideoData compacts the library's frame layout into tightly packed
// planes at the format's own strides.
func copyVideoData(caps media.VideoCaps, f *ndilib.VideoFrame) []byte {
	var (
		width     = caps.Width
		lines     = f.Lines()
		srcStride = f.LineStride
		src       = f.Data
	)

	switch caps.Format {
	case media.FormatUYVY, media.FormatBGRA, media.FormatBGRX, media.FormatRGBA, media.FormatRGBX:
		lineBytes := caps.Format.LineStride(width)
		dst := make([]byte, lineBytes*lines)
		copyPlane(dst, lineBytes, src, srcStride, lineBytes, lines)
		return dst

	case media.FormatNV12:
		chromaLines := (lines + 1) / 2
		dst := make([]byte, width*(lines+chromaLines))
		copyPlane(dst, width, src, srcStride, width, lines)
		copyPlane(dst[width*lines:], width, src[lines*srcStride:], srcStride, width, chromaLines)
		return dst

	case media.FormatI420, media.FormatYV12:
		// Identical plane geometry either way; only the chroma order
		// differs, and that is declared by the caps.
		chromaBytes := (width + 1) / 2
		chromaLines := (lines + 1) / 2
		chromaSrcStride := srcStride / 2

		dst := make([]byte, width*lines+2*chromaBytes*chromaLines)
		copyPlane(dst, width, src, srcStride, width, lines)

		dstChroma := dst[width*lines:]
		srcChroma := src[lines*srcStride:]
		copyPlane(dstChroma, chromaBytes, srcChroma, chromaSrcStride, chromaBytes, chromaLines)
		copyPlane(dstChroma[chromaBytes*chromaLines:], chromaBytes,
			srcChroma[chromaLines*chromaSrcStride:], chromaSrcStride, chromaBytes, chromaLines)
		return dst

	default:
		return nil
	}
}

// copyPlane copies lines rows of lineBytes each between buffers with
// differing strides, stopping early if either side runs short.
func copyPlane(dst []byte, dstStride int, src []byte, srcStride, lineBytes, lines int) {
	for i := 0; i < lines; i++ {
		if len(dst) < lineBytes || len(src) < lineBytes {
			return
		}
		copy(dst[:lineBytes], src[:lineBytes])
		if i == lines-1 {
			return
		}
		dst = dst[dstStride:]
		if len(src) < srcStride {
			return
		}
		src = src[srcStride:]
	}
}
