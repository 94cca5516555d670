package ndilib

import "testing"

func TestMakeFourCCLittleEndian(t *testing.T) {
	t.Parallel()

	if got, want := uint32(FourCCUYVY), uint32(0x59565955); got != want {
		t.Errorf("FourCCUYVY = %#x, want %#x", got, want)
	}
	if got, want := uint32(FourCCUYVA), uint32(0x41565955); got != want {
		t.Errorf("FourCCUYVA = %#x, want %#x", got, want)
	}
}

func TestFourCCString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		fourcc FourCC
		want   string
	}{
		{FourCCUYVY, "UYVY"},
		{FourCCI420, "I420"},
		{FourCCSHQ2Lowest, "shq2"},
		{FourCCH264AlphaHighest, "A264"},
		{FourCCFLTP, "FLTp"},
		{CompressedFourCCAAC, "AAC "},
	}
	for _, tt := range tests {
		if got := tt.fourcc.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestIsCompressedVideo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		fourcc FourCC
		want   bool
	}{
		{FourCCUYVY, false},
		{FourCCBGRA, false},
		{FourCCNV12, false},
		{FourCCSHQ0Highest, true},
		{FourCCSHQ7Lowest, true},
		{FourCCH264Highest, true},
		{FourCCH264Lowest, true},
		{FourCCHEVCAlphaLowest, true},
		{FourCCFLTP, false},
		{FourCCAAC, false},
	}
	for _, tt := range tests {
		if got := IsCompressedVideo(tt.fourcc); got != tt.want {
			t.Errorf("IsCompressedVideo(%s) = %v, want %v", tt.fourcc, got, tt.want)
		}
	}
}
