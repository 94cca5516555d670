package ndilib

// FourCC identifies the payload layout of a video or audio frame, encoded
// with the first character in the low byte.
type FourCC uint32

// MakeFourCC builds a FourCC from its four characters.
func MakeFourCC(a, b, c, d byte) FourCC {
	return FourCC(uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24)
}

func (f FourCC) String() string {
	return string([]byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)})
}

// Uncompressed video frame layouts.
var (
	FourCCUYVY = MakeFourCC('U', 'Y', 'V', 'Y')
	FourCCUYVA = MakeFourCC('U', 'Y', 'V', 'A')
	FourCCP216 = MakeFourCC('P', '2', '1', '6')
	FourCCPA16 = MakeFourCC('P', 'A', '1', '6')
	FourCCYV12 = MakeFourCC('Y', 'V', '1', '2')
	FourCCI420 = MakeFourCC('I', '4', '2', '0')
	FourCCNV12 = MakeFourCC('N', 'V', '1', '2')
	FourCCBGRA = MakeFourCC('B', 'G', 'R', 'A')
	FourCCBGRX = MakeFourCC('B', 'G', 'R', 'X')
	FourCCRGBA = MakeFourCC('R', 'G', 'B', 'A')
	FourCCRGBX = MakeFourCC('R', 'G', 'B', 'X')
)

// Compressed video frame layouts delivered by the advanced runtime.
// Uppercase marks the highest-bandwidth variant of a stream, lowercase the
// lowest.
var (
	FourCCSHQ0Highest = MakeFourCC('S', 'H', 'Q', '0')
	FourCCSHQ0Lowest  = MakeFourCC('s', 'h', 'q', '0')
	FourCCSHQ2Highest = MakeFourCC('S', 'H', 'Q', '2')
	FourCCSHQ2Lowest  = MakeFourCC('s', 'h', 'q', '2')
	FourCCSHQ7Highest = MakeFourCC('S', 'H', 'Q', '7')
	FourCCSHQ7Lowest  = MakeFourCC('s', 'h', 'q', '7')

	FourCCH264Highest      = MakeFourCC('H', '2', '6', '4')
	FourCCH264Lowest       = MakeFourCC('h', '2', '6', '4')
	FourCCH264AlphaHighest = MakeFourCC('A', '2', '6', '4')
	FourCCH264AlphaLowest  = MakeFourCC('a', '2', '6', '4')
	FourCCHEVCHighest      = MakeFourCC('H', 'E', 'V', 'C')
	FourCCHEVCLowest       = MakeFourCC('h', 'e', 'v', 'c')
	FourCCHEVCAlphaHighest = MakeFourCC('A', 'E', 'V', 'C')
	FourCCHEVCAlphaLowest  = MakeFourCC('a', 'e', 'v', 'c')
)

// Audio frame layouts.
var (
	FourCCFLTP = MakeFourCC('F', 'L', 'T', 'p')
	FourCCAAC  = MakeFourCC('A', 'A', 'C', '+')
)

// FourCCs inside a compressed packet header.
var (
	CompressedFourCCH264 = FourCCH264Highest
	CompressedFourCCHEVC = FourCCHEVCHighest
	CompressedFourCCAAC  = MakeFourCC('A', 'A', 'C', ' ')
)
