package ndilib

import (
	"encoding/binary"
	"fmt"
)

// compressedPacketVersion is the header size in bytes. The version field
// doubles as the offset of the payload, so future runtimes can grow the
// header without breaking older parsers.
const compressedPacketVersion = 44

const compressedPacketFlagKeyframe = 1

// CompressedPacket is the framing the advanced runtime wraps around
// compressed video and audio payloads. On the wire the header is followed
// by Data and then ExtraData.
type CompressedPacket struct {
	FourCC    FourCC
	PTS       int64 // 100ns units
	DTS       int64 // 100ns units
	Keyframe  bool
	Data      []byte
	ExtraData []byte
}

// ParseCompressedPacket decodes the compressed packet framing from a raw
// frame payload. The returned packet aliases raw.
func ParseCompressedPacket(raw []byte) (*CompressedPacket, error) {
	if len(raw) < compressedPacketVersion {
		return nil, fmt.Errorf("compressed packet too short: %d bytes", len(raw))
	}
	version := binary.LittleEndian.Uint32(raw)
	if version < compressedPacketVersion {
		return nil, fmt.Errorf("unsupported compressed packet version %d", version)
	}
	if int64(version) > int64(len(raw)) {
		return nil, fmt.Errorf("compressed packet header truncated: version %d, %d bytes", version, len(raw))
	}

	p := &CompressedPacket{
		FourCC: FourCC(binary.LittleEndian.Uint32(raw[4:])),
		PTS:    int64(binary.LittleEndian.Uint64(raw[8:])),
		DTS:    int64(binary.LittleEndian.Uint64(raw[16:])),
	}
	// raw[24:32] is reserved.
	flags := binary.LittleEndian.Uint32(raw[32:])
	p.Keyframe = flags&compressedPacketFlagKeyframe != 0
	dataSize := int(binary.LittleEndian.Uint32(raw[36:]))
	extraSize := int(binary.LittleEndian.Uint32(raw[40:]))

	payload := raw[version:]
	if dataSize < 0 || extraSize < 0 || len(payload) < dataSize+extraSize {
		return nil, fmt.Errorf("compressed packet truncated: need %d payload bytes, have %d", dataSize+extraSize, len(payload))
	}
	p.Data = payload[:dataSize]
	if extraSize > 0 {
		p.ExtraData = payload[dataSize : dataSize+extraSize]
	}
	return p, nil
}

// Marshal encodes the packet into the wire framing.
func (p *CompressedPacket) Marshal() []byte {
	out := make([]byte, compressedPacketVersion+len(p.Data)+len(p.ExtraData))
	binary.LittleEndian.PutUint32(out, compressedPacketVersion)
	binary.LittleEndian.PutUint32(out[4:], uint32(p.FourCC))
	binary.LittleEndian.PutUint64(out[8:], uint64(p.PTS))
	binary.LittleEndian.PutUint64(out[16:], uint64(p.DTS))
	var flags uint32
	if p.Keyframe {
		flags |= compressedPacketFlagKeyframe
	}
	binary.LittleEndian.PutUint32(out[32:], flags)
	binary.LittleEndian.PutUint32(out[36:], uint32(len(p.Data)))
	binary.LittleEndian.PutUint32(out[40:], uint32(len(p.ExtraData)))
	copy(out[compressedPacketVersion:], p.Data)
	copy(out[compressedPacketVersion+len(p.Data):], p.ExtraData)
	return out
}
