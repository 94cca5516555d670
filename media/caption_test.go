package media

import (
	"bytes"
	"encoding/base64"
	"testing"
)

func TestCaptionXMLRoundTrip608(t *testing.T) {
	t.Parallel()

	in := []Caption{{Kind: CaptionCEA608, Line: 9, Data: []byte{0x94, 0x2C}}}
	metadata, err := CaptionXML(in, 30, 1, 0)
	if err != nil {
		t.Fatalf("CaptionXML: %v", err)
	}
	want := `<C608 line="9">` + base64.StdEncoding.EncodeToString([]byte{0x94, 0x2C}) + `</C608>`
	if metadata != want {
		t.Errorf("metadata = %q, want %q", metadata, want)
	}

	out := ParseCaptionXML(metadata)
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
	if out[0].Kind != CaptionCEA608 || out[0].Line != 9 || !bytes.Equal(out[0].Data, in[0].Data) {
		t.Errorf("out[0] = %+v, want %+v", out[0], in[0])
	}
}

func TestCaptionXMLDefaultLine(t *testing.T) {
	t.Parallel()

	metadata, err := CaptionXML([]Caption{{Kind: CaptionCEA608, Data: []byte{0x80, 0x80}}}, 30, 1, 0)
	if err != nil {
		t.Fatalf("CaptionXML: %v", err)
	}
	out := ParseCaptionXML(metadata)
	if len(out) != 1 || out[0].Line != 21 {
		t.Errorf("out = %+v, want line 21", out)
	}
}

func TestCaptionXMLRoundTrip708(t *testing.T) {
	t.Parallel()

	triples := []byte{0xFC, 0x94, 0x2C, 0xFE, 0x01, 0x02}
	metadata, err := CaptionXML([]Caption{{Kind: CaptionCEA708, Data: triples}}, 30000, 1001, 7)
	if err != nil {
		t.Fatalf("CaptionXML: %v", err)
	}

	out := ParseCaptionXML(metadata)
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
	if out[0].Kind != CaptionCEA708 {
		t.Fatalf("Kind = %v, want CEA708", out[0].Kind)
	}
	// 29.97fps packets carry 20 triples; ours plus padding.
	if len(out[0].Data) != 60 {
		t.Fatalf("len(Data) = %d, want 60", len(out[0].Data))
	}
	if !bytes.Equal(out[0].Data[:len(triples)], triples) {
		t.Errorf("Data = %v..., want prefix %v", out[0].Data[:len(triples)], triples)
	}
	for off := len(triples); off < len(out[0].Data); off += 3 {
		if out[0].Data[off] != 0xFA {
			t.Errorf("padding triple at %d = %02x, want FA", off, out[0].Data[off])
		}
	}
}

func TestCaptionXMLUnknownKind(t *testing.T) {
	t.Parallel()

	if _, err := CaptionXML([]Caption{{Kind: CaptionKind(9)}}, 30, 1, 0); err == nil {
		t.Error("unknown caption kind accepted")
	}
}

func TestParseCaptionXMLFragment(t *testing.T) {
	t.Parallel()

	cdp := BuildCDP([]byte{0xFC, 0x20, 0x20}, 25, 1, 1)
	metadata := `<C608 line="21">` + base64.StdEncoding.EncodeToString([]byte{0x14, 0x2C}) + `</C608>` +
		`<C708>` + base64.StdEncoding.EncodeToString(cdp) + `</C708>`

	out := ParseCaptionXML(metadata)
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
	if out[0].Kind != CaptionCEA608 || out[1].Kind != CaptionCEA708 {
		t.Errorf("kinds = %v, %v; want CEA608 then CEA708", out[0].Kind, out[1].Kind)
	}
}

func TestParseCaptionXMLMalformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		metadata string
	}{
		{"empty", ""},
		{"no caption tags", `<ndi_product short_name="test"/>`},
		{"bad base64", `<C608>not base64!!</C608>`},
		{"too short", `<C608>` + base64.StdEncoding.EncodeToString([]byte{0x80}) + `</C608>`},
		{"bad CDP", `<C708>` + base64.StdEncoding.EncodeToString([]byte{1, 2, 3}) + `</C708>`},
		{"unterminated", `<C608>lCw=`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if out := ParseCaptionXML(tt.metadata); len(out) != 0 {
				t.Errorf("ParseCaptionXML(%q) = %+v, want none", tt.metadata, out)
			}
		})
	}
}

func TestParseCaptionXMLOddPairTruncated(t *testing.T) {
	t.Parallel()

	metadata := `<C608>` + base64.StdEncoding.EncodeToString([]byte{0x94, 0x2C, 0x80}) + `</C608>`
	out := ParseCaptionXML(metadata)
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
	if !bytes.Equal(out[0].Data, []byte{0x94, 0x2C}) {
		t.Errorf("Data = %v, want trailing byte dropped", out[0].Data)
	}
}

func TestBuildCDPLayout(t *testing.T) {
	t.Parallel()

	triples := []byte{0xFC, 0x94, 0x2C}
	cdp := BuildCDP(triples, 30000, 1001, 0x1234)

	// 20 triples at 29.97fps: 7 header + 2 section + 60 + 4 footer.
	if len(cdp) != 73 {
		t.Fatalf("len(cdp) = %d, want 73", len(cdp))
	}
	if cdp[0] != 0x96 || cdp[1] != 0x69 {
		t.Errorf("identifier = %02x%02x, want 9669", cdp[0], cdp[1])
	}
	if cdp[2] != 73 {
		t.Errorf("length byte = %d, want 73", cdp[2])
	}
	if cdp[3] != 0x4F {
		t.Errorf("frame rate byte = %02x, want 4F", cdp[3])
	}
	if cdp[4] != 0x43 {
		t.Errorf("flags = %02x, want 43", cdp[4])
	}
	if cdp[5] != 0x12 || cdp[6] != 0x34 {
		t.Errorf("sequence = %02x%02x, want 1234", cdp[5], cdp[6])
	}
	if cdp[7] != 0x72 || cdp[8] != 0xF4 {
		t.Errorf("cc data section = %02x %02x, want 72 F4", cdp[7], cdp[8])
	}
	if cdp[69] != 0x74 || cdp[70] != 0x12 || cdp[71] != 0x34 {
		t.Errorf("footer = % 02x, want 74 12 34", cdp[69:72])
	}

	var sum int
	for _, b := range cdp {
		sum += int(b)
	}
	if sum%256 != 0 {
		t.Errorf("checksum: packet sums to %d mod 256, want 0", sum%256)
	}
}

func TestParseCDPSkipsTimeCode(t *testing.T) {
	t.Parallel()

	cdp := []byte{
		0x96, 0x69,
		0, // length, patched below
		0x4F,
		0xC3, // time code and cc data present
		0x00, 0x01,
		0x71, 0x00, 0x00, 0x00, 0x00,
		0x72, 0xE1,
		0xFC, 0x01, 0x02,
		0x74, 0x00, 0x01, 0x00,
	}
	cdp[2] = byte(len(cdp))

	got, err := ParseCDP(cdp)
	if err != nil {
		t.Fatalf("ParseCDP: %v", err)
	}
	if !bytes.Equal(got, []byte{0xFC, 0x01, 0x02}) {
		t.Errorf("triples = %v, want {FC 01 02}", got)
	}
}

func TestParseCDPErrors(t *testing.T) {
	t.Parallel()

	valid := BuildCDP([]byte{0xFC, 0x01, 0x02}, 30, 1, 0)

	badIdentifier := append([]byte(nil), valid...)
	badIdentifier[0] = 0x00

	badRate := append([]byte(nil), valid...)
	badRate[3] = 0x0F

	noCCData := append([]byte(nil), valid...)
	noCCData[4] = 0x03

	badSection := append([]byte(nil), valid...)
	badSection[7] = 0x73

	truncated := append([]byte(nil), valid[:12]...)
	truncated[2] = 12

	tests := []struct {
		name string
		cdp  []byte
	}{
		{"empty", nil},
		{"too short", []byte{0x96, 0x69, 0x04}},
		{"bad identifier", badIdentifier},
		{"bad frame rate", badRate},
		{"cc data flag missing", noCCData},
		{"cc data section missing", badSection},
		{"truncated triples", truncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := ParseCDP(tt.cdp); err == nil {
				t.Error("ParseCDP accepted malformed packet")
			}
		})
	}
}

func TestCDPFrameRates(t *testing.T) {
	t.Parallel()

	cases := []struct {
		fpsN, fpsD  int
		wantID      byte
		wantCCCount int
	}{
		{24000, 1001, 1, 25},
		{24, 1, 2, 25},
		{25, 1, 3, 24},
		{30000, 1001, 4, 20},
		{30, 1, 5, 20},
		{50, 1, 6, 12},
		{60000, 1001, 7, 10},
		{60, 1, 8, 10},
		{0, 0, 5, 20},
		{1000, 1, 8, 10},
	}
	for _, tt := range cases {
		id, count := cdpFrameRate(tt.fpsN, tt.fpsD)
		if id != tt.wantID || count != tt.wantCCCount {
			t.Errorf("cdpFrameRate(%d, %d) = %d, %d; want %d, %d",
				tt.fpsN, tt.fpsD, id, count, tt.wantID, tt.wantCCCount)
		}
	}
}
