package media

import (
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"strings"
)

// Closed captions travel as XML fragments in per-frame metadata:
//
//	<C608 line="21">base64 CEA-608 byte pairs</C608>
//	<C708>base64 CDP packet</C708>
//
// See http://www.sienna-tv.com/ndi/ndiclosedcaptions.html and
// http://www.sienna-tv.com/ndi/ndiclosedcaptions708.html.

const defaultCaptionLine = 21

type c608Meta struct {
	XMLName xml.Name `xml:"C608"`
	Line    int      `xml:"line,attr,omitempty"`
	Data    string   `xml:",chardata"`
}

type c708Meta struct {
	XMLName xml.Name `xml:"C708"`
	Data    string   `xml:",chardata"`
}

// ParseCaptionXML extracts captions from a frame metadata fragment. C708
// payloads are unwrapped from their CDP framing into cc triples. Malformed
// entries are skipped.
func ParseCaptionXML(metadata string) []Caption {
	if !strings.Contains(metadata, "<C6") && !strings.Contains(metadata, "<C7") {
		return nil
	}

	var captions []Caption
	dec := xml.NewDecoder(strings.NewReader(metadata))
	for {
		tok, err := dec.Token()
		if err != nil {
			return captions
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch start.Name.Local {
		case "C608":
			var meta c608Meta
			if dec.DecodeElement(&meta, &start) != nil {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(meta.Data))
			if err != nil || len(data) < 2 {
				continue
			}
			line := meta.Line
			if line == 0 {
				line = defaultCaptionLine
			}
			captions = append(captions, Caption{
				Kind: CaptionCEA608,
				Line: line,
				Data: data[:len(data)&^1],
			})

		case "C708":
			var meta c708Meta
			if dec.DecodeElement(&meta, &start) != nil {
				continue
			}
			cdp, err := base64.StdEncoding.DecodeString(strings.TrimSpace(meta.Data))
			if err != nil {
				continue
			}
			ccData, err := ParseCDP(cdp)
			if err != nil || len(ccData) == 0 {
				continue
			}
			captions = append(captions, Caption{
				Kind: CaptionCEA708,
				Data: ccData,
			})
		}
	}
}

// CaptionXML encodes captions into a frame metadata fragment. CEA-708 cc
// triples are wrapped in CDP framing for the given frame rate; seq is the
// CDP sequence counter.
func CaptionXML(captions []Caption, fpsN, fpsD int, seq uint16) (string, error) {
	var sb strings.Builder
	for _, c := range captions {
		switch c.Kind {
		case CaptionCEA608:
			line := c.Line
			if line == 0 {
				line = defaultCaptionLine
			}
			out, err := xml.Marshal(c608Meta{
				Line: line,
				Data: base64.StdEncoding.EncodeToString(c.Data),
			})
			if err != nil {
				return "", err
			}
			sb.Write(out)

		case CaptionCEA708:
			out, err := xml.Marshal(c708Meta{
				Data: base64.StdEncoding.EncodeToString(BuildCDP(c.Data, fpsN, fpsD, seq)),
			})
			if err != nil {
				return "", err
			}
			sb.Write(out)

		default:
			return "", fmt.Errorf("unknown caption kind %d", c.Kind)
		}
	}
	return sb.String(), nil
}

const (
	cdpIdentifier = 0x9669

	cdpFlagTimeCodePresent = 0x80
	cdpFlagCCDataPresent   = 0x40
	cdpFlagSvcInfoPresent  = 0x20

	cdpSectionTimeCode = 0x71
	cdpSectionCCData   = 0x72
	cdpSectionSvcInfo  = 0x73
	cdpSectionFooter   = 0x74
)

// cdpFrameRates maps CDP frame rate IDs to their rates and the cc triple
// count a packet at that rate carries.
var cdpFrameRates = []struct {
	id      byte
	fps     float64
	ccCount int
}{
	{1, 24000.0 / 1001.0, 25},
	{2, 24, 25},
	{3, 25, 24},
	{4, 30000.0 / 1001.0, 20},
	{5, 30, 20},
	{6, 50, 12},
	{7, 60000.0 / 1001.0, 10},
	{8, 60, 10},
}

func cdpFrameRate(fpsN, fpsD int) (byte, int) {
	if fpsD <= 0 {
		return 5, 20
	}
	fps := float64(fpsN) / float64(fpsD)
	best := cdpFrameRates[4]
	bestDiff := -1.0
	for _, r := range cdpFrameRates {
		diff := fps - r.fps
		if diff < 0 {
			diff = -diff
		}
		if bestDiff < 0 || diff < bestDiff {
			best, bestDiff = r, diff
		}
	}
	return best.id, best.ccCount
}

// ParseCDP extracts the cc triples from a CDP packet, skipping the optional
// time code section.
func ParseCDP(cdp []byte) ([]byte, error) {
	if len(cdp) < 9 {
		return nil, fmt.Errorf("CDP too short: %d bytes", len(cdp))
	}
	if int(cdp[0])<<8|int(cdp[1]) != cdpIdentifier {
		return nil, fmt.Errorf("bad CDP identifier %02x%02x", cdp[0], cdp[1])
	}
	if int(cdp[2]) > len(cdp) {
		return nil, fmt.Errorf("CDP length %d past end", cdp[2])
	}
	rateID := cdp[3] >> 4
	if rateID < 1 || rateID > 8 {
		return nil, fmt.Errorf("bad CDP frame rate %d", rateID)
	}
	flags := cdp[4]
	if flags&cdpFlagCCDataPresent == 0 {
		return nil, fmt.Errorf("CDP without cc data")
	}

	off := 7
	if flags&cdpFlagTimeCodePresent != 0 {
		off += 5
	}
	if off+2 > len(cdp) || cdp[off] != cdpSectionCCData {
		return nil, fmt.Errorf("CDP cc data section missing")
	}
	ccCount := int(cdp[off+1] & 0x1F)
	off += 2
	if off+3*ccCount > len(cdp) {
		return nil, fmt.Errorf("CDP cc data truncated")
	}
	return append([]byte(nil), cdp[off:off+3*ccCount]...), nil
}

// BuildCDP wraps cc triples in a CDP packet, padding to the triple count
// the frame rate calls for.
func BuildCDP(ccData []byte, fpsN, fpsD int, seq uint16) []byte {
	rateID, ccCount := cdpFrameRate(fpsN, fpsD)
	if len(ccData) > 3*ccCount {
		ccData = ccData[:3*ccCount]
	}

	length := 7 + 2 + 3*ccCount + 4
	out := make([]byte, 0, length)
	out = append(out,
		cdpIdentifier>>8, cdpIdentifier&0xFF,
		byte(length),
		rateID<<4|0x0F,
		cdpFlagCCDataPresent|0x02|0x01, // caption_service_active, reserved
		byte(seq>>8), byte(seq),
		cdpSectionCCData,
		0xE0|byte(ccCount),
	)
	out = append(out, ccData...)
	for pad := 3*ccCount - len(ccData); pad > 0; pad -= 3 {
		out = append(out, 0xFA, 0x00, 0x00)
	}
	out = append(out, cdpSectionFooter, byte(seq>>8), byte(seq))

	var sum int
	for _, b := range out {
		sum += int(b)
	}
	return append(out, byte(256-sum%256))
}
