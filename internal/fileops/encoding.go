package fileops

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
)

// Supported encoding names.
const (
	EncodingAuto     = "auto"
	EncodingUTF8     = "utf-8"
	EncodingUTF8BOM  = "utf-8-bom"
	EncodingUTF16LE  = "utf-16le"
	EncodingUTF16BE  = "utf-16be"
	EncodingShiftJIS = "shift-jis"
	EncodingEUCJP    = "euc-jp"
	EncodingLatin1   = "latin-1"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

var aliases = map[string]string{
	"":           EncodingAuto,
	"auto":       EncodingAuto,
	"utf-8":      EncodingUTF8,
	"utf8":       EncodingUTF8,
	"utf-8-bom":  EncodingUTF8BOM,
	"utf8bom":    EncodingUTF8BOM,
	"utf-16le":   EncodingUTF16LE,
	"utf16le":    EncodingUTF16LE,
	"utf-16be":   EncodingUTF16BE,
	"utf16be":    EncodingUTF16BE,
	"shift-jis":  EncodingShiftJIS,
	"shift_jis":  EncodingShiftJIS,
	"sjis":       EncodingShiftJIS,
	"euc-jp":     EncodingEUCJP,
	"eucjp":      EncodingEUCJP,
	"latin-1":    EncodingLatin1,
	"latin1":     EncodingLatin1,
	"iso-8859-1": EncodingLatin1,
}

// NormalizeEncoding maps a user-supplied name onto a supported encoding.
func NormalizeEncoding(name string) (string, error) {
	enc, ok := aliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("unsupported encoding %q", name)
	}
	return enc, nil
}

func codec(name string) encoding.Encoding {
	switch name {
	case EncodingUTF8BOM:
		return unicode.UTF8BOM
	case EncodingUTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)
	case EncodingUTF16BE:
		return unicode.UTF16(unicode.BigEndian, unicode.UseBOM)
	case EncodingShiftJIS:
		return japanese.ShiftJIS
	case EncodingEUCJP:
		return japanese.EUCJP
	case EncodingLatin1:
		return charmap.ISO8859_1
	}
	return nil
}

// Decode converts raw bytes in the named encoding to a Go string.
func Decode(raw []byte, name string) (string, error) {
	c := codec(name)
	if c == nil {
		return string(raw), nil
	}
	out, err := c.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", name, err)
	}
	return string(out), nil
}

// Encode converts s to the named encoding.
func Encode(s, name string) ([]byte, error) {
	c := codec(name)
	if c == nil {
		return []byte(s), nil
	}
	out, err := c.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", name, err)
	}
	return out, nil
}

// DetectEncoding guesses the encoding of raw. ambiguous is true when no
// candidate decodes cleanly and utf-8 was chosen as the fallback. When
// truncated is set, a multibyte sequence cut at the end is tolerated.
func DetectEncoding(raw []byte, truncated bool) (name string, ambiguous bool) {
	switch {
	case bytes.HasPrefix(raw, bomUTF8):
		return EncodingUTF8BOM, false
	case bytes.HasPrefix(raw, bomUTF16LE):
		return EncodingUTF16LE, false
	case bytes.HasPrefix(raw, bomUTF16BE):
		return EncodingUTF16BE, false
	}

	sample := raw
	if truncated {
		sample = trimPartialTail(raw)
	}
	if utf8.Valid(sample) {
		return EncodingUTF8, false
	}

	sjisOK := decodesCleanly(sample, japanese.ShiftJIS)
	eucOK := decodesCleanly(sample, japanese.EUCJP)
	switch {
	case sjisOK && eucOK:
		// Bytes 0x81-0x9F (other than the EUC single shifts) only lead in Shift-JIS.
		if hasSJISOnlyLead(sample) {
			return EncodingShiftJIS, false
		}
		return EncodingEUCJP, false
	case sjisOK:
		return EncodingShiftJIS, false
	case eucOK:
		return EncodingEUCJP, false
	}
	return EncodingUTF8, true
}

func decodesCleanly(b []byte, enc encoding.Encoding) bool {
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return false
	}
	return !bytes.ContainsRune(out, utf8.RuneError)
}

func hasSJISOnlyLead(b []byte) bool {
	for _, c := range b {
		if c >= 0x81 && c <= 0x9F && c != 0x8E && c != 0x8F {
			return true
		}
	}
	return false
}

// trimPartialTail drops up to three trailing bytes of an incomplete multibyte sequence.
func trimPartialTail(b []byte) []byte {
	for k := 0; k < 4 && k < len(b); k++ {
		if utf8.Valid(b[:len(b)-k]) {
			return b[:len(b)-k]
		}
	}
	return b
}
