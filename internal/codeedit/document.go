package codeedit

import (
	"strings"

	"github.com/Cyclone1070/gatekeep/internal/fileops"
)

// document is a file split into lines. Line endings are normalised to \n
// while editing and restored on encode, as is the original encoding.
type document struct {
	lines       []string
	crlf        bool
	trailingEOL bool
	encoding    string
}

func parseDocument(raw []byte) (*document, error) {
	enc, _ := fileops.DetectEncoding(raw, false)
	text, err := fileops.Decode(raw, enc)
	if err != nil {
		return nil, err
	}
	d := &document{encoding: enc, crlf: strings.Contains(text, "\r\n")}
	d.setText(strings.ReplaceAll(text, "\r\n", "\n"))
	return d, nil
}

func (d *document) lineCount() int {
	return len(d.lines)
}

// text returns the \n-normalised content.
func (d *document) text() string {
	if len(d.lines) == 0 {
		return ""
	}
	s := strings.Join(d.lines, "\n")
	if d.trailingEOL {
		s += "\n"
	}
	return s
}

func (d *document) setText(text string) {
	d.lines = nil
	d.trailingEOL = false
	if text == "" {
		return
	}
	d.trailingEOL = strings.HasSuffix(text, "\n")
	d.lines = strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}

func (d *document) encode() ([]byte, error) {
	s := d.text()
	if d.crlf {
		s = strings.ReplaceAll(s, "\n", "\r\n")
	}
	return fileops.Encode(s, d.encoding)
}

// insert places block before the 0-indexed line at.
func (d *document) insert(at int, block []string) {
	if len(d.lines) == 0 {
		d.trailingEOL = true
	}
	lines := make([]string, 0, len(d.lines)+len(block))
	lines = append(lines, d.lines[:at]...)
	lines = append(lines, block...)
	lines = append(lines, d.lines[at:]...)
	d.lines = lines
}

// remove drops the 0-indexed lines [from, to).
func (d *document) remove(from, to int) {
	d.lines = append(d.lines[:from:from], d.lines[to:]...)
}

// splitBlock turns inserted content into lines. One trailing newline is
// the block terminator, not an extra empty line.
func splitBlock(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.TrimSuffix(content, "\n")
	return strings.Split(content, "\n")
}
