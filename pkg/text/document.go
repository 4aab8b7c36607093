package text

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"gitlab.com/tozd/go/errors"
)

// Position is a zero-based line and a character offset measured in UTF-16
// code units, the unit editors and the language server protocol use.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

func (r Range) IsEmpty() bool {
	return r.Start == r.End
}

// Change replaces Range with Text. A nil Range replaces the whole document.
type Change struct {
	Range *Range
	Text  string
}

// Document is an immutable snapshot of a text buffer with a precomputed line
// table. Line terminators are "\n"; a trailing "\r" is not part of the line.
type Document struct {
	content string
	starts  []int
}

func NewDocument(content string) *Document {
	starts := make([]int, 1, strings.Count(content, "\n")+1)
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &Document{content: content, starts: starts}
}

func (d *Document) Content() string {
	return d.content
}

// LineCount follows editor semantics: an empty document has one line and a
// trailing newline opens a new, empty last line.
func (d *Document) LineCount() int {
	return len(d.starts)
}

func (d *Document) LineStart(line int) int {
	if line < 0 {
		return 0
	}
	if line >= len(d.starts) {
		return len(d.content)
	}
	return d.starts[line]
}

// lineEnd is the byte offset of the line terminator (or end of content),
// excluding any "\r" before the "\n".
func (d *Document) lineEnd(line int) int {
	end := len(d.content)
	if line+1 < len(d.starts) {
		end = d.starts[line+1] - 1
	}
	if end > d.starts[line] && d.content[end-1] == '\r' {
		end--
	}
	return end
}

// Line returns the text of a line without its terminator.
func (d *Document) Line(line int) (string, bool) {
	if line < 0 || line >= len(d.starts) {
		return "", false
	}
	return d.content[d.starts[line]:d.lineEnd(line)], true
}

// LineLength is the length of a line in UTF-16 code units.
func (d *Document) LineLength(line int) int {
	l, ok := d.Line(line)
	if !ok {
		return 0
	}
	return UTF16Len(l)
}

// OffsetAt converts a position to a byte offset. Characters past the end of
// the line clamp to the line end, lines past the end of the document clamp to
// the end of the content.
func (d *Document) OffsetAt(p Position) (int, error) {
	if p.Line < 0 || p.Character < 0 {
		return 0, errors.Errorf("invalid position %d:%d", p.Line, p.Character)
	}
	if p.Line >= len(d.starts) {
		return len(d.content), nil
	}
	l, _ := d.Line(p.Line)
	return d.starts[p.Line] + ByteOffset(l, p.Character), nil
}

// PositionAt converts a byte offset to a position.
func (d *Document) PositionAt(offset int) Position {
	if offset < 0 {
		offset = 0
	}
	if offset > len(d.content) {
		offset = len(d.content)
	}
	line := searchLine(d.starts, offset)
	l, _ := d.Line(line)
	col := offset - d.starts[line]
	if col > len(l) {
		col = len(l)
	}
	return Position{Line: line, Character: UTF16Len(l[:col])}
}

// RangeOf converts a byte span to a range.
func (d *Document) RangeOf(offset, length int) Range {
	return Range{Start: d.PositionAt(offset), End: d.PositionAt(offset + length)}
}

// Apply returns a new snapshot with the change applied.
func (d *Document) Apply(c Change) (*Document, error) {
	if c.Range == nil {
		return NewDocument(c.Text), nil
	}
	start, err := d.OffsetAt(c.Range.Start)
	if err != nil {
		return nil, errors.Errorf("resolving change start: %w", err)
	}
	end, err := d.OffsetAt(c.Range.End)
	if err != nil {
		return nil, errors.Errorf("resolving change end: %w", err)
	}
	if end < start {
		return nil, errors.Errorf("inverted change range %d:%d-%d:%d",
			c.Range.Start.Line, c.Range.Start.Character, c.Range.End.Line, c.Range.End.Character)
	}
	return NewDocument(d.content[:start] + c.Text + d.content[end:]), nil
}

func searchLine(starts []int, offset int) int {
	lo, hi := 0, len(starts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if starts[mid] <= offset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

// UTF16Len counts the UTF-16 code units needed to encode s.
func UTF16Len(s string) int {
	n := 0
	for _, r := range s {
		if utf16.RuneLen(r) == 2 {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// ByteOffset converts a UTF-16 column within line to a byte offset, clamping
// to the line length.
func ByteOffset(line string, character int) int {
	units := 0
	for i, r := range line {
		if units >= character {
			return i
		}
		if utf16.RuneLen(r) == 2 {
			units += 2
		} else {
			units++
		}
	}
	return len(line)
}

// RuneToByte maps a rune index in s to a byte offset.
func RuneToByte(s string, runes int) int {
	i := 0
	for runes > 0 && i < len(s) {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
		runes--
	}
	return i
}
