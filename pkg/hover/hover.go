// Package hover builds the markdown shown for a design token, both in hover
// popups and in inline annotation tooltips.
package hover

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/walteh/tokenhints/pkg/text"
	"github.com/walteh/tokenhints/pkg/tokens"
	"gitlab.com/tozd/go/errors"
)

// HoverInfo represents the information to be displayed in a hover tooltip
type HoverInfo struct {
	Name    string
	Content string
	Range   text.Range
}

// Swatch renders a small block filled with the value's color, or nothing for
// values that are not colors. Editor markdown renderers only honor inline
// color styles on span elements.
func Swatch(v tokens.Value) string {
	if !v.IsColor() {
		return ""
	}
	return fmt.Sprintf("<span style='background-color:%s;'>&nbsp;&nbsp;&nbsp;&nbsp;&nbsp;&nbsp;</span>&nbsp;&nbsp;", v.Hex)
}

// FormatTokenMarkdown renders a heading of the given level followed by the
// swatch and the value.
func FormatTokenMarkdown(level int, title, name string, v tokens.Value) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<h%d>%s: %s</h%d>", level, title, name, level)
	sb.WriteString(Swatch(v))
	fmt.Fprintf(&sb, "<code>%s</code><br></br>", v.Raw)
	return sb.String()
}

func isWordByte(b byte) bool {
	return b == '_' || b == '$' || ('0' <= b && b <= '9') || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}

// WordAt returns the identifier under pos and its byte span within the line.
func WordAt(doc *text.Document, pos text.Position) (string, int, int, bool) {
	line, ok := doc.Line(pos.Line)
	if !ok {
		return "", 0, 0, false
	}
	at := text.ByteOffset(line, pos.Character)

	start := at
	for start > 0 && isWordByte(line[start-1]) {
		start--
	}
	end := at
	for end < len(line) && isWordByte(line[end]) {
		end++
	}
	if start == end {
		return "", 0, 0, false
	}
	return line[start:end], start, end, true
}

// BuildHoverResponse looks up the token under pos. It returns nil when the
// word is not a token or is followed by a hyphen.
func BuildHoverResponse(ctx context.Context, doc *text.Document, pos text.Position, dict *tokens.Dictionary, title string) (*HoverInfo, error) {
	if doc == nil {
		return nil, errors.New("document cannot be nil")
	}

	word, start, end, ok := WordAt(doc, pos)
	if !ok {
		return nil, nil
	}

	line, _ := doc.Line(pos.Line)
	if end < len(line) && line[end] == '-' {
		return nil, nil
	}

	v, ok := dict.Get(word)
	if !ok {
		zerolog.Ctx(ctx).Debug().Str("word", word).Msg("no token under cursor")
		return nil, nil
	}

	lineStart := doc.LineStart(pos.Line)
	return &HoverInfo{
		Name:    word,
		Content: FormatTokenMarkdown(3, title, word, v),
		Range:   doc.RangeOf(lineStart+start, end-start),
	}, nil
}
