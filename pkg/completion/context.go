package completion

import (
	"github.com/walteh/tokenhints/pkg/text"
)

// CompletionContext holds information about the completion request context
type CompletionContext struct {
	// Prefix is the identifier typed so far, ending at the cursor.
	Prefix string
	// Replace covers Prefix, so accepting an item replaces what was typed.
	Replace text.Range
	// AfterDot is set for member access such as "token.".
	AfterDot bool
}

// NewCompletionContext creates a new completion context
func NewCompletionContext(doc *text.Document, pos text.Position) *CompletionContext {
	ctx := &CompletionContext{Replace: text.Range{Start: pos, End: pos}}

	line, ok := doc.Line(pos.Line)
	if !ok {
		return ctx
	}
	at := text.ByteOffset(line, pos.Character)

	start := at
	for start > 0 && isIdentByte(line[start-1]) {
		start--
	}
	ctx.Prefix = line[start:at]
	ctx.Replace.Start = text.Position{Line: pos.Line, Character: text.UTF16Len(line[:start])}
	ctx.AfterDot = start > 0 && line[start-1] == '.'

	return ctx
}

func isIdentByte(b byte) bool {
	return b == '_' || b == '$' || ('0' <= b && b <= '9') || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}
