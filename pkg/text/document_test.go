package text_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/tokenhints/pkg/text"
)

func TestLineCount(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
	}{
		{name: "empty", content: "", want: 1},
		{name: "single line", content: "abc", want: 1},
		{name: "trailing newline", content: "abc\n", want: 2},
		{name: "crlf", content: "a\r\nb\r\nc", want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, text.NewDocument(tt.content).LineCount())
		})
	}
}

func TestLineStripsCarriageReturn(t *testing.T) {
	doc := text.NewDocument("one\r\ntwo\r\n")
	l, ok := doc.Line(0)
	require.True(t, ok)
	assert.Equal(t, "one", l)
	l, ok = doc.Line(2)
	require.True(t, ok)
	assert.Equal(t, "", l)
	_, ok = doc.Line(3)
	assert.False(t, ok)
}

func TestUTF16Positions(t *testing.T) {
	// the emoji is two UTF-16 code units and four bytes
	doc := text.NewDocument("a😀colorPrimary\nx")

	off, err := doc.OffsetAt(text.Position{Line: 0, Character: 3})
	require.NoError(t, err)
	assert.Equal(t, 5, off)

	assert.Equal(t, text.Position{Line: 0, Character: 3}, doc.PositionAt(5))
	assert.Equal(t, 15, doc.LineLength(0))
	assert.Equal(t, text.Position{Line: 1, Character: 0}, doc.PositionAt(18))
}

func TestOffsetClamps(t *testing.T) {
	doc := text.NewDocument("ab\ncd")

	off, err := doc.OffsetAt(text.Position{Line: 0, Character: 99})
	require.NoError(t, err)
	assert.Equal(t, 2, off)

	off, err = doc.OffsetAt(text.Position{Line: 9, Character: 0})
	require.NoError(t, err)
	assert.Equal(t, 5, off)

	_, err = doc.OffsetAt(text.Position{Line: -1})
	assert.Error(t, err)
}

func TestApply(t *testing.T) {
	tests := []struct {
		name   string
		before string
		change text.Change
		after  string
	}{
		{
			name:   "insert",
			before: "hello world",
			change: text.Change{Range: &text.Range{Start: text.Position{0, 5}, End: text.Position{0, 5}}, Text: ","},
			after:  "hello, world",
		},
		{
			name:   "delete across lines",
			before: "a\nb\nc\nd",
			change: text.Change{Range: &text.Range{Start: text.Position{1, 0}, End: text.Position{3, 0}}},
			after:  "a\nd",
		},
		{
			name:   "full replace",
			before: "old",
			change: text.Change{Text: "new"},
			after:  "new",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := text.NewDocument(tt.before).Apply(tt.change)
			require.NoError(t, err)
			assert.Equal(t, tt.after, doc.Content())
		})
	}
}

func TestApplyRejectsInvertedRange(t *testing.T) {
	_, err := text.NewDocument("abc").Apply(text.Change{
		Range: &text.Range{Start: text.Position{0, 2}, End: text.Position{0, 1}},
	})
	assert.Error(t, err)
}

func TestRuneToByte(t *testing.T) {
	assert.Equal(t, 0, text.RuneToByte("héllo", 0))
	assert.Equal(t, 3, text.RuneToByte("héllo", 2))
	assert.Equal(t, 6, text.RuneToByte("héllo", 99))
}
