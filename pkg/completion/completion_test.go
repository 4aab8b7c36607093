package completion_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/tokenhints/pkg/completion"
	"github.com/walteh/tokenhints/pkg/text"
	"github.com/walteh/tokenhints/pkg/tokens"
)

func TestBuildItems(t *testing.T) {
	dict := tokens.NewDictionary(
		tokens.Token{Name: "colorPrimary", Value: tokens.StringValue("#1677ff")},
		tokens.Token{Name: "fontSize", Value: tokens.NumberValue(14)},
		tokens.Token{Name: "screen-md", Value: tokens.NumberValue(768)},
	)

	items := completion.BuildItems(dict, "antd", "antd design token")
	require.Len(t, items, 3)

	tests := []struct {
		name   string
		item   completion.Item
		label  string
		insert string
		sort   string
	}{
		{name: "color", item: items[0], label: "antd-colorPrimary: #1677ff", insert: "colorPrimary", sort: "a-colorPrimary"},
		{name: "number", item: items[1], label: "antd-fontSize: 14", insert: "fontSize", sort: "a-00014-fontSize"},
		{name: "hyphenated", item: items[2], label: "antd-screen-md: 768", insert: "['screen-md']", sort: "a-00768-screen-md"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.label, tt.item.Label)
			assert.Equal(t, tt.insert, tt.item.InsertText)
			assert.Equal(t, tt.sort, tt.item.SortText)
			assert.Equal(t, completion.ItemKindValue, tt.item.Kind)
		})
	}

	assert.Contains(t, items[0].Documentation, "<h4>antd design token: colorPrimary</h4>")
	assert.Contains(t, items[0].Documentation, "background-color:#1677ff")
}

func TestNewCompletionContext(t *testing.T) {
	doc := text.NewDocument("const c = token.colorP\nplain")

	tests := []struct {
		name     string
		pos      text.Position
		prefix   string
		start    int
		afterDot bool
	}{
		{name: "member access", pos: text.Position{Line: 0, Character: 22}, prefix: "colorP", start: 16, afterDot: true},
		{name: "right after dot", pos: text.Position{Line: 0, Character: 16}, prefix: "", start: 16, afterDot: true},
		{name: "bare word", pos: text.Position{Line: 1, Character: 3}, prefix: "pla", start: 0},
		{name: "past the end", pos: text.Position{Line: 4, Character: 0}, prefix: "", start: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := completion.NewCompletionContext(doc, tt.pos)
			assert.Equal(t, tt.prefix, c.Prefix)
			assert.Equal(t, tt.start, c.Replace.Start.Character)
			assert.Equal(t, tt.pos, c.Replace.End)
			assert.Equal(t, tt.afterDot, c.AfterDot)
		})
	}
}
