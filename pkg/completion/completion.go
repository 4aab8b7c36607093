// Package completion offers design token names while typing.
package completion

import (
	"fmt"
	"strings"

	"github.com/walteh/tokenhints/pkg/hover"
	"github.com/walteh/tokenhints/pkg/tokens"
)

// ItemKindValue is the protocol completion kind for values.
const ItemKindValue = 12

// Item is a completion suggestion for one token.
type Item struct {
	Label         string
	Kind          int
	InsertText    string
	SortText      string
	FilterText    string
	Documentation string
}

// BuildItems renders one item per token, in dictionary order. Number tokens
// sort by zero padded value so sizes list in ascending order.
func BuildItems(dict *tokens.Dictionary, prefix, title string) []Item {
	toks := dict.Tokens()
	items := make([]Item, 0, len(toks))
	for _, t := range toks {
		items = append(items, buildItem(t, prefix, title))
	}
	return items
}

func buildItem(t tokens.Token, prefix, title string) Item {
	item := Item{
		Label:         fmt.Sprintf("%s-%s: %s", prefix, t.Name, t.Value.Raw),
		Kind:          ItemKindValue,
		InsertText:    t.Name,
		FilterText:    t.Name,
		SortText:      "a-" + t.Name,
		Documentation: hover.FormatTokenMarkdown(4, title, t.Name, t.Value),
	}
	if strings.Contains(t.Name, "-") {
		item.InsertText = fmt.Sprintf("['%s']", t.Name)
	}
	if t.Value.Kind == tokens.KindNumber {
		item.SortText = fmt.Sprintf("a-%s-%s", padStart(t.Value.Raw, 5, '0'), t.Name)
	}
	return item
}

func padStart(s string, width int, pad byte) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(string(pad), width-len(s)) + s
}
