package tokens

import (
	"io"
	"math"

	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

// EncodeYAML writes dict as a flat mapping in dictionary order, in the form
// DecodeYAML reads.
func EncodeYAML(w io.Writer, dict *Dictionary) error {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, t := range dict.Tokens() {
		value := &yaml.Node{Kind: yaml.ScalarNode, Value: t.Value.Raw, Tag: "!!str", Style: yaml.DoubleQuotedStyle}
		if t.Value.Kind == KindNumber {
			value.Style = 0
			value.Tag = "!!float"
			if t.Value.Number == math.Trunc(t.Value.Number) {
				value.Tag = "!!int"
			}
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: t.Name}, value)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(node); err != nil {
		return errors.Errorf("encoding tokens: %w", err)
	}
	if err := enc.Close(); err != nil {
		return errors.Errorf("encoding tokens: %w", err)
	}
	return nil
}
