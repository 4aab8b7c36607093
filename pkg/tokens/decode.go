package tokens

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

// Decode parses a flat token file, choosing the format by extension. Nested
// objects, arrays and nulls are skipped.
func Decode(filename string, data []byte) (*Dictionary, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		return DecodeJSON(data)
	case ".yaml", ".yml":
		return DecodeYAML(data)
	case ".hcl":
		return DecodeHCL(filename, data)
	}
	return nil, errors.Errorf("unsupported token file extension %q", filepath.Ext(filename))
}

func DecodeJSON(data []byte) (*Dictionary, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err == io.EOF {
		return NewDictionary(), nil
	}
	if err != nil {
		return nil, errors.Errorf("reading json: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.Errorf("token json must be an object")
	}

	var toks []Token
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, errors.Errorf("reading json key: %w", err)
		}
		key, _ := keyTok.(string)

		var raw any
		if err := dec.Decode(&raw); err != nil {
			return nil, errors.Errorf("reading json value for %q: %w", key, err)
		}

		switch v := raw.(type) {
		case string:
			toks = append(toks, Token{Name: key, Value: StringValue(v)})
		case json.Number:
			f, err := v.Float64()
			if err != nil {
				return nil, errors.Errorf("token %q: %w", key, err)
			}
			toks = append(toks, Token{Name: key, Value: NumberValue(f)})
		case bool:
			toks = append(toks, Token{Name: key, Value: StringValue(strconv.FormatBool(v))})
		}
	}
	return NewDictionary(toks...), nil
}

func DecodeYAML(data []byte) (*Dictionary, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, errors.Errorf("reading yaml: %w", err)
	}
	if root.Kind == 0 {
		return NewDictionary(), nil
	}
	doc := &root
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		doc = doc.Content[0]
	}
	if doc.Kind != yaml.MappingNode {
		return nil, errors.Errorf("token yaml must be a mapping")
	}

	var toks []Token
	for i := 0; i+1 < len(doc.Content); i += 2 {
		k, v := doc.Content[i], doc.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			continue
		}
		switch v.Tag {
		case "!!null":
		case "!!int", "!!float":
			f, err := strconv.ParseFloat(v.Value, 64)
			if err != nil {
				return nil, errors.Errorf("token %q: %w", k.Value, err)
			}
			toks = append(toks, Token{Name: k.Value, Value: NumberValue(f)})
		default:
			toks = append(toks, Token{Name: k.Value, Value: StringValue(v.Value)})
		}
	}
	return NewDictionary(toks...), nil
}

// DecodeHCL reads top-level attributes of an HCL file. Expressions are
// evaluated without variables, so only literals and pure operators work.
func DecodeHCL(filename string, data []byte) (*Dictionary, error) {
	file, diags := hclsyntax.ParseConfig(data, filename, hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, errors.Errorf("parsing hcl: %w", diags)
	}
	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil, errors.Errorf("unexpected hcl body type %T", file.Body)
	}

	attrs := make([]*hclsyntax.Attribute, 0, len(body.Attributes))
	for _, a := range body.Attributes {
		attrs = append(attrs, a)
	}
	sort.Slice(attrs, func(i, j int) bool {
		return attrs[i].SrcRange.Start.Byte < attrs[j].SrcRange.Start.Byte
	})

	var toks []Token
	for _, a := range attrs {
		val, diags := a.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, errors.Errorf("token %q: %w", a.Name, diags)
		}
		if val.IsNull() || !val.IsKnown() {
			continue
		}
		switch val.Type() {
		case cty.String:
			toks = append(toks, Token{Name: a.Name, Value: StringValue(val.AsString())})
		case cty.Number:
			f, _ := val.AsBigFloat().Float64()
			toks = append(toks, Token{Name: a.Name, Value: NumberValue(f)})
		case cty.Bool:
			toks = append(toks, Token{Name: a.Name, Value: StringValue(strconv.FormatBool(val.True()))})
		}
	}
	return NewDictionary(toks...), nil
}
