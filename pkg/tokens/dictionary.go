package tokens

import (
	"strconv"
)

type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindColor
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindColor:
		return "color"
	default:
		return "string"
	}
}

// Value is a token value as the editor displays it. Raw is the stringified
// form; Hex is set for colors.
type Value struct {
	Kind   Kind
	Raw    string
	Number float64
	Hex    string
}

func (v Value) String() string {
	return v.Raw
}

func (v Value) IsColor() bool {
	return v.Kind == KindColor
}

// StringValue classifies a string token value, detecting colors.
func StringValue(s string) Value {
	if hex, ok := ParseColor(s); ok {
		return Value{Kind: KindColor, Raw: s, Hex: hex}
	}
	return Value{Kind: KindString, Raw: s}
}

func NumberValue(n float64) Value {
	return Value{Kind: KindNumber, Raw: strconv.FormatFloat(n, 'f', -1, 64), Number: n}
}

type Token struct {
	Name  string
	Value Value
}

// Dictionary is an ordered set of uniquely named tokens. It is immutable once
// built and safe to share.
type Dictionary struct {
	tokens []Token
	index  map[string]int
}

// NewDictionary builds a dictionary. A repeated name keeps its first position
// and takes the last value.
func NewDictionary(toks ...Token) *Dictionary {
	d := &Dictionary{index: make(map[string]int, len(toks))}
	for _, t := range toks {
		d.set(t)
	}
	return d
}

func (d *Dictionary) set(t Token) {
	if t.Name == "" {
		return
	}
	if i, ok := d.index[t.Name]; ok {
		d.tokens[i] = t
		return
	}
	d.index[t.Name] = len(d.tokens)
	d.tokens = append(d.tokens, t)
}

func (d *Dictionary) Len() int {
	if d == nil {
		return 0
	}
	return len(d.tokens)
}

func (d *Dictionary) Get(name string) (Value, bool) {
	if d == nil {
		return Value{}, false
	}
	i, ok := d.index[name]
	if !ok {
		return Value{}, false
	}
	return d.tokens[i].Value, true
}

func (d *Dictionary) Names() []string {
	if d == nil {
		return nil
	}
	names := make([]string, len(d.tokens))
	for i, t := range d.tokens {
		names[i] = t.Name
	}
	return names
}

func (d *Dictionary) Tokens() []Token {
	if d == nil {
		return nil
	}
	return append([]Token(nil), d.tokens...)
}

// Merge returns a dictionary where other's tokens override d's.
func (d *Dictionary) Merge(other *Dictionary) *Dictionary {
	return NewDictionary(append(d.Tokens(), other.Tokens()...)...)
}
