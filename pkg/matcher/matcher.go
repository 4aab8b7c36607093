package matcher

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/rs/zerolog"
	"github.com/walteh/tokenhints/pkg/text"
	"gitlab.com/tozd/go/errors"
)

// Occurrence is one match of a token name in a document. Offset and Length
// are in bytes.
type Occurrence struct {
	Name   string
	Line   int
	Offset int
	Length int
}

func (o Occurrence) End() int {
	return o.Offset + o.Length
}

type pattern struct {
	name string
	re   *regexp2.Regexp
}

// Matcher finds whole-word token names that are not followed by a hyphen, so
// "colorPrimary" matches but "colorPrimary-hover" and "mycolorPrimary" don't.
type Matcher struct {
	patterns []pattern
}

const matchTimeout = time.Second

func New(names []string) (*Matcher, error) {
	m := &Matcher{patterns: make([]pattern, 0, len(names))}
	for _, name := range names {
		if name == "" {
			continue
		}
		re, err := regexp2.Compile(`\b(`+regexp2.Escape(name)+`)\b(?!-)`, regexp2.ECMAScript)
		if err != nil {
			return nil, errors.Errorf("compiling pattern for %q: %w", name, err)
		}
		re.MatchTimeout = matchTimeout
		m.patterns = append(m.patterns, pattern{name: name, re: re})
	}
	return m, nil
}

func (m *Matcher) Len() int {
	return len(m.patterns)
}

// Match scans every line of doc.
func (m *Matcher) Match(ctx context.Context, doc *text.Document) []Occurrence {
	lines := make([]int, doc.LineCount())
	for i := range lines {
		lines[i] = i
	}
	return m.MatchLines(ctx, doc, lines)
}

// MatchLines scans only the given lines. Lines outside the document are
// ignored. Results are ordered by offset, then name.
func (m *Matcher) MatchLines(ctx context.Context, doc *text.Document, lines []int) []Occurrence {
	seen := make(map[int]struct{}, len(lines))
	var out []Occurrence
	for _, line := range lines {
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}

		content, ok := doc.Line(line)
		if !ok || content == "" {
			continue
		}
		out = append(out, m.matchLine(ctx, content, line, doc.LineStart(line))...)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Offset != out[j].Offset {
			return out[i].Offset < out[j].Offset
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (m *Matcher) matchLine(ctx context.Context, content string, line, start int) []Occurrence {
	var runes []rune
	var out []Occurrence
	for _, p := range m.patterns {
		if !strings.Contains(content, p.name) {
			continue
		}
		if runes == nil {
			runes = []rune(content)
		}
		found, err := p.find(runes, content)
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("token", p.name).Int("line", line).Msg("token match failed")
			continue
		}
		for _, f := range found {
			out = append(out, Occurrence{Name: p.name, Line: line, Offset: start + f[0], Length: f[1]})
		}
	}
	return out
}

// find returns [byteOffset, byteLength] pairs within content.
func (p pattern) find(runes []rune, content string) (found [][2]int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic matching %q: %v", p.name, r)
		}
	}()

	match, err := p.re.FindRunesMatch(runes)
	for match != nil && err == nil {
		off := text.RuneToByte(content, match.Index)
		end := text.RuneToByte(content, match.Index+match.Length)
		found = append(found, [2]int{off, end - off})
		match, err = p.re.FindNextMatch(match)
	}
	if err != nil {
		return nil, errors.Errorf("matching %q: %w", p.name, err)
	}
	return found, nil
}
