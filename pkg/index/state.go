package index

import (
	"context"

	"github.com/tidwall/btree"
	"github.com/walteh/tokenhints/pkg/annotation"
	"go.uber.org/multierr"
)

// State maps line numbers of one document to the annotations on them. Lines
// with no annotations have no entry. State is not safe for concurrent use.
type State struct {
	document string
	host     annotation.Host
	lines    btree.Map[int, []*annotation.Annotation]
	count    int
}

func NewState(document string, host annotation.Host) *State {
	return &State{document: document, host: host}
}

func (s *State) Document() string {
	return s.document
}

// Len is the number of annotations held.
func (s *State) Len() int {
	return s.count
}

func (s *State) RecordAt(line int, a *annotation.Annotation) {
	existing, _ := s.lines.Get(line)
	s.lines.Set(line, append(existing, a))
	s.count++
}

func (s *State) At(line int) []*annotation.Annotation {
	as, _ := s.lines.Get(line)
	return append([]*annotation.Annotation(nil), as...)
}

// Lines returns the populated lines in ascending order.
func (s *State) Lines() []int {
	out := make([]int, 0, s.lines.Len())
	s.lines.Scan(func(line int, _ []*annotation.Annotation) bool {
		out = append(out, line)
		return true
	})
	return out
}

// Take removes the entries for lines and returns their annotations without
// releasing them. The caller owns the result.
func (s *State) Take(lines []int) []*annotation.Annotation {
	var out []*annotation.Annotation
	for _, line := range lines {
		as, ok := s.lines.Delete(line)
		if !ok {
			continue
		}
		s.count -= len(as)
		out = append(out, as...)
	}
	return out
}

// TakeRange is Take for the inclusive range [from, to].
func (s *State) TakeRange(from, to int) []*annotation.Annotation {
	if to < from {
		return nil
	}
	var lines []int
	iter := s.lines.Iter()
	for more := iter.Seek(from); more && iter.Key() <= to; more = iter.Next() {
		lines = append(lines, iter.Key())
	}
	return s.Take(lines)
}

func (s *State) takeAll() []*annotation.Annotation {
	var out []*annotation.Annotation
	s.lines.Scan(func(_ int, as []*annotation.Annotation) bool {
		out = append(out, as...)
		return true
	})
	s.lines = btree.Map[int, []*annotation.Annotation]{}
	s.count = 0
	return out
}

// Release disposes annotations on the host. Every annotation is attempted;
// errors are combined.
func (s *State) Release(ctx context.Context, as []*annotation.Annotation) error {
	var err error
	for _, a := range as {
		err = multierr.Append(err, a.Release(ctx, s.host))
	}
	return err
}

func (s *State) ClearLines(ctx context.Context, lines []int) error {
	return s.Release(ctx, s.Take(lines))
}

func (s *State) ClearAll(ctx context.Context) error {
	return s.Release(ctx, s.takeAll())
}

// Trim releases everything on lines at or past lineCount.
func (s *State) Trim(ctx context.Context, lineCount int) error {
	var lines []int
	iter := s.lines.Iter()
	for more := iter.Seek(lineCount); more; more = iter.Next() {
		lines = append(lines, iter.Key())
	}
	return s.ClearLines(ctx, lines)
}

// Shift moves every entry at or after line from by delta. Entries pushed below
// line zero are released; entries landing on an occupied line are merged.
func (s *State) Shift(ctx context.Context, from, delta int) error {
	if delta == 0 {
		return nil
	}

	type moved struct {
		line int
		as   []*annotation.Annotation
	}
	var move []moved
	iter := s.lines.Iter()
	for more := iter.Seek(from); more; more = iter.Next() {
		move = append(move, moved{line: iter.Key(), as: iter.Value()})
	}
	for _, m := range move {
		s.lines.Delete(m.line)
	}

	var dropped []*annotation.Annotation
	for _, m := range move {
		to := m.line + delta
		if to < 0 {
			dropped = append(dropped, m.as...)
			s.count -= len(m.as)
			continue
		}
		existing, _ := s.lines.Get(to)
		s.lines.Set(to, append(existing, m.as...))
	}
	return s.Release(ctx, dropped)
}

// Snapshot returns the token names on each line, for inspection and tests.
func (s *State) Snapshot() map[int][]string {
	out := map[int][]string{}
	s.lines.Scan(func(line int, as []*annotation.Annotation) bool {
		for _, a := range as {
			out[line] = append(out[line], a.Name)
		}
		return true
	})
	return out
}
