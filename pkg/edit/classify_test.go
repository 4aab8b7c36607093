package edit_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/tokenhints/pkg/edit"
	"github.com/walteh/tokenhints/pkg/text"
	"pgregory.net/rapid"
)

func rng(sl, sc, el, ec int) *text.Range {
	return &text.Range{Start: text.Position{Line: sl, Character: sc}, End: text.Position{Line: el, Character: ec}}
}

func tenLines() *text.Document {
	lines := make([]string, 10)
	for i := range lines {
		lines[i] = "line colorPrimary"
	}
	return text.NewDocument(strings.Join(lines, "\n"))
}

func TestClassify(t *testing.T) {
	doc := tenLines()
	opts := edit.Options{InstantLineDelta: 100}

	tests := []struct {
		name   string
		change text.Change
		reason edit.Reason
		want   edit.Plan
	}{
		{
			name:   "type a character at end of line",
			change: text.Change{Range: rng(0, 17, 0, 17), Text: "x"},
			want: edit.Plan{Shape: edit.ShapeSubstitution, Invalidate: edit.LineRange{0, 0}, ShiftFrom: 1,
				Rescan: edit.LineRange{0, 0}},
		},
		{
			name:   "paste three full lines at column zero",
			change: text.Change{Range: rng(2, 0, 2, 0), Text: "a\nb\nc\n"},
			want: edit.Plan{Shape: edit.ShapeMultiLinePaste, Invalidate: edit.LineRange{2, 1}, ShiftFrom: 2, Delta: 3,
				Rescan: edit.LineRange{2, 4}},
		},
		{
			name:   "paste without trailing newline",
			change: text.Change{Range: rng(2, 0, 2, 0), Text: "a\nb\nc"},
			want: edit.Plan{Shape: edit.ShapeMultiLinePaste, Invalidate: edit.LineRange{2, 2}, ShiftFrom: 3, Delta: 2,
				Rescan: edit.LineRange{2, 4}},
		},
		{
			name:   "cut whole lines",
			change: text.Change{Range: rng(4, 0, 7, 0)},
			want: edit.Plan{Shape: edit.ShapeCutLines, Invalidate: edit.LineRange{4, 6}, ShiftFrom: 7, Delta: -3,
				Rescan: edit.LineRange{4, 3}},
		},
		{
			name:   "enter at end of line",
			change: text.Change{Range: rng(3, 17, 3, 17), Text: "\n    "},
			want: edit.Plan{Shape: edit.ShapeLineBreak, Invalidate: edit.LineRange{4, 3}, ShiftFrom: 4, Delta: 1,
				Rescan: edit.LineRange{4, 4}},
		},
		{
			name:   "enter at start of line",
			change: text.Change{Range: rng(3, 0, 3, 0), Text: "\n"},
			want: edit.Plan{Shape: edit.ShapeLineBreak, Invalidate: edit.LineRange{3, 2}, ShiftFrom: 3, Delta: 1,
				Rescan: edit.LineRange{3, 3}},
		},
		{
			name:   "enter mid line",
			change: text.Change{Range: rng(3, 5, 3, 5), Text: "\n"},
			want: edit.Plan{Shape: edit.ShapeLineBreak, Invalidate: edit.LineRange{3, 3}, ShiftFrom: 4, Delta: 1,
				Rescan: edit.LineRange{3, 4}},
		},
		{
			name:   "delete next line from end of previous",
			change: text.Change{Range: rng(3, 17, 4, 17)},
			want: edit.Plan{Shape: edit.ShapeMergeLines, Invalidate: edit.LineRange{4, 4}, ShiftFrom: 5, Delta: -1,
				Rescan: edit.LineRange{4, 3}},
		},
		{
			name:   "backspace at start of line",
			change: text.Change{Range: rng(3, 17, 4, 0)},
			want: edit.Plan{Shape: edit.ShapeMergeLines, Invalidate: edit.LineRange{3, 4}, ShiftFrom: 5, Delta: -1,
				Rescan: edit.LineRange{3, 3}},
		},
		{
			name:   "delete across lines mid column",
			change: text.Change{Range: rng(3, 2, 5, 4)},
			want: edit.Plan{Shape: edit.ShapeDeleteLines, Invalidate: edit.LineRange{3, 5}, ShiftFrom: 6, Delta: -2,
				Rescan: edit.LineRange{3, 3}},
		},
		{
			name:   "replace selection on one line",
			change: text.Change{Range: rng(1, 0, 2, 4), Text: "abc"},
			want: edit.Plan{Shape: edit.ShapeReplace, Invalidate: edit.LineRange{1, 2}, ShiftFrom: 3, Delta: -1,
				Rescan: edit.LineRange{1, 1}},
		},
		{
			name:   "undo is immediate",
			change: text.Change{Range: rng(0, 0, 0, 4), Text: "word"},
			reason: edit.ReasonUndo,
			want: edit.Plan{Shape: edit.ShapeSubstitution, Reason: edit.ReasonUndo, Invalidate: edit.LineRange{0, 0}, ShiftFrom: 1,
				Rescan: edit.LineRange{0, 0}, Immediate: true},
		},
		{
			name:   "whole document",
			change: text.Change{Text: "new"},
			want:   edit.Plan{Shape: edit.ShapeFull},
		},
		{
			name:   "out of bounds",
			change: text.Change{Range: rng(3, 0, 40, 0)},
			want:   edit.Plan{Shape: edit.ShapeFull},
		},
		{
			name:   "inverted",
			change: text.Change{Range: rng(5, 0, 3, 0)},
			want:   edit.Plan{Shape: edit.ShapeFull},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := edit.NewEvent(doc, tt.change, tt.reason)
			got := edit.Classify(ev, doc.LineCount(), opts)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyLargeDeltaIsImmediate(t *testing.T) {
	doc := tenLines()
	ev := edit.NewEvent(doc, text.Change{Range: rng(1, 0, 1, 0), Text: strings.Repeat("x\n", 150)}, edit.ReasonNone)

	p := edit.Classify(ev, doc.LineCount(), edit.Options{InstantLineDelta: 100})
	require.Equal(t, 150, p.Delta)
	assert.True(t, p.Immediate)

	p = edit.Classify(ev, doc.LineCount(), edit.Options{})
	assert.False(t, p.Immediate)
}

func TestLineRange(t *testing.T) {
	r := edit.LineRange{Start: 2, End: 4}
	assert.Equal(t, []int{2, 3, 4}, r.Lines())
	assert.Equal(t, 3, r.Len())
	assert.True(t, r.Contains(4))
	assert.False(t, r.Contains(5))

	empty := edit.LineRange{Start: 3, End: 2}
	assert.True(t, empty.Empty())
	assert.Empty(t, empty.Lines())
	assert.Equal(t, 0, empty.Len())
}

func linesOf(doc *text.Document) []string {
	out := make([]string, doc.LineCount())
	for i := range out {
		out[i], _ = doc.Line(i)
	}
	return out
}

// Every line outside the invalidated range lands, after the shift, on a
// post-edit line with identical content outside the rescan range, and those
// lines together with the rescan range cover the new document exactly.
func TestClassifyPreservesUntouchedLines(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		alphabet := rapid.SampledFrom([]string{"a", "b", "\n", " "})
		before := strings.Join(rapid.SliceOfN(alphabet, 0, 30).Draw(rt, "before"), "")
		inserted := strings.Join(rapid.SliceOfN(alphabet, 0, 8).Draw(rt, "inserted"), "")
		doc := text.NewDocument(before)

		sl := rapid.IntRange(0, doc.LineCount()-1).Draw(rt, "sl")
		el := rapid.IntRange(sl, doc.LineCount()-1).Draw(rt, "el")
		sc := rapid.IntRange(0, doc.LineLength(sl)).Draw(rt, "sc")
		ecMin := 0
		if el == sl {
			ecMin = sc
		}
		ec := rapid.IntRange(ecMin, doc.LineLength(el)).Draw(rt, "ec")

		change := text.Change{Range: rng(sl, sc, el, ec), Text: inserted}
		ev := edit.NewEvent(doc, change, edit.ReasonNone)
		plan := edit.Classify(ev, doc.LineCount(), edit.Options{})
		if plan.Full() {
			rt.Fatalf("in-bounds edit classified as full")
		}

		after, err := doc.Apply(change)
		if err != nil {
			rt.Fatalf("apply: %v", err)
		}
		pre, post := linesOf(doc), linesOf(after)

		if plan.Delta != len(post)-len(pre) {
			rt.Fatalf("delta %d, line count changed by %d", plan.Delta, len(post)-len(pre))
		}
		if !plan.Rescan.Empty() && (plan.Rescan.Start < 0 || plan.Rescan.End >= len(post)) {
			rt.Fatalf("rescan %+v outside %d lines", plan.Rescan, len(post))
		}

		covered := map[int]bool{}
		for i := range pre {
			if plan.Invalidate.Contains(i) {
				continue
			}
			j := i
			if i >= plan.ShiftFrom {
				j = i + plan.Delta
			}
			if j < 0 || j >= len(post) {
				rt.Fatalf("line %d shifted to %d outside %d lines", i, j, len(post))
			}
			if plan.Rescan.Contains(j) {
				rt.Fatalf("line %d shifted into rescan range %+v", i, plan.Rescan)
			}
			if post[j] != pre[i] {
				rt.Fatalf("line %d -> %d: %q != %q", i, j, pre[i], post[j])
			}
			if covered[j] {
				rt.Fatalf("two lines shifted onto %d", j)
			}
			covered[j] = true
		}
		if len(covered)+plan.Rescan.Len() != len(post) {
			rt.Fatalf("%d kept + %d rescanned != %d lines", len(covered), plan.Rescan.Len(), len(post))
		}
	})
}
