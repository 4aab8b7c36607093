package edit

import (
	"strings"

	"github.com/walteh/tokenhints/pkg/text"
)

// Reason mirrors the editor's change reason; undo and redo are applied
// without debouncing.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonUndo
	ReasonRedo
)

func (r Reason) String() string {
	switch r {
	case ReasonUndo:
		return "undo"
	case ReasonRedo:
		return "redo"
	default:
		return "none"
	}
}

// Event is one content change described against the document before it was
// applied. Line lengths are in UTF-16 code units.
type Event struct {
	Range           *text.Range
	Text            string
	Reason          Reason
	StartLineLength int
	EndLineLength   int
}

// NewEvent captures change against doc, the snapshot it applies to.
func NewEvent(doc *text.Document, change text.Change, reason Reason) Event {
	ev := Event{Range: change.Range, Text: change.Text, Reason: reason}
	if change.Range != nil {
		ev.StartLineLength = doc.LineLength(change.Range.Start.Line)
		ev.EndLineLength = doc.LineLength(change.Range.End.Line)
	}
	return ev
}

type Shape int

const (
	ShapeFull Shape = iota
	ShapeSubstitution
	ShapeLineBreak
	ShapeMultiLinePaste
	ShapeCutLines
	ShapeMergeLines
	ShapeDeleteLines
	ShapeReplace
)

func (s Shape) String() string {
	switch s {
	case ShapeSubstitution:
		return "substitution"
	case ShapeLineBreak:
		return "line-break"
	case ShapeMultiLinePaste:
		return "multi-line-paste"
	case ShapeCutLines:
		return "cut-lines"
	case ShapeMergeLines:
		return "merge-lines"
	case ShapeDeleteLines:
		return "delete-lines"
	case ShapeReplace:
		return "replace"
	default:
		return "full"
	}
}

// LineRange is an inclusive range of lines; End < Start means empty.
type LineRange struct {
	Start int
	End   int
}

func (r LineRange) Empty() bool {
	return r.End < r.Start
}

func (r LineRange) Len() int {
	if r.Empty() {
		return 0
	}
	return r.End - r.Start + 1
}

func (r LineRange) Contains(line int) bool {
	return line >= r.Start && line <= r.End
}

func (r LineRange) Lines() []int {
	out := make([]int, 0, r.Len())
	for l := r.Start; l <= r.End; l++ {
		out = append(out, l)
	}
	return out
}

// Plan says how the line index must change for one edit. Invalidate and
// ShiftFrom use pre-edit line numbers, Rescan uses post-edit line numbers.
// After invalidating and shifting, no surviving entry needs a rescan.
type Plan struct {
	Shape      Shape
	Reason     Reason
	Invalidate LineRange
	ShiftFrom  int
	Delta      int
	Rescan     LineRange
	Immediate  bool
}

func (p Plan) Full() bool {
	return p.Shape == ShapeFull
}

type Options struct {
	// InstantLineDelta is the line count change at or above which the edit
	// is applied without waiting. Zero disables the check.
	InstantLineDelta int
}

// Classify builds the plan for ev against a document of lineCount lines.
//
// Line s keeps its content exactly when the edit starts at its end and the
// text before the first newline is empty; line e keeps its content exactly
// when the edit ends at its start and the text after the last newline is
// empty. Such lines are moved instead of rescanned.
func Classify(ev Event, lineCount int, opts Options) Plan {
	immediate := ev.Reason == ReasonUndo || ev.Reason == ReasonRedo
	if ev.Range == nil {
		return Plan{Shape: ShapeFull, Reason: ev.Reason, Immediate: immediate}
	}

	s, sc := ev.Range.Start.Line, ev.Range.Start.Character
	e, ec := ev.Range.End.Line, ev.Range.End.Character
	if s < 0 || sc < 0 || ec < 0 || e < s || e >= lineCount || (s == e && ec < sc) {
		return Plan{Shape: ShapeFull, Reason: ev.Reason, Immediate: immediate}
	}
	sc = min(sc, ev.StartLineLength)
	ec = min(ec, ev.EndLineLength)

	k := strings.Count(ev.Text, "\n")
	r := e - s
	delta := k - r

	first, last := ev.Text, ev.Text
	if k > 0 {
		first = ev.Text[:strings.IndexByte(ev.Text, '\n')]
		last = ev.Text[strings.LastIndexByte(ev.Text, '\n')+1:]
	}
	deletion := k == 0 && ev.Text == ""

	topKeep := (k > 0 && first == "" && sc == ev.StartLineLength) ||
		(deletion && r > 0 && sc == ev.StartLineLength && ec == ev.EndLineLength)
	bottomKeep := (k > 0 && last == "" && ec == 0) ||
		(deletion && r > 0 && sc == 0 && ec == 0)
	if topKeep && bottomKeep && (k == 0 || s == e) {
		bottomKeep = false
	}

	p := Plan{
		Shape:      shapeOf(ev.Text, k, r, sc, ec, ev.StartLineLength),
		Reason:     ev.Reason,
		Invalidate: LineRange{Start: s, End: e},
		ShiftFrom:  e + 1,
		Delta:      delta,
		Rescan:     LineRange{Start: s, End: s + k},
	}
	if topKeep {
		p.Invalidate.Start++
		p.Rescan.Start++
	}
	if bottomKeep {
		p.Invalidate.End--
		p.Rescan.End--
		p.ShiftFrom = e
	}

	abs := delta
	if abs < 0 {
		abs = -abs
	}
	p.Immediate = immediate || (opts.InstantLineDelta > 0 && abs >= opts.InstantLineDelta)
	return p
}

func shapeOf(txt string, k, r, sc, ec, startLen int) Shape {
	switch {
	case txt == "" && r > 0 && sc == 0 && ec == 0:
		return ShapeCutLines
	case txt == "" && r > 0 && sc == startLen && startLen > 0:
		return ShapeMergeLines
	case txt == "" && r > 0:
		return ShapeDeleteLines
	case k == 0 && r == 0:
		return ShapeSubstitution
	case k > 0 && r == 0 && strings.TrimSpace(txt) == "":
		return ShapeLineBreak
	case k > 0:
		return ShapeMultiLinePaste
	default:
		return ShapeReplace
	}
}
