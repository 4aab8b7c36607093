package engine_test

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/tokenhints/pkg/annotation"
	"github.com/walteh/tokenhints/pkg/annotation/annotationtest"
	"github.com/walteh/tokenhints/pkg/edit"
	"github.com/walteh/tokenhints/pkg/engine"
	"github.com/walteh/tokenhints/pkg/matcher"
	"github.com/walteh/tokenhints/pkg/scheduler"
	"github.com/walteh/tokenhints/pkg/text"
	"github.com/walteh/tokenhints/pkg/tokens"
	"pgregory.net/rapid"
)

type docStore struct {
	mu   sync.Mutex
	docs map[string]*text.Document
}

func newDocStore() *docStore {
	return &docStore{docs: map[string]*text.Document{}}
}

func (s *docStore) Document(uri string) (*text.Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[uri]
	return d, ok
}

func (s *docStore) open(uri, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[uri] = text.NewDocument(content)
}

func (s *docStore) apply(t require.TestingT, uri string, reason edit.Reason, changes ...text.Change) []edit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.docs[uri]
	events := make([]edit.Event, 0, len(changes))
	for _, c := range changes {
		events = append(events, edit.NewEvent(doc, c, reason))
		next, err := doc.Apply(c)
		require.NoError(t, err)
		doc = next
	}
	s.docs[uri] = doc
	return events
}

type harness struct {
	ctx    context.Context
	host   *annotationtest.Host
	docs   *docStore
	clock  *scheduler.ManualClock
	engine *engine.Engine
	dict   *tokens.Dictionary
}

func newHarness(t testing.TB, dict *tokens.Dictionary) *harness {
	ctx := zerolog.New(zerolog.TestWriter{T: t}).Level(zerolog.InfoLevel).With().Str("test", t.Name()).Logger().WithContext(context.Background())
	h := &harness{
		ctx:   ctx,
		host:  annotationtest.NewHost(),
		docs:  newDocStore(),
		clock: scheduler.NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		dict:  dict,
	}
	h.engine = engine.New(h.host, h.docs, engine.WithClock(h.clock))
	require.NoError(t, h.engine.Initialize(ctx, dict))
	return h
}

func (h *harness) edit(t require.TestingT, uri string, reason edit.Reason, changes ...text.Change) {
	h.engine.Edit(h.ctx, uri, h.docs.apply(t, uri, reason, changes...))
}

// oracle is what a full rescan of the current document would record.
func (h *harness) oracle(uri string) map[int][]string {
	doc, _ := h.docs.Document(uri)
	m, _ := matcher.New(h.dict.Names())
	out := map[int][]string{}
	for _, o := range m.Match(h.ctx, doc) {
		out[o.Line] = append(out[o.Line], o.Name)
	}
	return sorted(out)
}

func sorted(m map[int][]string) map[int][]string {
	for _, v := range m {
		sort.Strings(v)
	}
	return m
}

func colorDict() *tokens.Dictionary {
	return tokens.NewDictionary(
		tokens.Token{Name: "colorPrimary", Value: tokens.StringValue("#1890ff")},
		tokens.Token{Name: "fontSize", Value: tokens.NumberValue(14)},
	)
}

func at(l, c int) text.Position {
	return text.Position{Line: l, Character: c}
}

func span(sl, sc, el, ec int) *text.Range {
	return &text.Range{Start: at(sl, sc), End: at(el, ec)}
}

func TestActivateDecoratesDocument(t *testing.T) {
	h := newHarness(t, colorDict())
	h.docs.open("a.ts", "const x = colorPrimary;")

	h.engine.Activate(h.ctx, "a.ts")

	live := h.host.Live()
	require.Len(t, live, 1)
	assert.Equal(t, "**", live[0].Style.After.ContentText)
	assert.Equal(t, "#1890ff", live[0].Style.After.BackgroundColor)
	assert.Equal(t, "a.ts", live[0].Document)
	require.Len(t, live[0].Options, 1)
	assert.Equal(t, text.Range{Start: at(0, 10), End: at(0, 22)}, live[0].Options[0].Range)
	assert.Contains(t, live[0].Options[0].HoverMessage, "#1890ff")
}

func TestTypingIsDebounced(t *testing.T) {
	h := newHarness(t, colorDict())
	h.docs.open("a.ts", "colorPrimary")
	h.engine.Activate(h.ctx, "a.ts")
	require.Equal(t, 1, h.host.Created())

	h.edit(t, "a.ts", edit.ReasonNone, text.Change{Range: span(0, 12, 0, 12), Text: " "})
	h.edit(t, "a.ts", edit.ReasonNone, text.Change{Range: span(0, 13, 0, 13), Text: "x"})

	assert.Equal(t, 0, h.host.Disposed())
	assert.Equal(t, 1, h.host.Created())
	assert.Equal(t, 1, h.clock.Pending())

	h.clock.Advance(499 * time.Millisecond)
	assert.Equal(t, 0, h.host.Disposed())

	h.clock.Advance(time.Millisecond)
	assert.Equal(t, 1, h.host.Disposed())
	assert.Equal(t, 2, h.host.Created())
	assert.Equal(t, 1, h.host.LiveCount())
	assert.Equal(t, map[int][]string{0: {"colorPrimary"}}, h.engine.Snapshot("a.ts"))
	assert.Equal(t, 0, h.clock.Pending())
}

func tenLineDoc() string {
	lines := make([]string, 10)
	for i := range lines {
		lines[i] = "x"
	}
	lines[2] = "colorPrimary"
	lines[5] = "fontSize"
	lines[7] = "colorPrimary fontSize"
	return strings.Join(lines, "\n")
}

func TestPasteShiftsWithoutRecreating(t *testing.T) {
	h := newHarness(t, colorDict())
	h.docs.open("a.ts", tenLineDoc())
	h.engine.Activate(h.ctx, "a.ts")
	require.Equal(t, 4, h.host.Created())

	h.edit(t, "a.ts", edit.ReasonNone, text.Change{Range: span(2, 0, 2, 0), Text: "a\nb\nc\n"})

	// the index moves at once, the pass only rescans the pasted lines
	assert.Equal(t, map[int][]string{5: {"colorPrimary"}, 8: {"fontSize"}, 10: {"colorPrimary", "fontSize"}}, h.engine.Snapshot("a.ts"))

	h.clock.Advance(time.Second)
	assert.Equal(t, 4, h.host.Created())
	assert.Equal(t, 0, h.host.Disposed())
	assert.Equal(t, h.oracle("a.ts"), sorted(h.engine.Snapshot("a.ts")))
}

func TestCutLines(t *testing.T) {
	h := newHarness(t, colorDict())
	h.docs.open("a.ts", tenLineDoc())
	h.engine.Activate(h.ctx, "a.ts")

	h.edit(t, "a.ts", edit.ReasonNone, text.Change{Range: span(4, 0, 7, 0)})
	h.clock.Advance(time.Second)

	assert.Equal(t, 1, h.host.Disposed())
	assert.Equal(t, 4, h.host.Created())
	assert.Equal(t, map[int][]string{2: {"colorPrimary"}, 4: {"colorPrimary", "fontSize"}}, sorted(h.engine.Snapshot("a.ts")))
	assert.Equal(t, h.oracle("a.ts"), sorted(h.engine.Snapshot("a.ts")))
	assert.Equal(t, 3, h.host.LiveCount())
}

func TestUndoIsImmediate(t *testing.T) {
	h := newHarness(t, colorDict())
	h.docs.open("a.ts", "x")
	h.engine.Activate(h.ctx, "a.ts")

	h.edit(t, "a.ts", edit.ReasonUndo, text.Change{Range: span(0, 0, 0, 1), Text: "fontSize"})

	assert.Equal(t, 0, h.clock.Pending())
	assert.Equal(t, map[int][]string{0: {"fontSize"}}, h.engine.Snapshot("a.ts"))
	live := h.host.Live()
	require.Len(t, live, 1)
	assert.Equal(t, "14", live[0].Style.After.ContentText)
}

func TestLargeDeltaIsImmediate(t *testing.T) {
	h := newHarness(t, colorDict())
	h.docs.open("a.ts", "x")
	h.engine.Activate(h.ctx, "a.ts")

	h.edit(t, "a.ts", edit.ReasonNone, text.Change{Range: span(0, 0, 0, 0), Text: strings.Repeat("colorPrimary\n", 120)})

	assert.Equal(t, 0, h.clock.Pending())
	assert.Equal(t, 120, h.host.LiveCount())
}

func TestBurstRunsOnePass(t *testing.T) {
	h := newHarness(t, colorDict())
	h.docs.open("a.ts", "colorPrimary\n")
	h.engine.Activate(h.ctx, "a.ts")

	// typing "fontSize" on line 1, one character at a time
	for i, c := range "fontSize" {
		h.edit(t, "a.ts", edit.ReasonNone, text.Change{Range: span(1, i, 1, i), Text: string(c)})
		h.clock.Advance(100 * time.Millisecond)
	}
	assert.Equal(t, 1, h.host.Created())

	h.clock.Advance(400 * time.Millisecond)
	assert.Equal(t, 2, h.host.Created())
	assert.Equal(t, 0, h.host.Disposed())
	assert.Equal(t, h.oracle("a.ts"), sorted(h.engine.Snapshot("a.ts")))
}

func TestEditsAcrossBurstKeepLineNumbers(t *testing.T) {
	h := newHarness(t, colorDict())
	h.docs.open("a.ts", "x\ny\nz")
	h.engine.Activate(h.ctx, "a.ts")

	// a token is typed on line 2, then a line is inserted above it before
	// the pass runs
	h.edit(t, "a.ts", edit.ReasonNone, text.Change{Range: span(2, 1, 2, 1), Text: " fontSize"})
	h.edit(t, "a.ts", edit.ReasonNone, text.Change{Range: span(0, 0, 0, 0), Text: "new\n"})
	h.clock.Advance(time.Second)

	assert.Equal(t, map[int][]string{3: {"fontSize"}}, h.engine.Snapshot("a.ts"))
}

func TestSwitchingDocuments(t *testing.T) {
	h := newHarness(t, colorDict())
	h.docs.open("a.ts", "colorPrimary")
	h.docs.open("b.ts", "fontSize fontSize")

	h.engine.Activate(h.ctx, "a.ts")
	h.edit(t, "a.ts", edit.ReasonNone, text.Change{Range: span(0, 12, 0, 12), Text: " fontSize"})

	// switching flushes the pending pass of a.ts
	h.engine.Activate(h.ctx, "b.ts")
	assert.Equal(t, 0, h.clock.Pending())
	assert.Equal(t, map[int][]string{0: {"colorPrimary", "fontSize"}}, sorted(h.engine.Snapshot("a.ts")))
	assert.Equal(t, map[int][]string{0: {"fontSize", "fontSize"}}, h.engine.Snapshot("b.ts"))
	created := h.host.Created()

	// returning to an unchanged document reuses its annotations
	h.engine.Activate(h.ctx, "a.ts")
	assert.Equal(t, created, h.host.Created())

	// edits to an inactive document force a rescan on return
	h.edit(t, "b.ts", edit.ReasonNone, text.Change{Range: span(0, 0, 0, 0), Text: "\n"})
	h.engine.Activate(h.ctx, "b.ts")
	assert.Equal(t, map[int][]string{1: {"fontSize", "fontSize"}}, h.engine.Snapshot("b.ts"))
	assert.Equal(t, h.engine.Annotations(), h.host.LiveCount())
	assert.Empty(t, h.host.Errors())
}

func TestCloseReleases(t *testing.T) {
	h := newHarness(t, colorDict())
	h.docs.open("a.ts", "colorPrimary\nfontSize")
	h.engine.Activate(h.ctx, "a.ts")
	h.edit(t, "a.ts", edit.ReasonNone, text.Change{Range: span(0, 0, 1, 0)})

	h.engine.Close(h.ctx, "a.ts")
	assert.Equal(t, 0, h.host.LiveCount())
	assert.Equal(t, "", h.engine.Active())
	assert.Equal(t, 0, h.clock.Pending())

	h.clock.Advance(time.Second)
	assert.Empty(t, h.host.Errors())
}

func TestTeardownAndReinitialize(t *testing.T) {
	h := newHarness(t, colorDict())
	h.docs.open("a.ts", "colorPrimary fontSize")
	h.engine.Activate(h.ctx, "a.ts")
	require.Equal(t, 2, h.host.LiveCount())

	h.engine.Teardown(h.ctx)
	assert.False(t, h.engine.Running())
	assert.Equal(t, 0, h.host.LiveCount())

	// edits while torn down are ignored
	h.edit(t, "a.ts", edit.ReasonNone, text.Change{Range: span(0, 0, 0, 0), Text: "colorPrimary "})
	assert.Equal(t, 0, h.host.LiveCount())

	require.NoError(t, h.engine.Initialize(h.ctx, colorDict()))
	assert.Equal(t, map[int][]string{0: {"colorPrimary", "colorPrimary", "fontSize"}}, sorted(h.engine.Snapshot("a.ts")))

	// initializing again swaps the dictionary
	only := tokens.NewDictionary(tokens.Token{Name: "fontSize", Value: tokens.NumberValue(16)})
	require.NoError(t, h.engine.Initialize(h.ctx, only))
	assert.Equal(t, map[int][]string{0: {"fontSize"}}, h.engine.Snapshot("a.ts"))
	assert.Equal(t, 1, h.host.LiveCount())
	assert.Empty(t, h.host.Errors())
}

func TestRejectedPlacementDoesNotLeak(t *testing.T) {
	h := newHarness(t, colorDict())
	h.host.FailSet = func(s annotation.Style) bool {
		return s.After.ContentText == "14"
	}
	h.docs.open("a.ts", "colorPrimary fontSize")
	h.engine.Activate(h.ctx, "a.ts")

	assert.Equal(t, map[int][]string{0: {"colorPrimary"}}, h.engine.Snapshot("a.ts"))
	assert.Equal(t, 1, h.host.LiveCount())
}

func TestFullReplaceRescans(t *testing.T) {
	h := newHarness(t, colorDict())
	h.docs.open("a.ts", "colorPrimary")
	h.engine.Activate(h.ctx, "a.ts")

	h.edit(t, "a.ts", edit.ReasonNone, text.Change{Text: "x\nfontSize\ncolorPrimary"})
	h.clock.Advance(time.Second)

	assert.Equal(t, map[int][]string{1: {"fontSize"}, 2: {"colorPrimary"}}, h.engine.Snapshot("a.ts"))
	assert.Equal(t, 2, h.host.LiveCount())
}

// Any sequence of edits, batches, undos and pauses leaves the index equal to
// a full rescan, with exactly one live host decoration per indexed
// annotation and no handle disposed twice.
func TestIncrementalMatchesFullRescan(t *testing.T) {
	words := []string{"colorPrimary", "fontSize", "x", " ", "-", "\n", "\n", "colorPrimary-hover"}
	alphabet := rapid.SampledFrom(words)

	rapid.Check(t, func(rt *rapid.T) {
		h := newHarness(t, colorDict())
		h.docs.open("a.ts", strings.Join(rapid.SliceOfN(alphabet, 0, 20).Draw(rt, "initial"), ""))
		h.engine.Activate(h.ctx, "a.ts")

		steps := rapid.IntRange(1, 12).Draw(rt, "steps")
		for range steps {
			batch := rapid.IntRange(1, 3).Draw(rt, "batch")
			reason := edit.Reason(rapid.IntRange(0, 2).Draw(rt, "reason"))

			doc, _ := h.docs.Document("a.ts")
			changes := make([]text.Change, 0, batch)
			for range batch {
				sl := rapid.IntRange(0, doc.LineCount()-1).Draw(rt, "sl")
				el := rapid.IntRange(sl, min(sl+3, doc.LineCount()-1)).Draw(rt, "el")
				sc := rapid.IntRange(0, doc.LineLength(sl)).Draw(rt, "sc")
				ecMin := 0
				if el == sl {
					ecMin = sc
				}
				ec := rapid.IntRange(ecMin, doc.LineLength(el)).Draw(rt, "ec")
				inserted := strings.Join(rapid.SliceOfN(alphabet, 0, 4).Draw(rt, "text"), "")

				c := text.Change{Range: span(sl, sc, el, ec), Text: inserted}
				changes = append(changes, c)
				next, err := doc.Apply(c)
				if err != nil {
					rt.Fatalf("apply: %v", err)
				}
				doc = next
			}
			h.edit(rt, "a.ts", reason, changes...)

			if rapid.Bool().Draw(rt, "pause") {
				h.clock.Advance(time.Second)
			}
		}
		h.clock.Advance(time.Second)

		want := h.oracle("a.ts")
		got := sorted(h.engine.Snapshot("a.ts"))
		if diff := cmp.Diff(want, got); diff != "" {
			rt.Fatalf("index differs from full rescan (-want +got):\n%s", diff)
		}
		if h.host.LiveCount() != h.engine.Annotations() {
			rt.Fatalf("%d live decorations, %d indexed", h.host.LiveCount(), h.engine.Annotations())
		}
		if errs := h.host.Errors(); len(errs) > 0 {
			rt.Fatalf("host errors: %v", errs)
		}

		h.engine.Teardown(h.ctx)
		if h.host.LiveCount() != 0 {
			rt.Fatalf("%d decorations leaked after teardown", h.host.LiveCount())
		}
	})
}
