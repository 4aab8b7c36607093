// Package engine keeps inline token annotations in sync with document edits.
//
// Each edit is classified as it arrives: annotations on invalidated lines are
// taken out of the line index and every surviving entry is shifted at once, so
// the index always uses current line numbers. Disposal of the taken
// annotations and the rescan of dirty lines are deferred to a debounced pass,
// which runs once per burst of edits.
package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/walteh/tokenhints/pkg/annotation"
	"github.com/walteh/tokenhints/pkg/edit"
	"github.com/walteh/tokenhints/pkg/index"
	"github.com/walteh/tokenhints/pkg/matcher"
	"github.com/walteh/tokenhints/pkg/scheduler"
	"github.com/walteh/tokenhints/pkg/text"
	"github.com/walteh/tokenhints/pkg/tokens"
	"gitlab.com/tozd/go/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
)

// Documents resolves the current snapshot of an open document.
type Documents interface {
	Document(uri string) (*text.Document, bool)
}

type Config struct {
	Debounce         time.Duration
	InstantLineDelta int
	Factory          annotation.FactoryConfig
}

func DefaultConfig() Config {
	return Config{
		Debounce:         500 * time.Millisecond,
		InstantLineDelta: 100,
		Factory: annotation.FactoryConfig{
			LabelMax:   annotation.DefaultLabelMax,
			HoverTitle: annotation.DefaultHoverTitle,
		},
	}
}

type Option func(*Engine)

func WithClock(c scheduler.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

type tracked struct {
	// baseline is the line count the index currently describes.
	baseline int
	scanned  bool
	stale    bool
	pending  *pending
}

// pending is the deferred work for one document. dirty holds current line
// numbers and is re-keyed by every later edit.
type pending struct {
	retired []*annotation.Annotation
	dirty   map[int]struct{}
	full    bool
}

func (p *pending) apply(plan edit.Plan) {
	next := make(map[int]struct{}, len(p.dirty)+plan.Rescan.Len())
	for l := range p.dirty {
		if plan.Invalidate.Contains(l) {
			continue
		}
		if l >= plan.ShiftFrom {
			l += plan.Delta
		}
		if l >= 0 {
			next[l] = struct{}{}
		}
	}
	for _, l := range plan.Rescan.Lines() {
		next[l] = struct{}{}
	}
	p.dirty = next
}

func (p *pending) lines(lineCount int) []int {
	out := make([]int, 0, len(p.dirty))
	for l := range p.dirty {
		if l < lineCount {
			out = append(out, l)
		}
	}
	sort.Ints(out)
	return out
}

// Engine is safe for concurrent use. All work is serialized on one mutex,
// including debounced passes fired by the clock.
type Engine struct {
	mu        sync.Mutex
	host      annotation.Host
	docs      Documents
	cfg       Config
	clock     scheduler.Clock
	debouncer *scheduler.Debouncer
	tracer    trace.Tracer

	ctx      context.Context
	running  bool
	dict     *tokens.Dictionary
	matcher  *matcher.Matcher
	factory  *annotation.Factory
	registry *index.Registry
	tracked  map[string]*tracked
	active   string
}

func New(host annotation.Host, docs Documents, opts ...Option) *Engine {
	e := &Engine{
		host:    host,
		docs:    docs,
		cfg:     DefaultConfig(),
		clock:   scheduler.RealClock{},
		tracer:  otel.Tracer("github.com/walteh/tokenhints/pkg/engine"),
		tracked: map[string]*tracked{},
		ctx:     context.Background(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.debouncer = scheduler.NewDebouncer(e.clock)
	e.registry = index.NewRegistry(host)
	return e
}

// Initialize starts decorating with dict. Calling it again replaces the
// dictionary, releasing everything built from the previous one. ctx is kept
// for passes fired by the debouncer.
func (e *Engine) Initialize(ctx context.Context, dict *tokens.Dictionary) error {
	m, err := matcher.New(dict.Names())
	if err != nil {
		return errors.Errorf("building token matcher: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		e.teardownLocked(ctx)
	}

	e.ctx = ctx
	e.dict = dict
	e.matcher = m
	e.factory = annotation.NewFactory(e.host, e.cfg.Factory)
	e.running = true

	zerolog.Ctx(ctx).Info().Int("tokens", dict.Len()).Str("active", e.active).Msg("decoration engine initialized")

	if e.active != "" {
		e.fullScanLocked(ctx, e.active)
	}
	return nil
}

// Teardown releases every annotation and stops decorating until the next
// Initialize. The active document is remembered.
func (e *Engine) Teardown(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	e.teardownLocked(ctx)
}

func (e *Engine) teardownLocked(ctx context.Context) {
	e.debouncer.Cancel()
	var retired []*annotation.Annotation
	for _, t := range e.tracked {
		if t.pending != nil {
			retired = append(retired, t.pending.retired...)
		}
	}
	e.releaseLocked(ctx, "", retired)
	if err := e.registry.ReleaseAll(ctx); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("releasing annotations")
	}
	e.tracked = map[string]*tracked{}
	e.running = false

	zerolog.Ctx(ctx).Info().Msg("decoration engine torn down")
}

func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *Engine) Active() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

func (e *Engine) Dictionary() *tokens.Dictionary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dict
}

func (e *Engine) track(uri string) *tracked {
	t, ok := e.tracked[uri]
	if !ok {
		t = &tracked{}
		e.tracked[uri] = t
	}
	return t
}

// Activate makes uri the document receiving edits. Pending work for the
// previously active document is finished first. A document seen for the
// first time, or edited while inactive, is fully rescanned; otherwise its
// annotations are reused. An empty uri means no document is active.
func (e *Engine) Activate(ctx context.Context, uri string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	prev := e.active
	e.active = uri
	if !e.running {
		return
	}

	if prev != "" && prev != uri {
		e.debouncer.Cancel()
		if t, ok := e.tracked[prev]; ok && t.pending != nil {
			e.passLocked(ctx, prev)
		}
	}
	if uri == "" {
		return
	}

	t := e.track(uri)
	if !t.scanned || t.stale {
		e.fullScanLocked(ctx, uri)
	}
}

// Edit applies content changes already reflected in the document snapshot.
// events are in the order they were applied.
func (e *Engine) Edit(ctx context.Context, uri string, events []edit.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running || len(events) == 0 {
		return
	}
	if uri != e.active {
		if t, ok := e.tracked[uri]; ok {
			t.stale = true
		}
		return
	}

	doc, ok := e.docs.Document(uri)
	if !ok {
		zerolog.Ctx(ctx).Warn().Str("uri", uri).Msg("edit for unknown document")
		return
	}

	t := e.track(uri)
	if t.pending == nil {
		t.pending = &pending{dirty: map[int]struct{}{}}
	}
	p := t.pending
	if !t.scanned {
		p.full = true
	}

	state := e.registry.GetOrCreate(uri)
	lineCount := t.baseline
	immediate := false
	for _, ev := range events {
		plan := edit.Classify(ev, lineCount, edit.Options{InstantLineDelta: e.cfg.InstantLineDelta})
		immediate = immediate || plan.Immediate

		zerolog.Ctx(ctx).Debug().
			Str("uri", uri).
			Str("shape", plan.Shape.String()).
			Str("reason", plan.Reason.String()).
			Int("delta", plan.Delta).
			Msg("classified edit")

		if plan.Full() || p.full {
			p.full = true
			continue
		}
		lineCount += plan.Delta

		p.retired = append(p.retired, state.TakeRange(plan.Invalidate.Start, plan.Invalidate.End)...)
		if err := state.Shift(ctx, plan.ShiftFrom, plan.Delta); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("uri", uri).Msg("shifting annotations")
		}
		p.apply(plan)
	}

	if !p.full && lineCount != doc.LineCount() {
		zerolog.Ctx(ctx).Warn().
			Str("uri", uri).
			Int("expected", lineCount).
			Int("actual", doc.LineCount()).
			Msg("line count drifted, rescanning document")
		p.full = true
	}
	t.baseline = doc.LineCount()

	e.debouncer.Cancel()
	if immediate {
		e.passLocked(ctx, uri)
		return
	}
	e.debouncer.Schedule(e.cfg.Debounce, func() {
		e.fire(uri)
	})
}

func (e *Engine) fire(uri string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	e.passLocked(e.ctx, uri)
}

// Flush runs any pending pass now.
func (e *Engine) Flush(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	e.debouncer.Cancel()
	for uri, t := range e.tracked {
		if t.pending != nil {
			e.passLocked(ctx, uri)
		}
	}
}

// Rescan discards and rebuilds every annotation of uri.
func (e *Engine) Rescan(ctx context.Context, uri string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	if uri == e.active {
		e.debouncer.Cancel()
	}
	e.fullScanLocked(ctx, uri)
}

// Close forgets uri and releases its annotations.
func (e *Engine) Close(ctx context.Context, uri string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active == uri {
		e.debouncer.Cancel()
		e.active = ""
	}
	if t, ok := e.tracked[uri]; ok {
		if t.pending != nil {
			e.releaseLocked(ctx, uri, t.pending.retired)
		}
		delete(e.tracked, uri)
	}
	if err := e.registry.Remove(ctx, uri); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("uri", uri).Msg("releasing annotations")
	}
}

// Snapshot returns the token names recorded per line of uri.
func (e *Engine) Snapshot(uri string) map[int][]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.registry.Get(uri)
	if !ok {
		return map[int][]string{}
	}
	return s.Snapshot()
}

// Annotations is the number of annotations held across all documents.
func (e *Engine) Annotations() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.Len()
}

func (e *Engine) passLocked(ctx context.Context, uri string) {
	t, ok := e.tracked[uri]
	if !ok || t.pending == nil {
		return
	}
	p := t.pending
	t.pending = nil

	e.releaseLocked(ctx, uri, p.retired)

	if p.full || !t.scanned {
		e.fullScanLocked(ctx, uri)
		return
	}

	doc, ok := e.docs.Document(uri)
	if !ok {
		return
	}

	ctx, span := e.tracer.Start(ctx, "engine.pass", trace.WithAttributes(
		attribute.String("document", uri),
		attribute.Int("dirty_lines", len(p.dirty)),
		attribute.Int("retired", len(p.retired)),
	))
	defer span.End()

	state := e.registry.GetOrCreate(uri)
	lines := p.lines(doc.LineCount())
	if err := state.ClearLines(ctx, lines); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("uri", uri).Msg("clearing dirty lines")
	}
	e.decorateLocked(ctx, uri, doc, state, e.matcher.MatchLines(ctx, doc, lines))
	if err := state.Trim(ctx, doc.LineCount()); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("uri", uri).Msg("trimming annotations")
	}
	t.baseline = doc.LineCount()

	zerolog.Ctx(ctx).Debug().
		Str("uri", uri).
		Int("lines", len(lines)).
		Int("retired", len(p.retired)).
		Int("annotations", state.Len()).
		Msg("incremental pass")
}

func (e *Engine) fullScanLocked(ctx context.Context, uri string) {
	doc, ok := e.docs.Document(uri)
	if !ok {
		zerolog.Ctx(ctx).Debug().Str("uri", uri).Msg("skipping scan of unknown document")
		return
	}

	ctx, span := e.tracer.Start(ctx, "engine.full_scan", trace.WithAttributes(
		attribute.String("document", uri),
		attribute.Int("lines", doc.LineCount()),
	))
	defer span.End()

	t := e.track(uri)
	if t.pending != nil {
		e.releaseLocked(ctx, uri, t.pending.retired)
		t.pending = nil
	}

	state := e.registry.GetOrCreate(uri)
	if err := state.ClearAll(ctx); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("uri", uri).Msg("clearing annotations")
	}
	e.decorateLocked(ctx, uri, doc, state, e.matcher.Match(ctx, doc))

	t.baseline = doc.LineCount()
	t.scanned = true
	t.stale = false

	zerolog.Ctx(ctx).Debug().Str("uri", uri).Int("annotations", state.Len()).Msg("full scan")
}

func (e *Engine) decorateLocked(ctx context.Context, uri string, doc *text.Document, state *index.State, occs []matcher.Occurrence) {
	for _, occ := range occs {
		v, ok := e.dict.Get(occ.Name)
		if !ok {
			continue
		}
		a, err := e.factory.Create(ctx, uri, doc, occ, v)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("uri", uri).Int("line", occ.Line).Msg("creating annotation")
			continue
		}
		state.RecordAt(occ.Line, a)
	}
}

func (e *Engine) releaseLocked(ctx context.Context, uri string, as []*annotation.Annotation) {
	var err error
	for _, a := range as {
		err = multierr.Append(err, a.Release(ctx, e.host))
	}
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("uri", uri).Msg("releasing annotations")
	}
}
