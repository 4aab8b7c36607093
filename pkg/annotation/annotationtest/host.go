// Package annotationtest provides an in-memory decoration host.
package annotationtest

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/walteh/tokenhints/pkg/annotation"
	"gitlab.com/tozd/go/errors"
)

type Decoration struct {
	Handle   annotation.Handle
	Style    annotation.Style
	Document string
	Options  []annotation.Options
}

// Host records every decoration and fails loudly on double disposal.
type Host struct {
	mu       sync.Mutex
	live     map[annotation.Handle]*Decoration
	created  int
	disposed int
	errs     []error

	// FailSet makes SetDecorations return an error for matching styles.
	FailSet func(annotation.Style) bool
}

func NewHost() *Host {
	return &Host{live: map[annotation.Handle]*Decoration{}}
}

func (h *Host) CreateDecorationType(ctx context.Context, style annotation.Style) (annotation.Handle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := annotation.Handle(uuid.NewString())
	h.live[id] = &Decoration{Handle: id, Style: style}
	h.created++
	return id, nil
}

func (h *Host) SetDecorations(ctx context.Context, document string, id annotation.Handle, opts []annotation.Options) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	d, ok := h.live[id]
	if !ok {
		err := errors.Errorf("set on unknown handle %s", id)
		h.errs = append(h.errs, err)
		return err
	}
	if h.FailSet != nil && h.FailSet(d.Style) {
		return errors.New("rejected by host")
	}
	d.Document = document
	d.Options = opts
	return nil
}

func (h *Host) Dispose(ctx context.Context, id annotation.Handle) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.live[id]; !ok {
		err := errors.Errorf("dispose of unknown or disposed handle %s", id)
		h.errs = append(h.errs, err)
		return err
	}
	delete(h.live, id)
	h.disposed++
	return nil
}

// Live returns the decorations not yet disposed.
func (h *Host) Live() []Decoration {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Decoration, 0, len(h.live))
	for _, d := range h.live {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Document != b.Document {
			return a.Document < b.Document
		}
		if len(a.Options) == 0 || len(b.Options) == 0 {
			return len(a.Options) < len(b.Options)
		}
		ra, rb := a.Options[0].Range.Start, b.Options[0].Range.Start
		if ra.Line != rb.Line {
			return ra.Line < rb.Line
		}
		if ra.Character != rb.Character {
			return ra.Character < rb.Character
		}
		return a.Style.After.ContentText < b.Style.After.ContentText
	})
	return out
}

func (h *Host) LiveCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.live)
}

func (h *Host) Created() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.created
}

func (h *Host) Disposed() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.disposed
}

// Errors returns protocol misuse seen so far, such as double disposal.
func (h *Host) Errors() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.errs...)
}
