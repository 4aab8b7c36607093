package annotation

import (
	"context"
	"sync"

	"github.com/walteh/tokenhints/pkg/text"
)

// Handle identifies a decoration type created on the host.
type Handle string

// AttachmentStyle is rendered after the decorated range.
type AttachmentStyle struct {
	ContentText     string `json:"contentText"`
	BackgroundColor string `json:"backgroundColor,omitempty"`
	Color           string `json:"color,omitempty"`
	Margin          string `json:"margin,omitempty"`
	FontWeight      string `json:"fontWeight,omitempty"`
}

type Style struct {
	After AttachmentStyle `json:"after"`
}

// Options places a decoration type on a range of a document.
type Options struct {
	Range        text.Range `json:"range"`
	HoverMessage string     `json:"hoverMessage,omitempty"`
}

// Host is the editor side of decorations. Every created handle must
// eventually be disposed exactly once.
type Host interface {
	CreateDecorationType(ctx context.Context, style Style) (Handle, error)
	SetDecorations(ctx context.Context, document string, h Handle, opts []Options) error
	Dispose(ctx context.Context, h Handle) error
}

// Annotation is one visible decoration. Its Range is where it was created;
// the owning index tracks the line it currently sits on.
type Annotation struct {
	Handle   Handle
	Document string
	Name     string
	Label    string
	Range    text.Range

	mu       sync.Mutex
	released bool
}

// Release disposes the host resource. Only the first call reaches the host.
func (a *Annotation) Release(ctx context.Context, host Host) error {
	a.mu.Lock()
	if a.released {
		a.mu.Unlock()
		return nil
	}
	a.released = true
	a.mu.Unlock()

	return host.Dispose(ctx, a.Handle)
}

func (a *Annotation) Released() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.released
}
