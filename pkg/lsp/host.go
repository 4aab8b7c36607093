package lsp

import (
	"context"

	"github.com/google/uuid"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/tokenhints/pkg/annotation"
	"github.com/walteh/tokenhints/pkg/lsp/protocol"
)

// decorationHost creates decorations on the editor through the tokenhints
// notifications. Handles are minted here so no round trip is needed.
type decorationHost struct {
	client func() protocol.Client
}

var _ annotation.Host = (*decorationHost)(nil)

func (h *decorationHost) CreateDecorationType(ctx context.Context, style annotation.Style) (annotation.Handle, error) {
	client := h.client()
	if client == nil {
		return "", errors.New("no client connected")
	}
	id := uuid.NewString()
	if err := client.CreateDecorationType(ctx, &protocol.CreateDecorationTypeParams{ID: id, Style: style}); err != nil {
		return "", errors.Errorf("creating decoration type: %w", err)
	}
	return annotation.Handle(id), nil
}

func (h *decorationHost) SetDecorations(ctx context.Context, document string, handle annotation.Handle, opts []annotation.Options) error {
	client := h.client()
	if client == nil {
		return errors.New("no client connected")
	}
	params := &protocol.SetDecorationsParams{
		ID:      string(handle),
		URI:     protocol.DocumentURI(document),
		Options: make([]protocol.DecorationOptions, 0, len(opts)),
	}
	for _, o := range opts {
		params.Options = append(params.Options, protocol.DecorationOptions{
			Range:        protocol.FromTextRange(o.Range),
			HoverMessage: o.HoverMessage,
		})
	}
	if err := client.SetDecorations(ctx, params); err != nil {
		return errors.Errorf("setting decorations: %w", err)
	}
	return nil
}

func (h *decorationHost) Dispose(ctx context.Context, handle annotation.Handle) error {
	client := h.client()
	if client == nil {
		return errors.New("no client connected")
	}
	if err := client.DisposeDecorationType(ctx, &protocol.DisposeDecorationTypeParams{ID: string(handle)}); err != nil {
		return errors.Errorf("disposing decoration type: %w", err)
	}
	return nil
}
