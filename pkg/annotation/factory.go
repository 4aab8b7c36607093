package annotation

import (
	"context"
	"strings"

	"github.com/apparentlymart/go-textseg/v13/textseg"
	"github.com/rs/zerolog"
	"github.com/walteh/tokenhints/pkg/hover"
	"github.com/walteh/tokenhints/pkg/matcher"
	"github.com/walteh/tokenhints/pkg/text"
	"github.com/walteh/tokenhints/pkg/tokens"
	"gitlab.com/tozd/go/errors"
)

const (
	DefaultLabelMax   = 36
	DefaultHoverTitle = "antd design token"

	swatchMarker = "**"
	textColor    = "#b37feb"
	labelMargin  = "0 0 0 5px"
	labelWeight  = "bolder"
)

type FactoryConfig struct {
	LabelMax   int
	HoverTitle string
}

// Factory turns token occurrences into host decorations.
type Factory struct {
	host Host
	cfg  FactoryConfig
}

func NewFactory(host Host, cfg FactoryConfig) *Factory {
	if cfg.LabelMax <= 0 {
		cfg.LabelMax = DefaultLabelMax
	}
	if cfg.HoverTitle == "" {
		cfg.HoverTitle = DefaultHoverTitle
	}
	return &Factory{host: host, cfg: cfg}
}

func (f *Factory) Host() Host {
	return f.host
}

// StyleFor derives the inline label for a value: a swatch marker on a colored
// background for colors, otherwise the value text.
func (f *Factory) StyleFor(v tokens.Value) Style {
	if v.IsColor() {
		return Style{After: AttachmentStyle{
			ContentText:     swatchMarker,
			BackgroundColor: v.Hex,
			Color:           v.Hex,
			Margin:          labelMargin,
			FontWeight:      labelWeight,
		}}
	}
	return Style{After: AttachmentStyle{
		ContentText: Truncate(v.Raw, f.cfg.LabelMax),
		Color:       textColor,
		Margin:      labelMargin,
		FontWeight:  labelWeight,
	}}
}

// Create builds a decoration for occ and applies it to its range. If the
// host rejects the placement the new handle is disposed before returning.
func (f *Factory) Create(ctx context.Context, document string, doc *text.Document, occ matcher.Occurrence, v tokens.Value) (*Annotation, error) {
	style := f.StyleFor(v)

	h, err := f.host.CreateDecorationType(ctx, style)
	if err != nil {
		return nil, errors.Errorf("creating decoration type for %s: %w", occ.Name, err)
	}

	rng := doc.RangeOf(occ.Offset, occ.Length)
	opts := []Options{{
		Range:        rng,
		HoverMessage: hover.FormatTokenMarkdown(3, f.cfg.HoverTitle, occ.Name, v),
	}}

	if err := f.host.SetDecorations(ctx, document, h, opts); err != nil {
		if derr := f.host.Dispose(ctx, h); derr != nil {
			zerolog.Ctx(ctx).Warn().Err(derr).Str("handle", string(h)).Msg("disposing rejected decoration")
		}
		return nil, errors.Errorf("setting decorations for %s: %w", occ.Name, err)
	}

	return &Annotation{
		Handle:   h,
		Document: document,
		Name:     occ.Name,
		Label:    style.After.ContentText,
		Range:    rng,
	}, nil
}

// Truncate shortens s to limit grapheme clusters, appending an ellipsis.
func Truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	clusters, err := textseg.AllTokens([]byte(s), textseg.ScanGraphemeClusters)
	if err != nil || len(clusters) <= limit {
		return s
	}
	var sb strings.Builder
	for _, c := range clusters[:limit] {
		sb.Write(c)
	}
	sb.WriteString("...")
	return sb.String()
}
