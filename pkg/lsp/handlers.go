package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/tokenhints/pkg/annotation"
	"github.com/walteh/tokenhints/pkg/completion"
	"github.com/walteh/tokenhints/pkg/edit"
	"github.com/walteh/tokenhints/pkg/hover"
	"github.com/walteh/tokenhints/pkg/lsp/protocol"
	"github.com/walteh/tokenhints/pkg/text"
)

func (s *Server) DidOpen(ctx context.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := string(params.TextDocument.URI)
	s.documents.Open(uri, string(params.TextDocument.LanguageID), params.TextDocument.Version, params.TextDocument.Text)

	eng, selector, enabled := s.state()
	if eng == nil {
		return nil
	}
	if !enabled || !selector.Matches(uri, string(params.TextDocument.LanguageID)) {
		zerolog.Ctx(ctx).Debug().Str("uri", uri).Msg("document not decorated")
		return nil
	}
	eng.Activate(ctx, uri)
	return nil
}

func reasonOf(r protocol.ChangeReason) edit.Reason {
	switch r {
	case protocol.ChangeReasonUndo:
		return edit.ReasonUndo
	case protocol.ChangeReasonRedo:
		return edit.ReasonRedo
	default:
		return edit.ReasonNone
	}
}

func (s *Server) DidChange(ctx context.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := string(params.TextDocument.URI)

	changes := make([]text.Change, 0, len(params.ContentChanges))
	for _, c := range params.ContentChanges {
		change := text.Change{Text: c.Text}
		if c.Range != nil {
			r := c.Range.Text()
			change.Range = &r
		}
		changes = append(changes, change)
	}

	events, err := s.documents.Apply(uri, params.TextDocument.Version, changes, reasonOf(params.Reason))
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("uri", uri).Msg("applying document changes")
		return nil
	}

	if eng, _, _ := s.state(); eng != nil {
		eng.Edit(ctx, uri, events)
	}
	return nil
}

func (s *Server) DidClose(ctx context.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := string(params.TextDocument.URI)
	if eng, _, _ := s.state(); eng != nil {
		eng.Close(ctx, uri)
	}
	s.documents.Close(uri)
	return nil
}

func (s *Server) DidChangeActiveEditor(ctx context.Context, params *protocol.DidChangeActiveEditorParams) error {
	eng, selector, enabled := s.state()
	if eng == nil {
		return nil
	}
	if params.URI == nil || !enabled {
		eng.Activate(ctx, "")
		return nil
	}

	uri := string(*params.URI)
	doc, ok := s.documents.Get(uri)
	if !ok || !selector.Matches(uri, doc.LanguageID) {
		eng.Activate(ctx, "")
		return nil
	}
	eng.Activate(ctx, uri)
	return nil
}

func (s *Server) DidChangeConfiguration(ctx context.Context, params *protocol.DidChangeConfigurationParams) error {
	s.mu.Lock()
	loader := s.loader
	s.mu.Unlock()
	if loader == nil {
		return nil
	}

	settings := params.Settings
	if nested, ok := settings[serverName].(map[string]any); ok {
		settings = nested
	}
	if err := loader.Merge(settings); err != nil {
		return errors.Errorf("applying configuration change: %w", err)
	}
	return s.reconfigure(ctx)
}

func (s *Server) Hover(ctx context.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	doc, ok := s.decorated(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	dict, _, cfg, ok := s.tokenState()
	if !ok {
		return nil, nil
	}

	info, err := hover.BuildHoverResponse(ctx, doc.Text, params.Position.Text(), dict, cfg.HoverTitle)
	if err != nil {
		return nil, errors.Errorf("building hover: %w", err)
	}
	if info == nil {
		return nil, nil
	}

	rng := protocol.FromTextRange(info.Range)
	return &protocol.Hover{
		Contents: protocol.MarkupContent{Kind: protocol.Markdown, Value: info.Content},
		Range:    &rng,
	}, nil
}

func (s *Server) Completion(ctx context.Context, params *protocol.CompletionParams) (*protocol.CompletionList, error) {
	doc, ok := s.decorated(params.TextDocument.URI)
	if !ok {
		return &protocol.CompletionList{Items: []protocol.CompletionItem{}}, nil
	}
	dict, _, cfg, ok := s.tokenState()
	if !ok {
		return &protocol.CompletionList{Items: []protocol.CompletionItem{}}, nil
	}

	cc := completion.NewCompletionContext(doc.Text, params.Position.Text())
	replace := protocol.FromTextRange(cc.Replace)

	items := completion.BuildItems(dict, cfg.CompletionPrefix, cfg.HoverTitle)
	out := make([]protocol.CompletionItem, 0, len(items))
	for _, it := range items {
		item := protocol.CompletionItem{
			Label:         it.Label,
			Kind:          protocol.CompletionItemKind(it.Kind),
			InsertText:    it.InsertText,
			FilterText:    it.FilterText,
			SortText:      it.SortText,
			Documentation: &protocol.MarkupContent{Kind: protocol.Markdown, Value: it.Documentation},
		}
		if cc.Prefix != "" {
			item.TextEdit = &protocol.TextEdit{Range: replace, NewText: it.InsertText}
		}
		out = append(out, item)
	}

	zerolog.Ctx(ctx).Debug().Str("prefix", cc.Prefix).Int("items", len(out)).Msg("completion")
	return &protocol.CompletionList{Items: out}, nil
}

func (s *Server) InlayHint(ctx context.Context, params *protocol.InlayHintParams) ([]protocol.InlayHint, error) {
	doc, ok := s.decorated(params.TextDocument.URI)
	if !ok {
		return []protocol.InlayHint{}, nil
	}
	dict, m, cfg, ok := s.tokenState()
	if !ok {
		return []protocol.InlayHint{}, nil
	}

	last := min(int(params.Range.End.Line), doc.Text.LineCount()-1)
	lines := make([]int, 0, last-int(params.Range.Start.Line)+1)
	for l := int(params.Range.Start.Line); l <= last; l++ {
		lines = append(lines, l)
	}

	labelMax := cfg.EngineConfig().Factory.LabelMax
	hints := []protocol.InlayHint{}
	for _, occ := range m.MatchLines(ctx, doc.Text, lines) {
		v, ok := dict.Get(occ.Name)
		if !ok {
			continue
		}
		hints = append(hints, protocol.InlayHint{
			Position:    protocol.FromTextPosition(doc.Text.PositionAt(occ.End())),
			Label:       annotation.Truncate(v.Raw, labelMax),
			PaddingLeft: true,
			Tooltip:     &protocol.MarkupContent{Kind: protocol.Markdown, Value: hover.FormatTokenMarkdown(3, cfg.HoverTitle, occ.Name, v)},
		})
	}
	return hints, nil
}

func (s *Server) DocumentColor(ctx context.Context, params *protocol.DocumentColorParams) ([]protocol.ColorInformation, error) {
	doc, ok := s.decorated(params.TextDocument.URI)
	if !ok {
		return []protocol.ColorInformation{}, nil
	}
	dict, m, _, ok := s.tokenState()
	if !ok {
		return []protocol.ColorInformation{}, nil
	}

	out := []protocol.ColorInformation{}
	for _, occ := range m.Match(ctx, doc.Text) {
		v, ok := dict.Get(occ.Name)
		if !ok || !v.IsColor() {
			continue
		}
		c, err := ColorFromHex(v.Hex)
		if err != nil {
			zerolog.Ctx(ctx).Debug().Err(err).Str("token", occ.Name).Msg("skipping color")
			continue
		}
		out = append(out, protocol.ColorInformation{
			Range: protocol.FromTextRange(doc.Text.RangeOf(occ.Offset, occ.Length)),
			Color: c,
		})
	}
	return out, nil
}

func (s *Server) ColorPresentation(ctx context.Context, params *protocol.ColorPresentationParams) ([]protocol.ColorPresentation, error) {
	return []protocol.ColorPresentation{{Label: HexFromColor(params.Color)}}, nil
}

func (s *Server) ExecuteCommand(ctx context.Context, params *protocol.ExecuteCommandParams) (any, error) {
	switch params.Command {
	case protocol.CommandToggle:
		return s.toggle(ctx)
	case protocol.CommandRescan:
		uri := ""
		if len(params.Arguments) > 0 {
			if err := json.Unmarshal(params.Arguments[0], &uri); err != nil {
				return nil, errors.Errorf("decoding rescan argument: %w", err)
			}
		}
		eng, _, enabled := s.state()
		if eng == nil || !enabled {
			return nil, nil
		}
		if uri == "" {
			uri = eng.Active()
		}
		if uri != "" {
			eng.Rescan(ctx, uri)
		}
		return nil, nil
	default:
		return nil, errors.Errorf("unknown command %q", params.Command)
	}
}

// toggle switches decorations off, releasing everything, or back on with a
// fresh token load.
func (s *Server) toggle(ctx context.Context) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil {
		return nil, errors.New("server not initialized")
	}

	s.on = !s.on
	zerolog.Ctx(ctx).Info().Bool("enabled", s.on).Msg("toggled decorations")
	if !s.on {
		s.engine.Teardown(ctx)
		return map[string]bool{"enabled": false}, nil
	}
	if err := s.startLocked(ctx); err != nil {
		return nil, err
	}
	return map[string]bool{"enabled": true}, nil
}

// decorated returns the open document if it is one the server decorates.
func (s *Server) decorated(uri protocol.DocumentURI) (*Document, bool) {
	_, selector, enabled := s.state()
	if !enabled {
		return nil, false
	}
	doc, ok := s.documents.Get(string(uri))
	if !ok || !selector.Matches(doc.URI, doc.LanguageID) {
		return nil, false
	}
	return doc, true
}

// ColorFromHex converts #rgb, #rgba, #rrggbb or #rrggbbaa.
func ColorFromHex(hex string) (protocol.Color, error) {
	var alphaDigits string
	switch len(hex) {
	case 4, 7:
	case 5:
		hex, alphaDigits = hex[:4], strings.Repeat(hex[4:], 2)
	case 9:
		hex, alphaDigits = hex[:7], hex[7:]
	default:
		return protocol.Color{}, errors.Errorf("unsupported hex color %q", hex)
	}
	c, err := colorful.Hex(hex)
	if err != nil {
		return protocol.Color{}, errors.Errorf("parsing %q: %w", hex, err)
	}
	alpha := 1.0
	if alphaDigits != "" {
		a, err := strconv.ParseUint(alphaDigits, 16, 8)
		if err != nil {
			return protocol.Color{}, errors.Errorf("parsing alpha of %q: %w", hex, err)
		}
		alpha = float64(a) / 255
	}
	return protocol.Color{Red: c.R, Green: c.G, Blue: c.B, Alpha: alpha}, nil
}

func HexFromColor(c protocol.Color) string {
	hex := colorful.Color{R: c.Red, G: c.Green, B: c.Blue}.Clamped().Hex()
	if c.Alpha < 1 {
		hex += fmt.Sprintf("%02x", int(math.Round(max(c.Alpha, 0)*255)))
	}
	return hex
}
