// Package swatch renders tokens for the terminal.
package swatch

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/walteh/tokenhints/pkg/matcher"
	"github.com/walteh/tokenhints/pkg/text"
	"github.com/walteh/tokenhints/pkg/tokens"
)

var (
	nameStyle     = lipgloss.NewStyle().Bold(true)
	locationStyle = lipgloss.NewStyle().Faint(true)
	valueStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#8c8c8c"))
)

// Swatch is a two cell block in the token's color, or padding for
// tokens that are not colors.
func Swatch(v tokens.Value) string {
	if !v.IsColor() {
		return "  "
	}
	return lipgloss.NewStyle().Background(lipgloss.Color(opaque(v.Hex))).Render("  ")
}

// opaque drops the alpha digits of #rgba and #rrggbbaa.
func opaque(hex string) string {
	switch len(hex) {
	case 5:
		return hex[:4]
	case 9:
		return hex[:7]
	}
	return hex
}

// Token renders one dictionary entry, with names padded to width.
func Token(t tokens.Token, width int) string {
	pad := strings.Repeat(" ", max(width-len(t.Name), 0))
	return fmt.Sprintf("%s %s%s  %s", Swatch(t.Value), nameStyle.Render(t.Name), pad, valueStyle.Render(t.Value.Raw))
}

// Dictionary writes every token in dictionary order.
func Dictionary(w io.Writer, dict *tokens.Dictionary) error {
	width := 0
	for _, name := range dict.Names() {
		width = max(width, len(name))
	}
	for _, t := range dict.Tokens() {
		if _, err := fmt.Fprintln(w, Token(t, width)); err != nil {
			return err
		}
	}
	return nil
}

// Occurrence renders a match as path:line:col, one based like compilers
// print them. The column counts UTF-16 units to agree with editors.
func Occurrence(path string, doc *text.Document, occ matcher.Occurrence, v tokens.Value) string {
	pos := doc.PositionAt(occ.Offset)
	loc := locationStyle.Render(fmt.Sprintf("%s:%d:%d", path, pos.Line+1, pos.Character+1))
	return fmt.Sprintf("%s %s %s %s", loc, Swatch(v), nameStyle.Render(occ.Name), valueStyle.Render(v.Raw))
}
