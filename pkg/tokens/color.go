package tokens

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"gitlab.com/tozd/go/errors"
)

var (
	hexColorRe = regexp.MustCompile(`^#[0-9a-fA-F]+$`)
	rgbArgsRe  = regexp.MustCompile(`^rgba?\((.*)\)$`)
)

// ParseColor reports whether raw is a color and returns its hex form. Hex
// strings are returned unchanged; anything starting with "rgb" is converted.
func ParseColor(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if hexColorRe.MatchString(s) {
		switch len(s) - 1 {
		case 3, 6:
			if _, err := colorful.Hex(expandShortHex(s)); err != nil {
				return "", false
			}
			return s, true
		case 4, 8:
			return s, true
		}
		return "", false
	}
	if strings.HasPrefix(s, "rgb") {
		hex, err := RGBToHex(s)
		if err != nil {
			return "", false
		}
		return hex, true
	}
	return "", false
}

func expandShortHex(s string) string {
	if len(s) != 4 {
		return s
	}
	return string([]byte{'#', s[1], s[1], s[2], s[2], s[3], s[3]})
}

// RGBToHex converts rgb()/rgba() notation, comma or space separated, to
// #rrggbb or #rrggbbaa when an alpha channel is present.
func RGBToHex(s string) (string, error) {
	m := rgbArgsRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", errors.Errorf("not an rgb color: %q", s)
	}
	fields := strings.FieldsFunc(m[1], func(r rune) bool {
		return r == ',' || r == '/' || r == ' ' || r == '\t'
	})
	if len(fields) != 3 && len(fields) != 4 {
		return "", errors.Errorf("rgb color %q: expected 3 or 4 components, got %d", s, len(fields))
	}

	var channels [3]float64
	for i := range 3 {
		v, err := parseChannel(fields[i], 255)
		if err != nil {
			return "", errors.Errorf("rgb color %q: %w", s, err)
		}
		channels[i] = v / 255
	}

	hex := colorful.Color{R: channels[0], G: channels[1], B: channels[2]}.Clamped().Hex()
	if len(fields) == 4 {
		a, err := parseChannel(fields[3], 1)
		if err != nil {
			return "", errors.Errorf("rgb color %q: alpha: %w", s, err)
		}
		hex += fmt.Sprintf("%02x", int(math.Round(clamp(a, 0, 1)*255)))
	}
	return hex, nil
}

// parseChannel reads a number or percentage, where 100% maps to scale.
func parseChannel(f string, scale float64) (float64, error) {
	if pct, ok := strings.CutSuffix(f, "%"); ok {
		v, err := strconv.ParseFloat(pct, 64)
		if err != nil {
			return 0, errors.Errorf("parsing %q: %w", f, err)
		}
		return v / 100 * scale, nil
	}
	v, err := strconv.ParseFloat(f, 64)
	if err != nil {
		return 0, errors.Errorf("parsing %q: %w", f, err)
	}
	return v, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
