package palette

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	hexPattern = regexp.MustCompile(`^#?([0-9A-Fa-f]{6})$`)
	rgbPattern = regexp.MustCompile(`^rgb\(\s*(\d{1,3})\s*,\s*(\d{1,3})\s*,\s*(\d{1,3})\s*\)$`)
	labPattern = regexp.MustCompile(`^lab\(\s*([+-]?\d+(?:\.\d+)?)\s*,\s*([+-]?\d+(?:\.\d+)?)\s*,\s*([+-]?\d+(?:\.\d+)?)\s*\)$`)

	// Matches "Sanzo No. 123", "wada 7", "Combination no 45" and similar.
	sanzoPattern = regexp.MustCompile(`(?i)(?:sanzo|wada|color|combination)\s*(?:no\.?\s*)?(\d+)`)
)

// ParseColorValue classifies and normalizes a raw color string. It accepts
// 6-digit hex (with or without "#"), "rgb(r, g, b)" with integer channels in
// [0,255], and "lab(l, a, b)" with signed floats. Anything else yields nil;
// the parser never panics.
func ParseColorValue(input string) *CanonicalColor {
	s := strings.TrimSpace(input)
	if s == "" {
		return nil
	}
	if m := hexPattern.FindStringSubmatch(s); m != nil {
		return &CanonicalColor{
			Hex:  "#" + strings.ToUpper(m[1]),
			Type: ColorTypeHex,
		}
	}
	if m := rgbPattern.FindStringSubmatch(s); m != nil {
		r, errR := strconv.Atoi(m[1])
		g, errG := strconv.Atoi(m[2])
		b, errB := strconv.Atoi(m[3])
		if errR != nil || errG != nil || errB != nil {
			return nil
		}
		if !validChannel(r) || !validChannel(g) || !validChannel(b) {
			return nil
		}
		return &CanonicalColor{
			Hex:  RGBToHex(r, g, b),
			RGB:  &RGB{R: r, G: g, B: b},
			Type: ColorTypeRGB,
		}
	}
	if m := labPattern.FindStringSubmatch(s); m != nil {
		l, errL := strconv.ParseFloat(m[1], 64)
		a, errA := strconv.ParseFloat(m[2], 64)
		b, errB := strconv.ParseFloat(m[3], 64)
		if errL != nil || errA != nil || errB != nil {
			return nil
		}
		return &CanonicalColor{
			Lab:  &Lab{L: l, A: a, B: b},
			Type: ColorTypeLab,
		}
	}
	return nil
}

// RGBToHex renders channels as "#RRGGBB" with uppercase, zero-padded digits.
func RGBToHex(r, g, b int) string {
	return fmt.Sprintf("#%02X%02X%02X", clampChannel(r), clampChannel(g), clampChannel(b))
}

// HexToRGB parses a 6-digit hex string (leading "#" optional) into channels.
func HexToRGB(hex string) (RGB, bool) {
	m := hexPattern.FindStringSubmatch(strings.TrimSpace(hex))
	if m == nil {
		return RGB{}, false
	}
	r, _ := strconv.ParseUint(m[1][0:2], 16, 16)
	g, _ := strconv.ParseUint(m[1][2:4], 16, 16)
	b, _ := strconv.ParseUint(m[1][4:6], 16, 16)
	return RGB{R: int(r), G: int(g), B: int(b)}, true
}

// ColorInput is the tagged union accepted by StandardizeColor: either a hex
// string or an r/g/b object with an optional name.
type ColorInput interface {
	isColorInput()
}

// HexInput is a hex color string, with or without the leading "#".
type HexInput string

// RGBInput is an object-form color with integer channels.
type RGBInput struct {
	R    int
	G    int
	B    int
	Name string
}

func (HexInput) isColorInput() {}
func (RGBInput) isColorInput() {}

// StandardizeColor normalizes a ColorInput into a CanonicalColor; invalid
// input yields nil rather than an error.
func StandardizeColor(in ColorInput) *CanonicalColor {
	switch v := in.(type) {
	case HexInput:
		m := hexPattern.FindStringSubmatch(strings.TrimSpace(string(v)))
		if m == nil {
			return nil
		}
		return &CanonicalColor{
			Hex:  "#" + strings.ToUpper(m[1]),
			Type: ColorTypeHex,
		}
	case RGBInput:
		if !validChannel(v.R) || !validChannel(v.G) || !validChannel(v.B) {
			return nil
		}
		return &CanonicalColor{
			Hex:  RGBToHex(v.R, v.G, v.B),
			RGB:  &RGB{R: v.R, G: v.G, B: v.B},
			Name: v.Name,
			Type: ColorTypeRGB,
		}
	default:
		return nil
	}
}

// DecodeColorInput maps duck-typed JSON (string or {r,g,b[,name]} object)
// onto the ColorInput union. Upstream payloads and API callers both use it.
func DecodeColorInput(raw json.RawMessage) (ColorInput, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, fmt.Errorf("empty color value")
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode color string: %w", err)
		}
		return HexInput(s), nil
	}
	var obj struct {
		R    *int   `json:"r"`
		G    *int   `json:"g"`
		B    *int   `json:"b"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("decode color object: %w", err)
	}
	if obj.R == nil || obj.G == nil || obj.B == nil {
		return nil, fmt.Errorf("color object requires r, g and b")
	}
	return RGBInput{R: *obj.R, G: *obj.G, B: *obj.B, Name: obj.Name}, nil
}

// ExtractSanzoNumber finds a combination identifier such as "Sanzo No. 123"
// in free text and returns the number, or nil when no match exists.
func ExtractSanzoNumber(text string) *int {
	m := sanzoPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &n
}

func validChannel(v int) bool {
	return v >= 0 && v <= 255
}

func clampChannel(v int) int {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}
