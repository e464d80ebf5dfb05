package palette

import "math"

// MaxRGBDistance is the Euclidean distance between black and white in RGB
// space, the largest value Distance can return.
var MaxRGBDistance = math.Sqrt(3 * 255 * 255)

// Distance computes the Euclidean RGB distance between two colors. The
// second return value is false when either color has no derivable RGB
// representation (e.g. lab-only colors).
func Distance(a, b CanonicalColor) (float64, bool) {
	ar, ok := rgbOf(a)
	if !ok {
		return 0, false
	}
	br, ok := rgbOf(b)
	if !ok {
		return 0, false
	}
	dr := float64(ar.R - br.R)
	dg := float64(ar.G - br.G)
	db := float64(ar.B - br.B)
	return math.Sqrt(dr*dr + dg*dg + db*db), true
}

// Similarity maps a distance onto 0..100, where 100 means identical.
func Similarity(distance float64) float64 {
	if distance <= 0 {
		return 100
	}
	if distance >= MaxRGBDistance {
		return 0
	}
	return 100 * (1 - distance/MaxRGBDistance)
}

func rgbOf(c CanonicalColor) (RGB, bool) {
	if c.RGB != nil {
		return *c.RGB, true
	}
	if c.Hex != "" {
		return HexToRGB(c.Hex)
	}
	return RGB{}, false
}
