package scrape

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sanzolab/colorsync/internal/palette"
)

func TestIsColorRelated(t *testing.T) {
	t.Parallel()

	assert.True(t, IsColorRelated("/colors/crimson", ""))
	assert.True(t, IsColorRelated("/palettes/1", ""))
	assert.True(t, IsColorRelated("/archive", "Sanzo Wada selections"))
	assert.True(t, IsColorRelated("/combinations", ""))
	assert.False(t, IsColorRelated("/contact", "Contact us"))
	assert.False(t, IsColorRelated("/", ""))
}

func TestCategorizeColorPage(t *testing.T) {
	t.Parallel()

	cases := []struct {
		path  string
		title string
		want  palette.PageType
	}{
		{"/combinations/12", "", palette.PageCombination},
		{"/palette/spring", "", palette.PageCombination},
		{"/charts/full", "Color chart", palette.PageChart},
		{"/about", "About the colors", palette.PageAbout},
		{"/colors/crimson", "Crimson", palette.PageIndividual},
		{"/misc", "hue browser", palette.PageIndividual},
		{"/contact", "Contact", palette.PageUnknown},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.want, CategorizeColorPage(tc.path, tc.title), "path=%s title=%s", tc.path, tc.title)
	}
}
