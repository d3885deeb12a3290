package meshview

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"
)

func testAtlas(t *testing.T) *FontAtlas {
	t.Helper()
	atlas, err := NewFontAtlas(goregular.TTF, 24)
	require.NoError(t, err)
	return atlas
}

func TestNewFontAtlas(t *testing.T) {
	atlas := testAtlas(t)

	// Printable ASCII should be fully covered.
	for r := rune('!'); r < 127; r++ {
		assert.Contains(t, atlas.glyphs, r, "missing glyph %q", r)
	}

	g := atlas.glyphs['A']
	assert.Greater(t, g.advance, float32(0))
	assert.Greater(t, g.uvMax[0], g.uvMin[0])
	assert.Greater(t, g.uvMax[1], g.uvMin[1])
}

func TestNewFontAtlas_RejectsGarbage(t *testing.T) {
	_, err := NewFontAtlas([]byte("not a font"), 24)
	assert.Error(t, err)
}

func TestNewFontAtlas_RejectsOversizedFont(t *testing.T) {
	_, err := NewFontAtlas(goregular.TTF, 400)
	assert.ErrorContains(t, err, "overflows")
}

func TestFontAtlas_AppendText(t *testing.T) {
	atlas := testAtlas(t)

	verts := atlas.AppendText(nil, "hi", 0, 0, 1, [4]float32{1, 0, 0, 1}, 800, 600)

	// Two glyphs, six vertices each.
	require.Len(t, verts, 12)
	for _, v := range verts {
		assert.Equal(t, [4]float32{1, 0, 0, 1}, v.Color)
		assert.GreaterOrEqual(t, v.Pos[0], float32(-1))
		assert.LessOrEqual(t, v.Pos[0], float32(1))
	}

	// Newlines produce no vertices themselves.
	verts = atlas.AppendText(nil, "a\nb", 0, 0, 1, [4]float32{1, 1, 1, 1}, 800, 600)
	assert.Len(t, verts, 12)
}

func TestFontAtlas_MeasureText(t *testing.T) {
	atlas := testAtlas(t)

	w1, h1 := atlas.MeasureText("a", 1)
	w2, h2 := atlas.MeasureText("aa", 1)
	assert.Greater(t, w2, w1)
	assert.Equal(t, h1, h2)

	_, hMulti := atlas.MeasureText("a\na", 1)
	assert.Equal(t, 2*h1, hMulti)

	wScaled, _ := atlas.MeasureText("a", 2)
	assert.InDelta(t, 2*w1, wScaled, 1e-5)
}

func TestFontAtlas_LineHeight(t *testing.T) {
	atlas := testAtlas(t)

	assert.Greater(t, atlas.LineHeight(1), float32(0))
	assert.Equal(t, 2*atlas.LineHeight(1), atlas.LineHeight(2))
}
