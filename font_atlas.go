package meshview

import (
	"fmt"
	"image"
	"image/draw"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// TextVertex matches the WGSL text shader input. Positions are in
// normalized device coordinates.
type TextVertex struct {
	Pos   [2]float32
	UV    [2]float32
	Color [4]float32
}

type glyphInfo struct {
	uvMin   [2]float32
	uvMax   [2]float32
	size    [2]float32
	offset  [2]float32
	advance float32
}

// FontAtlas rasterizes the printable ASCII range of a font into a single
// alpha texture and generates screen-space quads for text strings.
type FontAtlas struct {
	image  *image.Alpha
	glyphs map[rune]glyphInfo
	face   font.Face
}

const fontAtlasSize = 512

// NewFontAtlas builds an atlas from raw TTF/OTF data at the given size
// in points.
func NewFontAtlas(fontData []byte, fontSize float64) (*FontAtlas, error) {
	f, err := opentype.Parse(fontData)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}

	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    fontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("create font face: %w", err)
	}

	atlas := image.NewAlpha(image.Rect(0, 0, fontAtlasSize, fontAtlasSize))
	glyphs := make(map[rune]glyphInfo)

	x, y := 2, 2
	rowHeight := 0

	for r := rune(32); r < 127; r++ {
		bounds, mask, _, adv, ok := face.Glyph(fixed.Point26_6{}, r)
		if !ok {
			continue
		}

		w := mask.Bounds().Dx()
		h := mask.Bounds().Dy()

		if x+w >= fontAtlasSize {
			x = 2
			y += rowHeight + 4
			rowHeight = 0
		}
		if y+h >= fontAtlasSize {
			return nil, fmt.Errorf("font size %g overflows %dpx atlas", fontSize, fontAtlasSize)
		}

		draw.Draw(atlas, image.Rect(x, y, x+w, y+h), mask, mask.Bounds().Min, draw.Src)

		glyphs[r] = glyphInfo{
			uvMin:   [2]float32{float32(x) / fontAtlasSize, float32(y) / fontAtlasSize},
			uvMax:   [2]float32{float32(x+w) / fontAtlasSize, float32(y+h) / fontAtlasSize},
			size:    [2]float32{float32(w), float32(h)},
			offset:  [2]float32{float32(bounds.Min.X), float32(bounds.Min.Y)},
			advance: float32(adv) / 64.0, // fixed 26.6 to float
		}

		x += w + 4
		if h > rowHeight {
			rowHeight = h
		}
	}

	return &FontAtlas{
		image:  atlas,
		glyphs: glyphs,
		face:   face,
	}, nil
}

// LoadFontAtlas reads a font file from disk and builds an atlas from it.
func LoadFontAtlas(filename string, fontSize float64) (*FontAtlas, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read font %s: %w", filename, err)
	}
	return NewFontAtlas(data, fontSize)
}

// AppendText appends two triangles per glyph to dst. x/y are the top-left
// corner in screen pixels; screenW/screenH convert into NDC.
func (fa *FontAtlas) AppendText(dst []TextVertex, text string, x, y, scale float32, color [4]float32, screenW, screenH float32) []TextVertex {
	metrics := fa.face.Metrics()
	ascent := float32(metrics.Ascent.Ceil())
	lineHeight := float32(metrics.Height.Ceil())

	posX := x
	posY := y + ascent*scale

	for _, r := range text {
		if r == '\n' {
			posX = x
			posY += lineHeight * scale
			continue
		}

		g, ok := fa.glyphs[r]
		if !ok {
			continue
		}

		x0 := (posX+g.offset[0]*scale)/screenW*2.0 - 1.0
		y0 := 1.0 - (posY+g.offset[1]*scale)/screenH*2.0
		x1 := (posX+(g.offset[0]+g.size[0])*scale)/screenW*2.0 - 1.0
		y1 := 1.0 - (posY+(g.offset[1]+g.size[1])*scale)/screenH*2.0

		dst = append(dst,
			TextVertex{Pos: [2]float32{x0, y0}, UV: [2]float32{g.uvMin[0], g.uvMin[1]}, Color: color},
			TextVertex{Pos: [2]float32{x1, y0}, UV: [2]float32{g.uvMax[0], g.uvMin[1]}, Color: color},
			TextVertex{Pos: [2]float32{x0, y1}, UV: [2]float32{g.uvMin[0], g.uvMax[1]}, Color: color},

			TextVertex{Pos: [2]float32{x1, y0}, UV: [2]float32{g.uvMax[0], g.uvMin[1]}, Color: color},
			TextVertex{Pos: [2]float32{x1, y1}, UV: [2]float32{g.uvMax[0], g.uvMax[1]}, Color: color},
			TextVertex{Pos: [2]float32{x0, y1}, UV: [2]float32{g.uvMin[0], g.uvMax[1]}, Color: color},
		)

		posX += g.advance * scale
	}

	return dst
}

// MeasureText returns the pixel width and height of a (possibly
// multi-line) string at the given scale.
func (fa *FontAtlas) MeasureText(text string, scale float32) (float32, float32) {
	metrics := fa.face.Metrics()
	lineHeight := float32(metrics.Height.Ceil())

	maxW := float32(0)
	currentW := float32(0)
	lines := 1

	for _, r := range text {
		if r == '\n' {
			if currentW > maxW {
				maxW = currentW
			}
			currentW = 0
			lines++
			continue
		}

		g, ok := fa.glyphs[r]
		if !ok {
			continue
		}
		currentW += g.advance * scale
	}

	if currentW > maxW {
		maxW = currentW
	}

	return maxW, lineHeight * scale * float32(lines)
}

func (fa *FontAtlas) LineHeight(scale float32) float32 {
	metrics := fa.face.Metrics()
	return float32(metrics.Height.Ceil()) * scale
}
