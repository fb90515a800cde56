package normalize

import (
	"image"
	"image/color"
	"image/png"
	"io"

	"golang.org/x/image/draw"
)

// Apply pads, resizes and color-maps src. Gray levels become palette
// indices; padding is index 0.
func Apply(src image.Image, p Plan, palette color.Palette) *image.Paletted {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	cw, ch, _ := p.Canvas(w, h)
	canvas := image.NewGray(image.Rect(0, 0, cw, ch))
	at := Offset(p.Gravity, cw, ch, w, h)
	draw.Draw(canvas, image.Rectangle{Min: at, Max: at.Add(b.Size())}, src, b.Min, draw.Src)

	tile := canvas
	if p.NeedsResize(cw, ch) {
		tile = image.NewGray(image.Rect(0, 0, p.TileSize, p.TileSize))
		draw.ApproxBiLinear.Scale(tile, tile.Bounds(), canvas, canvas.Bounds(), draw.Src, nil)
	}

	out := image.NewPaletted(tile.Bounds(), palette)
	copy(out.Pix, tile.Pix)
	return out
}

// ParseCompression maps a config name to a PNG compression level.
func ParseCompression(name string) png.CompressionLevel {
	switch name {
	case "none":
		return png.NoCompression
	case "speed":
		return png.BestSpeed
	case "default":
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}

func Encode(w io.Writer, img image.Image, level png.CompressionLevel) error {
	enc := png.Encoder{CompressionLevel: level}
	return enc.Encode(w, img)
}
