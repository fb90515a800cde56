// Package normalize turns a decoded raster of arbitrary size into a square
// tile of fixed edge length.
//
// A tile raster is expected to be RelativeTileSize/2^levels pixels on a side.
// Edge tiles come back smaller; they are padded up to the expected size with
// the content anchored toward the image center, then everything is resized to
// the tile edge. The result is always exactly TileSize x TileSize.
package normalize

import (
	"image"
	"math"

	"github.com/eleven-am/heliotile/internal/colortable"
	"github.com/eleven-am/heliotile/internal/domain"
	"github.com/eleven-am/heliotile/internal/grid"
)

type Plan struct {
	TileSize    int
	Expected    int
	Gravity     domain.Gravity
	Table       colortable.Table
	Transparent bool
}

// NewPlan fails with UnknownColorTable when the image's detector and
// measurement have no table, before anything is decoded.
func NewPlan(meta domain.SourceImageMeta, g domain.GridDescriptor, scale domain.ScaleDirective, req domain.TileRequest) (Plan, error) {
	table, err := colortable.Lookup(meta.Detector, meta.Measurement)
	if err != nil {
		return Plan{}, err
	}

	return Plan{
		TileSize:    req.TileSize,
		Expected:    ExpectedSize(g, scale),
		Gravity:     grid.Gravity(g),
		Table:       table,
		Transparent: colortable.Transparent(meta.Measurement),
	}, nil
}

// ExpectedSize is the edge length, in decoded pixels, of a full interior tile.
func ExpectedSize(g domain.GridDescriptor, scale domain.ScaleDirective) int {
	levels := 0
	if scale.Reduce {
		levels = scale.Levels
	}
	n := int(math.Round(g.RelativeTileSize / math.Pow(2, float64(levels))))
	if n < 1 {
		n = 1
	}
	return n
}

// Canvas returns the padded canvas for a w x h raster and whether padding is needed.
func (p Plan) Canvas(w, h int) (cw, ch int, pad bool) {
	cw, ch = w, h
	if cw < p.Expected {
		cw = p.Expected
	}
	if ch < p.Expected {
		ch = p.Expected
	}
	return cw, ch, cw != w || ch != h
}

// NeedsResize reports whether a w x h raster must be scaled to the tile edge.
func (p Plan) NeedsResize(w, h int) bool {
	return w != p.TileSize || h != p.TileSize
}

// Offset places a w x h raster inside a cw x ch canvas according to gravity.
func Offset(g domain.Gravity, cw, ch, w, h int) image.Point {
	var pt image.Point

	switch g {
	case domain.GravityNorthWest, domain.GravityWest, domain.GravitySouthWest:
		pt.X = 0
	case domain.GravityNorthEast, domain.GravityEast, domain.GravitySouthEast:
		pt.X = cw - w
	default:
		pt.X = (cw - w) / 2
	}

	switch g {
	case domain.GravityNorthWest, domain.GravityNorth, domain.GravityNorthEast:
		pt.Y = 0
	case domain.GravitySouthWest, domain.GravitySouth, domain.GravitySouthEast:
		pt.Y = ch - h
	default:
		pt.Y = (ch - h) / 2
	}

	return pt
}
