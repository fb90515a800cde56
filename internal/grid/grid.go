// Package grid maps a zoom level and centered tile index onto the tiling of a
// source image.
//
// The grid always has an even number of tiles per axis so that a tile
// boundary falls on the image center. Interior tiles span exactly one
// relative tile size; the two edge tiles of an axis share whatever remains.
// All sizes are in native source pixels.
package grid

import (
	"math"

	"github.com/eleven-am/heliotile/internal/domain"
)

const ceilSlack = 1e-9

// maxTilesPerAxis bounds the grid so tile counts stay representable.
const maxTilesPerAxis = 1 << 20

// DesiredScale returns the angular scale (arcseconds/pixel) of the requested zoom level.
func DesiredScale(req domain.TileRequest) float64 {
	return req.BaseScale * math.Pow(2, float64(req.Zoom-req.BaseZoom))
}

// TilesPerAxis returns the even tile count covering native pixels with tiles of tileEdge native pixels.
func TilesPerAxis(native int, tileEdge float64) int {
	n := int(math.Ceil(float64(native)/tileEdge - ceilSlack))
	if n < 2 {
		n = 2
	}
	if n%2 != 0 {
		n++
	}
	return n
}

func Resolve(meta domain.SourceImageMeta, req domain.TileRequest) (domain.GridDescriptor, error) {
	if meta.Width <= 0 || meta.Height <= 0 {
		return domain.GridDescriptor{}, domain.Errorf(domain.KindInvalidGeometry, "source dimensions %dx%d", meta.Width, meta.Height)
	}
	if meta.Scale <= 0 || req.BaseScale <= 0 {
		return domain.GridDescriptor{}, domain.Errorf(domain.KindInvalidGeometry, "non-positive scale (native %g, base %g)", meta.Scale, req.BaseScale)
	}
	if req.TileSize <= 0 {
		return domain.GridDescriptor{}, domain.Errorf(domain.KindInvalidGeometry, "tile size %d", req.TileSize)
	}

	ratio := DesiredScale(req) / meta.Scale
	relTs := float64(req.TileSize) * ratio
	if !finitePositive(ratio) || !finitePositive(relTs) {
		return domain.GridDescriptor{}, domain.Errorf(domain.KindInvalidGeometry, "zoom %d outside representable scale", req.Zoom)
	}
	if float64(max(meta.Width, meta.Height))/relTs > maxTilesPerAxis {
		return domain.GridDescriptor{}, domain.Errorf(domain.KindInvalidGeometry, "zoom %d needs more than %d tiles per axis", req.Zoom, maxTilesPerAxis)
	}

	x, err := newAxis(meta.Width, relTs, req.X)
	if err != nil {
		return domain.GridDescriptor{}, err
	}
	y, err := newAxis(meta.Height, relTs, req.Y)
	if err != nil {
		return domain.GridDescriptor{}, err
	}

	return domain.GridDescriptor{
		Ratio:            ratio,
		RelativeTileSize: relTs,
		X:                x,
		Y:                y,
	}, nil
}

func finitePositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

func newAxis(native int, relTs float64, index int) (domain.Axis, error) {
	tiles := TilesPerAxis(native, relTs)
	a := domain.Axis{
		Native: native,
		Tiles:  tiles,
		Inner:  relTs,
		Outer:  (float64(native) - float64(tiles-2)*relTs) / 2,
		Index:  index,
	}

	if index < a.Min() || index > a.Max() {
		return domain.Axis{}, domain.Errorf(domain.KindInvalidGeometry, "tile index %d outside [%d, %d]", index, a.Min(), a.Max())
	}

	switch index {
	case a.Min():
		a.Position = domain.AxisMinEdge
	case a.Max():
		a.Position = domain.AxisMaxEdge
	default:
		a.Position = domain.AxisInterior
	}
	return a, nil
}

// Size returns the native extent of the axis' current tile.
func Size(a domain.Axis) float64 {
	if a.Position == domain.AxisInterior {
		return a.Inner
	}
	return a.Outer
}

// Start returns the native offset of the axis' current tile from the min edge.
func Start(a domain.Axis) float64 {
	off := a.Offset()
	if off == 0 {
		return 0
	}
	return a.Outer + float64(off-1)*a.Inner
}

// Gravity returns where an undersized tile raster is anchored inside its
// padded canvas: toward the image center, away from the outer margin.
func Gravity(g domain.GridDescriptor) domain.Gravity {
	switch g.X.Position {
	case domain.AxisMinEdge:
		switch g.Y.Position {
		case domain.AxisMinEdge:
			return domain.GravitySouthEast
		case domain.AxisMaxEdge:
			return domain.GravityNorthEast
		default:
			return domain.GravityEast
		}
	case domain.AxisMaxEdge:
		switch g.Y.Position {
		case domain.AxisMinEdge:
			return domain.GravitySouthWest
		case domain.AxisMaxEdge:
			return domain.GravityNorthWest
		default:
			return domain.GravityWest
		}
	default:
		if g.Y.Position == domain.AxisMinEdge {
			return domain.GravitySouth
		}
		return domain.GravityNorth
	}
}
