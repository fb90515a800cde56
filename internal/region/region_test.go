package region

import (
	"errors"
	"math"
	"testing"

	"github.com/eleven-am/heliotile/internal/domain"
	"github.com/eleven-am/heliotile/internal/grid"
)

func resolveTile(t *testing.T, meta domain.SourceImageMeta, zoom, x, y int) (domain.GridDescriptor, domain.RegionFraction, domain.ScaleDirective) {
	t.Helper()
	req := domain.TileRequest{Zoom: zoom, X: x, Y: y, TileSize: 512, BaseScale: 2.63, BaseZoom: 10}
	g, err := grid.Resolve(meta, req)
	if err != nil {
		t.Fatalf("grid: %v", err)
	}
	r, s, err := Resolve(meta, g, req)
	if err != nil {
		t.Fatalf("region: %v", err)
	}
	return g, r, s
}

func TestRegionFractionsReconstructAxis(t *testing.T) {
	meta := domain.SourceImageMeta{Width: 1000, Height: 760, Scale: 2.63}

	for _, zoom := range []int{8, 9, 10, 11} {
		g, _, _ := resolveTile(t, meta, zoom, 0, 0)

		var width, height float64
		for x := g.X.Min(); x <= g.X.Max(); x++ {
			_, r, _ := resolveTile(t, meta, zoom, x, 0)
			if math.Abs(r.Left-width) > 1e-9 {
				t.Fatalf("zoom %d tile %d: left %g, expected %g", zoom, x, r.Left, width)
			}
			width += r.Width
		}
		for y := g.Y.Min(); y <= g.Y.Max(); y++ {
			_, r, _ := resolveTile(t, meta, zoom, 0, y)
			height += r.Height
		}

		if math.Abs(width-1) > 1e-9 || math.Abs(height-1) > 1e-9 {
			t.Fatalf("zoom %d: fractions sum to %g x %g", zoom, width, height)
		}
	}
}

func TestEdgeTilesUseOuterSize(t *testing.T) {
	meta := domain.SourceImageMeta{Width: 1000, Height: 1000, Scale: 2.63}

	g, r, _ := resolveTile(t, meta, 9, -2, 1)
	if r.Width != g.X.Outer/1000 || r.Height != g.Y.Outer/1000 {
		t.Fatalf("edge tile should use outer size: %#v", r)
	}
	if r.Left != 0 {
		t.Fatalf("min-edge tile should start at 0, got %g", r.Left)
	}

	g, r, _ = resolveTile(t, meta, 9, 0, -1)
	if r.Width != g.X.Inner/1000 || r.Height != g.Y.Inner/1000 {
		t.Fatalf("interior tile should use inner size: %#v", r)
	}
	if want := (g.X.Outer + g.X.Inner) / 1000; math.Abs(r.Left-want) > 1e-12 {
		t.Fatalf("expected left %g, got %g", want, r.Left)
	}
}

func TestReduceOnlyWhenNativeIsFiner(t *testing.T) {
	meta := domain.SourceImageMeta{Width: 4096, Height: 4096, Scale: 0.6}

	_, _, s := resolveTile(t, meta, 10, 0, 0)
	if !s.Reduce {
		t.Fatalf("native 0.6 vs desired 2.63 should reduce: %#v", s)
	}
	if want := math.Log2(2.63 / 0.6); math.Abs(s.Factor-want) > 1e-12 {
		t.Fatalf("expected factor %g, got %g", want, s.Factor)
	}
	if s.Levels != 2 {
		t.Fatalf("expected 2 reduce levels, got %d", s.Levels)
	}

	eit := domain.SourceImageMeta{Width: 1024, Height: 1024, Scale: 2.63}
	_, _, s = resolveTile(t, eit, 10, 0, 0)
	if s.Reduce {
		t.Fatalf("equal scales must not reduce: %#v", s)
	}
	_, _, s = resolveTile(t, eit, 9, 0, 0)
	if s.Reduce || s.Factor != -1 {
		t.Fatalf("coarser native must not reduce: %#v", s)
	}
	_, _, s = resolveTile(t, eit, 12, 0, 0)
	if !s.Reduce || s.Levels != 2 {
		t.Fatalf("expected 2 whole levels: %#v", s)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	meta := domain.SourceImageMeta{Width: 2048, Height: 2048, Scale: 1.2}
	_, r1, s1 := resolveTile(t, meta, 10, -1, 0)
	_, r2, s2 := resolveTile(t, meta, 10, -1, 0)
	if r1 != r2 || s1 != s2 {
		t.Fatalf("resolve not idempotent: %#v/%#v vs %#v/%#v", r1, s1, r2, s2)
	}
}

func TestValidateRejectsOutOfRangeRegion(t *testing.T) {
	err := validate(domain.RegionFraction{Top: 0.8, Left: 0, Height: 0.5, Width: 0.5})
	if !errors.Is(err, domain.ErrInvalidGeometry) {
		t.Fatalf("expected invalid geometry, got %v", err)
	}
	if err := validate(domain.RegionFraction{Top: 0.5, Left: 0.5, Height: 0.5 + 1e-12, Width: 0.5}); err != nil {
		t.Fatalf("tolerance should absorb rounding: %v", err)
	}
}

func TestValidateRejectsNaNFractions(t *testing.T) {
	nan := math.NaN()
	for _, r := range []domain.RegionFraction{
		{Top: nan, Left: 0, Height: 0.5, Width: 0.5},
		{Top: 0, Left: 0, Height: nan, Width: nan},
	} {
		if err := validate(r); !errors.Is(err, domain.ErrInvalidGeometry) {
			t.Fatalf("%s: expected invalid geometry, got %v", String(r), err)
		}
	}
}

func TestResolveRejectsUnrepresentableZoom(t *testing.T) {
	meta := domain.SourceImageMeta{Width: 1024, Height: 1024, Scale: 2.63}
	g := domain.GridDescriptor{
		X: domain.Axis{Native: 1024, Tiles: 2, Inner: 512, Outer: 512},
		Y: domain.Axis{Native: 1024, Tiles: 2, Inner: 512, Outer: 512},
	}
	for _, zoom := range []int{1100, -1100} {
		req := domain.TileRequest{Zoom: zoom, TileSize: 512, BaseScale: 2.63, BaseZoom: 10}
		if _, _, err := Resolve(meta, g, req); !errors.Is(err, domain.ErrInvalidGeometry) {
			t.Fatalf("zoom %d: expected invalid geometry, got %v", zoom, err)
		}
	}
}

func TestStringFormatsKakaduRegion(t *testing.T) {
	got := String(domain.RegionFraction{Top: 0.25, Left: 0, Height: 0.5, Width: 0.125})
	want := "{0.250000000,0.000000000},{0.500000000,0.125000000}"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}
