package region

import (
	"fmt"
	"math"

	"github.com/eleven-am/heliotile/internal/domain"
	"github.com/eleven-am/heliotile/internal/grid"
)

const (
	fractionTolerance = 1e-6
	levelSlack        = 1e-9
)

// Resolve returns the normalized sub-region of the source image covered by
// the grid's tile, and the reduce directive for the decoder.
func Resolve(meta domain.SourceImageMeta, g domain.GridDescriptor, req domain.TileRequest) (domain.RegionFraction, domain.ScaleDirective, error) {
	desired := grid.DesiredScale(req)
	scale := Scale(meta.Scale, desired)
	if math.IsNaN(scale.Factor) || math.IsInf(scale.Factor, 0) {
		return domain.RegionFraction{}, domain.ScaleDirective{}, domain.Errorf(domain.KindInvalidGeometry, "scale ratio %g/%g not representable", desired, meta.Scale)
	}

	w := float64(g.X.Native)
	h := float64(g.Y.Native)
	r := domain.RegionFraction{
		Top:    grid.Start(g.Y) / h,
		Left:   grid.Start(g.X) / w,
		Height: grid.Size(g.Y) / h,
		Width:  grid.Size(g.X) / w,
	}

	if err := validate(r); err != nil {
		return domain.RegionFraction{}, domain.ScaleDirective{}, err
	}
	return r, scale, nil
}

// Scale computes the reduce directive. A reduce is requested only when the
// native image is finer than the desired scale; the decoder takes whole
// power-of-two levels, so the level count is the floor of the log2 ratio.
func Scale(nativeScale, desiredScale float64) domain.ScaleDirective {
	factor := math.Log2(desiredScale / nativeScale)
	if nativeScale >= desiredScale {
		return domain.ScaleDirective{Factor: factor}
	}
	return domain.ScaleDirective{
		Reduce: true,
		Factor: factor,
		Levels: int(math.Floor(factor + levelSlack)),
	}
}

func validate(r domain.RegionFraction) error {
	for _, v := range []float64{r.Top, r.Left, r.Height, r.Width} {
		if math.IsNaN(v) || v < -fractionTolerance || v > 1+fractionTolerance {
			return domain.Errorf(domain.KindInvalidGeometry, "region %s outside unit square", String(r))
		}
	}
	if r.Top+r.Height > 1+fractionTolerance || r.Left+r.Width > 1+fractionTolerance {
		return domain.Errorf(domain.KindInvalidGeometry, "region %s exceeds image bounds", String(r))
	}
	return nil
}

// String formats r the way kdu_expand's -region flag expects: {top,left},{height,width}.
func String(r domain.RegionFraction) string {
	return fmt.Sprintf("{%s,%s},{%s,%s}", ftoa(r.Top), ftoa(r.Left), ftoa(r.Height), ftoa(r.Width))
}

func ftoa(v float64) string {
	return fmt.Sprintf("%.9f", v)
}
