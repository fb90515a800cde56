package series

import (
	"fmt"
	"strings"
	"time"

	"github.com/eleven-am/heliotile/internal/domain"
	"github.com/eleven-am/heliotile/internal/kakadu"
)

func ParseFormat(s string) (domain.SeriesFormat, error) {
	switch f := domain.SeriesFormat(strings.ToUpper(s)); f {
	case domain.FormatJPX, domain.FormatMJ2:
		return f, nil
	default:
		return "", domain.Errorf(domain.KindInvalidSeriesFormat, "unknown format %q", s)
	}
}

// Validate rejects format combinations kdu_merge cannot produce. Linked
// frames are references into the source files, which only JPX supports.
func Validate(spec domain.SeriesSpec) error {
	if _, err := ParseFormat(string(spec.Format)); err != nil {
		return err
	}
	if spec.Linked && spec.Format != domain.FormatJPX {
		return domain.Errorf(domain.KindInvalidSeriesFormat, "linked series require JPX, got %s", spec.Format)
	}
	for _, c := range []string{spec.Source.Observatory, spec.Source.Instrument, spec.Source.Detector, spec.Source.Measurement} {
		if !plainName(c) {
			return domain.Errorf(domain.KindFrameResolution, "source component %q is not a plain name", c)
		}
	}
	return nil
}

// plainName reports whether c can be embedded in an artifact filename
// without leaving the movie directory.
func plainName(c string) bool {
	return c != "" && !strings.ContainsAny(c, `/\`) && !strings.Contains(c, "..")
}

// Filename is the artifact name for spec. Identical requests map to the same
// name. Whole-second cadences are written in seconds, anything finer in
// milliseconds with an "ms" suffix.
func Filename(spec domain.SeriesSpec) string {
	name := fmt.Sprintf("%s_%s_%s_%s_F%d_T%d_B%s",
		spec.Source.Observatory,
		spec.Source.Instrument,
		spec.Source.Detector,
		spec.Source.Measurement,
		spec.Start.Unix(),
		spec.End.Unix(),
		cadence(spec.Cadence),
	)
	if spec.Linked {
		name += "L"
	}
	name = strings.ReplaceAll(name, " ", "-")
	return name + "." + strings.ToLower(string(spec.Format))
}

func cadence(d time.Duration) string {
	if d%time.Second == 0 {
		return fmt.Sprintf("%d", int64(d/time.Second))
	}
	return fmt.Sprintf("%dms", d.Milliseconds())
}

// Assemble builds the merge directive for frames written to output.
func Assemble(frames []domain.FrameEntry, spec domain.SeriesSpec, output string, cmd *kakadu.CommandBuilder, abs func(string) string) (kakadu.MergeParams, error) {
	if err := Validate(spec); err != nil {
		return kakadu.MergeParams{}, err
	}
	if len(frames) == 0 {
		return kakadu.MergeParams{}, domain.Errorf(domain.KindFrameResolution, "no frames to merge")
	}

	inputs := make([]string, len(frames))
	for i, f := range frames {
		inputs[i] = abs(f.Path)
	}

	p := kakadu.MergeParams{
		Inputs: inputs,
		Output: output,
		Linked: spec.Linked,
	}
	if spec.Format == domain.FormatMJ2 {
		p.Tracks = cmd.Tracks()
	}
	return p, nil
}
