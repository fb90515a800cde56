// Package frames picks the source images that make up a series.
//
// A series samples a time window at a fixed cadence. Each sample time is
// resolved to the nearest indexed image. Images seen before are skipped, so
// oversampling a sparse source still yields each image once.
package frames

import (
	"context"
	"math"
	"time"

	"github.com/eleven-am/heliotile/internal/domain"
)

// Timestamps returns the sample times of [start, end) at the given cadence,
// capped at maxFrames.
func Timestamps(start, end time.Time, cadence time.Duration, maxFrames int) ([]time.Time, error) {
	if cadence <= 0 {
		return nil, domain.Errorf(domain.KindFrameResolution, "cadence %s must be positive", cadence)
	}
	span := end.Sub(start)
	if span <= 0 {
		return nil, domain.Errorf(domain.KindFrameResolution, "empty window %s to %s", start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	n := int(math.Ceil(float64(span) / float64(cadence)))
	if maxFrames > 0 && n > maxFrames {
		n = maxFrames
	}

	times := make([]time.Time, n)
	for i := range times {
		times[i] = start.Add(time.Duration(i) * cadence)
	}
	return times, nil
}

// Sequence resolves sample times lazily. It is consumed once:
//
//	for seq.Next(ctx) {
//	    f := seq.Frame()
//	}
//	if err := seq.Err(); err != nil { ... }
type Sequence struct {
	index    domain.Index
	sourceID int
	times    []time.Time

	pos  int
	seen map[string]struct{}
	cur  domain.FrameEntry
	err  error
}

func NewSequence(index domain.Index, sourceID int, times []time.Time) *Sequence {
	return &Sequence{
		index:    index,
		sourceID: sourceID,
		times:    times,
		seen:     make(map[string]struct{}, len(times)),
	}
}

func (s *Sequence) Next(ctx context.Context) bool {
	if s.err != nil {
		return false
	}

	for s.pos < len(s.times) {
		t := s.times[s.pos]
		s.pos++

		if err := ctx.Err(); err != nil {
			s.err = err
			return false
		}

		rec, err := s.index.Nearest(ctx, s.sourceID, t)
		if err != nil {
			s.err = domain.Wrap(domain.KindFrameResolution, err, "resolve frame at %s", t.Format(time.RFC3339))
			return false
		}
		if _, dup := s.seen[rec.ID]; dup {
			continue
		}
		s.seen[rec.ID] = struct{}{}

		at := rec.Time
		if at.IsZero() {
			at = t
		}
		s.cur = domain.FrameEntry{Time: at, ID: rec.ID, Path: rec.Path}
		return true
	}
	return false
}

func (s *Sequence) Frame() domain.FrameEntry {
	return s.cur
}

func (s *Sequence) Err() error {
	return s.err
}

// Collect drains seq. A window that resolves to no image at all is a FrameResolutionFailure.
func Collect(ctx context.Context, seq *Sequence) ([]domain.FrameEntry, error) {
	var out []domain.FrameEntry
	for seq.Next(ctx) {
		out = append(out, seq.Frame())
	}
	if err := seq.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, domain.Errorf(domain.KindFrameResolution, "no images in window")
	}
	return out, nil
}
