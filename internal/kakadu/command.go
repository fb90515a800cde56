package kakadu

import (
	"fmt"
	"strings"

	"github.com/eleven-am/heliotile/internal/domain"
	"github.com/eleven-am/heliotile/internal/region"
)

type ExpandParams struct {
	Input  string
	Output string
	Region domain.RegionFraction
	Scale  domain.ScaleDirective
}

type MergeParams struct {
	Inputs []string
	Output string
	Linked bool
	// Tracks is the kdu_merge -mj2_tracks value; empty for JPX output.
	Tracks string
}

type CommandBuilder struct {
	FrameRate int
}

func NewCommandBuilder(frameRate int) *CommandBuilder {
	return &CommandBuilder{FrameRate: frameRate}
}

func (b *CommandBuilder) Expand(p ExpandParams) []string {
	args := []string{
		"-i", p.Input,
		"-o", p.Output,
	}

	if p.Scale.Reduce && p.Scale.Levels > 0 {
		args = append(args, "-reduce", fmt.Sprintf("%d", p.Scale.Levels))
	}

	args = append(args, "-region", region.String(p.Region))

	return args
}

func (b *CommandBuilder) Merge(p MergeParams) []string {
	if len(p.Inputs) == 0 {
		return nil
	}

	args := []string{"-i", strings.Join(p.Inputs, ",")}

	if p.Linked {
		args = append(args, "-links")
	}

	args = append(args, "-o", p.Output)

	if p.Tracks != "" {
		args = append(args, "-mj2_tracks", p.Tracks)
	}

	return args
}

// Tracks returns the single-track layout for a motion JPEG 2000 container at
// the builder's frame rate.
func (b *CommandBuilder) Tracks() string {
	return fmt.Sprintf("P:0-@%d", b.FrameRate)
}
