package magick

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/eleven-am/heliotile/internal/normalize"
)

type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type ConvertParams struct {
	Input  string
	Output string
	Width  int
	Height int
	Plan   normalize.Plan
	// CLUT is a 256x1 color strip applied with -clut; empty keeps gray levels.
	CLUT string
}

// ConvertArgs builds the convert invocation performing the same pad, resize
// and palette steps as normalize.Apply.
func ConvertArgs(p ConvertParams) []string {
	args := []string{p.Input}

	if cw, ch, pad := p.Plan.Canvas(p.Width, p.Height); pad {
		args = append(args,
			"-background", "black",
			"-gravity", string(p.Plan.Gravity),
			"-extent", fmt.Sprintf("%dx%d", cw, ch),
		)
		if p.Plan.NeedsResize(cw, ch) {
			args = append(args, "-resize", fmt.Sprintf("%dx%d!", p.Plan.TileSize, p.Plan.TileSize))
		}
	} else if p.Plan.NeedsResize(p.Width, p.Height) {
		args = append(args, "-resize", fmt.Sprintf("%dx%d!", p.Plan.TileSize, p.Plan.TileSize))
	}

	// Transparency keys on the raw zero level, so it precedes the color table.
	if p.Plan.Transparent {
		args = append(args, "-transparent", "black")
	}

	if p.CLUT != "" {
		args = append(args, p.CLUT, "-clut")
	}

	args = append(args,
		"-depth", "8",
		"-colors", "256",
		"PNG8:"+p.Output,
	)

	return args
}

// Identify returns the pixel dimensions of the raster at path.
func Identify(ctx context.Context, r Runner, identify, path string) (int, int, error) {
	out, err := r.Run(ctx, identify, "-format", "%w %h", path)
	if err != nil {
		return 0, 0, err
	}
	return parseDimensions(string(out))
}

func parseDimensions(s string) (int, int, error) {
	fields := strings.Fields(s)
	if len(fields) < 2 {
		return 0, 0, fmt.Errorf("unexpected identify output %q", s)
	}
	w, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, fmt.Errorf("parse width: %w", err)
	}
	h, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, fmt.Errorf("parse height: %w", err)
	}
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("invalid dimensions %dx%d", w, h)
	}
	return w, h, nil
}
