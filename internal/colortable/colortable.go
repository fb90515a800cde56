// Package colortable maps detector/measurement combinations to the 8-bit
// false-color tables applied to decoded tiles.
package colortable

import (
	"fmt"
	"image"
	"image/color"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/eleven-am/heliotile/internal/domain"
	"github.com/lucasb-eyer/go-colorful"
)

type Table int

const (
	// Passthrough keeps the decoded gray levels.
	Passthrough Table = iota
	EIT171
	EIT195
	EIT284
	EIT304
	// IDL3 is the IDL "red temperature" table used for LASCO C2.
	IDL3
	// IDL1 is the IDL "blue/white" table used for LASCO C3.
	IDL1
)

const (
	detectorEIT = "EIT"
	detectorC2  = "0C2"
	detectorC3  = "0C3"
	detectorMDI = "MDI"

	// WhiteLight is the measurement of coronagraph products whose zero level is transparent.
	WhiteLight = "0WL"
)

var eitTables = map[string]Table{
	"171": EIT171,
	"195": EIT195,
	"284": EIT284,
	"304": EIT304,
}

var mdiMeasurements = map[string]bool{
	"INT": true,
	"mag": true,
}

// Lookup returns the table for a detector/measurement pair. Unrecognized
// pairs fail rather than fall back to an arbitrary table.
func Lookup(detector, measurement string) (Table, error) {
	switch detector {
	case detectorEIT:
		if t, ok := eitTables[measurement]; ok {
			return t, nil
		}
	case detectorC2:
		if measurement == WhiteLight {
			return IDL3, nil
		}
	case detectorC3:
		if measurement == WhiteLight {
			return IDL1, nil
		}
	case detectorMDI:
		if mdiMeasurements[measurement] {
			return Passthrough, nil
		}
	}
	return Passthrough, domain.Errorf(domain.KindUnknownColorTable, "no color table for detector %q measurement %q", detector, measurement)
}

// Transparent reports whether palette index 0 is rendered transparent for the measurement.
func Transparent(measurement string) bool {
	return measurement == WhiteLight
}

func (t Table) String() string {
	switch t {
	case EIT171:
		return "EIT_171"
	case EIT195:
		return "EIT_195"
	case EIT284:
		return "EIT_284"
	case EIT304:
		return "EIT_304"
	case IDL3:
		return "idl_3"
	case IDL1:
		return "idl_1"
	default:
		return "passthrough"
	}
}

// Filename is the table's strip image name inside the color table directory.
func (t Table) Filename() string {
	if t == Passthrough {
		return ""
	}
	return "ctable_" + t.String() + ".png"
}

// Palette returns t's 256 colors. When dir holds the table's strip image it
// is used; otherwise the built-in gradient is returned. If transparent is
// set, entry 0 has zero alpha.
func Palette(t Table, dir string, transparent bool) (color.Palette, error) {
	var p color.Palette
	if dir != "" && t != Passthrough {
		loaded, err := load(filepath.Join(dir, t.Filename()))
		switch {
		case err == nil:
			p = loaded
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("load color table %s: %w", t, err)
		}
	}
	if p == nil {
		p = builtin(t)
	}
	if transparent {
		p[0] = color.NRGBA{}
	}
	return p, nil
}

// Strip renders p as a 256x1 image, the layout expected by -clut.
func Strip(p color.Palette) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, len(p), 1))
	for i, c := range p {
		img.Set(i, 0, c)
	}
	return img
}

func load(path string) (color.Palette, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("empty color table image %s", path)
	}

	p := make(color.Palette, 256)
	for i := range p {
		x := b.Min.X + i*b.Dx()/256
		p[i] = color.NRGBAModel.Convert(img.At(x, b.Min.Y))
	}
	return p, nil
}

var gradientStops = map[Table][]string{
	EIT171: {"#000000", "#0a2a5a", "#3c78b4", "#a0d2f0", "#ffffff"},
	EIT195: {"#000000", "#0a3c1e", "#3c9650", "#b4e6a0", "#ffffff"},
	EIT284: {"#000000", "#3c2d00", "#a07814", "#f0d264", "#ffffff"},
	EIT304: {"#000000", "#5a0a00", "#c8460a", "#ffaa46", "#ffffff"},
	IDL3:   {"#000000", "#8c0000", "#ff6e00", "#ffd250", "#ffffff"},
	IDL1:   {"#000000", "#00006e", "#5050c8", "#b4b4ff", "#ffffff"},
}

func builtin(t Table) color.Palette {
	p := make(color.Palette, 256)
	stops, ok := gradientStops[t]
	if !ok {
		for i := range p {
			p[i] = color.NRGBA{R: uint8(i), G: uint8(i), B: uint8(i), A: 0xff}
		}
		return p
	}

	colors := make([]colorful.Color, len(stops))
	for i, s := range stops {
		c, err := colorful.Hex(s)
		if err != nil {
			panic(fmt.Sprintf("colortable: bad gradient stop %q", s))
		}
		colors[i] = c
	}

	segments := float64(len(colors) - 1)
	for i := range p {
		pos := float64(i) / 255 * segments
		seg := int(pos)
		if seg >= len(colors)-1 {
			seg = len(colors) - 2
		}
		r, g, b := colors[seg].BlendLab(colors[seg+1], pos-float64(seg)).Clamped().RGB255()
		p[i] = color.NRGBA{R: r, G: g, B: b, A: 0xff}
	}
	return p
}
