package domain

import "time"

// SourceImageMeta describes a source image as recorded by the image index.
type SourceImageMeta struct {
	Width       int
	Height      int
	Scale       float64
	Detector    string
	Measurement string
}

type TileRequest struct {
	Zoom      int
	X         int
	Y         int
	TileSize  int
	BaseScale float64
	BaseZoom  int
}

type AxisPosition int

const (
	AxisMinEdge AxisPosition = iota
	AxisInterior
	AxisMaxEdge
)

func (p AxisPosition) String() string {
	switch p {
	case AxisMinEdge:
		return "min-edge"
	case AxisMaxEdge:
		return "max-edge"
	default:
		return "interior"
	}
}

// Axis holds the tiling of one image dimension, in native pixels.
type Axis struct {
	Native   int
	Tiles    int
	Inner    float64
	Outer    float64
	Index    int
	Position AxisPosition
}

// Min is the smallest valid tile index along the axis.
func (a Axis) Min() int { return -a.Tiles / 2 }

// Max is the largest valid tile index along the axis.
func (a Axis) Max() int { return a.Tiles/2 - 1 }

// Offset is the zero-based tile number counted from the min edge.
func (a Axis) Offset() int { return a.Index + a.Tiles/2 }

type GridDescriptor struct {
	Ratio            float64
	RelativeTileSize float64
	X                Axis
	Y                Axis
}

type RegionFraction struct {
	Top    float64
	Left   float64
	Height float64
	Width  float64
}

type ScaleDirective struct {
	Reduce bool
	Factor float64
	Levels int
}

type Gravity string

const (
	GravityNorthWest Gravity = "NorthWest"
	GravityNorth     Gravity = "North"
	GravityNorthEast Gravity = "NorthEast"
	GravityWest      Gravity = "West"
	GravityCenter    Gravity = "Center"
	GravityEast      Gravity = "East"
	GravitySouthWest Gravity = "SouthWest"
	GravitySouth     Gravity = "South"
	GravitySouthEast Gravity = "SouthEast"
)

type Source struct {
	Observatory string
	Instrument  string
	Detector    string
	Measurement string
}

// ImageRecord is a resolved source image. Path is relative to the JP2 root.
type ImageRecord struct {
	ID   string
	Path string
	Time time.Time
	Meta SourceImageMeta
}

type FrameEntry struct {
	Time time.Time
	ID   string
	Path string
}

type SeriesFormat string

const (
	FormatJPX SeriesFormat = "JPX"
	FormatMJ2 SeriesFormat = "MJ2"
)

type SeriesSpec struct {
	Source  Source
	Start   time.Time
	End     time.Time
	Cadence time.Duration
	Format  SeriesFormat
	Linked  bool
}

type Artifact struct {
	Name    string
	Path    string
	URL     string
	JPIPURL string
	Frames  int
	Cached  bool
}
