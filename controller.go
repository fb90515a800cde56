// Package heliotile serves fixed-size tiles and time-ordered image series cut
// from large JPEG 2000 solar images.
//
// heliotile owns the geometry: given a zoom level and a tile coordinate it
// computes which region of the source image to decode, how many wavelet
// levels to discard, and how to pad, resize and color the decoded raster into
// a uniform tile. Decoding and container assembly are delegated to the Kakadu
// tools (kdu_expand, kdu_merge); post-processing runs in process or through
// ImageMagick.
//
// # Architecture
//
// The image database is not part of this library. Callers provide it through
// the Index interface:
//
//   - SourceID: resolves (observatory, instrument, detector, measurement)
//   - Nearest: resolves a source and a time to the closest indexed image
//
// # Basic Usage
//
//	cfg, err := config.Load("heliotile.toml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	controller := heliotile.NewController(heliotile.Options{
//	    Index:  myIndex,
//	    Config: &cfg,
//	})
//
//	// One 512x512 PNG tile
//	png, err := controller.Tile(ctx, heliotile.ImageQuery{SourceID: 3, Time: t}, 10, -1, 0)
//
//	// A linked JPX movie of one day at ten minute cadence
//	art, err := controller.JPX(ctx, src, start, start.Add(24*time.Hour), 10*time.Minute, true)
//
// # Tile Grid
//
// Tiles are addressed relative to the image center: along each axis there is
// an even number of tiles, indexed from -n/2 to n/2-1. Interior tiles cover a
// fixed number of native pixels for the zoom level; the two edge tiles share
// the remainder and are padded toward the image center.
//
// # Series
//
// A series samples a time window at a cadence, keeps each distinct image once
// and merges the images into a JPX or MJ2 container. Artifacts are named from
// the request parameters and built at most once.
package heliotile

import (
	"context"
	"fmt"
	"time"

	"github.com/coocood/freecache"
	"golang.org/x/sync/errgroup"

	"github.com/eleven-am/heliotile/internal/config"
	"github.com/eleven-am/heliotile/internal/domain"
	"github.com/eleven-am/heliotile/internal/kakadu"
	"github.com/eleven-am/heliotile/internal/locator"
	"github.com/eleven-am/heliotile/internal/logger"
	"github.com/eleven-am/heliotile/internal/normalize"
	"github.com/eleven-am/heliotile/internal/render"
	"github.com/eleven-am/heliotile/internal/series"
	"github.com/eleven-am/heliotile/internal/toolchain"
)

type (
	// Index resolves sources and observation times to indexed images. It is
	// backed by the image database and must be safe for concurrent use.
	Index = domain.Index

	// Source identifies an image stream by observatory, instrument, detector
	// and measurement.
	Source = domain.Source

	// ImageRecord is an indexed image with its native metadata.
	ImageRecord = domain.ImageRecord

	// SourceImageMeta is the native geometry, detector and measurement of an image.
	SourceImageMeta = domain.SourceImageMeta

	// SeriesSpec describes a series request.
	SeriesSpec = domain.SeriesSpec

	// Artifact references a built series container.
	Artifact = domain.Artifact

	// SeriesFormat is the container format of a series.
	SeriesFormat = domain.SeriesFormat

	// Config is the complete configuration, usually loaded with config.Load.
	Config = config.Config

	// Logger receives leveled log lines.
	Logger = logger.Logger
)

const (
	// FormatJPX is a JPEG 2000 multi-frame container. Only JPX supports linked frames.
	FormatJPX = domain.FormatJPX

	// FormatMJ2 is a Motion JPEG 2000 container with one video track.
	FormatMJ2 = domain.FormatMJ2
)

// Errors returned by the Controller can be matched with errors.Is against
// these values.
var (
	ErrInvalidGeometry     = domain.ErrInvalidGeometry
	ErrDecodeFailure       = domain.ErrDecodeFailure
	ErrInvalidSeriesFormat = domain.ErrInvalidSeriesFormat
	ErrFrameResolution     = domain.ErrFrameResolution
	ErrUnknownColorTable   = domain.ErrUnknownColorTable
)

// Options configures the Controller behavior and dependencies.
type Options struct {
	// Index is required. Resolves sources and times to images.
	Index Index

	// Config holds tool paths, directories and tiling constants.
	// Default: config.Default().
	Config *Config

	// Logger receives progress and failure messages.
	// Default: a logger built from Config.Logging.
	Logger Logger
}

func (o *Options) setDefaults() {
	if o.Config == nil {
		cfg := config.Default()
		o.Config = &cfg
	}
	if o.Logger == nil {
		o.Logger = logger.New(logger.Config{
			Logfile: o.Config.Logging.Logfile,
			MaxSize: o.Config.Logging.MaxSize,
			MaxAge:  o.Config.Logging.MaxAge,
			Level:   logger.ParseLevel(o.Config.Logging.Level),
		})
	}
}

func (o *Options) validate() {
	if o.Index == nil {
		panic("heliotile: Index is required")
	}
	if o.Config != nil {
		if err := o.Config.Validate(); err != nil {
			panic(fmt.Sprintf("heliotile: invalid config: %v", err))
		}
	}
}

// Controller is the entry point for tile, image and series requests. It is
// safe for concurrent use.
type Controller struct {
	opts     Options
	renderer *render.Renderer
	series   *series.Builder
	locator  *locator.Locator
	backend  toolchain.Backend
}

// NewController creates a Controller with the given options.
// It panics if Index is nil or the configuration is invalid.
//
// With the "auto" backend the installed tools are probed once here.
func NewController(opts Options) *Controller {
	opts.validate()
	opts.setDefaults()

	cfg := opts.Config
	tools := toolchain.Tools{
		Expand:   cfg.Tools.Expand,
		Merge:    cfg.Tools.Merge,
		Convert:  cfg.Tools.Convert,
		Identify: cfg.Tools.Identify,
		LibDir:   cfg.Tools.LibDir,
	}

	backend := toolchain.Backend(cfg.Tiles.Backend)
	if backend == toolchain.BackendAuto {
		backend = toolchain.Select(backend, toolchain.Detect(context.Background(), tools))
	}

	var cache *freecache.Cache
	if cfg.Cache.TileCacheMB > 0 {
		cache = freecache.NewCache(cfg.Cache.TileCacheMB * 1024 * 1024)
	}

	runner := toolchain.NewRunner(tools)
	cmd := kakadu.NewCommandBuilder(cfg.Series.MJ2FrameRate)
	loc := locator.New(cfg.Paths.JP2Dir, cfg.URLs.JP2RootURL, cfg.URLs.JPIPRootURL)

	renderer := render.New(render.Config{
		TmpDir:        cfg.Paths.TmpDir,
		ColorTableDir: cfg.Paths.ColorTableDir,
		Intermediate:  cfg.IntermediateExt(),
		Compression:   normalize.ParseCompression(cfg.Tiles.PNGCompression),
		Backend:       backend,
		Tools:         tools,
	}, runner, cmd, loc, cache, opts.Logger)

	builder := series.NewBuilder(series.BuilderConfig{
		MergeTool: tools.Merge,
		MovieDir:  cfg.Paths.MovieDir,
		MaxFrames: cfg.Series.MaxFrames,
	}, opts.Index, runner, cmd, loc, opts.Logger)

	opts.Logger.Infof("heliotile ready: backend %s, tile size %d, jp2 root %s", backend, cfg.Tiles.TileSize, cfg.Paths.JP2Dir)

	return &Controller{
		opts:     opts,
		renderer: renderer,
		series:   builder,
		locator:  loc,
		backend:  backend,
	}
}

// ImageQuery selects an image: the indexed image of the source closest to Time.
// SourceID is used when non-zero; otherwise Source is resolved through the Index.
type ImageQuery struct {
	SourceID int
	Source   Source
	Time     time.Time
}

// Tile returns one PNG tile of the image selected by q.
//
// x and y are centered tile indices at the given zoom level. The tile is
// always Tiles.TileSize pixels square, 8-bit indexed. A coordinate outside
// the image's grid fails with ErrInvalidGeometry, an image whose detector and
// measurement have no color table with ErrUnknownColorTable, both before any
// decoding. A failed decode returns ErrDecodeFailure.
func (c *Controller) Tile(ctx context.Context, q ImageQuery, zoom, x, y int) ([]byte, error) {
	img, err := c.resolve(ctx, q)
	if err != nil {
		return nil, err
	}
	return c.renderer.Render(ctx, img, c.tileRequest(zoom, x, y))
}

// TileRange is an inclusive rectangle of centered tile indices.
type TileRange struct {
	MinX, MaxX int
	MinY, MaxY int
}

type Tile struct {
	X, Y int
	Data []byte
}

// Tiles renders every tile of r at one zoom level, in parallel with at most
// Tiles.Workers decodes at a time. Results are ordered row by row. The first
// failure cancels the remaining tiles and is returned.
func (c *Controller) Tiles(ctx context.Context, q ImageQuery, zoom int, r TileRange) ([]Tile, error) {
	if r.MaxX < r.MinX || r.MaxY < r.MinY {
		return nil, domain.Errorf(domain.KindInvalidGeometry, "empty tile range x[%d,%d] y[%d,%d]", r.MinX, r.MaxX, r.MinY, r.MaxY)
	}

	img, err := c.resolve(ctx, q)
	if err != nil {
		return nil, err
	}

	width := r.MaxX - r.MinX + 1
	tiles := make([]Tile, width*(r.MaxY-r.MinY+1))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Config.Tiles.Workers)

	for y := r.MinY; y <= r.MaxY; y++ {
		for x := r.MinX; x <= r.MaxX; x++ {
			x, y := x, y
			i := (y-r.MinY)*width + (x - r.MinX)
			g.Go(func() error {
				data, err := c.renderer.Render(gctx, img, c.tileRequest(zoom, x, y))
				if err != nil {
					return fmt.Errorf("tile (%d,%d): %w", x, y, err)
				}
				tiles[i] = Tile{X: x, Y: y, Data: data}
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tiles, nil
}

// ImageLocation is where an indexed image can be fetched.
type ImageLocation struct {
	Image   ImageRecord
	Path    string
	URL     string
	JPIPURL string
}

// Image resolves q and returns the file path, HTTP URL and JPIP URL of the image.
func (c *Controller) Image(ctx context.Context, q ImageQuery) (ImageLocation, error) {
	img, err := c.resolve(ctx, q)
	if err != nil {
		return ImageLocation{}, err
	}

	path := c.locator.Abs(img.Path)
	url, err := c.locator.URL(path)
	if err != nil {
		return ImageLocation{}, err
	}
	jpip, err := c.locator.JPIP(path)
	if err != nil {
		return ImageLocation{}, err
	}

	return ImageLocation{
		Image:   img,
		Path:    path,
		URL:     url,
		JPIPURL: jpip,
	}, nil
}

// Series builds, or reuses, the container for spec.
//
// Linked series require FormatJPX; other combinations fail with
// ErrInvalidSeriesFormat before the index is consulted. A window that
// resolves to no image fails with ErrFrameResolution. Concurrent requests for
// the same artifact share one build, and an existing artifact is returned
// with Cached set.
func (c *Controller) Series(ctx context.Context, spec SeriesSpec) (Artifact, error) {
	return c.series.Build(ctx, spec)
}

// JPX is Series with FormatJPX.
func (c *Controller) JPX(ctx context.Context, src Source, start, end time.Time, cadence time.Duration, linked bool) (Artifact, error) {
	return c.Series(ctx, SeriesSpec{
		Source:  src,
		Start:   start,
		End:     end,
		Cadence: cadence,
		Format:  FormatJPX,
		Linked:  linked,
	})
}

// MJ2 is Series with FormatMJ2.
func (c *Controller) MJ2(ctx context.Context, src Source, start, end time.Time, cadence time.Duration) (Artifact, error) {
	return c.Series(ctx, SeriesSpec{
		Source:  src,
		Start:   start,
		End:     end,
		Cadence: cadence,
		Format:  FormatMJ2,
	})
}

func (c *Controller) resolve(ctx context.Context, q ImageQuery) (ImageRecord, error) {
	id := q.SourceID
	if id == 0 {
		var err error
		id, err = c.opts.Index.SourceID(ctx, q.Source)
		if err != nil {
			return ImageRecord{}, fmt.Errorf("resolve source: %w", err)
		}
	}

	img, err := c.opts.Index.Nearest(ctx, id, q.Time)
	if err != nil {
		return ImageRecord{}, fmt.Errorf("resolve image: %w", err)
	}
	return img, nil
}

func (c *Controller) tileRequest(zoom, x, y int) domain.TileRequest {
	t := c.opts.Config.Tiles
	return domain.TileRequest{
		Zoom:      zoom,
		X:         x,
		Y:         y,
		TileSize:  t.TileSize,
		BaseScale: t.BaseScale,
		BaseZoom:  t.BaseZoom,
	}
}
