// Package render produces encoded tiles from JPEG 2000 source images.
//
// Each tile is decoded by kdu_expand into a request-scoped intermediate file,
// normalized either in process or by ImageMagick, and encoded as an 8-bit
// indexed PNG. Encoded tiles are kept in an in-memory cache.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/coocood/freecache"
	"github.com/google/uuid"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/eleven-am/heliotile/internal/colortable"
	"github.com/eleven-am/heliotile/internal/domain"
	"github.com/eleven-am/heliotile/internal/grid"
	"github.com/eleven-am/heliotile/internal/kakadu"
	"github.com/eleven-am/heliotile/internal/locator"
	"github.com/eleven-am/heliotile/internal/logger"
	"github.com/eleven-am/heliotile/internal/magick"
	"github.com/eleven-am/heliotile/internal/metrics"
	"github.com/eleven-am/heliotile/internal/normalize"
	"github.com/eleven-am/heliotile/internal/region"
	"github.com/eleven-am/heliotile/internal/toolchain"
)

type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type Config struct {
	TmpDir        string
	ColorTableDir string
	// Intermediate is the decoder output extension, e.g. ".tif".
	Intermediate string
	Compression  png.CompressionLevel
	Backend      toolchain.Backend
	Tools        toolchain.Tools
}

type Renderer struct {
	cfg     Config
	runner  Runner
	cmd     *kakadu.CommandBuilder
	locator *locator.Locator
	cache   *freecache.Cache
	log     logger.Logger
}

// New returns a Renderer. cache may be nil to disable tile caching.
func New(cfg Config, runner Runner, cmd *kakadu.CommandBuilder, loc *locator.Locator, cache *freecache.Cache, log logger.Logger) *Renderer {
	return &Renderer{
		cfg:     cfg,
		runner:  runner,
		cmd:     cmd,
		locator: loc,
		cache:   cache,
		log:     log,
	}
}

// Render returns the PNG bytes of one tile of img. Geometry and color table
// errors are reported before any subprocess runs.
func (r *Renderer) Render(ctx context.Context, img domain.ImageRecord, req domain.TileRequest) ([]byte, error) {
	data, err := r.render(ctx, img, req)
	if err != nil {
		kind := string(domain.KindOf(err))
		if kind == "" {
			kind = "other"
		}
		metrics.TileErrors.WithLabelValues(kind).Inc()
	}
	return data, err
}

func (r *Renderer) render(ctx context.Context, img domain.ImageRecord, req domain.TileRequest) ([]byte, error) {
	g, err := grid.Resolve(img.Meta, req)
	if err != nil {
		return nil, err
	}
	frac, scale, err := region.Resolve(img.Meta, g, req)
	if err != nil {
		return nil, err
	}
	plan, err := normalize.NewPlan(img.Meta, g, scale, req)
	if err != nil {
		return nil, err
	}

	key := []byte(fmt.Sprintf("%s/%d/%d/%d/%d", img.ID, req.Zoom, req.X, req.Y, req.TileSize))
	if r.cache != nil {
		if data, err := r.cache.Get(key); err == nil {
			metrics.TileCacheHits.Inc()
			return data, nil
		}
	}

	start := time.Now()

	if err := os.MkdirAll(r.cfg.TmpDir, 0755); err != nil {
		return nil, fmt.Errorf("create tmp dir: %w", err)
	}
	raster := filepath.Join(r.cfg.TmpDir, uuid.New().String()+r.cfg.Intermediate)
	defer os.Remove(raster)

	args := r.cmd.Expand(kakadu.ExpandParams{
		Input:  r.locator.Abs(img.Path),
		Output: raster,
		Region: frac,
		Scale:  scale,
	})
	if _, err := r.runner.Run(ctx, r.cfg.Tools.Expand, args...); err != nil {
		return nil, domain.Wrap(domain.KindDecodeFailure, err, "expand %s", img.ID)
	}

	var data []byte
	switch r.cfg.Backend {
	case toolchain.BackendMagick:
		data, err = r.viaMagick(ctx, raster, plan)
	default:
		data, err = r.inProcess(raster, plan)
	}
	if err != nil {
		return nil, err
	}

	backend := string(r.cfg.Backend)
	metrics.TilesRendered.WithLabelValues(backend).Inc()
	metrics.TileDuration.WithLabelValues(backend).Observe(time.Since(start).Seconds())
	r.log.Debugf("tile %s z%d (%d,%d) region %s reduce %d gravity %s", img.ID, req.Zoom, req.X, req.Y, region.String(frac), scale.Levels, plan.Gravity)

	if r.cache != nil {
		if err := r.cache.Set(key, data, 0); err != nil {
			r.log.Debugf("tile %s not cached: %v", key, err)
		}
	}

	return data, nil
}

func (r *Renderer) inProcess(raster string, plan normalize.Plan) ([]byte, error) {
	f, err := os.Open(raster)
	if err != nil {
		return nil, domain.Wrap(domain.KindDecodeFailure, err, "open decoded raster")
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, domain.Wrap(domain.KindDecodeFailure, err, "read decoded raster")
	}

	palette, err := colortable.Palette(plan.Table, r.cfg.ColorTableDir, plan.Transparent)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := normalize.Encode(&buf, normalize.Apply(src, plan, palette), r.cfg.Compression); err != nil {
		return nil, fmt.Errorf("encode tile: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) viaMagick(ctx context.Context, raster string, plan normalize.Plan) ([]byte, error) {
	w, h, err := magick.Identify(ctx, r.runner, r.cfg.Tools.Identify, raster)
	if err != nil {
		return nil, domain.Wrap(domain.KindDecodeFailure, err, "identify decoded raster")
	}

	id := uuid.New().String()

	var clut string
	if plan.Table != colortable.Passthrough {
		clut = filepath.Join(r.cfg.TmpDir, id+"-clut.png")
		defer os.Remove(clut)
		if err := r.writeStrip(clut, plan.Table); err != nil {
			return nil, err
		}
	}

	out := filepath.Join(r.cfg.TmpDir, id+".png")
	defer os.Remove(out)

	args := magick.ConvertArgs(magick.ConvertParams{
		Input:  raster,
		Output: out,
		Width:  w,
		Height: h,
		Plan:   plan,
		CLUT:   clut,
	})
	if _, err := r.runner.Run(ctx, r.cfg.Tools.Convert, args...); err != nil {
		return nil, domain.Wrap(domain.KindDecodeFailure, err, "convert decoded raster")
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return nil, domain.Wrap(domain.KindDecodeFailure, err, "read converted tile")
	}
	return data, nil
}

func (r *Renderer) writeStrip(path string, t colortable.Table) error {
	palette, err := colortable.Palette(t, r.cfg.ColorTableDir, false)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create color strip: %w", err)
	}
	defer f.Close()
	if err := png.Encode(f, colortable.Strip(palette)); err != nil {
		return fmt.Errorf("write color strip: %w", err)
	}
	return nil
}
