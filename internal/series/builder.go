package series

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/eleven-am/heliotile/internal/domain"
	"github.com/eleven-am/heliotile/internal/frames"
	"github.com/eleven-am/heliotile/internal/kakadu"
	"github.com/eleven-am/heliotile/internal/locator"
	"github.com/eleven-am/heliotile/internal/logger"
	"github.com/eleven-am/heliotile/internal/metrics"
)

type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type BuilderConfig struct {
	MergeTool string
	MovieDir  string
	MaxFrames int
}

// Builder produces series artifacts, at most once per artifact name.
type Builder struct {
	cfg     BuilderConfig
	index   domain.Index
	runner  Runner
	cmd     *kakadu.CommandBuilder
	locator *locator.Locator
	log     logger.Logger

	group singleflight.Group
}

func NewBuilder(cfg BuilderConfig, index domain.Index, runner Runner, cmd *kakadu.CommandBuilder, loc *locator.Locator, log logger.Logger) *Builder {
	return &Builder{
		cfg:     cfg,
		index:   index,
		runner:  runner,
		cmd:     cmd,
		locator: loc,
		log:     log,
	}
}

func (b *Builder) Build(ctx context.Context, spec domain.SeriesSpec) (domain.Artifact, error) {
	if err := Validate(spec); err != nil {
		return domain.Artifact{}, err
	}

	name := Filename(spec)
	// The flight is shared by every caller of name and outlives any one of them.
	shared := context.WithoutCancel(ctx)
	v, err, _ := b.group.Do(name, func() (interface{}, error) {
		return b.build(shared, spec, name)
	})
	if err != nil {
		return domain.Artifact{}, err
	}
	return v.(domain.Artifact), nil
}

func (b *Builder) build(ctx context.Context, spec domain.SeriesSpec, name string) (domain.Artifact, error) {
	path := filepath.Join(b.cfg.MovieDir, name)
	if rel, err := filepath.Rel(b.cfg.MovieDir, path); err != nil || rel != name {
		return domain.Artifact{}, domain.Errorf(domain.KindFrameResolution, "artifact %s escapes %s", name, b.cfg.MovieDir)
	}

	// Addresses must resolve before anything is merged.
	art, err := b.artifact(name, path)
	if err != nil {
		return domain.Artifact{}, err
	}

	_, err = os.Stat(path)
	switch {
	case err == nil:
		metrics.SeriesCacheHits.WithLabelValues(string(spec.Format)).Inc()
		art.Cached = true
		return art, nil
	case !errors.Is(err, os.ErrNotExist):
		return domain.Artifact{}, fmt.Errorf("check artifact %s: %w", name, err)
	}

	times, err := frames.Timestamps(spec.Start, spec.End, spec.Cadence, b.cfg.MaxFrames)
	if err != nil {
		return domain.Artifact{}, err
	}

	sourceID, err := b.index.SourceID(ctx, spec.Source)
	if err != nil {
		return domain.Artifact{}, domain.Wrap(domain.KindFrameResolution, err, "resolve source %s/%s/%s/%s",
			spec.Source.Observatory, spec.Source.Instrument, spec.Source.Detector, spec.Source.Measurement)
	}

	entries, err := frames.Collect(ctx, frames.NewSequence(b.index, sourceID, times))
	if err != nil {
		return domain.Artifact{}, err
	}

	if err := os.MkdirAll(b.cfg.MovieDir, 0755); err != nil {
		return domain.Artifact{}, fmt.Errorf("create movie dir: %w", err)
	}

	tmp := filepath.Join(b.cfg.MovieDir, "."+uuid.New().String()+filepath.Ext(name))
	defer os.Remove(tmp)

	params, err := Assemble(entries, spec, tmp, b.cmd, b.locator.Abs)
	if err != nil {
		return domain.Artifact{}, err
	}

	if _, err := b.runner.Run(ctx, b.cfg.MergeTool, b.cmd.Merge(params)...); err != nil {
		return domain.Artifact{}, fmt.Errorf("merge %s: %w", name, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return domain.Artifact{}, fmt.Errorf("publish %s: %w", name, err)
	}

	metrics.SeriesBuilt.WithLabelValues(string(spec.Format)).Inc()
	if info, err := os.Stat(path); err == nil {
		b.log.Infof("built %s from %d frames (%s)", name, len(entries), humanize.Bytes(uint64(info.Size())))
	}

	art.Frames = len(entries)
	return art, nil
}

func (b *Builder) artifact(name, path string) (domain.Artifact, error) {
	url, err := b.locator.URL(path)
	if err != nil {
		return domain.Artifact{}, err
	}
	jpip, err := b.locator.JPIP(path)
	if err != nil {
		return domain.Artifact{}, err
	}
	return domain.Artifact{
		Name:    name,
		Path:    path,
		URL:     url,
		JPIPURL: jpip,
	}, nil
}
