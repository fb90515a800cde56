package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TilesRendered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heliotile_tiles_rendered_total",
		Help: "Number of tiles decoded and normalized.",
	}, []string{"backend"})
	TileCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heliotile_tile_cache_hits_total",
		Help: "Number of tiles served from the in-memory cache.",
	})
	TileErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heliotile_tile_errors_total",
		Help: "Number of failed tile requests.",
	}, []string{"kind"})
	TileDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "heliotile_tile_render_seconds",
		Help:    "Duration of tile decode and normalization.",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend"})
	SeriesBuilt = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heliotile_series_built_total",
		Help: "Number of series artifacts merged.",
	}, []string{"format"})
	SeriesCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heliotile_series_cache_hits_total",
		Help: "Number of series requests answered by an existing artifact.",
	}, []string{"format"})
)
