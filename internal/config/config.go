package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Tools   ToolsConfig
	Paths   PathsConfig
	URLs    URLsConfig `toml:"urls"`
	Tiles   TilesConfig
	Series  SeriesConfig
	Cache   CacheConfig
	Logging LoggingConfig
}

type ToolsConfig struct {
	Expand   string `toml:"kdu_expand"`
	Merge    string `toml:"kdu_merge"`
	Convert  string `toml:"convert"`
	Identify string `toml:"identify"`
	LibDir   string `toml:"kdu_lib_dir"`
}

type PathsConfig struct {
	JP2Dir        string `toml:"jp2_dir"`
	MovieDir      string `toml:"movie_dir"`
	TmpDir        string `toml:"tmp_dir"`
	ColorTableDir string `toml:"color_table_dir"`
}

type URLsConfig struct {
	JP2RootURL  string `toml:"jp2_root_url"`
	JPIPRootURL string `toml:"jpip_root_url"`
}

type TilesConfig struct {
	BaseScale      float64 `toml:"base_scale"`
	BaseZoom       int     `toml:"base_zoom"`
	TileSize       int     `toml:"tile_size"`
	Backend        string  `toml:"backend"`
	Intermediate   string  `toml:"intermediate"`
	PNGCompression string  `toml:"png_compression"`
	Workers        int     `toml:"workers"`
}

type SeriesConfig struct {
	MaxFrames    int `toml:"max_frames"`
	MJ2FrameRate int `toml:"mj2_frame_rate"`
}

type CacheConfig struct {
	TileCacheMB int `toml:"tile_cache_mb"`
}

type LoggingConfig struct {
	Logfile string
	MaxSize int    `toml:"max_log_size"`
	MaxAge  int    `toml:"max_log_age"`
	Level   string `toml:"level"`
}

func Default() Config {
	return Config{
		Tools: ToolsConfig{
			Expand:   "kdu_expand",
			Merge:    "kdu_merge",
			Convert:  "convert",
			Identify: "identify",
		},
		Paths: PathsConfig{
			JP2Dir:   "/var/www/jp2",
			MovieDir: "/var/www/jp2/movies",
			TmpDir:   "/tmp/heliotile",
		},
		URLs: URLsConfig{
			JP2RootURL:  "http://localhost/jp2",
			JPIPRootURL: "jpip://localhost:8090",
		},
		Tiles: TilesConfig{
			BaseScale:      2.63,
			BaseZoom:       10,
			TileSize:       512,
			Backend:        "native",
			Intermediate:   "tif",
			PNGCompression: "best",
			Workers:        4,
		},
		Series: SeriesConfig{
			MaxFrames:    150,
			MJ2FrameRate: 25,
		},
		Cache: CacheConfig{
			TileCacheMB: 256,
		},
		Logging: LoggingConfig{
			MaxSize: 100,
			MaxAge:  30,
			Level:   "info",
		},
	}
}

// Load decodes the TOML file at path over the defaults. Relative paths in the
// file are taken relative to the file's own directory.
func Load(path string) (Config, error) {
	c := Default()
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := c.convertPathsToAbsolute(path); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) convertPathsToAbsolute(configPath string) error {
	configDir := filepath.Dir(configPath)

	paths := map[string]*string{
		"paths.jp2_dir":         &c.Paths.JP2Dir,
		"paths.movie_dir":       &c.Paths.MovieDir,
		"paths.tmp_dir":         &c.Paths.TmpDir,
		"paths.color_table_dir": &c.Paths.ColorTableDir,
		"tools.kdu_lib_dir":     &c.Tools.LibDir,
		"logging.logfile":       &c.Logging.Logfile,
	}

	for key, p := range paths {
		if *p == "" || filepath.IsAbs(*p) {
			continue
		}
		abs, err := filepath.Abs(filepath.Join(configDir, *p))
		if err != nil {
			return fmt.Errorf("convert %s to absolute path: %w", key, err)
		}
		*p = abs
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Tiles.BaseScale <= 0 {
		return fmt.Errorf("tiles.base_scale must be positive")
	}
	if c.Tiles.TileSize <= 0 {
		return fmt.Errorf("tiles.tile_size must be positive")
	}
	switch c.Tiles.Backend {
	case "native", "magick", "auto":
	default:
		return fmt.Errorf("tiles.backend %q: want native, magick or auto", c.Tiles.Backend)
	}
	if c.Tiles.Workers < 1 {
		return fmt.Errorf("tiles.workers must be at least 1")
	}
	if c.Series.MaxFrames < 1 {
		return fmt.Errorf("series.max_frames must be at least 1")
	}
	if c.Series.MJ2FrameRate < 1 {
		return fmt.Errorf("series.mj2_frame_rate must be at least 1")
	}
	if c.Paths.JP2Dir == "" || c.Paths.MovieDir == "" || c.Paths.TmpDir == "" {
		return fmt.Errorf("paths.jp2_dir, paths.movie_dir and paths.tmp_dir are required")
	}
	// Series artifacts are served by their location relative to the jp2 root.
	rel, err := filepath.Rel(filepath.Clean(c.Paths.JP2Dir), filepath.Clean(c.Paths.MovieDir))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("paths.movie_dir %s must be inside paths.jp2_dir %s", c.Paths.MovieDir, c.Paths.JP2Dir)
	}
	if c.Cache.TileCacheMB < 0 {
		return fmt.Errorf("cache.tile_cache_mb must not be negative")
	}
	return nil
}

// IntermediateExt is the extension of the decoder's raster output, with its leading dot.
func (c *Config) IntermediateExt() string {
	ext := strings.TrimPrefix(strings.ToLower(c.Tiles.Intermediate), ".")
	if ext == "" {
		ext = "tif"
	}
	return "." + ext
}
