package toolchain

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Tools names the external executables. Bare names are resolved through PATH.
type Tools struct {
	Expand   string
	Merge    string
	Convert  string
	Identify string
	// LibDir is prepended to LD_LIBRARY_PATH for every invocation (the Kakadu shared libraries).
	LibDir string
}

func DefaultTools() Tools {
	return Tools{
		Expand:   "kdu_expand",
		Merge:    "kdu_merge",
		Convert:  "convert",
		Identify: "identify",
	}
}

type Backend string

const (
	BackendNative Backend = "native"
	BackendMagick Backend = "magick"
	BackendAuto   Backend = "auto"
)

type Availability struct {
	Expand   bool
	Merge    bool
	Convert  bool
	Identify bool
}

// Magick reports whether the ImageMagick post-processing tools are usable.
func (a Availability) Magick() bool {
	return a.Convert && a.Identify
}

func Detect(ctx context.Context, tools Tools) Availability {
	found := func(name string) bool {
		if ctx.Err() != nil || name == "" {
			return false
		}
		_, err := exec.LookPath(name)
		return err == nil
	}

	return Availability{
		Expand:   found(tools.Expand),
		Merge:    found(tools.Merge),
		Convert:  found(tools.Convert),
		Identify: found(tools.Identify),
	}
}

// Select resolves BackendAuto against what is installed. Explicit backends are returned unchanged.
func Select(requested Backend, available Availability) Backend {
	if requested != BackendAuto {
		return requested
	}
	if available.Magick() {
		return BackendMagick
	}
	return BackendNative
}

type Runner struct {
	tools Tools
}

func NewRunner(tools Tools) *Runner {
	return &Runner{tools: tools}
}

func (r *Runner) Tools() Tools {
	return r.tools
}

// Run executes name with args and returns its stdout. A non-zero exit is
// returned as an error carrying the tool's stderr.
func (r *Runner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if r.tools.LibDir != "" {
		cmd.Env = append(os.Environ(), "LD_LIBRARY_PATH="+libraryPath(r.tools.LibDir))
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("run %s: %w", filepath.Base(name), err)
		}
		return nil, fmt.Errorf("run %s: %w: %s", filepath.Base(name), err, msg)
	}

	return stdout.Bytes(), nil
}

func libraryPath(dir string) string {
	if existing := os.Getenv("LD_LIBRARY_PATH"); existing != "" {
		return dir + string(os.PathListSeparator) + existing
	}
	return dir
}
