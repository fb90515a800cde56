package series

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eleven-am/heliotile/internal/domain"
	"github.com/eleven-am/heliotile/internal/kakadu"
	"github.com/eleven-am/heliotile/internal/locator"
	"github.com/eleven-am/heliotile/internal/logger"
	"github.com/eleven-am/heliotile/internal/toolchain"
)

var epoch = time.Date(2003, 10, 5, 0, 0, 0, 0, time.UTC)

type stubIndex struct {
	mu      sync.Mutex
	lookups int
}

func (s *stubIndex) SourceID(ctx context.Context, src domain.Source) (int, error) {
	if src.Detector == "missing" {
		return 0, errors.New("unknown source")
	}
	return 3, nil
}

func (s *stubIndex) Nearest(ctx context.Context, sourceID int, t time.Time) (domain.ImageRecord, error) {
	s.mu.Lock()
	s.lookups++
	s.mu.Unlock()

	// one image every two minutes
	slot := t.Sub(epoch) / (2 * time.Minute)
	at := epoch.Add(slot * 2 * time.Minute)
	return domain.ImageRecord{
		ID:   fmt.Sprintf("%d", slot),
		Path: fmt.Sprintf("EIT/171/%d.jp2", slot),
		Time: at,
	}, nil
}

func testSpec() domain.SeriesSpec {
	return domain.SeriesSpec{
		Source:  domain.Source{Observatory: "SOHO", Instrument: "EIT", Detector: "EIT", Measurement: "171"},
		Start:   epoch,
		End:     epoch.Add(10 * time.Minute),
		Cadence: time.Minute,
		Format:  domain.FormatJPX,
		Linked:  true,
	}
}

// fakeMerge records each invocation's arguments in log and writes the -o file.
func fakeMerge(t *testing.T, dir string) (script, log string) {
	t.Helper()
	log = filepath.Join(dir, "merge.log")
	script = filepath.Join(dir, "kdu_merge")
	body := fmt.Sprintf(`#!/bin/sh
echo "$@" >> %s
out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "-o" ]; then out="$2"; shift; fi
  shift
done
echo merged > "$out"
`, log)
	if err := os.WriteFile(script, []byte(body), 0755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return script, log
}

func invocations(t *testing.T, log string) []string {
	t.Helper()
	data, err := os.ReadFile(log)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func newTestBuilder(t *testing.T, index domain.Index) (*Builder, string, string) {
	t.Helper()
	root := t.TempDir()
	script, log := fakeMerge(t, t.TempDir())
	cfg := BuilderConfig{
		MergeTool: script,
		MovieDir:  filepath.Join(root, "movies"),
		MaxFrames: 150,
	}
	b := NewBuilder(cfg, index, toolchain.NewRunner(toolchain.Tools{}), kakadu.NewCommandBuilder(25),
		locator.New(root, "http://helio.example/jp2", "jpip://helio.example:8090"), logger.NullLogger{})
	return b, root, log
}

func TestFilenameIsDeterministic(t *testing.T) {
	spec := testSpec()
	spec.Source.Measurement = "white light"
	name := Filename(spec)
	want := fmt.Sprintf("SOHO_EIT_EIT_white-light_F%d_T%d_B60L.jpx", epoch.Unix(), epoch.Add(10*time.Minute).Unix())
	if name != want {
		t.Fatalf("expected %s, got %s", want, name)
	}

	spec.Linked = false
	spec.Format = domain.FormatMJ2
	if !strings.HasSuffix(Filename(spec), "_B60.mj2") {
		t.Fatalf("unexpected name %s", Filename(spec))
	}
}

func TestValidate(t *testing.T) {
	spec := testSpec()
	if err := Validate(spec); err != nil {
		t.Fatalf("linked jpx should be valid: %v", err)
	}
	spec.Format = domain.FormatMJ2
	if err := Validate(spec); !errors.Is(err, domain.ErrInvalidSeriesFormat) {
		t.Fatalf("linked mj2 should fail, got %v", err)
	}
	spec.Format = "MOV"
	spec.Linked = false
	if err := Validate(spec); !errors.Is(err, domain.ErrInvalidSeriesFormat) {
		t.Fatalf("unknown format should fail, got %v", err)
	}
	if f, err := ParseFormat("mj2"); err != nil || f != domain.FormatMJ2 {
		t.Fatalf("parse mj2: %v %v", f, err)
	}
}

func TestAssembleAddsTracksForMJ2(t *testing.T) {
	spec := testSpec()
	spec.Linked = false
	spec.Format = domain.FormatMJ2
	entries := []domain.FrameEntry{{ID: "1", Path: "a.jp2"}, {ID: "2", Path: "b.jp2"}}

	p, err := Assemble(entries, spec, "/out.mj2", kakadu.NewCommandBuilder(25), func(p string) string { return "/jp2/" + p })
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if p.Tracks != "P:0-@25" || p.Linked {
		t.Fatalf("unexpected directive %+v", p)
	}
	if strings.Join(p.Inputs, ",") != "/jp2/a.jp2,/jp2/b.jp2" {
		t.Fatalf("unexpected inputs %v", p.Inputs)
	}

	if _, err := Assemble(nil, spec, "/out.mj2", kakadu.NewCommandBuilder(25), filepath.Clean); !errors.Is(err, domain.ErrFrameResolution) {
		t.Fatalf("expected frame resolution failure, got %v", err)
	}
}

func TestBuildMergesOnceAndReusesArtifact(t *testing.T) {
	index := &stubIndex{}
	b, root, log := newTestBuilder(t, index)

	first, err := b.Build(context.Background(), testSpec())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if first.Cached || first.Frames != 5 {
		t.Fatalf("expected fresh artifact of 5 frames, got %+v", first)
	}
	if _, err := os.Stat(first.Path); err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
	if first.URL != "http://helio.example/jp2/movies/"+first.Name {
		t.Fatalf("unexpected url %s", first.URL)
	}
	if first.JPIPURL != "jpip://helio.example:8090/movies/"+first.Name {
		t.Fatalf("unexpected jpip url %s", first.JPIPURL)
	}

	second, err := b.Build(context.Background(), testSpec())
	if err != nil {
		t.Fatalf("second build: %v", err)
	}
	if !second.Cached || second.Path != first.Path {
		t.Fatalf("expected cached artifact, got %+v", second)
	}

	calls := invocations(t, log)
	if len(calls) != 1 {
		t.Fatalf("expected one merge, got %d", len(calls))
	}
	if !strings.Contains(calls[0], "-links") || !strings.Contains(calls[0], filepath.Join(root, "EIT/171/0.jp2")) {
		t.Fatalf("unexpected merge args %s", calls[0])
	}

	entries, err := os.ReadDir(filepath.Join(root, "movies"))
	if err != nil {
		t.Fatalf("read movie dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("temporary artifacts left behind: %v", entries)
	}
}

func TestBuildConcurrentRequestsMergeOnce(t *testing.T) {
	b, _, log := newTestBuilder(t, &stubIndex{})

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.Build(context.Background(), testSpec())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("build: %v", err)
		}
	}
	if n := len(invocations(t, log)); n != 1 {
		t.Fatalf("expected one merge, got %d", n)
	}
}

func TestBuildLinkedMJ2FailsBeforeLookup(t *testing.T) {
	index := &stubIndex{}
	b, _, log := newTestBuilder(t, index)

	spec := testSpec()
	spec.Format = domain.FormatMJ2
	if _, err := b.Build(context.Background(), spec); !errors.Is(err, domain.ErrInvalidSeriesFormat) {
		t.Fatalf("expected invalid series format, got %v", err)
	}
	if index.lookups != 0 || len(invocations(t, log)) != 0 {
		t.Fatalf("nothing should run for an invalid format")
	}
}

func TestBuildUnknownSource(t *testing.T) {
	b, _, log := newTestBuilder(t, &stubIndex{})
	spec := testSpec()
	spec.Source.Detector = "missing"
	if _, err := b.Build(context.Background(), spec); !errors.Is(err, domain.ErrFrameResolution) {
		t.Fatalf("expected frame resolution failure, got %v", err)
	}
	if len(invocations(t, log)) != 0 {
		t.Fatalf("merge should not run")
	}
}

func TestBuildMergeFailureLeavesNoArtifact(t *testing.T) {
	b, root, _ := newTestBuilder(t, &stubIndex{})
	script := filepath.Join(t.TempDir(), "kdu_merge")
	if err := os.WriteFile(script, []byte("#!/bin/sh\necho 'bad input' >&2\nexit 1\n"), 0755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	b.cfg.MergeTool = script

	if _, err := b.Build(context.Background(), testSpec()); err == nil || !strings.Contains(err.Error(), "bad input") {
		t.Fatalf("expected merge error, got %v", err)
	}
	entries, _ := os.ReadDir(filepath.Join(root, "movies"))
	if len(entries) != 0 {
		t.Fatalf("expected empty movie dir, got %v", entries)
	}
}

func TestFilenameKeepsSubSecondCadencesApart(t *testing.T) {
	spec := testSpec()
	spec.Cadence = time.Second
	whole := Filename(spec)
	spec.Cadence = 1500 * time.Millisecond
	fine := Filename(spec)

	if whole == fine {
		t.Fatalf("1s and 1.5s cadences share name %s", whole)
	}
	if !strings.HasSuffix(whole, "_B1L.jpx") || !strings.HasSuffix(fine, "_B1500msL.jpx") {
		t.Fatalf("unexpected names %s and %s", whole, fine)
	}
}

func TestValidateRejectsPathLikeSourceComponents(t *testing.T) {
	for _, bad := range []string{"../../../escaped", "a/b", `a\b`, "..", ""} {
		spec := testSpec()
		spec.Source.Measurement = bad
		if err := Validate(spec); !errors.Is(err, domain.ErrFrameResolution) {
			t.Fatalf("measurement %q: expected frame resolution failure, got %v", bad, err)
		}
	}
}

func TestBuildPathLikeSourceWritesNothing(t *testing.T) {
	index := &stubIndex{}
	b, root, log := newTestBuilder(t, index)

	spec := testSpec()
	spec.Source.Measurement = "../../../escaped"
	if _, err := b.Build(context.Background(), spec); !errors.Is(err, domain.ErrFrameResolution) {
		t.Fatalf("expected frame resolution failure, got %v", err)
	}
	if index.lookups != 0 || len(invocations(t, log)) != 0 {
		t.Fatalf("nothing should run for a path-like source")
	}
	entries, _ := os.ReadDir(root)
	if len(entries) != 0 {
		t.Fatalf("expected nothing written under %s, got %v", root, entries)
	}
}

func TestBuildUnservableMovieDirFailsBeforeMerge(t *testing.T) {
	b, _, log := newTestBuilder(t, &stubIndex{})
	b.cfg.MovieDir = t.TempDir()

	for i := 0; i < 2; i++ {
		if _, err := b.Build(context.Background(), testSpec()); err == nil || !strings.Contains(err.Error(), "outside") {
			t.Fatalf("call %d: expected location error, got %v", i, err)
		}
	}
	if n := len(invocations(t, log)); n != 0 {
		t.Fatalf("expected no merges, got %d", n)
	}
	entries, _ := os.ReadDir(b.cfg.MovieDir)
	if len(entries) != 0 {
		t.Fatalf("expected no artifact, got %v", entries)
	}
}

func TestBuildSurvivesCancelledCaller(t *testing.T) {
	b, _, log := newTestBuilder(t, &stubIndex{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	art, err := b.Build(ctx, testSpec())
	if err != nil {
		t.Fatalf("shared build should not inherit cancellation: %v", err)
	}
	if art.Frames != 5 {
		t.Fatalf("expected 5 frames, got %+v", art)
	}
	if n := len(invocations(t, log)); n != 1 {
		t.Fatalf("expected one merge, got %d", n)
	}
}
