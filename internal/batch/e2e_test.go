package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"gm-batch-converter/internal/domain"
	"gm-batch-converter/internal/formats"
	"gm-batch-converter/internal/gm"
	"gm-batch-converter/internal/scan"
)

// fakeGM stands in for GraphicsMagick: it writes a PNG signature to the last
// argument and fails for inputs containing the word "corrupt".
const fakeGM = `#!/bin/sh
if [ "$1" = "version" ]; then
  echo "GraphicsMagick 1.3.42 2023-09-23 Q16 http://www.GraphicsMagick.org/"
  exit 0
fi
in="$2"
for last; do :; done
if grep -q corrupt "$in"; then
  echo "gm convert: Improper image header ($in)." >&2
  exit 1
fi
printf '\211PNG\r\n\032\n0000000000000000' > "$last"
echo "converted $in"
`

func installFakeGM(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-script tool stub requires a POSIX shell")
	}
	binDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(binDir, "gm"), []byte(fakeGM), 0o755); err != nil {
		t.Fatalf("write fake gm: %v", err)
	}
	t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func runEndToEnd(t *testing.T, in, out string) (domain.BatchSummary, error) {
	t.Helper()
	planner := NewPlanner(scan.NewScanner(formats.Default()))
	plan, err := planner.Plan(Request{InputDir: in, OutputDir: out, Format: "png"})
	if err != nil {
		return domain.BatchSummary{}, err
	}
	jobs, skip, err := Schedule(plan, domain.OverwriteAsk, false)
	if err != nil {
		return domain.BatchSummary{}, err
	}
	exec := NewExecutor(gm.NewRunner(), 2, quietLogger())
	return exec.Run(context.Background(), Work{ID: "e2e", Jobs: jobs, Skip: skip}, nil)
}

// TestEndToEndThreeJPEGsToPNG converts a small directory through a stub gm.
func TestEndToEndThreeJPEGsToPNG(t *testing.T) {
	installFakeGM(t)
	root := t.TempDir()
	in := filepath.Join(root, "in")
	out := filepath.Join(root, "out")
	for _, name := range []string{"one.jpg", "two.jpg", "three.jpeg"} {
		mustWrite(t, filepath.Join(in, name), "jpeg data")
	}

	summary, err := runEndToEnd(t, in, out)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Status != domain.BatchStatusSuccess || summary.Succeeded != 3 || summary.Total != 3 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.Message != "3/3 files converted" {
		t.Fatalf("message = %q", summary.Message)
	}

	pngs, err := filepath.Glob(filepath.Join(out, "*.png"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(pngs) != 3 {
		t.Fatalf("png files = %v, want 3", pngs)
	}
}

// TestEndToEndCorruptInputFailsAlone checks one bad file in a batch.
func TestEndToEndCorruptInputFailsAlone(t *testing.T) {
	installFakeGM(t)
	root := t.TempDir()
	in := filepath.Join(root, "in")
	out := filepath.Join(root, "out")
	mustWrite(t, filepath.Join(in, "a.jpg"), "jpeg data")
	mustWrite(t, filepath.Join(in, "b.jpg"), "corrupt")
	mustWrite(t, filepath.Join(in, "c.jpg"), "jpeg data")

	summary, err := runEndToEnd(t, in, out)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Status != domain.BatchStatusPartialFailure {
		t.Fatalf("status = %s, want partial_failure", summary.Status)
	}
	if summary.Succeeded != 2 || len(summary.Failed) != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if filepath.Base(summary.Failed[0].InputPath) != "b.jpg" {
		t.Fatalf("failed = %+v", summary.Failed)
	}
	if _, err := os.Stat(filepath.Join(out, "c.png")); err != nil {
		t.Fatalf("c.png missing: %v", err)
	}
}

// TestEndToEndEmptyDirectory finishes with a 0 files summary.
func TestEndToEndEmptyDirectory(t *testing.T) {
	installFakeGM(t)
	root := t.TempDir()

	summary, err := runEndToEnd(t, root, filepath.Join(root, "out"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Status != domain.BatchStatusSuccess || summary.Total != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if _, err := os.Stat(filepath.Join(root, "out")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("output dir should not be created for an empty batch, stat err = %v", err)
	}
}

// TestEndToEndToolMissing fails before any output is written.
func TestEndToEndToolMissing(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	root := t.TempDir()
	in := filepath.Join(root, "in")
	out := filepath.Join(root, "out")
	mustWrite(t, filepath.Join(in, "a.jpg"), "jpeg data")

	_, err := runEndToEnd(t, in, out)
	if !errors.Is(err, gm.ErrToolNotFound) {
		t.Fatalf("error = %v, want ErrToolNotFound", err)
	}
	if _, err := os.Stat(out); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("output dir should not exist, stat err = %v", err)
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
