package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"gm-batch-converter/internal/config"
	"gm-batch-converter/internal/domain"
)

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

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func runCLI(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), append([]string{"-no-color"}, args...), strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

// TestRunConvertsDirectory converts every image and exits 0.
func TestRunConvertsDirectory(t *testing.T) {
	installFakeGM(t)
	root := t.TempDir()
	in := filepath.Join(root, "in")
	out := filepath.Join(root, "out")
	for _, name := range []string{"a.jpg", "b.jpg", "c.jpeg"} {
		writeFile(t, filepath.Join(in, name), "jpeg")
	}

	code, stdout, stderr := runCLI(t, "", "-in", in, "-out", out, "-format", "png")
	if code != exitOK {
		t.Fatalf("exit = %d, stderr = %s", code, stderr)
	}
	if !strings.Contains(stdout, "3/3 files converted") {
		t.Fatalf("stdout = %s", stdout)
	}
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Fatalf("expected %s: %v", name, err)
		}
	}
}

// TestRunEmptyDirectory succeeds without creating the output directory.
func TestRunEmptyDirectory(t *testing.T) {
	installFakeGM(t)
	root := t.TempDir()
	in := filepath.Join(root, "in")
	out := filepath.Join(root, "out")
	if err := os.MkdirAll(in, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	code, stdout, stderr := runCLI(t, "", "-in", in, "-out", out)
	if code != exitOK {
		t.Fatalf("exit = %d, stderr = %s", code, stderr)
	}
	if !strings.Contains(stdout, "0 files to convert") {
		t.Fatalf("stdout = %s", stdout)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatalf("output dir created, stat err = %v", err)
	}
}

// TestRunPartialFailureExitsOne keeps going after one bad file.
func TestRunPartialFailureExitsOne(t *testing.T) {
	installFakeGM(t)
	root := t.TempDir()
	in := filepath.Join(root, "in")
	out := filepath.Join(root, "out")
	writeFile(t, filepath.Join(in, "good.jpg"), "jpeg")
	writeFile(t, filepath.Join(in, "bad.jpg"), "corrupt")

	code, stdout, _ := runCLI(t, "", "-in", in, "-out", out)
	if code != exitPartial {
		t.Fatalf("exit = %d, want %d\n%s", code, exitPartial, stdout)
	}
	if !strings.Contains(stdout, "bad.jpg") || !strings.Contains(stdout, "1 failed") {
		t.Fatalf("stdout = %s", stdout)
	}
}

// TestRunToolMissingIsFatal fails before creating the output directory.
func TestRunToolMissingIsFatal(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	root := t.TempDir()
	in := filepath.Join(root, "in")
	out := filepath.Join(root, "out")
	writeFile(t, filepath.Join(in, "a.jpg"), "jpeg")

	code, _, stderr := runCLI(t, "", "-in", in, "-out", out)
	if code != exitFatal {
		t.Fatalf("exit = %d, want %d", code, exitFatal)
	}
	if !strings.Contains(stderr, "not found") {
		t.Fatalf("stderr = %s", stderr)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatalf("output dir created, stat err = %v", err)
	}
}

// TestRunDeclinedOverwriteSkipsExisting treats "no" as skip.
func TestRunDeclinedOverwriteSkipsExisting(t *testing.T) {
	installFakeGM(t)
	root := t.TempDir()
	in := filepath.Join(root, "in")
	out := filepath.Join(root, "out")
	writeFile(t, filepath.Join(in, "a.jpg"), "jpeg")
	writeFile(t, filepath.Join(in, "b.jpg"), "jpeg")
	writeFile(t, filepath.Join(out, "a.png"), "old")

	code, stdout, stderr := runCLI(t, "n\n", "-in", in, "-out", out)
	if code != exitOK {
		t.Fatalf("exit = %d, stderr = %s", code, stderr)
	}
	if !strings.Contains(stdout, "1 skipped") {
		t.Fatalf("stdout = %s", stdout)
	}
	data, err := os.ReadFile(filepath.Join(out, "a.png"))
	if err != nil || string(data) != "old" {
		t.Fatalf("a.png = %q, %v; want untouched", data, err)
	}
}

// TestResolveSettingsMergesConfig lets explicit flags win over the file.
func TestResolveSettingsMergesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := config.NewJSONStore(path).Save(domain.Settings{
		InputDir:  "/photos",
		OutputDir: "/converted",
		Format:    "webp",
		Quality:   70,
		Overwrite: domain.OverwriteSkip,
	}); err != nil {
		t.Fatalf("save config: %v", err)
	}

	flags, set, err := parseFlags([]string{"-config", path, "-quality", "85", "-resize", "800x600"}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got, err := resolveSettings(flags, set)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.InputDir != "/photos" || got.Format != "webp" || got.Overwrite != domain.OverwriteSkip {
		t.Fatalf("config values lost: %+v", got)
	}
	if got.Quality != 85 || !got.ResizeEnabled || got.ResizeWidth != 800 || got.ResizeHeight != 600 {
		t.Fatalf("flag values lost: %+v", got)
	}
}

// TestResolveSettingsRejectsBadInput covers flag validation.
func TestResolveSettingsRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "missing dirs", args: nil, want: "-in and -out"},
		{name: "bad format", args: []string{"-in", "a", "-out", "b", "-format", "heic"}, want: "unknown output format"},
		{name: "bad policy", args: []string{"-in", "a", "-out", "b", "-overwrite", "maybe"}, want: "invalid -overwrite"},
		{name: "bad resize", args: []string{"-in", "a", "-out", "b", "-resize", "800"}, want: "invalid -resize"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			flags, set, err := parseFlags(tc.args, &bytes.Buffer{})
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			_, err = resolveSettings(flags, set)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error = %v, want %q", err, tc.want)
			}
		})
	}
}
