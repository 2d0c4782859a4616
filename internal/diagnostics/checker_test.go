package diagnostics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gm-batch-converter/internal/domain"
)

// fakeProbe returns preconfigured tool lookups.
type fakeProbe struct {
	pathErr    error
	version    string
	versionErr error
}

func (p *fakeProbe) CheckTool() (string, error) {
	if p.pathErr != nil {
		return "", p.pathErr
	}
	return "/usr/local/bin/gm", nil
}

func (p *fakeProbe) Version(context.Context) (string, error) {
	return p.version, p.versionErr
}

// TestCheckerRunAllPass validates happy-path diagnostics report.
func TestCheckerRunAllPass(t *testing.T) {
	root := t.TempDir()
	inputDir := filepath.Join(root, "photos")
	if err := os.MkdirAll(inputDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	checker := NewCheckerForTests(
		&fakeProbe{version: "GraphicsMagick 1.3.42 2023-09-23 Q16"},
		os.Stat,
		os.CreateTemp,
		os.Remove,
	)
	report := checker.Run(domain.Settings{
		InputDir:  inputDir,
		OutputDir: root,
	})

	if report.HasFailures {
		t.Fatalf("expected no failures, got %+v", report.Items)
	}
	if report.ToolVersion != "GraphicsMagick 1.3.42 2023-09-23 Q16" {
		t.Fatalf("tool version = %q", report.ToolVersion)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("write check left files behind: %v", entries)
	}
}

// TestCheckerRunMissingToolAndPaths validates failure reporting.
func TestCheckerRunMissingToolAndPaths(t *testing.T) {
	checker := NewCheckerForTests(
		&fakeProbe{pathErr: errors.New("not found")},
		os.Stat,
		os.CreateTemp,
		os.Remove,
	)

	report := checker.Run(domain.Settings{
		InputDir:  "/path/that/does/not/exist",
		OutputDir: "",
	})

	if !report.HasFailures {
		t.Fatal("expected failures")
	}

	assertStatusByID(t, report, ItemTool, domain.DiagnosticStatusFail)
	assertStatusByID(t, report, ItemInputDir, domain.DiagnosticStatusFail)
	assertStatusByID(t, report, ItemOutputDir, domain.DiagnosticStatusFail)
	if !itemByID(t, report, ItemTool).Fixable {
		t.Fatal("missing tool should be fixable")
	}
}

// TestCheckerRunRejectsNonGraphicsMagick flags a shadowing gm binary.
func TestCheckerRunRejectsNonGraphicsMagick(t *testing.T) {
	root := t.TempDir()
	checker := NewCheckerForTests(
		&fakeProbe{versionErr: errors.New("gm version did not report GraphicsMagick")},
		os.Stat,
		os.CreateTemp,
		os.Remove,
	)
	report := checker.Run(domain.Settings{InputDir: root, OutputDir: root})

	assertStatusByID(t, report, ItemTool, domain.DiagnosticStatusFail)
	assertStatusByID(t, report, ItemInputDir, domain.DiagnosticStatusPass)
}

// TestCheckerOutputDirCreatableUnderExistingParent does not create it.
func TestCheckerOutputDirCreatableUnderExistingParent(t *testing.T) {
	root := t.TempDir()
	outputDir := filepath.Join(root, "converted")
	checker := NewCheckerForTests(&fakeProbe{version: "GraphicsMagick"}, os.Stat, os.CreateTemp, os.Remove)

	report := checker.Run(domain.Settings{InputDir: root, OutputDir: outputDir})
	assertStatusByID(t, report, ItemOutputDir, domain.DiagnosticStatusPass)
	if _, err := os.Stat(outputDir); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("checker should not create output dir, stat err = %v", err)
	}

	deep := filepath.Join(root, "a", "b", "c")
	report = checker.Run(domain.Settings{InputDir: root, OutputDir: deep})
	assertStatusByID(t, report, ItemOutputDir, domain.DiagnosticStatusFail)
}

// TestCheckerInputFileIsNotDirectory rejects a file path.
func TestCheckerInputFileIsNotDirectory(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "a.png")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	checker := NewCheckerForTests(&fakeProbe{version: "GraphicsMagick"}, os.Stat, os.CreateTemp, os.Remove)

	report := checker.Run(domain.Settings{InputDir: file, OutputDir: root})
	assertStatusByID(t, report, ItemInputDir, domain.DiagnosticStatusFail)
}

func itemByID(t *testing.T, report domain.DiagnosticReport, id string) domain.DiagnosticItem {
	t.Helper()
	for _, item := range report.Items {
		if item.ID == id {
			return item
		}
	}
	t.Fatalf("diagnostic item not found: %s", id)
	return domain.DiagnosticItem{}
}

// assertStatusByID checks status for one diagnostic item by ID.
func assertStatusByID(t *testing.T, report domain.DiagnosticReport, id string, want domain.DiagnosticStatus) {
	t.Helper()
	if got := itemByID(t, report, id).Status; got != want {
		t.Fatalf("item %s: got %s, want %s", id, got, want)
	}
}
