package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gm-batch-converter/internal/domain"
)

// Item IDs understood by the fix action.
const (
	ItemTool      = "tool_gm"
	ItemInputDir  = "input_dir"
	ItemOutputDir = "output_dir"
)

const versionTimeout = 10 * time.Second

// ToolProbe locates GraphicsMagick and reads its version.
type ToolProbe interface {
	CheckTool() (string, error)
	Version(ctx context.Context) (string, error)
}

// Checker validates the external tool and the configured directories.
type Checker struct {
	probe      ToolProbe
	stat       func(string) (os.FileInfo, error)
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker(probe ToolProbe) *Checker {
	return &Checker{
		probe:      probe,
		stat:       os.Stat,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
	}
}

// Run executes all checks and returns a combined report.
func (c *Checker) Run(settings domain.Settings) domain.DiagnosticReport {
	toolItem, version := c.checkTool()
	items := []domain.DiagnosticItem{
		toolItem,
		c.checkInputDir(settings.InputDir),
		c.checkOutputDir(settings.OutputDir),
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		ToolVersion: version,
		Items:       items,
	}
}

// checkTool verifies gm is on PATH and really is GraphicsMagick.
func (c *Checker) checkTool() (domain.DiagnosticItem, string) {
	item := domain.DiagnosticItem{
		ID:   ItemTool,
		Name: "GraphicsMagick",
	}

	path, err := c.probe.CheckTool()
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "GraphicsMagick (gm) not found in PATH."
		item.Hint = "Install GraphicsMagick and ensure the gm binary is available on PATH."
		item.Fixable = true
		return item, ""
	}

	ctx, cancel := context.WithTimeout(context.Background(), versionTimeout)
	defer cancel()
	version, err := c.probe.Version(ctx)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("%s is not a working GraphicsMagick: %v", path, err)
		item.Hint = "Another program named gm shadows GraphicsMagick on PATH."
		item.Fixable = true
		return item, ""
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("%s (%s)", version, path)
	return item, version
}

// checkInputDir validates the selected source directory.
func (c *Checker) checkInputDir(inputDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   ItemInputDir,
		Name: "Input directory",
	}

	if strings.TrimSpace(inputDir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Input directory is empty."
		item.Hint = "Pick the folder holding the images to convert."
		return item
	}

	info, err := c.stat(inputDir)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		if errors.Is(err, os.ErrNotExist) {
			item.Message = fmt.Sprintf("Input directory does not exist: %s", inputDir)
		} else {
			item.Message = fmt.Sprintf("Cannot access input directory: %s", inputDir)
		}
		item.Hint = "Pick an existing folder."
		return item
	}
	if !info.IsDir() {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Input path is not a directory: %s", inputDir)
		item.Hint = "Pick a folder rather than a single file."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Input directory: %s", inputDir)
	return item
}

// checkOutputDir validates write access, or that a missing directory can be
// created under an existing parent.
func (c *Checker) checkOutputDir(outputDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   ItemOutputDir,
		Name: "Output directory",
	}

	if strings.TrimSpace(outputDir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Output directory is empty."
		item.Hint = "Set an output directory where converted images can be written."
		item.Fixable = true
		return item
	}

	info, err := c.stat(outputDir)
	if errors.Is(err, os.ErrNotExist) {
		parent := filepath.Dir(outputDir)
		if pinfo, perr := c.stat(parent); perr == nil && pinfo.IsDir() {
			item.Status = domain.DiagnosticStatusPass
			item.Message = fmt.Sprintf("Output directory will be created: %s", outputDir)
			return item
		}
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Output directory does not exist: %s", outputDir)
		item.Hint = "Create the directory or choose another location."
		item.Fixable = true
		return item
	}
	if err != nil || !info.IsDir() {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Output path is not a usable directory: %s", outputDir)
		item.Hint = "Choose a folder you can write to."
		return item
	}

	tmpFile, err := c.createTemp(outputDir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Output directory is not writable: %s", outputDir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", outputDir)
	return item
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	probe ToolProbe,
	stat func(string) (os.FileInfo, error),
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		probe:      probe,
		stat:       stat,
		createTemp: createTemp,
		remove:     remove,
	}
}
