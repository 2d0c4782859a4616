package batch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"gm-batch-converter/internal/domain"
	"gm-batch-converter/internal/formats"
	"gm-batch-converter/internal/gm"
)

// ErrUnknownFormat is returned for a target format missing from the catalog.
var ErrUnknownFormat = errors.New("unknown output format")

// OverwriteConflictError lists outputs that already exist when the overwrite
// policy asks for confirmation.
type OverwriteConflictError struct {
	Paths []string
}

// Error summarizes the conflicting files.
func (e *OverwriteConflictError) Error() string {
	if e == nil {
		return ""
	}
	if len(e.Paths) == 1 {
		return fmt.Sprintf("output file already exists: %s", e.Paths[0])
	}
	return fmt.Sprintf("%d output files already exist", len(e.Paths))
}

// Scanner lists candidate input files.
type Scanner interface {
	Scan(dir string, recursive bool) ([]string, error)
}

// Request is the set of GUI selections a plan is derived from.
type Request struct {
	InputDir          string
	OutputDir         string
	Format            string
	Recursive         bool
	PreserveStructure bool
}

// RequestFromSettings copies the planning fields out of settings.
func RequestFromSettings(s domain.Settings) Request {
	return Request{
		InputDir:          s.InputDir,
		OutputDir:         s.OutputDir,
		Format:            s.Format,
		Recursive:         s.Recursive,
		PreserveStructure: s.PreserveStructure,
	}
}

// Planner turns a Request into conversion jobs.
type Planner struct {
	scanner Scanner
	catalog *formats.Catalog
	stat    func(name string) (os.FileInfo, error)
	newID   func() string
}

// NewPlanner builds a planner over the default format catalog.
func NewPlanner(scanner Scanner) *Planner {
	return &Planner{
		scanner: scanner,
		catalog: formats.Default(),
		stat:    os.Stat,
		newID:   uuid.NewString,
	}
}

// Plan scans the input directory and derives one job per image. Files under
// an output directory nested in the input tree are ignored, and an image that
// would be converted onto itself is left out. Existing outputs are listed as
// conflicts; nothing is written.
func (p *Planner) Plan(req Request) (domain.BatchPlan, error) {
	format, ok := p.catalog.Lookup(req.Format)
	if !ok {
		return domain.BatchPlan{}, fmt.Errorf("%w: %q", ErrUnknownFormat, req.Format)
	}
	if strings.TrimSpace(req.OutputDir) == "" {
		return domain.BatchPlan{}, fmt.Errorf("output directory is required")
	}

	files, err := p.scanner.Scan(req.InputDir, req.Recursive)
	if err != nil {
		return domain.BatchPlan{}, err
	}

	files = excludeOutputTree(files, req.InputDir, req.OutputDir)

	plan := domain.BatchPlan{
		Jobs:      make([]domain.ConversionJob, 0, len(files)),
		Conflicts: []string{},
	}
	// Inputs are reserved up front so no job is ever pointed at a source file.
	taken := make(map[string]struct{}, 2*len(files))
	for _, input := range files {
		taken[filepath.Clean(input)] = struct{}{}
	}
	for _, input := range files {
		output, err := gm.OutputPath(input, req.InputDir, req.OutputDir, format, req.PreserveStructure)
		if err != nil {
			return domain.BatchPlan{}, err
		}
		// Already in the target format at the target location.
		if filepath.Clean(output) == filepath.Clean(input) {
			continue
		}
		output = uniquePath(output, taken)
		taken[output] = struct{}{}

		target := format.ID
		if format.KeepsExtension() {
			target = strings.TrimPrefix(strings.ToLower(filepath.Ext(input)), ".")
		}

		plan.Jobs = append(plan.Jobs, domain.ConversionJob{
			ID:           p.newID(),
			InputPath:    input,
			OutputPath:   output,
			TargetFormat: target,
		})
		if _, err := p.stat(output); err == nil {
			plan.Conflicts = append(plan.Conflicts, output)
		}
	}

	return plan, nil
}

// Schedule applies the overwrite policy. It returns the jobs to run and the
// jobs to report as skipped.
func Schedule(plan domain.BatchPlan, policy domain.OverwritePolicy, confirmed bool) ([]domain.ConversionJob, []domain.ConversionJob, error) {
	if len(plan.Conflicts) == 0 || policy == domain.OverwriteAlways {
		return plan.Jobs, nil, nil
	}
	if policy != domain.OverwriteSkip && !confirmed {
		return nil, nil, &OverwriteConflictError{Paths: append([]string(nil), plan.Conflicts...)}
	}
	if policy != domain.OverwriteSkip {
		return plan.Jobs, nil, nil
	}

	conflicts := make(map[string]struct{}, len(plan.Conflicts))
	for _, path := range plan.Conflicts {
		conflicts[path] = struct{}{}
	}

	run := make([]domain.ConversionJob, 0, len(plan.Jobs))
	var skip []domain.ConversionJob
	for _, job := range plan.Jobs {
		if _, exists := conflicts[job.OutputPath]; exists {
			skip = append(skip, job)
			continue
		}
		run = append(run, job)
	}
	return run, skip, nil
}

// OptionsFromSettings derives gm flags from persisted settings.
func OptionsFromSettings(s domain.Settings) domain.ConvertOptions {
	opts := domain.ConvertOptions{
		Quality:      s.Quality,
		KeepAspect:   s.KeepAspect,
		Rotate:       s.Rotate,
		Flip:         s.Flip,
		Flop:         s.Flop,
		ColorProfile: strings.TrimSpace(s.ColorProfile),
	}
	if s.ResizeEnabled && s.ResizeWidth > 0 && s.ResizeHeight > 0 {
		opts.Resize = &domain.Size{Width: s.ResizeWidth, Height: s.ResizeHeight}
	}
	return opts
}

// excludeOutputTree drops files under outputDir when it sits strictly inside
// inputDir, so earlier results are not picked up as new inputs.
func excludeOutputTree(files []string, inputDir, outputDir string) []string {
	if !isWithin(outputDir, inputDir) {
		return files
	}
	kept := make([]string, 0, len(files))
	for _, file := range files {
		if isWithin(file, outputDir) {
			continue
		}
		kept = append(kept, file)
	}
	return kept
}

// isWithin reports whether path is strictly below dir.
func isWithin(path, dir string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil || rel == "." || rel == ".." {
		return false
	}
	return !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// uniquePath appends -1, -2, ... to the stem until path is not taken, so two
// inputs that differ only by extension do not write the same output.
func uniquePath(path string, taken map[string]struct{}) string {
	if _, dup := taken[path]; !dup {
		return path
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := stem + "-" + strconv.Itoa(i) + ext
		if _, dup := taken[candidate]; !dup {
			return candidate
		}
	}
}

// NewPlannerForTests constructs a planner with injectable dependencies.
func NewPlannerForTests(scanner Scanner, stat func(name string) (os.FileInfo, error), newID func() string) *Planner {
	return &Planner{
		scanner: scanner,
		catalog: formats.Default(),
		stat:    stat,
		newID:   newID,
	}
}
