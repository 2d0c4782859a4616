package gm

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"gm-batch-converter/internal/domain"
	"gm-batch-converter/internal/formats"
)

const (
	resizeFilter = "Lanczos"
	resizeSharp  = "0.25x0.25+8+0.065"
)

// BuildArgs returns the gm argument list converting one job. The first
// element is the convert subcommand; the output path is always last.
func BuildArgs(job domain.ConversionJob, opts domain.ConvertOptions) []string {
	args := []string{"convert", job.InputPath}

	if opts.Resize != nil && opts.Resize.Width > 0 && opts.Resize.Height > 0 {
		args = append(args, "-resize", fmt.Sprintf("%dx%d", opts.Resize.Width, opts.Resize.Height))
		if opts.KeepAspect {
			args = append(args, "-filter", resizeFilter, "-unsharp", resizeSharp)
		} else {
			args[len(args)-1] += "!"
		}
	}

	if rotate := normalizeRotation(opts.Rotate); rotate != 0 {
		args = append(args, "-rotate", strconv.Itoa(rotate))
	}
	if opts.Flip {
		args = append(args, "-flip")
	}
	if opts.Flop {
		args = append(args, "-flop")
	}

	if quality := clampQuality(opts.Quality); quality > 0 && supportsQuality(job.OutputPath) {
		args = append(args, "-quality", strconv.Itoa(quality))
	}
	if profile := strings.TrimSpace(opts.ColorProfile); profile != "" {
		args = append(args, "-profile", profile)
	}

	return append(args, job.OutputPath)
}

// OutputPath places inputPath into outputDir with the target format's
// extension. With preserve set, the file's directory relative to inputRoot
// is mirrored below outputDir.
func OutputPath(inputPath, inputRoot, outputDir string, format domain.FormatOption, preserve bool) (string, error) {
	dir := outputDir
	if preserve && inputRoot != "" {
		rel, err := filepath.Rel(inputRoot, filepath.Dir(inputPath))
		if err != nil {
			return "", fmt.Errorf("relative path for %s: %w", inputPath, err)
		}
		if strings.HasPrefix(rel, "..") {
			return "", fmt.Errorf("input %s is outside %s", inputPath, inputRoot)
		}
		dir = filepath.Join(outputDir, rel)
	}

	base := filepath.Base(inputPath)
	if format.KeepsExtension() || format.Extension == "" {
		return filepath.Join(dir, base), nil
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, stem+format.Extension), nil
}

// CommandLine renders args for the log view.
func CommandLine(tool string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, tool)
	for _, arg := range args {
		if strings.ContainsAny(arg, " \t\"'") {
			arg = strconv.Quote(arg)
		}
		parts = append(parts, arg)
	}
	return strings.Join(parts, " ")
}

// supportsQuality decides from the output extension whether -quality applies.
func supportsQuality(outputPath string) bool {
	option, ok := formats.Default().ForExtension(filepath.Ext(outputPath))
	return ok && option.SupportsQuality
}

func clampQuality(q int) int {
	switch {
	case q <= 0:
		return 0
	case q > 100:
		return 100
	default:
		return q
	}
}

// normalizeRotation folds any angle onto 0, 90, 180 or 270.
func normalizeRotation(deg int) int {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	return deg - deg%90
}
