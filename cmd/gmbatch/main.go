// Command gmbatch converts a directory of images with GraphicsMagick without
// the desktop UI. It shares settings, planning and execution with the app.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"gm-batch-converter/internal/batch"
	"gm-batch-converter/internal/config"
	"gm-batch-converter/internal/domain"
	"gm-batch-converter/internal/formats"
	"gm-batch-converter/internal/gm"
	"gm-batch-converter/internal/logging"
	"gm-batch-converter/internal/scan"
)

const (
	exitOK      = 0
	exitPartial = 1
	exitFatal   = 2
)

var (
	bold   = color.New(color.Bold).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	subtle = color.New(color.Faint).SprintFunc()
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// cliFlags holds raw flag values before they are merged over settings.
type cliFlags struct {
	configPath string
	verbose    bool
	noColor    bool
	resize     string
	settings   domain.Settings
	overwrite  string
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	flags, set, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitFatal
	}
	if flags.noColor {
		color.NoColor = true
	}

	log, closeLog, err := logging.New(logging.Options{Output: stderr, Verbose: flags.verbose})
	if err != nil {
		fmt.Fprintf(stderr, "%s %v\n", red("error:"), err)
		return exitFatal
	}
	defer closeLog()

	settings, err := resolveSettings(flags, set)
	if err != nil {
		fmt.Fprintf(stderr, "%s %v\n", red("error:"), err)
		return exitFatal
	}
	log.WithFields(logrus.Fields{
		"input":     settings.InputDir,
		"output":    settings.OutputDir,
		"format":    settings.Format,
		"recursive": settings.Recursive,
		"overwrite": settings.Overwrite,
	}).Debug("settings resolved")

	runner := gm.NewRunner()
	if _, err := runner.CheckTool(); err != nil {
		fmt.Fprintf(stderr, "%s %v\n", red("error:"), err)
		return exitFatal
	}

	planner := batch.NewPlanner(scan.NewScanner(formats.Default()))
	plan, err := planner.Plan(batch.RequestFromSettings(settings))
	if err != nil {
		fmt.Fprintf(stderr, "%s %v\n", red("error:"), err)
		return exitFatal
	}

	jobs, skip, err := batch.Schedule(plan, settings.Overwrite, false)
	var conflict *batch.OverwriteConflictError
	if errors.As(err, &conflict) {
		policy := domain.OverwriteSkip
		if confirm(stdin, stdout, fmt.Sprintf("%d output file(s) already exist. Overwrite?", len(conflict.Paths))) {
			policy = domain.OverwriteAlways
		}
		jobs, skip, err = batch.Schedule(plan, policy, true)
	}
	if err != nil {
		fmt.Fprintf(stderr, "%s %v\n", red("error:"), err)
		return exitFatal
	}

	if len(jobs) > 0 {
		version, err := runner.Version(ctx)
		if err != nil {
			fmt.Fprintf(stderr, "%s %v\n", red("error:"), err)
			return exitFatal
		}
		fmt.Fprintln(stdout, subtle(version))
		if err := os.MkdirAll(settings.OutputDir, 0o755); err != nil {
			fmt.Fprintf(stderr, "%s %v\n", red("error:"), &scan.DirectoryNotFoundError{Path: settings.OutputDir, Err: err})
			return exitFatal
		}
	}

	fmt.Fprintf(stdout, "%s %d files → %s (%s)\n", bold("Converting"), len(plan.Jobs), settings.OutputDir, settings.Format)
	executor := batch.NewExecutor(runner, settings.Workers, log)
	summary, err := executor.Run(ctx, batch.Work{
		ID:      "cli",
		Jobs:    jobs,
		Skip:    skip,
		Options: batch.OptionsFromSettings(settings),
	}, func(result domain.ConversionResult, _ batch.Progress, text string) {
		switch {
		case result.Skipped:
			fmt.Fprintln(stdout, yellow(text))
		case result.Success:
			fmt.Fprintln(stdout, green(text))
		default:
			fmt.Fprintln(stdout, red(text))
		}
	})
	if err != nil {
		fmt.Fprintf(stderr, "%s %v\n", red("error:"), err)
		return exitFatal
	}

	fmt.Fprintln(stdout)
	switch summary.Status {
	case domain.BatchStatusSuccess:
		fmt.Fprintln(stdout, green(batch.SummaryText(summary)))
		return exitOK
	default:
		fmt.Fprintln(stdout, red(batch.SummaryText(summary)))
		return exitPartial
	}
}

func parseFlags(args []string, stderr io.Writer) (cliFlags, map[string]bool, error) {
	var f cliFlags
	s := &f.settings
	fs := flag.NewFlagSet("gmbatch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: gmbatch -in DIR -out DIR [-format png] [options]")
		fs.PrintDefaults()
	}

	fs.StringVar(&f.configPath, "config", "", "settings file to start from (same format as the desktop app)")
	fs.BoolVar(&f.verbose, "v", false, "verbose logging")
	fs.BoolVar(&f.noColor, "no-color", false, "disable colored output")
	fs.StringVar(&s.InputDir, "in", "", "input directory")
	fs.StringVar(&s.OutputDir, "out", "", "output directory")
	fs.StringVar(&s.Format, "format", "png", "output format: "+strings.Join(formatIDs(), ", "))
	fs.IntVar(&s.Quality, "quality", 90, "quality 1-100 for jpg, webp and tiff")
	fs.BoolVar(&s.Recursive, "recursive", false, "include subdirectories")
	fs.BoolVar(&s.PreserveStructure, "preserve", false, "mirror subdirectories in the output")
	fs.StringVar(&f.overwrite, "overwrite", string(domain.OverwriteAsk), "existing outputs: ask, always or skip")
	fs.IntVar(&s.Workers, "workers", 0, "concurrent gm processes (0 = automatic)")
	fs.IntVar(&s.Rotate, "rotate", 0, "rotate by 90, 180 or 270 degrees")
	fs.BoolVar(&s.Flip, "flip", false, "mirror vertically")
	fs.BoolVar(&s.Flop, "flop", false, "mirror horizontally")
	fs.StringVar(&f.resize, "resize", "", "resize to WxH")
	fs.BoolVar(&s.KeepAspect, "keep-aspect", false, "keep aspect ratio when resizing")
	fs.StringVar(&s.ColorProfile, "profile", "", "ICC color profile to embed")

	if err := fs.Parse(args); err != nil {
		return cliFlags{}, nil, err
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected arguments: %s\n", strings.Join(fs.Args(), " "))
		fs.Usage()
		return cliFlags{}, nil, errors.New("unexpected arguments")
	}

	set := map[string]bool{}
	fs.Visit(func(fl *flag.Flag) { set[fl.Name] = true })
	return f, set, nil
}

// resolveSettings applies explicitly set flags over the config file, or over
// flag defaults when no config is given.
func resolveSettings(f cliFlags, set map[string]bool) (domain.Settings, error) {
	settings := f.settings
	settings.Overwrite = domain.OverwritePolicy(f.overwrite)

	if f.configPath != "" {
		base, err := config.NewJSONStore(f.configPath).Load()
		if err != nil {
			return domain.Settings{}, fmt.Errorf("load config: %w", err)
		}
		settings = merge(base, settings, set)
	}

	switch settings.Overwrite {
	case domain.OverwriteAsk, domain.OverwriteAlways, domain.OverwriteSkip:
	default:
		return domain.Settings{}, fmt.Errorf("invalid -overwrite %q", settings.Overwrite)
	}

	if set["resize"] {
		w, h, err := parseSize(f.resize)
		if err != nil {
			return domain.Settings{}, err
		}
		settings.ResizeEnabled = true
		settings.ResizeWidth, settings.ResizeHeight = w, h
	}

	settings = config.Normalize(settings)
	if _, ok := formats.Default().Lookup(settings.Format); !ok {
		return domain.Settings{}, fmt.Errorf("%w: %q", batch.ErrUnknownFormat, settings.Format)
	}
	if settings.InputDir == "" || settings.OutputDir == "" {
		return domain.Settings{}, errors.New("-in and -out are required")
	}
	return settings, nil
}

func merge(base, flags domain.Settings, set map[string]bool) domain.Settings {
	if set["in"] {
		base.InputDir = flags.InputDir
	}
	if set["out"] {
		base.OutputDir = flags.OutputDir
	}
	if set["format"] {
		base.Format = flags.Format
	}
	if set["quality"] {
		base.Quality = flags.Quality
	}
	if set["recursive"] {
		base.Recursive = flags.Recursive
	}
	if set["preserve"] {
		base.PreserveStructure = flags.PreserveStructure
	}
	if set["overwrite"] {
		base.Overwrite = flags.Overwrite
	}
	if set["workers"] {
		base.Workers = flags.Workers
	}
	if set["rotate"] {
		base.Rotate = flags.Rotate
	}
	if set["flip"] {
		base.Flip = flags.Flip
	}
	if set["flop"] {
		base.Flop = flags.Flop
	}
	if set["keep-aspect"] {
		base.KeepAspect = flags.KeepAspect
	}
	if set["profile"] {
		base.ColorProfile = flags.ColorProfile
	}
	return base
}

func parseSize(value string) (int, int, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(value)), "x")
	if !ok {
		return 0, 0, fmt.Errorf("invalid -resize %q, want WxH", value)
	}
	width, errW := strconv.Atoi(w)
	height, errH := strconv.Atoi(h)
	if errW != nil || errH != nil || width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("invalid -resize %q, want WxH", value)
	}
	return width, height, nil
}

func formatIDs() []string {
	all := formats.Default().All()
	ids := make([]string, 0, len(all))
	for _, f := range all {
		ids = append(ids, f.ID)
	}
	return ids
}

// confirm asks a yes/no question on stdin; anything but y/yes is no.
func confirm(stdin io.Reader, stdout io.Writer, question string) bool {
	fmt.Fprintf(stdout, "%s [y/N] ", yellow(question))
	answer, _ := bufio.NewReader(stdin).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
