package gm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/h2non/filetype"

	"gm-batch-converter/internal/domain"
	"gm-batch-converter/internal/formats"
)

// DefaultTool is the GraphicsMagick executable looked up on PATH.
const DefaultTool = "gm"

// processWaitDelay bounds how long Wait blocks on output pipes after the
// process has exited or been killed.
const processWaitDelay = 5 * time.Second

// ErrToolNotFound matches every ToolNotFoundError via errors.Is.
var ErrToolNotFound = errors.New("graphicsmagick not found")

// ToolNotFoundError reports that the gm executable is not on PATH.
type ToolNotFoundError struct {
	Tool string
	Err  error
}

// Error formats the missing tool for logs and UI.
func (e *ToolNotFoundError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("GraphicsMagick (%s) not found on PATH", e.Tool)
}

// Is makes errors.Is(err, ErrToolNotFound) succeed.
func (e *ToolNotFoundError) Is(target error) bool {
	return target == ErrToolNotFound
}

// Unwrap exposes the lookup error.
func (e *ToolNotFoundError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// CommandLog captures one external command invocation result.
type CommandLog struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exitCode"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
}

// ConversionError is a single-file failure; the batch carries on after it.
type ConversionError struct {
	Job        domain.ConversionJob `json:"job"`
	Message    string               `json:"message"`
	CommandLog CommandLog           `json:"commandLog"`
	Err        error                `json:"-"`
}

// Error formats the failed file together with the gm exit status.
func (e *ConversionError) Error() string {
	if e == nil {
		return ""
	}
	name := filepath.Base(e.Job.InputPath)
	if e.CommandLog.Command == "" {
		return fmt.Sprintf("%s: %s", name, e.Message)
	}

	msg := fmt.Sprintf("%s: %s (exit=%d)", name, e.Message, e.CommandLog.ExitCode)
	if stderr := firstLine(e.CommandLog.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *ConversionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// commandResult is an internal process execution response.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

// Run executes one command and captures stdout/stderr and exit code. The
// process is killed when ctx is cancelled and always reaped before returning.
func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = processWaitDelay

	err := cmd.Run()
	result := commandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: 0,
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}

	return result, nil
}

// Runner invokes gm convert for individual jobs.
type Runner struct {
	tool     string
	runner   commandRunner
	lookPath func(file string) (string, error)
	stat     func(name string) (os.FileInfo, error)
	mkdirAll func(path string, perm os.FileMode) error
	sniff    func(path string) (string, error)
}

// NewRunner constructs the production runner with OS dependencies.
func NewRunner() *Runner {
	return &Runner{
		tool:     DefaultTool,
		runner:   &execRunner{},
		lookPath: exec.LookPath,
		stat:     os.Stat,
		mkdirAll: os.MkdirAll,
		sniff:    sniffMIME,
	}
}

// Tool returns the executable name this runner invokes.
func (r *Runner) Tool() string {
	return r.tool
}

// CheckTool resolves the gm executable on PATH.
func (r *Runner) CheckTool() (string, error) {
	path, err := r.lookPath(r.tool)
	if err != nil {
		return "", &ToolNotFoundError{Tool: r.tool, Err: err}
	}
	return path, nil
}

// Version runs "gm version" and returns its first line.
func (r *Runner) Version(ctx context.Context) (string, error) {
	if _, err := r.CheckTool(); err != nil {
		return "", err
	}

	res, err := r.runner.Run(ctx, r.tool, "version")
	if err != nil {
		return "", fmt.Errorf("run %s version: %w", r.tool, err)
	}
	if !strings.Contains(res.Stdout, "GraphicsMagick") {
		return "", &ToolNotFoundError{
			Tool: r.tool,
			Err:  fmt.Errorf("%s version did not report GraphicsMagick", r.tool),
		}
	}
	return firstLine(res.Stdout), nil
}

// Convert runs gm for one job and verifies the produced file.
func (r *Runner) Convert(ctx context.Context, job domain.ConversionJob, opts domain.ConvertOptions) (domain.ConversionResult, error) {
	started := time.Now()
	result := domain.ConversionResult{Job: job}

	if _, err := r.CheckTool(); err != nil {
		result.Error = err.Error()
		return result, err
	}

	if err := r.mkdirAll(filepath.Dir(job.OutputPath), 0o755); err != nil {
		convErr := &ConversionError{
			Job:     job,
			Message: fmt.Sprintf("cannot create output directory: %s", filepath.Dir(job.OutputPath)),
			Err:     err,
		}
		result.Error = convErr.Error()
		return result, convErr
	}

	args := BuildArgs(job, opts)
	res, runErr := r.runner.Run(ctx, r.tool, args...)
	result.Args = args
	result.ExitCode = res.ExitCode
	result.Stdout = res.Stdout
	result.Stderr = res.Stderr
	result.Duration = time.Since(started)

	log := CommandLog{
		Command:  r.tool,
		Args:     args,
		ExitCode: res.ExitCode,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
	}

	if runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			result.Error = ctxErr.Error()
			return result, ctxErr
		}
		convErr := &ConversionError{
			Job:        job,
			Message:    "gm convert failed",
			CommandLog: log,
			Err:        runErr,
		}
		result.Error = convErr.Error()
		return result, convErr
	}

	if err := r.verifyOutput(job); err != nil {
		convErr := &ConversionError{
			Job:        job,
			Message:    err.Error(),
			CommandLog: log,
			Err:        err,
		}
		result.Error = convErr.Error()
		return result, convErr
	}

	result.Success = true
	return result, nil
}

// verifyOutput checks that gm left a file of the requested type behind.
func (r *Runner) verifyOutput(job domain.ConversionJob) error {
	info, err := r.stat(job.OutputPath)
	if err != nil {
		return fmt.Errorf("gm completed but output file is missing: %w", err)
	}
	if info.Size() == 0 {
		return errors.New("gm completed but output file is empty")
	}

	option, ok := formats.Default().ForExtension(filepath.Ext(job.OutputPath))
	if !ok || option.MIME == "" || r.sniff == nil {
		return nil
	}

	mime, err := r.sniff(job.OutputPath)
	if err != nil {
		return fmt.Errorf("read output header: %w", err)
	}
	if mime != option.MIME {
		if mime == "" {
			mime = "unknown"
		}
		return fmt.Errorf("output is %s, expected %s", mime, option.MIME)
	}
	return nil
}

// sniffMIME identifies a file by its magic bytes.
func sniffMIME(path string) (string, error) {
	kind, err := filetype.MatchFile(path)
	if err != nil {
		return "", err
	}
	if kind == filetype.Unknown {
		return "", nil
	}
	return kind.MIME.Value, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// NewRunnerForTests constructs a runner with injectable dependencies.
func NewRunnerForTests(
	tool string,
	runner commandRunner,
	lookPath func(file string) (string, error),
	sniff func(path string) (string, error),
) *Runner {
	return &Runner{
		tool:     tool,
		runner:   runner,
		lookPath: lookPath,
		stat:     os.Stat,
		mkdirAll: os.MkdirAll,
		sniff:    sniff,
	}
}
