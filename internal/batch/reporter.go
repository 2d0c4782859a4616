package batch

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gm-batch-converter/internal/domain"
	"gm-batch-converter/internal/gm"
)

// Progress is the completed/total counter after one result.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Sink receives every result once, with its log text, in arrival order.
type Sink func(result domain.ConversionResult, progress Progress, text string)

// Reporter counts results and renders the log and the final summary.
type Reporter struct {
	mu       sync.Mutex
	batchID  string
	tool     string
	started  time.Time
	progress Progress
	failures []domain.FailedFile
	lines    []string
	sink     Sink
	reported map[string]struct{}
}

// NewReporter creates a reporter expecting total results.
func NewReporter(batchID, tool string, total int, sink Sink) *Reporter {
	return &Reporter{
		batchID:  batchID,
		tool:     tool,
		started:  time.Now(),
		progress: Progress{Total: total},
		failures: []domain.FailedFile{},
		sink:     sink,
		reported: make(map[string]struct{}, total),
	}
}

// Record counts one result and forwards it to the sink. A second result for
// the same job ID is dropped.
func (r *Reporter) Record(result domain.ConversionResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if result.Job.ID != "" {
		if _, seen := r.reported[result.Job.ID]; seen {
			return
		}
		r.reported[result.Job.ID] = struct{}{}
	}

	r.progress.Completed++
	switch {
	case result.Skipped:
		r.progress.Skipped++
	case !result.Success:
		r.progress.Failed++
		r.failures = append(r.failures, domain.FailedFile{
			InputPath: result.Job.InputPath,
			Reason:    result.Error,
		})
	}

	text := r.format(result)
	r.lines = append(r.lines, text)
	if r.sink != nil {
		r.sink(result, r.progress, text)
	}
}

// Progress returns the current counter.
func (r *Reporter) Progress() Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress
}

// Lines returns the log text recorded so far.
func (r *Reporter) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

// Done reports whether every expected result has arrived.
func (r *Reporter) Done() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress.Completed >= r.progress.Total
}

// Summary builds the terminal report.
func (r *Reporter) Summary(cancelled bool) domain.BatchSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.progress
	succeeded := p.Completed - p.Failed - p.Skipped
	summary := domain.BatchSummary{
		BatchID:   r.batchID,
		Total:     p.Total,
		Succeeded: succeeded,
		Skipped:   p.Skipped,
		Failed:    append([]domain.FailedFile{}, r.failures...),
		Duration:  time.Since(r.started),
	}

	switch {
	case cancelled:
		summary.Status = domain.BatchStatusCancelled
		summary.Message = fmt.Sprintf("Cancelled: %d/%d files converted", succeeded, p.Total)
	case p.Failed > 0:
		summary.Status = domain.BatchStatusPartialFailure
		summary.Message = fmt.Sprintf("%d/%d files converted, %d failed", succeeded, p.Total, p.Failed)
	case p.Total == 0:
		summary.Status = domain.BatchStatusSuccess
		summary.Message = "0 files to convert"
	default:
		summary.Status = domain.BatchStatusSuccess
		summary.Message = fmt.Sprintf("%d/%d files converted", succeeded, p.Total)
	}
	if p.Skipped > 0 {
		summary.Message += fmt.Sprintf(" (%d skipped)", p.Skipped)
	}

	return summary
}

// format renders one result the way the log view shows it. Called with mu held.
func (r *Reporter) format(result domain.ConversionResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d/%d] ", r.progress.Completed, r.progress.Total)

	switch {
	case result.Skipped:
		fmt.Fprintf(&b, "Skipped %s", filepath.Base(result.Job.InputPath))
		if result.Error != "" {
			fmt.Fprintf(&b, ": %s", result.Error)
		}
		return b.String()
	case len(result.Args) > 0:
		b.WriteString("Executing: ")
		b.WriteString(gm.CommandLine(r.tool, result.Args))
	default:
		fmt.Fprintf(&b, "%s", filepath.Base(result.Job.InputPath))
	}

	for _, stream := range []string{result.Stdout, result.Stderr} {
		if s := strings.TrimRight(stream, "\r\n"); s != "" {
			b.WriteString("\n")
			b.WriteString(s)
		}
	}

	if result.Success {
		fmt.Fprintf(&b, "\nOK %s (%s)", filepath.Base(result.Job.OutputPath), result.Duration.Round(time.Millisecond))
	} else {
		fmt.Fprintf(&b, "\nError: %s", result.Error)
	}
	return b.String()
}

// SummaryText renders a summary for the dialog and the CLI.
func SummaryText(s domain.BatchSummary) string {
	if len(s.Failed) == 0 {
		return s.Message
	}

	var b strings.Builder
	b.WriteString(s.Message)
	b.WriteString("\n\nFailed files:")
	for _, f := range s.Failed {
		fmt.Fprintf(&b, "\n- %s: %s", filepath.Base(f.InputPath), f.Reason)
	}
	return b.String()
}
