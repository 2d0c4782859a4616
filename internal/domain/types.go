package domain

import "time"

// BatchStatus tracks the lifecycle of one Convert action.
type BatchStatus string

const (
	BatchStatusIdle           BatchStatus = "idle"
	BatchStatusConverting     BatchStatus = "converting"
	BatchStatusSuccess        BatchStatus = "success"
	BatchStatusPartialFailure BatchStatus = "partial_failure"
	BatchStatusFailed         BatchStatus = "failed"
	BatchStatusCancelled      BatchStatus = "cancelled"
)

// OverwritePolicy decides what happens when an output file already exists.
type OverwritePolicy string

const (
	OverwriteAsk    OverwritePolicy = "ask"
	OverwriteAlways OverwritePolicy = "always"
	OverwriteSkip   OverwritePolicy = "skip"
)

// Settings contains user-selectable runtime configuration.
type Settings struct {
	InputDir          string          `json:"inputDir"`
	OutputDir         string          `json:"outputDir"`
	Format            string          `json:"format"`
	Quality           int             `json:"quality"`
	Recursive         bool            `json:"recursive"`
	PreserveStructure bool            `json:"preserveStructure"`
	Overwrite         OverwritePolicy `json:"overwrite"`
	Workers           int             `json:"workers"`
	Rotate            int             `json:"rotate"`
	Flip              bool            `json:"flip"`
	Flop              bool            `json:"flop"`
	ResizeEnabled     bool            `json:"resizeEnabled"`
	ResizeWidth       int             `json:"resizeWidth"`
	ResizeHeight      int             `json:"resizeHeight"`
	KeepAspect        bool            `json:"keepAspect"`
	ColorProfile      string          `json:"colorProfile,omitempty"`
}

// ConvertOptions holds the gm flags shared by every job of a batch.
type ConvertOptions struct {
	Quality      int    `json:"quality"`
	Resize       *Size  `json:"resize,omitempty"`
	KeepAspect   bool   `json:"keepAspect"`
	Rotate       int    `json:"rotate"`
	Flip         bool   `json:"flip"`
	Flop         bool   `json:"flop"`
	ColorProfile string `json:"colorProfile,omitempty"`
}

// Size is a resize target in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ConversionJob is one input file to output file unit of work.
type ConversionJob struct {
	ID           string `json:"id"`
	InputPath    string `json:"inputPath"`
	OutputPath   string `json:"outputPath"`
	TargetFormat string `json:"targetFormat"`
}

// ConversionResult is the outcome of running gm for one job.
type ConversionResult struct {
	Job      ConversionJob `json:"job"`
	Args     []string      `json:"args,omitempty"`
	ExitCode int           `json:"exitCode"`
	Stdout   string        `json:"stdout,omitempty"`
	Stderr   string        `json:"stderr,omitempty"`
	Success  bool          `json:"success"`
	Skipped  bool          `json:"skipped,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Batch is the snapshot of the current or last batch rendered by the UI.
type Batch struct {
	ID        string      `json:"id"`
	Status    BatchStatus `json:"status"`
	Total     int         `json:"total"`
	Completed int         `json:"completed"`
	Failed    int         `json:"failed"`
	Skipped   int         `json:"skipped"`
}

// FailedFile names one file that did not convert and why.
type FailedFile struct {
	InputPath string `json:"inputPath"`
	Reason    string `json:"reason"`
}

// BatchSummary is the terminal report of a batch.
type BatchSummary struct {
	BatchID   string        `json:"batchId"`
	Status    BatchStatus   `json:"status"`
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Skipped   int           `json:"skipped"`
	Failed    []FailedFile  `json:"failed"`
	Duration  time.Duration `json:"duration"`
	Message   string        `json:"message"`
}

// BatchPlan previews the jobs a Convert click would schedule.
type BatchPlan struct {
	Jobs      []ConversionJob `json:"jobs"`
	Conflicts []string        `json:"conflicts"`
}
