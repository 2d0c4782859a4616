package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"gm-batch-converter/internal/batch"
	"gm-batch-converter/internal/config"
	"gm-batch-converter/internal/diagnostics"
	"gm-batch-converter/internal/domain"
	"gm-batch-converter/internal/formats"
	"gm-batch-converter/internal/gm"
	"gm-batch-converter/internal/jobs"
	"gm-batch-converter/internal/logging"
	"gm-batch-converter/internal/scan"
	"gm-batch-converter/internal/watch"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

const (
	batchEventName = "batch:event"
	inputEventName = "input:changed"
)

// App wires configuration, batch state, the gm runner, and UI runtime callbacks.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Jobs        *jobs.Manager
	Converter   batch.Converter
	Planner     planner
	Diagnostics domain.DiagnosticReport
	assets      fs.FS
	checker     *diagnostics.Checker
	installer   *installer
	watcher     inputWatcher
	log         logrus.FieldLogger
	closeLog    func() error
	mkdirAll    func(path string, perm os.FileMode) error

	mu     sync.Mutex
	state  uiState
	events *jobs.EventBus
}

// uiState is everything the controller mutates between bound calls.
// Guarded by App.mu.
type uiState struct {
	runtimeCtx    context.Context
	activeBatchID string
	pending       []domain.ConversionJob
	cancel        context.CancelFunc
	lastSummary   *domain.BatchSummary
}

// planner scans the input directory into conversion jobs.
type planner interface {
	Plan(req batch.Request) (domain.BatchPlan, error)
}

// inputWatcher follows the selected input directory.
type inputWatcher interface {
	Watch(dir string, recursive bool) error
	Close() error
}

// InputChange is pushed on input:changed whenever the image count changes.
type InputChange struct {
	Dir   string `json:"dir"`
	Count int    `json:"count"`
}

// New builds the application with persisted settings and startup diagnostics.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user home: %w", err)
	}
	if err := ensureLocalBinOnPATH(homeDir); err != nil {
		return nil, fmt.Errorf("prepare local tool path: %w", err)
	}

	appDir := config.AppDir(homeDir)
	log, closeLog, err := logging.New(logging.Options{
		File: filepath.Join(appDir, "logs", "app.log"),
	})
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}

	store := config.NewJSONStore(filepath.Join(appDir, "settings.json"))
	settings, err := store.Load()
	if err != nil {
		_ = closeLog()
		return nil, fmt.Errorf("load settings: %w", err)
	}
	settings = config.Normalize(settings)

	runner := gm.NewRunner()
	checker := diagnostics.NewChecker(runner)
	report := checker.Run(settings)
	scanner := scan.NewScanner(formats.Default())

	app := &App{
		Settings:    settings,
		Store:       store,
		Jobs:        jobs.NewManager(),
		Converter:   runner,
		Planner:     batch.NewPlanner(scanner),
		Diagnostics: report,
		assets:      assets,
		checker:     checker,
		installer:   newInstaller(),
		log:         log,
		closeLog:    closeLog,
		mkdirAll:    os.MkdirAll,
		events:      jobs.NewEventBus(2000),
	}
	app.watcher = watch.New(scanner, app.publishInputChange, log)

	log.WithFields(logrus.Fields{
		"settings": store.Path(),
		"failures": report.HasFailures,
		"gm":       report.ToolVersion,
	}).Info("application initialized")
	return app, nil
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "GM Batch Converter",
		Width:       1100,
		Height:      760,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown:  a.Shutdown,
		Bind:        []interface{}{a},
	})
}

// Startup stores Wails runtime context and starts watching the input directory.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	a.state.runtimeCtx = ctx
	settings := a.Settings
	a.mu.Unlock()

	a.watchInput(settings)
}

// Shutdown cancels a running batch and releases the watcher and log file.
func (a *App) Shutdown(ctx context.Context) {
	a.mu.Lock()
	cancel := a.state.cancel
	a.state.runtimeCtx = nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if a.watcher != nil {
		_ = a.watcher.Close()
	}
	if a.closeLog != nil {
		_ = a.closeLog()
	}
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Diagnostics
}

// RefreshDiagnostics reloads settings and reruns dependency checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}
	return a.refreshDiagnosticsFromSettings(config.Normalize(settings)), nil
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	settings = config.Normalize(settings)

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings, then refreshes diagnostics
// and the input watcher.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := config.Normalize(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.mu.Lock()
	previous := a.Settings
	a.mu.Unlock()

	a.refreshDiagnosticsFromSettings(normalized)
	if previous.InputDir != normalized.InputDir || previous.Recursive != normalized.Recursive {
		a.watchInput(normalized)
	}
	return normalized, nil
}

// ListFormats returns the output formats offered by the format selector.
func (a *App) ListFormats() []domain.FormatOption {
	return formats.Default().All()
}

// PickInputDirectory opens a native directory picker and remembers the choice.
func (a *App) PickInputDirectory() (string, error) {
	return a.pickDirectory("Select input directory", func(s *domain.Settings) *string {
		return &s.InputDir
	})
}

// PickOutputDirectory opens a native directory picker and remembers the choice.
func (a *App) PickOutputDirectory() (string, error) {
	return a.pickDirectory("Select output directory", func(s *domain.Settings) *string {
		return &s.OutputDir
	})
}

// pickDirectory shows a directory dialog for the settings field selected by
// field and persists the choice.
func (a *App) pickDirectory(title string, field func(*domain.Settings) *string) (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	a.mu.Lock()
	settings := a.Settings
	a.mu.Unlock()

	path, err := wailsruntime.OpenDirectoryDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:            title,
		DefaultDirectory: existingDir(*field(&settings)),
	})
	if err != nil {
		return "", err
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}

	*field(&settings) = path
	if _, err := a.SaveSettings(settings); err != nil {
		return "", err
	}
	return path, nil
}

// OpenOutputFolder opens the given path (or configured output dir) in file manager.
func (a *App) OpenOutputFolder(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		a.mu.Lock()
		target = a.Settings.OutputDir
		a.mu.Unlock()
	}
	if target == "" {
		return fmt.Errorf("output path is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}

	return openInFileManager(openPath)
}

// PlanConversion previews the jobs of a Convert click and any outputs that
// would be overwritten.
func (a *App) PlanConversion() (domain.BatchPlan, error) {
	settings, err := a.loadRunnableSettings()
	if err != nil {
		return domain.BatchPlan{}, err
	}
	return a.Planner.Plan(batch.RequestFromSettings(settings))
}

// StartConversion plans the batch and runs it asynchronously. With the ask
// policy, existing outputs fail with *batch.OverwriteConflictError until the
// call is repeated with confirmOverwrite set.
func (a *App) StartConversion(confirmOverwrite bool) (domain.Batch, error) {
	if a.Jobs.IsRunning() {
		return domain.Batch{}, jobs.ErrBatchAlreadyRunning
	}

	settings, err := a.loadRunnableSettings()
	if err != nil {
		return domain.Batch{}, err
	}

	if _, err := a.Converter.CheckTool(); err != nil {
		a.publishEvent(jobs.Event{Type: jobs.EventTypeError, Status: domain.BatchStatusFailed, Message: err.Error()})
		return domain.Batch{}, err
	}

	plan, err := a.Planner.Plan(batch.RequestFromSettings(settings))
	if err != nil {
		return domain.Batch{}, err
	}
	run, skip, err := batch.Schedule(plan, settings.Overwrite, confirmOverwrite)
	if err != nil {
		return domain.Batch{}, err
	}
	if len(run) > 0 {
		if err := a.mkdir(settings.OutputDir); err != nil {
			return domain.Batch{}, &scan.DirectoryNotFoundError{Path: settings.OutputDir, Err: err}
		}
	}

	// The batch becomes visible as running and cancellable in one step.
	batchID := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	if err := a.Jobs.Start(batchID, len(plan.Jobs)); err != nil {
		a.mu.Unlock()
		cancel()
		return domain.Batch{}, err
	}
	a.Settings = settings
	a.state.activeBatchID = batchID
	a.state.pending = plan.Jobs
	a.state.cancel = cancel
	a.state.lastSummary = nil
	a.mu.Unlock()

	a.publishEvent(jobs.Event{
		BatchID: batchID,
		Type:    jobs.EventTypeStatus,
		Status:  domain.BatchStatusConverting,
		Message: fmt.Sprintf("Converting %d files to %s", len(plan.Jobs), settings.Format),
		Total:   len(plan.Jobs),
	})

	work := batch.Work{
		ID:      batchID,
		Jobs:    run,
		Skip:    skip,
		Options: batch.OptionsFromSettings(settings),
	}
	go a.runBatch(ctx, work, settings.Workers)
	return a.Jobs.Current(), nil
}

// CancelConversion stops scheduling new jobs and kills in-flight gm processes.
// The batch leaves converting once every job has reported.
func (a *App) CancelConversion() error {
	a.mu.Lock()
	cancel := a.state.cancel
	batchID := a.state.activeBatchID
	a.mu.Unlock()

	if cancel == nil {
		return jobs.ErrNoRunningBatch
	}
	if err := a.Jobs.RequireRunning(); err != nil {
		return err
	}

	cancel()
	a.publishEvent(jobs.Event{
		BatchID: batchID,
		Type:    jobs.EventTypeStatus,
		Status:  domain.BatchStatusConverting,
		Message: "Cancellation requested",
	})
	return nil
}

// CurrentBatch returns the current batch snapshot.
func (a *App) CurrentBatch() domain.Batch {
	return a.Jobs.Current()
}

// BatchEvents returns all events with sequence greater than sinceSeq.
func (a *App) BatchEvents(sinceSeq int64) []jobs.Event {
	return a.events.Since(sinceSeq)
}

// PendingJobs returns the jobs of the running batch that have not reported a
// result yet, for the queue view.
func (a *App) PendingJobs() []domain.ConversionJob {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.ConversionJob(nil), a.state.pending...)
}

func (a *App) dropPending(batchID, jobID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state.activeBatchID != batchID {
		return
	}
	for i, job := range a.state.pending {
		if job.ID == jobID {
			a.state.pending = append(a.state.pending[:i:i], a.state.pending[i+1:]...)
			return
		}
	}
}

// LastSummary returns the summary of the last finished batch, if any.
func (a *App) LastSummary() *domain.BatchSummary {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state.lastSummary == nil {
		return nil
	}
	summary := *a.state.lastSummary
	return &summary
}

// DismissSummary returns a finished batch to idle.
func (a *App) DismissSummary() (domain.Batch, error) {
	if err := a.Jobs.Reset(); err != nil {
		return domain.Batch{}, err
	}
	return a.Jobs.Current(), nil
}

// runBatch executes work and maps the outcome to batch state and events.
func (a *App) runBatch(ctx context.Context, work batch.Work, workers int) {
	executor := batch.NewExecutor(a.Converter, workers, a.logger())
	summary, err := executor.Run(ctx, work, func(result domain.ConversionResult, progress batch.Progress, text string) {
		a.Jobs.Progress(work.ID, progress.Completed, progress.Failed, progress.Skipped)
		a.dropPending(work.ID, result.Job.ID)
		a.publishEvent(jobs.Event{
			BatchID:    work.ID,
			Type:       jobs.EventTypeLog,
			Message:    text,
			JobID:      result.Job.ID,
			InputPath:  result.Job.InputPath,
			OutputPath: result.Job.OutputPath,
			ExitCode:   result.ExitCode,
			Success:    result.Success,
		})
		a.publishEvent(jobs.Event{
			BatchID:   work.ID,
			Type:      jobs.EventTypeProgress,
			Completed: progress.Completed,
			Total:     progress.Total,
			Failed:    progress.Failed,
		})
	})
	if err != nil {
		_ = a.Jobs.Finish(work.ID, domain.BatchStatusFailed)
		a.publishEvent(jobs.Event{
			BatchID: work.ID,
			Type:    jobs.EventTypeError,
			Status:  domain.BatchStatusFailed,
			Message: err.Error(),
		})
		a.publishStatus(work.ID, domain.BatchStatusFailed, "Batch failed")
		a.clearActiveBatch(work.ID, nil)
		a.showDialog(wailsruntime.ErrorDialog, "Conversion failed", err.Error())
		return
	}

	if err := a.Jobs.Finish(work.ID, summary.Status); err != nil {
		a.logger().WithError(err).WithField("batch", work.ID).Warn("finish batch")
	}

	a.clearActiveBatch(work.ID, &summary)

	a.publishEvent(jobs.Event{
		BatchID:   work.ID,
		Type:      jobs.EventTypeSummary,
		Status:    summary.Status,
		Message:   summary.Message,
		Completed: summary.Succeeded,
		Total:     summary.Total,
		Failed:    len(summary.Failed),
		Summary:   &summary,
	})
	a.publishStatus(work.ID, summary.Status, summary.Message)

	dialogType := wailsruntime.InfoDialog
	if summary.Status == domain.BatchStatusPartialFailure {
		dialogType = wailsruntime.WarningDialog
	}
	a.showDialog(dialogType, "Conversion finished", batch.SummaryText(summary))
}

// loadRunnableSettings loads settings and rejects a Convert click with an
// empty input directory, output directory or format.
func (a *App) loadRunnableSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	settings = config.Normalize(settings)

	switch {
	case settings.InputDir == "":
		return domain.Settings{}, errors.New("input directory is not selected")
	case settings.OutputDir == "":
		return domain.Settings{}, errors.New("output directory is not selected")
	case settings.Format == "":
		return domain.Settings{}, errors.New("output format is not selected")
	}
	return settings, nil
}

// publishStatus sends a normalized status event.
func (a *App) publishStatus(batchID string, status domain.BatchStatus, message string) {
	a.publishEvent(jobs.Event{
		BatchID: batchID,
		Type:    jobs.EventTypeStatus,
		Status:  status,
		Message: message,
	})
}

// publishEvent stores event history and emits runtime push notifications.
func (a *App) publishEvent(event jobs.Event) {
	published := a.events.Publish(event)

	a.mu.Lock()
	ctx := a.state.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, batchEventName, published)
	}
}

// publishInputChange forwards watcher counts to the UI.
func (a *App) publishInputChange(dir string, count int) {
	a.mu.Lock()
	ctx := a.state.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, inputEventName, InputChange{Dir: dir, Count: count})
	}
}

func (a *App) watchInput(settings domain.Settings) {
	if a.watcher == nil {
		return
	}
	dir := settings.InputDir
	if existingDir(dir) == "" {
		dir = ""
	}
	if err := a.watcher.Watch(dir, settings.Recursive); err != nil {
		a.logger().WithError(err).WithField("dir", dir).Warn("watch input directory")
	}
}

func (a *App) showDialog(kind wailsruntime.DialogType, title, message string) {
	a.mu.Lock()
	ctx := a.state.runtimeCtx
	a.mu.Unlock()
	if ctx == nil {
		return
	}
	if _, err := wailsruntime.MessageDialog(ctx, wailsruntime.MessageDialogOptions{
		Type:    kind,
		Title:   title,
		Message: message,
	}); err != nil {
		a.logger().WithError(err).Debug("summary dialog")
	}
}

// clearActiveBatch records the summary and clears cancellation handles for
// finished batch IDs.
func (a *App) clearActiveBatch(batchID string, summary *domain.BatchSummary) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state.activeBatchID == batchID {
		if summary != nil {
			a.state.lastSummary = summary
		}
		if a.state.cancel != nil {
			a.state.cancel()
		}
		a.state.activeBatchID = ""
		a.state.pending = nil
		a.state.cancel = nil
	}
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.state.runtimeCtx, nil
}

func (a *App) logger() logrus.FieldLogger {
	if a.log == nil {
		return logging.Discard()
	}
	return a.log
}

func (a *App) mkdir(dir string) error {
	if a.mkdirAll == nil {
		return os.MkdirAll(dir, 0o755)
	}
	return a.mkdirAll(dir, 0o755)
}

func existingDir(path string) string {
	if path == "" {
		return ""
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return path
	}
	return ""
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
