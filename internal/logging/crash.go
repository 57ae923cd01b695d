package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"
)

// CrashReport describes a recovered panic.
type CrashReport struct {
	Timestamp  time.Time         `json:"timestamp"`
	Component  string            `json:"component,omitempty"`
	Operation  string            `json:"operation,omitempty"`
	GOOS       string            `json:"goos"`
	GOARCH     string            `json:"goarch"`
	PanicValue string            `json:"panic_value"`
	StackTrace string            `json:"stack_trace"`
	Context    map[string]string `json:"context,omitempty"`
}

// CrashHandler turns panics into logged errors and optional crash dumps so
// that one bad event never takes the daemon down.
type CrashHandler struct {
	logger   *Logger
	crashDir string
	onCrash  func(CrashReport)
}

// NewCrashHandler creates a handler. An empty crashDir disables dump files.
func NewCrashHandler(logger *Logger, crashDir string) *CrashHandler {
	if logger == nil {
		logger = Default()
	}
	if crashDir != "" {
		os.MkdirAll(crashDir, 0750)
	}
	return &CrashHandler{logger: logger, crashDir: crashDir}
}

// OnCrash registers a callback invoked after a panic has been handled.
func (h *CrashHandler) OnCrash(fn func(CrashReport)) {
	h.onCrash = fn
}

// DefaultCrashDir returns the directory crash dumps are written to.
func DefaultCrashDir() string {
	return filepath.Join(filepath.Dir(defaultLogPath()), "crashes")
}

// Recover runs fn and converts a panic into a crash report. It reports
// whether fn completed normally.
func (h *CrashHandler) Recover(op string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			h.HandlePanic(op, r, nil)
			ok = false
		}
	}()
	fn()
	return true
}

// HandlePanic logs a recovered panic value and writes a crash dump.
func (h *CrashHandler) HandlePanic(op string, value any, ctx map[string]string) {
	report := CrashReport{
		Timestamp:  time.Now().UTC(),
		Component:  h.logger.config.Component,
		Operation:  op,
		GOOS:       runtime.GOOS,
		GOARCH:     runtime.GOARCH,
		PanicValue: fmt.Sprintf("%v", value),
		StackTrace: string(debug.Stack()),
		Context:    ctx,
	}

	h.logger.Error("recovered panic",
		"op", op,
		"panic", report.PanicValue,
	)

	if h.crashDir != "" {
		if err := h.writeCrashDump(report); err != nil {
			h.logger.Warn("write crash dump", "error", err)
		}
	}

	if h.onCrash != nil {
		h.onCrash(report)
	}
}

func (h *CrashHandler) writeCrashDump(report CrashReport) error {
	name := fmt.Sprintf("crash-%s.json", report.Timestamp.Format("20060102-150405.000000"))
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal crash report: %w", err)
	}
	if err := os.WriteFile(filepath.Join(h.crashDir, name), data, 0640); err != nil {
		return fmt.Errorf("write crash report: %w", err)
	}
	return nil
}

// CrashReports loads all crash dumps from the crash directory.
func (h *CrashHandler) CrashReports() ([]CrashReport, error) {
	if h.crashDir == "" {
		return nil, nil
	}
	files, err := filepath.Glob(filepath.Join(h.crashDir, "crash-*.json"))
	if err != nil {
		return nil, err
	}

	reports := make([]CrashReport, 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			continue
		}
		var report CrashReport
		if err := json.Unmarshal(data, &report); err != nil {
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}
