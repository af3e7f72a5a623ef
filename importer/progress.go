package importer

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/pterm/pterm"
)

// Emitter receives progress while a dataset is parsed and loaded.
//
// Implementations include:
// - CLIEmitter: pretty-printed terminal output using pterm
// - JSONEmitter: one JSON event per line, for scripts
// - NopEmitter: discards everything
type Emitter interface {
	// EmitStage announces a phase such as "read", "parse" or "load"
	EmitStage(stage string, message string)

	// EmitProgress reports a count; metadata["type"] names what was counted
	EmitProgress(count int, metadata map[string]interface{})

	EmitComplete(summary map[string]interface{})
	EmitError(stage string, err error)
	EmitInfo(message string)
}

// ProgressEvent is the line format written by JSONEmitter
type ProgressEvent struct {
	Type      string                 `json:"type"` // "stage", "progress", "complete", "error", "info"
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// CLIEmitter prints progress to w. Callers keep stdout for results and
// hand it stderr.
type CLIEmitter struct {
	w         io.Writer
	verbosity int
}

// NewCLIEmitter creates a terminal emitter writing to w
func NewCLIEmitter(w io.Writer, verbosity int) *CLIEmitter {
	return &CLIEmitter{w: w, verbosity: verbosity}
}

func (e *CLIEmitter) EmitStage(stage string, message string) {
	pterm.Fprintln(e.w, pterm.Sprintf("🔄 %s: %s", pterm.LightCyan(stage), message))
}

func (e *CLIEmitter) EmitProgress(count int, metadata map[string]interface{}) {
	itemType, ok := metadata["type"].(string)
	if !ok {
		itemType = "items"
	}
	pterm.Fprintln(e.w, pterm.Sprintf("✅ Loaded %s %s", pterm.Green(count), itemType))
}

func (e *CLIEmitter) EmitComplete(summary map[string]interface{}) {
	pterm.Fprintln(e.w, pterm.Success.Sprint("Import complete"))
	if e.verbosity >= 1 {
		for key, value := range summary {
			pterm.Fprintln(e.w, pterm.Sprintf("  %s: %v", key, value))
		}
	}
}

func (e *CLIEmitter) EmitError(stage string, err error) {
	pterm.Fprintln(e.w, pterm.Error.Sprintf("Error in %s: %v", stage, err))
}

func (e *CLIEmitter) EmitInfo(message string) {
	if e.verbosity >= 1 {
		pterm.Fprintln(e.w, pterm.Info.Sprint(message))
	}
}

// JSONEmitter writes newline-delimited ProgressEvents
type JSONEmitter struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

func NewJSONEmitter(w io.Writer) *JSONEmitter {
	return &JSONEmitter{encoder: json.NewEncoder(w)}
}

func (e *JSONEmitter) emit(typ string, data map[string]interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	// Progress output is best effort; a broken pipe must not fail the import
	_ = e.encoder.Encode(ProgressEvent{Type: typ, Timestamp: time.Now(), Data: data})
}

func (e *JSONEmitter) EmitStage(stage string, message string) {
	e.emit("stage", map[string]interface{}{"stage": stage, "message": message})
}

func (e *JSONEmitter) EmitProgress(count int, metadata map[string]interface{}) {
	data := map[string]interface{}{"count": count}
	for k, v := range metadata {
		data[k] = v
	}
	e.emit("progress", data)
}

func (e *JSONEmitter) EmitComplete(summary map[string]interface{}) {
	e.emit("complete", summary)
}

func (e *JSONEmitter) EmitError(stage string, err error) {
	e.emit("error", map[string]interface{}{"stage": stage, "error": err.Error()})
}

func (e *JSONEmitter) EmitInfo(message string) {
	e.emit("info", map[string]interface{}{"message": message})
}

// NopEmitter discards all progress
type NopEmitter struct{}

func (NopEmitter) EmitStage(string, string)                {}
func (NopEmitter) EmitProgress(int, map[string]interface{}) {}
func (NopEmitter) EmitComplete(map[string]interface{})      {}
func (NopEmitter) EmitError(string, error)                  {}
func (NopEmitter) EmitInfo(string)                          {}
