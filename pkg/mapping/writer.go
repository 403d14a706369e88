package mapping

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/schema-mapper/pkg/config"
	"github.com/ekaya-inc/schema-mapper/pkg/models"
)

// Writer persists generation output in two shapes: a run-timestamped
// full-analysis directory (records, transcripts, stats, errors, settings
// copy) and an optional distilled directory holding only the mapping
// records, laid out for the evaluation stages to consume.
type Writer struct {
	cfg        *config.Config
	configPath string
	runDir     string
	runID      string

	mu sync.Mutex
}

// NewWriter creates the run directory <output>/<model>/<timestamp> and
// copies the active settings file into it when configured to.
func NewWriter(cfg *config.Config, configPath string) (*Writer, error) {
	runDir := filepath.Join(cfg.Generation.OutputDir, cfg.Model.Name, time.Now().Format("20060102_150405"))
	if err := os.MkdirAll(filepath.Join(runDir, "report"), 0o755); err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}

	w := &Writer{cfg: cfg, configPath: configPath, runDir: runDir, runID: uuid.NewString()}
	if cfg.Generation.CopySettings && configPath != "" {
		if err := w.copySettings(); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// RunDir returns the full-analysis directory for this run.
func (w *Writer) RunDir() string { return w.runDir }

// RunID identifies this run across its artifacts. The timestamped
// directory name is for humans; the id is for automation correlating a
// run's distilled output with its full analysis.
func (w *Writer) RunID() string { return w.runID }

func (w *Writer) copySettings() error {
	src, err := os.Open(w.configPath)
	if err != nil {
		return fmt.Errorf("open settings for copy: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(filepath.Join(w.runDir, filepath.Base(w.configPath)))
	if err != nil {
		return fmt.Errorf("copy settings: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("copy settings: %w", err)
	}
	return nil
}

// pipelineDir namespaces run artifacts per pipeline so two pipelines with
// overlapping source db ids never collide.
func (w *Writer) pipelineDir(targetDataset, targetDBID string) (string, error) {
	dir := filepath.Join(w.runDir, targetDataset+"_"+targetDBID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create pipeline directory: %w", err)
	}
	return dir, nil
}

// AppendTranscript appends one exchange to the source db's transcript, one
// JSON object per line.
func (w *Writer) AppendTranscript(req *Request, entry TranscriptEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	dir, err := w.pipelineDir(req.TargetDataset, req.TargetDBID)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(dir, req.SourceDBID+".jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode transcript entry: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append transcript: %w", err)
	}
	return nil
}

// WriteSourceResult persists one source db's full result into the run
// directory and, when a distilled directory is configured, its bare
// records as response_<source_db>.json under
// <distilled>/<target_dataset>/<model>/<target_db>/.
func (w *Writer) WriteSourceResult(pipeline config.PipelineConfig, res *DBResult) error {
	dir, err := w.pipelineDir(pipeline.TargetDataset, pipeline.TargetDBID)
	if err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, res.SourceDBID+".json"), res); err != nil {
		return err
	}

	if dir := w.cfg.Generation.JSONOnlyOutputDir; dir != "" {
		distilled := filepath.Join(dir, pipeline.TargetDataset, w.cfg.Model.Name, pipeline.TargetDBID)
		if err := os.MkdirAll(distilled, 0o755); err != nil {
			return fmt.Errorf("create distilled directory: %w", err)
		}
		records := res.Records
		if records == nil {
			records = []models.MappingRecord{}
		}
		if err := writeJSON(filepath.Join(distilled, "response_"+res.SourceDBID+".json"), records); err != nil {
			return err
		}
	}
	return nil
}

// RunStatus is the machine-readable outcome marker written at the end of a
// run so downstream automation can tell a clean finish from a budget stop.
type RunStatus struct {
	RunID      string `json:"run_id"`
	Status     string `json:"status"` // completed | incomplete
	StopReason string `json:"stop_reason,omitempty"`
	FinishedAt string `json:"finished_at"`
}

// WriteRunArtifacts writes the three-level stats report, the abandoned
// prompt list and the run status marker.
func (w *Writer) WriteRunArtifacts(tracker *Tracker) error {
	overall := tracker.Overall()

	reportDir := filepath.Join(w.runDir, "report")
	if err := writeJSON(filepath.Join(reportDir, "stats.json"), overall); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(reportDir, "stats_per_db.json"), tracker.PerDB()); err != nil {
		return err
	}

	skipped := tracker.Skipped()
	if skipped == nil {
		skipped = []SkippedPrompt{}
	}
	if err := writeJSON(filepath.Join(reportDir, "errors.json"), skipped); err != nil {
		return err
	}

	status := RunStatus{RunID: w.runID, Status: "completed", FinishedAt: time.Now().Format(time.RFC3339)}
	if overall.Incomplete {
		status.Status = "incomplete"
		status.StopReason = overall.StopReason
	}
	return writeJSON(filepath.Join(w.runDir, "run_status.json"), status)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

var _ Sink = (*Writer)(nil)
