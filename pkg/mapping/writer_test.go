package mapping

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/schema-mapper/pkg/config"
	"github.com/ekaya-inc/schema-mapper/pkg/models"
)

func newTestWriter(t *testing.T) (*Writer, *config.Config) {
	t.Helper()
	root := t.TempDir()

	settings := filepath.Join(root, "mapping.yaml")
	require.NoError(t, os.WriteFile(settings, []byte("env: local\n"), 0o644))

	cfg := testConfig()
	cfg.Generation.OutputDir = filepath.Join(root, "output")
	cfg.Generation.JSONOnlyOutputDir = filepath.Join(root, "distilled")
	cfg.Generation.CopySettings = true

	w, err := NewWriter(cfg, settings)
	require.NoError(t, err)
	return w, cfg
}

func TestWriter_CopiesSettingsIntoRunDir(t *testing.T) {
	w, _ := newTestWriter(t)

	data, err := os.ReadFile(filepath.Join(w.RunDir(), "mapping.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "env: local\n", string(data))
}

func TestWriter_WriteSourceResult(t *testing.T) {
	w, cfg := newTestWriter(t)

	res := &DBResult{
		SourceDBID: "db1",
		TargetDBID: "warehouse",
		Records: []models.MappingRecord{{
			SourceDBID:     "db1",
			SourceQuestion: "q",
			SourceQuery:    "SELECT 1",
			TargetDBID:     "warehouse",
			TargetQuestion: "m",
			TargetQuery:    "SELECT 1 FROM facilities",
		}},
	}
	require.NoError(t, w.WriteSourceResult(cfg.Data[0], res))

	// Full-analysis copy in the run directory, namespaced per pipeline.
	full, err := os.ReadFile(filepath.Join(w.RunDir(), "internal_warehouse", "db1.json"))
	require.NoError(t, err)
	var gotFull DBResult
	require.NoError(t, json.Unmarshal(full, &gotFull))
	assert.Equal(t, "db1", gotFull.SourceDBID)
	require.Len(t, gotFull.Records, 1)

	// Distilled records under <dataset>/<model>/<target_db>/.
	distilled := filepath.Join(cfg.Generation.JSONOnlyOutputDir,
		"internal", "test-model", "warehouse", "response_db1.json")
	data, err := os.ReadFile(distilled)
	require.NoError(t, err)
	var records []models.MappingRecord
	require.NoError(t, json.Unmarshal(data, &records))
	require.Len(t, records, 1)
	assert.Equal(t, "SELECT 1 FROM facilities", records[0].TargetQuery)
}

func TestWriter_AppendTranscript(t *testing.T) {
	w, _ := newTestWriter(t)

	req := &Request{SourceDBID: "db1", TargetDataset: "internal", TargetDBID: "warehouse"}
	require.NoError(t, w.AppendTranscript(req, TranscriptEntry{BatchIndex: 0, Attempt: 1, Prompt: "p1"}))
	require.NoError(t, w.AppendTranscript(req, TranscriptEntry{BatchIndex: 0, Attempt: 2, Prompt: "p1", Error: "timeout"}))

	data, err := os.ReadFile(filepath.Join(w.RunDir(), "internal_warehouse", "db1.jsonl"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var second TranscriptEntry
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, 2, second.Attempt)
	assert.Equal(t, "timeout", second.Error)
}

func TestWriter_RunArtifacts(t *testing.T) {
	w, _ := newTestWriter(t)

	tracker := NewTracker()
	tracker.Add("db1", models.RunStats{Requests: 3, RecordsEmitted: 10})
	tracker.Skip(SkippedPrompt{SourceDBID: "db1", BatchIndex: 2, Questions: []string{"q"}, Reason: "exhausted"})
	tracker.MarkIncomplete("max_fail_limit reached")

	require.NoError(t, w.WriteRunArtifacts(tracker))

	var stats models.RunStats
	readInto(t, filepath.Join(w.RunDir(), "report", "stats.json"), &stats)
	assert.Equal(t, 3, stats.Requests)
	assert.True(t, stats.Incomplete)

	var perDB map[string]models.RunStats
	readInto(t, filepath.Join(w.RunDir(), "report", "stats_per_db.json"), &perDB)
	assert.Equal(t, 10, perDB["db1"].RecordsEmitted)

	var skipped []SkippedPrompt
	readInto(t, filepath.Join(w.RunDir(), "report", "errors.json"), &skipped)
	require.Len(t, skipped, 1)

	var status RunStatus
	readInto(t, filepath.Join(w.RunDir(), "run_status.json"), &status)
	assert.Equal(t, w.RunID(), status.RunID)
	assert.Equal(t, "incomplete", status.Status)
	assert.Equal(t, "max_fail_limit reached", status.StopReason)
}

func readInto(t *testing.T, path string, v any) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}
