package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `env: local
model:
  provider: openai
  name: gpt-4o
  temperature: 0.3
judge:
  provider: anthropic
  name: claude-sonnet
generation:
  questions_per_prompt: 8
  max_retry_per_prompt: 4
  max_fail_limit: 20
  retry_sleep: 2s
  workers: 2
  source_questions_shuffle_seed: 42
  source_questions_limit: 100
evaluation:
  engine: sqlite3
  databases_directory: data/databases
  query_timeout: 15s
data:
  - source_dataset: spider
    target_dataset: internal
    target_db_id: warehouse
    source_db_ids: [schools, parks]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mapping.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("LLM_API_KEY", "sk-test")

	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", cfg.Model.Name)
	assert.Equal(t, "sk-test", cfg.Model.APIKey)
	assert.Equal(t, 8, cfg.Generation.QuestionsPerPrompt)
	assert.Equal(t, 2*time.Second, cfg.Generation.RetrySleep)
	assert.Equal(t, int64(42), cfg.Generation.ShuffleSeed)
	assert.Equal(t, 100, cfg.Generation.QuestionLimit)
	assert.Equal(t, "sqlite3", cfg.Evaluation.Engine)
	require.Len(t, cfg.Data, 1)
	assert.Equal(t, []string{"schools", "parks"}, cfg.Data[0].SourceDBIDs)

	// Unset required fields fall back to the default contract.
	assert.Equal(t, DefaultRequiredFields, cfg.Generation.RequiredFields)
}

func TestLoad_SecretNeverFromYAML(t *testing.T) {
	t.Setenv("LLM_API_KEY", "")

	yaml := validYAML + "\n"
	cfg, err := Load(writeConfig(t, yaml))
	require.NoError(t, err)
	assert.Empty(t, cfg.Model.APIKey)
}

func TestLoad_Defaults(t *testing.T) {
	minimal := `model:
  provider: openai
  name: gpt-4o
data:
  - source_dataset: spider
    target_dataset: internal
    target_db_id: warehouse
`
	cfg, err := Load(writeConfig(t, minimal))
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, 10, cfg.Generation.QuestionsPerPrompt)
	assert.Equal(t, 30, cfg.Generation.MaxFailLimit)
	assert.Equal(t, int64(-1), cfg.Generation.ShuffleSeed)
	assert.Equal(t, -1, cfg.Generation.QuestionLimit)
	assert.Equal(t, 30*time.Second, cfg.Evaluation.QueryTimeout)
	assert.Equal(t, 50, cfg.Evaluation.RowLimit)
	assert.True(t, cfg.Generation.CopySettings)
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mangle func(string) string
	}{
		{"missing model name", func(y string) string {
			return "model:\n  provider: openai\ndata:\n  - source_dataset: a\n    target_dataset: b\n    target_db_id: c\n"
		}},
		{"bad provider", func(y string) string {
			return "model:\n  provider: cohere\n  name: x\ndata:\n  - source_dataset: a\n    target_dataset: b\n    target_db_id: c\n"
		}},
		{"bad engine", func(y string) string {
			return "model:\n  provider: openai\n  name: x\nevaluation:\n  engine: oracle\ndata:\n  - source_dataset: a\n    target_dataset: b\n    target_db_id: c\n"
		}},
		{"incomplete pipeline", func(y string) string {
			return "model:\n  provider: openai\n  name: x\ndata:\n  - source_dataset: a\n"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.mangle(validYAML)))
			assert.Error(t, err)
		})
	}
}

func TestPromptPaths(t *testing.T) {
	g := GenerationConfig{PromptDir: "prompts", BasePromptFile: "mapping_prompt.txt"}
	assert.Equal(t, filepath.Join("prompts", "mapping_prompt.txt"), g.BasePromptPath())
	assert.Empty(t, g.SystemPromptPath())

	g.SystemPromptFile = "system.txt"
	assert.Equal(t, filepath.Join("prompts", "system.txt"), g.SystemPromptPath())

	e := EvaluationConfig{PromptDir: "prompts", PromptFile: "semantic_prompt.txt"}
	assert.Equal(t, filepath.Join("prompts", "semantic_prompt.txt"), e.SemanticPromptPath())
	assert.Empty(t, e.ExamplesPath())
}
