// Package config loads pipeline configuration from mapping.yaml with
// environment variable overrides. Secrets (API keys, database passwords)
// must only come from environment variables.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config holds all configuration for schema-mapper. A single immutable value
// is loaded once per run and passed through every component entry point;
// nothing reads ambient global state after load.
type Config struct {
	Env string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`

	// Model is the generation capability; Judge is the semantic grading
	// capability. They may point at different providers or models.
	Model ModelConfig `yaml:"model"`
	Judge ModelConfig `yaml:"judge"`

	Generation GenerationConfig `yaml:"generation"`
	Evaluation EvaluationConfig `yaml:"evaluation"`

	// Data lists the mapping pipelines to run: each pairs one source
	// dataset with one target database.
	Data []PipelineConfig `yaml:"data"`
}

// ModelConfig selects and parameterizes an LLM capability. Sampling
// parameters and token limits are opaque pass-through; the pipeline never
// interprets them.
type ModelConfig struct {
	Provider             string  `yaml:"provider" env-default:"openai"` // openai | anthropic
	Name                 string  `yaml:"name"`
	Endpoint             string  `yaml:"endpoint" env-default:""` // optional OpenAI-compatible base URL
	APIKey               string  `yaml:"-" env:"LLM_API_KEY"`     // secret, env only
	Temperature          float64 `yaml:"temperature" env-default:"0.2"`
	MaxTokens            int     `yaml:"max_tokens" env-default:"8192"`
	UseSystemInstruction bool    `yaml:"use_system_instruction" env-default:"true"`
}

// GenerationConfig bounds the request/validate/retry loop.
type GenerationConfig struct {
	// QuestionsPerPrompt caps how many source questions share one prompt.
	QuestionsPerPrompt int `yaml:"questions_per_prompt" env:"QUESTIONS_PER_PROMPT" env-default:"10"`
	// MaxRetryPerPrompt is the per-request retry ceiling.
	MaxRetryPerPrompt int `yaml:"max_retry_per_prompt" env-default:"3"`
	// MaxFailLimit is the global failure budget shared across the whole
	// run; once exhausted, pending work is cancelled and the run is marked
	// incomplete.
	MaxFailLimit int `yaml:"max_fail_limit" env-default:"30"`
	// RetrySleep is the base backoff between retry attempts.
	RetrySleep time.Duration `yaml:"retry_sleep" env-default:"1s"`
	// Workers bounds how many source databases are processed concurrently.
	Workers int `yaml:"workers" env-default:"4"`

	// ShuffleSeed: -1 keeps file order, 0 seeds from the clock, any other
	// value gives a reproducible shuffle. A zero in YAML is treated as
	// unset; use the environment variable to select clock seeding.
	ShuffleSeed int64 `yaml:"source_questions_shuffle_seed" env:"SHUFFLE_SEED" env-default:"-1"`
	// QuestionLimit: -1 keeps all questions.
	QuestionLimit int `yaml:"source_questions_limit" env-default:"-1"`

	// RequiredFields must all be present on every mapped entry.
	RequiredFields []string `yaml:"required_fields"`

	PromptDir        string `yaml:"prompt_directory" env-default:"prompts"`
	BasePromptFile   string `yaml:"base_prompt_file" env-default:"mapping_prompt.txt"`
	SystemPromptFile string `yaml:"system_instruction_file" env-default:""`

	OutputDir         string `yaml:"output_directory" env-default:"output"`
	JSONOnlyOutputDir string `yaml:"json_only_output_directory" env-default:""`
	CopySettings      bool   `yaml:"copy_settings_to_output" env-default:"true"`
}

// EvaluationConfig parameterizes the three evaluator stages.
type EvaluationConfig struct {
	// Engine selects the execution driver: sqlite3 | postgres | sqlserver.
	Engine string `yaml:"engine" env-default:"sqlite3"`
	// DatabasesDir is the root holding one database per target db id
	// (sqlite layout: <dir>/<db_id>/<db_id>.sqlite).
	DatabasesDir string `yaml:"databases_directory" env-default:"data/databases"`
	// DSN is used instead of DatabasesDir for server engines.
	DSN string `yaml:"-" env:"EVAL_DB_DSN"`
	// QueryTimeout is the hard per-query wall-clock limit.
	QueryTimeout time.Duration `yaml:"query_timeout" env-default:"30s"`
	// RowLimit caps the result preview stored per query.
	RowLimit int `yaml:"row_limit" env-default:"50"`

	MaxRetryPerPrompt int           `yaml:"max_retry_per_prompt" env-default:"3"`
	SleepTime         time.Duration `yaml:"sleep_time" env-default:"1s"`

	PromptDir    string `yaml:"prompt_directory" env-default:"prompts"`
	PromptFile   string `yaml:"prompt_file" env-default:"semantic_prompt.txt"`
	ExamplesFile string `yaml:"examples_file" env-default:""`

	ResultDir      string `yaml:"result_directory" env-default:"results"`
	SummaryDir     string `yaml:"summary_directory" env-default:"summaries"`
	LLMResponseDir string `yaml:"llm_response_directory" env-default:"llm_responses"`
}

// PipelineConfig pairs one source dataset with one target database.
type PipelineConfig struct {
	SourceDataset string `yaml:"source_dataset"`
	TargetDataset string `yaml:"target_dataset"`
	TargetDBID    string `yaml:"target_db_id"`
	// SourceDBIDs filters which source databases to map; empty means all.
	SourceDBIDs []string `yaml:"source_db_ids"`
}

// DefaultRequiredFields are checked on mapped entries when the config does
// not name its own list.
var DefaultRequiredFields = []string{
	"source_db_id", "source_question", "source_query",
	"target_db_id", "target_question", "target_query",
}

// Load reads configuration from the given YAML file with environment
// variable overrides. A .env file in the working directory is loaded first
// so local runs can keep secrets out of the shell profile.
func Load(path string) (*Config, error) {
	// Missing .env is fine; already-set variables win over the file.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if len(cfg.Generation.RequiredFields) == 0 {
		cfg.Generation.RequiredFields = DefaultRequiredFields
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Model.Name == "" {
		return fmt.Errorf("model name is required")
	}
	switch c.Model.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("unsupported model provider %q", c.Model.Provider)
	}
	if c.Generation.QuestionsPerPrompt < 1 {
		return fmt.Errorf("questions_per_prompt must be positive")
	}
	if c.Generation.MaxRetryPerPrompt < 1 {
		return fmt.Errorf("max_retry_per_prompt must be positive")
	}
	if c.Generation.QuestionLimit == 0 {
		return fmt.Errorf("source_questions_limit of 0 selects nothing; use -1 for no limit")
	}
	switch c.Evaluation.Engine {
	case "sqlite3", "postgres", "sqlserver":
	default:
		return fmt.Errorf("unsupported evaluation engine %q", c.Evaluation.Engine)
	}
	for i, p := range c.Data {
		if p.SourceDataset == "" || p.TargetDataset == "" || p.TargetDBID == "" {
			return fmt.Errorf("data[%d]: source_dataset, target_dataset and target_db_id are required", i)
		}
	}
	return nil
}

// BasePromptPath returns the path of the base mapping prompt file.
func (g *GenerationConfig) BasePromptPath() string {
	return filepath.Join(g.PromptDir, g.BasePromptFile)
}

// SystemPromptPath returns the path of the system instruction file, or ""
// when none is configured.
func (g *GenerationConfig) SystemPromptPath() string {
	if g.SystemPromptFile == "" {
		return ""
	}
	return filepath.Join(g.PromptDir, g.SystemPromptFile)
}

// SemanticPromptPath returns the path of the semantic judge prompt file.
func (e *EvaluationConfig) SemanticPromptPath() string {
	return filepath.Join(e.PromptDir, e.PromptFile)
}

// ExamplesPath returns the path of the few-shot examples file, or "" when
// none is configured.
func (e *EvaluationConfig) ExamplesPath() string {
	if e.ExamplesFile == "" {
		return ""
	}
	return filepath.Join(e.PromptDir, e.ExamplesFile)
}
