// Package models defines the record types shared across the mapping and
// evaluation pipeline.
package models

import "encoding/json"

// Question is one natural-language question with its gold SQL query,
// belonging to exactly one source database. Question files are immutable
// inputs; the pipeline never writes them.
type Question struct {
	Dataset  string `json:"dataset,omitempty"`
	DBID     string `json:"db_id"`
	Question string `json:"question"`
	Query    string `json:"query"`
}

// SchemaSet maps database identifiers to their rendered schema text.
// One schemas.json per dataset, loaded once per run.
type SchemaSet map[string]string

// SampleSet maps table names to sample rows, aligned to column order.
// Supplied only for target databases to ground generated constants.
type SampleSet map[string][]json.RawMessage

// MappingRecord is the unit of generation output: one source question/query
// pair mapped onto the target schema. Immutable once written; evaluator
// stages attach labels alongside it, never rewrite the mapping fields.
type MappingRecord struct {
	SourceDataset  string `json:"source_dataset,omitempty"`
	SourceDBID     string `json:"source_db_id"`
	SourceQuestion string `json:"source_question"`
	SourceQuery    string `json:"source_query"`
	TargetDBID     string `json:"target_db_id"`
	TargetQuestion string `json:"target_question"`
	TargetQuery    string `json:"target_query"`

	// TablesColumnsReplacement maps source identifiers to the target
	// identifiers the model substituted. Provenance data only; nothing
	// downstream validates against it.
	TablesColumnsReplacement map[string]string `json:"tables_columns_replacement,omitempty"`

	// Thought is the model's free-text rationale for the mapping.
	Thought string `json:"thought,omitempty"`

	Generation *GenerationMetadata `json:"generation_metadata,omitempty"`

	Structural *StructuralLabel `json:"structural,omitempty"`
	Execution  *ExecutionLabel  `json:"execution,omitempty"`
	Semantic   *SemanticLabel   `json:"semantic,omitempty"`
}

// GenerationMetadata records how a mapping was produced.
type GenerationMetadata struct {
	Model            string  `json:"model"`
	Provider         string  `json:"provider"`
	Attempts         int     `json:"attempts"`
	PromptTokens     int     `json:"prompt_tokens,omitempty"`
	CompletionTokens int     `json:"completion_tokens,omitempty"`
	ElapsedSeconds   float64 `json:"elapsed_seconds,omitempty"`
}

// IsGenerated reports whether the model actually produced a target pair.
// Records with an empty target query or question are carried through the
// pipeline but classified as not generated by every evaluator.
func (r *MappingRecord) IsGenerated() bool {
	return r.TargetQuery != "" && r.TargetQuestion != ""
}

// Label statuses shared by the three evaluation axes. Every axis defaults
// to NotEvaluated until its evaluator has actually run.
const (
	StatusNotEvaluated = "not_evaluated"

	StructuralMatch    = "match"
	StructuralMismatch = "mismatch"

	ExecutionSuccess = "success"
	ExecutionEmpty   = "empty"
	ExecutionError   = "error"
)

// StructuralLabel records the template comparison outcome for one mapping.
type StructuralLabel struct {
	Status         string `json:"status"`
	SourceTemplate string `json:"source_template,omitempty"`
	TargetTemplate string `json:"target_template,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// ExecutionLabel records the outcome of running the target query against
// the live target database. Status is only ever set to success/empty/error
// after an actual execution; errors are outcomes, not faults.
type ExecutionLabel struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
	// RowsPreview holds up to the first 50 result rows for audit.
	RowsPreview [][]any `json:"rows_preview,omitempty"`
	RowCount    int     `json:"row_count,omitempty"`
}

// SemanticLabel records the LLM judge's rating of the mapped pair.
type SemanticLabel struct {
	Status             string `json:"status"`
	MeaningfulQuestion string `json:"meaningful_nl_question,omitempty"`
	CorrectMapping     string `json:"correct_target_nl_sql_mapping,omitempty"`
	QuestionThought    string `json:"nl_thought,omitempty"`
	MappingThought     string `json:"sql_thought,omitempty"`
	Reason             string `json:"reason,omitempty"`
}
