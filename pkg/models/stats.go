package models

// RunStats aggregates counters for one generation run. Counters are
// accumulated by the orchestrator under its own locking; the struct itself
// is plain data so it can be merged and serialized at any level (overall,
// per pipeline, per source db).
type RunStats struct {
	Requests           int     `json:"request"`
	Responses          int     `json:"response"`
	SuccessResponses   int     `json:"success_response"`
	CorrectedResponses int     `json:"corrected_response"`
	ErrorResponses     int     `json:"error_response"`
	UnexpectedErrors   int     `json:"unexpected_error"`
	Retried            int     `json:"retried"`
	Exhausted          int     `json:"exhausted"`
	RecordsEmitted     int     `json:"records_emitted"`
	PromptTokens       int     `json:"input_token"`
	CompletionTokens   int     `json:"output_token"`
	ModelSeconds       float64 `json:"time_taken"`
	WallSeconds        float64 `json:"real_time"`

	// Incomplete is set when the run stopped short (global failure budget
	// exhausted); partial results are still persisted.
	Incomplete bool   `json:"incomplete"`
	StopReason string `json:"stop_reason,omitempty"`
}

// Merge adds another stats block into this one. Incomplete is sticky.
func (s *RunStats) Merge(other RunStats) {
	s.Requests += other.Requests
	s.Responses += other.Responses
	s.SuccessResponses += other.SuccessResponses
	s.CorrectedResponses += other.CorrectedResponses
	s.ErrorResponses += other.ErrorResponses
	s.UnexpectedErrors += other.UnexpectedErrors
	s.Retried += other.Retried
	s.Exhausted += other.Exhausted
	s.RecordsEmitted += other.RecordsEmitted
	s.PromptTokens += other.PromptTokens
	s.CompletionTokens += other.CompletionTokens
	s.ModelSeconds += other.ModelSeconds
	s.WallSeconds += other.WallSeconds
	if other.Incomplete {
		s.Incomplete = true
		if s.StopReason == "" {
			s.StopReason = other.StopReason
		}
	}
}

// SummaryRecord is one row of an evaluation summary, either coarse
// (per target db) or fine (per source db within a target). Recomputed from
// scratch on every aggregator invocation.
type SummaryRecord struct {
	Dataset    string `json:"dataset,omitempty"`
	TargetDBID string `json:"target_db_id,omitempty"`
	SourceDBID string `json:"source_db_id,omitempty"`

	Total        int `json:"total"`
	NotGenerated int `json:"not_generated_query,omitempty"`

	// Structural axis.
	StructuralMatches int     `json:"structural_match,omitempty"`
	StructuralRate    float64 `json:"structural_match_rate,omitempty"`

	// Execution axis.
	ExecSuccess    int     `json:"execution_success,omitempty"`
	ExecEmpty      int     `json:"execution_empty,omitempty"`
	ExecErrors     int     `json:"execution_error,omitempty"`
	ExecResultRate float64 `json:"success_result_rate,omitempty"`
	ExecRunRate    float64 `json:"success_run_rate,omitempty"`

	// Semantic axis.
	MeaningfulQuestions int     `json:"meaningful_nl_question,omitempty"`
	CorrectMappings     int     `json:"correct_sql_mapping,omitempty"`
	MeaningfulRate      float64 `json:"meaningfulness_rate,omitempty"`
	CorrectMappingRate  float64 `json:"correct_sql_mapping_rate,omitempty"`
}
