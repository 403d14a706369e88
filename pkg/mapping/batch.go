// Package mapping drives the generation side of the pipeline: batching
// source questions into bounded prompts, calling the generation capability,
// validating its responses and persisting mapping records.
package mapping

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ekaya-inc/schema-mapper/pkg/config"
	"github.com/ekaya-inc/schema-mapper/pkg/models"
)

// Prompts holds the rendered prompt templates for a run. Template text
// content lives in external files; the pipeline only assembles them.
type Prompts struct {
	Base   string
	System string
}

// LoadPrompts reads the base and optional system prompt files.
func LoadPrompts(gen config.GenerationConfig) (*Prompts, error) {
	base, err := os.ReadFile(gen.BasePromptPath())
	if err != nil {
		return nil, fmt.Errorf("read base prompt: %w", err)
	}
	if len(strings.TrimSpace(string(base))) == 0 {
		return nil, fmt.Errorf("base prompt file %s is empty", gen.BasePromptPath())
	}

	prompts := &Prompts{Base: string(base)}
	if path := gen.SystemPromptPath(); path != "" {
		system, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read system prompt: %w", err)
		}
		if len(strings.TrimSpace(string(system))) == 0 {
			return nil, fmt.Errorf("system prompt file %s is empty", path)
		}
		prompts.System = string(system)
	}
	return prompts, nil
}

// Request is one batch of questions from a single source database, bound
// to one target schema, ready to be sent to the generation capability.
// Constructed fresh per generation call; never persisted standalone.
type Request struct {
	SourceDataset string
	SourceDBID    string
	TargetDataset string
	TargetDBID    string
	BatchIndex    int
	Questions     []models.Question
	Prompt        string
}

// BatchInput collects everything BuildRequests needs for one source db.
type BatchInput struct {
	SourceDataset string
	SourceDBID    string
	TargetDataset string
	TargetDBID    string
	// Questions must already be prepared (shuffled and truncated).
	Questions     []models.Question
	SourceSchema  string
	TargetSchema  string
	TargetSamples models.SampleSet
}

// BuildRequests partitions the prepared question list into batches no
// larger than batchSize and renders one prompt per batch. Pure function of
// its inputs.
func BuildRequests(prompts *Prompts, in BatchInput, batchSize int) ([]*Request, error) {
	if batchSize < 1 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	if len(in.Questions) == 0 {
		return nil, fmt.Errorf("no questions for source db %s", in.SourceDBID)
	}

	var requests []*Request
	for start := 0; start < len(in.Questions); start += batchSize {
		end := start + batchSize
		if end > len(in.Questions) {
			end = len(in.Questions)
		}
		batch := in.Questions[start:end]

		prompt, err := renderPrompt(prompts, in, batch)
		if err != nil {
			return nil, err
		}

		requests = append(requests, &Request{
			SourceDataset: in.SourceDataset,
			SourceDBID:    in.SourceDBID,
			TargetDataset: in.TargetDataset,
			TargetDBID:    in.TargetDBID,
			BatchIndex:    len(requests),
			Questions:     batch,
			Prompt:        prompt,
		})
	}
	return requests, nil
}

// renderPrompt assembles the final prompt: base template, both schemas,
// target sample data and the question batch as JSON.
func renderPrompt(prompts *Prompts, in BatchInput, batch []models.Question) (string, error) {
	questionsJSON, err := json.MarshalIndent(batch, "", "    ")
	if err != nil {
		return "", fmt.Errorf("marshal question batch: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(prompts.Base)
	sb.WriteString("\n\n## Generate the query for the following query:\n\n")

	sb.WriteString("# Source schema\n{\n")
	fmt.Fprintf(&sb, "    %q: %q,\n", "db_id", in.SourceDBID)
	fmt.Fprintf(&sb, "    %q: %q\n", "schema", in.SourceSchema)
	sb.WriteString("}\n\n")

	sb.WriteString("# Target schema\n{\n")
	fmt.Fprintf(&sb, "    %q: %q,\n", "db_id", in.TargetDBID)
	fmt.Fprintf(&sb, "    %q: %q\n", "schema", in.TargetSchema)
	sb.WriteString("}\n\n")

	if in.TargetSamples != nil {
		samplesJSON, err := json.MarshalIndent(in.TargetSamples, "", "    ")
		if err != nil {
			return "", fmt.Errorf("marshal target samples: %w", err)
		}
		sb.WriteString("# Target sample data\n")
		sb.Write(samplesJSON)
		sb.WriteString("\n\n")
	}

	sb.WriteString("# Source query:\n")
	sb.Write(questionsJSON)
	sb.WriteString("\n\n# Output:\n\n")
	return sb.String(), nil
}
