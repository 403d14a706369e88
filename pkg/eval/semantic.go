package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/schema-mapper/pkg/config"
	"github.com/ekaya-inc/schema-mapper/pkg/jsonutil"
	"github.com/ekaya-inc/schema-mapper/pkg/llm"
	"github.com/ekaya-inc/schema-mapper/pkg/models"
	"github.com/ekaya-inc/schema-mapper/pkg/retry"
)

// SemanticEvaluated marks a record the judge actually rated, as opposed to
// one skipped or abandoned after retries.
const SemanticEvaluated = "evaluated"

// JudgePrompt holds the semantic judge's prompt template with optional
// few-shot examples already appended.
type JudgePrompt struct {
	Template string
}

// LoadJudgePrompt reads the judge prompt and, when configured, the
// examples file.
func LoadJudgePrompt(cfg config.EvaluationConfig) (*JudgePrompt, error) {
	base, err := os.ReadFile(cfg.SemanticPromptPath())
	if err != nil {
		return nil, fmt.Errorf("read judge prompt: %w", err)
	}
	template := string(base)

	if path := cfg.ExamplesPath(); path != "" {
		examples, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read judge examples: %w", err)
		}
		template = template + "\n\n# Examples\n\n" + string(examples)
	}
	return &JudgePrompt{Template: template}, nil
}

// Render produces the judge prompt for one record, with the target schema
// as context when available.
func (p *JudgePrompt) Render(rec *models.MappingRecord, targetSchema string) string {
	var sb strings.Builder
	sb.WriteString(p.Template)
	if targetSchema != "" {
		sb.WriteString("\n\n# Target schema\n")
		sb.WriteString(targetSchema)
	}
	sb.WriteString("\n\n# Mapping to judge\n")
	fmt.Fprintf(&sb, "source_question: %s\n", rec.SourceQuestion)
	fmt.Fprintf(&sb, "source_query: %s\n", rec.SourceQuery)
	fmt.Fprintf(&sb, "target_question: %s\n", rec.TargetQuestion)
	fmt.Fprintf(&sb, "target_query: %s\n", rec.TargetQuery)
	sb.WriteString("\n# Judgment:\n")
	return sb.String()
}

// Semantic rates mapped pairs with an LLM judge. A record whose judgment
// cannot be obtained after retries stays not_evaluated; judge trouble
// never fails the stage.
type Semantic struct {
	judge       llm.Client
	prompt      *JudgePrompt
	retryCfg    *retry.Config
	responseDir string
	logger      *zap.Logger
}

func NewSemantic(judge llm.Client, prompt *JudgePrompt, cfg config.EvaluationConfig, logger *zap.Logger) *Semantic {
	// MaxRetryPerPrompt counts total attempts, matching the generation
	// stage; retry.Config counts retries after the first attempt.
	retries := cfg.MaxRetryPerPrompt - 1
	if retries < 0 {
		retries = 0
	}
	return &Semantic{
		judge:  judge,
		prompt: prompt,
		retryCfg: &retry.Config{
			MaxRetries:   retries,
			InitialDelay: cfg.SleepTime,
			MaxDelay:     30 * cfg.SleepTime,
			Multiplier:   2.0,
			JitterFactor: 0.1,
		},
		responseDir: cfg.LLMResponseDir,
		logger:      logger.Named("semantic"),
	}
}

// Evaluate labels every record in place. Raw judge responses are archived
// per source db when a response directory is configured.
func (s *Semantic) Evaluate(ctx context.Context, sourceDBID, targetSchema string, records []models.MappingRecord) ([]models.MappingRecord, error) {
	var rawResponses []judgeExchange
	for i := range records {
		if ctx.Err() != nil {
			return records, ctx.Err()
		}
		label, raw := s.judgeOne(ctx, &records[i], targetSchema)
		records[i].Semantic = label
		if raw != "" {
			rawResponses = append(rawResponses, judgeExchange{
				Index:    i,
				Question: records[i].TargetQuestion,
				Response: raw,
			})
		}
	}

	if s.responseDir != "" && len(rawResponses) > 0 {
		if err := s.archive(sourceDBID, rawResponses); err != nil {
			s.logger.Warn("archiving judge responses failed", zap.Error(err))
		}
	}
	return records, nil
}

type judgeExchange struct {
	Index    int    `json:"index"`
	Question string `json:"target_question"`
	Response string `json:"response"`
}

func (s *Semantic) judgeOne(ctx context.Context, rec *models.MappingRecord, targetSchema string) (*models.SemanticLabel, string) {
	if !rec.IsGenerated() {
		return &models.SemanticLabel{
			Status: models.StatusNotEvaluated,
			Reason: "no generated target query",
		}, ""
	}

	prompt := s.prompt.Render(rec, targetSchema)
	var raw string

	label, err := retry.DoWithResult(ctx, s.retryCfg, func() (*models.SemanticLabel, error) {
		result, err := s.judge.Generate(ctx, prompt, "")
		if err != nil {
			return nil, err
		}
		raw = result.Content
		return parseJudgment(result.Content)
	}, func(attempt int, err error) {
		s.logger.Debug("judge retry",
			zap.Int("attempt", attempt), zap.Error(err))
	})
	if err != nil {
		s.logger.Warn("judgment abandoned",
			zap.String("target_question", rec.TargetQuestion), zap.Error(err))
		return &models.SemanticLabel{
			Status: models.StatusNotEvaluated,
			Reason: err.Error(),
		}, raw
	}
	return label, raw
}

// parseJudgment extracts the judge's JSON verdict. A response without the
// two verdict fields is retryable; judges sometimes wrap or truncate.
func parseJudgment(response string) (*models.SemanticLabel, error) {
	jsonStr, err := llm.ExtractJSONObject(response)
	if err != nil {
		return nil, llm.NewError(llm.ErrorTypeEmpty, "no JSON object in judgment", true, err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(jsonStr), &fields); err != nil {
		return nil, llm.NewError(llm.ErrorTypeEmpty, "malformed judgment JSON", true, err)
	}

	label := &models.SemanticLabel{
		Status:             SemanticEvaluated,
		MeaningfulQuestion: strings.ToLower(jsonutil.FlexibleStringValue(fields["meaningful_nl_question"])),
		CorrectMapping:     strings.ToLower(jsonutil.FlexibleStringValue(fields["correct_target_nl_sql_mapping"])),
		QuestionThought:    jsonutil.FlexibleStringValue(fields["nl_thought"]),
		MappingThought:     jsonutil.FlexibleStringValue(fields["sql_thought"]),
	}
	if label.MeaningfulQuestion == "" || label.CorrectMapping == "" {
		return nil, llm.NewError(llm.ErrorTypeEmpty, "judgment missing verdict fields", true, nil)
	}
	return label, nil
}

func (s *Semantic) archive(sourceDBID string, exchanges []judgeExchange) error {
	if err := os.MkdirAll(s.responseDir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(exchanges, "", "    ")
	if err != nil {
		return err
	}
	path := filepath.Join(s.responseDir, "judge_"+sourceDBID+".json")
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
