package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ekaya-inc/schema-mapper/pkg/config"
	"github.com/ekaya-inc/schema-mapper/pkg/dataset"
	"github.com/ekaya-inc/schema-mapper/pkg/llm"
	"github.com/ekaya-inc/schema-mapper/pkg/models"
)

// Runner executes one evaluator stage over every configured pipeline.
// Stages read labeled records from the result directory when present,
// falling back to the raw generation output, and always write back to the
// result directory, so stages compose in any order and can be rerun.
type Runner struct {
	cfg    *config.Config
	logger *zap.Logger
}

func NewRunner(cfg *config.Config, logger *zap.Logger) *Runner {
	return &Runner{cfg: cfg, logger: logger.Named("eval")}
}

func (r *Runner) generationDir(p config.PipelineConfig) string {
	return filepath.Join(r.cfg.Generation.JSONOnlyOutputDir, p.TargetDataset, r.cfg.Model.Name, p.TargetDBID)
}

func (r *Runner) resultDir(p config.PipelineConfig) string {
	return filepath.Join(r.cfg.Evaluation.ResultDir, p.TargetDataset, r.cfg.Model.Name, p.TargetDBID)
}

func (r *Runner) summaryDir(p config.PipelineConfig) string {
	return filepath.Join(r.cfg.Evaluation.SummaryDir, p.TargetDataset, r.cfg.Model.Name, p.TargetDBID)
}

// inputFiles returns the record files for a pipeline, preferring
// already-labeled results over raw generation output.
func (r *Runner) inputFiles(p config.PipelineConfig) ([]string, error) {
	if files, err := ResponseFiles(r.resultDir(p)); err == nil && len(files) > 0 {
		return files, nil
	}
	files, err := ResponseFiles(r.generationDir(p))
	if err != nil {
		return nil, fmt.Errorf("no records for pipeline %s -> %s: %w", p.SourceDataset, p.TargetDBID, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no records for pipeline %s -> %s", p.SourceDataset, p.TargetDBID)
	}
	return files, nil
}

// RunStructural labels every pipeline's records with template comparison.
func (r *Runner) RunStructural(ctx context.Context) error {
	structural := NewStructural(r.logger)
	return r.eachFile(ctx, func(ctx context.Context, p config.PipelineConfig, sourceDBID string, records []models.MappingRecord) ([]models.MappingRecord, error) {
		return structural.Evaluate(records), nil
	})
}

// RunExecution runs every pipeline's target queries on the live target
// database.
func (r *Runner) RunExecution(ctx context.Context) error {
	executor := NewExecutor(NewEngineOpener(r.cfg.Evaluation), r.cfg.Evaluation, r.logger)
	return r.eachFile(ctx, func(ctx context.Context, p config.PipelineConfig, sourceDBID string, records []models.MappingRecord) ([]models.MappingRecord, error) {
		return executor.Evaluate(ctx, p.TargetDBID, records)
	})
}

// RunSemantic rates every pipeline's records with the judge model. The
// judge sees the target schema of the pipeline it is rating.
func (r *Runner) RunSemantic(ctx context.Context, store dataset.Store) error {
	judge, err := llm.NewClient(r.cfg.Judge, r.logger)
	if err != nil {
		return fmt.Errorf("judge client: %w", err)
	}
	prompt, err := LoadJudgePrompt(r.cfg.Evaluation)
	if err != nil {
		return err
	}
	semantic := NewSemantic(judge, prompt, r.cfg.Evaluation, r.logger)

	schemas := make(map[string]string)
	return r.eachFile(ctx, func(ctx context.Context, p config.PipelineConfig, sourceDBID string, records []models.MappingRecord) ([]models.MappingRecord, error) {
		key := p.TargetDataset + "/" + p.TargetDBID
		schema, ok := schemas[key]
		if !ok {
			schema, err = store.Schema(p.TargetDataset, p.TargetDBID)
			if err != nil {
				return nil, fmt.Errorf("target schema for %s: %w", p.TargetDBID, err)
			}
			schemas[key] = schema
		}
		return semantic.Evaluate(ctx, sourceDBID, schema, records)
	})
}

// eachFile applies one stage to every record file of every pipeline,
// writing labeled records into the result directory.
func (r *Runner) eachFile(ctx context.Context, stage func(context.Context, config.PipelineConfig, string, []models.MappingRecord) ([]models.MappingRecord, error)) error {
	for _, p := range r.cfg.Data {
		files, err := r.inputFiles(p)
		if err != nil {
			return err
		}
		for _, file := range files {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			sourceDBID := SourceDBFromFile(file)
			records, err := LoadRecords(file)
			if err != nil {
				return err
			}

			labeled, err := stage(ctx, p, sourceDBID, records)
			if err != nil {
				return fmt.Errorf("source db %s: %w", sourceDBID, err)
			}

			out := filepath.Join(r.resultDir(p), filepath.Base(file))
			if err := SaveRecords(out, labeled); err != nil {
				return err
			}
			r.logger.Info("stage completed for source db",
				zap.String("source_db_id", sourceDBID),
				zap.Int("records", len(labeled)))
		}
	}
	return nil
}

// RunSummary recomputes coarse and fine summaries for every pipeline from
// the labeled records.
func (r *Runner) RunSummary(ctx context.Context) error {
	for _, p := range r.cfg.Data {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		files, err := ResponseFiles(r.resultDir(p))
		if err != nil {
			return fmt.Errorf("no labeled records for pipeline %s -> %s: %w", p.SourceDataset, p.TargetDBID, err)
		}

		perSource := make(map[string][]models.MappingRecord, len(files))
		for _, file := range files {
			records, err := LoadRecords(file)
			if err != nil {
				return err
			}
			perSource[SourceDBFromFile(file)] = records
		}

		coarse, fine := Summarize(p.TargetDataset, p.TargetDBID, perSource)

		dir := r.summaryDir(p)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
		if err := writeSummaryJSON(filepath.Join(dir, "summary.json"), coarse); err != nil {
			return err
		}
		if err := writeSummaryJSON(filepath.Join(dir, "summary_per_source.json"), fine); err != nil {
			return err
		}
		r.logger.Info("summary written",
			zap.String("target_db_id", p.TargetDBID),
			zap.Int("total", coarse.Total))
	}
	return nil
}

func writeSummaryJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
