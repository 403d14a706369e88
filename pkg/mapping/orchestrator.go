package mapping

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/schema-mapper/pkg/config"
	"github.com/ekaya-inc/schema-mapper/pkg/dataset"
	"github.com/ekaya-inc/schema-mapper/pkg/llm"
	"github.com/ekaya-inc/schema-mapper/pkg/models"
)

// Sink receives generation results as they are produced. Results for a
// source database are flushed as soon as that database completes, so an
// interrupted run keeps everything finished before the interruption.
type Sink interface {
	// AppendTranscript records one raw prompt/response exchange.
	AppendTranscript(req *Request, entry TranscriptEntry) error
	// WriteSourceResult persists the records for one completed source db.
	WriteSourceResult(pipeline config.PipelineConfig, res *DBResult) error
}

// TranscriptEntry is one prompt/response exchange in the audit transcript.
type TranscriptEntry struct {
	BatchIndex int    `json:"batch_index"`
	Attempt    int    `json:"attempt"`
	System     string `json:"system,omitempty"`
	Prompt     string `json:"prompt"`
	Response   string `json:"response,omitempty"`
	Error      string `json:"error,omitempty"`
}

// DBResult is the outcome of generating mappings for one source database.
// Records appear in prepared-question order; questions that never produced
// a valid entry are simply absent.
type DBResult struct {
	SourceDBID string                 `json:"source_db_id"`
	TargetDBID string                 `json:"target_db_id"`
	Records    []models.MappingRecord `json:"records"`
	Stats      models.RunStats        `json:"stats"`
}

// Orchestrator runs the generation stage: it fans out over source
// databases with bounded concurrency, drives the per-request retry loop,
// and enforces the run-global failure budget.
type Orchestrator struct {
	cfg     *config.Config
	client  llm.Client
	store   dataset.Store
	sink    Sink
	prompts *Prompts
	pool    *llm.WorkerPool
	logger  *zap.Logger

	budget  *Budget
	tracker *Tracker

	// stop cancels the run context once the failure budget is spent.
	stop context.CancelFunc
}

func NewOrchestrator(
	cfg *config.Config,
	client llm.Client,
	store dataset.Store,
	sink Sink,
	prompts *Prompts,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		client:  client,
		store:   store,
		sink:    sink,
		prompts: prompts,
		pool:    llm.NewWorkerPool(llm.WorkerPoolConfig{MaxConcurrent: cfg.Generation.Workers}, logger),
		logger:  logger.Named("mapping"),
		budget:  NewBudget(cfg.Generation.MaxFailLimit),
		tracker: NewTracker(),
	}
}

// Tracker exposes the run statistics accumulated so far.
func (o *Orchestrator) Tracker() *Tracker { return o.tracker }

// Run executes every configured pipeline. It returns the overall run
// statistics; partial results are persisted even when the failure budget
// stops the run early, in which case stats report the run as incomplete.
func (o *Orchestrator) Run(ctx context.Context) (models.RunStats, error) {
	start := time.Now()

	// The budget cancels this context once spent. In-flight databases
	// finish; pending ones are skipped.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.stop = cancel

	for _, pipeline := range o.cfg.Data {
		if err := o.runPipeline(runCtx, pipeline); err != nil {
			return o.tracker.Overall(), err
		}
	}

	o.tracker.mu.Lock()
	o.tracker.overall.WallSeconds = time.Since(start).Seconds()
	o.tracker.mu.Unlock()
	return o.tracker.Overall(), nil
}

func (o *Orchestrator) runPipeline(ctx context.Context, pipeline config.PipelineConfig) error {
	targetSchema, err := o.store.Schema(pipeline.TargetDataset, pipeline.TargetDBID)
	if err != nil {
		return fmt.Errorf("target schema %s/%s: %w", pipeline.TargetDataset, pipeline.TargetDBID, err)
	}
	targetSamples, err := o.store.Samples(pipeline.TargetDataset, pipeline.TargetDBID)
	if err != nil {
		return fmt.Errorf("target samples %s/%s: %w", pipeline.TargetDataset, pipeline.TargetDBID, err)
	}

	sourceIDs, err := o.store.SourceDBIDs(pipeline.SourceDataset)
	if err != nil {
		return fmt.Errorf("source dbs for %s: %w", pipeline.SourceDataset, err)
	}
	sourceIDs = filterSourceIDs(sourceIDs, pipeline.SourceDBIDs)
	if len(sourceIDs) == 0 {
		return fmt.Errorf("pipeline %s -> %s selects no source databases", pipeline.SourceDataset, pipeline.TargetDBID)
	}

	o.logger.Info("starting pipeline",
		zap.String("source_dataset", pipeline.SourceDataset),
		zap.String("target_db_id", pipeline.TargetDBID),
		zap.Int("source_dbs", len(sourceIDs)))

	items := make([]llm.WorkItem[*DBResult], 0, len(sourceIDs))
	for _, dbID := range sourceIDs {
		dbID := dbID
		items = append(items, llm.WorkItem[*DBResult]{
			ID: dbID,
			Execute: func(ctx context.Context) (*DBResult, error) {
				return o.runSourceDB(ctx, pipeline, dbID, targetSchema, targetSamples)
			},
		})
	}

	results := llm.Process(ctx, o.pool, items, func(completed, total int) {
		o.logger.Info("source database completed",
			zap.Int("completed", completed), zap.Int("total", total))
	})

	for _, r := range results {
		if r.Err == nil {
			continue
		}
		if errors.Is(r.Err, context.Canceled) && o.budget.Exhausted() {
			// Budget stop, already reflected in the tracker.
			continue
		}
		return fmt.Errorf("source db %s: %w", r.ID, r.Err)
	}
	return nil
}

// runSourceDB generates mappings for every prepared question of one source
// database. Requests are processed sequentially so records stay in
// question order; concurrency lives at the source-db level.
func (o *Orchestrator) runSourceDB(
	ctx context.Context,
	pipeline config.PipelineConfig,
	sourceDBID string,
	targetSchema string,
	targetSamples models.SampleSet,
) (*DBResult, error) {
	questions, err := o.store.Questions(pipeline.SourceDataset, sourceDBID)
	if err != nil {
		return nil, fmt.Errorf("questions: %w", err)
	}
	prepared := dataset.Prepare(questions, o.cfg.Generation.ShuffleSeed, o.cfg.Generation.QuestionLimit)
	if len(prepared) == 0 {
		return nil, fmt.Errorf("no questions selected for %s", sourceDBID)
	}

	sourceSchema, err := o.store.Schema(pipeline.SourceDataset, sourceDBID)
	if err != nil {
		return nil, fmt.Errorf("source schema: %w", err)
	}

	requests, err := BuildRequests(o.prompts, BatchInput{
		SourceDataset: pipeline.SourceDataset,
		SourceDBID:    sourceDBID,
		TargetDataset: pipeline.TargetDataset,
		TargetDBID:    pipeline.TargetDBID,
		Questions:     prepared,
		SourceSchema:  sourceSchema,
		TargetSchema:  targetSchema,
		TargetSamples: targetSamples,
	}, o.cfg.Generation.QuestionsPerPrompt)
	if err != nil {
		return nil, err
	}

	records, stats := o.GenerateAll(ctx, requests)
	res := &DBResult{
		SourceDBID: sourceDBID,
		TargetDBID: pipeline.TargetDBID,
		Records:    records,
		Stats:      stats,
	}

	if o.sink != nil {
		if err := o.sink.WriteSourceResult(pipeline, res); err != nil {
			return nil, fmt.Errorf("persist results for %s: %w", sourceDBID, err)
		}
	}
	return res, nil
}

// GenerateAll drives a request list through the attempt/validate/retry
// loop, returning the emitted records in request order together with the
// accumulated statistics. Requests are processed sequentially; requests
// reached after a run stop are abandoned, not attempted.
func (o *Orchestrator) GenerateAll(ctx context.Context, requests []*Request) ([]models.MappingRecord, models.RunStats) {
	var all []models.MappingRecord
	var stats models.RunStats
	for _, req := range requests {
		if ctx.Err() != nil {
			delta := o.abandonBatch(req, "run stopped before batch started")
			stats.Merge(delta)
			continue
		}
		records, delta := o.processRequest(ctx, req)
		all = append(all, records...)
		stats.Merge(delta)
		o.tracker.Add(req.SourceDBID, delta)
	}
	return all, stats
}

// processRequest drives one batch through the attempt/validate/retry loop.
// Valid entries accumulate across attempts; a retry only needs to fill the
// gaps, and entries already accepted are never replaced.
func (o *Orchestrator) processRequest(ctx context.Context, req *Request) ([]models.MappingRecord, models.RunStats) {
	var stats models.RunStats
	accepted := make(map[int]models.MappingRecord)
	var lastFailure string

	system := ""
	if o.cfg.Model.UseSystemInstruction {
		system = o.prompts.System
	}

	maxAttempts := o.cfg.Generation.MaxRetryPerPrompt
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			lastFailure = "run stopped"
			break
		}
		if attempt > 1 {
			stats.Retried++
			if !sleepCtx(ctx, o.cfg.Generation.RetrySleep*time.Duration(attempt-1)) {
				lastFailure = "run stopped during backoff"
				break
			}
		}

		stats.Requests++
		result, err := o.client.Generate(ctx, req.Prompt, system)
		if err != nil {
			stats.ErrorResponses++
			lastFailure = err.Error()
			o.transcript(req, attempt, "", err.Error())
			if !o.charge(req, attempt, err.Error()) {
				break
			}
			var llmErr *llm.Error
			if errors.As(err, &llmErr) && !llmErr.IsRetryable() {
				o.logger.Warn("permanent generation error, abandoning batch",
					zap.String("source_db_id", req.SourceDBID),
					zap.Int("batch", req.BatchIndex), zap.Error(err))
				break
			}
			continue
		}

		stats.Responses++
		stats.PromptTokens += result.PromptTokens
		stats.CompletionTokens += result.CompletionTokens
		stats.ModelSeconds += result.ElapsedSeconds
		o.transcript(req, attempt, result.Content, "")

		entries, repaired, err := DecodeResponse(result.Content)
		if err != nil {
			stats.UnexpectedErrors++
			lastFailure = err.Error()
			if !o.charge(req, attempt, err.Error()) {
				break
			}
			continue
		}
		if repaired {
			stats.CorrectedResponses++
		} else {
			stats.SuccessResponses++
		}

		missing := o.acceptEntries(req, entries, accepted, attempt)
		if len(missing) == 0 {
			break
		}
		lastFailure = fmt.Sprintf("%d of %d entries missing or invalid", len(missing), len(req.Questions))
		if !o.charge(req, attempt, lastFailure) {
			break
		}
	}

	records := make([]models.MappingRecord, 0, len(accepted))
	var lost []string
	for i, q := range req.Questions {
		if rec, ok := accepted[i]; ok {
			records = append(records, rec)
		} else {
			lost = append(lost, q.Question)
		}
	}
	stats.RecordsEmitted = len(records)
	if len(lost) > 0 {
		stats.Exhausted += len(lost)
		o.tracker.Skip(SkippedPrompt{
			SourceDBID: req.SourceDBID,
			BatchIndex: req.BatchIndex,
			Questions:  lost,
			Reason:     lastFailure,
		})
	}
	return records, stats
}

// acceptEntries validates a response's entries against the batch and folds
// the valid ones into accepted, keyed by question position. Entries are
// matched to questions by position; surplus entries are dropped. It
// returns the positions still unfilled.
func (o *Orchestrator) acceptEntries(req *Request, entries []Entry, accepted map[int]models.MappingRecord, attempt int) []int {
	for i, e := range entries {
		if i >= len(req.Questions) {
			break
		}
		if _, ok := accepted[i]; ok {
			continue
		}
		verdict := ValidateEntry(e, req.TargetDBID, o.cfg.Generation.RequiredFields)
		if !verdict.Valid {
			o.logger.Debug("entry rejected",
				zap.String("source_db_id", req.SourceDBID),
				zap.Int("batch", req.BatchIndex),
				zap.Int("entry", i),
				zap.String("reason", verdict.Reason()))
			continue
		}
		rec := e.Record(req, req.Questions[i])
		rec.Generation = &models.GenerationMetadata{
			Model:    o.client.GetModel(),
			Provider: o.client.GetProvider(),
			Attempts: attempt,
		}
		accepted[i] = rec
	}

	var missing []int
	for i := range req.Questions {
		if _, ok := accepted[i]; !ok {
			missing = append(missing, i)
		}
	}
	return missing
}

// charge spends one unit of the failure budget. When the budget runs out
// it cancels the run context and marks the run incomplete.
func (o *Orchestrator) charge(req *Request, attempt int, reason string) bool {
	if o.budget.Charge() {
		return true
	}
	o.logger.Error("global failure budget exhausted, stopping run",
		zap.String("source_db_id", req.SourceDBID),
		zap.Int("batch", req.BatchIndex),
		zap.Int("attempt", attempt),
		zap.String("last_failure", reason))
	o.tracker.MarkIncomplete("max_fail_limit reached")
	if o.stop != nil {
		o.stop()
	}
	return false
}

func (o *Orchestrator) abandonBatch(req *Request, reason string) models.RunStats {
	var lost []string
	for _, q := range req.Questions {
		lost = append(lost, q.Question)
	}
	delta := models.RunStats{Exhausted: len(lost)}
	o.tracker.Add(req.SourceDBID, delta)
	o.tracker.Skip(SkippedPrompt{
		SourceDBID: req.SourceDBID,
		BatchIndex: req.BatchIndex,
		Questions:  lost,
		Reason:     reason,
	})
	return delta
}

func (o *Orchestrator) transcript(req *Request, attempt int, response, errMsg string) {
	if o.sink == nil {
		return
	}
	system := ""
	if o.cfg.Model.UseSystemInstruction {
		system = o.prompts.System
	}
	err := o.sink.AppendTranscript(req, TranscriptEntry{
		BatchIndex: req.BatchIndex,
		Attempt:    attempt,
		System:     system,
		Prompt:     req.Prompt,
		Response:   response,
		Error:      errMsg,
	})
	if err != nil {
		o.logger.Warn("transcript write failed", zap.Error(err))
	}
}

func filterSourceIDs(all, wanted []string) []string {
	if len(wanted) == 0 {
		return all
	}
	keep := make(map[string]bool, len(wanted))
	for _, id := range wanted {
		keep[id] = true
	}
	var out []string
	for _, id := range all {
		if keep[id] {
			out = append(out, id)
		}
	}
	return out
}

// sleepCtx sleeps for d unless the context is cancelled first. Reports
// whether the full sleep completed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
