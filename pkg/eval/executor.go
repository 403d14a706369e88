package eval

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	// Drivers for the three supported execution engines.
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	_ "github.com/microsoft/go-mssqldb"

	"github.com/ekaya-inc/schema-mapper/pkg/config"
	"github.com/ekaya-inc/schema-mapper/pkg/models"
	"github.com/ekaya-inc/schema-mapper/pkg/sqlguard"
)

// Opener yields a database handle for one target database. The sqlite
// engine resolves a file per target db id; server engines reuse one DSN.
type Opener interface {
	Open(targetDBID string) (*sql.DB, error)
}

// EngineOpener implements Opener for the configured engine.
type EngineOpener struct {
	cfg config.EvaluationConfig
}

func NewEngineOpener(cfg config.EvaluationConfig) *EngineOpener {
	return &EngineOpener{cfg: cfg}
}

func (o *EngineOpener) Open(targetDBID string) (*sql.DB, error) {
	switch o.cfg.Engine {
	case "sqlite3":
		path := filepath.Join(o.cfg.DatabasesDir, targetDBID, targetDBID+".sqlite")
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("target database %s: %w", targetDBID, err)
		}
		return sql.Open("sqlite3", "file:"+path+"?mode=ro")
	case "postgres":
		if o.cfg.DSN == "" {
			return nil, fmt.Errorf("postgres engine requires EVAL_DB_DSN")
		}
		return sql.Open("pgx", o.cfg.DSN)
	case "sqlserver":
		if o.cfg.DSN == "" {
			return nil, fmt.Errorf("sqlserver engine requires EVAL_DB_DSN")
		}
		return sql.Open("sqlserver", o.cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported engine %q", o.cfg.Engine)
	}
}

var _ Opener = (*EngineOpener)(nil)

// Executor runs generated target queries against the live target database
// and labels each record success, empty or error. Query errors are
// expected outcomes of evaluating generated SQL, never evaluator faults.
type Executor struct {
	opener   Opener
	timeout  time.Duration
	rowLimit int
	logger   *zap.Logger
}

func NewExecutor(opener Opener, cfg config.EvaluationConfig, logger *zap.Logger) *Executor {
	return &Executor{
		opener:   opener,
		timeout:  cfg.QueryTimeout,
		rowLimit: cfg.RowLimit,
		logger:   logger.Named("executor"),
	}
}

// Evaluate labels every record in place. All records in one call must
// target the same database. One query's outcome never affects its
// siblings; each runs in its own rolled-back transaction.
func (e *Executor) Evaluate(ctx context.Context, targetDBID string, records []models.MappingRecord) ([]models.MappingRecord, error) {
	db, err := e.opener.Open(targetDBID)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	for i := range records {
		if ctx.Err() != nil {
			return records, ctx.Err()
		}
		records[i].Execution = e.runOne(ctx, db, &records[i])
	}
	return records, nil
}

func (e *Executor) runOne(ctx context.Context, db *sql.DB, rec *models.MappingRecord) *models.ExecutionLabel {
	if !rec.IsGenerated() {
		return &models.ExecutionLabel{
			Status: models.StatusNotEvaluated,
			Reason: "no generated target query",
		}
	}

	query, err := sqlguard.Normalize(rec.TargetQuery)
	if err != nil {
		return &models.ExecutionLabel{Status: models.ExecutionError, Reason: err.Error()}
	}
	if query == "" {
		return &models.ExecutionLabel{Status: models.ExecutionError, Reason: "empty query"}
	}
	if err := sqlguard.EnsureReadOnly(query); err != nil {
		return &models.ExecutionLabel{Status: models.ExecutionError, Reason: err.Error()}
	}
	if hit := sqlguard.ScreenLiterals(query); hit != nil {
		e.logger.Warn("injection-shaped literal in generated query",
			zap.String("target_db_id", rec.TargetDBID),
			zap.String("fingerprint", hit.Fingerprint))
		return &models.ExecutionLabel{
			Status: models.ExecutionError,
			Reason: fmt.Sprintf("injection-shaped literal (fingerprint %s)", hit.Fingerprint),
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	tx, err := db.BeginTx(runCtx, nil)
	if err != nil {
		return timeoutOrError(runCtx, err)
	}
	// Rolled back unconditionally; evaluation leaves no trace even if a
	// mutating statement slips past the guard.
	defer tx.Rollback()

	rows, err := tx.QueryContext(runCtx, query)
	if err != nil {
		return timeoutOrError(runCtx, err)
	}
	defer rows.Close()

	preview, count, err := e.collect(rows)
	if err != nil {
		return timeoutOrError(runCtx, err)
	}
	if count == 0 {
		return &models.ExecutionLabel{Status: models.ExecutionEmpty}
	}
	return &models.ExecutionLabel{
		Status:      models.ExecutionSuccess,
		RowsPreview: preview,
		RowCount:    count,
	}
}

// timeoutOrError labels a query failure, collapsing deadline errors to a
// stable "timeout" reason. Drivers surface an exceeded deadline in their
// own words (sqlite says "interrupted"), so the context is consulted too.
func timeoutOrError(runCtx context.Context, err error) *models.ExecutionLabel {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return &models.ExecutionLabel{Status: models.ExecutionError, Reason: "timeout"}
	}
	return &models.ExecutionLabel{Status: models.ExecutionError, Reason: err.Error()}
}

// collect drains the result set, keeping up to rowLimit rows as preview
// and counting the rest.
func (e *Executor) collect(rows *sql.Rows) ([][]any, int, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, 0, err
	}

	var preview [][]any
	count := 0
	for rows.Next() {
		count++
		if count > e.rowLimit {
			continue
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, 0, err
		}
		for i, v := range values {
			// Byte slices render as base64 in JSON; store text instead.
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		preview = append(preview, values)
	}
	return preview, count, rows.Err()
}
