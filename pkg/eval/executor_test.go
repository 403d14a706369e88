package eval

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/schema-mapper/pkg/config"
	"github.com/ekaya-inc/schema-mapper/pkg/models"
)

// seedSQLite builds a target database on disk in the layout the sqlite
// engine expects.
func seedSQLite(t *testing.T, root, dbID string) {
	t.Helper()
	dir := filepath.Join(root, dbID)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	db, err := sql.Open("sqlite3", filepath.Join(dir, dbID+".sqlite"))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE facilities (id INTEGER PRIMARY KEY, title TEXT, region TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO facilities (title, region) VALUES
		('North High', 'North'), ('South High', 'South'), ('East Middle', 'East')`)
	require.NoError(t, err)
}

func newTestExecutor(t *testing.T, root string) *Executor {
	t.Helper()
	cfg := config.EvaluationConfig{
		Engine:       "sqlite3",
		DatabasesDir: root,
		QueryTimeout: 5 * time.Second,
		RowLimit:     2,
	}
	return NewExecutor(NewEngineOpener(cfg), cfg, zap.NewNop())
}

func record(targetQuery string) models.MappingRecord {
	return models.MappingRecord{
		SourceQuestion: "q", SourceQuery: "SELECT 1",
		TargetDBID:     "warehouse",
		TargetQuestion: "m", TargetQuery: targetQuery,
	}
}

func TestExecutor_Classification(t *testing.T) {
	root := t.TempDir()
	seedSQLite(t, root, "warehouse")
	executor := newTestExecutor(t, root)

	tests := []struct {
		name       string
		query      string
		wantStatus string
	}{
		{"rows returned", "SELECT title FROM facilities", models.ExecutionSuccess},
		{"no rows", "SELECT title FROM facilities WHERE region = 'West'", models.ExecutionEmpty},
		{"bad column", "SELECT nosuch FROM facilities", models.ExecutionError},
		{"bad table", "SELECT title FROM nosuch", models.ExecutionError},
		{"trailing semicolon tolerated", "SELECT title FROM facilities;", models.ExecutionSuccess},
		{"multi statement rejected", "SELECT 1; DROP TABLE facilities", models.ExecutionError},
		{"mutating statement rejected", "DELETE FROM facilities", models.ExecutionError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := executor.Evaluate(context.Background(), "warehouse", []models.MappingRecord{record(tt.query)})
			require.NoError(t, err)
			require.NotNil(t, records[0].Execution)
			assert.Equal(t, tt.wantStatus, records[0].Execution.Status)
			if tt.wantStatus == models.ExecutionError {
				assert.NotEmpty(t, records[0].Execution.Reason)
			}
		})
	}
}

func TestExecutor_PreviewCappedButCountFull(t *testing.T) {
	root := t.TempDir()
	seedSQLite(t, root, "warehouse")
	executor := newTestExecutor(t, root)

	records, err := executor.Evaluate(context.Background(), "warehouse",
		[]models.MappingRecord{record("SELECT title, region FROM facilities ORDER BY id")})
	require.NoError(t, err)

	label := records[0].Execution
	require.Equal(t, models.ExecutionSuccess, label.Status)
	assert.Equal(t, 3, label.RowCount)
	require.Len(t, label.RowsPreview, 2)
	assert.Equal(t, "North High", label.RowsPreview[0][0])
}

func TestExecutor_SiblingIsolation(t *testing.T) {
	root := t.TempDir()
	seedSQLite(t, root, "warehouse")
	executor := newTestExecutor(t, root)

	records, err := executor.Evaluate(context.Background(), "warehouse", []models.MappingRecord{
		record("SELECT nosuch FROM facilities"),
		record("SELECT title FROM facilities"),
	})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionError, records[0].Execution.Status)
	assert.Equal(t, models.ExecutionSuccess, records[1].Execution.Status)
}

func TestExecutor_SlowQueryLabeledTimeout(t *testing.T) {
	root := t.TempDir()
	seedSQLite(t, root, "warehouse")

	cfg := config.EvaluationConfig{
		Engine:       "sqlite3",
		DatabasesDir: root,
		QueryTimeout: 50 * time.Millisecond,
		RowLimit:     2,
	}
	executor := NewExecutor(NewEngineOpener(cfg), cfg, zap.NewNop())

	// A recursive CTE that counts far past what 50ms allows.
	slow := `WITH RECURSIVE c(x) AS (SELECT 1 UNION ALL SELECT x+1 FROM c WHERE x < 1000000000)
		SELECT COUNT(*) FROM c`
	records, err := executor.Evaluate(context.Background(), "warehouse",
		[]models.MappingRecord{record(slow)})
	require.NoError(t, err)

	label := records[0].Execution
	require.Equal(t, models.ExecutionError, label.Status)
	assert.Equal(t, "timeout", label.Reason)
}

func TestExecutor_NotGeneratedSkipped(t *testing.T) {
	root := t.TempDir()
	seedSQLite(t, root, "warehouse")
	executor := newTestExecutor(t, root)

	records, err := executor.Evaluate(context.Background(), "warehouse",
		[]models.MappingRecord{{SourceQuestion: "q", SourceQuery: "SELECT 1", TargetDBID: "warehouse"}})
	require.NoError(t, err)
	assert.Equal(t, models.StatusNotEvaluated, records[0].Execution.Status)
}

func TestEngineOpener_MissingDatabase(t *testing.T) {
	opener := NewEngineOpener(config.EvaluationConfig{Engine: "sqlite3", DatabasesDir: t.TempDir()})
	_, err := opener.Open("nosuch")
	assert.Error(t, err)
}

func TestEngineOpener_ServerEnginesRequireDSN(t *testing.T) {
	for _, engine := range []string{"postgres", "sqlserver"} {
		opener := NewEngineOpener(config.EvaluationConfig{Engine: engine})
		_, err := opener.Open("warehouse")
		assert.Error(t, err, engine)
	}
}
