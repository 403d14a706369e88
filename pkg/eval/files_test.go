package eval

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/schema-mapper/pkg/models"
)

func TestResponseFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"response_db2.json", "response_db1.json", "summary.json", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("[]"), 0o644))
	}

	files, err := ResponseFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "db1", SourceDBFromFile(files[0]))
	assert.Equal(t, "db2", SourceDBFromFile(files[1]))
}

func TestLoadSaveRecords_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "response_db1.json")

	in := []models.MappingRecord{{
		SourceDBID:     "db1",
		SourceQuestion: "q",
		SourceQuery:    "SELECT 1",
		TargetDBID:     "warehouse",
		TargetQuestion: "m",
		TargetQuery:    "SELECT 2",
		Structural:     &models.StructuralLabel{Status: models.StructuralMatch},
	}}
	require.NoError(t, SaveRecords(path, in))

	out, err := LoadRecords(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestSaveRecords_NilBecomesEmptyArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "response_db1.json")
	require.NoError(t, SaveRecords(path, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))
}
