package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/schema-mapper/pkg/models"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestStore(t *testing.T) *FSStore {
	t.Helper()
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "spider", "questions", "schools.json"), `[
		{"db_id": "schools", "question": "How many schools are in county X?", "query": "SELECT COUNT(*) FROM schools WHERE county = 'X'"},
		{"db_id": "schools", "question": "List school names", "query": "SELECT name FROM schools"}
	]`)
	writeFile(t, filepath.Join(root, "spider", "questions", "colleges.json"), `[
		{"db_id": "colleges", "question": "Count colleges", "query": "SELECT COUNT(*) FROM colleges"}
	]`)
	writeFile(t, filepath.Join(root, "spider", "schemas.json"),
		`{"schools": "CREATE TABLE schools (name text, county text)"}`)
	writeFile(t, filepath.Join(root, "bird", "schemas.json"),
		`{"institutions": {"tables": ["institutions"]}}`)
	writeFile(t, filepath.Join(root, "bird", "target_samples", "sample_institutions.json"),
		`{"institutions": [["St. Mary", "Alameda"], ["Oak High", "Fresno"]]}`)

	return NewFSStore(root)
}

func TestFSStore_SourceDBIDs(t *testing.T) {
	store := newTestStore(t)
	ids, err := store.SourceDBIDs("spider")
	require.NoError(t, err)
	assert.Equal(t, []string{"colleges", "schools"}, ids)
}

func TestFSStore_Questions(t *testing.T) {
	store := newTestStore(t)
	questions, err := store.Questions("spider", "schools")
	require.NoError(t, err)
	require.Len(t, questions, 2)
	assert.Equal(t, "schools", questions[0].DBID)
	assert.Equal(t, "spider", questions[0].Dataset)
	assert.Contains(t, questions[0].Query, "COUNT(*)")
}

func TestFSStore_QuestionsMissingDB(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Questions("spider", "nope")
	assert.Error(t, err)
}

func TestFSStore_Schema(t *testing.T) {
	store := newTestStore(t)

	text, err := store.Schema("spider", "schools")
	require.NoError(t, err)
	assert.Equal(t, "CREATE TABLE schools (name text, county text)", text)

	// Structured schemas come back as JSON text.
	text, err = store.Schema("bird", "institutions")
	require.NoError(t, err)
	assert.JSONEq(t, `{"tables": ["institutions"]}`, text)

	_, err = store.Schema("spider", "missing")
	assert.Error(t, err)
}

func TestFSStore_Samples(t *testing.T) {
	store := newTestStore(t)

	samples, err := store.Samples("bird", "institutions")
	require.NoError(t, err)
	require.Contains(t, samples, "institutions")
	assert.Len(t, samples["institutions"], 2)

	// Datasets without samples return nil, not an error.
	samples, err = store.Samples("spider", "schools")
	require.NoError(t, err)
	assert.Nil(t, samples)
}

func makeQuestions(n int) []models.Question {
	questions := make([]models.Question, n)
	for i := range questions {
		questions[i] = models.Question{DBID: "schools", Question: string(rune('a' + i))}
	}
	return questions
}

func TestPrepare_SeededShuffleIsReproducible(t *testing.T) {
	questions := makeQuestions(20)

	first := Prepare(questions, 42, NoLimit)
	second := Prepare(questions, 42, NoLimit)
	assert.Equal(t, first, second)

	other := Prepare(questions, 7, NoLimit)
	assert.NotEqual(t, first, other)
}

func TestPrepare_KeepOrder(t *testing.T) {
	questions := makeQuestions(5)
	got := Prepare(questions, SeedKeepOrder, NoLimit)
	assert.Equal(t, questions, got)
}

func TestPrepare_Limit(t *testing.T) {
	questions := makeQuestions(10)

	got := Prepare(questions, SeedKeepOrder, 3)
	assert.Len(t, got, 3)
	assert.Equal(t, questions[:3], got)

	// Limit larger than the list keeps everything.
	got = Prepare(questions, SeedKeepOrder, 50)
	assert.Len(t, got, 10)
}

func TestPrepare_DoesNotMutateInput(t *testing.T) {
	questions := makeQuestions(10)
	original := make([]models.Question, len(questions))
	copy(original, questions)

	Prepare(questions, 99, NoLimit)
	assert.Equal(t, original, questions)
}
