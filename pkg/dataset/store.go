// Package dataset provides read-only access to question lists, schema text
// and sample rows, keyed by dataset name and database id.
package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ekaya-inc/schema-mapper/pkg/models"
)

// Store is the lookup capability the pipeline core needs. Implementations
// never mutate the underlying data.
type Store interface {
	// SourceDBIDs lists the database ids that have question files in a
	// dataset, in stable order.
	SourceDBIDs(dataset string) ([]string, error)

	// Questions returns the question list of one source database.
	Questions(dataset, dbID string) ([]models.Question, error)

	// Schema returns the rendered schema text of one database.
	Schema(dataset, dbID string) (string, error)

	// Samples returns sample rows for a target database, or nil when the
	// dataset carries none.
	Samples(dataset, dbID string) (models.SampleSet, error)
}

const samplePrefix = "sample_"

// FSStore reads the on-disk dataset layout: per-dataset directories with
// questions/<db_id>.json, schemas.json and target_samples/sample_<db_id>.json.
type FSStore struct {
	root string
}

// NewFSStore creates a store rooted at the given data directory.
func NewFSStore(root string) *FSStore {
	return &FSStore{root: root}
}

// SourceDBIDs implements Store.
func (s *FSStore) SourceDBIDs(dataset string) ([]string, error) {
	dir := filepath.Join(s.root, dataset, "questions")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read question folder %s: %w", dir, err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

// Questions implements Store.
func (s *FSStore) Questions(dataset, dbID string) ([]models.Question, error) {
	path := filepath.Join(s.root, dataset, "questions", dbID+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read questions %s: %w", path, err)
	}

	var questions []models.Question
	if err := json.Unmarshal(data, &questions); err != nil {
		return nil, fmt.Errorf("parse questions %s: %w", path, err)
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("question file %s is empty", path)
	}
	for i := range questions {
		if questions[i].Dataset == "" {
			questions[i].Dataset = dataset
		}
	}
	return questions, nil
}

// Schema implements Store. Schema values may be stored as plain strings or
// as structured objects; objects are re-rendered to compact JSON text.
func (s *FSStore) Schema(dataset, dbID string) (string, error) {
	path := filepath.Join(s.root, dataset, "schemas.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read schemas %s: %w", path, err)
	}

	var schemas map[string]json.RawMessage
	if err := json.Unmarshal(data, &schemas); err != nil {
		return "", fmt.Errorf("parse schemas %s: %w", path, err)
	}

	raw, ok := schemas[dbID]
	if !ok {
		return "", fmt.Errorf("db_id %q not found in %s", dbID, path)
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text, nil
	}
	return string(raw), nil
}

// Samples implements Store.
func (s *FSStore) Samples(dataset, dbID string) (models.SampleSet, error) {
	path := filepath.Join(s.root, dataset, "target_samples", samplePrefix+dbID+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read samples %s: %w", path, err)
	}

	var samples models.SampleSet
	if err := json.Unmarshal(data, &samples); err != nil {
		return nil, fmt.Errorf("parse samples %s: %w", path, err)
	}
	return samples, nil
}

// Ensure FSStore implements Store at compile time.
var _ Store = (*FSStore)(nil)
