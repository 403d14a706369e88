// Package eval implements the three evaluation axes over generated mapping
// records: structural template comparison, live execution against the
// target database, and LLM-judged semantic quality, plus the summary
// aggregator that recomputes rates from labeled records.
package eval

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ekaya-inc/schema-mapper/pkg/models"
)

const (
	responsePrefix = "response_"
	responseSuffix = ".json"
)

// ResponseFiles lists the per-source-db record files in a directory, in
// stable order.
func ResponseFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, responsePrefix) || !strings.HasSuffix(name, responseSuffix) {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	sort.Strings(files)
	return files, nil
}

// SourceDBFromFile recovers the source db id a response file was written
// for.
func SourceDBFromFile(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(strings.TrimPrefix(name, responsePrefix), responseSuffix)
}

// LoadRecords reads one record file.
func LoadRecords(path string) ([]models.MappingRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var records []models.MappingRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return records, nil
}

// SaveRecords writes records to path, creating parent directories.
func SaveRecords(path string, records []models.MappingRecord) error {
	if records == nil {
		records = []models.MappingRecord{}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	data, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
