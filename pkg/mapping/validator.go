package mapping

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ekaya-inc/schema-mapper/pkg/jsonutil"
	"github.com/ekaya-inc/schema-mapper/pkg/llm"
	"github.com/ekaya-inc/schema-mapper/pkg/models"
)

// Entry is one mapped question as the model returned it, after flexible
// decoding. Field names follow the response contract the prompt asks for.
type Entry struct {
	SourceDBID     string
	SourceQuestion string
	SourceQuery    string
	TargetDBID     string
	TargetQuestion string
	TargetQuery    string
	Replacements   map[string]string
	Thought        string

	present map[string]bool
}

// Has reports whether the named field appeared in the raw entry at all,
// regardless of its value.
func (e Entry) Has(field string) bool { return e.present[field] }

// DecodeResponse extracts the JSON array from raw model output and decodes
// its entries, tolerating numbers or booleans where strings were asked
// for. The repaired flag reports whether comma repair was applied, so the
// caller can count a corrected response.
func DecodeResponse(raw string) (entries []Entry, repaired bool, err error) {
	jsonStr, repaired, err := llm.ExtractJSONArray(raw)
	if err != nil {
		return nil, false, err
	}

	var rawEntries []map[string]json.RawMessage
	if err := json.Unmarshal([]byte(jsonStr), &rawEntries); err != nil {
		return nil, repaired, fmt.Errorf("decode response entries: %w", err)
	}

	entries = make([]Entry, 0, len(rawEntries))
	for _, m := range rawEntries {
		e := Entry{
			SourceDBID:     strings.TrimSpace(jsonutil.FlexibleStringValue(m["source_db_id"])),
			SourceQuestion: strings.TrimSpace(jsonutil.FlexibleStringValue(m["source_question"])),
			SourceQuery:    strings.TrimSpace(jsonutil.FlexibleStringValue(m["source_query"])),
			TargetDBID:     strings.TrimSpace(jsonutil.FlexibleStringValue(m["target_db_id"])),
			TargetQuestion: strings.TrimSpace(jsonutil.FlexibleStringValue(m["target_question"])),
			TargetQuery:    strings.TrimSpace(jsonutil.FlexibleStringValue(m["target_query"])),
			Replacements:   jsonutil.FlexibleStringMap(m["tables_columns_replacement"]),
			Thought:        strings.TrimSpace(jsonutil.FlexibleStringValue(m["thought"])),
			present:        make(map[string]bool, len(m)),
		}
		for k := range m {
			e.present[k] = true
		}
		entries = append(entries, e)
	}
	return entries, repaired, nil
}

// EntryVerdict is the outcome of validating a single response entry.
type EntryVerdict struct {
	Valid          bool
	MissingFields  []string
	TargetMismatch bool
}

func (v EntryVerdict) Reason() string {
	if v.Valid {
		return ""
	}
	if v.TargetMismatch {
		return "target_db_id does not match the requested target database"
	}
	return "missing required fields: " + strings.Join(v.MissingFields, ", ")
}

// ValidateEntry checks one entry against the required-fields contract and
// the fixed target database of the request. Validation is per entry; one
// bad entry never condemns its batch siblings.
func ValidateEntry(e Entry, expectedTargetDBID string, requiredFields []string) EntryVerdict {
	values := map[string]string{
		"source_db_id":    e.SourceDBID,
		"source_question": e.SourceQuestion,
		"source_query":    e.SourceQuery,
		"target_db_id":    e.TargetDBID,
		"target_question": e.TargetQuestion,
		"target_query":    e.TargetQuery,
		"thought":         e.Thought,
	}

	var verdict EntryVerdict
	for _, name := range requiredFields {
		// The replacement map is required to be present, not non-empty.
		if name == "tables_columns_replacement" {
			if !e.Has(name) {
				verdict.MissingFields = append(verdict.MissingFields, name)
			}
			continue
		}
		if values[name] == "" {
			verdict.MissingFields = append(verdict.MissingFields, name)
		}
	}
	if len(verdict.MissingFields) > 0 {
		return verdict
	}
	if !strings.EqualFold(e.TargetDBID, expectedTargetDBID) {
		verdict.TargetMismatch = true
		return verdict
	}
	verdict.Valid = true
	return verdict
}

// Record converts a validated entry into a mapping record for the given
// source question. The target db id is pinned to the request's target
// regardless of letter case in the response.
func (e Entry) Record(req *Request, q models.Question) models.MappingRecord {
	return models.MappingRecord{
		SourceDataset:            req.SourceDataset,
		SourceDBID:               req.SourceDBID,
		SourceQuestion:           q.Question,
		SourceQuery:              q.Query,
		TargetDBID:               req.TargetDBID,
		TargetQuestion:           e.TargetQuestion,
		TargetQuery:              e.TargetQuery,
		TablesColumnsReplacement: e.Replacements,
		Thought:                  e.Thought,
	}
}
