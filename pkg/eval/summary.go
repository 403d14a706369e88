package eval

import (
	"sort"

	"github.com/ekaya-inc/schema-mapper/pkg/models"
)

// Summarize recomputes summary rows from labeled records, one fine row per
// source db plus one coarse row for the whole target. Always derived from
// scratch; never incrementally updated, so rerunning any evaluator stage
// and summarizing again cannot drift.
func Summarize(dataset, targetDBID string, perSource map[string][]models.MappingRecord) (models.SummaryRecord, []models.SummaryRecord) {
	coarse := models.SummaryRecord{Dataset: dataset, TargetDBID: targetDBID}

	sourceIDs := make([]string, 0, len(perSource))
	for id := range perSource {
		sourceIDs = append(sourceIDs, id)
	}
	sort.Strings(sourceIDs)

	fine := make([]models.SummaryRecord, 0, len(sourceIDs))
	for _, sourceDBID := range sourceIDs {
		row := tally(perSource[sourceDBID])
		row.Dataset = dataset
		row.TargetDBID = targetDBID
		row.SourceDBID = sourceDBID
		fine = append(fine, row)

		coarse.Total += row.Total
		coarse.NotGenerated += row.NotGenerated
		coarse.StructuralMatches += row.StructuralMatches
		coarse.ExecSuccess += row.ExecSuccess
		coarse.ExecEmpty += row.ExecEmpty
		coarse.ExecErrors += row.ExecErrors
		coarse.MeaningfulQuestions += row.MeaningfulQuestions
		coarse.CorrectMappings += row.CorrectMappings
	}
	fillRates(&coarse)
	return coarse, fine
}

func tally(records []models.MappingRecord) models.SummaryRecord {
	var row models.SummaryRecord
	row.Total = len(records)
	for i := range records {
		rec := &records[i]
		if !rec.IsGenerated() {
			row.NotGenerated++
			continue
		}
		if rec.Structural != nil && rec.Structural.Status == models.StructuralMatch {
			row.StructuralMatches++
		}
		if rec.Execution != nil {
			switch rec.Execution.Status {
			case models.ExecutionSuccess:
				row.ExecSuccess++
			case models.ExecutionEmpty:
				row.ExecEmpty++
			case models.ExecutionError:
				row.ExecErrors++
			}
		}
		if rec.Semantic != nil && rec.Semantic.Status == SemanticEvaluated {
			if rec.Semantic.MeaningfulQuestion == "yes" {
				row.MeaningfulQuestions++
			}
			if rec.Semantic.CorrectMapping == "yes" {
				row.CorrectMappings++
			}
		}
	}
	fillRates(&row)
	return row
}

// fillRates derives rates over generated records. Execution has two: the
// result rate counts only non-empty successes, the run rate counts any
// query that executed without error.
func fillRates(row *models.SummaryRecord) {
	generated := row.Total - row.NotGenerated
	if generated == 0 {
		return
	}
	n := float64(generated)
	row.StructuralRate = float64(row.StructuralMatches) / n
	row.ExecResultRate = float64(row.ExecSuccess) / n
	row.ExecRunRate = float64(row.ExecSuccess+row.ExecEmpty) / n
	row.MeaningfulRate = float64(row.MeaningfulQuestions) / n
	row.CorrectMappingRate = float64(row.CorrectMappings) / n
}
