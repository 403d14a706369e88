package eval

import (
	"go.uber.org/zap"

	"github.com/ekaya-inc/schema-mapper/pkg/models"
	"github.com/ekaya-inc/schema-mapper/pkg/sqltemplate"
)

// Structural labels records by comparing the abstracted templates of the
// source and target queries. Pure computation; records with identical
// templates are a match, anything else including unparseable SQL is a
// mismatch with the reason recorded.
type Structural struct {
	logger *zap.Logger
}

func NewStructural(logger *zap.Logger) *Structural {
	return &Structural{logger: logger.Named("structural")}
}

// Evaluate labels every record in place and returns the slice for
// chaining. Existing structural labels are overwritten; labels on other
// axes are untouched.
func (s *Structural) Evaluate(records []models.MappingRecord) []models.MappingRecord {
	for i := range records {
		records[i].Structural = s.label(&records[i])
	}
	return records
}

func (s *Structural) label(rec *models.MappingRecord) *models.StructuralLabel {
	if !rec.IsGenerated() {
		return &models.StructuralLabel{
			Status: models.StatusNotEvaluated,
			Reason: "no generated target query",
		}
	}

	source, err := sqltemplate.Abstract(rec.SourceQuery)
	if err != nil {
		return &models.StructuralLabel{
			Status: models.StructuralMismatch,
			Reason: "source query: " + err.Error(),
		}
	}
	target, err := sqltemplate.Abstract(rec.TargetQuery)
	if err != nil {
		return &models.StructuralLabel{
			Status:         models.StructuralMismatch,
			SourceTemplate: source.String(),
			Reason:         "target query: " + err.Error(),
		}
	}

	label := &models.StructuralLabel{
		SourceTemplate: source.String(),
		TargetTemplate: target.String(),
	}
	if source.Equal(target) {
		label.Status = models.StructuralMatch
	} else {
		label.Status = models.StructuralMismatch
		label.Reason = "templates differ"
		s.logger.Debug("template mismatch",
			zap.String("source_db_id", rec.SourceDBID),
			zap.String("source_template", label.SourceTemplate),
			zap.String("target_template", label.TargetTemplate))
	}
	return label
}
