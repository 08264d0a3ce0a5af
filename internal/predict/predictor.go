// Package predict assigns the final salinity classification to every
// segment: measurements win outright, the trained ensemble covers the rest,
// and distance-based physical-plausibility overrides run last.
package predict

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/estuarymap/salinity-etl/internal/domain"
	"github.com/estuarymap/salinity-etl/internal/features"
	"github.com/estuarymap/salinity-etl/internal/labels"
)

// Classifier produces a class index and per-class probabilities for a
// feature vector. Satisfied by *forest.Forest.
type Classifier interface {
	Predict(x []float64) (int, []float64)
}

// MaxVeryLowShare is the acceptable fraction of model predictions in the
// lowest confidence band. Above it, the probability-to-band thresholds (or
// the features themselves) need revision; an earlier iteration of this
// system concentrated nearly all predictions in very_low and the thresholds
// were retuned in response.
const MaxVeryLowShare = 0.9

// Summary reports what the predictor did across the full segment set.
type Summary struct {
	Total        int
	Measured     int
	Predicted    int
	Overridden   int // predictions replaced by a distance rule
	VeryLowShare float64

	// Warnings are data-quality observations that do not invalidate the
	// run, e.g. a degenerate confidence distribution.
	Warnings []string
}

// Predictor applies the trained classifier and the post-processing rules.
type Predictor struct {
	classifier Classifier
	encoding   []domain.SalinityClass
	bands      domain.ConfidenceBands
	rules      domain.OverrideRules
	logger     *slog.Logger
}

// New creates a predictor. The encoding maps the classifier's integer labels
// back to salinity classes and must match the training encoding.
func New(classifier Classifier, encoding []domain.SalinityClass, bands domain.ConfidenceBands, rules domain.OverrideRules, logger *slog.Logger) (*Predictor, error) {
	if len(encoding) != len(domain.Classes()) {
		return nil, fmt.Errorf("label encoding has %d classes, want %d", len(encoding), len(domain.Classes()))
	}
	if err := bands.Validate(); err != nil {
		return nil, err
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return &Predictor{
		classifier: classifier,
		encoding:   encoding,
		bands:      bands,
		rules:      rules,
		logger:     logger,
	}, nil
}

// Classify produces exactly one classification per segment. Segments with
// ground truth keep their measurement; everything else is model-predicted
// and then distance-checked. A segment missing from the feature tables is a
// coverage bug and fails the run.
func (p *Predictor) Classify(ctx context.Context, segments []domain.Segment, tables []features.Table, labelSet labels.Set) ([]domain.ClassifiedSegment, Summary, error) {
	rows := make(map[string][]float64)
	for _, table := range tables {
		for _, row := range table.Rows {
			rows[row.SegmentID] = row.Values
		}
	}

	out := make([]domain.ClassifiedSegment, 0, len(segments))
	summary := Summary{Total: len(segments)}
	veryLow := 0

	for i, seg := range segments {
		if i%4096 == 0 && ctx.Err() != nil {
			return nil, Summary{}, ctx.Err()
		}

		record := domain.ClassifiedSegment{
			SegmentID:          seg.ID,
			Region:             seg.Region,
			DistanceToCoastKm:  seg.DistanceToCoastKm,
			HasGroundTruth:     seg.HasGroundTruth(),
			InEstuaryCatchment: seg.InEstuaryCatchment,
			ProcessedAt:        domain.TimeNow(),
		}

		if label, ok := labelSet[seg.ID]; ok {
			record.Class = label.Class
			record.Method = domain.MethodMeasured
			record.Confidence = domain.ConfidenceHigh
			summary.Measured++
			out = append(out, record)
			continue
		}

		vector, ok := rows[seg.ID]
		if !ok {
			return nil, Summary{}, fmt.Errorf("segment %s has no feature row: extraction coverage is broken", seg.ID)
		}

		idx, probs := p.classifier.Predict(vector)
		prob := probs[idx]
		record.Class = p.encoding[idx]
		record.Method = domain.MethodModel
		record.Confidence = domain.ConfidenceFromProbability(prob, p.bands)
		record.Probability = &prob
		summary.Predicted++
		if record.Confidence == domain.ConfidenceVeryLow {
			veryLow++
		}

		corrected := domain.ApplyDistanceOverride(record, p.rules)
		if corrected.Method == domain.MethodDistanceRule {
			summary.Overridden++
		}
		out = append(out, corrected)
	}

	if summary.Predicted > 0 {
		summary.VeryLowShare = float64(veryLow) / float64(summary.Predicted)
		if summary.VeryLowShare > MaxVeryLowShare {
			summary.Warnings = append(summary.Warnings, fmt.Sprintf(
				"%.0f%% of model predictions are very_low confidence: confidence bands or features need revision",
				summary.VeryLowShare*100))
		}
	}

	p.logger.Info("segments classified",
		"total", summary.Total,
		"measured", summary.Measured,
		"predicted", summary.Predicted,
		"overridden", summary.Overridden,
		"very_low_share", fmt.Sprintf("%.3f", summary.VeryLowShare),
	)
	return out, summary, nil
}
