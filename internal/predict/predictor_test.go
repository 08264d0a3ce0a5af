package predict

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estuarymap/salinity-etl/internal/domain"
	"github.com/estuarymap/salinity-etl/internal/features"
	"github.com/estuarymap/salinity-etl/internal/labels"
)

// stubClassifier returns a fixed class and probability for every vector.
type stubClassifier struct {
	class int
	prob  float64
}

func (s *stubClassifier) Predict(_ []float64) (int, []float64) {
	probs := make([]float64, len(domain.Classes()))
	rest := (1 - s.prob) / float64(len(probs)-1)
	for i := range probs {
		probs[i] = rest
	}
	probs[s.class] = s.prob
	return s.class, probs
}

func newPredictor(t *testing.T, c Classifier) *Predictor {
	t.Helper()
	p, err := New(c, domain.Classes(), domain.DefaultConfidenceBands(), domain.DefaultOverrideRules(), slog.Default())
	require.NoError(t, err)
	return p
}

func singleRowTable(segID string) []features.Table {
	ref := features.Reference(nil)
	return []features.Table{{
		Region: domain.RegionEurope,
		Schema: ref,
		Rows:   []features.Row{{SegmentID: segID, Values: make([]float64, len(ref.Columns))}},
	}}
}

func segmentWithDistance(id string, distKm float64) domain.Segment {
	return domain.Segment{ID: id, Region: domain.RegionEurope, DistanceToCoastKm: distKm}
}

func TestClassify_MeasurementAlwaysWins(t *testing.T) {
	fixed := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	domain.SetClock(clockwork.NewFakeClockAt(fixed))
	defer domain.SetClock(nil)

	// The classifier would say polyhaline; the measurement says freshwater.
	p := newPredictor(t, &stubClassifier{class: 3, prob: 0.99})

	psu := 0.3
	seg := segmentWithDistance("seg-1", 8)
	seg.MeasuredSalinityPSU = &psu
	set := labels.Set{"seg-1": {StationID: "st-1", MedianPSU: psu, Class: domain.Freshwater}}

	out, summary, err := p.Classify(context.Background(), []domain.Segment{seg}, singleRowTable("seg-1"), set)
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.Equal(t, domain.Freshwater, out[0].Class)
	assert.Equal(t, domain.MethodMeasured, out[0].Method)
	assert.Equal(t, domain.ConfidenceHigh, out[0].Confidence)
	assert.Nil(t, out[0].Probability)
	assert.True(t, out[0].HasGroundTruth)
	assert.Equal(t, fixed, out[0].ProcessedAt)
	assert.Equal(t, 1, summary.Measured)
	assert.Equal(t, 0, summary.Predicted)
}

func TestClassify_ModelPrediction(t *testing.T) {
	p := newPredictor(t, &stubClassifier{class: 2, prob: 0.8})

	out, summary, err := p.Classify(context.Background(),
		[]domain.Segment{segmentWithDistance("seg-1", 5)},
		singleRowTable("seg-1"), labels.Set{})
	require.NoError(t, err)

	assert.Equal(t, domain.Mesohaline, out[0].Class)
	assert.Equal(t, domain.MethodModel, out[0].Method)
	assert.Equal(t, domain.ConfidenceHigh, out[0].Confidence)
	require.NotNil(t, out[0].Probability)
	assert.InDelta(t, 0.8, *out[0].Probability, 1e-9)
	assert.Equal(t, 1, summary.Predicted)
	assert.Equal(t, 0, summary.Overridden)
}

func TestClassify_HardDistanceOverride(t *testing.T) {
	// Implausible model output far inland must be forced to freshwater.
	p := newPredictor(t, &stubClassifier{class: 3, prob: 0.95})

	out, summary, err := p.Classify(context.Background(),
		[]domain.Segment{segmentWithDistance("seg-1", 350)},
		singleRowTable("seg-1"), labels.Set{})
	require.NoError(t, err)

	assert.Equal(t, domain.Freshwater, out[0].Class)
	assert.Equal(t, domain.MethodDistanceRule, out[0].Method)
	assert.Equal(t, domain.ConfidenceHigh, out[0].Confidence)
	assert.Nil(t, out[0].Probability)
	assert.Equal(t, 1, summary.Overridden)
}

func TestClassify_SoftBandOverride(t *testing.T) {
	p := newPredictor(t, &stubClassifier{class: 1, prob: 0.40})

	out, _, err := p.Classify(context.Background(),
		[]domain.Segment{segmentWithDistance("seg-1", 150)},
		singleRowTable("seg-1"), labels.Set{})
	require.NoError(t, err)

	assert.Equal(t, domain.Freshwater, out[0].Class)
	assert.Equal(t, domain.MethodDistanceRule, out[0].Method)
	assert.Equal(t, domain.ConfidenceMedium, out[0].Confidence)
}

func TestClassify_MissingFeatureRowFails(t *testing.T) {
	p := newPredictor(t, &stubClassifier{class: 0, prob: 0.9})

	_, _, err := p.Classify(context.Background(),
		[]domain.Segment{segmentWithDistance("seg-unknown", 5)},
		nil, labels.Set{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seg-unknown")
}

func TestClassify_VeryLowShareWarning(t *testing.T) {
	// Uniform probabilities land every prediction in very_low.
	p := newPredictor(t, &stubClassifier{class: 0, prob: 0.25})

	segments := make([]domain.Segment, 0, 20)
	tables := []features.Table{{Region: domain.RegionEurope, Schema: features.Reference(nil)}}
	for i := 0; i < 20; i++ {
		id := string(rune('a' + i))
		segments = append(segments, segmentWithDistance(id, 5))
		tables[0].Rows = append(tables[0].Rows, features.Row{
			SegmentID: id,
			Values:    make([]float64, len(tables[0].Schema.Columns)),
		})
	}

	out, summary, err := p.Classify(context.Background(), segments, tables, labels.Set{})
	require.NoError(t, err)

	assert.Len(t, out, 20, "coverage: every segment classified")
	assert.InDelta(t, 1.0, summary.VeryLowShare, 1e-9)
	require.Len(t, summary.Warnings, 1)
	assert.Contains(t, summary.Warnings[0], "very_low")
}

func TestNew_Validation(t *testing.T) {
	stub := &stubClassifier{}

	_, err := New(stub, domain.Classes()[:2], domain.DefaultConfidenceBands(), domain.DefaultOverrideRules(), slog.Default())
	assert.Error(t, err)

	_, err = New(stub, domain.Classes(), domain.ConfidenceBands{High: 0.2, MediumHigh: 0.4, Medium: 0.5, Low: 0.6}, domain.DefaultOverrideRules(), slog.Default())
	assert.Error(t, err)

	_, err = New(stub, domain.Classes(), domain.DefaultConfidenceBands(), domain.OverrideRules{}, slog.Default())
	assert.Error(t, err)
}
