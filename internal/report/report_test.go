package report

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estuarymap/salinity-etl/internal/domain"
	"github.com/estuarymap/salinity-etl/internal/train"
	"github.com/estuarymap/salinity-etl/internal/validate"
)

func TestBuildCounts(t *testing.T) {
	frozen := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	domain.SetClock(clockwork.NewFakeClockAt(frozen))
	t.Cleanup(func() { domain.SetClock(clockwork.NewRealClock()) })

	classified := []domain.ClassifiedSegment{
		{SegmentID: "a", Region: domain.RegionEurope, Class: domain.Freshwater,
			Method: domain.MethodMeasured, Confidence: domain.ConfidenceHigh},
		{SegmentID: "b", Region: domain.RegionEurope, Class: domain.Mesohaline,
			Method: domain.MethodModel, Confidence: domain.ConfidenceMedium},
		{SegmentID: "c", Region: domain.RegionAsia, Class: domain.Freshwater,
			Method: domain.MethodDistanceRule, Confidence: domain.ConfidenceHigh},
	}
	trained := &train.Result{
		HoldoutRegion: domain.RegionOceania,
		Warnings: []train.DataQualityWarning{
			{Class: domain.Polyhaline, Samples: 4, Minimum: 10},
		},
	}
	checks := validate.Report{Checks: []validate.CheckResult{
		{Name: validate.CheckHoldoutAccuracy, Passed: true, Fatal: true, Summary: "accuracy 0.81"},
	}}

	r := Build("run-1", trained, classified, []string{"very_low share high"}, checks)

	assert.Equal(t, frozen, r.GeneratedAt)
	assert.Equal(t, 3, r.TotalSegments)
	assert.Equal(t, 2, r.ByClass[domain.Freshwater])
	assert.Equal(t, 1, r.ByMethod[domain.MethodMeasured])
	assert.Equal(t, 2, r.ByConfidence[domain.ConfidenceHigh])
	assert.Equal(t, 2, r.ByRegion[domain.RegionEurope])
	assert.True(t, r.Valid)
}

func TestRenderAndWriteFile(t *testing.T) {
	r := RunReport{
		RunID:         "run-2",
		GeneratedAt:   time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		HoldoutRegion: domain.RegionOceania,
		TotalSegments: 1,
		ByClass:       map[domain.SalinityClass]int{domain.Oligohaline: 1},
		ByMethod:      map[domain.Method]int{domain.MethodModel: 1},
		ByConfidence:  map[domain.Confidence]int{domain.ConfidenceLow: 1},
		ByRegion:      map[domain.Region]int{domain.RegionAfrica: 1},
		Checks: []validate.CheckResult{
			{Name: validate.CheckDistanceDecay, Passed: false, Fatal: true, Summary: "tail not freshwater"},
			{Name: validate.CheckTypology, Passed: false, Fatal: false, Summary: "freshwater fraction 0.7"},
		},
		Valid: false,
	}

	text := r.Render()
	assert.Contains(t, text, "run-2")
	assert.Contains(t, text, "[FAIL] distance_decay")
	assert.Contains(t, text, "[WARN] typology_consistency")
	assert.Contains(t, text, "Result: INVALID")

	dir := t.TempDir()
	path, err := r.WriteFile(dir)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "report_run-2.txt"))

	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, text, string(written))
}

func TestNewRunID(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
