// Package report renders a per-run summary of the pipeline: classification
// counts broken down by class, method, confidence, and region, the training
// warnings, and the outcome of every validation check.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/estuarymap/salinity-etl/internal/domain"
	"github.com/estuarymap/salinity-etl/internal/train"
	"github.com/estuarymap/salinity-etl/internal/validate"
)

// RunReport is the human-readable account of one pipeline run.
type RunReport struct {
	RunID         string
	GeneratedAt   time.Time
	HoldoutRegion domain.Region
	Seed          int64

	TotalSegments int
	ByClass       map[domain.SalinityClass]int
	ByMethod      map[domain.Method]int
	ByConfidence  map[domain.Confidence]int
	ByRegion      map[domain.Region]int

	TrainingWarnings   []train.DataQualityWarning
	PredictionWarnings []string
	Checks             []validate.CheckResult
	Valid              bool
}

// NewRunID returns a fresh run identifier.
func NewRunID() string { return uuid.NewString() }

// Build assembles a report from the run's outputs. The generation timestamp
// comes from the package clock so tests can freeze it.
func Build(runID string, trained *train.Result, classified []domain.ClassifiedSegment,
	predictionWarnings []string, checks validate.Report) RunReport {

	r := RunReport{
		RunID:              runID,
		GeneratedAt:        domain.TimeNow(),
		ByClass:            make(map[domain.SalinityClass]int),
		ByMethod:           make(map[domain.Method]int),
		ByConfidence:       make(map[domain.Confidence]int),
		ByRegion:           make(map[domain.Region]int),
		PredictionWarnings: predictionWarnings,
		Checks:             checks.Checks,
		Valid:              checks.Valid(),
	}
	if trained != nil {
		r.HoldoutRegion = trained.HoldoutRegion
		r.TrainingWarnings = trained.Warnings
	}

	r.TotalSegments = len(classified)
	for _, c := range classified {
		r.ByClass[c.Class]++
		r.ByMethod[c.Method]++
		r.ByConfidence[c.Confidence]++
		r.ByRegion[c.Region]++
	}
	return r
}

// Render produces the plain-text report.
func (r RunReport) Render() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Salinity classification run %s\n", r.RunID)
	fmt.Fprintf(&b, "Generated: %s\n", r.GeneratedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Holdout region: %s\n", r.HoldoutRegion)
	fmt.Fprintf(&b, "Segments classified: %d\n", r.TotalSegments)

	b.WriteString("\nBy class:\n")
	for _, c := range domain.Classes() {
		fmt.Fprintf(&b, "  %-12s %d\n", c, r.ByClass[c])
	}

	b.WriteString("\nBy method:\n")
	for _, m := range []domain.Method{domain.MethodMeasured, domain.MethodModel, domain.MethodDistanceRule} {
		fmt.Fprintf(&b, "  %-16s %d\n", m, r.ByMethod[m])
	}

	b.WriteString("\nBy confidence:\n")
	for _, c := range domain.ConfidenceLevels() {
		fmt.Fprintf(&b, "  %-12s %d\n", c, r.ByConfidence[c])
	}

	b.WriteString("\nBy region:\n")
	regions := make([]domain.Region, 0, len(r.ByRegion))
	for reg := range r.ByRegion {
		regions = append(regions, reg)
	}
	sort.Slice(regions, func(i, j int) bool { return regions[i] < regions[j] })
	for _, reg := range regions {
		fmt.Fprintf(&b, "  %-16s %d\n", reg, r.ByRegion[reg])
	}

	if len(r.TrainingWarnings) > 0 {
		b.WriteString("\nTraining warnings:\n")
		for _, w := range r.TrainingWarnings {
			fmt.Fprintf(&b, "  - %s\n", w.String())
		}
	}
	if len(r.PredictionWarnings) > 0 {
		b.WriteString("\nPrediction warnings:\n")
		for _, w := range r.PredictionWarnings {
			fmt.Fprintf(&b, "  - %s\n", w)
		}
	}

	b.WriteString("\nValidation checks:\n")
	for _, c := range r.Checks {
		status := "PASS"
		if !c.Passed {
			status = "FAIL"
			if !c.Fatal {
				status = "WARN"
			}
		}
		fmt.Fprintf(&b, "  [%s] %s: %s\n", status, c.Name, c.Summary)
	}

	if r.Valid {
		b.WriteString("\nResult: VALID\n")
	} else {
		b.WriteString("\nResult: INVALID\n")
	}
	return b.String()
}

// WriteFile renders the report into outputDir as report_<runID>.txt.
func (r RunReport) WriteFile(outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	path := filepath.Join(outputDir, "report_"+r.RunID+".txt")
	if err := os.WriteFile(path, []byte(r.Render()), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}
