// Package validate independently checks a finished classification run with
// methods that do not re-derive what the classifier already assumed: honest
// holdout accuracy, a distance-stratified physical sanity check, and a
// comparison against the expert estuary typology.
package validate

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/estuarymap/salinity-etl/internal/domain"
	"github.com/estuarymap/salinity-etl/internal/train"
)

// Check names, stable identifiers used in reports and metrics.
const (
	CheckHoldoutAccuracy = "holdout_accuracy"
	CheckDistanceDecay   = "distance_decay"
	CheckTypology        = "typology_consistency"
)

// NearCoastKm bounds the "immediate coastline" band used by the typology
// comparison.
const NearCoastKm = 20.0

// CheckResult is one validation check's outcome: a pass/fail plus the
// numeric summary behind it, never a bare boolean.
type CheckResult struct {
	Name    string             `json:"name"`
	Passed  bool               `json:"passed"`
	Fatal   bool               `json:"fatal"` // failure invalidates the run for downstream use
	Summary string             `json:"summary"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
}

// Report aggregates all checks for one run.
type Report struct {
	Checks []CheckResult `json:"checks"`
}

// Valid reports whether the run may be promoted for downstream use: every
// fatal check passed.
func (r Report) Valid() bool {
	for _, c := range r.Checks {
		if c.Fatal && !c.Passed {
			return false
		}
	}
	return true
}

// Band is one distance-to-coast stratum.
type Band struct {
	MinKm float64
	MaxKm float64 // +Inf for the open-ended band
}

func (b Band) String() string {
	if math.IsInf(b.MaxKm, 1) {
		return fmt.Sprintf(">%.0fkm", b.MinKm)
	}
	return fmt.Sprintf("%.0f-%.0fkm", b.MinKm, b.MaxKm)
}

// DistanceBands returns the strata for the decay check. Shared boundaries
// belong to the lower band, so the tail holds strictly-beyond-cutoff segments
// only: a prediction at exactly the cutoff is still inside the allowed range,
// matching the override rules.
func DistanceBands(hardCutoffKm float64) []Band {
	return []Band{
		{0, 20},
		{20, 50},
		{50, 100},
		{100, hardCutoffKm},
		{hardCutoffKm, math.Inf(1)},
	}
}

// Validator runs the multi-method acceptance checks.
type Validator struct {
	rules  domain.OverrideRules
	logger *slog.Logger
}

// New creates a validator using the same override rules the predictor
// enforced, so the decay check verifies the rules actually ran.
func New(rules domain.OverrideRules, logger *slog.Logger) (*Validator, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return &Validator{rules: rules, logger: logger}, nil
}

// Run executes all checks and logs each outcome.
func (v *Validator) Run(trained train.Result, classified []domain.ClassifiedSegment) Report {
	report := Report{Checks: []CheckResult{
		v.HoldoutAccuracy(trained),
		v.DistanceDecay(classified),
		v.TypologyComparison(classified),
	}}
	for _, c := range report.Checks {
		v.logger.Info("validation check finished",
			"check", c.Name, "passed", c.Passed, "fatal", c.Fatal, "summary", c.Summary)
	}
	return report
}

// HoldoutAccuracy evaluates the trained classifier on the reserved region's
// ground truth, which was never seen during fitting. The bar is the naive
// majority-class baseline: a spatially extrapolated, heavily imbalanced
// problem realistically lands in the 70-80% range, and anything far higher
// is itself suspicious.
func (v *Validator) HoldoutAccuracy(trained train.Result) CheckResult {
	result := CheckResult{Name: CheckHoldoutAccuracy, Fatal: true, Metrics: map[string]float64{}}

	if len(trained.Holdout) == 0 {
		result.Passed = false
		result.Summary = fmt.Sprintf("holdout region %s has no ground-truth labels: accuracy not evaluable, model cannot be promoted", trained.HoldoutRegion)
		return result
	}

	k := len(trained.Encoding)
	confusion := make([][]int, k)
	for i := range confusion {
		confusion[i] = make([]int, k)
	}

	classCounts := make([]int, k)
	correct := make([]float64, len(trained.Holdout))
	for i, ex := range trained.Holdout {
		pred, _ := trained.Forest.Predict(ex.Features)
		confusion[ex.Label][pred]++
		classCounts[ex.Label]++
		if pred == ex.Label {
			correct[i] = 1
		}
	}

	total := len(trained.Holdout)
	accuracy := stat.Mean(correct, nil)

	shares := make([]float64, k)
	for c, n := range classCounts {
		shares[c] = float64(n) / float64(total)
	}
	baseline := floats.Max(shares)

	result.Metrics["accuracy"] = accuracy
	result.Metrics["baseline"] = baseline
	result.Metrics["holdout_samples"] = float64(total)

	var notEvaluable []string
	for c, class := range trained.Encoding {
		support := classCounts[c]
		predicted := 0
		for r := 0; r < k; r++ {
			predicted += confusion[r][c]
		}

		if support == 0 {
			// Zero holdout examples: report as not evaluable, never as a
			// silent 0% or 100%.
			notEvaluable = append(notEvaluable, string(class))
			continue
		}
		result.Metrics["recall_"+string(class)] = float64(confusion[c][c]) / float64(support)
		if predicted > 0 {
			result.Metrics["precision_"+string(class)] = float64(confusion[c][c]) / float64(predicted)
		}
	}

	result.Passed = accuracy > baseline
	result.Summary = fmt.Sprintf("accuracy %.1f%% vs majority baseline %.1f%% on %d holdout samples (%s)",
		accuracy*100, baseline*100, total, trained.HoldoutRegion)
	if len(notEvaluable) > 0 {
		result.Summary += fmt.Sprintf("; not evaluable: %s", strings.Join(notEvaluable, ", "))
	}
	return result
}

// DistanceDecay bins every classified segment by distance to coast and
// checks that the non-freshwater fraction never increases with distance and
// is exactly zero beyond the hard cutoff. A non-zero tail means the override
// step did not execute, which is a correctness bug, not a data gap.
func (v *Validator) DistanceDecay(classified []domain.ClassifiedSegment) CheckResult {
	result := CheckResult{Name: CheckDistanceDecay, Fatal: true, Metrics: map[string]float64{}}

	bands := DistanceBands(v.rules.HardCutoffKm)
	saline := make([][]float64, len(bands))

	// A shared boundary belongs to the lower band: the loop breaks on the
	// first match, so a segment at exactly the cutoff never reaches the tail.
	for _, c := range classified {
		for i, b := range bands {
			if c.DistanceToCoastKm >= b.MinKm && (c.DistanceToCoastKm <= b.MaxKm || math.IsInf(b.MaxKm, 1)) {
				indicator := 0.0
				if c.Class != domain.Freshwater {
					indicator = 1
				}
				saline[i] = append(saline[i], indicator)
				break
			}
		}
	}

	var parts []string
	prev := math.Inf(1)
	monotonic := true
	for i, b := range bands {
		if len(saline[i]) == 0 {
			parts = append(parts, b.String()+": empty")
			continue
		}
		frac := stat.Mean(saline[i], nil)
		result.Metrics["non_freshwater_"+b.String()] = frac
		parts = append(parts, fmt.Sprintf("%s: %.1f%%", b, frac*100))
		if frac > prev {
			monotonic = false
		}
		prev = frac
	}

	tail := len(bands) - 1
	tailSaline := floats.Sum(saline[tail])
	tailZero := tailSaline == 0
	result.Metrics["beyond_cutoff_non_freshwater"] = tailSaline

	result.Passed = monotonic && tailZero
	result.Summary = "non-freshwater by distance band: " + strings.Join(parts, ", ")
	if !tailZero {
		result.Summary += fmt.Sprintf("; %d segments beyond %.0f km are non-freshwater: distance override did not run", int(tailSaline), v.rules.HardCutoffKm)
	} else if !monotonic {
		result.Summary += "; fraction does not decay monotonically with distance"
	}
	return result
}

// TypologyComparison checks predictions against the expert-curated estuary
// typology: segments inside a known estuary catchment at the immediate
// coastline should rarely be freshwater. The reference measures
// geomorphology, not salinity, so this is a gross-contradiction flag, not an
// accuracy metric; it is advisory rather than fatal.
func (v *Validator) TypologyComparison(classified []domain.ClassifiedSegment) CheckResult {
	result := CheckResult{Name: CheckTypology, Fatal: false, Metrics: map[string]float64{}}

	total, fresh := 0, 0
	for _, c := range classified {
		if !c.InEstuaryCatchment || c.DistanceToCoastKm > NearCoastKm {
			continue
		}
		total++
		if c.Class == domain.Freshwater {
			fresh++
		}
	}

	if total == 0 {
		result.Passed = true
		result.Summary = "no classified segments inside estuary catchments near the coast: not evaluable"
		return result
	}

	frac := float64(fresh) / float64(total)
	result.Metrics["near_coast_catchment_segments"] = float64(total)
	result.Metrics["freshwater_fraction"] = frac

	// Tidal freshwater zones are real, so some freshwater is expected; a
	// majority-freshwater coastline inside known estuaries is a gross
	// contradiction with the typology.
	result.Passed = frac <= 0.5
	result.Summary = fmt.Sprintf("%.1f%% of %d near-coast estuary-catchment segments classified freshwater", frac*100, total)
	if !result.Passed {
		result.Summary += ": contradicts expert typology"
	}
	return result
}
