// Command validate performs standalone integrity checks on a finished run's
// sqlite output. It re-verifies the invariants the pipeline is supposed to
// guarantee straight from the persisted classified_segments table, so a
// corrupted or hand-edited database is caught before downstream consumers
// read it.
//
// Usage:
//
//	go run ./cmd/validate -db out/salinity.db
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/estuarymap/salinity-etl/internal/domain"
	"github.com/estuarymap/salinity-etl/internal/store"
)

// phase tracks pass/fail for one validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	dbPath := flag.String("db", "out/salinity.db", "path to the pipeline's sqlite database")
	hardCutoffKm := flag.Float64("hard-cutoff-km", domain.DefaultOverrideRules().HardCutoffKm,
		"distance beyond which every segment must be freshwater")
	flag.Parse()

	if code := run(*dbPath, *hardCutoffKm); code != 0 {
		os.Exit(code)
	}
}

func run(dbPath string, hardCutoffKm float64) int {
	db, err := store.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database: %v\n", err)
		return 1
	}
	defer db.Close()

	records, err := db.LoadClassified(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "load classified segments: %v\n", err)
		return 1
	}

	phases := []*phase{
		checkCoverage(records),
		checkEnumerations(records),
		checkMeasurementPrecedence(records),
		checkDistanceRules(records, hardCutoffKm),
		checkProbabilities(records),
	}

	failed := 0
	for _, p := range phases {
		if p.passed() {
			fmt.Printf("PASS %s\n", p.name)
			continue
		}
		failed++
		fmt.Printf("FAIL %s\n", p.name)
		for _, e := range p.errors {
			fmt.Printf("  - %s\n", e)
		}
	}

	if failed > 0 {
		fmt.Printf("\n%d of %d phases failed\n", failed, len(phases))
		return 1
	}
	fmt.Printf("\nall %d phases passed (%d segments)\n", len(phases), len(records))
	return 0
}

// checkCoverage verifies the table is non-empty with unique segment IDs.
func checkCoverage(records []domain.ClassifiedSegment) *phase {
	p := &phase{name: "coverage"}
	if len(records) == 0 {
		p.errorf("classified_segments table is empty")
		return p
	}
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		if seen[r.SegmentID] {
			p.errorf("duplicate segment id %s", r.SegmentID)
		}
		seen[r.SegmentID] = true
		if r.ProcessedAt.IsZero() {
			p.errorf("segment %s has no processed_at timestamp", r.SegmentID)
		}
	}
	return p
}

// checkEnumerations verifies every record carries valid enum values.
func checkEnumerations(records []domain.ClassifiedSegment) *phase {
	p := &phase{name: "enumerations"}

	validClass := make(map[domain.SalinityClass]bool)
	for _, c := range domain.Classes() {
		validClass[c] = true
	}
	validConfidence := make(map[domain.Confidence]bool)
	for _, c := range domain.ConfidenceLevels() {
		validConfidence[c] = true
	}
	validMethod := map[domain.Method]bool{
		domain.MethodMeasured:     true,
		domain.MethodModel:        true,
		domain.MethodDistanceRule: true,
	}

	for _, r := range records {
		if !validClass[r.Class] {
			p.errorf("segment %s: unknown class %q", r.SegmentID, r.Class)
		}
		if !validMethod[r.Method] {
			p.errorf("segment %s: unknown method %q", r.SegmentID, r.Method)
		}
		if !validConfidence[r.Confidence] {
			p.errorf("segment %s: unknown confidence %q", r.SegmentID, r.Confidence)
		}
		if _, err := domain.ParseRegion(string(r.Region)); err != nil {
			p.errorf("segment %s: %v", r.SegmentID, err)
		}
	}
	return p
}

// checkMeasurementPrecedence verifies ground truth always wins: measured
// segments carry high confidence, and only measured segments claim ground
// truth.
func checkMeasurementPrecedence(records []domain.ClassifiedSegment) *phase {
	p := &phase{name: "measurement precedence"}
	for _, r := range records {
		if r.HasGroundTruth && r.Method != domain.MethodMeasured {
			p.errorf("segment %s has ground truth but method %s", r.SegmentID, r.Method)
		}
		if r.Method == domain.MethodMeasured {
			if !r.HasGroundTruth {
				p.errorf("segment %s is measured without ground truth", r.SegmentID)
			}
			if r.Confidence != domain.ConfidenceHigh {
				p.errorf("segment %s is measured with confidence %s", r.SegmentID, r.Confidence)
			}
		}
	}
	return p
}

// checkDistanceRules verifies no saline classification survives past the
// hard distance cutoff unless backed by a measurement.
func checkDistanceRules(records []domain.ClassifiedSegment, hardCutoffKm float64) *phase {
	p := &phase{name: "distance rules"}
	for _, r := range records {
		if r.DistanceToCoastKm <= hardCutoffKm || r.Method == domain.MethodMeasured {
			continue
		}
		if r.Class != domain.Freshwater {
			p.errorf("segment %s at %.0f km is %s without a measurement",
				r.SegmentID, r.DistanceToCoastKm, r.Class)
		}
		if r.Method != domain.MethodDistanceRule {
			p.errorf("segment %s at %.0f km should be distance-ruled, got %s",
				r.SegmentID, r.DistanceToCoastKm, r.Method)
		}
	}
	return p
}

// checkProbabilities verifies a probability is attached exactly to model
// predictions, and is a real probability.
func checkProbabilities(records []domain.ClassifiedSegment) *phase {
	p := &phase{name: "probabilities"}
	for _, r := range records {
		switch r.Method {
		case domain.MethodModel:
			if r.Probability == nil {
				p.errorf("segment %s is model-predicted without probability", r.SegmentID)
			} else if *r.Probability < 0 || *r.Probability > 1 {
				p.errorf("segment %s has probability %g outside [0,1]", r.SegmentID, *r.Probability)
			}
		default:
			if r.Probability != nil {
				p.errorf("segment %s with method %s carries a probability", r.SegmentID, r.Method)
			}
		}
	}
	return p
}
