package domain

import "fmt"

// SalinityClass is a Venice-System salinity zone. Classes are totally ordered
// by increasing salinity; Rank exposes the ordering.
type SalinityClass string

const (
	Freshwater  SalinityClass = "freshwater"
	Oligohaline SalinityClass = "oligohaline"
	Mesohaline  SalinityClass = "mesohaline"
	Polyhaline  SalinityClass = "polyhaline"
)

// Classes returns all salinity classes in increasing-salinity order. The
// slice order doubles as the integer label encoding used by the classifier.
func Classes() []SalinityClass {
	return []SalinityClass{Freshwater, Oligohaline, Mesohaline, Polyhaline}
}

// Rank returns the position of the class in the Venice ordering, or -1 for
// an unknown class.
func (c SalinityClass) Rank() int {
	switch c {
	case Freshwater:
		return 0
	case Oligohaline:
		return 1
	case Mesohaline:
		return 2
	case Polyhaline:
		return 3
	default:
		return -1
	}
}

// VeniceThresholds holds the lower PSU bound of each non-freshwater class.
type VeniceThresholds struct {
	OligohalineMinPSU float64 // default 0.5
	MesohalineMinPSU  float64 // default 5.0
	PolyhalineMinPSU  float64 // default 18.0
}

// DefaultVeniceThresholds returns the 1958 Venice System boundaries.
func DefaultVeniceThresholds() VeniceThresholds {
	return VeniceThresholds{
		OligohalineMinPSU: 0.5,
		MesohalineMinPSU:  5.0,
		PolyhalineMinPSU:  18.0,
	}
}

// Validate checks that the boundaries are positive and strictly increasing.
func (t VeniceThresholds) Validate() error {
	if t.OligohalineMinPSU <= 0 || t.MesohalineMinPSU <= t.OligohalineMinPSU || t.PolyhalineMinPSU <= t.MesohalineMinPSU {
		return fmt.Errorf("venice thresholds must be positive and strictly increasing, got %.2f/%.2f/%.2f",
			t.OligohalineMinPSU, t.MesohalineMinPSU, t.PolyhalineMinPSU)
	}
	return nil
}

// ClassifySalinity maps a salinity value to its Venice-System class.
func ClassifySalinity(psu float64, t VeniceThresholds) SalinityClass {
	switch {
	case psu < t.OligohalineMinPSU:
		return Freshwater
	case psu < t.MesohalineMinPSU:
		return Oligohaline
	case psu < t.PolyhalineMinPSU:
		return Mesohaline
	default:
		return Polyhaline
	}
}

// Method records how a segment's final class was assigned.
type Method string

const (
	MethodMeasured     Method = "measured"
	MethodModel        Method = "model_predicted"
	MethodDistanceRule Method = "distance_rule"
)

// Confidence is the trust level attached to a classification.
type Confidence string

const (
	ConfidenceHigh       Confidence = "high"
	ConfidenceMediumHigh Confidence = "medium_high"
	ConfidenceMedium     Confidence = "medium"
	ConfidenceLow        Confidence = "low"
	ConfidenceVeryLow    Confidence = "very_low"
)

// ConfidenceLevels returns all levels from highest to lowest trust.
func ConfidenceLevels() []Confidence {
	return []Confidence{ConfidenceHigh, ConfidenceMediumHigh, ConfidenceMedium, ConfidenceLow, ConfidenceVeryLow}
}

// ConfidenceBands holds the probability floors for each confidence level.
// A predicted probability p maps to the highest level whose floor it exceeds.
type ConfidenceBands struct {
	High       float64 // default 0.75
	MediumHigh float64 // default 0.65
	Medium     float64 // default 0.55
	Low        float64 // default 0.45
}

// DefaultConfidenceBands returns the empirically tuned probability floors.
// These were revised after an earlier run concentrated nearly everything in
// very_low; they are starting points, re-validated by the distribution check
// in the predictor.
func DefaultConfidenceBands() ConfidenceBands {
	return ConfidenceBands{High: 0.75, MediumHigh: 0.65, Medium: 0.55, Low: 0.45}
}

// Validate checks that the floors are strictly decreasing within (0, 1).
func (b ConfidenceBands) Validate() error {
	if b.High >= 1 || b.Low <= 0 ||
		b.High <= b.MediumHigh || b.MediumHigh <= b.Medium || b.Medium <= b.Low {
		return fmt.Errorf("confidence bands must be strictly decreasing within (0,1), got %.2f/%.2f/%.2f/%.2f",
			b.High, b.MediumHigh, b.Medium, b.Low)
	}
	return nil
}

// ConfidenceFromProbability bands a predicted class probability.
func ConfidenceFromProbability(p float64, b ConfidenceBands) Confidence {
	switch {
	case p > b.High:
		return ConfidenceHigh
	case p > b.MediumHigh:
		return ConfidenceMediumHigh
	case p > b.Medium:
		return ConfidenceMedium
	case p > b.Low:
		return ConfidenceLow
	default:
		return ConfidenceVeryLow
	}
}
