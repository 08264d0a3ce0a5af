package domain

import "fmt"

// OverrideRules holds the distance-based physical-plausibility limits applied
// after prediction. The hard cutoff comes from the absence of any documented
// natural system with tidal salinity influence beyond ~200 km of network
// distance; the soft band corrects borderline low-trust predictions.
type OverrideRules struct {
	HardCutoffKm  float64 // default 200: beyond this, always freshwater
	SoftBandMinKm float64 // default 100: (SoftBandMinKm, HardCutoffKm] low-trust correction
}

// DefaultOverrideRules returns the standard distance limits.
func DefaultOverrideRules() OverrideRules {
	return OverrideRules{HardCutoffKm: 200, SoftBandMinKm: 100}
}

// Validate checks that the band is well formed.
func (r OverrideRules) Validate() error {
	if r.SoftBandMinKm <= 0 || r.HardCutoffKm <= r.SoftBandMinKm {
		return fmt.Errorf("override rules require 0 < soft band min < hard cutoff, got %.0f/%.0f",
			r.SoftBandMinKm, r.HardCutoffKm)
	}
	return nil
}

// ApplyDistanceOverride enforces the physical distance limits on a predicted
// classification. Measured segments are returned untouched: a direct
// measurement is never overridden.
func ApplyDistanceOverride(c ClassifiedSegment, r OverrideRules) ClassifiedSegment {
	if c.Method == MethodMeasured {
		return c
	}

	if c.DistanceToCoastKm > r.HardCutoffKm {
		c.Class = Freshwater
		c.Method = MethodDistanceRule
		c.Confidence = ConfidenceHigh
		c.Probability = nil
		return c
	}

	lowTrust := c.Confidence == ConfidenceLow || c.Confidence == ConfidenceVeryLow
	if c.DistanceToCoastKm > r.SoftBandMinKm && c.Class != Freshwater && lowTrust {
		c.Class = Freshwater
		c.Method = MethodDistanceRule
		c.Confidence = ConfidenceMedium
		c.Probability = nil
	}
	return c
}
