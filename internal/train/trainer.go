// Package train fits the salinity classifier on ground-truth labels with a
// spatial holdout: one entire region is excluded from training and reserved
// for evaluation. A random row-wise split would leak spatial autocorrelation
// between nearby segments and report deceptively high accuracy; holding out
// whole geography yields a lower but honest estimate.
package train

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/estuarymap/salinity-etl/internal/domain"
	"github.com/estuarymap/salinity-etl/internal/features"
	"github.com/estuarymap/salinity-etl/internal/forest"
	"github.com/estuarymap/salinity-etl/internal/labels"
)

// DefaultMinClassSamples is the training sample count below which a class
// triggers a data-quality warning. Rare-class learnability is inherently
// limited; it must be reported, never hidden.
const DefaultMinClassSamples = 10

// DataQualityWarning flags a class with too few ground-truth examples to
// train reliably. It is attached to the run output, not a hard abort: the
// pipeline must still produce predictions for every segment.
type DataQualityWarning struct {
	Class   domain.SalinityClass
	Samples int
	Minimum int
}

func (w DataQualityWarning) String() string {
	return fmt.Sprintf("class %s has %d training samples (minimum %d): model will be unstable for this class",
		w.Class, w.Samples, w.Minimum)
}

// LabeledExample is one ground-truth feature/label pair with its provenance.
type LabeledExample struct {
	SegmentID string
	Region    domain.Region
	Features  []float64
	Label     int
}

// Result is the trained classifier plus everything the validator and the
// persistence layer need: the holdout record, the label encoding, and any
// data-quality warnings.
type Result struct {
	Forest        *forest.Forest
	HoldoutRegion domain.Region
	Encoding      []domain.SalinityClass
	SchemaVersion int

	TrainingSamples int
	HoldoutSamples  int
	ClassCounts     map[domain.SalinityClass]int
	Warnings        []DataQualityWarning

	// Holdout is the reserved region's labeled examples, evaluated by the
	// validator and never seen during fitting.
	Holdout []LabeledExample
}

// Trainer fits the ensemble over region feature tables joined with labels.
type Trainer struct {
	forestCfg       forest.Config
	holdout         domain.Region
	minClassSamples int
	logger          *slog.Logger
}

// New creates a trainer. The holdout region is fixed configuration, recorded
// in the result, never randomized per run.
func New(forestCfg forest.Config, holdout domain.Region, minClassSamples int, logger *slog.Logger) (*Trainer, error) {
	if _, err := domain.ParseRegion(string(holdout)); err != nil {
		return nil, fmt.Errorf("holdout region: %w", err)
	}
	if minClassSamples <= 0 {
		minClassSamples = DefaultMinClassSamples
	}
	if forestCfg.NumClasses != len(domain.Classes()) {
		return nil, fmt.Errorf("forest config expects %d classes, got %d", len(domain.Classes()), forestCfg.NumClasses)
	}
	return &Trainer{
		forestCfg:       forestCfg,
		holdout:         holdout,
		minClassSamples: minClassSamples,
		logger:          logger,
	}, nil
}

// Train joins the feature tables with the label set, splits by the holdout
// region, and fits the ensemble on the training partition. Every table is
// schema-checked against the reference first; a mismatch aborts before any
// fitting.
func (t *Trainer) Train(ctx context.Context, ref features.Schema, tables []features.Table, labelSet labels.Set) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	for _, table := range tables {
		if err := table.ValidateAgainst(ref); err != nil {
			return Result{}, err
		}
	}

	var training, holdout []LabeledExample
	for _, table := range tables {
		for _, row := range table.Rows {
			label, ok := labelSet[row.SegmentID]
			if !ok {
				continue
			}
			ex := LabeledExample{
				SegmentID: row.SegmentID,
				Region:    table.Region,
				Features:  row.Values,
				Label:     label.Class.Rank(),
			}
			if table.Region == t.holdout {
				holdout = append(holdout, ex)
			} else {
				training = append(training, ex)
			}
		}
	}

	if len(training) == 0 {
		return Result{}, fmt.Errorf("no ground-truth examples outside holdout region %s", t.holdout)
	}

	classCounts := make(map[domain.SalinityClass]int, len(domain.Classes()))
	trainLabels := make([]int, len(training))
	examples := make([]forest.Example, len(training))
	for i, ex := range training {
		examples[i] = forest.Example{Features: ex.Features, Label: ex.Label}
		trainLabels[i] = ex.Label
		classCounts[domain.Classes()[ex.Label]]++
	}

	var warnings []DataQualityWarning
	for _, class := range domain.Classes() {
		if n := classCounts[class]; n < t.minClassSamples {
			warnings = append(warnings, DataQualityWarning{Class: class, Samples: n, Minimum: t.minClassSamples})
			t.logger.Warn("insufficient training samples for class",
				"class", class, "samples", n, "minimum", t.minClassSamples)
		}
	}

	cfg := t.forestCfg
	cfg.ClassWeights = forest.BalancedWeights(trainLabels, cfg.NumClasses)

	fitted, err := forest.Train(cfg, examples)
	if err != nil {
		return Result{}, fmt.Errorf("fit ensemble: %w", err)
	}

	t.logger.Info("classifier trained",
		"holdout_region", t.holdout,
		"training_samples", len(training),
		"holdout_samples", len(holdout),
		"trees", cfg.Trees,
		"seed", cfg.Seed,
	)

	return Result{
		Forest:          fitted,
		HoldoutRegion:   t.holdout,
		Encoding:        domain.Classes(),
		SchemaVersion:   ref.Version,
		TrainingSamples: len(training),
		HoldoutSamples:  len(holdout),
		ClassCounts:     classCounts,
		Warnings:        warnings,
		Holdout:         holdout,
	}, nil
}
