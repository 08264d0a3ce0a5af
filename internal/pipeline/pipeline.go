// Package pipeline orchestrates the classification run: extract features
// per region, resolve ground-truth labels, train with a spatial holdout,
// classify every segment, validate, and persist. Stages run strictly in
// order; region-level extraction failures skip the region and flag it
// rather than aborting the global run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/estuarymap/salinity-etl/internal/config"
	"github.com/estuarymap/salinity-etl/internal/domain"
	"github.com/estuarymap/salinity-etl/internal/features"
	"github.com/estuarymap/salinity-etl/internal/forest"
	"github.com/estuarymap/salinity-etl/internal/grid"
	"github.com/estuarymap/salinity-etl/internal/labels"
	"github.com/estuarymap/salinity-etl/internal/observability"
	"github.com/estuarymap/salinity-etl/internal/predict"
	"github.com/estuarymap/salinity-etl/internal/report"
	"github.com/estuarymap/salinity-etl/internal/store"
	"github.com/estuarymap/salinity-etl/internal/train"
	"github.com/estuarymap/salinity-etl/internal/validate"
)

// DataSource loads the pipeline's inputs. Satisfied by *source.Loader.
type DataSource interface {
	LoadSegments(region domain.Region) ([]domain.Segment, error)
	LoadCatchments() ([]features.Catchment, error)
	LoadStations() ([]labels.Station, error)
	LoadPhysicsGrid() (*grid.Grid, error)
	LoadAuxiliary() ([]features.AuxiliaryFeature, error)
}

// Sink persists the run's artifacts. Satisfied by *store.Store.
type Sink interface {
	SaveFeatureTable(ctx context.Context, table features.Table) error
	SaveClassified(ctx context.Context, runID string, records []domain.ClassifiedSegment) error
	SaveModel(ctx context.Context, artifact store.ModelArtifact) error
}

// Publisher streams classified segments to an external consumer. Optional:
// a nil publisher disables the stage.
type Publisher interface {
	Publish(ctx context.Context, records []domain.ClassifiedSegment) error
}

// Pipeline runs the end-to-end classification.
type Pipeline struct {
	source    DataSource
	sink      Sink
	publisher Publisher
	cfg       *config.Config
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
}

// New creates a Pipeline. publisher may be nil.
func New(src DataSource, sink Sink, publisher Publisher, cfg *config.Config,
	logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		source:    src,
		sink:      sink,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
	}
}

// CheckReadiness returns nil once a run has completed, or an error
// describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no pipeline run has completed yet")
	}
	return nil
}

// regionResult is one region's extraction output, or the failure that
// skipped it.
type regionResult struct {
	region   domain.Region
	segments []domain.Segment
	table    features.Table
	err      error
}

// Run executes one full classification pass and returns its report. The
// returned error is non-nil only for failures that abort the run; an
// invalid validation outcome is reported, not errored.
func (p *Pipeline) Run(ctx context.Context) (report.RunReport, error) {
	runID := report.NewRunID()
	p.logger.Info("pipeline run starting", "run_id", runID, "holdout_region", p.cfg.HoldoutRegion, "seed", p.cfg.Seed)

	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	rep, err := p.run(ctx, runID)
	switch {
	case err != nil:
		p.metrics.RunsTotal.WithLabelValues("error").Inc()
	case rep.Valid:
		p.metrics.RunsTotal.WithLabelValues("valid").Inc()
	default:
		p.metrics.RunsTotal.WithLabelValues("invalid").Inc()
	}
	if err == nil {
		p.ready.Store(true)
	}
	return rep, err
}

func (p *Pipeline) run(ctx context.Context, runID string) (report.RunReport, error) {
	var (
		err      error
		ref      features.Schema
		segments []domain.Segment
		tables   []features.Table
	)
	err = p.timed("extract", func() error {
		ref, segments, tables, err = p.extractAll(ctx)
		return err
	})
	if err != nil {
		return report.RunReport{}, err
	}

	var labelSet labels.Set
	err = p.timed("label", func() error {
		labelSet, segments, err = p.resolveLabels(ctx, segments)
		return err
	})
	if err != nil {
		return report.RunReport{}, err
	}

	var trained train.Result
	err = p.timed("train", func() error {
		trained, err = p.train(ctx, ref, tables, labelSet)
		return err
	})
	if err != nil {
		return report.RunReport{}, err
	}
	p.metrics.TrainingWarnings.Add(float64(len(trained.Warnings)))

	var (
		classified []domain.ClassifiedSegment
		summary    predict.Summary
	)
	err = p.timed("predict", func() error {
		classified, summary, err = p.classify(ctx, trained, segments, tables, labelSet)
		return err
	})
	if err != nil {
		return report.RunReport{}, err
	}

	var checks validate.Report
	err = p.timed("validate", func() error {
		checks, err = p.validate(trained, classified)
		return err
	})
	if err != nil {
		return report.RunReport{}, err
	}

	err = p.timed("persist", func() error {
		return p.persist(ctx, runID, trained, tables, classified)
	})
	if err != nil {
		return report.RunReport{}, err
	}

	p.publish(ctx, runID, checks, classified)

	rep := report.Build(runID, &trained, classified, summary.Warnings, checks)
	path, err := rep.WriteFile(p.cfg.OutputDir)
	if err != nil {
		return report.RunReport{}, err
	}

	p.logger.Info("pipeline run completed",
		"run_id", runID,
		"segments", rep.TotalSegments,
		"valid", rep.Valid,
		"report", path,
	)
	return rep, nil
}

// extractAll loads every region's segments concurrently, builds the
// extractor over catchments, physics grid, and coverage-gated auxiliary
// features, and extracts each surviving region. A region whose load or
// extraction fails is skipped and counted; the run aborts only when no
// region survives or the context is cancelled.
func (p *Pipeline) extractAll(ctx context.Context) (features.Schema, []domain.Segment, []features.Table, error) {
	regions := domain.Regions()
	results := make([]regionResult, len(regions))

	g, gctx := errgroup.WithContext(ctx)
	for i, region := range regions {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			segs, err := p.source.LoadSegments(region)
			if err != nil {
				results[i] = regionResult{region: region, err: err}
				return nil
			}
			results[i] = regionResult{region: region, segments: segs}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return features.Schema{}, nil, nil, err
	}

	total := 0
	for _, r := range results {
		total += len(r.segments)
	}

	extractor, err := p.buildExtractor(ctx, total)
	if err != nil {
		return features.Schema{}, nil, nil, err
	}

	g, gctx = errgroup.WithContext(ctx)
	for i := range results {
		if results[i].err != nil {
			continue
		}
		g.Go(func() error {
			enriched, table, err := extractor.ExtractRegion(gctx, results[i].region, results[i].segments)
			if err != nil {
				if gctx.Err() != nil {
					return err
				}
				results[i].err = err
				return nil
			}
			results[i].segments, results[i].table = enriched, table
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return features.Schema{}, nil, nil, err
	}

	var (
		segments []domain.Segment
		tables   []features.Table
	)
	for _, r := range results {
		if r.err != nil {
			p.logger.Warn("region skipped", "region", r.region, "error", r.err)
			p.metrics.RegionsSkipped.Inc()
			continue
		}
		segments = append(segments, r.segments...)
		tables = append(tables, r.table)
	}
	if len(tables) == 0 {
		return features.Schema{}, nil, nil, errors.New("extraction failed for every region")
	}

	p.metrics.SegmentsExtracted.Add(float64(len(segments)))
	p.logger.Info("extraction complete", "regions", len(tables), "segments", len(segments))
	return extractor.Schema(), segments, tables, nil
}

// buildExtractor assembles the shared extractor. Auxiliary datasets that
// fail the coverage gate are excluded from the feature schema, not fatal:
// they remain available for post-hoc characterization outside the model.
func (p *Pipeline) buildExtractor(ctx context.Context, totalSegments int) (*features.Extractor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	catchments, err := p.source.LoadCatchments()
	if err != nil {
		return nil, err
	}
	physics, err := p.source.LoadPhysicsGrid()
	if err != nil {
		return nil, err
	}
	aux, err := p.source.LoadAuxiliary()
	if err != nil {
		return nil, err
	}

	usable := make([]features.AuxiliaryFeature, 0, len(aux))
	for _, a := range aux {
		if err := features.CheckAuxCoverage(a, totalSegments); err != nil {
			p.logger.Warn("auxiliary feature excluded", "feature", a.Name, "error", err)
			continue
		}
		usable = append(usable, a)
	}
	return features.NewExtractor(catchments, physics, usable, p.logger)
}

func (p *Pipeline) resolveLabels(ctx context.Context, segments []domain.Segment) (labels.Set, []domain.Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	stations, err := p.source.LoadStations()
	if err != nil {
		return nil, nil, err
	}
	ptrs := make([]*labels.Station, len(stations))
	for i := range stations {
		ptrs[i] = &stations[i]
	}

	resolver, err := labels.NewResolver(ptrs, p.cfg.StationBufferKm, p.cfg.Venice, p.logger)
	if err != nil {
		return nil, nil, err
	}

	labelSet := resolver.Resolve(segments)
	p.metrics.LabelsResolved.Add(float64(len(labelSet)))
	return labelSet, labelSet.Apply(segments), nil
}

func (p *Pipeline) train(ctx context.Context, ref features.Schema, tables []features.Table, labelSet labels.Set) (train.Result, error) {
	forestCfg := forest.Config{
		Trees:          p.cfg.ForestTrees,
		MaxDepth:       p.cfg.ForestMaxDepth,
		MinLeafSamples: p.cfg.ForestMinLeaf,
		NumClasses:     len(domain.Classes()),
		Seed:           p.cfg.Seed,
	}
	trainer, err := train.New(forestCfg, p.cfg.HoldoutRegion, p.cfg.MinClassSamples, p.logger)
	if err != nil {
		return train.Result{}, err
	}
	return trainer.Train(ctx, ref, tables, labelSet)
}

func (p *Pipeline) classify(ctx context.Context, trained train.Result, segments []domain.Segment,
	tables []features.Table, labelSet labels.Set) ([]domain.ClassifiedSegment, predict.Summary, error) {

	predictor, err := predict.New(trained.Forest, trained.Encoding, p.cfg.Bands, p.cfg.Rules, p.logger)
	if err != nil {
		return nil, predict.Summary{}, err
	}
	classified, summary, err := predictor.Classify(ctx, segments, tables, labelSet)
	if err != nil {
		return nil, predict.Summary{}, err
	}

	for _, c := range classified {
		p.metrics.SegmentsClassified.WithLabelValues(string(c.Method)).Inc()
	}
	return classified, summary, nil
}

func (p *Pipeline) validate(trained train.Result, classified []domain.ClassifiedSegment) (validate.Report, error) {
	validator, err := validate.New(p.cfg.Rules, p.logger)
	if err != nil {
		return validate.Report{}, err
	}
	rep := validator.Run(trained, classified)
	for _, check := range rep.Checks {
		result := "pass"
		if !check.Passed {
			result = "fail"
		}
		p.metrics.ValidationChecks.WithLabelValues(check.Name, result).Inc()
	}
	return rep, nil
}

func (p *Pipeline) persist(ctx context.Context, runID string, trained train.Result,
	tables []features.Table, classified []domain.ClassifiedSegment) error {

	for _, table := range tables {
		if err := p.sink.SaveFeatureTable(ctx, table); err != nil {
			return err
		}
	}

	encoded, err := trained.Forest.Encode()
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	artifact := store.ModelArtifact{
		RunID:         runID,
		CreatedAt:     domain.TimeNow(),
		HoldoutRegion: trained.HoldoutRegion,
		Seed:          p.cfg.Seed,
		SchemaVersion: trained.SchemaVersion,
		Encoding:      trained.Encoding,
		Model:         encoded,
	}
	if err := p.sink.SaveModel(ctx, artifact); err != nil {
		return err
	}

	return p.sink.SaveClassified(ctx, runID, classified)
}

// publish streams the classified segments to the optional sink, but only for
// runs that passed every fatal validation check: invalid runs are retained in
// sqlite for debugging, never propagated to downstream consumers.
func (p *Pipeline) publish(ctx context.Context, runID string, checks validate.Report, classified []domain.ClassifiedSegment) {
	if p.publisher == nil {
		return
	}
	if !checks.Valid() {
		p.logger.Warn("run failed validation, classified segments withheld from sink", "run_id", runID)
		return
	}
	if err := p.publisher.Publish(ctx, classified); err != nil {
		// The sqlite tables are already written; a sink outage must not
		// discard a multi-hour run.
		p.logger.Error("publish classified segments failed", "error", err)
	}
}

// timed runs a stage and records its wall time.
func (p *Pipeline) timed(stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	p.metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("%s stage: %w", stage, err)
	}
	return nil
}
