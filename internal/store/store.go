// Package store persists the pipeline's three artifacts in a single sqlite
// database: one feature table per region, the final classified-segment
// table, and the serialized model with its label encoding. Downstream map
// and surface-area consumers read the classified table; they never re-derive
// classification.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/estuarymap/salinity-etl/internal/domain"
	"github.com/estuarymap/salinity-etl/internal/features"
)

// Store wraps the sqlite database.
type Store struct {
	db *sql.DB
}

// ModelArtifact is the persisted trained classifier and its provenance.
type ModelArtifact struct {
	RunID         string
	CreatedAt     time.Time
	HoldoutRegion domain.Region
	Seed          int64
	SchemaVersion int
	Encoding      []domain.SalinityClass
	Model         []byte
}

// Open opens (or creates) the database and ensures the static tables exist.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS classified_segments (
			segment_id           TEXT PRIMARY KEY,
			run_id               TEXT NOT NULL,
			region               TEXT NOT NULL,
			salinity_class       TEXT NOT NULL,
			method               TEXT NOT NULL,
			confidence           TEXT NOT NULL,
			probability          REAL,
			distance_to_coast_km REAL NOT NULL,
			has_ground_truth     INTEGER NOT NULL,
			in_estuary_catchment INTEGER NOT NULL,
			processed_at         TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_classified_region ON classified_segments(region)`,
		`CREATE TABLE IF NOT EXISTS model_artifacts (
			run_id         TEXT PRIMARY KEY,
			created_at     TEXT NOT NULL,
			holdout_region TEXT NOT NULL,
			seed           INTEGER NOT NULL,
			schema_version INTEGER NOT NULL,
			encoding       TEXT NOT NULL,
			model          BLOB NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init store: %w", err)
		}
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// SaveFeatureTable replaces the region's feature table. The table name and
// column DDL derive from the fixed schema; region names come from a closed
// enum, so interpolation is safe.
func (s *Store) SaveFeatureTable(ctx context.Context, table features.Table) error {
	name := "features_" + string(table.Region)

	cols := make([]string, 0, len(table.Schema.Columns))
	for _, c := range table.Schema.Columns {
		cols = append(cols, fmt.Sprintf("%q REAL NOT NULL", c))
	}
	ddl := fmt.Sprintf("CREATE TABLE %q (segment_id TEXT PRIMARY KEY, schema_version INTEGER NOT NULL, %s)",
		name, strings.Join(cols, ", "))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save features %s: %w", table.Region, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %q", name)); err != nil {
		return fmt.Errorf("save features %s: %w", table.Region, err)
	}
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("save features %s: %w", table.Region, err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(table.Schema.Columns)), ", ")
	insert := fmt.Sprintf("INSERT INTO %q VALUES (?, ?, %s)", name, placeholders)
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("save features %s: %w", table.Region, err)
	}
	defer stmt.Close()

	for _, row := range table.Rows {
		args := make([]any, 0, len(row.Values)+2)
		args = append(args, row.SegmentID, table.Schema.Version)
		for _, v := range row.Values {
			args = append(args, v)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("save features %s segment %s: %w", table.Region, row.SegmentID, err)
		}
	}
	return tx.Commit()
}

// SaveClassified upserts the final classification records.
func (s *Store) SaveClassified(ctx context.Context, runID string, records []domain.ClassifiedSegment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save classified: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO classified_segments
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(segment_id) DO UPDATE SET
			run_id = excluded.run_id,
			salinity_class = excluded.salinity_class,
			method = excluded.method,
			confidence = excluded.confidence,
			probability = excluded.probability,
			distance_to_coast_km = excluded.distance_to_coast_km,
			has_ground_truth = excluded.has_ground_truth,
			in_estuary_catchment = excluded.in_estuary_catchment,
			processed_at = excluded.processed_at`)
	if err != nil {
		return fmt.Errorf("save classified: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		var prob sql.NullFloat64
		if r.Probability != nil {
			prob = sql.NullFloat64{Float64: *r.Probability, Valid: true}
		}
		_, err := stmt.ExecContext(ctx,
			r.SegmentID, runID, r.Region, r.Class, r.Method, r.Confidence,
			prob, r.DistanceToCoastKm, boolToInt(r.HasGroundTruth),
			boolToInt(r.InEstuaryCatchment), r.ProcessedAt.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("save classified segment %s: %w", r.SegmentID, err)
		}
	}
	return tx.Commit()
}

// LoadClassified reads back the classified-segment table ordered by
// segment ID.
func (s *Store) LoadClassified(ctx context.Context) ([]domain.ClassifiedSegment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT segment_id, region, salinity_class, method,
		confidence, probability, distance_to_coast_km, has_ground_truth,
		in_estuary_catchment, processed_at
		FROM classified_segments ORDER BY segment_id`)
	if err != nil {
		return nil, fmt.Errorf("load classified: %w", err)
	}
	defer rows.Close()

	var out []domain.ClassifiedSegment
	for rows.Next() {
		var (
			r         domain.ClassifiedSegment
			prob      sql.NullFloat64
			gt, inCat int
			processed string
		)
		if err := rows.Scan(&r.SegmentID, &r.Region, &r.Class, &r.Method, &r.Confidence,
			&prob, &r.DistanceToCoastKm, &gt, &inCat, &processed); err != nil {
			return nil, fmt.Errorf("load classified: %w", err)
		}
		if prob.Valid {
			p := prob.Float64
			r.Probability = &p
		}
		r.HasGroundTruth = gt != 0
		r.InEstuaryCatchment = inCat != 0
		if t, err := time.Parse(time.RFC3339Nano, processed); err == nil {
			r.ProcessedAt = t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveModel persists the trained classifier and its provenance.
func (s *Store) SaveModel(ctx context.Context, artifact ModelArtifact) error {
	encoding, err := json.Marshal(artifact.Encoding)
	if err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO model_artifacts
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		artifact.RunID, artifact.CreatedAt.UTC().Format(time.RFC3339Nano),
		artifact.HoldoutRegion, artifact.Seed, artifact.SchemaVersion,
		string(encoding), artifact.Model)
	if err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	return nil
}

// LoadModel reads back a persisted model artifact by run ID.
func (s *Store) LoadModel(ctx context.Context, runID string) (ModelArtifact, error) {
	var (
		artifact ModelArtifact
		created  string
		encoding string
	)
	err := s.db.QueryRowContext(ctx, `SELECT run_id, created_at, holdout_region, seed,
		schema_version, encoding, model FROM model_artifacts WHERE run_id = ?`, runID).
		Scan(&artifact.RunID, &created, &artifact.HoldoutRegion, &artifact.Seed,
			&artifact.SchemaVersion, &encoding, &artifact.Model)
	if err != nil {
		return ModelArtifact{}, fmt.Errorf("load model %s: %w", runID, err)
	}
	if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
		artifact.CreatedAt = t
	}
	if err := json.Unmarshal([]byte(encoding), &artifact.Encoding); err != nil {
		return ModelArtifact{}, fmt.Errorf("load model %s: %w", runID, err)
	}
	return artifact, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
