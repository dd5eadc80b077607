package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/me/workprep/internal/provenance"
	"github.com/me/workprep/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Ledger using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Ledger.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	if dbPath == ":memory:" {
		// Every connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// Digest returns the SHA-256 of the item's JSON encoding. Map keys are
// encoded in sorted order, so equal items have equal digests.
func Digest(item *model.WorkItem) (string, []byte, error) {
	payload, err := json.Marshal(item)
	if err != nil {
		return "", nil, fmt.Errorf("marshal work item: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), payload, nil
}

func (s *SQLiteStore) Record(ctx context.Context, item *model.WorkItem) (*model.LedgerRecord, error) {
	id, err := provenance.ParseEntityID(item.Provenance.Entity)
	if err != nil {
		return nil, fmt.Errorf("record work item: %w", err)
	}
	digest, payload, err := Digest(item)
	if err != nil {
		return nil, err
	}
	entity := item.Provenance.Entity
	s.logger.Debug("sql", "op", "insert", "table", "work_items", "entity", entity)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx, `SELECT digest FROM work_items WHERE entity_id = ?`, entity).Scan(&existing)
	switch {
	case err == nil:
		if existing != digest {
			return nil, fmt.Errorf("entity %s: recorded digest %s, got %s: %w", entity, existing, digest, ErrNonDeterministic)
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return s.Get(ctx, entity)
	case !errors.Is(err, sql.ErrNoRows):
		return nil, err
	}

	rec := &model.LedgerRecord{
		Entity:      entity,
		RunID:       id.Run.String(),
		Sample:      id.Sample,
		Lane:        id.Lane,
		Stage:       stageName(id),
		GenomeBuild: item.GenomeBuild,
		Digest:      digest,
		Item:        item.Clone(),
		RecordedAt:  s.now(),
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO work_items (entity_id, run_id, sample, lane, stage, genome_build, digest, payload, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Entity, rec.RunID, rec.Sample, rec.Lane, rec.Stage, rec.GenomeBuild,
		rec.Digest, string(payload), rec.RecordedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return rec, nil
}

func stageName(id provenance.EntityID) string {
	names := make([]string, len(id.Stages))
	for i, st := range id.Stages {
		names[i] = st.Name
	}
	return strings.Join(names, "/")
}

const recordColumns = `entity_id, run_id, sample, lane, stage, genome_build, digest, payload, recorded_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*model.LedgerRecord, error) {
	var rec model.LedgerRecord
	var payload, recordedAt string
	if err := row.Scan(&rec.Entity, &rec.RunID, &rec.Sample, &rec.Lane, &rec.Stage, &rec.GenomeBuild,
		&rec.Digest, &payload, &recordedAt); err != nil {
		return nil, err
	}
	rec.Item = &model.WorkItem{}
	if err := json.Unmarshal([]byte(payload), rec.Item); err != nil {
		return nil, fmt.Errorf("unmarshal work item %s: %w", rec.Entity, err)
	}
	rec.RecordedAt, _ = time.Parse(time.RFC3339Nano, recordedAt)
	return &rec, nil
}

func (s *SQLiteStore) Get(ctx context.Context, entity string) (*model.LedgerRecord, error) {
	s.logger.Debug("sql", "op", "select", "table", "work_items", "entity", entity)

	rec, err := scanRecord(s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM work_items WHERE entity_id = ?`, entity))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *SQLiteStore) ListByRun(ctx context.Context, runID string, opts model.ListOptions) ([]*model.LedgerRecord, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "work_items", "run", runID, "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	where := `WHERE run_id = ?`
	args := []any{runID}
	if opts.Sample != "" {
		where += ` AND sample = ?`
		args = append(args, opts.Sample)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM work_items `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM work_items `+where+` ORDER BY sample, lane, entity_id LIMIT ? OFFSET ?`,
		append(args, opts.Limit, opts.Offset)...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var records []*model.LedgerRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	return records, total, rows.Err()
}

func (s *SQLiteStore) Runs(ctx context.Context) ([]string, error) {
	s.logger.Debug("sql", "op", "distinct", "table", "work_items", "column", "run_id")

	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT run_id FROM work_items ORDER BY run_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []string
	for rows.Next() {
		var run string
		if err := rows.Scan(&run); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
