package metadata

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/withObsrvr/enrollstat/internal/logging"
)

//go:embed schema.sql
var schemaSQL string

// ErrChainBroken is returned by VerifyChain when a record's prev_checksum does
// not match the checksum of the record before it.
var ErrChainBroken = errors.New("refresh chain broken")

// SQLiteWriter implements Writer on a SQLite database file.
type SQLiteWriter struct {
	db  *sql.DB
	log *slog.Logger
}

// NewSQLiteWriter opens (or creates) the catalog at cfg.Path.
func NewSQLiteWriter(cfg CatalogConfig) (*SQLiteWriter, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open catalog %s: %w", cfg.Path, err)
	}

	// A single connection keeps ":memory:" databases shared and serialises
	// the read-then-insert of RecordRefresh.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping catalog: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	w := &SQLiteWriter{db: db, log: logging.Component("catalog")}
	if err := w.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	w.log.Info("opened refresh catalog", "path", cfg.Path)
	return w, nil
}

func (w *SQLiteWriter) initSchema(ctx context.Context) error {
	if _, err := w.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

const selectColumns = `
	id, current_term, previous_term, build_id, reference_date, rename_version,
	fingerprint, checksum, COALESCE(prev_checksum, ''), storage_uri,
	courses, dates, producer_version, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*RefreshRecord, error) {
	var rec RefreshRecord
	var created string
	err := row.Scan(
		&rec.ID, &rec.CurrentTerm, &rec.PreviousTerm, &rec.BuildID, &rec.ReferenceDate, &rec.RenameVersion,
		&rec.Fingerprint, &rec.Checksum, &rec.PrevChecksum, &rec.StorageURI,
		&rec.Courses, &rec.Dates, &rec.ProducerVersion, &created,
	)
	if err != nil {
		return nil, err
	}
	rec.CreatedAt, err = time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", created, err)
	}
	return &rec, nil
}

// RecordRefresh inserts rec with prev_checksum set to the checksum of the
// newest record of the same term pair.
func (w *SQLiteWriter) RecordRefresh(ctx context.Context, rec RefreshRecord) (*RefreshRecord, error) {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var prev string
	err = tx.QueryRowContext(ctx, `
		SELECT checksum FROM refreshes
		WHERE current_term = ? AND previous_term = ?
		ORDER BY id DESC
		LIMIT 1`,
		rec.CurrentTerm, rec.PreviousTerm,
	).Scan(&prev)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get last checksum: %w", err)
	}
	rec.PrevChecksum = prev

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var prevChecksum *string
	if prev != "" {
		prevChecksum = &prev
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO refreshes (
			current_term, previous_term, build_id, reference_date, rename_version,
			fingerprint, checksum, prev_checksum, storage_uri,
			courses, dates, producer_version, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.CurrentTerm, rec.PreviousTerm, rec.BuildID, rec.ReferenceDate, rec.RenameVersion,
		rec.Fingerprint, rec.Checksum, prevChecksum, rec.StorageURI,
		rec.Courses, rec.Dates, rec.ProducerVersion, rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert refresh: %w", err)
	}
	if rec.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("insert refresh: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	w.log.Info("recorded refresh",
		"current_term", rec.CurrentTerm,
		"previous_term", rec.PreviousTerm,
		"build_id", rec.BuildID,
		"prev_checksum", rec.PrevChecksum,
	)
	return &rec, nil
}

// LastRefresh returns the newest record of a term pair, or nil if none.
func (w *SQLiteWriter) LastRefresh(ctx context.Context, currentTerm, previousTerm string) (*RefreshRecord, error) {
	row := w.db.QueryRowContext(ctx, `
		SELECT`+selectColumns+`
		FROM refreshes
		WHERE current_term = ? AND previous_term = ?
		ORDER BY id DESC
		LIMIT 1`,
		currentTerm, previousTerm,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get last refresh: %w", err)
	}
	return rec, nil
}

// History returns up to limit records of a term pair, oldest first.
// A limit of zero returns all of them.
func (w *SQLiteWriter) History(ctx context.Context, currentTerm, previousTerm string, limit int) ([]RefreshRecord, error) {
	query := `
		SELECT * FROM (
			SELECT` + selectColumns + `
			FROM refreshes
			WHERE current_term = ? AND previous_term = ?
			ORDER BY id DESC`
	args := []any{currentTerm, previousTerm}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	query += `) ORDER BY id ASC`

	rows, err := w.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []RefreshRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan refresh: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// VerifyChain checks that every record of a term pair links to its
// predecessor's checksum.
func (w *SQLiteWriter) VerifyChain(ctx context.Context, currentTerm, previousTerm string) error {
	recs, err := w.History(ctx, currentTerm, previousTerm, 0)
	if err != nil {
		return err
	}
	prev := ""
	for _, rec := range recs {
		if rec.PrevChecksum != prev {
			return fmt.Errorf("%w: build %s has prev_checksum %q, want %q",
				ErrChainBroken, rec.BuildID, rec.PrevChecksum, prev)
		}
		prev = rec.Checksum
	}
	return nil
}

// Close releases the database.
func (w *SQLiteWriter) Close() error {
	return w.db.Close()
}

var _ Writer = (*SQLiteWriter)(nil)
