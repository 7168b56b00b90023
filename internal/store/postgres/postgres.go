// Package postgres is the durable storage adapter, backed by pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Oss53pa/cockpit-core/internal/core"
)

// querier is the subset of pgx shared by pools and transactions.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements core.Store over a Postgres pool. Inside Atomic the
// same implementation runs on the transaction, with a savepoint around
// each record write so a constraint failure does not poison the
// transaction.
type Store struct {
	pool  *pgxpool.Pool
	q     querier
	inTx  bool
	spSeq int
}

// Connect opens a pool, pings it and runs pending migrations.
func Connect(ctx context.Context, url string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if err := Migrate(ctx, url); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool, q: pool}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *Store) InsertRecord(ctx context.Context, rec core.Record) error {
	values, err := json.Marshal(rec.Values)
	if err != nil {
		return fmt.Errorf("encode record values: %w", err)
	}

	var effective *time.Time
	if !rec.EffectiveDate.IsZero() {
		effective = &rec.EffectiveDate
	}

	exec := func(q querier) error {
		_, err := q.Exec(ctx, `
			INSERT INTO records (id, table_name, record_key, business_unit_id, import_id, effective_date, field_values)
			VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, ''), $6, $7)`,
			rec.ID, rec.Table, rec.Key, rec.BusinessUnitID, rec.ImportID, effective, values)
		return err
	}

	if !s.inTx {
		if err := exec(s.q); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s", core.ErrConstraint, rec.Key)
			}
			return err
		}
		return nil
	}

	// Savepoint per write: a failed row must not abort the surrounding
	// transaction.
	s.spSeq++
	sp := fmt.Sprintf("row_%d", s.spSeq)
	if _, err := s.q.Exec(ctx, "SAVEPOINT "+sp); err != nil {
		return err
	}
	if err := exec(s.q); err != nil {
		if _, rbErr := s.q.Exec(ctx, "ROLLBACK TO SAVEPOINT "+sp); rbErr != nil {
			return rbErr
		}
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", core.ErrConstraint, rec.Key)
		}
		return err
	}
	_, err = s.q.Exec(ctx, "RELEASE SAVEPOINT "+sp)
	return err
}

func (s *Store) UpdateRecord(ctx context.Context, rec core.Record) error {
	values, err := json.Marshal(rec.Values)
	if err != nil {
		return fmt.Errorf("encode record values: %w", err)
	}
	var effective *time.Time
	if !rec.EffectiveDate.IsZero() {
		effective = &rec.EffectiveDate
	}
	tag, err := s.q.Exec(ctx, `
		UPDATE records
		SET record_key = NULLIF($3, ''), effective_date = $4, field_values = $5
		WHERE id = $1 AND table_name = $2`,
		rec.ID, rec.Table, rec.Key, effective, values)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", core.ErrConstraint, rec.Key)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteRecord(ctx context.Context, table, id string) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM records WHERE id = $1 AND table_name = $2`, id, table)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

const recordColumns = `id, table_name, COALESCE(record_key, ''), business_unit_id, COALESCE(import_id, ''), effective_date, field_values`

func scanRecord(row pgx.Row) (core.Record, error) {
	var rec core.Record
	var effective *time.Time
	var values []byte
	err := row.Scan(&rec.ID, &rec.Table, &rec.Key, &rec.BusinessUnitID, &rec.ImportID, &effective, &values)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return core.Record{}, core.ErrNotFound
		}
		return core.Record{}, err
	}
	if effective != nil {
		rec.EffectiveDate = *effective
	}
	if len(values) > 0 {
		if err := json.Unmarshal(values, &rec.Values); err != nil {
			return core.Record{}, fmt.Errorf("decode record values: %w", err)
		}
	}
	return rec, nil
}

func (s *Store) GetRecord(ctx context.Context, table, id string) (core.Record, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM records WHERE id = $1 AND table_name = $2`, id, table)
	return scanRecord(row)
}

func (s *Store) ListRecords(ctx context.Context, table, businessUnitID string) ([]core.Record, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+recordColumns+`
		FROM records
		WHERE table_name = $1 AND ($2 = '' OR business_unit_id = $2)
		ORDER BY record_key NULLS LAST`, table, businessUnitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Atomic begins a transaction and runs fn on a Store bound to it.
func (s *Store) Atomic(ctx context.Context, fn func(tx core.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(&Store{pool: s.pool, q: tx, inTx: true}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) InsertImportFile(ctx context.Context, f core.ImportFile) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO import_files (id, name, folder_id, business_unit_id, category, imported_at, status, rows_affected, quality_score, error_summary, deleted)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11)`,
		f.ID, f.Name, f.FolderID, f.BusinessUnitID, f.Category, f.ImportedAt,
		string(f.Status), f.RowsAffected, f.QualityScore, f.ErrorSummary, f.Deleted)
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("%w: import file %s", core.ErrConstraint, f.ID)
	}
	return err
}

func (s *Store) MarkImportFileDeleted(ctx context.Context, id string) error {
	tag, err := s.q.Exec(ctx, `UPDATE import_files SET deleted = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) ListImportFiles(ctx context.Context, filter core.ImportFileFilter) ([]core.ImportFile, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, name, COALESCE(folder_id, ''), business_unit_id, category, imported_at, status, rows_affected, quality_score, error_summary, deleted
		FROM import_files
		WHERE ($1 = '' OR business_unit_id = $1)
		  AND ($2 = '' OR folder_id = $2)
		  AND ($3 OR NOT deleted)
		ORDER BY imported_at DESC`,
		filter.BusinessUnitID, filter.FolderID, filter.IncludeDeleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.ImportFile
	for rows.Next() {
		var f core.ImportFile
		var status string
		if err := rows.Scan(&f.ID, &f.Name, &f.FolderID, &f.BusinessUnitID, &f.Category,
			&f.ImportedAt, &status, &f.RowsAffected, &f.QualityScore, &f.ErrorSummary, &f.Deleted); err != nil {
			return nil, err
		}
		f.Status = core.ImportStatus(status)
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) UpsertClosedPeriod(ctx context.Context, p core.ClosedPeriod) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO closed_periods (business_unit_id, year, month, closed_at, justification, temporarily_reopened)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (business_unit_id, year, month)
		DO UPDATE SET closed_at = EXCLUDED.closed_at,
		              justification = EXCLUDED.justification,
		              temporarily_reopened = EXCLUDED.temporarily_reopened`,
		p.BusinessUnitID, p.Year, int(p.Month), p.ClosedAt, p.Justification, p.TemporarilyReopened)
	return err
}

func (s *Store) GetClosedPeriod(ctx context.Context, unit string, year int, month time.Month) (core.ClosedPeriod, bool, error) {
	var p core.ClosedPeriod
	var m int
	err := s.q.QueryRow(ctx, `
		SELECT business_unit_id, year, month, closed_at, justification, temporarily_reopened
		FROM closed_periods
		WHERE business_unit_id = $1 AND year = $2 AND month = $3`,
		unit, year, int(month)).
		Scan(&p.BusinessUnitID, &p.Year, &m, &p.ClosedAt, &p.Justification, &p.TemporarilyReopened)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ClosedPeriod{}, false, nil
	}
	if err != nil {
		return core.ClosedPeriod{}, false, err
	}
	p.Month = time.Month(m)
	return p, true, nil
}

func (s *Store) AppendJournal(ctx context.Context, e core.JournalEntry) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("encode journal details: %w", err)
	}
	errs, err := json.Marshal(e.Errors)
	if err != nil {
		return err
	}
	warns, err := json.Marshal(e.Warnings)
	if err != nil {
		return err
	}
	_, err = s.q.Exec(ctx, `
		INSERT INTO journal (id, ts, actor, action, table_name, rows_affected, details, errors, warnings, quality_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.Timestamp, e.Actor, string(e.Action), e.Table, e.RowsAffected,
		details, errs, warns, e.QualityScore)
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("%w: journal entry %s", core.ErrConstraint, e.ID)
	}
	return err
}

const journalColumns = `id, ts, actor, action, table_name, rows_affected, details, errors, warnings, quality_score`

func scanJournal(row pgx.Row) (core.JournalEntry, error) {
	var e core.JournalEntry
	var action string
	var details, errs, warns []byte
	err := row.Scan(&e.ID, &e.Timestamp, &e.Actor, &action, &e.Table, &e.RowsAffected,
		&details, &errs, &warns, &e.QualityScore)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return core.JournalEntry{}, core.ErrNotFound
		}
		return core.JournalEntry{}, err
	}
	e.Action = core.Action(action)
	if err := json.Unmarshal(details, &e.Details); err != nil {
		return core.JournalEntry{}, fmt.Errorf("decode journal details: %w", err)
	}
	if err := json.Unmarshal(errs, &e.Errors); err != nil {
		return core.JournalEntry{}, err
	}
	if err := json.Unmarshal(warns, &e.Warnings); err != nil {
		return core.JournalEntry{}, err
	}
	return e, nil
}

func (s *Store) GetJournalEntry(ctx context.Context, id string) (core.JournalEntry, error) {
	return scanJournal(s.q.QueryRow(ctx, `SELECT `+journalColumns+` FROM journal WHERE id = $1`, id))
}

func (s *Store) ListJournal(ctx context.Context, filter core.JournalFilter) ([]core.JournalEntry, error) {
	actions := make([]string, len(filter.Actions))
	for i, a := range filter.Actions {
		actions[i] = string(a)
	}
	var from, to *time.Time
	if !filter.From.IsZero() {
		from = &filter.From
	}
	if !filter.To.IsZero() {
		to = &filter.To
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 1_000_000
	}

	rows, err := s.q.Query(ctx, `
		SELECT `+journalColumns+`
		FROM journal
		WHERE ($1 = '' OR details->>'businessUnitId' = $1)
		  AND ($2 = '' OR actor = $2)
		  AND (cardinality($3::text[]) = 0 OR action = ANY($3))
		  AND ($4::timestamptz IS NULL OR ts >= $4)
		  AND ($5::timestamptz IS NULL OR ts <= $5)
		  AND ($6 = '' OR table_name = $6)
		  AND ($7 = '' OR table_name ILIKE '%' || $7 || '%' OR details::text ILIKE '%' || $7 || '%')
		ORDER BY ts DESC
		LIMIT $8 OFFSET $9`,
		filter.BusinessUnitID, filter.Actor, actions, from, to,
		filter.Table, filter.Search, limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.JournalEntry
	for rows.Next() {
		e, err := scanJournal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

var _ core.Store = (*Store)(nil)
