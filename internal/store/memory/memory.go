// Package memory is the in-process storage adapter. It backs tests and
// single-node deployments that run without Postgres.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Oss53pa/cockpit-core/internal/core"
)

// Store keeps all state in maps guarded by one mutex. Atomic clones the
// state, runs the transaction against the clone and swaps it in on
// success, so a failed transaction leaves no trace.
type Store struct {
	txMu sync.Mutex // serializes transactions
	mu   sync.Mutex // guards st
	st   *state
}

type state struct {
	records map[string]map[string]core.Record // table -> id
	keys    map[string]map[string]string      // table -> business key -> id
	files   []core.ImportFile
	periods map[string]core.ClosedPeriod
	journal []core.JournalEntry
}

func newState() *state {
	return &state{
		records: make(map[string]map[string]core.Record),
		keys:    make(map[string]map[string]string),
		periods: make(map[string]core.ClosedPeriod),
	}
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{st: newState()}
}

func (s *state) clone() *state {
	c := newState()
	for table, recs := range s.records {
		c.records[table] = make(map[string]core.Record, len(recs))
		for id, r := range recs {
			c.records[table][id] = r
		}
	}
	for table, keys := range s.keys {
		c.keys[table] = make(map[string]string, len(keys))
		for k, id := range keys {
			c.keys[table][k] = id
		}
	}
	c.files = append(c.files, s.files...)
	for k, p := range s.periods {
		c.periods[k] = p
	}
	c.journal = append(c.journal, s.journal...)
	return c
}

func periodMapKey(unit string, year int, month time.Month) string {
	return fmt.Sprintf("%s|%04d-%02d", unit, year, int(month))
}

// ----------------------------------------------------------------------------
// state implements the storage operations without locking; Store and the
// transactional view dispatch into it.
// ----------------------------------------------------------------------------

func (s *state) insertRecord(rec core.Record) error {
	if rec.Table == "" || rec.ID == "" {
		return fmt.Errorf("record needs table and id")
	}
	recs := s.records[rec.Table]
	if recs == nil {
		recs = make(map[string]core.Record)
		s.records[rec.Table] = recs
	}
	if _, exists := recs[rec.ID]; exists {
		return fmt.Errorf("%w: duplicate id %s in %s", core.ErrConstraint, rec.ID, rec.Table)
	}
	if rec.Key != "" {
		keys := s.keys[rec.Table]
		if keys == nil {
			keys = make(map[string]string)
			s.keys[rec.Table] = keys
		}
		if _, exists := keys[rec.Key]; exists {
			return fmt.Errorf("%w: duplicate key %q in %s", core.ErrConstraint, rec.Key, rec.Table)
		}
		keys[rec.Key] = rec.ID
	}
	recs[rec.ID] = rec
	return nil
}

func (s *state) updateRecord(rec core.Record) error {
	recs := s.records[rec.Table]
	old, exists := recs[rec.ID]
	if !exists {
		return core.ErrNotFound
	}
	if rec.Key != old.Key {
		keys := s.keys[rec.Table]
		if rec.Key != "" {
			if otherID, taken := keys[rec.Key]; taken && otherID != rec.ID {
				return fmt.Errorf("%w: duplicate key %q in %s", core.ErrConstraint, rec.Key, rec.Table)
			}
		}
		if keys != nil {
			delete(keys, old.Key)
		}
		if rec.Key != "" {
			if keys == nil {
				keys = make(map[string]string)
				s.keys[rec.Table] = keys
			}
			keys[rec.Key] = rec.ID
		}
	}
	recs[rec.ID] = rec
	return nil
}

func (s *state) deleteRecord(table, id string) error {
	recs := s.records[table]
	old, exists := recs[id]
	if !exists {
		return core.ErrNotFound
	}
	delete(recs, id)
	if old.Key != "" {
		delete(s.keys[table], old.Key)
	}
	return nil
}

func (s *state) getRecord(table, id string) (core.Record, error) {
	rec, exists := s.records[table][id]
	if !exists {
		return core.Record{}, core.ErrNotFound
	}
	return rec, nil
}

func (s *state) listRecords(table, businessUnitID string) []core.Record {
	var out []core.Record
	for _, rec := range s.records[table] {
		if businessUnitID != "" && rec.BusinessUnitID != businessUnitID {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (s *state) insertImportFile(f core.ImportFile) error {
	for _, existing := range s.files {
		if existing.ID == f.ID {
			return fmt.Errorf("%w: duplicate import file id %s", core.ErrConstraint, f.ID)
		}
	}
	s.files = append(s.files, f)
	return nil
}

func (s *state) markImportFileDeleted(id string) error {
	for i := range s.files {
		if s.files[i].ID == id {
			s.files[i].Deleted = true
			return nil
		}
	}
	return core.ErrNotFound
}

func (s *state) listImportFiles(filter core.ImportFileFilter) []core.ImportFile {
	var out []core.ImportFile
	for _, f := range s.files {
		if f.Deleted && !filter.IncludeDeleted {
			continue
		}
		if filter.BusinessUnitID != "" && f.BusinessUnitID != filter.BusinessUnitID {
			continue
		}
		if filter.FolderID != "" && f.FolderID != filter.FolderID {
			continue
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ImportedAt.After(out[j].ImportedAt) })
	return out
}

func (s *state) upsertClosedPeriod(p core.ClosedPeriod) {
	s.periods[periodMapKey(p.BusinessUnitID, p.Year, p.Month)] = p
}

func (s *state) getClosedPeriod(unit string, year int, month time.Month) (core.ClosedPeriod, bool) {
	p, ok := s.periods[periodMapKey(unit, year, month)]
	return p, ok
}

func (s *state) appendJournal(e core.JournalEntry) error {
	for _, existing := range s.journal {
		if existing.ID == e.ID {
			return fmt.Errorf("%w: duplicate journal id %s", core.ErrConstraint, e.ID)
		}
	}
	s.journal = append(s.journal, e)
	return nil
}

func (s *state) getJournalEntry(id string) (core.JournalEntry, error) {
	for _, e := range s.journal {
		if e.ID == id {
			return e, nil
		}
	}
	return core.JournalEntry{}, core.ErrNotFound
}

func (s *state) listJournal(filter core.JournalFilter) []core.JournalEntry {
	var out []core.JournalEntry
	for _, e := range s.journal {
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out
}

// ----------------------------------------------------------------------------
// core.Store, locked
// ----------------------------------------------------------------------------

func (s *Store) InsertRecord(ctx context.Context, rec core.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.insertRecord(rec)
}

func (s *Store) UpdateRecord(ctx context.Context, rec core.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.updateRecord(rec)
}

func (s *Store) DeleteRecord(ctx context.Context, table, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.deleteRecord(table, id)
}

func (s *Store) GetRecord(ctx context.Context, table, id string) (core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.getRecord(table, id)
}

func (s *Store) ListRecords(ctx context.Context, table, businessUnitID string) ([]core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.listRecords(table, businessUnitID), nil
}

// Atomic runs fn against a cloned state and swaps the clone in only when
// fn succeeds. The store stays readable while the transaction runs;
// non-transactional writes made while one is open are lost when it
// commits, so callers serialize their mutations.
func (s *Store) Atomic(ctx context.Context, fn func(tx core.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	clone := s.st.clone()
	s.mu.Unlock()

	if err := fn(&txStore{st: clone}); err != nil {
		return err
	}

	s.mu.Lock()
	s.st = clone
	s.mu.Unlock()
	return nil
}

func (s *Store) InsertImportFile(ctx context.Context, f core.ImportFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.insertImportFile(f)
}

func (s *Store) MarkImportFileDeleted(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.markImportFileDeleted(id)
}

func (s *Store) ListImportFiles(ctx context.Context, filter core.ImportFileFilter) ([]core.ImportFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.listImportFiles(filter), nil
}

func (s *Store) UpsertClosedPeriod(ctx context.Context, p core.ClosedPeriod) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.upsertClosedPeriod(p)
	return nil
}

func (s *Store) GetClosedPeriod(ctx context.Context, unit string, year int, month time.Month) (core.ClosedPeriod, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.getClosedPeriod(unit, year, month)
	return p, ok, nil
}

func (s *Store) AppendJournal(ctx context.Context, e core.JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.appendJournal(e)
}

func (s *Store) GetJournalEntry(ctx context.Context, id string) (core.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.getJournalEntry(id)
}

func (s *Store) ListJournal(ctx context.Context, filter core.JournalFilter) ([]core.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.listJournal(filter), nil
}

// txStore is the unlocked view handed to Atomic callbacks. Only one
// transaction runs at a time, so the clone needs no locking of its own.
type txStore struct {
	st *state
}

func (t *txStore) InsertRecord(ctx context.Context, rec core.Record) error {
	return t.st.insertRecord(rec)
}

func (t *txStore) UpdateRecord(ctx context.Context, rec core.Record) error {
	return t.st.updateRecord(rec)
}

func (t *txStore) DeleteRecord(ctx context.Context, table, id string) error {
	return t.st.deleteRecord(table, id)
}

func (t *txStore) GetRecord(ctx context.Context, table, id string) (core.Record, error) {
	return t.st.getRecord(table, id)
}

func (t *txStore) ListRecords(ctx context.Context, table, businessUnitID string) ([]core.Record, error) {
	return t.st.listRecords(table, businessUnitID), nil
}

// Atomic inside a transaction just runs in the same transaction.
func (t *txStore) Atomic(ctx context.Context, fn func(tx core.Store) error) error {
	return fn(t)
}

func (t *txStore) InsertImportFile(ctx context.Context, f core.ImportFile) error {
	return t.st.insertImportFile(f)
}

func (t *txStore) MarkImportFileDeleted(ctx context.Context, id string) error {
	return t.st.markImportFileDeleted(id)
}

func (t *txStore) ListImportFiles(ctx context.Context, filter core.ImportFileFilter) ([]core.ImportFile, error) {
	return t.st.listImportFiles(filter), nil
}

func (t *txStore) UpsertClosedPeriod(ctx context.Context, p core.ClosedPeriod) error {
	t.st.upsertClosedPeriod(p)
	return nil
}

func (t *txStore) GetClosedPeriod(ctx context.Context, unit string, year int, month time.Month) (core.ClosedPeriod, bool, error) {
	p, ok := t.st.getClosedPeriod(unit, year, month)
	return p, ok, nil
}

func (t *txStore) AppendJournal(ctx context.Context, e core.JournalEntry) error {
	return t.st.appendJournal(e)
}

func (t *txStore) GetJournalEntry(ctx context.Context, id string) (core.JournalEntry, error) {
	return t.st.getJournalEntry(id)
}

func (t *txStore) ListJournal(ctx context.Context, filter core.JournalFilter) ([]core.JournalEntry, error) {
	return t.st.listJournal(filter), nil
}

var (
	_ core.Store = (*Store)(nil)
	_ core.Store = (*txStore)(nil)
)
