package core

import (
	"context"
	"time"
)

// Store is the storage capability the core writes through. Implementations
// live under internal/store; the core never touches connection lifecycle.
//
// Atomic runs fn against a transactional view of the store. If fn returns
// an error every write made inside it is discarded; otherwise all writes
// apply together. Per-row constraint failures surface as ErrConstraint
// from InsertRecord/UpdateRecord and do not poison the transaction.
type Store interface {
	InsertRecord(ctx context.Context, rec Record) error
	UpdateRecord(ctx context.Context, rec Record) error
	DeleteRecord(ctx context.Context, table, id string) error
	GetRecord(ctx context.Context, table, id string) (Record, error)
	ListRecords(ctx context.Context, table, businessUnitID string) ([]Record, error)
	Atomic(ctx context.Context, fn func(tx Store) error) error

	InsertImportFile(ctx context.Context, f ImportFile) error
	MarkImportFileDeleted(ctx context.Context, id string) error
	ListImportFiles(ctx context.Context, filter ImportFileFilter) ([]ImportFile, error)

	UpsertClosedPeriod(ctx context.Context, p ClosedPeriod) error
	GetClosedPeriod(ctx context.Context, businessUnitID string, year int, month time.Month) (ClosedPeriod, bool, error)

	AppendJournal(ctx context.Context, e JournalEntry) error
	GetJournalEntry(ctx context.Context, id string) (JournalEntry, error)
	ListJournal(ctx context.Context, filter JournalFilter) ([]JournalEntry, error)
}

// ImportFileFilter narrows ListImportFiles. Zero values match everything.
type ImportFileFilter struct {
	BusinessUnitID string
	FolderID       string
	IncludeDeleted bool
}

// JournalFilter narrows ListJournal. Zero values match everything.
// Search is matched case-insensitively against table name and detail
// fields (entity, changed field, values, source file, justification).
type JournalFilter struct {
	BusinessUnitID string
	Actor          string
	Actions        []Action
	From           time.Time
	To             time.Time
	Table          string
	Search         string
	Limit          int
	Offset         int
}
