package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Oss53pa/cockpit-core/internal/core"
)

func rec(table, id, key, unit string) core.Record {
	return core.Record{Table: table, ID: id, Key: key, BusinessUnitID: unit}
}

// ----------------------------------------------------------------------------
// Record Constraint Tests
// ----------------------------------------------------------------------------

func TestInsertRecordConstraints(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.InsertRecord(ctx, rec("rentroll", "r1", "A-101|2024-01", "bu-1")); err != nil {
		t.Fatalf("insert: %v", err)
	}

	tests := []struct {
		name string
		rec  core.Record
	}{
		{"duplicate id", rec("rentroll", "r1", "A-999|2024-01", "bu-1")},
		{"duplicate key", rec("rentroll", "r2", "A-101|2024-01", "bu-1")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.InsertRecord(ctx, tt.rec)
			if !errors.Is(err, core.ErrConstraint) {
				t.Errorf("err = %v, want ErrConstraint", err)
			}
		})
	}

	// Same key in a different table is fine.
	if err := s.InsertRecord(ctx, rec("lease", "l1", "A-101|2024-01", "bu-1")); err != nil {
		t.Errorf("cross-table key: %v", err)
	}
	// Keyless records never collide on key.
	if err := s.InsertRecord(ctx, rec("rentroll", "r3", "", "bu-1")); err != nil {
		t.Errorf("keyless insert: %v", err)
	}
	if err := s.InsertRecord(ctx, rec("rentroll", "r4", "", "bu-1")); err != nil {
		t.Errorf("second keyless insert: %v", err)
	}
}

func TestUpdateRecordReindexesKey(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.InsertRecord(ctx, rec("rentroll", "r1", "k-old", "bu-1")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.InsertRecord(ctx, rec("rentroll", "r2", "k-other", "bu-1")); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// Moving onto another record's key is a constraint violation.
	moved := rec("rentroll", "r1", "k-other", "bu-1")
	if err := s.UpdateRecord(ctx, moved); !errors.Is(err, core.ErrConstraint) {
		t.Fatalf("err = %v, want ErrConstraint", err)
	}

	// Moving to a fresh key frees the old one.
	moved.Key = "k-new"
	if err := s.UpdateRecord(ctx, moved); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.InsertRecord(ctx, rec("rentroll", "r3", "k-old", "bu-1")); err != nil {
		t.Errorf("old key not released: %v", err)
	}

	if err := s.UpdateRecord(ctx, rec("rentroll", "missing", "x", "bu-1")); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteRecordReleasesKey(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.InsertRecord(ctx, rec("rentroll", "r1", "k1", "bu-1")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.DeleteRecord(ctx, "rentroll", "r1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetRecord(ctx, "rentroll", "r1"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if err := s.InsertRecord(ctx, rec("rentroll", "r2", "k1", "bu-1")); err != nil {
		t.Errorf("key not released after delete: %v", err)
	}
}

func TestListRecordsFiltersAndSorts(t *testing.T) {
	s := New()
	ctx := context.Background()

	for _, r := range []core.Record{
		rec("rentroll", "r1", "b", "bu-1"),
		rec("rentroll", "r2", "a", "bu-1"),
		rec("rentroll", "r3", "c", "bu-2"),
	} {
		if err := s.InsertRecord(ctx, r); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	got, err := s.ListRecords(ctx, "rentroll", "bu-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].Key != "a" || got[1].Key != "b" {
		t.Errorf("bu-1 records = %+v", got)
	}

	all, _ := s.ListRecords(ctx, "rentroll", "")
	if len(all) != 3 {
		t.Errorf("all records = %d", len(all))
	}
}

// ----------------------------------------------------------------------------
// Transaction Tests
// ----------------------------------------------------------------------------

func TestAtomicRollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.InsertRecord(ctx, rec("rentroll", "r0", "k0", "bu-1")); err != nil {
		t.Fatalf("insert: %v", err)
	}

	failed := errors.New("boom")
	err := s.Atomic(ctx, func(tx core.Store) error {
		if err := tx.InsertRecord(ctx, rec("rentroll", "r1", "k1", "bu-1")); err != nil {
			return err
		}
		if err := tx.DeleteRecord(ctx, "rentroll", "r0"); err != nil {
			return err
		}
		return failed
	})
	if !errors.Is(err, failed) {
		t.Fatalf("err = %v", err)
	}

	// Nothing from the failed transaction is visible.
	if _, err := s.GetRecord(ctx, "rentroll", "r1"); !errors.Is(err, core.ErrNotFound) {
		t.Error("aborted insert leaked")
	}
	if _, err := s.GetRecord(ctx, "rentroll", "r0"); err != nil {
		t.Errorf("aborted delete applied: %v", err)
	}
}

func TestAtomicCommitsOnSuccess(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.Atomic(ctx, func(tx core.Store) error {
		for i := 0; i < 5; i++ {
			r := rec("rentroll", fmt.Sprintf("r%d", i), fmt.Sprintf("k%d", i), "bu-1")
			if err := tx.InsertRecord(ctx, r); err != nil {
				return err
			}
		}
		// Nested Atomic joins the same transaction.
		return tx.Atomic(ctx, func(inner core.Store) error {
			return inner.InsertRecord(ctx, rec("rentroll", "r9", "k9", "bu-1"))
		})
	})
	if err != nil {
		t.Fatalf("atomic: %v", err)
	}

	got, _ := s.ListRecords(ctx, "rentroll", "bu-1")
	if len(got) != 6 {
		t.Errorf("records = %d, want 6", len(got))
	}
}

func TestStoreReadableDuringTransaction(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.InsertRecord(ctx, rec("rentroll", "r0", "k0", "bu-1")); err != nil {
		t.Fatalf("insert: %v", err)
	}

	err := s.Atomic(ctx, func(tx core.Store) error {
		if err := tx.InsertRecord(ctx, rec("rentroll", "r1", "k1", "bu-1")); err != nil {
			return err
		}
		// Reads through the outer store see pre-transaction state.
		if _, err := s.GetRecord(ctx, "rentroll", "r1"); !errors.Is(err, core.ErrNotFound) {
			t.Error("uncommitted write visible outside the transaction")
		}
		if _, err := s.GetRecord(ctx, "rentroll", "r0"); err != nil {
			t.Errorf("outer read during transaction: %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("atomic: %v", err)
	}
	if _, err := s.GetRecord(ctx, "rentroll", "r1"); err != nil {
		t.Errorf("committed write missing: %v", err)
	}
}

// ----------------------------------------------------------------------------
// Import File and Journal Tests
// ----------------------------------------------------------------------------

func TestImportFilesSoftDeleteAndOrder(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"f1", "f2", "f3"} {
		f := core.ImportFile{
			ID:             id,
			BusinessUnitID: "bu-1",
			ImportedAt:     base.Add(time.Duration(i) * time.Hour),
		}
		if err := s.InsertImportFile(ctx, f); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	got, _ := s.ListImportFiles(ctx, core.ImportFileFilter{BusinessUnitID: "bu-1"})
	if len(got) != 3 || got[0].ID != "f3" || got[2].ID != "f1" {
		t.Fatalf("order = %+v", got)
	}

	if err := s.MarkImportFileDeleted(ctx, "f2"); err != nil {
		t.Fatalf("mark deleted: %v", err)
	}
	got, _ = s.ListImportFiles(ctx, core.ImportFileFilter{BusinessUnitID: "bu-1"})
	if len(got) != 2 {
		t.Errorf("after soft delete = %d", len(got))
	}
	got, _ = s.ListImportFiles(ctx, core.ImportFileFilter{BusinessUnitID: "bu-1", IncludeDeleted: true})
	if len(got) != 3 {
		t.Errorf("with deleted = %d", len(got))
	}

	if err := s.MarkImportFileDeleted(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListJournalPagination(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		e := core.JournalEntry{
			ID:        fmt.Sprintf("e%d", i),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Action:    core.ActionImport,
		}
		if err := s.AppendJournal(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	page, _ := s.ListJournal(ctx, core.JournalFilter{Limit: 2})
	if len(page) != 2 || page[0].ID != "e4" || page[1].ID != "e3" {
		t.Errorf("first page = %+v", page)
	}
	page, _ = s.ListJournal(ctx, core.JournalFilter{Limit: 2, Offset: 2})
	if len(page) != 2 || page[0].ID != "e2" {
		t.Errorf("second page = %+v", page)
	}
	page, _ = s.ListJournal(ctx, core.JournalFilter{Offset: 10})
	if len(page) != 0 {
		t.Errorf("past-the-end page = %+v", page)
	}
}

func TestClosedPeriodRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, found, _ := s.GetClosedPeriod(ctx, "bu-1", 2024, time.May); found {
		t.Fatal("period found before upsert")
	}

	p := core.ClosedPeriod{BusinessUnitID: "bu-1", Year: 2024, Month: time.May}
	if err := s.UpsertClosedPeriod(ctx, p); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, found, _ := s.GetClosedPeriod(ctx, "bu-1", 2024, time.May)
	if !found || got.TemporarilyReopened {
		t.Fatalf("period = %+v, found = %v", got, found)
	}

	// Upsert replaces.
	p.TemporarilyReopened = true
	if err := s.UpsertClosedPeriod(ctx, p); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, _, _ = s.GetClosedPeriod(ctx, "bu-1", 2024, time.May)
	if !got.TemporarilyReopened {
		t.Error("upsert did not replace")
	}
}
