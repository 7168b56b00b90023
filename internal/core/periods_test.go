package core_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Oss53pa/cockpit-core/internal/core"
)

// ----------------------------------------------------------------------------
// Period Lifecycle Tests
// ----------------------------------------------------------------------------

func TestClosePeriodBlocksWrites(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if err := svc.ClosePeriod(ctx, "bu-1", 2024, time.January, "month-end close"); err != nil {
		t.Fatalf("ClosePeriod: %v", err)
	}

	ok, err := svc.IsWritable(ctx, "bu-1", 2024, time.January)
	if err != nil || ok {
		t.Fatalf("IsWritable = %v, %v; want false", ok, err)
	}

	// Other periods and other units stay open.
	if ok, _ := svc.IsWritable(ctx, "bu-1", 2024, time.February); !ok {
		t.Error("february should be writable")
	}
	if ok, _ := svc.IsWritable(ctx, "bu-2", 2024, time.January); !ok {
		t.Error("bu-2 january should be writable")
	}

	// The close is journaled with its justification.
	entries, _ := svc.ListEntries(ctx, core.JournalFilter{Actions: []core.Action{core.ActionClose}})
	if len(entries) != 1 || entries[0].Details.Justification != "month-end close" {
		t.Fatalf("close entries = %+v", entries)
	}
}

func TestClosePeriodTwiceFails(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if err := svc.ClosePeriod(ctx, "bu-1", 2024, time.January, ""); err != nil {
		t.Fatalf("ClosePeriod: %v", err)
	}
	err := svc.ClosePeriod(ctx, "bu-1", 2024, time.January, "")
	var closed *core.AlreadyClosedError
	if !errors.As(err, &closed) {
		t.Fatalf("err = %v, want AlreadyClosedError", err)
	}

	// Closing again while temporarily reopened is still a conflict.
	if err := svc.ReopenTemporarily(ctx, "bu-1", 2024, time.January); err != nil {
		t.Fatalf("ReopenTemporarily: %v", err)
	}
	if err := svc.ClosePeriod(ctx, "bu-1", 2024, time.January, ""); !errors.As(err, &closed) {
		t.Fatalf("err = %v, want AlreadyClosedError", err)
	}
}

func TestReopenRequiresClosedPeriod(t *testing.T) {
	svc := newTestService(t)
	err := svc.ReopenTemporarily(context.Background(), "bu-1", 2024, time.March)
	var notClosed *core.PeriodNotClosedError
	if !errors.As(err, &notClosed) {
		t.Fatalf("err = %v, want PeriodNotClosedError", err)
	}
}

func TestCommitIntoLockedPeriodFails(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if err := svc.ClosePeriod(ctx, "bu-1", 2024, time.January, ""); err != nil {
		t.Fatalf("ClosePeriod: %v", err)
	}

	startRentroll(t, svc, rentrollCSV)
	if _, err := svc.Validate(ctx); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	result, err := svc.CommitImport(ctx, false)
	var lockErr *core.PeriodLockedError
	if !errors.As(err, &lockErr) {
		t.Fatalf("err = %v, want PeriodLockedError", err)
	}
	if result.Status != core.StatusFailure || result.RowsAffected != 0 {
		t.Fatalf("result = %+v", result)
	}

	// The failed attempt still leaves a trace.
	files, _ := svc.ListImportFiles(ctx, "bu-1", "")
	if len(files) != 1 || files[0].Status != core.StatusFailure {
		t.Fatalf("import files = %+v", files)
	}

	records, _ := svc.Records(ctx, "rentroll", "bu-1")
	if len(records) != 0 {
		t.Errorf("records written into locked period: %d", len(records))
	}
}

func TestReopenedPeriodAcceptsOneCommitThenRecloses(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if err := svc.ClosePeriod(ctx, "bu-1", 2024, time.January, ""); err != nil {
		t.Fatalf("ClosePeriod: %v", err)
	}
	if err := svc.ReopenTemporarily(ctx, "bu-1", 2024, time.January); err != nil {
		t.Fatalf("ReopenTemporarily: %v", err)
	}

	result := runImport(t, svc, rentrollCSV)
	if result.Status != core.StatusSuccess || result.RowsAffected != 3 {
		t.Fatalf("result = %+v", result)
	}

	// The commit consumed the temporary reopening.
	period, found, err := svc.PeriodStatus(ctx, "bu-1", 2024, time.January)
	if err != nil || !found {
		t.Fatalf("PeriodStatus: %v %v", found, err)
	}
	if period.TemporarilyReopened {
		t.Error("period still temporarily reopened after commit")
	}
	if ok, _ := svc.IsWritable(ctx, "bu-1", 2024, time.January); ok {
		t.Error("period writable after automatic re-close")
	}
}

func TestLockedPeriodBlocksSingleRecordMutations(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	runImport(t, svc, rentrollCSV)

	records, err := svc.Records(ctx, "rentroll", "bu-1")
	if err != nil || len(records) == 0 {
		t.Fatalf("Records: %v", err)
	}
	id := records[0].ID

	if err := svc.ClosePeriod(ctx, "bu-1", 2024, time.January, ""); err != nil {
		t.Fatalf("ClosePeriod: %v", err)
	}

	var lockErr *core.PeriodLockedError
	if err := svc.UpdateRecordField(ctx, "rentroll", id, "annual_rent", "1300"); !errors.As(err, &lockErr) {
		t.Errorf("update err = %v, want PeriodLockedError", err)
	}
	if err := svc.DeleteRecord(ctx, "rentroll", id); !errors.As(err, &lockErr) {
		t.Errorf("delete err = %v, want PeriodLockedError", err)
	}

	// After a temporary reopen exactly one mutation passes.
	if err := svc.ReopenTemporarily(ctx, "bu-1", 2024, time.January); err != nil {
		t.Fatalf("ReopenTemporarily: %v", err)
	}
	if err := svc.UpdateRecordField(ctx, "rentroll", id, "annual_rent", "1300"); err != nil {
		t.Fatalf("update during reopening: %v", err)
	}
	if err := svc.UpdateRecordField(ctx, "rentroll", id, "annual_rent", "1400"); !errors.As(err, &lockErr) {
		t.Errorf("second update err = %v, want PeriodLockedError", err)
	}
}
