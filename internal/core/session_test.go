package core_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Oss53pa/cockpit-core/internal/core"
	_ "github.com/Oss53pa/cockpit-core/internal/core/categories"
	"github.com/Oss53pa/cockpit-core/internal/store/memory"
)

const rentrollCSV = "unit_code,tenant_name,period,annual_rent\n" +
	"A-101,Cafe Luna,2024-01-01,1200\n" +
	"A-102,Libris,2024-01-01,950.50\n" +
	"A-103,Vertigo,2024-01-01,2000\n"

func newTestService(t *testing.T) *core.Service {
	t.Helper()
	return core.NewService(memory.New())
}

func startRentroll(t *testing.T, svc *core.Service, csv string) {
	t.Helper()
	_, err := svc.StartImport(context.Background(), core.StartImportInput{
		FileName:       "rentroll.csv",
		Data:           []byte(csv),
		CategoryKey:    "rentroll",
		BusinessUnitID: "bu-1",
	})
	if err != nil {
		t.Fatalf("StartImport: %v", err)
	}
}

// runImport drives a clean file through the whole pipeline.
func runImport(t *testing.T, svc *core.Service, csv string) *core.CommitResult {
	t.Helper()
	ctx := context.Background()
	startRentroll(t, svc, csv)
	if _, err := svc.Validate(ctx); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	result, err := svc.CommitImport(ctx, false)
	if err != nil {
		t.Fatalf("CommitImport: %v", err)
	}
	return result
}

// ----------------------------------------------------------------------------
// Pipeline Flow Tests
// ----------------------------------------------------------------------------

func TestImportPipelineEndToEnd(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	view, err := svc.StartImport(ctx, core.StartImportInput{
		FileName:       "rentroll.csv",
		Data:           []byte(rentrollCSV),
		CategoryKey:    "rentroll",
		BusinessUnitID: "bu-1",
	})
	if err != nil {
		t.Fatalf("StartImport: %v", err)
	}
	if view.Stage != core.StageMapping {
		t.Errorf("stage = %s, want mapping", view.Stage)
	}
	if view.RowCount != 3 {
		t.Errorf("row count = %d", view.RowCount)
	}
	for _, m := range view.Mapping {
		if m.TargetField == "" {
			t.Errorf("column %q left unmapped", m.SourceColumn)
		}
	}

	result, err := svc.Validate(ctx)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !result.Valid || result.QualityScore != 100 {
		t.Fatalf("validation = %+v", result)
	}

	commit, err := svc.CommitImport(ctx, false)
	if err != nil {
		t.Fatalf("CommitImport: %v", err)
	}
	if commit.Status != core.StatusSuccess || commit.RowsAffected != 3 {
		t.Fatalf("commit = %+v", commit)
	}

	records, err := svc.Records(ctx, "rentroll", "bu-1")
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(records) != 3 {
		t.Errorf("records = %d, want 3", len(records))
	}
	for _, rec := range records {
		if rec.ImportID != commit.ImportFileID {
			t.Errorf("record %s not stamped with import id", rec.Key)
		}
	}

	files, err := svc.ListImportFiles(ctx, "bu-1", "")
	if err != nil {
		t.Fatalf("ListImportFiles: %v", err)
	}
	if len(files) != 1 || files[0].Status != core.StatusSuccess || files[0].QualityScore != 100 {
		t.Fatalf("import files = %+v", files)
	}

	// One validate entry and one import entry.
	entries, err := svc.ListEntries(ctx, core.JournalFilter{BusinessUnitID: "bu-1"})
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	byAction := map[core.Action]int{}
	for _, e := range entries {
		byAction[e.Action]++
	}
	if byAction[core.ActionValidate] != 1 || byAction[core.ActionImport] != 1 {
		t.Errorf("journal actions = %v", byAction)
	}
}

func TestImportSecondSessionBlocked(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	startRentroll(t, svc, rentrollCSV)

	_, err := svc.StartImport(ctx, core.StartImportInput{
		FileName:       "second.csv",
		Data:           []byte(rentrollCSV),
		CategoryKey:    "rentroll",
		BusinessUnitID: "bu-1",
	})
	if !errors.Is(err, core.ErrSessionActive) {
		t.Fatalf("err = %v, want ErrSessionActive", err)
	}
}

func TestImportUnmappedRequiredBlocksCommit(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	// annual_rent is required but the header does not carry it.
	csv := "unit_code,tenant_name,period\nA-101,Cafe Luna,2024-01-01\nA-102,Libris,2024-01-01\n"
	startRentroll(t, svc, csv)

	result, err := svc.Validate(ctx)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if result.Valid {
		t.Fatal("expected invalid")
	}
	if len(result.Errors) != 2 {
		t.Errorf("want a blocking error per row, got %d", len(result.Errors))
	}

	// Required violations are never overridable.
	if _, err := svc.CommitImport(ctx, true); err == nil {
		t.Fatal("commit must refuse required violations")
	}

	// Refusal leaves no trace: no import file, session still in validation.
	files, _ := svc.ListImportFiles(ctx, "bu-1", "")
	if len(files) != 0 {
		t.Errorf("refused commit wrote an import file: %+v", files)
	}
	view, _ := svc.Session()
	if view.Stage != core.StageValidation {
		t.Errorf("stage = %s, want validation", view.Stage)
	}

	// Mapping edits remain possible after a failed validation.
	if _, err := svc.SetMapping(ctx, "tenant_name", ""); err != nil {
		t.Fatalf("SetMapping after failed validation: %v", err)
	}
}

func TestImportPartialCommitSkipsErroringRows(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	csv := "unit_code,tenant_name,period,annual_rent\n" +
		"A-101,Cafe Luna,2024-01-01,1200\n" +
		"A-102,Libris,2024-01-01,not-a-number\n" +
		"A-103,Vertigo,2024-01-01,800\n"
	startRentroll(t, svc, csv)

	result, err := svc.Validate(ctx)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if result.Valid || result.ValidRows != 2 {
		t.Fatalf("validation = %+v", result)
	}

	// Without confirmation the engine refuses.
	if _, err := svc.CommitImport(ctx, false); err == nil {
		t.Fatal("unconfirmed commit of erroring table must refuse")
	}

	commit, err := svc.CommitImport(ctx, true)
	if err != nil {
		t.Fatalf("confirmed CommitImport: %v", err)
	}
	if commit.Status != core.StatusPartial || commit.RowsAffected != 2 {
		t.Fatalf("commit = %+v", commit)
	}

	files, _ := svc.ListImportFiles(ctx, "bu-1", "")
	if len(files) != 1 || files[0].Status != core.StatusPartial {
		t.Fatalf("import files = %+v", files)
	}
}

func TestImportDuplicateKeysDegradeToPartial(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	runImport(t, svc, rentrollCSV)

	// A-101 and A-102 collide with the first import; A-104 is new.
	second := "unit_code,tenant_name,period,annual_rent\n" +
		"A-101,Cafe Luna,2024-01-01,1200\n" +
		"A-102,Libris,2024-01-01,950.50\n" +
		"A-104,Nordlys,2024-01-01,1500\n"
	startRentroll(t, svc, second)
	if _, err := svc.Validate(ctx); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	commit, err := svc.CommitImport(ctx, false)
	if err != nil {
		t.Fatalf("CommitImport: %v", err)
	}
	if commit.Status != core.StatusPartial || commit.RowsAffected != 1 {
		t.Fatalf("commit = %+v", commit)
	}
	if len(commit.Errors) != 2 {
		t.Errorf("constraint errors = %d, want 2", len(commit.Errors))
	}
	for _, issue := range commit.Errors {
		if !strings.Contains(issue.Message, "duplicate key") {
			t.Errorf("unexpected issue: %+v", issue)
		}
	}
}

func TestCancelBeforeCommitDiscardsSession(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	startRentroll(t, svc, rentrollCSV)

	if err := svc.CancelImport(ctx); err != nil {
		t.Fatalf("CancelImport: %v", err)
	}
	if _, err := svc.Session(); !errors.Is(err, core.ErrNoSession) {
		t.Errorf("session should be gone, got %v", err)
	}

	entries, _ := svc.ListEntries(ctx, core.JournalFilter{Actions: []core.Action{core.ActionCancel}})
	if len(entries) != 1 {
		t.Errorf("cancel entries = %d, want 1", len(entries))
	}
}

func TestProgressEventsReachSubscribers(t *testing.T) {
	svc := newTestService(t)

	ch := svc.SubscribeProgress()
	defer svc.UnsubscribeProgress(ch)

	runImport(t, svc, rentrollCSV)

	var stages []core.Stage
	for {
		select {
		case p := <-ch:
			stages = append(stages, p.Stage)
			if p.Stage == core.StageDone {
				goto done
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for progress events")
		}
	}
done:
	if stages[0] != core.StageMapping {
		t.Errorf("first stage = %s", stages[0])
	}
	sawImporting := false
	for _, st := range stages {
		if st == core.StageImporting {
			sawImporting = true
		}
	}
	if !sawImporting {
		t.Errorf("never saw importing stage in %v", stages)
	}
}

func TestResetAfterDoneAllowsNewImport(t *testing.T) {
	svc := newTestService(t)
	runImport(t, svc, rentrollCSV)

	if err := svc.ResetSession(); err != nil {
		t.Fatalf("ResetSession: %v", err)
	}
	startRentroll(t, svc, "unit_code,tenant_name,period,annual_rent\nB-201,Verne,2024-02-01,700\n")
}

func TestActorFlowsIntoJournal(t *testing.T) {
	svc := newTestService(t)
	ctx := core.WithActor(context.Background(), "j.doe")

	startRentroll(t, svc, rentrollCSV)
	if _, err := svc.Validate(ctx); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if _, err := svc.CommitImport(ctx, false); err != nil {
		t.Fatalf("CommitImport: %v", err)
	}

	entries, _ := svc.ListEntries(ctx, core.JournalFilter{Actor: "j.doe"})
	if len(entries) != 2 {
		t.Fatalf("entries for actor = %d, want 2", len(entries))
	}
}
