package core

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// ImportSession is the in-flight state of one file moving through the
// pipeline. A Service holds at most one session at a time.
type ImportSession struct {
	ID             string
	Stage          Stage
	FileName       string
	Format         Format
	CategoryKey    string
	BusinessUnitID string
	FolderID       string
	StartedAt      time.Time

	Raw        *RawTable
	Mapping    []ColumnMapping
	Validation *ValidationResult
	Result     *CommitResult

	cancelled atomic.Bool
}

// SessionView is the client-facing snapshot of a session.
type SessionView struct {
	ID             string            `json:"id"`
	Stage          Stage             `json:"stage"`
	FileName       string            `json:"fileName"`
	Format         Format            `json:"format"`
	CategoryKey    string            `json:"category"`
	BusinessUnitID string            `json:"businessUnitId"`
	Columns        []string          `json:"columns,omitempty"`
	RowCount       int               `json:"rowCount"`
	Mapping        []ColumnMapping   `json:"mapping,omitempty"`
	Validation     *ValidationResult `json:"validation,omitempty"`
	Result         *CommitResult     `json:"result,omitempty"`
}

// StartImportInput carries everything needed to open a session.
type StartImportInput struct {
	FileName       string
	DeclaredFormat string
	Data           []byte
	CategoryKey    string
	BusinessUnitID string
	FolderID       string
}

// StartImport parses the uploaded file, opens a new session and resolves
// an initial column mapping. Only one session may be in flight.
func (s *Service) StartImport(ctx context.Context, in StartImportInput) (*SessionView, error) {
	schema, ok := Category(in.CategoryKey)
	if !ok {
		return nil, fmt.Errorf("unknown category: %s", in.CategoryKey)
	}
	if in.BusinessUnitID == "" {
		return nil, fmt.Errorf("business unit is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil && s.session.Stage != StageDone {
		return nil, ErrSessionActive
	}

	raw, format, err := ParseTable(in.Data, in.DeclaredFormat, in.FileName)
	if err != nil {
		return nil, err
	}

	sess := &ImportSession{
		ID:             s.newID(),
		Stage:          StageMapping,
		FileName:       in.FileName,
		Format:         format,
		CategoryKey:    schema.Key,
		BusinessUnitID: in.BusinessUnitID,
		FolderID:       in.FolderID,
		StartedAt:      s.now(),
		Raw:            raw,
		Mapping:        ResolveMapping(raw.Columns, schema),
	}
	s.session = sess

	s.notifyProgress(Progress{SessionID: sess.ID, Stage: sess.Stage, Percent: 0})
	return s.viewLocked(), nil
}

// Session returns a snapshot of the current session.
func (s *Service) Session() (*SessionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, ErrNoSession
	}
	return s.viewLocked(), nil
}

// SetMapping points one source column at a schema field, or clears the
// assignment when field is empty. Only valid before validation.
func (s *Service) SetMapping(ctx context.Context, column, field string) (*SessionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.session
	if sess == nil {
		return nil, ErrNoSession
	}
	if sess.Stage != StageMapping && sess.Stage != StageValidation {
		return nil, ErrWrongStage
	}

	schema, _ := Category(sess.CategoryKey)
	if !SetMappingEntry(sess.Mapping, schema, column, field) {
		return nil, fmt.Errorf("column %q not present in file", column)
	}

	// Any earlier validation is stale once the mapping moves.
	sess.Validation = nil
	sess.Stage = StageMapping
	return s.viewLocked(), nil
}

// Validate runs the full validation pass over the session's rows and
// journals the outcome. The session moves to the validation stage whether
// or not the data is clean.
func (s *Service) Validate(ctx context.Context) (*ValidationResult, error) {
	s.mu.Lock()
	sess := s.session
	if sess == nil {
		s.mu.Unlock()
		return nil, ErrNoSession
	}
	if sess.Stage != StageMapping && sess.Stage != StageValidation {
		s.mu.Unlock()
		return nil, ErrWrongStage
	}
	schema, _ := Category(sess.CategoryKey)
	raw, mapping := sess.Raw, sess.Mapping
	s.mu.Unlock()

	result := ValidateTable(raw, mapping, schema, s.refLookup(ctx))

	s.mu.Lock()
	sess.Validation = result
	sess.Stage = StageValidation
	id := sess.ID
	s.mu.Unlock()

	score := result.QualityScore
	entry := JournalEntry{
		Actor:  ActorFromContext(ctx),
		Action: ActionValidate,
		Table:  schema.Table,
		Details: EntryDetails{
			BusinessUnitID: sess.BusinessUnitID,
			SourceFile:     sess.FileName,
		},
		QualityScore: &score,
	}
	for _, issue := range result.Errors {
		entry.Errors = append(entry.Errors, fmt.Sprintf("row %d %s: %s", issue.Row, issue.Column, issue.Message))
	}
	for _, issue := range result.Warnings {
		entry.Warnings = append(entry.Warnings, fmt.Sprintf("row %d %s: %s", issue.Row, issue.Column, issue.Message))
	}
	if err := s.appendJournal(ctx, entry); err != nil {
		return nil, err
	}

	s.notifyProgress(Progress{SessionID: id, Stage: StageValidation, Percent: 100})
	return result, nil
}

// CommitImport runs the commit engine over the validated rows. With
// confirmPartial false a validation carrying any error refuses to run;
// with it true only required-field violations still block. Refusal leaves
// the session in the validation stage with no trace written.
func (s *Service) CommitImport(ctx context.Context, confirmPartial bool) (*CommitResult, error) {
	s.mu.Lock()
	sess := s.session
	if sess == nil {
		s.mu.Unlock()
		return nil, ErrNoSession
	}
	if sess.Stage != StageValidation || sess.Validation == nil {
		s.mu.Unlock()
		return nil, ErrWrongStage
	}
	if !sess.Validation.Valid {
		if sess.Validation.HasRequiredViolation() {
			s.mu.Unlock()
			return nil, fmt.Errorf("cannot commit: required fields are missing or unmapped")
		}
		if !confirmPartial {
			s.mu.Unlock()
			return nil, fmt.Errorf("validation reported %d errors; confirm partial import to proceed", len(sess.Validation.Errors))
		}
	}

	schema, _ := Category(sess.CategoryKey)
	sess.Stage = StageImporting
	sess.cancelled.Store(false)
	s.mu.Unlock()

	s.notifyProgress(Progress{SessionID: sess.ID, Stage: StageImporting, Percent: 0})

	records := TransformRows(sess.Raw, sess.Mapping, schema, sess.Validation, sess.BusinessUnitID)

	result, err := s.commitBatch(ctx, records, batchMeta{
		fileName:       sess.FileName,
		folderID:       sess.FolderID,
		businessUnitID: sess.BusinessUnitID,
		category:       schema,
		validation:     sess.Validation,
		cancelled:      sess.cancelled.Load,
		progress: func(done, total int) {
			pct := 100
			if total > 0 {
				pct = done * 100 / total
			}
			s.notifyProgress(Progress{SessionID: sess.ID, Stage: StageImporting, Percent: pct})
		},
	})

	s.mu.Lock()
	sess.Stage = StageDone
	sess.Result = result
	s.mu.Unlock()

	final := Progress{SessionID: sess.ID, Stage: StageDone, Percent: 100}
	if err != nil {
		final.Error = err.Error()
	}
	s.notifyProgress(final)

	return result, err
}

// CancelImport aborts the session. Before the importing stage the session
// is simply discarded; during it the engine stops at the next batch
// boundary and keeps rows already written. Cancellation is journaled.
func (s *Service) CancelImport(ctx context.Context) error {
	s.mu.Lock()
	sess := s.session
	if sess == nil {
		s.mu.Unlock()
		return ErrNoSession
	}
	importing := sess.Stage == StageImporting
	if importing {
		sess.cancelled.Store(true)
	} else {
		s.session = nil
	}
	id := sess.ID
	table := ""
	if schema, ok := Category(sess.CategoryKey); ok {
		table = schema.Table
	}
	unit, file := sess.BusinessUnitID, sess.FileName
	s.mu.Unlock()

	if !importing {
		s.notifyProgress(Progress{SessionID: id, Stage: StageDone, Percent: 0, Error: "cancelled"})
	}

	return s.appendJournal(ctx, JournalEntry{
		Actor:  ActorFromContext(ctx),
		Action: ActionCancel,
		Table:  table,
		Details: EntryDetails{
			BusinessUnitID: unit,
			SourceFile:     file,
		},
	})
}

// ResetSession clears a finished session so a new import can start.
func (s *Service) ResetSession() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return ErrNoSession
	}
	if s.session.Stage == StageImporting {
		return ErrWrongStage
	}
	s.session = nil
	return nil
}

// refLookup builds a validation-time reference check over the store. A
// value resolves if it is a record ID or a record business key in the
// referenced table.
func (s *Service) refLookup(ctx context.Context) RefLookup {
	return func(table, value string) bool {
		if _, err := s.store.GetRecord(ctx, table, value); err == nil {
			return true
		}
		recs, err := s.store.ListRecords(ctx, table, "")
		if err != nil {
			return false
		}
		for _, r := range recs {
			if r.Key == value {
				return true
			}
		}
		return false
	}
}

// viewLocked snapshots the session. Caller holds s.mu.
func (s *Service) viewLocked() *SessionView {
	sess := s.session
	v := &SessionView{
		ID:             sess.ID,
		Stage:          sess.Stage,
		FileName:       sess.FileName,
		Format:         sess.Format,
		CategoryKey:    sess.CategoryKey,
		BusinessUnitID: sess.BusinessUnitID,
		Mapping:        append([]ColumnMapping(nil), sess.Mapping...),
		Validation:     sess.Validation,
		Result:         sess.Result,
	}
	if sess.Raw != nil {
		v.Columns = append([]string(nil), sess.Raw.Columns...)
		v.RowCount = len(sess.Raw.Rows)
	}
	return v
}
