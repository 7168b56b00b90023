package core

// commit.go is the single gate every durable mutation passes through:
// batch commits from the import pipeline and single-record mutations
// (create, update, delete, restore). The engine re-checks the lock
// governor at write time, captures old values at every mutation site, and
// finishes every batch with exactly one ImportFile and one import journal
// entry regardless of outcome.

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// CommitBatchSize is the number of rows written between cancellation
// checks and progress notifications.
var CommitBatchSize = 100

// batchMeta carries the import context a batch commit stamps onto the
// ImportFile and journal entry.
type batchMeta struct {
	fileName       string
	folderID       string
	businessUnitID string
	category       *CategorySchema
	validation     *ValidationResult
	progress       func(done, total int)
	cancelled      func() bool
}

// commitBatch writes transformed records through the storage capability.
// Storage-constraint failures degrade the outcome to partial instead of
// aborting rows that succeeded; a fully locked target period fails the
// batch before any row is written. Exactly one ImportFile and one import
// journal entry are recorded on every path out of this function except a
// failing journal write itself, which is surfaced loudly.
func (s *Service) commitBatch(ctx context.Context, records []Record, meta batchMeta) (*CommitResult, error) {
	result := &CommitResult{ImportFileID: s.newID()}

	lockedAll, firstLocked, err := s.checkTargetPeriods(ctx, records, meta.businessUnitID)
	if err != nil {
		return nil, err
	}
	if lockedAll && len(records) > 0 {
		lockErr := &PeriodLockedError{
			BusinessUnitID: meta.businessUnitID,
			Year:           firstLocked.year,
			Month:          firstLocked.month,
		}
		result.Status = StatusFailure
		if err := s.finishBatch(ctx, result, meta, lockErr.Error()); err != nil {
			return nil, err
		}
		return result, lockErr
	}

	touched := make(map[periodRef]bool)
	cancelled := false

	err = s.store.Atomic(ctx, func(tx Store) error {
		for i := range records {
			if i%CommitBatchSize == 0 {
				if meta.cancelled != nil && meta.cancelled() {
					cancelled = true
					return nil // Keep rows already written.
				}
				if ctx.Err() != nil {
					cancelled = true
					return nil
				}
			}

			rec := records[i]

			// Period state may have changed since validation; never trust
			// a cached answer.
			writable, ref, err := s.writableAt(ctx, rec.BusinessUnitID, rec.EffectiveDate)
			if err != nil {
				return err
			}
			if !writable {
				result.Errors = append(result.Errors, RowIssue{
					Row:      i,
					Column:   meta.category.PeriodField,
					Message:  (&PeriodLockedError{BusinessUnitID: rec.BusinessUnitID, Year: ref.year, Month: ref.month}).Error(),
					Severity: SeverityError,
					Code:     "period_locked",
				})
				continue
			}

			rec.ID = s.newID()
			rec.ImportID = result.ImportFileID
			if err := tx.InsertRecord(ctx, rec); err != nil {
				if errors.Is(err, ErrConstraint) {
					result.Errors = append(result.Errors, RowIssue{
						Row:      i,
						Message:  err.Error(),
						Severity: SeverityError,
						Code:     "constraint",
					})
					continue
				}
				return err
			}

			result.RowsAffected++
			if !rec.EffectiveDate.IsZero() {
				touched[periodOf(rec.BusinessUnitID, rec.EffectiveDate)] = true
			}

			if meta.progress != nil && (i+1)%CommitBatchSize == 0 {
				meta.progress(i+1, len(records))
			}
		}
		return nil
	})
	if err != nil {
		// Storage capability failure: abort, but still record the failed
		// import so it is never silently dropped.
		result.Status = StatusFailure
		result.RowsAffected = 0
		if ferr := s.finishBatch(ctx, result, meta, err.Error()); ferr != nil {
			return nil, fmt.Errorf("%w (recording failure: %v)", err, ferr)
		}
		return result, err
	}

	if meta.progress != nil {
		meta.progress(len(records), len(records))
	}

	errorSummary := ""
	switch {
	case cancelled:
		errorSummary = "cancelled by actor"
		if result.RowsAffected > 0 {
			result.Status = StatusPartial
		} else {
			result.Status = StatusFailure
		}
	case result.RowsAffected == 0 && len(records) > 0:
		result.Status = StatusFailure
	case len(result.Errors) > 0 || (meta.validation != nil && len(meta.validation.Errors) > 0):
		result.Status = StatusPartial
	default:
		result.Status = StatusSuccess
	}

	if err := s.finishBatch(ctx, result, meta, errorSummary); err != nil {
		return nil, err
	}

	// A temporary reopening covers exactly one mutation.
	if err := s.recloseTouchedPeriods(ctx, touched); err != nil {
		return result, err
	}

	return result, nil
}

// checkTargetPeriods reports whether every period-dated record in the
// batch targets a locked period, and the first locked period found.
func (s *Service) checkTargetPeriods(ctx context.Context, records []Record, unit string) (bool, periodRef, error) {
	var firstLocked periodRef
	dated := 0
	locked := 0

	seen := make(map[periodRef]bool)
	for _, rec := range records {
		if rec.EffectiveDate.IsZero() {
			continue
		}
		dated++
		ref := periodOf(rec.BusinessUnitID, rec.EffectiveDate)
		if !seen[ref] {
			ok, err := s.IsWritable(ctx, ref.unit, ref.year, ref.month)
			if err != nil {
				return false, periodRef{}, err
			}
			seen[ref] = ok
		}
		if !seen[ref] {
			locked++
			if firstLocked == (periodRef{}) {
				firstLocked = ref
			}
		}
	}

	return dated > 0 && locked == dated, firstLocked, nil
}

// finishBatch persists the ImportFile summary and the import journal
// entry for a finished (or failed) batch.
func (s *Service) finishBatch(ctx context.Context, result *CommitResult, meta batchMeta, errorSummary string) error {
	file := ImportFile{
		ID:             result.ImportFileID,
		Name:           meta.fileName,
		FolderID:       meta.folderID,
		BusinessUnitID: meta.businessUnitID,
		Category:       meta.category.Key,
		ImportedAt:     s.now(),
		Status:         result.Status,
		RowsAffected:   result.RowsAffected,
		ErrorSummary:   errorSummary,
	}
	if meta.validation != nil {
		file.QualityScore = meta.validation.QualityScore
	}
	if errorSummary == "" && len(result.Errors) > 0 {
		file.ErrorSummary = summarizeIssues(result.Errors)
	}
	if err := s.store.InsertImportFile(ctx, file); err != nil {
		return fmt.Errorf("record import file: %w", err)
	}

	entry := JournalEntry{
		Actor:        ActorFromContext(ctx),
		Action:       ActionImport,
		Table:        meta.category.Table,
		RowsAffected: result.RowsAffected,
		Details: EntryDetails{
			BusinessUnitID: meta.businessUnitID,
			SourceFile:     meta.fileName,
			EntityID:       file.ID,
		},
	}
	if errorSummary != "" {
		entry.Errors = append(entry.Errors, errorSummary)
	}
	for _, issue := range result.Errors {
		entry.Errors = append(entry.Errors, fmt.Sprintf("row %d: %s", issue.Row, issue.Message))
	}
	if meta.validation != nil {
		score := meta.validation.QualityScore
		entry.QualityScore = &score
		for _, issue := range meta.validation.Warnings {
			entry.Warnings = append(entry.Warnings, fmt.Sprintf("row %d %s: %s", issue.Row, issue.Column, issue.Message))
		}
	}
	return s.appendJournal(ctx, entry)
}

func summarizeIssues(issues []RowIssue) string {
	if len(issues) == 0 {
		return ""
	}
	first := issues[0]
	msg := fmt.Sprintf("row %d: %s", first.Row, first.Message)
	if len(issues) > 1 {
		msg = fmt.Sprintf("%s (+%d more)", msg, len(issues)-1)
	}
	return msg
}

// ----------------------------------------------------------------------------
// Single-record mutations
// ----------------------------------------------------------------------------

// CreateRecord inserts one record outside the import pipeline, gated by
// the lock governor and journaled with action=create.
func (s *Service) CreateRecord(ctx context.Context, categoryKey, businessUnitID string, values map[string]any) (Record, error) {
	schema, ok := Category(categoryKey)
	if !ok {
		return Record{}, fmt.Errorf("unknown category: %s", categoryKey)
	}

	rec := Record{
		ID:             s.newID(),
		Table:          schema.Table,
		BusinessUnitID: businessUnitID,
		Values:         values,
		Key:            recordKey(schema, values),
	}
	if schema.PeriodField != "" {
		if t, ok := values[schema.PeriodField].(time.Time); ok {
			rec.EffectiveDate = t
		}
	}

	if err := s.applyInsert(ctx, rec); err != nil {
		return Record{}, err
	}

	err := s.appendJournal(ctx, JournalEntry{
		Actor:        ActorFromContext(ctx),
		Action:       ActionCreate,
		Table:        rec.Table,
		RowsAffected: 1,
		Details: EntryDetails{
			BusinessUnitID: businessUnitID,
			EntityID:       rec.ID,
			NewValue:       encodeRecordSnapshot(rec),
		},
	})
	return rec, err
}

// UpdateRecordField sets one field of an existing record to a new raw
// value, coerced through the field spec. The old value is captured at the
// mutation site so the journal entry can always be reversed.
func (s *Service) UpdateRecordField(ctx context.Context, categoryKey, id, field, rawValue string) error {
	schema, ok := Category(categoryKey)
	if !ok {
		return fmt.Errorf("unknown category: %s", categoryKey)
	}
	old, updated, err := s.setRecordField(ctx, schema, id, field, rawValue)
	if err != nil {
		return err
	}

	return s.appendJournal(ctx, JournalEntry{
		Actor:        ActorFromContext(ctx),
		Action:       ActionUpdate,
		Table:        schema.Table,
		RowsAffected: 1,
		Details: EntryDetails{
			BusinessUnitID: updated.BusinessUnitID,
			EntityID:       id,
			ChangedField:   field,
			OldValue:       old,
			NewValue:       valueString(updated.Values[field]),
		},
	})
}

// setRecordField performs the lock-gated field mutation without
// journaling. Returns the canonical old value and the updated record.
func (s *Service) setRecordField(ctx context.Context, schema *CategorySchema, id, field, rawValue string) (string, Record, error) {
	spec := schema.Field(field)
	if spec == nil {
		return "", Record{}, fmt.Errorf("unknown field %q in category %s", field, schema.Key)
	}

	rec, err := s.store.GetRecord(ctx, schema.Table, id)
	if err != nil {
		return "", Record{}, err
	}

	writable, ref, err := s.writableAt(ctx, rec.BusinessUnitID, rec.EffectiveDate)
	if err != nil {
		return "", Record{}, err
	}
	if !writable {
		return "", Record{}, &PeriodLockedError{BusinessUnitID: rec.BusinessUnitID, Year: ref.year, Month: ref.month}
	}

	oldValue := valueString(rec.Values[field])

	var newValue any
	if cell := CleanCell(rawValue); cell != "" {
		coerced, ok := CoerceCell(cell, spec)
		if !ok {
			return "", Record{}, fmt.Errorf("invalid value for %q: %s", field, coerceFailureMessage(spec))
		}
		newValue = normalizeValue(coerced, spec, schema)
	}

	if rec.Values == nil {
		rec.Values = make(map[string]any)
	}
	if newValue == nil {
		delete(rec.Values, field)
	} else {
		rec.Values[field] = newValue
	}
	if schema.PeriodField == field {
		if t, ok := rec.Values[field].(time.Time); ok {
			rec.EffectiveDate = t
		} else {
			rec.EffectiveDate = time.Time{}
		}
	}
	rec.Key = recordKey(schema, rec.Values)

	if err := s.store.UpdateRecord(ctx, rec); err != nil {
		return "", Record{}, err
	}
	if err := s.recloseTouchedPeriods(ctx, map[periodRef]bool{ref: true}); err != nil {
		return "", Record{}, err
	}
	return oldValue, rec, nil
}

// DeleteRecord removes one record, capturing a full snapshot as oldValue
// so the deletion can be restored.
func (s *Service) DeleteRecord(ctx context.Context, categoryKey, id string) error {
	schema, ok := Category(categoryKey)
	if !ok {
		return fmt.Errorf("unknown category: %s", categoryKey)
	}

	rec, err := s.store.GetRecord(ctx, schema.Table, id)
	if err != nil {
		return err
	}

	writable, ref, err := s.writableAt(ctx, rec.BusinessUnitID, rec.EffectiveDate)
	if err != nil {
		return err
	}
	if !writable {
		return &PeriodLockedError{BusinessUnitID: rec.BusinessUnitID, Year: ref.year, Month: ref.month}
	}

	if err := s.store.DeleteRecord(ctx, schema.Table, id); err != nil {
		return err
	}

	if err := s.recloseTouchedPeriods(ctx, map[periodRef]bool{ref: true}); err != nil {
		return err
	}

	return s.appendJournal(ctx, JournalEntry{
		Actor:        ActorFromContext(ctx),
		Action:       ActionDelete,
		Table:        schema.Table,
		RowsAffected: 1,
		Details: EntryDetails{
			BusinessUnitID: rec.BusinessUnitID,
			EntityID:       id,
			OldValue:       encodeRecordSnapshot(rec),
		},
	})
}

// ----------------------------------------------------------------------------
// Restore plumbing: inverse mutations that bypass journaling (the caller
// appends the compensating restore entry) but never the lock governor.
// ----------------------------------------------------------------------------

func (s *Service) applyInsert(ctx context.Context, rec Record) error {
	writable, ref, err := s.writableAt(ctx, rec.BusinessUnitID, rec.EffectiveDate)
	if err != nil {
		return err
	}
	if !writable {
		return &PeriodLockedError{BusinessUnitID: rec.BusinessUnitID, Year: ref.year, Month: ref.month}
	}
	if err := s.store.InsertRecord(ctx, rec); err != nil {
		return err
	}
	return s.recloseTouchedPeriods(ctx, map[periodRef]bool{ref: true})
}

func (s *Service) applyFieldValue(ctx context.Context, table, id, field, rawValue string) error {
	schema := categoryByTable(table)
	if schema == nil {
		return fmt.Errorf("no category persists table %q", table)
	}
	_, _, err := s.setRecordField(ctx, schema, id, field, rawValue)
	return err
}

func (s *Service) applyDelete(ctx context.Context, table, id string) (snapshot string, err error) {
	rec, err := s.store.GetRecord(ctx, table, id)
	if err != nil {
		return "", err
	}

	writable, ref, err := s.writableAt(ctx, rec.BusinessUnitID, rec.EffectiveDate)
	if err != nil {
		return "", err
	}
	if !writable {
		return "", &PeriodLockedError{BusinessUnitID: rec.BusinessUnitID, Year: ref.year, Month: ref.month}
	}

	if err := s.store.DeleteRecord(ctx, table, id); err != nil {
		return "", err
	}
	if err := s.recloseTouchedPeriods(ctx, map[periodRef]bool{ref: true}); err != nil {
		return "", err
	}
	return encodeRecordSnapshot(rec), nil
}

func categoryByTable(table string) *CategorySchema {
	for _, schema := range Categories() {
		if schema.Table == table {
			return schema
		}
	}
	return nil
}

// ----------------------------------------------------------------------------
// Import file surface
// ----------------------------------------------------------------------------

// Records lists the persisted records of one category, optionally
// narrowed to a business unit.
func (s *Service) Records(ctx context.Context, categoryKey, businessUnitID string) ([]Record, error) {
	schema, ok := Category(categoryKey)
	if !ok {
		return nil, fmt.Errorf("unknown category: %s", categoryKey)
	}
	return s.store.ListRecords(ctx, schema.Table, businessUnitID)
}

// ListImportFiles returns persisted import summaries, newest first.
func (s *Service) ListImportFiles(ctx context.Context, businessUnitID, folderID string) ([]ImportFile, error) {
	return s.store.ListImportFiles(ctx, ImportFileFilter{
		BusinessUnitID: businessUnitID,
		FolderID:       folderID,
	})
}

// DeleteImportFile soft-deletes an import summary and journals the
// deletion. The underlying records are untouched.
func (s *Service) DeleteImportFile(ctx context.Context, id string) error {
	if err := s.store.MarkImportFileDeleted(ctx, id); err != nil {
		return err
	}
	return s.appendJournal(ctx, JournalEntry{
		Actor:        ActorFromContext(ctx),
		Action:       ActionDelete,
		Table:        "import_files",
		RowsAffected: 1,
		Details:      EntryDetails{EntityID: id},
	})
}
