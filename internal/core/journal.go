package core

// journal.go is the append-only audit journal. Every durable mutation
// leaves exactly one entry with enough detail to explain or reverse it.
// Entries are never updated or deleted; an undo is a new compensating
// entry (action=restore) referencing the original. Journal writes fail
// loudly: a non-audited mutation is worse than a failed import.

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Action is the kind of mutation a journal entry describes.
type Action string

const (
	ActionImport   Action = "import"
	ActionCreate   Action = "create"
	ActionUpdate   Action = "update"
	ActionDelete   Action = "delete"
	ActionClose    Action = "close"
	ActionValidate Action = "validate"
	ActionCancel   Action = "cancel"
	ActionRestore  Action = "restore"
)

// EntryDetails carries the mutation-specific context of a journal entry.
type EntryDetails struct {
	BusinessUnitID string `json:"businessUnitId,omitempty"`
	EntityID       string `json:"entityId,omitempty"`
	ChangedField   string `json:"changedField,omitempty"`
	OldValue       string `json:"oldValue,omitempty"`
	NewValue       string `json:"newValue,omitempty"`
	Justification  string `json:"justification,omitempty"`
	SourceFile     string `json:"sourceFile,omitempty"`
	RelatedEntryID string `json:"relatedEntryId,omitempty"`
}

// JournalEntry is one immutable audit record.
type JournalEntry struct {
	ID           string       `json:"id"`
	Timestamp    time.Time    `json:"timestamp"`
	Actor        string       `json:"actorId"`
	Action       Action       `json:"action"`
	Table        string       `json:"table"`
	RowsAffected int          `json:"rowsAffected"`
	Details      EntryDetails `json:"details"`
	Errors       []string     `json:"errors,omitempty"`
	Warnings     []string     `json:"warnings,omitempty"`
	QualityScore *float64     `json:"qualityScore,omitempty"`
}

// JournalStats aggregates a filtered set of entries.
type JournalStats struct {
	TotalEntries     int            `json:"totalEntries"`
	ErrorsTotal      int            `json:"errorsTotal"`
	MeanQualityScore float64        `json:"meanQualityScore"`
	ByAction         map[Action]int `json:"byAction"`
	ByTable          map[string]int `json:"byTable"`
}

// appendJournal assigns id and timestamp and persists the entry.
// The sole write path into the journal.
func (s *Service) appendJournal(ctx context.Context, entry JournalEntry) error {
	entry.ID = s.newID()
	entry.Timestamp = s.now()
	if entry.Actor == "" {
		entry.Actor = ActorFromContext(ctx)
	}
	if err := s.store.AppendJournal(ctx, entry); err != nil {
		return fmt.Errorf("journal write: %w", err)
	}
	return nil
}

// ListEntries returns journal entries matching the filter, newest first.
func (s *Service) ListEntries(ctx context.Context, filter JournalFilter) ([]JournalEntry, error) {
	return s.store.ListJournal(ctx, filter)
}

// GetEntry returns a single journal entry by id.
func (s *Service) GetEntry(ctx context.Context, id string) (JournalEntry, error) {
	return s.store.GetJournalEntry(ctx, id)
}

// GetStats aggregates all entries matching the filter: counts grouped by
// action and table, total row errors, and the mean quality score over
// entries that carry one.
func (s *Service) GetStats(ctx context.Context, filter JournalFilter) (*JournalStats, error) {
	filter.Limit = 0
	filter.Offset = 0
	entries, err := s.store.ListJournal(ctx, filter)
	if err != nil {
		return nil, err
	}

	stats := &JournalStats{
		ByAction: make(map[Action]int),
		ByTable:  make(map[string]int),
	}
	var scoreSum float64
	var scoreCount int
	for _, e := range entries {
		stats.TotalEntries++
		stats.ErrorsTotal += len(e.Errors)
		stats.ByAction[e.Action]++
		if e.Table != "" {
			stats.ByTable[e.Table]++
		}
		if e.QualityScore != nil {
			scoreSum += *e.QualityScore
			scoreCount++
		}
	}
	if scoreCount > 0 {
		stats.MeanQualityScore = scoreSum / float64(scoreCount)
	}
	return stats, nil
}

// Restore reverses the mutation a past entry describes by performing the
// inverse mutation through the normal commit path (lock governor
// included) and appending a compensating restore entry referencing the
// original. The original entry is never touched.
func (s *Service) Restore(ctx context.Context, entryID string) error {
	original, err := s.store.GetJournalEntry(ctx, entryID)
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}

	var inverse EntryDetails
	switch original.Action {
	case ActionUpdate:
		if original.Details.EntityID == "" || original.Details.ChangedField == "" {
			return fmt.Errorf("restore: entry %s has no captured old value", entryID)
		}
		if err := s.applyFieldValue(ctx, original.Table, original.Details.EntityID, original.Details.ChangedField, original.Details.OldValue); err != nil {
			return err
		}
		inverse = EntryDetails{
			BusinessUnitID: original.Details.BusinessUnitID,
			EntityID:       original.Details.EntityID,
			ChangedField:   original.Details.ChangedField,
			OldValue:       original.Details.NewValue,
			NewValue:       original.Details.OldValue,
		}

	case ActionDelete:
		if original.Details.OldValue == "" {
			return fmt.Errorf("restore: entry %s has no captured record snapshot", entryID)
		}
		rec, err := decodeRecordSnapshot(original.Details.OldValue)
		if err != nil {
			return fmt.Errorf("restore: %w", err)
		}
		if err := s.applyInsert(ctx, rec); err != nil {
			return err
		}
		inverse = EntryDetails{
			BusinessUnitID: original.Details.BusinessUnitID,
			EntityID:       rec.ID,
			NewValue:       original.Details.OldValue,
		}

	case ActionCreate:
		if original.Details.EntityID == "" {
			return fmt.Errorf("restore: entry %s has no entity id", entryID)
		}
		snapshot, err := s.applyDelete(ctx, original.Table, original.Details.EntityID)
		if err != nil {
			return err
		}
		inverse = EntryDetails{
			BusinessUnitID: original.Details.BusinessUnitID,
			EntityID:       original.Details.EntityID,
			OldValue:       snapshot,
		}

	default:
		return fmt.Errorf("restore: action %q is not reversible", original.Action)
	}

	inverse.RelatedEntryID = original.ID
	return s.appendJournal(ctx, JournalEntry{
		Actor:        ActorFromContext(ctx),
		Action:       ActionRestore,
		Table:        original.Table,
		RowsAffected: 1,
		Details:      inverse,
	})
}

// encodeRecordSnapshot serializes a record for oldValue capture at
// deletion sites, so Restore can rebuild it.
func encodeRecordSnapshot(rec Record) string {
	b, err := json.Marshal(rec)
	if err != nil {
		return ""
	}
	return string(b)
}

func decodeRecordSnapshot(s string) (Record, error) {
	var rec Record
	if err := json.Unmarshal([]byte(s), &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Matches reports whether an entry satisfies the filter. Shared by store
// adapters that filter in memory.
func (f JournalFilter) Matches(e JournalEntry) bool {
	if f.BusinessUnitID != "" && e.Details.BusinessUnitID != f.BusinessUnitID {
		return false
	}
	if f.Actor != "" && e.Actor != f.Actor {
		return false
	}
	if f.Table != "" && e.Table != f.Table {
		return false
	}
	if len(f.Actions) > 0 {
		found := false
		for _, a := range f.Actions {
			if e.Action == a {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Timestamp.After(f.To) {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		haystack := strings.ToLower(strings.Join([]string{
			e.Table,
			e.Details.EntityID,
			e.Details.ChangedField,
			e.Details.OldValue,
			e.Details.NewValue,
			e.Details.SourceFile,
			e.Details.Justification,
		}, "\n"))
		if !strings.Contains(haystack, needle) {
			return false
		}
	}
	return true
}
