package core

// periods.go is the lock governor: it tracks closed accounting periods per
// business unit and gates every durable mutation. State machine per
// (unit, year, month): open -> closed -> temporarily-open -> closed.
// Writability is re-checked at commit time, never cached from an earlier
// pipeline stage.

import (
	"context"
	"time"
)

// ClosePeriod transitions an open period to closed and journals the close.
// Fails with AlreadyClosedError if the period is already closed, whether
// or not it is temporarily reopened.
func (s *Service) ClosePeriod(ctx context.Context, businessUnitID string, year int, month time.Month, justification string) error {
	_, exists, err := s.store.GetClosedPeriod(ctx, businessUnitID, year, month)
	if err != nil {
		return err
	}
	if exists {
		return &AlreadyClosedError{BusinessUnitID: businessUnitID, Year: year, Month: month}
	}

	period := ClosedPeriod{
		BusinessUnitID: businessUnitID,
		Year:           year,
		Month:          month,
		ClosedAt:       s.now(),
		Justification:  justification,
	}
	if err := s.store.UpsertClosedPeriod(ctx, period); err != nil {
		return err
	}

	return s.appendJournal(ctx, JournalEntry{
		Actor:  ActorFromContext(ctx),
		Action: ActionClose,
		Table:  "closed_periods",
		Details: EntryDetails{
			BusinessUnitID: businessUnitID,
			EntityID:       periodKey(businessUnitID, year, month),
			Justification:  justification,
		},
	})
}

// ReopenTemporarily transitions a closed period to temporarily-open.
// No journal entry of its own: the subsequent mutation's entry carries
// the justification.
func (s *Service) ReopenTemporarily(ctx context.Context, businessUnitID string, year int, month time.Month) error {
	period, exists, err := s.store.GetClosedPeriod(ctx, businessUnitID, year, month)
	if err != nil {
		return err
	}
	if !exists {
		return &PeriodNotClosedError{BusinessUnitID: businessUnitID, Year: year, Month: month}
	}

	period.TemporarilyReopened = true
	return s.store.UpsertClosedPeriod(ctx, period)
}

// IsWritable reports whether mutations dated inside the period are
// currently allowed: true iff the period is open or temporarily reopened.
func (s *Service) IsWritable(ctx context.Context, businessUnitID string, year int, month time.Month) (bool, error) {
	period, exists, err := s.store.GetClosedPeriod(ctx, businessUnitID, year, month)
	if err != nil {
		return false, err
	}
	return !exists || period.TemporarilyReopened, nil
}

// PeriodStatus reports the closing state of one period. Found is false
// when the period was never closed.
func (s *Service) PeriodStatus(ctx context.Context, businessUnitID string, year int, month time.Month) (ClosedPeriod, bool, error) {
	return s.store.GetClosedPeriod(ctx, businessUnitID, year, month)
}

// recloseTouchedPeriods returns temporarily-open periods among the given
// keys to the closed state. Called after a commit so a temporary reopening
// covers exactly one mutation.
func (s *Service) recloseTouchedPeriods(ctx context.Context, touched map[periodRef]bool) error {
	for ref := range touched {
		period, exists, err := s.store.GetClosedPeriod(ctx, ref.unit, ref.year, ref.month)
		if err != nil {
			return err
		}
		if exists && period.TemporarilyReopened {
			period.TemporarilyReopened = false
			if err := s.store.UpsertClosedPeriod(ctx, period); err != nil {
				return err
			}
		}
	}
	return nil
}

// periodRef identifies one accounting period of one business unit.
type periodRef struct {
	unit  string
	year  int
	month time.Month
}

func periodOf(unit string, t time.Time) periodRef {
	return periodRef{unit: unit, year: t.Year(), month: t.Month()}
}

func periodKey(unit string, year int, month time.Month) string {
	return unit + "|" + time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Format("2006-01")
}

// writableAt reports writability for a record's effective date. Records
// without a period-bearing date are always writable.
func (s *Service) writableAt(ctx context.Context, unit string, effective time.Time) (bool, periodRef, error) {
	if effective.IsZero() {
		return true, periodRef{}, nil
	}
	ref := periodOf(unit, effective)
	ok, err := s.IsWritable(ctx, ref.unit, ref.year, ref.month)
	return ok, ref, err
}
