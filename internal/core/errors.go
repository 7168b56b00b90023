package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoSession is returned when a pipeline operation is called with no
// import session in flight.
var ErrNoSession = errors.New("no import session in progress")

// ErrWrongStage is returned when an operation is invalid for the session's
// current stage (e.g. editing the mapping after validation started).
var ErrWrongStage = errors.New("operation not allowed in current stage")

// ErrSessionActive is returned by StartImport while another import
// session is still in flight.
var ErrSessionActive = errors.New("an import session is already in progress")

// ErrConstraint is returned by a Store when a row violates a storage-level
// constraint (duplicate key, missing foreign key). The commit engine
// degrades the batch to partial instead of aborting on it.
var ErrConstraint = errors.New("storage constraint violation")

// ErrNotFound is returned by a Store when a record does not exist.
var ErrNotFound = errors.New("record not found")

// UnsupportedFormatError indicates the file bytes match none of the
// supported input formats. Fatal at parse time: no session is created.
type UnsupportedFormatError struct {
	Declared string // Declared format, empty when sniffed
}

func (e *UnsupportedFormatError) Error() string {
	if e.Declared != "" {
		return fmt.Sprintf("unsupported file format %q", e.Declared)
	}
	return "unsupported file format"
}

// EmptyFileError indicates the file parsed but contained zero data rows.
type EmptyFileError struct {
	FileName string
}

func (e *EmptyFileError) Error() string {
	if e.FileName != "" {
		return fmt.Sprintf("file %q contains no data rows", e.FileName)
	}
	return "file contains no data rows"
}

// PeriodLockedError indicates a mutation targets a closed, non-reopened
// accounting period. Recoverable: the actor may reopen and retry.
type PeriodLockedError struct {
	BusinessUnitID string
	Year           int
	Month          time.Month
}

func (e *PeriodLockedError) Error() string {
	return fmt.Sprintf("period %04d-%02d is closed for unit %s", e.Year, int(e.Month), e.BusinessUnitID)
}

// PeriodNotClosedError indicates an attempt to reopen a period that was
// never closed.
type PeriodNotClosedError struct {
	BusinessUnitID string
	Year           int
	Month          time.Month
}

func (e *PeriodNotClosedError) Error() string {
	return fmt.Sprintf("period %04d-%02d is not closed for unit %s", e.Year, int(e.Month), e.BusinessUnitID)
}

// AlreadyClosedError indicates an attempt to close a period twice.
type AlreadyClosedError struct {
	BusinessUnitID string
	Year           int
	Month          time.Month
}

func (e *AlreadyClosedError) Error() string {
	return fmt.Sprintf("period %04d-%02d is already closed for unit %s", e.Year, int(e.Month), e.BusinessUnitID)
}
