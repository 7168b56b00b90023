// Package core implements the import pipeline for property-management data:
// parsing heterogeneous exports, mapping columns onto category schemas,
// validation and quality scoring, transformation into domain records, and
// the lock-governed commit path with its audit journal.
// This package has no UI dependencies and can be used by any frontend.
package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// FieldType represents the declared data type for an import field.
type FieldType int

const (
	FieldText FieldType = iota
	FieldCode
	FieldNumeric
	FieldMoney
	FieldDate
	FieldBool
	FieldEnum
)

func (t FieldType) String() string {
	switch t {
	case FieldText:
		return "text"
	case FieldCode:
		return "code"
	case FieldNumeric:
		return "numeric"
	case FieldMoney:
		return "money"
	case FieldDate:
		return "date"
	case FieldBool:
		return "bool"
	case FieldEnum:
		return "enum"
	default:
		return "unknown"
	}
}

// Severity classifies a validation issue. Errors block a row from being
// committed; warnings do not.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue codes identify why a RowIssue was raised.
const (
	IssueUnmapped = "unmapped_required"
	IssueEmpty    = "empty_required"
	IssueCoerce   = "coerce"
	IssueRef      = "missing_reference"
)

// Rule is a per-field business rule with its own severity declaration.
// Check receives the coerced value and returns a message on failure,
// or "" when the value passes.
type Rule struct {
	Name     string
	Severity Severity
	Check    func(v any) string
}

// FieldSpec defines one named, typed field of a category schema.
type FieldSpec struct {
	Name       string
	Type       FieldType
	Required   bool
	EnumValues []string            // Valid values for FieldEnum
	Default    any                 // Injected when the field is optional and unmapped
	RefTable   string              // Non-empty: value must exist as a record ID in this table
	Normalizer func(string) string // Optional raw-value transformation before coercion
	Rules      []Rule
}

// CategorySchema describes one import category: its typed field list and
// the category-wide settings the pipeline needs (persisted table, monetary
// precision, which field carries the accounting period, unique key).
type CategorySchema struct {
	Key            string // Unique identifier: "rentroll"
	Label          string
	Table          string // Persisted table name
	Fields         []FieldSpec
	UniqueKey      []string // Field(s) forming the record key for duplicate detection
	MoneyPrecision int32    // Decimal places for FieldMoney values
	PeriodField    string   // FieldDate whose value places the record in an accounting period
}

// Field returns the spec with the given name, or nil.
func (s *CategorySchema) Field(name string) *FieldSpec {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i]
		}
	}
	return nil
}

// MoneyRound rounds a monetary value to the schema's declared precision.
func (s *CategorySchema) MoneyRound(d decimal.Decimal) decimal.Decimal {
	return d.Round(s.MoneyPrecision)
}

// RawTable is the uniform in-memory shape every supported input format is
// parsed into: ordered column names plus positionally aligned rows.
// Never persisted.
type RawTable struct {
	Columns []string
	Rows    [][]string
}

// ColumnMapping assigns one source column to a target field.
// An empty TargetField means the source column is ignored.
type ColumnMapping struct {
	SourceColumn string `json:"sourceColumn"`
	TargetField  string `json:"targetField,omitempty"`
}

// RowIssue is a single validation finding for one cell or row.
type RowIssue struct {
	Row      int      `json:"row"` // Zero-based data row index
	Column   string   `json:"column"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Code     string   `json:"code,omitempty"`
}

// ValidationResult aggregates the findings for a whole table.
// A row with only warnings still counts as valid.
type ValidationResult struct {
	Valid        bool       `json:"isValid"`
	TotalRows    int        `json:"totalRows"`
	ValidRows    int        `json:"validRowCount"`
	Errors       []RowIssue `json:"errors"`
	Warnings     []RowIssue `json:"warnings"`
	QualityScore float64    `json:"qualityScore"` // 100 * ValidRows / TotalRows, 0 for empty tables
	rowHasError  []bool
}

// RowHasError reports whether the given data row produced at least one
// blocking error.
func (r *ValidationResult) RowHasError(i int) bool {
	return i >= 0 && i < len(r.rowHasError) && r.rowHasError[i]
}

// HasRequiredViolation reports whether any error stems from a required
// field being unmapped or empty. Such errors can never be overridden at
// commit time.
func (r *ValidationResult) HasRequiredViolation() bool {
	for _, e := range r.Errors {
		if e.Code == IssueUnmapped || e.Code == IssueEmpty {
			return true
		}
	}
	return false
}

// Record is a transformed, typed domain record ready for the commit path.
// Values holds coerced field values (string, bool, time.Time,
// decimal.Decimal) keyed by field name.
type Record struct {
	ID             string         `json:"id"`
	Table          string         `json:"table"`
	Key            string         `json:"key,omitempty"` // Composite unique key "val1|val2", empty if none
	BusinessUnitID string         `json:"businessUnitId"`
	ImportID       string         `json:"importId,omitempty"`
	EffectiveDate  time.Time      `json:"effectiveDate"`
	Values         map[string]any `json:"values"`
}

// ImportStatus classifies the outcome of a commit.
type ImportStatus string

const (
	StatusSuccess ImportStatus = "success"
	StatusPartial ImportStatus = "partial"
	StatusFailure ImportStatus = "failure"
)

// ImportFile is the persisted summary of a completed or failed import.
// Immutable after creation except for soft deletion.
type ImportFile struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	FolderID       string       `json:"folderId,omitempty"`
	BusinessUnitID string       `json:"businessUnitId"`
	Category       string       `json:"category"`
	ImportedAt     time.Time    `json:"importedAt"`
	Status         ImportStatus `json:"status"`
	RowsAffected   int          `json:"rowsAffected"`
	QualityScore   float64      `json:"qualityScore"`
	ErrorSummary   string       `json:"errorSummary,omitempty"`
	Deleted        bool         `json:"deleted,omitempty"`
}

// ClosedPeriod records the closing of one accounting period for one
// business unit. Unique per (BusinessUnitID, Year, Month).
type ClosedPeriod struct {
	BusinessUnitID      string     `json:"businessUnitId"`
	Year                int        `json:"year"`
	Month               time.Month `json:"month"`
	ClosedAt            time.Time  `json:"closedAt"`
	Justification       string     `json:"justification"`
	TemporarilyReopened bool       `json:"temporarilyReopened"`
}

// Stage is the client-visible pipeline stage of an import session.
type Stage string

const (
	StageUpload     Stage = "upload"
	StageMapping    Stage = "mapping"
	StageValidation Stage = "validation"
	StageImporting  Stage = "importing"
	StageDone       Stage = "done"
)

// Progress is pushed to subscribers as the session advances.
type Progress struct {
	SessionID string `json:"sessionId"`
	Stage     Stage  `json:"stage"`
	Percent   int    `json:"progressPercent"`
	Error     string `json:"error,omitempty"`
}

// CommitResult is the terminal outcome of a commit.
type CommitResult struct {
	ImportFileID string       `json:"importFileId"`
	Status       ImportStatus `json:"status"`
	RowsAffected int          `json:"rowsAffected"`
	Errors       []RowIssue   `json:"errors,omitempty"`
}
