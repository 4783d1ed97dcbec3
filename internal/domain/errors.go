package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a compare-and-set status transition loses.
	ErrConflict = errors.New("conflict")

	// ErrInvalidArgument is returned for caller input that fails validation.
	ErrInvalidArgument = errors.New("invalid argument")
)

// EmptyFileMarker is reported as the missing column of a CSV with no data rows.
const EmptyFileMarker = "Empty file"

// ValidationError reports input that is structurally valid CSV but cannot be
// imported: required columns are missing, the file has no rows, or a field
// value was rejected by the coercion policy.
type ValidationError struct {
	MissingColumns []string
	Row            int
	Field          string
	Value          string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid value %q for %s on row %d", e.Value, e.Field, e.Row)
	}
	return "invalid CSV format: missing columns: " + strings.Join(e.MissingColumns, ", ")
}

// ParseError reports malformed CSV syntax.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed CSV at line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("malformed CSV: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// PersistenceError reports a failed store operation. Imported and Total are
// set when the failure interrupted a chunked insert.
type PersistenceError struct {
	Op       string
	Err      error
	Imported int
	Total    int
}

func (e *PersistenceError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Op, e.Err)
	if e.Total > 0 {
		msg += fmt.Sprintf(" (%d of %d rows imported)", e.Imported, e.Total)
	}
	return msg
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
