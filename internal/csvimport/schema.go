package csvimport

import "github.com/timmy/leadimport/internal/domain"

// Required lead columns.
const (
	ColumnProfileURL  = "profileUrl"
	ColumnProfileName = "profileName"
)

// RequiredColumns are the columns every lead CSV must carry.
var RequiredColumns = []string{ColumnProfileURL, ColumnProfileName}

// SchemaResult is the outcome of ValidateSchema.
type SchemaResult struct {
	Valid          bool     `json:"valid"`
	MissingColumns []string `json:"missing_columns"`
}

// Err returns a *domain.ValidationError for an invalid result, nil otherwise.
func (s SchemaResult) Err() error {
	if s.Valid {
		return nil
	}
	return &domain.ValidationError{MissingColumns: s.MissingColumns}
}

// ValidateSchema checks that the first row carries every required column
// (RequiredColumns when none are given). Headers are assumed uniform, so
// later rows are not inspected. An empty input is never valid.
func ValidateSchema(rows []Row, required ...string) SchemaResult {
	if len(rows) == 0 {
		return SchemaResult{Valid: false, MissingColumns: []string{domain.EmptyFileMarker}}
	}
	if len(required) == 0 {
		required = RequiredColumns
	}

	missing := []string{}
	for _, col := range required {
		if _, ok := rows[0][col]; !ok {
			missing = append(missing, col)
		}
	}
	return SchemaResult{Valid: len(missing) == 0, MissingColumns: missing}
}
