package importer

import (
	"fmt"

	"price-import-service/internal/models"
)

// InvalidStateError rejects an operation the import's current phase does not
// allow. Handlers map it to a 409.
type InvalidStateError struct {
	Current models.ImportStatus
	Allowed []models.ImportStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("import is %s, operation requires one of %v", e.Current, e.Allowed)
}

// ErrorRowsPresentError refuses a commit while unskipped error rows remain
type ErrorRowsPresentError struct {
	Count int64
}

func (e *ErrorRowsPresentError) Error() string {
	return fmt.Sprintf("import has %d error rows; resolve them or request commit with skipErrors", e.Count)
}

// MappingError rejects a malformed column mapping before validation starts
type MappingError struct {
	Field   string
	Message string
}

func (e *MappingError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}
