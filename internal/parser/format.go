package parser

import (
	"fmt"
	"path/filepath"
	"strings"

	"price-import-service/internal/models"
)

// FormatForFilename derives the import format from a file extension.
// Only delimited text and Excel workbooks are accepted.
func FormatForFilename(name string) (models.ImportFormat, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return models.ImportFormatCSV, nil
	case ".xlsx":
		return models.ImportFormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported file extension %q", filepath.Ext(name))
	}
}
