package parser

import (
	"regexp"
	"strings"
)

var columnLetterPattern = regexp.MustCompile(`^[A-Z]{1,3}$`)

// IndexToLetter converts a zero-based column index to its spreadsheet letter
// (0 -> "A", 25 -> "Z", 26 -> "AA", 51 -> "AZ", 52 -> "BA").
func IndexToLetter(index int) string {
	if index < 0 {
		return ""
	}
	letter := ""
	for index >= 0 {
		letter = string(rune('A'+index%26)) + letter
		index = index/26 - 1
	}
	return letter
}

// LetterToIndex converts a spreadsheet column letter back to its zero-based
// index. Returns -1 for anything that is not a valid letter sequence.
func LetterToIndex(letter string) int {
	letter = strings.ToUpper(strings.TrimSpace(letter))
	if !columnLetterPattern.MatchString(letter) {
		return -1
	}
	index := 0
	for _, r := range letter {
		index = index*26 + int(r-'A') + 1
	}
	return index - 1
}

// IsValidColumnLetter reports whether the given string is a usable column
// reference for a mapping.
func IsValidColumnLetter(letter string) bool {
	return LetterToIndex(letter) >= 0
}

// ResolveCell returns the trimmed raw string at the given column letter of a
// row, or "" when the column is absent or out of range.
func ResolveCell(row []string, letter string) string {
	index := LetterToIndex(letter)
	if index < 0 || index >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[index])
}
