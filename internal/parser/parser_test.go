package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"price-import-service/internal/models"
)

func TestIndexToLetter(t *testing.T) {
	cases := map[int]string{
		0:   "A",
		1:   "B",
		25:  "Z",
		26:  "AA",
		27:  "AB",
		51:  "AZ",
		52:  "BA",
		701: "ZZ",
		702: "AAA",
	}
	for index, want := range cases {
		assert.Equal(t, want, IndexToLetter(index))
	}
}

func TestLetterToIndex(t *testing.T) {
	cases := map[string]int{
		"A":  0,
		"Z":  25,
		"AA": 26,
		"AZ": 51,
		"BA": 52,
		"ZZ": 701,
	}
	for letter, want := range cases {
		assert.Equal(t, want, LetterToIndex(letter))
	}

	assert.Equal(t, -1, LetterToIndex(""))
	assert.Equal(t, -1, LetterToIndex("a1"))
	assert.Equal(t, -1, LetterToIndex("AAAA"))
}

func TestLetterRoundTrip(t *testing.T) {
	for i := 0; i < 1000; i++ {
		assert.Equal(t, i, LetterToIndex(IndexToLetter(i)))
	}
}

func TestResolveCell(t *testing.T) {
	row := []string{"SKU-1", " Widget ", "19.99"}

	assert.Equal(t, "SKU-1", ResolveCell(row, "A"))
	assert.Equal(t, "Widget", ResolveCell(row, "B"), "cells are trimmed")
	assert.Equal(t, "19.99", ResolveCell(row, "C"))
	assert.Equal(t, "", ResolveCell(row, "D"), "absent column resolves to empty")
	assert.Equal(t, "", ResolveCell(row, "not-a-letter"))
}

func TestParseCurrency(t *testing.T) {
	cents := func(v int64) *int64 { return &v }

	cases := []struct {
		raw        string
		convention models.DecimalConvention
		want       *int64
	}{
		{"19.99", models.DecimalConventionDollars, cents(1999)},
		{"$19.99", models.DecimalConventionDollars, cents(1999)},
		{"1,299.50", models.DecimalConventionDollars, cents(129950)},
		{"€10.00", models.DecimalConventionDollars, cents(1000)},
		{"0.1", models.DecimalConventionDollars, cents(10)},
		{"0", models.DecimalConventionDollars, cents(0)},
		{"-5.25", models.DecimalConventionDollars, cents(-525)},
		{"1999", models.DecimalConventionCents, cents(1999)},
		{"1999.4", models.DecimalConventionCents, cents(1999)},
		{"", models.DecimalConventionDollars, nil},
		{"   ", models.DecimalConventionDollars, nil},
		{"abc", models.DecimalConventionDollars, nil},
		{"12x", models.DecimalConventionCents, nil},
	}

	for _, tc := range cases {
		got := ParseCurrency(tc.raw, tc.convention)
		if tc.want == nil {
			assert.Nil(t, got, "raw=%q", tc.raw)
		} else {
			require.NotNil(t, got, "raw=%q", tc.raw)
			assert.Equal(t, *tc.want, *got, "raw=%q", tc.raw)
		}
	}
}

func TestParseCSV(t *testing.T) {
	input := "SKU,Name,Cost\nSKU-1,Widget,10.00\n,,\nSKU-2,Gadget,12.50\n"

	grid, err := Parse(strings.NewReader(input), models.ImportFormatCSV)
	require.NoError(t, err)

	assert.Equal(t, []string{"SKU", "Name", "Cost"}, grid.Headers)
	assert.Equal(t, []string{"A", "B", "C"}, grid.ColumnLetters)
	assert.Len(t, grid.Rows, 3, "fully blank rows are dropped")
	assert.Len(t, grid.DataRows(1), 2)
	assert.Equal(t, []string{"SKU-2", "Gadget", "12.50"}, grid.DataRows(1)[1])
}

func TestParseCSVRaggedRows(t *testing.T) {
	input := "SKU,Cost\nSKU-1,10.00,extra\nSKU-2\n"

	grid, err := Parse(strings.NewReader(input), models.ImportFormatCSV)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, grid.ColumnLetters, "letters span the widest row")
}

func TestParseEmptyFile(t *testing.T) {
	_, err := Parse(strings.NewReader(""), models.ImportFormatCSV)

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestParseHeaderOnly(t *testing.T) {
	_, err := Parse(strings.NewReader("SKU,Cost\n"), models.ImportFormatCSV)

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestFormatForFilename(t *testing.T) {
	format, err := FormatForFilename("prices.csv")
	require.NoError(t, err)
	assert.Equal(t, models.ImportFormatCSV, format)

	format, err = FormatForFilename("Prices.XLSX")
	require.NoError(t, err)
	assert.Equal(t, models.ImportFormatXLSX, format)

	_, err = FormatForFilename("prices.pdf")
	assert.Error(t, err)
}

func TestDataRowsSkipBeyondEnd(t *testing.T) {
	grid, err := Parse(strings.NewReader("a,b\n1,2\n"), models.ImportFormatCSV)
	require.NoError(t, err)

	assert.Nil(t, grid.DataRows(5))
	assert.Len(t, grid.DataRows(0), 2, "zero header rows keeps everything")
}
