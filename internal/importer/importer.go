// Package importer reads and writes the tabular rate surface used for bulk
// import and export. Rows are parsed independently: a bad row is reported
// and the rest keep going.
package importer

import (
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/Dan9191/cuotificador/internal/models"
)

// Supported formats
const (
	FormatCSV = "csv"
	FormatXML = "xml"
)

// GenericBankCode is written for rows of the generic bank. An empty code reads the same.
const GenericBankCode = "*"

// Record is a parsed row with its 1-based position in the input
type Record struct {
	Row int
	models.RateRow
}

// IsGenericBank reports whether code selects the generic bank
func IsGenericBank(code string) bool {
	code = strings.TrimSpace(code)
	return code == "" || code == GenericBankCode
}

// Suggest returns the candidate closest to code, or "" when nothing is close
// enough to be a plausible typo
func Suggest(code string, candidates []string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return ""
	}
	limit := len(code) / 3
	if limit < 2 {
		limit = 2
	}

	best, bestDist := "", limit+1
	for _, c := range candidates {
		d := levenshtein.ComputeDistance(code, strings.ToLower(c))
		if d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}
