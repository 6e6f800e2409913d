package router

import (
	"regexp"
	"strconv"

	"signal-store/models"
)

var comparatorPattern = regexp.MustCompile(`(?:(>=|<=|≥|≤|>|<|=)|\b(greater\s+than\s+or\s+equal\s+to|at\s+least|no\s+less\s+than|more\s+than|greater\s+than|higher\s+than|above|over|exceeding|exceeds|less\s+than|lower\s+than|below|under|at\s+most|no\s+more\s+than|equal\s+to|equals)\b)\s*\$?(-?\d+(?:\.\d+)?)\s*(%|percent\b|pct\b)?`)

var comparatorWords = map[string]string{
	">=": ">=", "≥": ">=", "greater than or equal to": ">=", "at least": ">=", "no less than": ">=",
	"<=": "<=", "≤": "<=", "at most": "<=", "no more than": "<=",
	">": ">", "more than": ">", "greater than": ">", "higher than": ">", "above": ">", "over": ">", "exceeding": ">", "exceeds": ">",
	"<": "<", "less than": "<", "lower than": "<", "below": "<", "under": "<",
	"=": "=", "equal to": "=", "equals": "=",
}

// extractComparator finds a numeric filter such as "> 50%" or "above 30" in a
// lower-cased query. Word operators only match whole words.
func extractComparator(lower string) *models.Comparator {
	m := comparatorPattern.FindStringSubmatch(lower)
	if m == nil {
		return nil
	}
	op, ok := comparatorWords[collapseSpaces(m[1]+m[2])]
	if !ok {
		return nil
	}
	v, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return nil
	}
	return &models.Comparator{Op: op, Value: v, Percent: m[4] != ""}
}

var spaces = regexp.MustCompile(`\s+`)

func collapseSpaces(s string) string {
	return spaces.ReplaceAllString(s, " ")
}
