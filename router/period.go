package router

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"signal-store/models"
)

var (
	ttmPattern         = regexp.MustCompile(`\b(ttm|ltm|trailing\s+(twelve|12)\s+months?|last\s+(twelve|12)\s+months)\b`)
	quarterYearPattern = regexp.MustCompile(`\bq([1-4])(?:[\s\-/]*(?:fy\s*)?(\d{4})|[\s\-']*(\d{2}))\b`)
	nQuarterPattern    = regexp.MustCompile(`\b([1-4])q[\-']?(\d{4}|\d{2})\b`)
	ordinalQuarter     = regexp.MustCompile(`\b(first|second|third|fourth)\s+(?:fiscal\s+)?quarter(?:\s+(?:of\s+)?(?:fy\s*|fiscal\s+)?(\d{4}))?`)
	halfYearPattern    = regexp.MustCompile(`\bh([12])[\s\-]*(\d{4})\b|\b(first|second)\s+half\s+(?:of\s+)?(\d{4})\b`)
	fiscalYearPattern  = regexp.MustCompile(`\b(?:fy|fiscal\s+year|fiscal|full[\s\-]year)\s*'?(\d{4}|\d{2})\b`)
	lastQuarterPattern = regexp.MustCompile(`\b(last|previous|prior)\s+quarter\b`)
	thisQuarterPattern = regexp.MustCompile(`\b(this|current)\s+quarter\b`)
	lastYearPattern    = regexp.MustCompile(`\b(last|previous|prior)\s+(fiscal\s+)?year\b`)
	thisYearPattern    = regexp.MustCompile(`\b(this|current)\s+(fiscal\s+)?year\b`)
	bareQuarterPattern = regexp.MustCompile(`\bq([1-4])\b`)
)

var ordinals = map[string]int{"first": 1, "second": 2, "third": 3, "fourth": 4}

// ExtractMetricInfo returns the metric named in query and the canonical period
// token ("Q2-2024", "FY2024", "H1-2024", "TTM"). Either part may be empty.
func (r *Router) ExtractMetricInfo(query string) (models.MetricType, string) {
	lower := strings.ToLower(query)
	m, _ := matchMetric(lower)
	return m, resolvePeriod(lower, r.now())
}

// resolvePeriod turns a period phrase into the token the store uses.
// Relative phrases are resolved against now.
func resolvePeriod(lower string, now time.Time) string {
	if ttmPattern.MatchString(lower) {
		return "TTM"
	}
	if m := quarterYearPattern.FindStringSubmatch(lower); m != nil {
		y := m[2]
		if y == "" {
			y = m[3]
		}
		return quarter(atoi(m[1]), year(y))
	}
	if m := nQuarterPattern.FindStringSubmatch(lower); m != nil {
		return quarter(atoi(m[1]), year(m[2]))
	}
	if m := ordinalQuarter.FindStringSubmatch(lower); m != nil {
		y := now.Year()
		if m[2] != "" {
			y = year(m[2])
		}
		return quarter(ordinals[m[1]], y)
	}
	if m := halfYearPattern.FindStringSubmatch(lower); m != nil {
		if m[1] != "" {
			return fmt.Sprintf("H%s-%d", m[1], year(m[2]))
		}
		return fmt.Sprintf("H%d-%d", ordinals[m[3]], year(m[4]))
	}
	if m := fiscalYearPattern.FindStringSubmatch(lower); m != nil {
		return fmt.Sprintf("FY%d", year(m[1]))
	}
	if lastQuarterPattern.MatchString(lower) {
		q, y := quarterOf(now)
		if q == 1 {
			return quarter(4, y-1)
		}
		return quarter(q-1, y)
	}
	if thisQuarterPattern.MatchString(lower) {
		q, y := quarterOf(now)
		return quarter(q, y)
	}
	if lastYearPattern.MatchString(lower) {
		return fmt.Sprintf("FY%d", now.Year()-1)
	}
	if thisYearPattern.MatchString(lower) {
		return fmt.Sprintf("FY%d", now.Year())
	}
	if m := bareQuarterPattern.FindStringSubmatch(lower); m != nil {
		return quarter(atoi(m[1]), now.Year())
	}
	return ""
}

func quarterOf(t time.Time) (int, int) {
	return (int(t.Month())-1)/3 + 1, t.Year()
}

func quarter(q, y int) string {
	return fmt.Sprintf("Q%d-%d", q, y)
}

// year expands two-digit years into 20xx.
func year(s string) int {
	y := atoi(s)
	if len(s) == 2 {
		y += 2000
	}
	return y
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
