package router

import (
	"regexp"

	"signal-store/models"
)

type metricPhrase struct {
	re     *regexp.Regexp
	metric models.MetricType
}

func phrase(p string, m models.MetricType) metricPhrase {
	return metricPhrase{re: regexp.MustCompile(`\b(?:` + p + `)\b`), metric: m}
}

// exactMetrics name a metric unambiguously. Longer phrases come first so
// "revenue growth" wins over "revenue".
var exactMetrics = []metricPhrase{
	phrase(`net\s+profit\s+margins?`, models.MetricNetMargin),
	phrase(`(operating|op|ebit)\s+margins?`, models.MetricOperatingMargin),
	phrase(`gross\s+margins?`, models.MetricGrossMargin),
	phrase(`(net|profit)\s+margins?`, models.MetricNetMargin),
	phrase(`earnings\s+per\s+share`, models.MetricEPS),
	phrase(`free\s+cash\s+flows?`, models.MetricFreeCashFlow),
	phrase(`(revenue|sales|top[\s-]line)\s+growth`, models.MetricRevenueGrowth),
	phrase(`(p/e|pe)(\s+ratio)?|price[\s-]to[\s-]earnings`, models.MetricPERatio),
	phrase(`net\s+(income|profit)`, models.MetricNetIncome),
	phrase(`eps`, models.MetricEPS),
	phrase(`fcf`, models.MetricFreeCashFlow),
	phrase(`ebitda`, models.MetricEBITDA),
	phrase(`revenues?|sales|top[\s-]line|turnover`, models.MetricRevenue),
}

// fuzzyMetrics are partial names that still point at one metric.
var fuzzyMetrics = []metricPhrase{
	phrase(`margins?`, models.MetricOperatingMargin),
	phrase(`cash\s+flows?`, models.MetricFreeCashFlow),
	phrase(`earnings|profits?`, models.MetricNetIncome),
	phrase(`growth`, models.MetricRevenueGrowth),
}

// matchMetric finds the metric named in a lower-cased query. exact is false
// for partial matches such as a bare "margin".
func matchMetric(lower string) (metric models.MetricType, exact bool) {
	for _, p := range exactMetrics {
		if p.re.MatchString(lower) {
			return p.metric, true
		}
	}
	for _, p := range fuzzyMetrics {
		if p.re.MatchString(lower) {
			return p.metric, false
		}
	}
	return "", false
}
