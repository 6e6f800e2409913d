package router

import (
	"regexp"
	"strings"
)

var (
	tickerCandidatePattern = regexp.MustCompile(`\b([A-Z]{1,5}(?:\.[A-Z]{1,2})?|\d{4,6}\.[A-Z]{2})\b`)
	cashtagPattern         = regexp.MustCompile(`\$([A-Za-z]{1,5}(?:\.[A-Za-z]{1,2})?)\b`)
)

// commonWords are upper-case tokens that show up in research text but are not
// tickers even when they collide with a listed symbol. A cashtag ($A)
// overrides this list.
var commonWords = map[string]struct{}{
	"I": {}, "A": {}, "AN": {}, "AND": {}, "ARE": {}, "AT": {}, "BE": {}, "BY": {}, "FOR": {},
	"IN": {}, "IS": {}, "IT": {}, "OF": {}, "ON": {}, "OR": {}, "THE": {}, "TO": {}, "WE": {},
	"BUY": {}, "SELL": {}, "HOLD": {}, "PT": {}, "EPS": {}, "FCF": {}, "TTM": {}, "LTM": {},
	"FY": {}, "Q": {}, "CEO": {}, "CFO": {}, "USD": {}, "CNY": {}, "EUR": {}, "GDP": {},
	"AI": {}, "US": {}, "UK": {}, "EU": {}, "IPO": {}, "ETF": {}, "YOY": {}, "QOQ": {},
	"EBITDA": {}, "PE": {}, "OK": {}, "ALL": {}, "ANY": {}, "NOW": {}, "NEW": {}, "ONE": {},
}

var builtinTickers = []string{
	"AAPL", "MSFT", "NVDA", "AMZN", "GOOGL", "GOOG", "META", "TSLA", "AMD", "INTC",
	"TSM", "AVGO", "QCOM", "MU", "ARM", "ASML", "ORCL", "CRM", "ADBE", "NFLX",
	"IBM", "CSCO", "TXN", "AMAT", "LRCX", "KLAC", "SMCI", "DELL", "HPQ", "SNOW",
	"PLTR", "UBER", "SHOP", "COIN", "PYPL", "V", "MA", "JPM", "GS", "MS",
	"BAC", "C", "WFC", "BRK.B", "XOM", "CVX", "KO", "PEP", "WMT", "COST",
	"DIS", "NKE", "UNH", "JNJ", "PFE", "LLY", "MRK", "ABBV", "BABA", "JD",
	"PDD", "BIDU", "NIO", "TCEHY", "0700.HK", "9988.HK", "600519.SS", "000858.SZ",
}

func defaultTickers() map[string]struct{} {
	m := make(map[string]struct{}, len(builtinTickers))
	for _, t := range builtinTickers {
		m[t] = struct{}{}
	}
	return m
}

// ExtractTicker returns the first symbol in query that is on the allow-list
// and is not a common word. "I think BUY is a good rating" yields nothing;
// "What is NVDA's rating?" yields NVDA.
func (r *Router) ExtractTicker(query string) (string, bool) {
	for _, m := range cashtagPattern.FindAllStringSubmatch(query, -1) {
		t := strings.ToUpper(m[1])
		if _, ok := r.tickers[t]; ok {
			return t, true
		}
	}
	for _, m := range tickerCandidatePattern.FindAllStringSubmatch(query, -1) {
		t := m[1]
		if _, common := commonWords[t]; common {
			continue
		}
		if _, ok := r.tickers[t]; ok {
			return t, true
		}
	}
	return "", false
}

// KnownTicker reports whether t is on the allow-list.
func (r *Router) KnownTicker(t string) bool {
	_, ok := r.tickers[strings.ToUpper(strings.TrimSpace(t))]
	return ok
}
