// Package session holds the conversational state of one chat and drives a single turn.
package session

import (
	"regexp"
	"slices"
	"strings"
)

// knownSymbols are the companies present in the financial filings corpus.
var knownSymbols = []string{
	"NVDA", "LULU", "BRK-A", "AEN", "ICE", "AAPL", "PG", "META", "VSC", "INTU", "TSLA",
	"COST", "AXP", "PHE", "IRM", "ABNB", "PTON", "DAL", "JNJ", "JPM", "MSFT", "SBUX",
	"TRDL", "KR", "LVS", "AMZN", "NKE", "EBAY", "HD", "WMT", "NFLX", "PLTR", "AMD",
	"CVX", "GOOGL", "ABBV", "BAC", "KO", "V", "GME", "EFX", "T", "AZO", "AMC", "CRM",
	"ETSY", "CAT", "SCHW", "LLY", "AVGO", "FDX", "CMG", "CB", "UNH", "F", "GRMN",
	"GIS", "GM", "GILD", "GS", "HAS", "HSY", "HPE", "LTH", "HPQ", "HUM", "IBM",
}

// Tickers is an immutable set of symbols with whole-word detection.
type Tickers struct {
	sorted   []string
	patterns map[string]*regexp.Regexp
}

// KnownTickers returns the symbols covered by the corpus.
func KnownTickers() *Tickers { return NewTickers(knownSymbols) }

func NewTickers(symbols []string) *Tickers {
	t := &Tickers{patterns: make(map[string]*regexp.Regexp, len(symbols))}
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, dup := t.patterns[s]; dup {
			continue
		}
		t.patterns[s] = regexp.MustCompile(`(?:^|[^\p{L}\p{N}_])` + regexp.QuoteMeta(s) + `(?:[^\p{L}\p{N}_]|$)`)
		t.sorted = append(t.sorted, s)
	}
	slices.Sort(t.sorted)
	return t
}

// Detect returns the known symbols that appear as whole words in the upper-cased input,
// sorted and without duplicates.
func (t *Tickers) Detect(input string) []string {
	upper := strings.ToUpper(input)
	var found []string
	for _, s := range t.sorted {
		if t.patterns[s].MatchString(upper) {
			found = append(found, s)
		}
	}
	return found
}

func (t *Tickers) Contains(symbol string) bool {
	_, ok := t.patterns[strings.ToUpper(strings.TrimSpace(symbol))]
	return ok
}

// All returns the symbols in display order.
func (t *Tickers) All() []string { return slices.Clone(t.sorted) }

// Next returns the symbol after s in display order, wrapping around.
func (t *Tickers) Next(s string) string { return t.step(s, 1) }

// Prev returns the symbol before s in display order, wrapping around.
func (t *Tickers) Prev(s string) string { return t.step(s, -1) }

func (t *Tickers) step(s string, delta int) string {
	if len(t.sorted) == 0 {
		return s
	}
	i, ok := slices.BinarySearch(t.sorted, strings.ToUpper(s))
	if !ok {
		return t.sorted[0]
	}
	n := len(t.sorted)
	return t.sorted[((i+delta)%n+n)%n]
}
