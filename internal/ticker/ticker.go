// Package ticker finds stock symbols mentioned in chat messages.
package ticker

import (
	"regexp"
	"sort"
	"strings"
)

// MaxPerMessage caps how many symbols one message can produce.
const MaxPerMessage = 5

var (
	cashtag = regexp.MustCompile(`\$([A-Za-z]{1,5}(?:\.[A-Za-z])?)\b`)
	bare    = regexp.MustCompile(`\b[A-Z]{1,5}\b`)
	fence   = regexp.MustCompile("(?s)```.*?```|`[^`]*`|<[^>]*>|https?://\\S+")
)

// stopWords are upper-case words common enough in trading chatter that a
// bare mention is not taken as a symbol. Cashtags bypass this list.
var stopWords = map[string]bool{
	"A": true, "I": true, "AM": true, "AN": true, "AND": true, "ARE": true,
	"AS": true, "AT": true, "ATH": true, "BE": true, "BUT": true, "BUY": true,
	"BY": true, "CEO": true, "DD": true, "DM": true, "EOD": true, "EPS": true,
	"ETF": true, "FOMO": true, "FOR": true, "FYI": true, "GDP": true, "GO": true,
	"HOLD": true, "IF": true, "IMO": true, "IN": true, "IPO": true, "IS": true,
	"IT": true, "ITM": true, "LOL": true, "ME": true, "MY": true, "NO": true,
	"NOT": true, "NOW": true, "OF": true, "OK": true, "ON": true, "OR": true,
	"OTM": true, "PM": true, "PT": true, "SEC": true, "SELL": true, "SO": true,
	"THE": true, "TO": true, "UP": true, "US": true, "USA": true, "USD": true,
	"WE": true, "YOLO": true, "YOU": true, "CPI": true, "FED": true, "EST": true,
	"RSI": true, "ATM": true, "IV": true, "OP": true, "TA": true, "AI": true,
}

// Detect returns the symbols mentioned in text: cashtags like $AAPL and
// bare upper-case words of one to five letters not on the stop list.
// Results are upper-cased, deduplicated in order of first appearance, and
// capped at MaxPerMessage. Code spans, mentions and links are ignored.
func Detect(text string) []string {
	text = fence.ReplaceAllString(text, " ")

	type hit struct {
		pos int
		sym string
	}
	var hits []hit
	var tagged [][2]int
	for _, m := range cashtag.FindAllStringSubmatchIndex(text, -1) {
		hits = append(hits, hit{m[0], strings.ToUpper(text[m[2]:m[3]])})
		tagged = append(tagged, [2]int{m[0], m[1]})
	}
	for _, m := range bare.FindAllStringIndex(text, -1) {
		word := text[m[0]:m[1]]
		if stopWords[word] || inside(tagged, m[0]) {
			continue
		}
		hits = append(hits, hit{m[0], word})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	seen := make(map[string]bool)
	var out []string
	for _, h := range hits {
		if seen[h.sym] {
			continue
		}
		seen[h.sym] = true
		out = append(out, h.sym)
		if len(out) == MaxPerMessage {
			break
		}
	}
	return out
}

func inside(spans [][2]int, pos int) bool {
	for _, s := range spans {
		if pos >= s[0] && pos < s[1] {
			return true
		}
	}
	return false
}
