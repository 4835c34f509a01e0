package ledger

import (
	"strconv"
	"strings"

	"github.com/roach88/roster/internal/value"
)

// Column name candidates recognized when importing tabular data.
var (
	PerformanceColumns       = []string{"当前绩效", "绩效", "绩效分", "绩效评分", "performance", "score"}
	ContributionColumns      = []string{"主要贡献", "贡献", "contribution", "contributions"}
	ContributionScoreColumns = []string{"贡献绩效", "贡献分", "contribution_score"}
)

func isScoreSentinel(s string) bool {
	switch strings.ToLower(s) {
	case "", "无", value.NotProvided, "none", "null", "n/a", "na":
		return true
	}
	return false
}

// ParseScore coerces numbers, numeric strings and strings carrying the "分"
// unit into a score. It returns false for nil, missing-value sentinels and
// anything else it cannot read.
func ParseScore(v any) (float64, bool) {
	switch val := v.(type) {
	case nil, value.Null:
		return 0, false
	case value.Number:
		return float64(val), true
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case value.String:
		return parseScoreText(string(val))
	case string:
		return parseScoreText(val)
	default:
		return 0, false
	}
}

func parseScoreText(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if isScoreSentinel(s) {
		return 0, false
	}
	s = strings.TrimSpace(strings.ReplaceAll(s, "分", ""))
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// ContributionItem is one entry parsed from free text.
type ContributionItem struct {
	Title string
	Delta float64
}

// SplitContributions parses text such as "Shipped A|5; Reviewed B|3" into
// items. Items are separated by ";" or the full-width "；". Each item is split
// on its last "|" into a title and a delta; a missing or unparsable delta
// falls back to defaultDelta. Items with an empty title are dropped.
func SplitContributions(text string, defaultDelta float64) []ContributionItem {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var items []ContributionItem
	for _, raw := range strings.Split(strings.ReplaceAll(text, "；", ";"), ";") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		title, delta := raw, defaultDelta
		if i := strings.LastIndex(raw, "|"); i >= 0 {
			title = strings.TrimSpace(raw[:i])
			if d, ok := ParseScore(raw[i+1:]); ok {
				delta = d
			}
		}
		if title == "" {
			continue
		}
		items = append(items, ContributionItem{Title: title, Delta: delta})
	}
	return items
}

func columnMatches(column string, candidates []string) bool {
	col := strings.ToLower(strings.TrimSpace(column))
	for _, c := range candidates {
		c = strings.ToLower(c)
		if col == c || strings.Contains(col, c) {
			return true
		}
	}
	return false
}

// DetectPerformanceColumn returns the first column naming a performance score.
// Columns that name a contribution score are skipped so "贡献绩效" is not read
// as the base score.
func DetectPerformanceColumn(columns []string) (string, bool) {
	for _, col := range columns {
		if columnMatches(col, ContributionScoreColumns) {
			continue
		}
		if columnMatches(col, PerformanceColumns) {
			return col, true
		}
	}
	return "", false
}

// DetectContributionColumns returns the contribution text column and the
// contribution score column, either of which may be empty. A column matching
// a score candidate is never taken as the text column.
func DetectContributionColumns(columns []string) (text, score string) {
	for _, col := range columns {
		switch {
		case columnMatches(col, ContributionScoreColumns):
			if score == "" {
				score = col
			}
		case columnMatches(col, ContributionColumns):
			if text == "" {
				text = col
			}
		}
	}
	return text, score
}
