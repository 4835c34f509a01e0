package ledger

import "github.com/shopspring/decimal"

// Summary is the aggregate view of a ledger, optionally scoped to one group.
type Summary struct {
	BaseScore         float64 `json:"base_score"`
	CurrentScore      float64 `json:"current_score"`
	ContributionTotal float64 `json:"contribution_total"`
	ContributionCount int     `json:"contribution_count"`
	EventCount        int     `json:"event_count"`
	LastUpdated       string  `json:"last_updated"`
}

// sum adds event deltas in decimal so the result does not depend on order.
func sum(events []Event, keep func(Event) bool) decimal.Decimal {
	total := decimal.Zero
	for _, e := range events {
		if keep != nil && !keep(e) {
			continue
		}
		total = total.Add(decimal.NewFromFloat(e.Delta))
	}
	return total
}

func isContribution(e Event) bool {
	return e.Type == TypeContribution
}

// inScope reports whether e is visible from groupID. Every event is visible
// when groupID is empty; global events are visible from every group.
func inScope(e Event, groupID string) bool {
	return groupID == "" || e.GroupID == "" || e.GroupID == groupID
}

// CurrentScore returns the base score plus every event delta, unscoped.
func CurrentScore(l *Ledger) float64 {
	if l == nil {
		return 0
	}
	return decimal.NewFromFloat(l.BaseScore).Add(sum(l.Events, nil)).InexactFloat64()
}

// ContributionTotal returns the sum of contribution deltas, unscoped.
func ContributionTotal(l *Ledger) float64 {
	if l == nil {
		return 0
	}
	return sum(l.Events, isContribution).InexactFloat64()
}

// Summarize folds the ledger. A non-empty groupID restricts the fold to events
// tagged with that group or with no group; the base score always counts.
func Summarize(l *Ledger, groupID string) Summary {
	if l == nil {
		return Summary{}
	}

	events := Filter(l, groupID, "")
	contributions := Filter(l, groupID, TypeContribution)
	base := decimal.NewFromFloat(l.BaseScore)

	return Summary{
		BaseScore:         l.BaseScore,
		CurrentScore:      base.Add(sum(events, nil)).InexactFloat64(),
		ContributionTotal: sum(contributions, nil).InexactFloat64(),
		ContributionCount: len(contributions),
		EventCount:        len(events),
		LastUpdated:       l.UpdatedAt,
	}
}

// Filter returns the events visible from groupID, restricted to eventType when
// it is non-empty. Empty arguments do not filter.
func Filter(l *Ledger, groupID, eventType string) []Event {
	if l == nil {
		return []Event{}
	}
	out := make([]Event, 0, len(l.Events))
	for _, e := range l.Events {
		if !inScope(e, groupID) {
			continue
		}
		if eventType != "" && e.Type != eventType {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Contributions returns the contribution events visible from groupID.
func Contributions(l *Ledger, groupID string) []Event {
	return Filter(l, groupID, TypeContribution)
}
