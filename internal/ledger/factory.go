package ledger

import "time"

// Factory builds events with fresh ids and clock-derived dates.
type Factory struct {
	NewID func() string
	Now   func() time.Time
}

// Event builds an event of any type. An empty at defaults to today.
func (f Factory) Event(eventType string, delta float64, title, note, groupID, at string) Event {
	if at == "" {
		at = f.Now().Format(DateLayout)
	}
	return Event{
		ID:      f.NewID(),
		Type:    eventType,
		Delta:   delta,
		Title:   title,
		Note:    note,
		GroupID: groupID,
		At:      at,
	}
}

// Contribution builds a contribution event.
func (f Factory) Contribution(title string, delta float64, note, groupID string) Event {
	return f.Event(TypeContribution, delta, title, note, groupID, "")
}

// ImportBase records a base score taken from an import. The title usually
// names the source column.
func (f Factory) ImportBase(delta float64, title string) Event {
	if title == "" {
		title = "导入当前绩效"
	}
	return f.Event(TypeImportBase, delta, title, "", "", "")
}

// ManualAdjust builds a manual adjustment event.
func (f Factory) ManualAdjust(delta float64, title, note, groupID string) Event {
	return f.Event(TypeManualAdjust, delta, title, note, groupID, "")
}

// ParseContributions turns free text into contribution events scoped to
// groupID. See SplitContributions for the accepted format.
func (f Factory) ParseContributions(text string, defaultDelta float64, groupID string) []Event {
	items := SplitContributions(text, defaultDelta)
	events := make([]Event, 0, len(items))
	for _, item := range items {
		events = append(events, f.Contribution(item.Title, item.Delta, "", groupID))
	}
	return events
}
