package search

import (
	"time"

	"records-rag/internal/models"
)

// Layouts CreatedDate comes in: Salesforce datetimes, RFC 3339, bare dates.
var createdLayouts = []string{
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05.000Z0700",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02",
}

// TimeFilter keeps records created at or after Since.
type TimeFilter struct {
	Since time.Time
}

// TimeWindow returns the filter for the first set flag in day, month, year
// order, or nil when none is set.
func TimeWindow(lastDay, lastMonth, lastYear bool, now time.Time) *TimeFilter {
	switch {
	case lastDay:
		return &TimeFilter{Since: now.AddDate(0, 0, -1)}
	case lastMonth:
		return &TimeFilter{Since: now.AddDate(0, -1, 0)}
	case lastYear:
		return &TimeFilter{Since: now.AddDate(-1, 0, 0)}
	}
	return nil
}

// Match reports whether md's CreatedDate falls in the window. A nil filter
// matches everything; a missing or unparseable date never matches.
func (f *TimeFilter) Match(md models.Metadata) bool {
	if f == nil {
		return true
	}
	created, ok := ParseCreated(md[models.FieldCreatedDate])
	return ok && !created.Before(f.Since)
}

// ParseCreated parses a CreatedDate value.
func ParseCreated(s string) (time.Time, bool) {
	for _, layout := range createdLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
