package tasks

import (
	"sort"

	"cloud.google.com/go/civil"
)

// SortForDisplay orders tasks by due date then due time, unset values last, ties by id.
func SortForDisplay(list []Task) {
	sort.SliceStable(list, func(i, j int) bool {
		return displayLess(list[i], list[j])
	})
}

func displayLess(a, b Task) bool {
	if c := compareDates(a.DueDate, b.DueDate); c != 0 {
		return c < 0
	}
	if c := compareClocks(a.DueTime, b.DueTime); c != 0 {
		return c < 0
	}
	return a.ID < b.ID
}

// sortByTime orders tasks sharing a date by time with untimed tasks last, ties by id.
func sortByTime(list []Task) {
	sort.SliceStable(list, func(i, j int) bool {
		if c := compareClocks(list[i].DueTime, list[j].DueTime); c != 0 {
			return c < 0
		}
		return list[i].ID < list[j].ID
	})
}

func compareDates(a, b *civil.Date) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case a.Before(*b):
		return -1
	case a.After(*b):
		return 1
	default:
		return 0
	}
}

func compareClocks(a, b *civil.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	ka, kb := clockNanos(*a), clockNanos(*b)
	switch {
	case ka < kb:
		return -1
	case ka > kb:
		return 1
	default:
		return 0
	}
}

func clockNanos(t civil.Time) int64 {
	return (int64(t.Hour)*3600+int64(t.Minute)*60+int64(t.Second))*1e9 + int64(t.Nanosecond)
}
