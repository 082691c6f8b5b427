// Package schedule reduces parsed calendar entries into per-category date
// sets and next occurrences.
package schedule

import (
	"sort"
	"time"

	"github.com/cockroachdb/errors"

	"info-collecte/internal/model"
)

// ErrNoCollectionFound means calendar tables were present but none of their
// cells yielded a dated, classified collection.
var ErrNoCollectionFound = errors.New("no collection dates found in calendar")

// Aggregate groups entries by category, de-duplicates their dates and picks,
// per category, the earliest date on or after today. The result does not
// depend on the order of entries.
func Aggregate(entries []model.Entry, today time.Time) (model.Schedule, error) {
	if len(entries) == 0 {
		return nil, ErrNoCollectionFound
	}

	ref := model.DateOf(today)
	sets := make(map[model.Category]map[time.Time]struct{})
	for _, e := range entries {
		d := model.DateOf(e.Date)
		if sets[e.Category] == nil {
			sets[e.Category] = make(map[time.Time]struct{})
		}
		sets[e.Category][d] = struct{}{}
	}

	out := make(model.Schedule, len(sets))
	for cat, set := range sets {
		dates := make([]time.Time, 0, len(set))
		for d := range set {
			dates = append(dates, d)
		}
		sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

		cs := model.CategorySchedule{Dates: dates}
		if i := sort.Search(len(dates), func(i int) bool { return !dates[i].Before(ref) }); i < len(dates) {
			next := dates[i]
			cs.Next = &next
		}
		out[cat] = cs
	}
	return out, nil
}

// OnOrAfter returns the dates of cs that are not before today.
func OnOrAfter(cs model.CategorySchedule, today time.Time) []time.Time {
	ref := model.DateOf(today)
	i := sort.Search(len(cs.Dates), func(i int) bool { return !cs.Dates[i].Before(ref) })
	return cs.Dates[i:]
}
