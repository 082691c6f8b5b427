package model

import (
	"sort"
	"time"
)

// DateLayout is the ISO calendar date format used on every outbound channel.
const DateLayout = "2006-01-02"

// Category identifies one collection type, e.g. "ordures" or "recyclage".
// The value doubles as the sensor name and the dedup record key.
type Category string

const (
	Waste     Category = "ordures"
	Recycling Category = "recyclage"
)

func (c Category) String() string {
	return string(c)
}

// Entry is one dated collection read from a calendar cell.
type Entry struct {
	Date     time.Time `json:"date"`
	Category Category  `json:"category"`
}

// NewDate returns the calendar date y-m-d at UTC midnight. ok is false when
// the triple does not name a real day (time.Date would silently normalize it).
func NewDate(year int, month time.Month, day int) (time.Time, bool) {
	if month < time.January || month > time.December || day < 1 {
		return time.Time{}, false
	}
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if d.Month() != month || d.Day() != day {
		return time.Time{}, false
	}
	return d, true
}

// DateOf truncates t to its calendar date in t's own location.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FormatDate renders a date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// CategorySchedule holds every known date for one category plus the next
// occurrence on or after the reference date.
type CategorySchedule struct {
	Dates []time.Time `json:"dates"`
	Next  *time.Time  `json:"next"`
}

// NextISO returns the next date as YYYY-MM-DD, or "" when there is none.
func (cs CategorySchedule) NextISO() string {
	if cs.Next == nil {
		return ""
	}
	return FormatDate(*cs.Next)
}

// DateStrings returns the dates in ascending order as YYYY-MM-DD strings.
func (cs CategorySchedule) DateStrings() []string {
	out := make([]string, 0, len(cs.Dates))
	for _, d := range cs.Dates {
		out = append(out, FormatDate(d))
	}
	return out
}

// Schedule maps each category that produced at least one entry to its dates.
type Schedule map[Category]CategorySchedule

// Categories returns the categories present in the schedule, sorted by name.
func (s Schedule) Categories() []Category {
	cats := make([]Category, 0, len(s))
	for c := range s {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })
	return cats
}
