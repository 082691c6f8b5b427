package publish

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"info-collecte/internal/model"
	"info-collecte/internal/schedule"
)

const (
	ICSProductID = "-//Ville de Quebec//Info-Collecte//FR"
	ICSTimezone  = "America/Toronto"
	uidDomain    = "ville-qc-collecte"
)

// CalendarInput describes the document to generate.
type CalendarInput struct {
	Schedule   model.Schedule
	Categories []model.Category
	Today      time.Time
	// GeneratedAt is written as DTSTAMP on every event.
	GeneratedAt time.Time
	// Title returns the event summary of a category.
	Title func(model.Category) string
}

// BuildCalendar renders one all-day event per category per date on or after
// Today. The document is well formed even when no date qualifies.
func BuildCalendar(in CalendarInput) string {
	cal := ics.NewCalendar()
	cal.SetProductId(ICSProductID)
	cal.SetCalscale("GREGORIAN")
	cal.SetMethod(ics.MethodPublish)
	cal.SetXWRCalName("Collectes")
	cal.SetXWRTimezone(ICSTimezone)

	for _, cat := range in.Categories {
		title := "Collecte " + string(cat)
		if in.Title != nil {
			title = in.Title(cat)
		}
		title = summaryText(title)

		for _, d := range schedule.OnOrAfter(in.Schedule[cat], in.Today) {
			ev := cal.AddEvent(EventUID(cat, d))
			ev.SetDtStampTime(in.GeneratedAt)
			ev.SetAllDayStartAt(d)
			ev.SetAllDayEndAt(d.AddDate(0, 0, 1))
			ev.SetSummary(title)
			ev.SetTimeTransparency(ics.TransparencyTransparent)
		}
	}

	return cal.Serialize(ics.WithNewLineWindows)
}

// summaryText flattens a label onto one line; labels come from user
// configuration and may carry stray line breaks.
func summaryText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// EventUID is stable across runs so calendar clients update events in place.
func EventUID(cat model.Category, d time.Time) string {
	return fmt.Sprintf("%s-%s@%s", cat, d.Format("20060102"), uidDomain)
}

// WriteCalendarFile replaces the file at path with doc.
func WriteCalendarFile(path, doc string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(doc), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
