package scraper

import (
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"info-collecte/internal/logger"
	"info-collecte/internal/model"
)

// ErrNoScheduleFound means the markup holds no calendar table at all, which
// is what the site returns when the address search matched nothing.
var ErrNoScheduleFound = errors.New("no collection calendar found in page")

const (
	tableSelector   = "table.calendrier"
	dayLabelSel     = "p.date"
	pictogramSel    = "p.img img"
	captionSelector = "caption"
)

// Parser reads the monthly "calendrier" tables of the info-collecte page.
type Parser struct {
	classifier *Classifier
	log        *zap.SugaredLogger
}

// NewParser creates a parser using c to classify pictograms.
func NewParser(c *Classifier, log *zap.SugaredLogger) *Parser {
	if c == nil {
		c = NewClassifier(nil)
	}
	return &Parser{classifier: c, log: logger.OrNop(log)}
}

// caption is the month and year a table covers. month is zero when the
// caption did not name a known month.
type caption struct {
	month time.Month
	year  int
}

// cellOutcome is the result of reading one day cell: either an entry or the
// reason it was skipped.
type cellOutcome struct {
	entry model.Entry
	skip  string
}

func (o cellOutcome) ok() bool { return o.skip == "" }

// Parse extracts every classifiable dated cell from markup. refYear stands in
// for a caption year that is missing or not numeric. Entries come out in
// table order then cell order.
func (p *Parser) Parse(markup string, refYear int) ([]model.Entry, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, errors.Wrap(err, "parsing HTML")
	}
	return p.ParseDocument(doc, refYear)
}

// ParseDocument is Parse for an already parsed document.
func (p *Parser) ParseDocument(doc *goquery.Document, refYear int) ([]model.Entry, error) {
	tables := doc.Find(tableSelector)
	if tables.Length() == 0 {
		return nil, ErrNoScheduleFound
	}

	var entries []model.Entry
	tables.Each(func(i int, table *goquery.Selection) {
		text := strings.TrimSpace(table.Find(captionSelector).First().Text())
		hdr := parseCaption(text, refYear)
		if hdr.month == 0 {
			p.log.Debugw("caption month not recognized, table skipped",
				"caption", text, "table", i)
		}

		skipped := 0
		table.Find("td").Each(func(_ int, td *goquery.Selection) {
			out := p.readCell(td, hdr)
			if !out.ok() {
				skipped++
				p.log.Debugw("cell skipped", logger.FieldReason, out.skip, "caption", text)
				return
			}
			entries = append(entries, out.entry)
		})
		p.log.Debugw("calendar table read", "caption", text, "skipped", skipped)
	})

	return entries, nil
}

func (p *Parser) readCell(td *goquery.Selection, hdr caption) cellOutcome {
	label := td.Find(dayLabelSel).First()
	if label.Length() == 0 {
		return cellOutcome{skip: "no day label"}
	}
	dayText := strings.TrimSpace(label.Text())
	if !isDigits(dayText) {
		return cellOutcome{skip: "day label not numeric"}
	}
	day, err := strconv.Atoi(dayText)
	if err != nil {
		return cellOutcome{skip: "day label not numeric"}
	}

	date, ok := model.NewDate(hdr.year, hdr.month, day)
	if !ok {
		return cellOutcome{skip: "invalid date"}
	}

	alt := td.Find(pictogramSel).First().AttrOr("alt", "")
	cat, ok := p.classifier.Classify(alt)
	if !ok {
		return cellOutcome{skip: "no recognized pictogram"}
	}

	return cellOutcome{entry: model.Entry{Date: date, Category: cat}}
}

// parseCaption reads captions like "Janvier 2025".
func parseCaption(text string, refYear int) caption {
	parts := strings.Fields(strings.ToLower(text))
	if len(parts) < 2 {
		return caption{year: refYear}
	}

	c := caption{year: refYear}
	if m, ok := MonthNumber(parts[0]); ok {
		c.month = m
	}
	if isDigits(parts[1]) {
		if y, err := strconv.Atoi(parts[1]); err == nil {
			c.year = y
		}
	}
	return c
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
