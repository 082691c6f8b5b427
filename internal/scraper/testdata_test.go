package scraper

import (
	"fmt"
	"strings"
)

// cell describes one <td> of a fixture calendar table.
type cell struct {
	day string
	alt string
}

func calendarTable(caption string, cells ...cell) string {
	var b strings.Builder
	b.WriteString(`<table class="calendrier">`)
	if caption != "" {
		fmt.Fprintf(&b, "<caption>%s</caption>", caption)
	}
	b.WriteString("<tbody><tr>")
	for _, c := range cells {
		b.WriteString("<td>")
		if c.day != "" {
			fmt.Fprintf(&b, `<p class="date">%s</p>`, c.day)
		}
		if c.alt != "" {
			fmt.Fprintf(&b, `<p class="img"><img src="/picto.png" alt="%s"></p>`, c.alt)
		}
		b.WriteString("</td>")
	}
	b.WriteString("</tr></tbody></table>")
	return b.String()
}

func page(tables ...string) string {
	return "<html><body><div id=\"resultat\">" + strings.Join(tables, "\n") + "</div></body></html>"
}
