package extract

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/meeting-crawler/internal/meeting"
)

// candidate is a validated record and the container it came from.
type candidate struct {
	record    meeting.Record
	container *goquery.Selection
}

type strategy interface {
	name() string
	extract(p *Page) []candidate
}

// fromContainer runs the shared pipeline used by the paragraph and container
// strategies: date, range check, title, links with enhancement, validation.
func fromContainer(dates *DateResolver, sel *goquery.Selection, p *Page) (candidate, bool) {
	date := dates.FromElement(sel, p)
	if date == "" || !p.Window.Contains(date) {
		return candidate{}, false
	}
	title := titleOrFallback(ExtractTitle(sel, date), date)
	links := enhanceLinks(classifyLinks(sel, p.base), sel, p.base)
	rec := meeting.NewRecord(date, title, links)
	if !meeting.Validate(rec) {
		return candidate{}, false
	}
	return candidate{record: rec, container: sel}, true
}
