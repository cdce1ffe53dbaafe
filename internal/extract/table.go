package extract

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/meeting-crawler/internal/meeting"
)

type tableStrategy struct {
	dates *DateResolver
}

func (tableStrategy) name() string { return "table" }

func (s tableStrategy) extract(p *Page) []candidate {
	year := anchorYear(p)
	var out []candidate

	p.Doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.ChildrenFiltered("td, th")
		if cells.Length() == 0 {
			return
		}

		var date string
		var dateCell *goquery.Selection
		cells.EachWithBreak(func(_ int, cell *goquery.Selection) bool {
			if d := s.dates.FromText(Text(cell, " "), year); d != "" {
				date, dateCell = d, cell
				return false
			}
			return true
		})
		if date == "" || !p.Window.Contains(date) {
			return
		}
		if containsAny(strings.ToLower(Text(row, " ")), cancelledKeywords) {
			return
		}

		links := classifyLinks(dateCell, p.base)
		links = links.Fill(classifyLinks(row, p.base))
		cells.EachWithBreak(func(_ int, cell *goquery.Selection) bool {
			links = links.Fill(classifyLinks(cell, p.base))
			return !links.Complete()
		})

		rec := meeting.NewRecord(date, titleOrFallback(ExtractTitle(row, date), date), links)
		if meeting.Validate(rec) {
			out = append(out, candidate{record: rec, container: row})
		}
	})
	return out
}

// anchorYear picks the year that completes year-less dates in a table: the
// selected option of the first dropdown showing a year, else the first h1-h4
// heading with one, coerced to the window's start year when outside it.
func anchorYear(p *Page) int {
	year := 0
	p.Doc.Find("select").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		opt := sel.Find("option[selected]").First()
		if opt.Length() == 0 {
			return true
		}
		if m := yearRe.FindStringSubmatch(strings.TrimSpace(opt.Text())); m != nil {
			year, _ = strconv.Atoi(m[1])
			return false
		}
		return true
	})
	if year == 0 {
		p.Doc.Find("h1, h2, h3, h4").EachWithBreak(func(_ int, h *goquery.Selection) bool {
			if m := yearRe.FindStringSubmatch(strings.TrimSpace(h.Text())); m != nil {
				year, _ = strconv.Atoi(m[1])
				return false
			}
			return true
		})
	}
	if year < p.Window.StartYear() || year > p.Window.EndYear() {
		year = p.Window.StartYear()
	}
	return year
}
