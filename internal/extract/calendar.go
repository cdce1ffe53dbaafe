package extract

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/meeting-crawler/internal/meeting"
)

type calendarStrategy struct {
	dates *DateResolver
}

func (calendarStrategy) name() string { return "calendar" }

// extract walks forward from each year heading until the next h1/h2 that
// carries a year. Month headings set the active month, as does any other
// element whose whole text is a month name; every dated anchor seen under an
// active month becomes a meeting.
func (s calendarStrategy) extract(p *Page) []candidate {
	var out []candidate
	yearHeadings(p.Doc.Selection).Each(func(_ int, heading *goquery.Selection) {
		m := yearRe.FindStringSubmatch(heading.Text())
		if m == nil {
			return
		}
		year, _ := strconv.Atoi(m[1])
		month := ""

		for n := nextInDocument(heading.Get(0)); n != nil; n = nextInDocument(n) {
			if n.Type != html.ElementNode {
				continue
			}
			el := goquery.NewDocumentFromNode(n).Selection
			switch n.Data {
			case "h1", "h2":
				if yearRe.MatchString(el.Text()) {
					return
				}
			}
			if isHeading(n.Data) {
				if mm := monthFullRe.FindStringSubmatch(strings.TrimSpace(el.Text())); mm != nil {
					month = mm[1]
				}
				continue
			}
			if n.Data != "a" {
				if mm := monthLabelRe.FindStringSubmatch(strings.TrimSpace(el.Text())); mm != nil {
					month = mm[1]
				}
			}
			if month == "" || n.Data != "a" {
				continue
			}
			if c, ok := s.fromAnchor(el, p, month, year); ok {
				out = append(out, c)
			}
		}
	})
	return out
}

func (s calendarStrategy) fromAnchor(a *goquery.Selection, p *Page, month string, year int) (candidate, bool) {
	href, ok := a.Attr("href")
	if !ok {
		return candidate{}, false
	}
	date := s.dates.FromText(Text(a, ""), year)
	if date == "" || !p.Window.Contains(date) {
		return candidate{}, false
	}

	container := a.Parent()
	if container.Length() == 0 {
		container = a
	}
	links := classifyLinks(container, p.base)
	if links.Video == "" && isVideoLink(a) {
		links.Video = Resolve(p.base, href)
	}

	title := fmt.Sprintf("%s %s, %d - Board Meeting", month, date[8:], year)
	rec := meeting.NewRecord(date, title, links)
	if !meeting.Validate(rec) {
		return candidate{}, false
	}
	return candidate{record: rec, container: container}, true
}

func isHeading(tag string) bool {
	switch tag {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		return true
	}
	return false
}

// nextInDocument returns the node following n in document order.
func nextInDocument(n *html.Node) *html.Node {
	if n.FirstChild != nil {
		return n.FirstChild
	}
	for ; n != nil; n = n.Parent {
		if n.NextSibling != nil {
			return n.NextSibling
		}
	}
	return nil
}
