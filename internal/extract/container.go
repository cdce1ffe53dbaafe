package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var meetingDivRes = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(meetingDivPatterns))
	for i, p := range meetingDivPatterns {
		out[i] = regexp.MustCompile("(?i)" + p)
	}
	return out
}()

type containerStrategy struct {
	dates *DateResolver
}

func (containerStrategy) name() string { return "container" }

func (s containerStrategy) extract(p *Page) []candidate {
	var out []candidate
	for _, sel := range findContainers(p.Doc) {
		if c, ok := fromContainer(s.dates, sel, p); ok {
			out = append(out, c)
		}
	}
	return out
}

// findContainers gathers candidate meeting containers in a fixed order and
// keeps those that look like meetings. Each element appears once.
func findContainers(doc *goquery.Document) []*goquery.Selection {
	seen := make(map[*html.Node]struct{})
	var candidates []*goquery.Selection
	add := func(sel *goquery.Selection) {
		sel.Each(func(_ int, one *goquery.Selection) {
			n := one.Get(0)
			if _, ok := seen[n]; ok {
				return
			}
			seen[n] = struct{}{}
			candidates = append(candidates, one)
		})
	}

	add(doc.Find("tr"))
	add(doc.Find("li"))
	divs := doc.Find("div")
	for _, re := range meetingDivRes {
		add(divs.FilterFunction(func(_ int, d *goquery.Selection) bool {
			return re.MatchString(d.AttrOr("class", ""))
		}))
		add(divs.FilterFunction(func(_ int, d *goquery.Selection) bool {
			return re.MatchString(d.AttrOr("id", ""))
		}))
	}
	add(doc.Find("article"))
	add(doc.Find("section"))
	add(doc.Find("[data-date]"))
	add(doc.Find("[data-meeting-date]"))
	doc.Find("time").Each(func(_ int, t *goquery.Selection) {
		add(t.Parent())
	})
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		if dateWithMonthRe.MatchString(Text(a, "")) {
			add(a.Parent())
		}
	})

	accepted := candidates[:0]
	for _, c := range candidates {
		if looksLikeMeeting(c) {
			accepted = append(accepted, c)
		}
	}
	return accepted
}

// looksLikeMeeting accepts an element with at least three characters of text
// that shows a date, a meeting keyword with a link or enough text, a meeting
// attribute signature, or any one of those signals.
func looksLikeMeeting(sel *goquery.Selection) bool {
	text := Text(sel, " ")
	if len(text) < 3 {
		return false
	}
	lower := strings.ToLower(text)

	hasDate := dateCombinedRe.MatchString(lower)
	hasKeyword := containsAny(lower, meetingKeywords)
	hasLinks := sel.Find("a[href]").Length() > 0
	hasAttr := containsAny(strings.ToLower(outerHead(sel, 500)), meetingAttrMarkers)

	switch {
	case hasDate:
		return true
	case hasKeyword && (hasLinks || len(text) > 10):
		return true
	case hasAttr:
		return true
	}
	return hasKeyword || hasLinks
}

func outerHead(sel *goquery.Selection, limit int) string {
	s, err := goquery.OuterHtml(sel)
	if err != nil {
		return ""
	}
	if len(s) > limit {
		s = s[:limit]
	}
	return s
}
