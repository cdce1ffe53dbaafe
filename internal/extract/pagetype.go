package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PageType names one structural extraction strategy.
type PageType uint8

// Page types recognised by DetectPageTypes.
const (
	TypeTable PageType = 1 << iota
	TypeCalendar
	TypeList
	TypeParagraph
	TypeContainer
)

var pageTypeNames = []struct {
	t    PageType
	name string
}{
	{TypeTable, "table"},
	{TypeCalendar, "calendar"},
	{TypeList, "list"},
	{TypeParagraph, "paragraph"},
	{TypeContainer, "container"},
}

// PageTypes is the set of strategies applicable to a document.
type PageTypes PageType

// Has reports whether t is in the set.
func (p PageTypes) Has(t PageType) bool {
	return PageType(p)&t != 0
}

func (p PageTypes) String() string {
	var names []string
	for _, n := range pageTypeNames {
		if p.Has(n.t) {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, ",")
}

// DetectPageTypes evaluates every structural signal independently. The
// container type is always present.
func DetectPageTypes(doc *goquery.Document) PageTypes {
	set := TypeContainer

	doc.Find("table").EachWithBreak(func(_ int, t *goquery.Selection) bool {
		if t.Find("tr").Length() > 3 {
			set |= TypeTable
			return false
		}
		return true
	})

	if hasYearHeading(doc) && hasMonthHeading(doc) {
		set |= TypeCalendar
	}

	dated := 0
	doc.Find("li").Each(func(_ int, li *goquery.Selection) {
		if dateSimpleRe.MatchString(li.Text()) {
			dated++
		}
	})
	if dated > 3 {
		set |= TypeList
	}

	doc.Find("p").EachWithBreak(func(_ int, p *goquery.Selection) bool {
		if p.Find("strong, b").Length() > 2 && len(monthAnyRe.FindAllString(p.Text(), -1)) > 2 {
			set |= TypeParagraph
			return false
		}
		return true
	})

	return PageTypes(set)
}

func hasYearHeading(doc *goquery.Document) bool {
	return yearHeadings(doc.Selection).Length() > 0
}

func hasMonthHeading(doc *goquery.Document) bool {
	if doc.Find("h3, h4").FilterFunction(func(_ int, h *goquery.Selection) bool {
		return monthFullRe.MatchString(strings.TrimSpace(h.Text()))
	}).Length() > 0 {
		return true
	}
	return doc.Find(`strong, b, dt, [class*="month"]`).FilterFunction(func(_ int, el *goquery.Selection) bool {
		return monthLabelRe.MatchString(strings.TrimSpace(el.Text()))
	}).Length() > 0
}

func yearHeadings(sel *goquery.Selection) *goquery.Selection {
	return sel.Find("h1, h2, h3").FilterFunction(func(_ int, h *goquery.Selection) bool {
		return yearStrictRe.MatchString(h.Text())
	})
}
