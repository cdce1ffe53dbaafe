package extract

import (
	"net/url"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/meeting-crawler/internal/meeting"
)

// Page is one parsed document plus the request it is evaluated against.
type Page struct {
	Doc     *goquery.Document
	BaseURL string
	Window  meeting.Window

	base     *url.URL
	year     int
	yearDone bool
}

// NewPage wraps doc for extraction.
func NewPage(doc *goquery.Document, baseURL string, window meeting.Window) *Page {
	return &Page{Doc: doc, BaseURL: baseURL, Window: window, base: parseBase(baseURL)}
}

func (p *Page) majorityYear() int {
	if !p.yearDone {
		p.year = mostFrequentYear(p.Doc.Text())
		p.yearDone = true
	}
	return p.year
}
