package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

type paragraphStrategy struct {
	dates *DateResolver
}

func (paragraphStrategy) name() string { return "paragraph" }

func (s paragraphStrategy) extract(p *Page) []candidate {
	var out []candidate
	mainContent(p.Doc).Find("p").Each(func(_ int, para *goquery.Selection) {
		if !looksLikeMeeting(para) {
			return
		}
		for _, part := range splitParagraph(para) {
			if c, ok := fromContainer(s.dates, part, p); ok {
				out = append(out, c)
			}
		}
	})
	return out
}

func mainContent(doc *goquery.Document) *goquery.Selection {
	if m := doc.Find("main").First(); m.Length() > 0 {
		return m
	}
	content := doc.Find("div").FilterFunction(func(_ int, d *goquery.Selection) bool {
		return contentRe.MatchString(d.AttrOr("class", ""))
	}).First()
	if content.Length() > 0 {
		return content
	}
	return doc.Find("body").First()
}

// splitParagraph cuts a paragraph into one detached fragment per bold or
// strong month marker. Each fragment holds the marker text followed by
// copies of the siblings up to the next marker. A paragraph without markers
// is returned unchanged.
func splitParagraph(para *goquery.Selection) []*goquery.Selection {
	markers := para.Find("strong, b")
	if markers.Length() <= 1 {
		return []*goquery.Selection{para}
	}

	var parts []*goquery.Selection
	markers.Each(func(_ int, marker *goquery.Selection) {
		label := strings.TrimSpace(marker.Text())
		if !monthShortRe.MatchString(label) {
			return
		}
		frag := &html.Node{Type: html.ElementNode, Data: "p", DataAtom: atom.P}
		strong := &html.Node{Type: html.ElementNode, Data: "strong", DataAtom: atom.Strong}
		strong.AppendChild(&html.Node{Type: html.TextNode, Data: label})
		frag.AppendChild(strong)

		for n := marker.Get(0).NextSibling; n != nil; n = n.NextSibling {
			if isMarker(n) {
				break
			}
			frag.AppendChild(cloneNode(n))
		}
		parts = append(parts, goquery.NewDocumentFromNode(frag).Selection)
	})
	if len(parts) == 0 {
		return []*goquery.Selection{para}
	}
	return parts
}

func isMarker(n *html.Node) bool {
	if n.Type != html.ElementNode || (n.Data != "strong" && n.Data != "b") {
		return false
	}
	return monthShortRe.MatchString(strings.TrimSpace(goquery.NewDocumentFromNode(n).Text()))
}
