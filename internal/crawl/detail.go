package crawl

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/meeting-crawler/internal/extract"
	"github.com/JakeFAU/meeting-crawler/internal/meeting"
)

var (
	detailTextKeywords = []string{"detail", "view", "full", "more info", "read more"}
	detailHrefKeywords = []string{"detail", "event", "meeting"}
)

// shortLinkText is the longest single-link label treated as a detail link
// without a keyword.
const shortLinkText = 20

// DetailLink picks the link in container worth following to complete links.
// It returns "" when every category is already resolved or no candidate
// stands out.
func DetailLink(container *goquery.Selection, links meeting.Links, pageURL string) string {
	if container == nil || links.Complete() {
		return ""
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	anchors := container.Find("a[href]")
	if anchors.Length() == 1 {
		text := strings.ToLower(strings.TrimSpace(anchors.Text()))
		if strings.Contains(text, "detail") || strings.Contains(text, "view") ||
			strings.Contains(text, "more") || len(text) < shortLinkText {
			return resolveHref(base, anchors)
		}
	}

	var picked string
	anchors.EachWithBreak(func(_ int, a *goquery.Selection) bool {
		text := strings.ToLower(strings.TrimSpace(a.Text()))
		href := strings.ToLower(a.AttrOr("href", ""))
		if containsAny(text, detailTextKeywords) || containsAny(href, detailHrefKeywords) {
			picked = resolveHref(base, a)
		}
		return picked == ""
	})
	return picked
}

func resolveHref(base *url.URL, a *goquery.Selection) string {
	href, _ := a.Attr("href")
	return extract.Resolve(base, href)
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
