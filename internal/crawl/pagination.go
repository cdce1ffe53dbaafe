package crawl

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/meeting-crawler/internal/extract"
)

var paginationSelectors = []string{
	`a[rel="next"]`,
	"a.next",
	"a.pagination-next",
	"li.next a",
	`a[aria-label*="next"]`,
	`nav[role="navigation"] a`,
}

var (
	paginationWordRe = regexp.MustCompile(`(?i)\b(next|older|more|previous|prev)\b`)
	pageNumberRe     = regexp.MustCompile(`^\d{1,3}$`)
	pagePhraseRe     = regexp.MustCompile(`(?i)^page\s+\d+$`)
)

// maxLinkTextLen keeps keyword matches to pager-sized labels.
const maxLinkTextLen = 30

// PaginationLinks returns absolute same-host pagination URLs found in doc,
// in document order with duplicates removed.
func PaginationLinks(doc *goquery.Document, pageURL string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	var out []string
	seen := make(map[string]struct{})
	add := func(a *goquery.Selection) {
		href, _ := a.Attr("href")
		abs := extract.Resolve(base, href)
		if abs == "" {
			return
		}
		u, err := url.Parse(abs)
		if err != nil || !strings.EqualFold(u.Hostname(), base.Hostname()) {
			return
		}
		if _, ok := seen[abs]; ok {
			return
		}
		seen[abs] = struct{}{}
		out = append(out, abs)
	}

	for _, sel := range paginationSelectors {
		doc.Find(sel).Each(func(_ int, a *goquery.Selection) { add(a) })
	}
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		if isPagerText(strings.TrimSpace(a.Text())) {
			add(a)
		}
	})
	return out
}

func isPagerText(text string) bool {
	if text == "" || len(text) > maxLinkTextLen {
		return false
	}
	return pageNumberRe.MatchString(text) || pagePhraseRe.MatchString(text) || paginationWordRe.MatchString(text)
}
