package extract

import (
	"net/url"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/meeting-crawler/internal/meeting"
)

// EnhanceLinks fills empty categories of links from the container's previous
// sibling, next sibling, and parent, in that order. Resolved fields are kept.
func EnhanceLinks(links meeting.Links, container *goquery.Selection, baseURL string) meeting.Links {
	return enhanceLinks(links, container, parseBase(baseURL))
}

func enhanceLinks(links meeting.Links, container *goquery.Selection, base *url.URL) meeting.Links {
	if container == nil || container.Length() == 0 {
		return links
	}
	for _, neighbour := range []*goquery.Selection{container.Prev(), container.Next(), container.Parent()} {
		if links.Complete() {
			break
		}
		if neighbour.Length() == 0 {
			continue
		}
		links = links.Fill(classifyLinks(neighbour, base))
	}
	return links
}
