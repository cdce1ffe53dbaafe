package sites

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/meeting-crawler/internal/meeting"
)

var boardDocsTabSelectors = []string{
	"#ui-id-3",
	`a[href="#tab-meetings"]`,
	"li#li-meetings a",
	`[aria-label*="Meetings"]`,
	"#mainMeetings",
}

const boardDocsYearScript = `(() => {
  for (const section of document.querySelectorAll('section.ui-accordion-header')) {
    const link = section.querySelector('a.lefMenu');
    if (link && link.textContent.trim() === %q) {
      section.click();
      return true;
    }
  }
  return false;
})()`

const boardDocsMeetingsScript = `(() => {
  const out = [];
  const seen = new Set();
  const sections = [document.querySelector('div.wrap-featured'), ...document.querySelectorAll('div.wrap-year')];
  for (const section of sections) {
    if (!section) { continue; }
    for (const link of section.querySelectorAll('a.icon.prevnext.meeting')) {
      const id = link.id || link.getAttribute('unique');
      if (!id || seen.has(id)) { continue; }
      seen.add(id);
      const divs = link.querySelectorAll('div');
      if (divs.length < 2) { continue; }
      const strong = divs[0].querySelector('strong');
      out.push({
        id: id,
        date: (strong || divs[0]).textContent.trim(),
        name: divs[1].textContent.trim(),
        committee: divs.length >= 3 ? divs[2].textContent.trim() : ''
      });
    }
  }
  return out;
})()`

type boardDocsMeeting struct {
	ID        string `json:"id"`
	Date      string `json:"date"`
	Name      string `json:"name"`
	Committee string `json:"committee"`
}

// collectBoardDocs opens the Meetings tab, expands each in-window year, and
// reads the meeting list from the live page. The list is rendered into a
// table snapshot whose rows link to each meeting's page.
func collectBoardDocs(ctx context.Context, s *Session, baseURL string, window meeting.Window) ([]Snapshot, error) {
	page, err := s.open(ctx, baseURL, 60*time.Second, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("open boarddocs: %w", err)
	}
	if doc, err := parse(page); err == nil {
		for _, sel := range boardDocsTabSelectors {
			if doc.Find(sel).Length() == 0 {
				continue
			}
			if err := s.Browser.Click(ctx, sel); err == nil {
				break
			}
		}
	}
	if err := s.Sleeper.Sleep(ctx, 3*time.Second); err != nil {
		return nil, err
	}

	for year := window.EndYear(); year >= window.StartYear(); year-- {
		var clicked bool
		if err := s.Browser.Evaluate(ctx, fmt.Sprintf(boardDocsYearScript, strconv.Itoa(year)), &clicked); err != nil {
			s.Logger.Debug("boarddocs year expand failed", zap.Int("year", year), zap.Error(err))
			continue
		}
		if clicked {
			_ = s.Sleeper.Sleep(ctx, 3*time.Second)
		}
	}

	var meetings []boardDocsMeeting
	if err := s.Browser.Evaluate(ctx, boardDocsMeetingsScript, &meetings); err != nil {
		return []Snapshot{{URL: baseURL, HTML: page}}, fmt.Errorf("read boarddocs meetings: %w", err)
	}
	s.Logger.Debug("boarddocs meetings read", zap.Int("count", len(meetings)))
	return []Snapshot{{URL: baseURL, HTML: boardDocsTable(baseURL, meetings)}}, nil
}

// boardDocsTable renders meetings as a document the table strategy reads:
// date cell, title cell, and a recording link to the meeting page.
func boardDocsTable(baseURL string, meetings []boardDocsMeeting) string {
	var b strings.Builder
	b.WriteString("<html><body><table>\n")
	for _, m := range meetings {
		title := m.Name
		if m.Committee != "" {
			title = m.Committee + " - " + m.Name
		}
		link := baseURL + "?open&id=" + m.ID
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td><td><a href=\"%s\">Watch Video Recording</a></td></tr>\n",
			html.EscapeString(m.Date), html.EscapeString(title), html.EscapeString(link))
	}
	b.WriteString("</table></body></html>")
	return b.String()
}
