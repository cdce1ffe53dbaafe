package crawl

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// yearControl is a button, anchor, or select option labelled with a year.
type yearControl struct {
	year     string
	inSelect bool
	selectID string
}

// selector returns the locator the browser activates. Buttons and anchors
// are located by XPath on their label.
func (c yearControl) selector() string {
	return fmt.Sprintf(`//button[normalize-space(.)='%[1]s'] | //a[normalize-space(.)='%[1]s']`, c.year)
}

// script selects the option labelled with the year and fires change.
func (c yearControl) script() string {
	return fmt.Sprintf(`(() => {
  const sel = %s;
  if (!sel) { return false; }
  const opt = Array.from(sel.options).find(o => o.text.trim() === %q);
  if (!opt) { return false; }
  sel.value = opt.value;
  sel.dispatchEvent(new Event('change', { bubbles: true }));
  return true;
})()`, c.selectLookup(), c.year)
}

func (c yearControl) selectLookup() string {
	if c.selectID == "" {
		return `document.querySelector('select')`
	}
	return fmt.Sprintf(`(document.getElementById(%[1]q) || document.querySelector('select[name=' + JSON.stringify(%[1]q) + ']'))`, c.selectID)
}

// yearControls lists distinct year controls in document order whose label
// is a bare year within [startYear-1, endYear+1].
func yearControls(doc *goquery.Document, startYear, endYear int) []yearControl {
	var out []yearControl
	seen := make(map[string]struct{})
	add := func(c yearControl, kind string) {
		key := kind + "|" + c.selectID + "|" + c.year
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}

	doc.Find("button, a, select").Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "select" {
			id := s.AttrOr("id", s.AttrOr("name", ""))
			s.Find("option").Each(func(_ int, o *goquery.Selection) {
				if text := strings.TrimSpace(o.Text()); yearInRange(text, startYear, endYear) {
					add(yearControl{year: text, inSelect: true, selectID: id}, "select")
				}
			})
			return
		}
		if text := strings.TrimSpace(s.Text()); yearInRange(text, startYear, endYear) {
			add(yearControl{year: text}, "button")
		}
	})
	return out
}

func yearInRange(text string, startYear, endYear int) bool {
	if len(text) != 4 {
		return false
	}
	year, err := strconv.Atoi(text)
	if err != nil {
		return false
	}
	return year >= startYear-1 && year <= endYear+1
}

var errNoOption = errors.New("year option not found")
