package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromTextFormatsAgree(t *testing.T) {
	t.Parallel()

	r := NewDateResolver(fixedClock{time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)})
	inputs := []string{
		"2024-01-05",
		"1/5/2024",
		"01/05/2024",
		"1-5-2024",
		"January 5, 2024",
		"January 5 2024",
		"Friday, January 5, 2024 at 6pm",
		"Jan 5, 2024",
		"Jan. 5, 2024",
		"JAN 5 2024",
	}
	for _, in := range inputs {
		assert.Equal(t, "2024-01-05", r.FromText(in, 0), in)
	}
}

func TestFromTextContextYear(t *testing.T) {
	t.Parallel()

	r := NewDateResolver(fixedClock{time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)})
	assert.Equal(t, "2023-03-14", r.FromText("March 14", 2023))
	assert.Equal(t, "2023-09-02", r.FromText("Sept. 2", 2023))
	assert.Equal(t, "2026-03-14", r.FromText("Mar 14", 0))
	assert.Equal(t, "2024-03-14", r.FromText("3-14-24", 2023))
	assert.Equal(t, "", r.FromText("Room 12", 2023))
	assert.Equal(t, "", r.FromText("2024-02-30", 0))
}

func TestFromElementAttributes(t *testing.T) {
	t.Parallel()

	r := NewDateResolver(nil)
	page := testPage(t, `<ul>
		<li id="a" data-date="2024-01-05T19:00:00">Council</li>
		<li id="b" data-meeting-date="January 5, 2024">Council</li>
		<li id="c"><time datetime="2024-01-05">Fri</time> Council</li>
		<li id="d">Regular meeting held 01/05/2024</li>
	</ul>`)

	for _, id := range []string{"#a", "#b", "#c", "#d"} {
		assert.Equal(t, "2024-01-05", r.FromElement(page.Doc.Find(id), page), id)
	}
}

func TestFromElementHeadingContextYear(t *testing.T) {
	t.Parallel()

	r := NewDateResolver(fixedClock{time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)})
	page := testPage(t, `<div>
		<section><h2>2023 Meetings</h2><ul><li id="old">March 3 Council Meeting</li></ul></section>
		<section><h2>2024 Meetings</h2><ul><li id="new">March 4 Council Meeting</li></ul></section>
	</div>`)

	assert.Equal(t, "2023-03-03", r.FromElement(page.Doc.Find("#old"), page))
	assert.Equal(t, "2024-03-04", r.FromElement(page.Doc.Find("#new"), page))
}

func TestContextYearFallbacks(t *testing.T) {
	t.Parallel()

	r := NewDateResolver(fixedClock{time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)})

	majority := testPage(t, `<p>Archive 2022 and 2024, updated 2024.</p><ul><li id="m">March 3 Council</li></ul>`)
	assert.Equal(t, "2024-03-03", r.FromElement(majority.Doc.Find("#m"), majority))

	tie := testPage(t, `<p>2022 then 2024</p><ul><li id="m">March 3 Council</li></ul>`)
	assert.Equal(t, 2022, r.ContextYear(tie.Doc.Find("#m"), tie))

	outOfRange := testPage(t, `<p>Founded 2099</p><ul><li id="m">March 3 Council</li></ul>`)
	assert.Equal(t, "2026-03-03", r.FromElement(outOfRange.Doc.Find("#m"), outOfRange))
}

func TestFromElementNoDate(t *testing.T) {
	t.Parallel()

	r := NewDateResolver(nil)
	page := testPage(t, `<div id="x">Contact the clerk</div>`)
	require.Equal(t, "", r.FromElement(page.Doc.Find("#x"), page))
	require.Equal(t, "", r.FromElement(page.Doc.Find("#missing"), page))
}
