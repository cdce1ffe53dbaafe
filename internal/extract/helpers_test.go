package extract

import (
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/meeting-crawler/internal/meeting"
)

const testBase = "https://example.gov/meetings"

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newDoc(t *testing.T, body string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	require.NoError(t, err)
	return doc
}

func window2024(t *testing.T) meeting.Window {
	t.Helper()
	w, err := meeting.ParseWindow("2024-01-01", "2024-12-31")
	require.NoError(t, err)
	return w
}

func testPage(t *testing.T, body string) *Page {
	t.Helper()
	return NewPage(newDoc(t, body), testBase, window2024(t))
}

func goqueryNodeName(sel *goquery.Selection) string {
	return goquery.NodeName(sel)
}
