// Package extract turns arbitrary municipal meeting pages into validated
// meeting records using several structural heuristics.
package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/meeting-crawler/internal/meeting"
	"github.com/JakeFAU/meeting-crawler/internal/metrics"
)

// Extraction is the outcome of one document.
type Extraction struct {
	Records []meeting.Record
	// Containers maps Record.Key to the element the record was built from.
	// It is only valid while Document is alive.
	Containers map[string]*goquery.Selection
	Document   *goquery.Document
	Types      PageTypes
}

// Coordinator runs the page classifier and the matching strategies.
type Coordinator struct {
	dates     *DateResolver
	table     strategy
	calendar  strategy
	paragraph strategy
	container strategy
	logger    *zap.Logger
}

// NewCoordinator builds a coordinator. clock feeds the last-resort context year.
func NewCoordinator(clock meeting.Clock, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	dates := NewDateResolver(clock)
	return &Coordinator{
		dates:     dates,
		table:     tableStrategy{dates: dates},
		calendar:  calendarStrategy{dates: dates},
		paragraph: paragraphStrategy{dates: dates},
		container: containerStrategy{dates: dates},
		logger:    logger.Named("extract"),
	}
}

// Dates exposes the coordinator's date resolver.
func (c *Coordinator) Dates() *DateResolver {
	return c.dates
}

// Extract parses html and extracts the records dated inside window.
func (c *Coordinator) Extract(baseURL, html string, window meeting.Window) (Extraction, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Extraction{}, fmt.Errorf("parse document: %w", err)
	}
	return c.ExtractDocument(baseURL, doc, window), nil
}

// ExtractDocument runs the strategies over an already parsed document. A
// non-empty table result is returned on its own; otherwise calendar and
// paragraph results, when detected, are unioned with the container result.
func (c *Coordinator) ExtractDocument(baseURL string, doc *goquery.Document, window meeting.Window) Extraction {
	page := NewPage(doc, baseURL, window)
	types := DetectPageTypes(doc)
	log := c.logger.With(zap.String("url", baseURL), zap.Stringer("types", types))

	var found []candidate
	if types.Has(TypeTable) {
		found = c.run(c.table, page, log)
		if len(found) > 0 {
			return finish(found, doc, types)
		}
	}
	if types.Has(TypeCalendar) {
		found = append(found, c.run(c.calendar, page, log)...)
	}
	if types.Has(TypeParagraph) {
		found = append(found, c.run(c.paragraph, page, log)...)
	}
	found = append(found, c.run(c.container, page, log)...)

	out := finish(found, doc, types)
	log.Debug("extraction finished", zap.Int("records", len(out.Records)))
	return out
}

func (c *Coordinator) run(s strategy, page *Page, log *zap.Logger) []candidate {
	found := s.extract(page)
	metrics.ObserveRecords(s.name(), len(found))
	log.Debug("strategy finished", zap.String("strategy", s.name()), zap.Int("records", len(found)))
	return found
}

func finish(found []candidate, doc *goquery.Document, types PageTypes) Extraction {
	records := make([]meeting.Record, 0, len(found))
	containers := make(map[string]*goquery.Selection, len(found))
	for _, f := range found {
		records = append(records, f.record)
		if _, ok := containers[f.record.Key()]; !ok {
			containers[f.record.Key()] = f.container
		}
	}
	return Extraction{
		Records:    meeting.Dedupe(records),
		Containers: containers,
		Document:   doc,
		Types:      types,
	}
}
