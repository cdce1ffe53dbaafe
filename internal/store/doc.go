// Package store declares the run repository used to persist scrape runs and
// their per-site results.
package store
