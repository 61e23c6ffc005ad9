// Package verify checks the built star schema before anything is loaded.
// Every rule runs; if any fails the result is a *stardwh.VerificationError
// naming each failure.
package verify

import (
	"fmt"

	"github.com/pilosa/stardwh"
	"github.com/pilosa/stardwh/dimension"
)

// Rule names.
const (
	ListingCoverage  = "listing-coverage"
	LocationCoverage = "location-coverage"
	FactRowCount     = "fact-row-count"
	FactCoordinates  = "fact-coordinates"
	DateOrder        = "date-order"
	FactReferences   = "fact-references"
)

var rules = []string{ListingCoverage, LocationCoverage, FactRowCount, DateOrder, FactReferences, FactCoordinates}

const maxDetailsPerRule = 5

// Input is everything the rules look at.
type Input struct {
	Calendar []stardwh.CalendarRecord
	Listings []stardwh.ListingRecord
	Dims     dimension.Dimensions
	Facts    []stardwh.Fact
	Policy   stardwh.LocationPolicy
}

type collector struct {
	violations []stardwh.Violation
	counts     map[string]int
}

func (c *collector) fail(rule, format string, args ...interface{}) {
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	c.counts[rule]++
	if c.counts[rule] > maxDetailsPerRule {
		return
	}
	c.violations = append(c.violations, stardwh.Violation{Rule: rule, Detail: fmt.Sprintf(format, args...)})
}

func (c *collector) err() error {
	for _, rule := range rules {
		if n := c.counts[rule]; n > maxDetailsPerRule {
			c.violations = append(c.violations, stardwh.Violation{Rule: rule, Detail: fmt.Sprintf("%d more", n-maxDetailsPerRule)})
		}
	}
	if len(c.violations) == 0 {
		return nil
	}
	return &stardwh.VerificationError{Violations: c.violations}
}

// Check runs every rule against in.
func Check(in Input) error {
	c := &collector{}
	listingCoverage(c, in)
	locationCoverage(c, in)
	factRowCount(c, in)
	dateOrder(c, in)
	factReferences(c, in)
	factCoordinates(c, in)
	return c.err()
}

// listingCoverage: one row per distinct listing id, keys dense from 1.
func listingCoverage(c *collector, in Input) {
	rows := map[string]int{}
	for i, r := range in.Dims.Listing.Rows {
		if r.ID != uint64(i+1) {
			c.fail(ListingCoverage, "row %d has key %d", i, r.ID)
		}
		rows[r.NaturalKey]++
	}
	reported := map[string]bool{}
	for _, l := range in.Listings {
		n := rows[l.ID]
		if n == 1 || reported[l.ID] {
			continue
		}
		reported[l.ID] = true
		if n == 0 {
			c.fail(ListingCoverage, "listing %s has no dimension row", l.ID)
		} else {
			c.fail(ListingCoverage, "listing %s has %d dimension rows", l.ID, n)
		}
	}
}

// locationCoverage: one row per distinct coordinate pair, keys dense from 1.
// Pairs are grouped by Coordinates.Key, as the dimension builder does.
func locationCoverage(c *collector, in Input) {
	rows := map[string]int{}
	for i, r := range in.Dims.Location.Rows {
		if r.ID != uint64(i+1) {
			c.fail(LocationCoverage, "row %d has key %d", i, r.ID)
		}
		rows[r.Coordinates.Key()]++
	}
	reported := map[string]bool{}
	for _, l := range in.Listings {
		key := l.Coordinates.Key()
		n := rows[key]
		if n == 1 || reported[key] {
			continue
		}
		reported[key] = true
		if n == 0 {
			c.fail(LocationCoverage, "coordinates %s of listing %s have no dimension row", key, l.ID)
		} else {
			c.fail(LocationCoverage, "coordinates %s have %d dimension rows", key, n)
		}
	}
}

func factRowCount(c *collector, in Input) {
	if len(in.Facts) != len(in.Calendar) {
		c.fail(FactRowCount, "%d facts for %d calendar rows", len(in.Facts), len(in.Calendar))
	}
}

// dateOrder: date keys are dense from 1 and strictly increase with the date.
func dateOrder(c *collector, in Input) {
	rows := in.Dims.Date.Rows
	for i, r := range rows {
		if r.ID != uint64(i+1) {
			c.fail(DateOrder, "row %d has key %d", i, r.ID)
		}
		if i > 0 && !rows[i-1].Date.Before(r.Date) {
			c.fail(DateOrder, "date %s (key %d) is not after %s (key %d)",
				r.Date.Format(stardwh.DateLayout), r.ID, rows[i-1].Date.Format(stardwh.DateLayout), rows[i-1].ID)
		}
	}
}

// factReferences: every key a fact carries names an existing row, and a
// fact without a listing key really has no listing.
func factReferences(c *collector, in Input) {
	nListing := uint64(len(in.Dims.Listing.Rows))
	nLocation := uint64(len(in.Dims.Location.Rows))
	nDate := uint64(len(in.Dims.Date.Rows))
	for i, f := range in.Facts {
		if f.DateID == 0 || f.DateID > nDate {
			c.fail(FactReferences, "fact %d (line %d) has dangling date key %d", i, f.Line, f.DateID)
		}
		if f.LocationID != nil && (*f.LocationID == 0 || *f.LocationID > nLocation) {
			c.fail(FactReferences, "fact %d (line %d) has dangling location key %d", i, f.Line, *f.LocationID)
		}
		if f.ListingID == nil {
			if i < len(in.Calendar) {
				if _, ok := in.Dims.Listing.Lookup.ID(in.Calendar[i].ListingID); ok {
					c.fail(FactReferences, "fact %d (line %d) lost the key of listing %s", i, f.Line, in.Calendar[i].ListingID)
				}
			}
			continue
		}
		if *f.ListingID == 0 || *f.ListingID > nListing {
			c.fail(FactReferences, "fact %d (line %d) has dangling listing key %d", i, f.Line, *f.ListingID)
			continue
		}
		if in.Policy == stardwh.LocationSurrogate && f.LocationID == nil {
			c.fail(FactReferences, "fact %d (line %d) has a listing but no location key", i, f.Line)
		}
		if in.Policy == stardwh.LocationCoordinates && f.Coordinates == nil {
			c.fail(FactReferences, "fact %d (line %d) has a listing but no coordinates", i, f.Line)
		}
	}
}

// factCoordinates: following a fact to its listing and back to the source
// gives the same coordinates as following its location reference.
func factCoordinates(c *collector, in Input) {
	source := make(map[string]stardwh.Coordinates, len(in.Listings))
	for _, l := range in.Listings {
		if _, ok := source[l.ID]; !ok {
			source[l.ID] = l.Coordinates
		}
	}
	listingRows := in.Dims.Listing.Rows
	locationRows := in.Dims.Location.Rows
	for i, f := range in.Facts {
		if f.ListingID == nil || *f.ListingID == 0 || *f.ListingID > uint64(len(listingRows)) {
			continue
		}
		key := listingRows[*f.ListingID-1].NaturalKey
		want, ok := source[key]
		if !ok {
			c.fail(FactCoordinates, "fact %d (line %d): listing %s not in source", i, f.Line, key)
			continue
		}
		var got stardwh.Coordinates
		switch {
		case in.Policy == stardwh.LocationCoordinates && f.Coordinates != nil:
			got = *f.Coordinates
		case in.Policy == stardwh.LocationSurrogate && f.LocationID != nil && *f.LocationID > 0 && *f.LocationID <= uint64(len(locationRows)):
			got = locationRows[*f.LocationID-1].Coordinates
		default:
			continue // reported by factReferences
		}
		if got.Key() != want.Key() {
			c.fail(FactCoordinates, "fact %d (line %d): listing %s is at %s but its location is %s", i, f.Line, key, want.Key(), got.Key())
		}
	}
}
