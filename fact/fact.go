// Package fact assembles the daily revenue fact table.
package fact

import (
	"fmt"

	"github.com/pilosa/stardwh"
	"github.com/pilosa/stardwh/dimension"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Assembler turns calendar records into fact rows, one per record.
type Assembler struct {
	Policy   stardwh.LocationPolicy
	Warnings *stardwh.Report
}

// NewAssembler returns an Assembler for policy. warnings may be nil.
func NewAssembler(policy stardwh.LocationPolicy, warnings *stardwh.Report) *Assembler {
	if warnings == nil {
		warnings = stardwh.NewReport(nil, nil)
	}
	return &Assembler{Policy: policy, Warnings: warnings}
}

// baseline is what a fact takes from its listing rather than its day.
type baseline struct {
	price  decimal.NullDecimal
	coords stardwh.Coordinates
}

// baselines indexes the first record of each listing.
func baselines(listings []stardwh.ListingRecord) map[string]baseline {
	ret := make(map[string]baseline, len(listings))
	for _, l := range listings {
		if _, ok := ret[l.ID]; ok {
			continue
		}
		ret[l.ID] = baseline{price: l.DefaultPrice, coords: l.Coordinates}
	}
	return ret
}

type gap struct {
	firstLine int
	rows      int
}

// Assemble resolves every calendar record against the dimensions. A record
// whose listing is not in the listing dimension still produces a fact, with
// null listing and location references and a null default price; each such
// listing is reported once as a ReferentialGap.
func (a *Assembler) Assemble(cal []stardwh.CalendarRecord, listings []stardwh.ListingRecord, dims dimension.Dimensions) ([]stardwh.Fact, error) {
	base := baselines(listings)
	facts := make([]stardwh.Fact, 0, len(cal))
	gaps := make(map[string]*gap)
	var gapOrder []string

	for _, c := range cal {
		dateKey := c.Date.Format(stardwh.DateLayout)
		dateID, ok := dims.Date.Lookup.ID(dateKey)
		if !ok {
			return nil, errors.Errorf("calendar line %d: date %s missing from date dimension", c.Line, dateKey)
		}
		f := stardwh.Fact{
			DateID:     dateID,
			DailyPrice: c.Price,
			Occupied:   c.Occupied,
			Line:       c.Line,
		}

		listingID, ok := dims.Listing.Lookup.ID(c.ListingID)
		if !ok {
			g, seen := gaps[c.ListingID]
			if !seen {
				g = &gap{firstLine: c.Line}
				gaps[c.ListingID] = g
				gapOrder = append(gapOrder, c.ListingID)
			}
			g.rows++
			facts = append(facts, f)
			continue
		}
		b, ok := base[c.ListingID]
		if !ok {
			return nil, errors.Errorf("listing %s is in the listing dimension but not in the listing records", c.ListingID)
		}
		f.ListingID = &listingID
		f.DefaultPrice = b.price
		switch a.Policy {
		case stardwh.LocationCoordinates:
			coords := b.coords
			f.Coordinates = &coords
		default:
			locID, ok := dims.Location.Lookup.ID(b.coords.Key())
			if !ok {
				return nil, errors.Errorf("listing %s: coordinates %s missing from location dimension", c.ListingID, b.coords.Key())
			}
			f.LocationID = &locID
		}
		facts = append(facts, f)
	}

	if len(facts) != len(cal) {
		return nil, errors.Errorf("assembled %d facts from %d calendar rows", len(facts), len(cal))
	}

	for _, id := range gapOrder {
		g := gaps[id]
		a.Warnings.Add(stardwh.Warning{
			Kind:    stardwh.ReferentialGap,
			Table:   stardwh.TableFact,
			Key:     id,
			Message: fmt.Sprintf("listing not in %s; %d calendar row(s) from line %d have null listing and location keys", stardwh.TableListing, g.rows, g.firstLine),
		})
	}
	return facts, nil
}
