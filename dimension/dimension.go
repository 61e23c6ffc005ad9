// Package dimension builds the listing, location and date dimensions from
// normalized records. Listing and location keys follow first-seen input
// order; date keys follow chronological order.
package dimension

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pilosa/stardwh"
	"github.com/pilosa/stardwh/geohash"
	"github.com/pkg/errors"
)

// Lookup maps natural keys to surrogate keys. It is read-only once built.
type Lookup struct {
	m map[string]uint64
}

func newLookup(n int) Lookup {
	return Lookup{m: make(map[string]uint64, n)}
}

// ID returns the surrogate key for key.
func (l Lookup) ID(key string) (uint64, bool) {
	id, ok := l.m[key]
	return id, ok
}

// Len is the number of natural keys in l.
func (l Lookup) Len() int { return len(l.m) }

// ListingDimension is the built listing dimension.
type ListingDimension struct {
	Rows   []stardwh.ListingDim
	Lookup Lookup
}

// LocationDimension is the built location dimension. Its lookup is keyed by
// stardwh.Coordinates.Key.
type LocationDimension struct {
	Rows   []stardwh.LocationDim
	Lookup Lookup
}

// DateDimension is the built date dimension. Its lookup is keyed by dates in
// stardwh.DateLayout.
type DateDimension struct {
	Rows   []stardwh.DateDim
	Lookup Lookup
}

// Builder allocates surrogate keys through a Translator. The three build
// methods may run concurrently.
type Builder struct {
	Translator stardwh.Translator
	Warnings   *stardwh.Report
	// Geohash is optional; without it locations get an empty geohash.
	Geohash *geohash.Encoder
}

// NewBuilder returns a Builder with an in-memory key store.
func NewBuilder(warnings *stardwh.Report) *Builder {
	if warnings == nil {
		warnings = stardwh.NewReport(nil, nil)
	}
	return &Builder{
		Translator: stardwh.NewMapTranslator(),
		Warnings:   warnings,
	}
}

// allocate gets the key for a natural key seen for the first time, and
// checks that the key store is handing out a dense sequence.
func (b *Builder) allocate(dimension, key string, want int) (uint64, error) {
	id, err := b.Translator.GetID(dimension, key)
	if err != nil {
		return 0, errors.Wrapf(err, "allocating %s key for %q", dimension, key)
	}
	if id != uint64(want) {
		return 0, errors.Errorf("key store gave %s key %d for %q, expected %d; is the store fresh?", dimension, id, key, want)
	}
	return id, nil
}

func (b *Builder) duplicate(table, key string, line, firstLine int, fields []string) {
	b.Warnings.Add(stardwh.Warning{
		Kind:    stardwh.DuplicateKey,
		Table:   table,
		Key:     key,
		Message: fmt.Sprintf("line %d conflicts with line %d on %s; keeping line %d", line, firstLine, strings.Join(fields, ", "), firstLine),
	})
}

// Listings deduplicates listing records by listing id, keeping the first
// occurrence, and numbers the survivors from 1.
func (b *Builder) Listings(recs []stardwh.ListingRecord) (*ListingDimension, error) {
	dim := &ListingDimension{Lookup: newLookup(len(recs))}
	first := make(map[string]int, len(recs))
	for i, r := range recs {
		if j, ok := first[r.ID]; ok {
			if diff := listingConflicts(recs[j], r); len(diff) > 0 {
				b.duplicate(stardwh.TableListing, r.ID, r.Line, recs[j].Line, diff)
			}
			continue
		}
		first[r.ID] = i
		id, err := b.allocate(stardwh.DimListing, r.ID, len(dim.Rows)+1)
		if err != nil {
			return nil, err
		}
		dim.Lookup.m[r.ID] = id
		dim.Rows = append(dim.Rows, stardwh.ListingDim{
			ID:           id,
			NaturalKey:   r.ID,
			Name:         r.Name,
			PropertyType: r.PropertyType,
			RoomType:     r.RoomType,
			Host:         r.HostName,
			Description:  r.Description,
		})
	}
	return dim, nil
}

// listingConflicts names the attributes on which a repeat of a listing id
// differs from its first occurrence. Price and coordinates count: the fact
// rows take their default price and location from the first occurrence.
func listingConflicts(first, r stardwh.ListingRecord) []string {
	var diff []string
	check := func(field string, same bool) {
		if !same {
			diff = append(diff, field)
		}
	}
	check("name", first.Name == r.Name)
	check("property_type", first.PropertyType == r.PropertyType)
	check("room_type", first.RoomType == r.RoomType)
	check("host", first.HostName == r.HostName)
	check("description", first.Description == r.Description)
	check("price", first.DefaultPrice.Valid == r.DefaultPrice.Valid &&
		first.DefaultPrice.Decimal.Equal(r.DefaultPrice.Decimal))
	check("coordinates", first.Coordinates.Key() == r.Coordinates.Key())
	return diff
}

// Locations deduplicates the coordinates of listing records, keeping the
// neighbourhood and city of the first listing at each point. Boroughs are
// left unset for the borough resolver.
func (b *Builder) Locations(recs []stardwh.ListingRecord) (*LocationDimension, error) {
	dim := &LocationDimension{Lookup: newLookup(len(recs))}
	first := make(map[string]int, len(recs))
	for i, r := range recs {
		key := r.Coordinates.Key()
		if j, ok := first[key]; ok {
			var diff []string
			if recs[j].Neighbourhood != r.Neighbourhood {
				diff = append(diff, "neighbourhood")
			}
			if recs[j].City != r.City {
				diff = append(diff, "city")
			}
			if len(diff) > 0 {
				b.duplicate(stardwh.TableLocation, key, r.Line, recs[j].Line, diff)
			}
			continue
		}
		first[key] = i
		id, err := b.allocate(stardwh.DimLocation, key, len(dim.Rows)+1)
		if err != nil {
			return nil, err
		}
		dim.Lookup.m[key] = id
		loc := stardwh.LocationDim{
			ID:            id,
			Coordinates:   r.Coordinates,
			Neighbourhood: r.Neighbourhood,
			City:          r.City,
		}
		if b.Geohash != nil {
			loc.Geohash = b.Geohash.Encode(r.Coordinates)
		}
		dim.Rows = append(dim.Rows, loc)
	}
	return dim, nil
}

// Dates builds one row per distinct calendar date. Unlike the other
// dimensions keys are assigned in ascending date order, so date_id is
// monotonic with time.
func (b *Builder) Dates(recs []stardwh.CalendarRecord) (*DateDimension, error) {
	seen := make(map[string]struct{}, len(recs))
	dates := make([]time.Time, 0)
	for _, r := range recs {
		key := r.Date.Format(stardwh.DateLayout)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		dates = append(dates, r.Date)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	dim := &DateDimension{
		Rows:   make([]stardwh.DateDim, 0, len(dates)),
		Lookup: newLookup(len(dates)),
	}
	for _, d := range dates {
		key := d.Format(stardwh.DateLayout)
		id, err := b.allocate(stardwh.DimDate, key, len(dim.Rows)+1)
		if err != nil {
			return nil, err
		}
		dim.Lookup.m[key] = id
		dim.Rows = append(dim.Rows, stardwh.NewDateDim(id, d))
	}
	return dim, nil
}

// Dimensions is the complete set of built dimensions.
type Dimensions struct {
	Listing  *ListingDimension
	Location *LocationDimension
	Date     *DateDimension
}
