// Package normalize casts raw extract rows into typed records. Every function
// is pure: inputs are never modified and a malformed value fails the whole
// batch rather than producing partial output.
package normalize

import (
	"strings"
	"time"

	"github.com/pilosa/stardwh"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	calendarTable = "calendar"
	listingsTable = "listings"
)

var priceCleaner = strings.NewReplacer("$", "", ",", "")

// Text trims surrounding whitespace and lower-cases s. Both sides of a
// neighbourhood join go through it.
func Text(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ParsePrice parses a currency string such as "$1,050.00". An empty string
// is a missing price and yields an invalid NullDecimal; anything else that
// isn't a non-negative number is an error.
func ParsePrice(raw string) (decimal.NullDecimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	s = strings.TrimSpace(priceCleaner.Replace(s))
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, errors.Wrap(err, "not a number")
	}
	if d.IsNegative() {
		return decimal.NullDecimal{}, errors.Errorf("negative price %s", d)
	}
	return decimal.NewNullDecimal(d), nil
}

// ParseDate parses a calendar date in stardwh.DateLayout. The result is
// midnight UTC.
func ParseDate(raw string) (time.Time, error) {
	d, err := time.Parse(stardwh.DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, err
	}
	return d.UTC(), nil
}

// OccupiedFlag is 0 when the availability flag is exactly "t" and 1
// otherwise.
func OccupiedFlag(available string) uint8 {
	if available == "t" {
		return 0
	}
	return 1
}

// Calendar normalizes calendar rows in order.
func Calendar(rows []stardwh.CalendarRow) ([]stardwh.CalendarRecord, error) {
	recs := make([]stardwh.CalendarRecord, 0, len(rows))
	for _, r := range rows {
		if strings.TrimSpace(r.ListingID) == "" {
			return nil, &stardwh.ParseError{Table: calendarTable, Line: r.Line, Field: "listing_id", Value: r.ListingID, Err: errors.New("empty key")}
		}
		date, err := ParseDate(r.Date)
		if err != nil {
			return nil, &stardwh.ParseError{Table: calendarTable, Line: r.Line, Field: "date", Value: r.Date, Err: err}
		}
		price, err := ParsePrice(r.Price)
		if err != nil {
			return nil, &stardwh.ParseError{Table: calendarTable, Line: r.Line, Field: "price", Value: r.Price, Err: err}
		}
		recs = append(recs, stardwh.CalendarRecord{
			ListingID: strings.TrimSpace(r.ListingID),
			Date:      date,
			Price:     price,
			Occupied:  OccupiedFlag(r.Available),
			Line:      r.Line,
		})
	}
	return recs, nil
}

// Listings normalizes listing rows and left-joins the details onto them by
// listing id. When an id has several detail rows the first one is used.
// Duplicate listing rows are kept; deduplication belongs to the dimension
// builder.
func Listings(rows []stardwh.ListingRow, details []stardwh.ListingDetailRow) ([]stardwh.ListingRecord, error) {
	byID := make(map[string]stardwh.ListingDetailRow, len(details))
	for _, d := range details {
		id := strings.TrimSpace(d.ID)
		if _, ok := byID[id]; !ok {
			byID[id] = d
		}
	}

	recs := make([]stardwh.ListingRecord, 0, len(rows))
	for _, r := range rows {
		id := strings.TrimSpace(r.ID)
		if id == "" {
			return nil, &stardwh.ParseError{Table: listingsTable, Line: r.Line, Field: "id", Value: r.ID, Err: errors.New("empty key")}
		}
		price, err := ParsePrice(r.Price)
		if err != nil {
			return nil, &stardwh.ParseError{Table: listingsTable, Line: r.Line, Field: "price", Value: r.Price, Err: err}
		}
		rec := stardwh.ListingRecord{
			ID:            id,
			Name:          strings.TrimSpace(r.Name),
			HostName:      strings.TrimSpace(r.HostName),
			DefaultPrice:  price,
			Coordinates:   r.Coordinates(),
			Neighbourhood: Text(r.Neighbourhood),
			City:          strings.TrimSpace(r.City),
			Line:          r.Line,
		}
		if d, ok := byID[id]; ok {
			rec.PropertyType = strings.TrimSpace(d.PropertyType)
			rec.RoomType = strings.TrimSpace(d.RoomType)
			rec.Description = strings.TrimSpace(d.Description)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
