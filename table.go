package stardwh

import (
	"strings"

	"github.com/pkg/errors"
)

// Table names in the destination.
const (
	TableListing  = "dim_listing"
	TableLocation = "dim_location"
	TableDate     = "dim_date"
	TableFact     = "fact_daily_revenue"
)

// LocationPolicy decides how a fact row references its location.
type LocationPolicy int

const (
	// LocationSurrogate stores the location dimension's surrogate key.
	LocationSurrogate LocationPolicy = iota
	// LocationCoordinates stores the raw latitude and longitude.
	LocationCoordinates
)

func (p LocationPolicy) String() string {
	switch p {
	case LocationSurrogate:
		return "surrogate"
	case LocationCoordinates:
		return "coordinates"
	default:
		return "unknown"
	}
}

// ParseLocationPolicy is the inverse of LocationPolicy.String.
func ParseLocationPolicy(s string) (LocationPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "surrogate":
		return LocationSurrogate, nil
	case "coordinates":
		return LocationCoordinates, nil
	default:
		return 0, errors.Errorf("unknown location policy '%s' (want surrogate or coordinates)", s)
	}
}

// ColumnType is the logical type of a column; loaders map it to their own
// type names.
type ColumnType int

const (
	BigInt ColumnType = iota
	Integer
	SmallInt
	Double
	Numeric
	Text
	Date
)

// Column describes one column of a Table.
type Column struct {
	Name       string
	Type       ColumnType
	Nullable   bool
	PrimaryKey bool
}

// Table is a finished table handed to a loader. Rows hold plain Go values
// (int64, float64, string, time.Time, decimal.NullDecimal) or nil for NULL.
type Table struct {
	Name    string
	Columns []Column
	Rows    [][]interface{}
}

// ColumnNames returns the names of t's columns in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

func nullableKey(id *uint64) interface{} {
	if id == nil {
		return nil
	}
	return int64(*id)
}

// ListingTable renders the listing dimension.
func ListingTable(rows []ListingDim) *Table {
	t := &Table{
		Name: TableListing,
		Columns: []Column{
			{Name: "listing_id_surrogate", Type: BigInt, PrimaryKey: true},
			{Name: "ListingID_BK", Type: Text},
			{Name: "name", Type: Text},
			{Name: "property_type", Type: Text},
			{Name: "room_type", Type: Text},
			{Name: "host", Type: Text},
			{Name: "description", Type: Text},
		},
		Rows: make([][]interface{}, 0, len(rows)),
	}
	for _, r := range rows {
		t.Rows = append(t.Rows, []interface{}{int64(r.ID), r.NaturalKey, r.Name, r.PropertyType, r.RoomType, r.Host, r.Description})
	}
	return t
}

// LocationTable renders the location dimension.
func LocationTable(rows []LocationDim) *Table {
	t := &Table{
		Name: TableLocation,
		Columns: []Column{
			{Name: "location_id", Type: BigInt, PrimaryKey: true},
			{Name: "latitude", Type: Double},
			{Name: "longitude", Type: Double},
			{Name: "neighborhood", Type: Text},
			{Name: "city", Type: Text},
			{Name: "borough", Type: Text, Nullable: true},
			{Name: "geohash", Type: Text},
		},
		Rows: make([][]interface{}, 0, len(rows)),
	}
	for _, r := range rows {
		var borough interface{}
		if r.Borough != nil {
			borough = *r.Borough
		}
		t.Rows = append(t.Rows, []interface{}{int64(r.ID), r.Latitude, r.Longitude, r.Neighbourhood, r.City, borough, r.Geohash})
	}
	return t
}

// DateTable renders the date dimension.
func DateTable(rows []DateDim) *Table {
	t := &Table{
		Name: TableDate,
		Columns: []Column{
			{Name: "date_id", Type: BigInt, PrimaryKey: true},
			{Name: "full_date", Type: Date},
			{Name: "day", Type: Integer},
			{Name: "month", Type: Integer},
			{Name: "quarter", Type: Integer},
			{Name: "year", Type: Integer},
			{Name: "week", Type: Integer},
			{Name: "season", Type: Text},
		},
		Rows: make([][]interface{}, 0, len(rows)),
	}
	for _, r := range rows {
		t.Rows = append(t.Rows, []interface{}{int64(r.ID), r.Date, r.Day, r.Month, r.Quarter, r.Year, r.Week, string(r.Season)})
	}
	return t
}

// FactTable renders the fact table. Its location columns follow policy.
func FactTable(facts []Fact, policy LocationPolicy) *Table {
	cols := []Column{{Name: "listing_id", Type: BigInt, Nullable: true}}
	if policy == LocationCoordinates {
		cols = append(cols,
			Column{Name: "latitude", Type: Double, Nullable: true},
			Column{Name: "longitude", Type: Double, Nullable: true})
	} else {
		cols = append(cols, Column{Name: "location_id", Type: BigInt, Nullable: true})
	}
	cols = append(cols,
		Column{Name: "date_id", Type: BigInt},
		Column{Name: "daily_price", Type: Numeric, Nullable: true},
		Column{Name: "default_price", Type: Numeric, Nullable: true},
		Column{Name: "occupied_flag", Type: SmallInt},
	)
	t := &Table{
		Name:    TableFact,
		Columns: cols,
		Rows:    make([][]interface{}, 0, len(facts)),
	}
	for _, f := range facts {
		row := make([]interface{}, 0, len(cols))
		row = append(row, nullableKey(f.ListingID))
		if policy == LocationCoordinates {
			if f.Coordinates != nil {
				row = append(row, f.Coordinates.Latitude, f.Coordinates.Longitude)
			} else {
				row = append(row, nil, nil)
			}
		} else {
			row = append(row, nullableKey(f.LocationID))
		}
		row = append(row, int64(f.DateID), f.DailyPrice, f.DefaultPrice, int16(f.Occupied))
		t.Rows = append(t.Rows, row)
	}
	return t
}
