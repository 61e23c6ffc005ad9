package stardwh

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Dimension names, used as Translator namespaces and table suffixes.
const (
	DimListing  = "listing"
	DimLocation = "location"
	DimDate     = "date"
)

// DateLayout is the layout of calendar dates in the source and of date
// natural keys.
const DateLayout = "2006-01-02"

// CalendarRow is one raw row of the calendar extract.
type CalendarRow struct {
	ListingID string `csv:"listing_id"`
	Date      string `csv:"date"`
	Available string `csv:"available"`
	Price     string `csv:"price"`

	// Line is the 1-based line of the row in its source file.
	Line int `csv:"-"`
}

// ListingRow is one raw row of the listings extract.
type ListingRow struct {
	ID            string  `csv:"id"`
	Name          string  `csv:"name"`
	HostName      string  `csv:"host_name"`
	Price         string  `csv:"price"`
	Latitude      float64 `csv:"latitude"`
	Longitude     float64 `csv:"longitude"`
	Neighbourhood string  `csv:"neighbourhood"`
	City          string  `csv:"city"`

	Line int `csv:"-"`
}

// Coordinates returns the row's (latitude, longitude) pair.
func (r ListingRow) Coordinates() Coordinates {
	return Coordinates{Latitude: unsignedZero(r.Latitude), Longitude: unsignedZero(r.Longitude)}
}

// unsignedZero maps -0 to 0 so that equal coordinates share one key.
func unsignedZero(f float64) float64 {
	if f == 0 {
		return 0
	}
	return f
}

// ListingDetailRow is one raw row of the listing-details extract.
type ListingDetailRow struct {
	ID           string `csv:"id"`
	PropertyType string `csv:"property_type"`
	RoomType     string `csv:"room_type"`
	Description  string `csv:"description"`

	Line int `csv:"-"`
}

// NeighbourhoodRow is one row of the neighbourhood to borough mapping.
type NeighbourhoodRow struct {
	Group         string `csv:"neighbourhood_group"`
	Neighbourhood string `csv:"neighbourhood"`

	Line int `csv:"-"`
}

// Sources is everything the transform consumes, as extracted.
type Sources struct {
	Calendar       []CalendarRow
	Listings       []ListingRow
	Details        []ListingDetailRow
	Neighbourhoods []NeighbourhoodRow
}

// Coordinates is the natural key of the location dimension. Equality is
// exact.
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// Key renders c as a natural key string. Distinct coordinates always render
// differently.
func (c Coordinates) Key() string {
	return strconv.FormatFloat(unsignedZero(c.Latitude), 'g', -1, 64) + "," + strconv.FormatFloat(unsignedZero(c.Longitude), 'g', -1, 64)
}

// CalendarRecord is a normalized calendar row.
type CalendarRecord struct {
	ListingID string
	Date      time.Time
	Price     decimal.NullDecimal
	Occupied  uint8
	Line      int
}

// ListingRecord is a listing row with its details joined on and its values
// parsed.
type ListingRecord struct {
	ID            string
	Name          string
	HostName      string
	DefaultPrice  decimal.NullDecimal
	Coordinates   Coordinates
	Neighbourhood string
	City          string

	PropertyType string
	RoomType     string
	Description  string

	Line int
}

// ListingDim is a row of dim_listing.
type ListingDim struct {
	ID           uint64 // listing_id_surrogate
	NaturalKey   string // ListingID_BK
	Name         string
	PropertyType string
	RoomType     string
	Host         string
	Description  string
}

// LocationDim is a row of dim_location.
type LocationDim struct {
	ID uint64
	Coordinates
	Neighbourhood string
	City          string
	// Borough is nil when the neighbourhood has no mapping.
	Borough *string
	Geohash string
}

// Season is the meteorological season of a month.
type Season string

const (
	Winter Season = "Winter"
	Spring Season = "Spring"
	Summer Season = "Summer"
	Fall   Season = "Fall"
)

// SeasonOf maps a month onto its season: Dec-Feb winter, Mar-May spring,
// Jun-Aug summer, Sep-Nov fall.
func SeasonOf(m time.Month) Season {
	switch m {
	case time.December, time.January, time.February:
		return Winter
	case time.March, time.April, time.May:
		return Spring
	case time.June, time.July, time.August:
		return Summer
	default:
		return Fall
	}
}

// DateDim is a row of dim_date.
type DateDim struct {
	ID      uint64
	Date    time.Time
	Day     int
	Month   int
	Quarter int
	Year    int
	Week    int
	Season  Season
}

// NewDateDim derives the calendar attributes of d.
func NewDateDim(id uint64, d time.Time) DateDim {
	_, week := d.ISOWeek()
	return DateDim{
		ID:      id,
		Date:    d,
		Day:     d.Day(),
		Month:   int(d.Month()),
		Quarter: (int(d.Month())-1)/3 + 1,
		Year:    d.Year(),
		Week:    week,
		Season:  SeasonOf(d.Month()),
	}
}

// Fact is a row of fact_daily_revenue. Which of LocationID and Coordinates
// is populated depends on the location policy of the run.
type Fact struct {
	// ListingID is nil when the calendar row's listing is not in the
	// listing dimension.
	ListingID   *uint64
	LocationID  *uint64
	Coordinates *Coordinates
	DateID      uint64

	DailyPrice   decimal.NullDecimal
	DefaultPrice decimal.NullDecimal
	Occupied     uint8

	// Line is the calendar line the fact came from.
	Line int
}
