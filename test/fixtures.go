package test

import (
	"github.com/pilosa/stardwh"
)

// Scenario returns the two-day, one-listing extract used throughout the
// tests: listing A123 at (40.7, -74.0) with a $110 baseline, available on
// 2021-01-01 for $100.00 and occupied on 2021-01-02 for $120.50.
func Scenario() *stardwh.Sources {
	return &stardwh.Sources{
		Calendar: []stardwh.CalendarRow{
			{ListingID: "A123", Date: "2021-01-01", Available: "t", Price: "$100.00", Line: 2},
			{ListingID: "A123", Date: "2021-01-02", Available: "f", Price: "$120.50", Line: 3},
		},
		Listings: []stardwh.ListingRow{
			{
				ID:            "A123",
				Name:          "Sunny loft",
				HostName:      "Sam",
				Price:         "$110",
				Latitude:      40.7,
				Longitude:     -74.0,
				Neighbourhood: "  Midtown ",
				City:          "New York",
				Line:          2,
			},
		},
		Details: []stardwh.ListingDetailRow{
			{ID: "A123", PropertyType: "Apartment", RoomType: "Entire home/apt", Description: "Bright and central", Line: 2},
		},
		Neighbourhoods: []stardwh.NeighbourhoodRow{
			{Group: "Manhattan", Neighbourhood: "Midtown", Line: 2},
		},
	}
}

// Market returns a larger extract with the awkward cases: a duplicated
// listing with conflicting attributes, two listings sharing coordinates, a
// neighbourhood without a borough, calendar dates out of order, and a
// calendar row for a listing that is not in the listings file.
func Market() *stardwh.Sources {
	return &stardwh.Sources{
		Calendar: []stardwh.CalendarRow{
			{ListingID: "L2", Date: "2021-03-02", Available: "t", Price: "$1,050.00", Line: 2},
			{ListingID: "L1", Date: "2021-03-01", Available: "f", Price: "$80.00", Line: 3},
			{ListingID: "L3", Date: "2021-02-28", Available: "t", Price: "", Line: 4},
			{ListingID: "GHOST", Date: "2021-03-01", Available: "t", Price: "$10", Line: 5},
			{ListingID: "L1", Date: "2021-03-02", Available: "t", Price: "$85.00", Line: 6},
			{ListingID: "GHOST", Date: "2021-03-03", Available: "f", Price: "$10", Line: 7},
		},
		Listings: []stardwh.ListingRow{
			{ID: "L2", Name: "Loft", HostName: "Ana", Price: "$1,000", Latitude: 40.71, Longitude: -73.95, Neighbourhood: "Williamsburg", City: "New York", Line: 2},
			{ID: "L1", Name: "Studio", HostName: "Bo", Price: "$75.50", Latitude: 40.75, Longitude: -73.99, Neighbourhood: "MIDTOWN", City: "New York", Line: 3},
			{ID: "L2", Name: "Loft (renamed)", HostName: "Ana", Price: "$999", Latitude: 40.71, Longitude: -73.95, Neighbourhood: "Williamsburg", City: "New York", Line: 4},
			{ID: "L3", Name: "Room", HostName: "Cy", Price: "", Latitude: 40.75, Longitude: -73.99, Neighbourhood: "midtown", City: "New York", Line: 5},
			{ID: "L4", Name: "Cabin", HostName: "Di", Price: "$60", Latitude: 40.6, Longitude: -74.1, Neighbourhood: "Nowhere Special", City: "New York", Line: 6},
		},
		Details: []stardwh.ListingDetailRow{
			{ID: "L1", PropertyType: "Apartment", RoomType: "Private room", Description: "Small", Line: 2},
			{ID: "L2", PropertyType: "Loft", RoomType: "Entire home/apt", Description: "Big", Line: 3},
		},
		Neighbourhoods: []stardwh.NeighbourhoodRow{
			{Group: "Brooklyn", Neighbourhood: "Williamsburg", Line: 2},
			{Group: "Manhattan", Neighbourhood: " Midtown", Line: 3},
		},
	}
}
