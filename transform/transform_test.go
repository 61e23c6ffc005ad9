package transform_test

import (
	"reflect"
	"testing"

	"github.com/pilosa/stardwh"
	"github.com/pilosa/stardwh/mock"
	"github.com/pilosa/stardwh/test"
	"github.com/pilosa/stardwh/transform"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestScenario(t *testing.T) {
	res, err := transform.NewTransformer(stardwh.LocationSurrogate).Transform(test.Scenario())
	require.NoError(t, err)

	require.Len(t, res.Listings, 1)
	require.Equal(t, uint64(1), res.Listings[0].ID)
	require.Equal(t, "A123", res.Listings[0].NaturalKey)

	require.Len(t, res.Locations, 1)
	loc := res.Locations[0]
	require.Equal(t, uint64(1), loc.ID)
	require.Equal(t, stardwh.Coordinates{Latitude: 40.7, Longitude: -74.0}, loc.Coordinates)
	require.Equal(t, "midtown", loc.Neighbourhood)
	require.NotNil(t, loc.Borough)
	require.Equal(t, "Manhattan", *loc.Borough)
	require.Len(t, loc.Geohash, 7)

	require.Len(t, res.Dates, 2)
	require.Equal(t, "2021-01-01", res.Dates[0].Date.Format(stardwh.DateLayout))
	require.Equal(t, "2021-01-02", res.Dates[1].Date.Format(stardwh.DateLayout))

	tables := res.Tables()
	require.Len(t, tables, 4)
	facts := tables[3]
	require.Equal(t, stardwh.TableFact, facts.Name)
	require.Equal(t, []string{"listing_id", "location_id", "date_id", "daily_price", "default_price", "occupied_flag"}, facts.ColumnNames())
	require.Len(t, facts.Rows, 2)

	exp := [][]interface{}{
		{int64(1), int64(1), int64(1), "100.00", "110", int16(0)},
		{int64(1), int64(1), int64(2), "120.50", "110", int16(1)},
	}
	for i, e := range exp {
		row := facts.Rows[i]
		require.Equal(t, e[0], row[0], "listing_id")
		require.Equal(t, e[1], row[1], "location_id")
		require.Equal(t, e[2], row[2], "date_id")
		daily := row[3].(decimal.NullDecimal)
		require.True(t, daily.Decimal.Equal(decimal.RequireFromString(e[3].(string))), "daily_price %v", daily.Decimal)
		def := row[4].(decimal.NullDecimal)
		require.True(t, def.Decimal.Equal(decimal.RequireFromString(e[4].(string))), "default_price %v", def.Decimal)
		require.Equal(t, e[5], row[5], "occupied_flag")
	}
	require.Empty(t, res.Warnings)
	require.Empty(t, res.UnmatchedNeighbourhoods)
}

func TestIdempotent(t *testing.T) {
	for _, policy := range []stardwh.LocationPolicy{stardwh.LocationSurrogate, stardwh.LocationCoordinates} {
		t.Run(policy.String(), func(t *testing.T) {
			src := test.Market()
			first, err := transform.NewTransformer(policy).Transform(src)
			require.NoError(t, err)
			second, err := transform.NewTransformer(policy).Transform(src)
			require.NoError(t, err)
			if !reflect.DeepEqual(first.Tables(), second.Tables()) {
				t.Fatalf("tables differ between runs")
			}
			require.Equal(t, first.Warnings, second.Warnings)
			require.Equal(t, test.Market(), src, "sources untouched")
		})
	}
}

func TestMarket(t *testing.T) {
	stats := &mock.RecordingStatter{}
	logs := &mock.RecordingLogger{}
	tr := transform.NewTransformer(stardwh.LocationSurrogate)
	tr.Stats = stats
	tr.Log = logs

	res, err := tr.Transform(test.Market())
	require.NoError(t, err)

	require.Len(t, res.Listings, 4)
	require.Len(t, res.Locations, 3)
	require.Len(t, res.Dates, 4)
	require.Len(t, res.Facts, 6)

	require.Equal(t, "Brooklyn", *res.Locations[0].Borough)
	require.Equal(t, "Manhattan", *res.Locations[1].Borough)
	require.Nil(t, res.Locations[2].Borough)
	require.Equal(t, []string{"nowhere special"}, res.UnmatchedNeighbourhoods)

	require.Len(t, res.Warnings, 2)
	require.Equal(t, stardwh.ReferentialGap, res.Warnings[0].Kind)
	require.Equal(t, "GHOST", res.Warnings[0].Key)
	require.Equal(t, stardwh.DuplicateKey, res.Warnings[1].Kind)
	require.Equal(t, "L2", res.Warnings[1].Key)
	require.Len(t, logs.Warns, 2)

	require.Equal(t, int64(1), stats.Counts["warnings.referential-gap"])
	require.Equal(t, int64(1), stats.Counts["warnings.duplicate-key"])
	require.Equal(t, float64(6), stats.Gauges["rows.fact_daily_revenue"])

	loc := res.Tables()[1]
	require.Nil(t, loc.Rows[2][5], "unmatched borough is NULL")
}

func TestParseErrorAborts(t *testing.T) {
	src := test.Scenario()
	src.Calendar[1].Price = "$12..0"
	res, err := transform.NewTransformer(stardwh.LocationSurrogate).Transform(src)
	require.Nil(t, res)
	perr, ok := errors.Cause(err).(*stardwh.ParseError)
	require.True(t, ok, "got %T: %v", err, err)
	require.Equal(t, "calendar", perr.Table)
	require.Equal(t, 3, perr.Line)
	require.Equal(t, "price", perr.Field)
}

func TestStaleKeyStoreAborts(t *testing.T) {
	tr := transform.NewTransformer(stardwh.LocationSurrogate)
	tr.Translator = stardwh.NewMapTranslator()
	_, err := tr.Translator.GetID(stardwh.DimListing, "OLD")
	require.NoError(t, err)
	_, err = tr.Transform(test.Scenario())
	require.Error(t, err)
	require.Contains(t, err.Error(), "building listing dimension")
}

func TestTransformerIsReusable(t *testing.T) {
	tr := transform.NewTransformer(stardwh.LocationSurrogate)
	first, err := tr.Transform(test.Scenario())
	require.NoError(t, err)
	require.Len(t, first.Dates, 2)

	res, err := tr.Transform(test.Market())
	require.NoError(t, err)
	require.Len(t, res.Listings, 4)
	require.Len(t, res.Dates, 4)
	require.Equal(t, uint64(1), res.Dates[0].ID)
	require.Equal(t, "2021-02-28", res.Dates[0].Date.Format(stardwh.DateLayout))

	again, err := tr.Transform(test.Scenario())
	require.NoError(t, err)
	if !reflect.DeepEqual(first.Tables(), again.Tables()) {
		t.Fatalf("reused transformer produced different tables")
	}
}

func TestInjectedKeyStoreServesOneRun(t *testing.T) {
	tr := transform.NewTransformer(stardwh.LocationSurrogate)
	tr.Translator = stardwh.NewMapTranslator()
	_, err := tr.Transform(test.Scenario())
	require.NoError(t, err)
	_, err = tr.Transform(test.Scenario())
	require.Error(t, err)
	require.Contains(t, err.Error(), "is the store fresh?")
}

func TestRepeatedListingWithNewPriceAndPoint(t *testing.T) {
	src := test.Scenario()
	moved := src.Listings[0]
	moved.Latitude = 41.0
	moved.Price = "$999"
	moved.Line = 3
	src.Listings = append(src.Listings, moved)

	res, err := transform.NewTransformer(stardwh.LocationSurrogate).Transform(src)
	require.NoError(t, err)

	require.Len(t, res.Listings, 1)
	require.Len(t, res.Locations, 2, "every source point keeps a location row")
	require.Len(t, res.Warnings, 1)
	w := res.Warnings[0]
	require.Equal(t, stardwh.DuplicateKey, w.Kind)
	require.Equal(t, stardwh.TableListing, w.Table)
	require.Equal(t, "A123", w.Key)
	require.Contains(t, w.Message, "line 3 conflicts with line 2 on price, coordinates; keeping line 2")

	for _, f := range res.Facts {
		require.Equal(t, uint64(1), *f.LocationID, "facts follow the first row's point")
		require.True(t, f.DefaultPrice.Decimal.Equal(decimal.NewFromInt(110)))
	}
}
