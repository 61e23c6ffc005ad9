// Package transform runs the in-memory part of the pipeline: it takes
// extracted source rows and returns verified star schema tables.
package transform

import (
	"time"

	"github.com/pilosa/stardwh"
	"github.com/pilosa/stardwh/borough"
	"github.com/pilosa/stardwh/dimension"
	"github.com/pilosa/stardwh/fact"
	"github.com/pilosa/stardwh/geohash"
	"github.com/pilosa/stardwh/normalize"
	"github.com/pilosa/stardwh/verify"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Transformer holds the configuration of a transform. The zero value uses
// the surrogate location policy with no geohash and no logging.
type Transformer struct {
	Policy stardwh.LocationPolicy
	// Translator allocates surrogate keys. When nil each call to Transform
	// gets a fresh in-memory store; an injected store must be empty and
	// serves a single call.
	Translator stardwh.Translator
	// Geohash is optional.
	Geohash *geohash.Encoder

	Log   stardwh.Logger
	Stats stardwh.Statter
}

// NewTransformer returns a Transformer that keys every run from a fresh
// in-memory store, with the default geohash precision and no logging.
func NewTransformer(policy stardwh.LocationPolicy) *Transformer {
	enc, _ := geohash.NewEncoder(geohash.DefaultPrecision)
	return &Transformer{
		Policy:  policy,
		Geohash: enc,
		Log:     stardwh.NopLogger{},
		Stats:   stardwh.NopStatter{},
	}
}

// Result is the output of a successful transform.
type Result struct {
	Policy    stardwh.LocationPolicy
	Listings  []stardwh.ListingDim
	Locations []stardwh.LocationDim
	Dates     []stardwh.DateDim
	Facts     []stardwh.Fact

	// UnmatchedNeighbourhoods are the location neighbourhoods without a
	// borough.
	UnmatchedNeighbourhoods []string
	Warnings                []stardwh.Warning
}

// Tables renders the result in load order: the dimensions, then the facts.
func (r *Result) Tables() []*stardwh.Table {
	return []*stardwh.Table{
		stardwh.ListingTable(r.Listings),
		stardwh.LocationTable(r.Locations),
		stardwh.DateTable(r.Dates),
		stardwh.FactTable(r.Facts, r.Policy),
	}
}

func (t *Transformer) timed(stage string, start time.Time) {
	d := time.Since(start)
	t.Stats.Timing("transform."+stage, d, 1)
	t.Log.Debugf("%s took %v", stage, d)
}

// Transform builds and verifies the star schema for src. src is not
// modified. On error no partial result is returned.
func (t *Transformer) Transform(src *stardwh.Sources) (*Result, error) {
	keys := t.Translator
	if keys == nil {
		keys = stardwh.NewMapTranslator()
	}
	if t.Log == nil {
		t.Log = stardwh.NopLogger{}
	}
	if t.Stats == nil {
		t.Stats = stardwh.NopStatter{}
	}
	report := stardwh.NewReport(t.Log, t.Stats)

	start := time.Now()
	cal, err := normalize.Calendar(src.Calendar)
	if err != nil {
		return nil, errors.Wrap(err, "normalizing calendar")
	}
	listings, err := normalize.Listings(src.Listings, src.Details)
	if err != nil {
		return nil, errors.Wrap(err, "normalizing listings")
	}
	t.timed("normalize", start)

	start = time.Now()
	b := &dimension.Builder{Translator: keys, Warnings: report, Geohash: t.Geohash}
	var dims dimension.Dimensions
	eg := errgroup.Group{}
	eg.Go(func() (err error) {
		dims.Listing, err = b.Listings(listings)
		return errors.Wrap(err, "building listing dimension")
	})
	eg.Go(func() (err error) {
		dims.Location, err = b.Locations(listings)
		return errors.Wrap(err, "building location dimension")
	})
	eg.Go(func() (err error) {
		dims.Date, err = b.Dates(cal)
		return errors.Wrap(err, "building date dimension")
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	t.timed("dimensions", start)

	resolver := borough.NewResolver(src.Neighbourhoods, report)
	locations := resolver.Resolve(dims.Location.Rows)
	dims.Location = &dimension.LocationDimension{Rows: locations, Lookup: dims.Location.Lookup}

	start = time.Now()
	facts, err := fact.NewAssembler(t.Policy, report).Assemble(cal, listings, dims)
	if err != nil {
		return nil, errors.Wrap(err, "assembling facts")
	}
	t.timed("facts", start)

	err = verify.Check(verify.Input{
		Calendar: cal,
		Listings: listings,
		Dims:     dims,
		Facts:    facts,
		Policy:   t.Policy,
	})
	if err != nil {
		return nil, errors.Wrap(err, "verifying star schema")
	}

	res := &Result{
		Policy:                  t.Policy,
		Listings:                dims.Listing.Rows,
		Locations:               locations,
		Dates:                   dims.Date.Rows,
		Facts:                   facts,
		UnmatchedNeighbourhoods: resolver.Unmatched(locations),
		Warnings:                report.Warnings(),
	}
	t.Stats.Gauge("rows."+stardwh.TableListing, float64(len(res.Listings)), 1)
	t.Stats.Gauge("rows."+stardwh.TableLocation, float64(len(res.Locations)), 1)
	t.Stats.Gauge("rows."+stardwh.TableDate, float64(len(res.Dates)), 1)
	t.Stats.Gauge("rows."+stardwh.TableFact, float64(len(res.Facts)), 1)
	return res, nil
}
