// Package etl wires extraction, transformation and loading into one run.
package etl

import (
	"context"
	"io"
	"os"
	"sort"
	"time"

	"github.com/pilosa/stardwh"
	"github.com/pilosa/stardwh/aws/s3"
	"github.com/pilosa/stardwh/boltdb"
	"github.com/pilosa/stardwh/borough"
	"github.com/pilosa/stardwh/boundary"
	"github.com/pilosa/stardwh/csv"
	"github.com/pilosa/stardwh/geohash"
	"github.com/pilosa/stardwh/leveldb"
	"github.com/pilosa/stardwh/postgres"
	"github.com/pilosa/stardwh/termstat"
	"github.com/pilosa/stardwh/transform"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Main holds all config for a run.
type Main struct {
	Calendar        string `help:"Calendar CSV. Local path, http(s) URL or s3://bucket/key."`
	Listings        string `help:"Listings CSV."`
	ListingsDetails string `help:"Listing details CSV."`
	Neighbourhoods  string `help:"Neighbourhood to borough mapping CSV."`
	Geojson         string `help:"Optional neighbourhood boundary GeoJSON, used for diagnostics only."`

	DatabaseURL      string `help:"PostgreSQL connection URL. The database is created if it doesn't exist."`
	LocationPolicy   string `help:"How facts reference locations: surrogate (location_id) or coordinates (latitude/longitude)."`
	KeyStore         string `help:"Where surrogate keys are allocated: memory, bolt or leveldb."`
	KeyStorePath     string `help:"File (bolt) or directory (leveldb) for the key store. It is reset at the start of each run."`
	GeohashPrecision int    `help:"Length of the geohash stored with each location."`
	ChunkSize        int    `help:"Rows per insert batch when loading dimensions."`
	MaxRetries       int    `help:"Attempts per source file before giving up."`
	Region           string `help:"AWS region for s3:// sources."`
	SkipLoad         bool   `help:"Extract, transform and verify, but don't touch the database."`
	Progress         bool   `help:"Print load progress to stderr."`
	Verbose          bool   `help:"Enable verbose logging."`
	LogPath          string `help:"Log file to write to. Empty means stderr."`

	// LoadTables replaces the PostgreSQL loader when set.
	LoadTables func(ctx context.Context, tables []*stardwh.Table) error `flag:"-"`

	log    *logrus.Logger
	stats  stardwh.Statter
	policy stardwh.LocationPolicy

	closers []io.Closer
}

// NewMain gets a new Main with the default configuration.
func NewMain() *Main {
	return &Main{
		DatabaseURL:      "postgres://postgres@localhost:5432/airbnb",
		LocationPolicy:   stardwh.LocationSurrogate.String(),
		KeyStore:         "memory",
		GeohashPrecision: geohash.DefaultPrecision,
		ChunkSize:        postgres.DefaultChunkSize,
		MaxRetries:       3,
		Region:           "us-east-1",
	}
}

// Log returns the run's logger. It is nil until Run starts.
func (m *Main) Log() *logrus.Logger { return m.log }

func (m *Main) validate() (err error) {
	for _, src := range []struct{ name, path string }{
		{"calendar", m.Calendar},
		{"listings", m.Listings},
		{"listings-details", m.ListingsDetails},
		{"neighbourhoods", m.Neighbourhoods},
	} {
		if src.path == "" {
			return errors.Errorf("%s is required", src.name)
		}
	}
	m.policy, err = stardwh.ParseLocationPolicy(m.LocationPolicy)
	if err != nil {
		return err
	}
	switch m.KeyStore {
	case "", "memory":
	case "bolt", "leveldb":
		if m.KeyStorePath == "" {
			return errors.Errorf("key-store %s needs key-store-path", m.KeyStore)
		}
	default:
		return errors.Errorf("unknown key-store '%s' (want memory, bolt or leveldb)", m.KeyStore)
	}
	if !m.SkipLoad && m.DatabaseURL == "" && m.LoadTables == nil {
		return errors.New("database-url is required unless skip-load is set")
	}
	return nil
}

func (m *Main) setupLog() error {
	m.log = logrus.New()
	m.log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	m.log.SetLevel(logrus.InfoLevel)
	if m.Verbose {
		m.log.SetLevel(logrus.DebugLevel)
	}
	m.log.SetOutput(os.Stderr)
	if m.LogPath != "" {
		f, err := os.OpenFile(m.LogPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
		if err != nil {
			return errors.Wrap(err, "opening log file")
		}
		m.log.SetOutput(f)
		m.closers = append(m.closers, f)
	}
	return nil
}

type keyStore interface {
	stardwh.Translator
	io.Closer
}

func (m *Main) openKeyStore() (keyStore, error) {
	dims := []string{stardwh.DimListing, stardwh.DimLocation, stardwh.DimDate}
	switch m.KeyStore {
	case "bolt":
		bt, err := boltdb.NewTranslator(m.KeyStorePath, dims...)
		if err != nil {
			return nil, err
		}
		return bt, nil
	case "leveldb":
		lt, err := leveldb.NewTranslator(m.KeyStorePath, dims...)
		if err != nil {
			return nil, err
		}
		return lt, nil
	default:
		return stardwh.NewMapTranslator(), nil
	}
}

func (m *Main) close() {
	for i := len(m.closers) - 1; i >= 0; i-- {
		if err := m.closers[i].Close(); err != nil && m.log != nil {
			m.log.Warnf("closing: %v", err)
		}
	}
	m.closers = nil
}

// Run runs the ETL once.
func (m *Main) Run() error {
	return m.RunContext(context.Background())
}

// RunContext extracts the sources, builds and verifies the star schema and,
// unless SkipLoad is set, replaces the tables in the database. Nothing is
// written when extraction, transformation or verification fails.
func (m *Main) RunContext(ctx context.Context) error {
	start := time.Now()
	if err := m.setupLog(); err != nil {
		return errors.Wrap(err, "setting up logging")
	}
	defer m.close()
	if err := m.validate(); err != nil {
		return errors.Wrap(err, "validating configuration")
	}

	m.stats = stardwh.NopStatter{}
	if m.Progress {
		tc := termstat.NewCollector(os.Stderr, 2*time.Second)
		m.stats = tc
		m.closers = append(m.closers, tc)
	}

	keys, err := m.openKeyStore()
	if err != nil {
		return errors.Wrap(err, "opening key store")
	}
	m.closers = append(m.closers, keys)

	enc, err := geohash.NewEncoder(m.GeohashPrecision)
	if err != nil {
		return err
	}

	ex := csv.NewExtractor(
		csv.WithMaxRetries(m.MaxRetries),
		csv.WithLogger(m.log),
		s3.NewOpeners(m.Region).Option(),
	)
	src, err := ex.Extract(csv.Paths{
		Calendar:       m.Calendar,
		Listings:       m.Listings,
		Details:        m.ListingsDetails,
		Neighbourhoods: m.Neighbourhoods,
	})
	if err != nil {
		return errors.Wrap(err, "extracting")
	}
	var bounds *boundary.Set
	if m.Geojson != "" {
		if bounds, err = m.checkBoundaries(ex, src); err != nil {
			return err
		}
	}

	tr := &transform.Transformer{
		Policy:     m.policy,
		Translator: keys,
		Geohash:    enc,
		Log:        m.log,
		Stats:      m.stats,
	}
	res, err := tr.Transform(src)
	if err != nil {
		return errors.Wrap(err, "transforming")
	}
	m.summarize(res)
	if bounds != nil {
		m.suggestBoroughs(bounds, res.Locations)
	}

	if m.SkipLoad {
		m.log.Printf("skipping load; done in %v", time.Since(start))
		return nil
	}
	if err := m.load(ctx, res.Tables()); err != nil {
		return errors.Wrap(err, "loading")
	}
	m.log.Printf("done in %v", time.Since(start))
	return nil
}

func (m *Main) checkBoundaries(ex *csv.Extractor, src *stardwh.Sources) (*boundary.Set, error) {
	data, err := ex.Fetch(m.Geojson)
	if err != nil {
		return nil, errors.Wrap(err, "fetching boundaries")
	}
	set, err := boundary.Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing boundaries from %s", m.Geojson)
	}
	m.log.Printf("read %d neighbourhood boundaries covering %d neighbourhoods", len(set.Features), len(set.Names()))
	names := borough.NewResolver(src.Neighbourhoods, nil).Neighbourhoods()
	sort.Strings(names)
	if missing := set.Missing(names); len(missing) > 0 {
		m.log.Warnf("%d mapped neighbourhoods have no boundary: %v", len(missing), missing)
	}
	return set, nil
}

// suggestBoroughs logs, for each location left without a borough, the
// boundary features whose bounding box holds it.
func (m *Main) suggestBoroughs(set *boundary.Set, locs []stardwh.LocationDim) {
	for _, l := range locs {
		if l.Borough != nil {
			continue
		}
		if candidates := set.Candidates(l.Coordinates); len(candidates) > 0 {
			m.log.Printf("location %s (%s) has no borough; boundary candidates: %v", l.Coordinates.Key(), l.Neighbourhood, candidates)
		}
	}
}

func (m *Main) summarize(res *transform.Result) {
	m.log.Printf("%s: %d rows, %s: %d rows, %s: %d rows, %s: %d rows",
		stardwh.TableListing, len(res.Listings),
		stardwh.TableLocation, len(res.Locations),
		stardwh.TableDate, len(res.Dates),
		stardwh.TableFact, len(res.Facts))
	counts := map[stardwh.WarningKind]int{}
	for _, w := range res.Warnings {
		counts[w.Kind]++
	}
	if len(res.Warnings) > 0 {
		m.log.Warnf("%d warnings: %d %s, %d %s", len(res.Warnings),
			counts[stardwh.ReferentialGap], stardwh.ReferentialGap,
			counts[stardwh.DuplicateKey], stardwh.DuplicateKey)
	}
	if len(res.UnmatchedNeighbourhoods) > 0 {
		m.log.Printf("%d neighbourhoods have no borough: %v", len(res.UnmatchedNeighbourhoods), res.UnmatchedNeighbourhoods)
	}
}

func (m *Main) load(ctx context.Context, tables []*stardwh.Table) error {
	if m.LoadTables != nil {
		return m.LoadTables(ctx, tables)
	}
	if err := postgres.EnsureDatabase(ctx, m.DatabaseURL, m.log); err != nil {
		return errors.Wrap(err, "ensuring database")
	}
	pool, err := postgres.Connect(ctx, m.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "connecting")
	}
	defer pool.Close()
	loader := postgres.NewLoader(pool,
		postgres.OptChunkSize(m.ChunkSize),
		postgres.OptLogger(m.log),
		postgres.OptStatter(m.stats),
	)
	return loader.LoadAll(ctx, tables, stardwh.TableFact)
}
