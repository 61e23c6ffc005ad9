// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

// Package csv extracts the source tables. Sources may be local files, http
// URLs or, with an opener registered for the scheme, anything else such as
// s3://bucket/key objects.
package csv

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/pilosa/stardwh"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Opener is an interface to a resource which can be repeatedly Opened (and the
// returned ReadCloser can be subsequently read). Each call to Open should
// return a ReadCloser which reads from the beginning of the resource. In the
// case of an error while reading, Open will be called again to retry reading
// the entire resource.
type Opener interface {
	Open() (io.ReadCloser, error)
}

// OpenStringer is an Opener which also has a String method which should return
// the name of the resource being opened (e.g. a file or URL).
type OpenStringer interface {
	fmt.Stringer
	Opener
}

// OpenerFunc turns a location into an OpenStringer.
type OpenerFunc func(location string) (OpenStringer, error)

// urlOpener turns a URL or file (string) into an OpenStringer.
type urlOpener string

func (u urlOpener) Open() (io.ReadCloser, error) {
	url := string(u)
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		resp, err := http.Get(url)
		if err != nil {
			return nil, errors.Wrap(err, "getting via http")
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, errors.Errorf("getting via http: status %s", resp.Status)
		}
		return resp.Body, nil
	}
	f, err := os.Open(strings.TrimPrefix(url, "file://"))
	if err != nil {
		return nil, errors.Wrap(err, "opening file")
	}
	return f, nil
}

func (u urlOpener) String() string {
	return string(u)
}

// Paths locates the source tables. Boundary is optional and is fetched
// separately with Fetch.
type Paths struct {
	Calendar       string
	Listings       string
	Details        string
	Neighbourhoods string
	Boundary       string
}

// Extractor reads the source tables. It takes care of retrying failed
// reads/downloads.
type Extractor struct {
	maxRetries int
	retryWait  time.Duration
	openers    map[string]OpenerFunc
	log        stardwh.Logger
}

// Option is a functional option to pass to NewExtractor.
type Option func(*Extractor)

// WithMaxRetries returns an Option which sets the max number of attempts per
// file.
func WithMaxRetries(maxRetries int) Option {
	return func(e *Extractor) {
		if maxRetries > 0 {
			e.maxRetries = maxRetries
		}
	}
}

// WithRetryWait sets the pause between attempts.
func WithRetryWait(d time.Duration) Option {
	return func(e *Extractor) {
		e.retryWait = d
	}
}

// WithOpener registers fn for locations starting with scheme + "://".
func WithOpener(scheme string, fn OpenerFunc) Option {
	return func(e *Extractor) {
		e.openers[scheme] = fn
	}
}

// WithLogger sets the logger used to report retries.
func WithLogger(log stardwh.Logger) Option {
	return func(e *Extractor) {
		e.log = log
	}
}

// NewExtractor returns an Extractor with the options applied. By default it
// makes 3 attempts per file.
func NewExtractor(options ...Option) *Extractor {
	e := &Extractor{
		maxRetries: 3,
		retryWait:  time.Second,
		openers:    make(map[string]OpenerFunc),
		log:        stardwh.NopLogger{},
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

// Open returns an OpenStringer for location.
func (e *Extractor) Open(location string) (OpenStringer, error) {
	if i := strings.Index(location, "://"); i > 0 {
		if fn, ok := e.openers[location[:i]]; ok {
			src, err := fn(location)
			return src, errors.Wrapf(err, "getting opener for '%s'", location)
		}
	}
	return urlOpener(location), nil
}

// Fetch reads the whole of location, retrying failed opens and reads.
func (e *Extractor) Fetch(location string) ([]byte, error) {
	src, err := e.Open(location)
	if err != nil {
		return nil, err
	}
	for try := 1; ; try++ {
		var data []byte
		data, err = fetchTry(src)
		if err == nil {
			return data, nil
		}
		if try >= e.maxRetries {
			break
		}
		e.log.Printf("fetching %s (attempt %d of %d): %v", src, try, e.maxRetries, err)
		time.Sleep(e.retryWait)
	}
	return nil, errors.Wrapf(err, "couldn't fetch '%s' - tried %d times, latest", src, e.maxRetries)
}

func fetchTry(src Opener) ([]byte, error) {
	content, err := src.Open()
	if err != nil {
		return nil, errors.Wrap(err, "opening")
	}
	defer content.Close()
	data, err := ioutil.ReadAll(content)
	return data, errors.Wrap(err, "reading")
}

// Extract reads and decodes the four source tables concurrently.
func (e *Extractor) Extract(p Paths) (*stardwh.Sources, error) {
	src := &stardwh.Sources{}
	eg := errgroup.Group{}
	eg.Go(func() (err error) {
		src.Calendar, err = extract(e, "calendar", p.Calendar, func(r *stardwh.CalendarRow, l int) { r.Line = l })
		return err
	})
	eg.Go(func() (err error) {
		src.Listings, err = extract(e, "listings", p.Listings, func(r *stardwh.ListingRow, l int) { r.Line = l })
		return err
	})
	eg.Go(func() (err error) {
		src.Details, err = extract(e, "listing details", p.Details, func(r *stardwh.ListingDetailRow, l int) { r.Line = l })
		return err
	})
	eg.Go(func() (err error) {
		src.Neighbourhoods, err = extract(e, "neighbourhoods", p.Neighbourhoods, func(r *stardwh.NeighbourhoodRow, l int) { r.Line = l })
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return src, nil
}

func extract[T any](e *Extractor, table, location string, setLine func(*T, int)) ([]T, error) {
	if location == "" {
		return nil, errors.Errorf("no location for %s", table)
	}
	data, err := e.Fetch(location)
	if err != nil {
		return nil, errors.Wrapf(err, "extracting %s", table)
	}
	rows, err := Decode(table, bytes.NewReader(data), setLine)
	if err != nil {
		return nil, errors.Wrapf(err, "extracting %s from %s", table, location)
	}
	e.log.Printf("extracted %d %s rows from %s", len(rows), table, location)
	return rows, nil
}

// Decode reads every record of a CSV file with a header line into T, whose
// fields carry csv tags. Columns named by T but missing from the header are
// an error; extra columns are ignored. setLine receives the line each record
// starts on, which differs from the record number when quoted fields span
// lines. A value that does not fit its field is a *stardwh.ParseError.
func Decode[T any](table string, r io.Reader, setLine func(*T, int)) ([]T, error) {
	cr := csv.NewReader(r)
	cr.LazyQuotes = true
	dec, err := csvutil.NewDecoder(cr)
	if err == io.EOF {
		return nil, errors.Errorf("%s is empty", table)
	} else if err != nil {
		return nil, errors.Wrap(err, "reading header")
	}
	dec.DisallowMissingColumns = true

	var rows []T
	for {
		var row T
		err := dec.Decode(&row)
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			var line int
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				line = pe.StartLine
			} else {
				line, _ = cr.FieldPos(0)
			}
			return nil, &stardwh.ParseError{Table: table, Line: line, Field: "record", Value: strings.Join(dec.Record(), ","), Err: err}
		}
		line, _ := cr.FieldPos(0)
		setLine(&row, line)
		rows = append(rows, row)
	}
}
