// Package geohash encodes location coordinates as geohash strings.
package geohash

import (
	"github.com/mmcloughlin/geohash"
	"github.com/pilosa/stardwh"
	"github.com/pkg/errors"
)

// MaxPrecision is the longest geohash Encode will produce.
const MaxPrecision = 12

// DefaultPrecision is used when an Encoder is built with precision 0.
const DefaultPrecision = 7

// Encoder hashes coordinates to a fixed number of characters.
type Encoder struct {
	Precision uint
}

// NewEncoder validates precision and returns an Encoder for it.
func NewEncoder(precision int) (*Encoder, error) {
	if precision == 0 {
		precision = DefaultPrecision
	}
	if precision < 1 || precision > MaxPrecision {
		return nil, errors.Errorf("geohash precision %d out of range [1, %d]", precision, MaxPrecision)
	}
	return &Encoder{Precision: uint(precision)}, nil
}

// Encode returns the geohash of c.
func (e *Encoder) Encode(c stardwh.Coordinates) string {
	return geohash.EncodeWithPrecision(c.Latitude, c.Longitude, e.Precision)
}
