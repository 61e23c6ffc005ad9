package geohash_test

import (
	"strings"
	"testing"

	"github.com/pilosa/stardwh"
	"github.com/pilosa/stardwh/geohash"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name      string
		precision int
		coords    stardwh.Coordinates
		expLen    int
		expErr    string
	}{
		{name: "default", precision: 0, coords: stardwh.Coordinates{Latitude: 40.7, Longitude: -74.0}, expLen: 7},
		{name: "six", precision: 6, coords: stardwh.Coordinates{Latitude: 31.1, Longitude: 42.2}, expLen: 6},
		{name: "max", precision: 12, coords: stardwh.Coordinates{Latitude: -33.9, Longitude: 151.2}, expLen: 12},
		{name: "toolong", precision: 13, expErr: "out of range"},
		{name: "negative", precision: -1, expErr: "out of range"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			enc, err := geohash.NewEncoder(test.precision)
			if test.expErr != "" {
				if err == nil || !strings.Contains(err.Error(), test.expErr) {
					t.Fatalf("expected error containing %q, got %v", test.expErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			hash := enc.Encode(test.coords)
			if len(hash) != test.expLen {
				t.Fatalf("unexpected hash length %d for %s", len(hash), hash)
			}
			full, err := geohash.NewEncoder(geohash.MaxPrecision)
			if err != nil {
				t.Fatal(err)
			}
			if !strings.HasPrefix(full.Encode(test.coords), hash) {
				t.Fatalf("%s is not a prefix of the full precision hash", hash)
			}
		})
	}
}

func TestEncodeKnown(t *testing.T) {
	enc, err := geohash.NewEncoder(5)
	if err != nil {
		t.Fatal(err)
	}
	// Jutland, the usual geohash example.
	if hash := enc.Encode(stardwh.Coordinates{Latitude: 57.64911, Longitude: 10.40744}); hash != "u4pru" {
		t.Fatalf("got %s", hash)
	}
}
