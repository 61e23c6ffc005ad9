// Package boundary reads the optional neighbourhood boundary GeoJSON. The
// transform does not use it; it backs run diagnostics and a future
// proximity join of locations to neighbourhoods.
package boundary

import (
	"encoding/json"

	"github.com/pilosa/stardwh"
	"github.com/pilosa/stardwh/normalize"
	"github.com/pkg/errors"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// Feature is one neighbourhood outline.
type Feature struct {
	// Name is the normalized neighbourhood name.
	Name     string
	Group    string
	Geometry geom.T
}

// Set is the decoded boundary file.
type Set struct {
	Features []Feature
}

// Parse decodes a GeoJSON FeatureCollection whose features carry
// "neighbourhood" and, optionally, "neighbourhood_group" properties.
func Parse(data []byte) (*Set, error) {
	fc := &geojson.FeatureCollection{}
	if err := json.Unmarshal(data, fc); err != nil {
		return nil, errors.Wrap(err, "decoding feature collection")
	}
	s := &Set{Features: make([]Feature, 0, len(fc.Features))}
	for i, f := range fc.Features {
		name, _ := f.Properties["neighbourhood"].(string)
		if name == "" {
			return nil, errors.Errorf("feature %d has no neighbourhood property", i)
		}
		group, _ := f.Properties["neighbourhood_group"].(string)
		s.Features = append(s.Features, Feature{
			Name:     normalize.Text(name),
			Group:    group,
			Geometry: f.Geometry,
		})
	}
	return s, nil
}

// Names returns the distinct neighbourhood names in file order.
func (s *Set) Names() []string {
	seen := make(map[string]struct{}, len(s.Features))
	ret := make([]string, 0, len(s.Features))
	for _, f := range s.Features {
		if _, ok := seen[f.Name]; ok {
			continue
		}
		seen[f.Name] = struct{}{}
		ret = append(ret, f.Name)
	}
	return ret
}

// Missing returns the names in neighbourhoods (compared after
// normalization) that have no feature.
func (s *Set) Missing(neighbourhoods []string) []string {
	have := make(map[string]struct{}, len(s.Features))
	for _, f := range s.Features {
		have[f.Name] = struct{}{}
	}
	var ret []string
	for _, n := range neighbourhoods {
		if _, ok := have[normalize.Text(n)]; !ok {
			ret = append(ret, n)
		}
	}
	return ret
}

// Candidates returns the names of the features whose bounding box holds c.
func (s *Set) Candidates(c stardwh.Coordinates) []string {
	var ret []string
	pt := geom.Coord{c.Longitude, c.Latitude}
	for _, f := range s.Features {
		if f.Geometry == nil {
			continue
		}
		if f.Geometry.Bounds().OverlapsPoint(geom.XY, pt) {
			ret = append(ret, f.Name)
		}
	}
	return ret
}
