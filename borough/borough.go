// Package borough attaches boroughs to locations through the
// neighbourhood-to-borough mapping.
package borough

import (
	"fmt"
	"strings"

	"github.com/pilosa/stardwh"
	"github.com/pilosa/stardwh/normalize"
)

// mappingTable names the mapping in warnings.
const mappingTable = "neighbourhoods"

// Resolver looks up the borough of a neighbourhood. Both sides of the
// lookup are trimmed and lower-cased.
type Resolver struct {
	boroughs map[string]string
}

// NewResolver indexes the mapping rows. When a neighbourhood is mapped more
// than once to different boroughs the first mapping is kept and a
// DuplicateKey warning goes to warnings, which may be nil.
func NewResolver(rows []stardwh.NeighbourhoodRow, warnings *stardwh.Report) *Resolver {
	r := &Resolver{boroughs: make(map[string]string, len(rows))}
	lines := make(map[string]int, len(rows))
	for _, row := range rows {
		n := normalize.Text(row.Neighbourhood)
		group := strings.TrimSpace(row.Group)
		if prev, ok := r.boroughs[n]; ok {
			if !strings.EqualFold(prev, group) && warnings != nil {
				warnings.Add(stardwh.Warning{
					Kind:    stardwh.DuplicateKey,
					Table:   mappingTable,
					Key:     n,
					Message: fmt.Sprintf("line %d maps to %q but line %d already mapped it to %q", row.Line, group, lines[n], prev),
				})
			}
			continue
		}
		r.boroughs[n] = group
		lines[n] = row.Line
	}
	return r
}

// Borough returns the borough of neighbourhood, or nil if it is unmapped.
func (r *Resolver) Borough(neighbourhood string) *string {
	b, ok := r.boroughs[normalize.Text(neighbourhood)]
	if !ok {
		return nil
	}
	return &b
}

// Resolve returns a copy of locs with Borough set wherever the location's
// neighbourhood is mapped. Unmapped locations keep a nil borough.
func (r *Resolver) Resolve(locs []stardwh.LocationDim) []stardwh.LocationDim {
	out := make([]stardwh.LocationDim, len(locs))
	for i, l := range locs {
		l.Borough = r.Borough(l.Neighbourhood)
		out[i] = l
	}
	return out
}

// Unmatched returns the distinct neighbourhoods of locs that have no
// borough, in first-seen order.
func (r *Resolver) Unmatched(locs []stardwh.LocationDim) []string {
	var ret []string
	seen := make(map[string]struct{})
	for _, l := range locs {
		if r.Borough(l.Neighbourhood) != nil {
			continue
		}
		if _, ok := seen[l.Neighbourhood]; ok {
			continue
		}
		seen[l.Neighbourhood] = struct{}{}
		ret = append(ret, l.Neighbourhood)
	}
	return ret
}

// Neighbourhoods returns the normalized neighbourhood names of the mapping.
func (r *Resolver) Neighbourhoods() []string {
	ret := make([]string, 0, len(r.boroughs))
	for n := range r.boroughs {
		ret = append(ret, n)
	}
	return ret
}
