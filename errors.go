package stardwh

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ParseError reports a source value that could not be parsed. It is fatal to
// the run.
type ParseError struct {
	Table string
	Line  int
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s line %d: parsing %s %q: %v", e.Table, e.Line, e.Field, e.Value, e.Err)
}

// Violation is one failed consistency rule.
type Violation struct {
	Rule   string
	Detail string
}

func (v Violation) String() string {
	return v.Rule + ": " + v.Detail
}

// VerificationError is returned by the verifier when at least one rule
// failed. It is fatal to the run.
type VerificationError struct {
	Violations []Violation
}

func (e *VerificationError) Error() string {
	lines := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		lines[i] = v.String()
	}
	return fmt.Sprintf("%d consistency check(s) failed: %s", len(e.Violations), strings.Join(lines, "; "))
}

// WarningKind classifies non-fatal data quality findings.
type WarningKind int

const (
	// ReferentialGap means a fact row could not resolve a foreign key.
	ReferentialGap WarningKind = iota
	// DuplicateKey means a natural key appeared with conflicting attributes.
	DuplicateKey
)

func (k WarningKind) String() string {
	switch k {
	case ReferentialGap:
		return "referential-gap"
	case DuplicateKey:
		return "duplicate-key"
	default:
		return fmt.Sprintf("WarningKind(%d)", int(k))
	}
}

// Warning is a recorded, non-fatal finding.
type Warning struct {
	Kind    WarningKind
	Table   string
	Key     string
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s in %s for %q: %s", w.Kind, w.Table, w.Key, w.Message)
}

// Report collects warnings from concurrently running stages, logging each
// one as it arrives.
type Report struct {
	Log   Logger
	Stats Statter

	mu       sync.Mutex
	warnings []Warning
}

// NewReport returns a Report logging to log. Either argument may be nil.
func NewReport(log Logger, stats Statter) *Report {
	if log == nil {
		log = NopLogger{}
	}
	if stats == nil {
		stats = NopStatter{}
	}
	return &Report{Log: log, Stats: stats}
}

// Add records w.
func (r *Report) Add(w Warning) {
	r.mu.Lock()
	r.warnings = append(r.warnings, w)
	r.mu.Unlock()
	r.Log.Warnf("%s", w)
	r.Stats.Count("warnings."+w.Kind.String(), 1, 1)
}

// Warnings returns the recorded warnings ordered by kind, table and key so
// that concurrent stages still yield a deterministic report.
func (r *Report) Warnings() []Warning {
	r.mu.Lock()
	ret := make([]Warning, len(r.warnings))
	copy(ret, r.warnings)
	r.mu.Unlock()
	sort.SliceStable(ret, func(i, j int) bool {
		if ret[i].Kind != ret[j].Kind {
			return ret[i].Kind < ret[j].Kind
		}
		if ret[i].Table != ret[j].Table {
			return ret[i].Table < ret[j].Table
		}
		return ret[i].Key < ret[j].Key
	})
	return ret
}

// Count returns how many warnings of kind k were recorded.
func (r *Report) Count(k WarningKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, w := range r.warnings {
		if w.Kind == k {
			n++
		}
	}
	return n
}
