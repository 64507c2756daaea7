package validate

import (
	"iter"
)

// DefaultLimit is the number of mismatches kept for reporting.
const DefaultLimit = 20

// Collector drains a mismatch sequence into a bounded Report.
type Collector struct {
	// Limit is how many mismatches are kept; the rest are only counted.
	Limit int
	// StopAfter ends collection once this many mismatches were seen. Zero
	// counts them all.
	StopAfter int
}

// Report summarizes one comparison.
type Report struct {
	Count      int
	Mismatches []Mismatch
	Truncated  bool // more mismatches than Limit
	Stopped    bool // collection ended at StopAfter
}

// OK reports whether no mismatch was found.
func (r Report) OK() bool { return r.Count == 0 }

// Collect consumes seq.
func (c Collector) Collect(seq iter.Seq[Mismatch]) Report {
	var r Report
	for m := range seq {
		r.Count++
		if len(r.Mismatches) < c.Limit {
			r.Mismatches = append(r.Mismatches, m)
		} else {
			r.Truncated = true
		}
		if c.StopAfter > 0 && r.Count >= c.StopAfter {
			r.Stopped = true
			break
		}
	}
	return r
}
