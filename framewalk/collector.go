package framewalk

import (
	"github.com/framewalk-dev/framewalk-go/internal/collector"
)

// Sample is a deduplicated call stack and how many times it was observed.
type Sample = collector.Sample

// Collector aggregates captured stacks for profiling consumers, counting
// repeated stacks instead of storing them again.
//
// The Collector allocates and locks, so it must not be fed directly from a
// signal handler; hand captured program counters off to ordinary goroutine
// context first.
type Collector = collector.Collector

// NewCollector returns an empty Collector tagged with a fresh session ID.
func NewCollector() *Collector {
	return collector.New()
}
