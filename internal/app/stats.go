package app

import (
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
	"gonum.org/v1/gonum/stat"

	"github.com/bft-labs/sensorsync/internal/domain"
)

// recentSpreads is the number of most recent tuple spreads kept for mean/stddev.
const recentSpreads = 512

// Stats accumulates counters and tuple spread distribution for one run.
// It is safe for concurrent use.
type Stats struct {
	mu sync.Mutex

	pushed       uint64
	emitted      uint64
	evicted      uint64
	stale        uint64
	duplicates   uint64
	pruned       uint64
	decodeErrors uint64
	sinkErrors   uint64
	lastRef      int64

	// sketch tracks spread quantiles over the whole run, in nanoseconds
	sketch *ddsketch.DDSketch

	recent []float64
	next   int
}

// NewStats creates an empty Stats.
func NewStats() *Stats {
	sketch, err := ddsketch.NewDefaultDDSketch(0.01)
	if err != nil {
		// Only fails for an accuracy outside (0, 1).
		panic(err)
	}
	return &Stats{
		sketch: sketch,
		recent: make([]float64, 0, recentSpreads),
	}
}

func (s *Stats) addPushed() {
	s.mu.Lock()
	s.pushed++
	s.mu.Unlock()
}

func (s *Stats) addPruned(n int) {
	s.mu.Lock()
	s.pruned += uint64(n)
	s.mu.Unlock()
}

func (s *Stats) addSinkError() {
	s.mu.Lock()
	s.sinkErrors++
	s.mu.Unlock()
}

// AddSinkError counts a sink failure reported outside the synchronizer, such
// as an asynchronous write failure from a Dispatcher.
func (s *Stats) AddSinkError() {
	s.addSinkError()
}

func (s *Stats) addDrop(reason DropReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch reason {
	case DropEvicted:
		s.evicted++
	case DropStale:
		s.stale++
	case DropDuplicate:
		s.duplicates++
	case DropMalformed:
		s.decodeErrors++
	}
}

func (s *Stats) recordTuple(t *domain.AlignedTuple) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.emitted++
	s.lastRef = t.Reference

	v := float64(t.Spread)
	_ = s.sketch.Add(v)
	if len(s.recent) < recentSpreads {
		s.recent = append(s.recent, v)
	} else {
		s.recent[s.next] = v
	}
	s.next = (s.next + 1) % recentSpreads
}

// Emitted returns the number of tuples emitted so far.
func (s *Stats) Emitted() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emitted
}

// Status returns the counters and spread summary. Queue depth and tolerance
// are left for the caller to fill in.
func (s *Stats) Status() domain.Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := domain.Status{
		UpdatedAt:     time.Now().UTC(),
		Pushed:        s.pushed,
		Emitted:       s.emitted,
		Evicted:       s.evicted,
		Stale:         s.stale,
		Duplicates:    s.duplicates,
		Pruned:        s.pruned,
		DecodeErrors:  s.decodeErrors,
		SinkErrors:    s.sinkErrors,
		LastReference: s.lastRef,
	}

	if !s.sketch.IsEmpty() {
		st.SpreadP50 = s.quantile(0.50)
		st.SpreadP90 = s.quantile(0.90)
		st.SpreadP99 = s.quantile(0.99)
	}

	switch n := len(s.recent); {
	case n == 1:
		st.SpreadMean = time.Duration(s.recent[0])
	case n > 1:
		mean, std := stat.MeanStdDev(s.recent, nil)
		st.SpreadMean = time.Duration(mean)
		st.SpreadStd = time.Duration(std)
	}
	return st
}

func (s *Stats) quantile(q float64) time.Duration {
	v, err := s.sketch.GetValueAtQuantile(q)
	if err != nil {
		return 0
	}
	return time.Duration(v)
}
