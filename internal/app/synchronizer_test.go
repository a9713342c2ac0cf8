package app

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bft-labs/sensorsync/internal/domain"
)

// recordingSink collects tuples and can be told to fail.
type recordingSink struct {
	mu     sync.Mutex
	tuples []*domain.AlignedTuple
	err    error
	closed bool
	delay  time.Duration
}

func (s *recordingSink) Accept(ctx context.Context, t *domain.AlignedTuple) error {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.tuples = append(s.tuples, t)
	return nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) Tuples() []*domain.AlignedTuple {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.AlignedTuple{}, s.tuples...)
}

// mockSyncEmitter records synchronizer events.
type mockSyncEmitter struct {
	emitted    int
	drops      map[DropReason]int
	sinkErrors int
}

func (m *mockSyncEmitter) OnTupleEmitted(*domain.AlignedTuple) { m.emitted++ }
func (m *mockSyncEmitter) OnMessageDropped(_ domain.Message, reason DropReason) {
	if m.drops == nil {
		m.drops = make(map[DropReason]int)
	}
	m.drops[reason]++
}
func (m *mockSyncEmitter) OnSinkError(error, *domain.AlignedTuple) { m.sinkErrors++ }

func ms(v int64) int64 { return v * int64(time.Millisecond) }

func newTestSync(t *testing.T, tol time.Duration, capacity int, streams ...domain.StreamID) (*Synchronizer, *recordingSink) {
	t.Helper()
	specs := make([]StreamSpec, len(streams))
	for i, id := range streams {
		specs[i] = StreamSpec{ID: id, Capacity: capacity}
	}
	sink := &recordingSink{}
	s, err := NewSynchronizer(SyncConfig{Streams: specs, Tolerance: tol}, sink, &mockLogger{}, nil, nil)
	if err != nil {
		t.Fatalf("NewSynchronizer() error = %v", err)
	}
	return s, sink
}

func push(t *testing.T, s *Synchronizer, stream domain.StreamID, stamp int64) domain.Message {
	t.Helper()
	m := domain.NewMessage(stream, stamp, nil)
	if err := s.Push(context.Background(), m); err != nil {
		t.Fatalf("Push(%s@%d) error = %v", stream, stamp, err)
	}
	return m
}

func memberStamps(tup *domain.AlignedTuple) map[domain.StreamID]int64 {
	out := make(map[domain.StreamID]int64, len(tup.Messages))
	for _, m := range tup.Messages {
		out[m.Stream] = m.Timestamp
	}
	return out
}

func TestSyncConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     SyncConfig
		wantErr bool
	}{
		{"default rig", SyncConfig{Streams: DefaultStreamSpecs(20), Tolerance: 50 * time.Millisecond}, false},
		{"no streams", SyncConfig{Tolerance: time.Millisecond}, true},
		{"empty name", SyncConfig{Streams: []StreamSpec{{ID: ""}}}, true},
		{"duplicate", SyncConfig{Streams: []StreamSpec{{ID: "a"}, {ID: "a"}}}, true},
		{"negative tolerance", SyncConfig{Streams: []StreamSpec{{ID: "a"}}, Tolerance: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, domain.ErrInvalidConfig) {
				t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestNewSynchronizer_RequiresSink(t *testing.T) {
	_, err := NewSynchronizer(SyncConfig{Streams: []StreamSpec{{ID: "a"}}}, nil, &mockLogger{}, nil, nil)
	if !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("error = %v, want ErrInvalidConfig", err)
	}
}

func TestSynchronizer_EmitsWithinTolerance(t *testing.T) {
	s, sink := newTestSync(t, 50*time.Millisecond, 10, "a", "b")

	push(t, s, "a", ms(100))
	push(t, s, "b", ms(120))

	tuples := sink.Tuples()
	if len(tuples) != 1 {
		t.Fatalf("emitted %d tuples, want 1", len(tuples))
	}
	want := map[domain.StreamID]int64{"a": ms(100), "b": ms(120)}
	if diff := cmp.Diff(want, memberStamps(tuples[0])); diff != "" {
		t.Errorf("tuple members (-want +got):\n%s", diff)
	}
	if tuples[0].Spread != 20*time.Millisecond {
		t.Errorf("Spread = %v, want 20ms", tuples[0].Spread)
	}
	if tuples[0].Reference != ms(100) {
		t.Errorf("Reference = %d, want %d", tuples[0].Reference, ms(100))
	}
	if s.QueueLen("a") != 0 || s.QueueLen("b") != 0 {
		t.Errorf("queues not drained: a=%d b=%d", s.QueueLen("a"), s.QueueLen("b"))
	}
}

func TestSynchronizer_NoEmissionOutsideTolerance(t *testing.T) {
	s, sink := newTestSync(t, 50*time.Millisecond, 10, "a", "b")

	push(t, s, "a", ms(100))
	push(t, s, "b", ms(300))

	if n := len(sink.Tuples()); n != 0 {
		t.Fatalf("emitted %d tuples, want 0", n)
	}
	if s.QueueLen("a") != 1 || s.QueueLen("b") != 1 {
		t.Errorf("queue lengths a=%d b=%d, want 1 and 1", s.QueueLen("a"), s.QueueLen("b"))
	}
}

func TestSynchronizer_CapacityEvictsOldest(t *testing.T) {
	s, sink := newTestSync(t, 10*time.Millisecond, 2, "a", "b")
	emitter := &mockSyncEmitter{}
	s.emitter = emitter

	push(t, s, "a", ms(100))
	push(t, s, "a", ms(200))
	push(t, s, "a", ms(300))

	var got []int64
	for _, m := range s.Pending("a") {
		got = append(got, m.Timestamp)
	}
	if diff := cmp.Diff([]int64{ms(200), ms(300)}, got); diff != "" {
		t.Errorf("pending a (-want +got):\n%s", diff)
	}
	if emitter.drops[DropEvicted] != 1 {
		t.Errorf("evicted drops = %d, want 1", emitter.drops[DropEvicted])
	}
	if len(sink.Tuples()) != 0 {
		t.Error("unexpected emission")
	}
	st := s.Status()
	if st.Evicted != 1 {
		t.Errorf("Status().Evicted = %d, want 1", st.Evicted)
	}
	if diff := cmp.Diff(map[domain.StreamID]uint64{"a": 1, "b": 0}, st.QueueEvicted); diff != "" {
		t.Errorf("Status().QueueEvicted (-want +got):\n%s", diff)
	}
}

func TestSynchronizer_EqualDistancePrefersEarlier(t *testing.T) {
	s, sink := newTestSync(t, 10*time.Millisecond, 10, "a", "b")

	push(t, s, "b", ms(118))
	push(t, s, "b", ms(122))
	push(t, s, "a", ms(120))

	tuples := sink.Tuples()
	if len(tuples) != 1 {
		t.Fatalf("emitted %d tuples, want 1", len(tuples))
	}
	if got := memberStamps(tuples[0])["b"]; got != ms(118) {
		t.Errorf("b member = %d, want %d", got, ms(118))
	}
	if left := s.Pending("b"); len(left) != 1 || left[0].Timestamp != ms(122) {
		t.Errorf("pending b = %+v, want only 122ms", left)
	}
}

func TestSynchronizer_PrefersSmallestSpread(t *testing.T) {
	s, sink := newTestSync(t, 50*time.Millisecond, 10, "a", "b", "c")

	push(t, s, "b", ms(100))
	push(t, s, "b", ms(140))
	push(t, s, "c", ms(138))
	push(t, s, "a", ms(141))

	tuples := sink.Tuples()
	if len(tuples) != 1 {
		t.Fatalf("emitted %d tuples, want 1", len(tuples))
	}
	want := map[domain.StreamID]int64{"a": ms(141), "b": ms(140), "c": ms(138)}
	if diff := cmp.Diff(want, memberStamps(tuples[0])); diff != "" {
		t.Errorf("tuple members (-want +got):\n%s", diff)
	}
	if tuples[0].Spread != 3*time.Millisecond {
		t.Errorf("Spread = %v, want 3ms", tuples[0].Spread)
	}
}

func TestSynchronizer_SpreadMustFitTolerance(t *testing.T) {
	// Both b and c are within tolerance of the pivot but not of each other.
	s, sink := newTestSync(t, 10*time.Millisecond, 10, "a", "b", "c")

	push(t, s, "b", ms(91))
	push(t, s, "c", ms(109))
	push(t, s, "a", ms(100))

	if n := len(sink.Tuples()); n != 0 {
		t.Fatalf("emitted %d tuples with spread above tolerance", n)
	}
}

func TestSynchronizer_LateArrivalIsStale(t *testing.T) {
	s, sink := newTestSync(t, 50*time.Millisecond, 10, "a", "b")
	emitter := &mockSyncEmitter{}
	s.emitter = emitter

	push(t, s, "a", ms(100))
	push(t, s, "b", ms(120))
	push(t, s, "b", ms(90))
	push(t, s, "a", ms(80))

	if n := len(sink.Tuples()); n != 1 {
		t.Fatalf("emitted %d tuples, want 1", n)
	}
	if emitter.drops[DropStale] != 2 {
		t.Errorf("stale drops = %d, want 2", emitter.drops[DropStale])
	}
	if st := s.Status(); st.Stale != 2 {
		t.Errorf("Status().Stale = %d, want 2", st.Stale)
	}
}

func TestSynchronizer_DuplicateOfConsumedTimestamp(t *testing.T) {
	s, _ := newTestSync(t, 50*time.Millisecond, 10, "a", "b")
	emitter := &mockSyncEmitter{}
	s.emitter = emitter

	push(t, s, "a", ms(100))
	push(t, s, "b", ms(120))
	push(t, s, "a", ms(100))

	if emitter.drops[DropDuplicate] != 1 {
		t.Errorf("duplicate drops = %d, want 1", emitter.drops[DropDuplicate])
	}
	if s.QueueLen("a") != 0 {
		t.Errorf("QueueLen(a) = %d, want 0", s.QueueLen("a"))
	}
}

func TestSynchronizer_PrunesMessagesOlderThanReference(t *testing.T) {
	s, sink := newTestSync(t, 50*time.Millisecond, 10, "a", "b")

	push(t, s, "a", ms(100))
	push(t, s, "a", ms(105))
	push(t, s, "b", ms(110))

	tuples := sink.Tuples()
	if len(tuples) != 1 || memberStamps(tuples[0])["a"] != ms(105) {
		t.Fatalf("expected tuple using a@105, got %+v", tuples)
	}

	// a@100 is older than the reference and can no longer be used.
	push(t, s, "b", ms(400))
	if s.QueueLen("a") != 0 {
		t.Errorf("QueueLen(a) = %d after prune, want 0", s.QueueLen("a"))
	}
	if st := s.Status(); st.Pruned != 1 {
		t.Errorf("Status().Pruned = %d, want 1", st.Pruned)
	}
}

func TestSynchronizer_UnknownStream(t *testing.T) {
	s, _ := newTestSync(t, time.Millisecond, 10, "a")

	err := s.Push(context.Background(), domain.NewMessage("zzz", 1, nil))
	if !errors.Is(err, domain.ErrUnknownStream) {
		t.Errorf("Push() error = %v, want ErrUnknownStream", err)
	}
}

func TestSynchronizer_SinkFailureIsReportedAndMatchingContinues(t *testing.T) {
	s, sink := newTestSync(t, 50*time.Millisecond, 10, "a", "b")
	emitter := &mockSyncEmitter{}
	s.emitter = emitter
	sink.err = errors.New("disk full")

	push(t, s, "a", ms(100))
	err := s.Push(context.Background(), domain.NewMessage("b", ms(110), nil))
	if !errors.Is(err, domain.ErrSinkFailed) {
		t.Fatalf("Push() error = %v, want ErrSinkFailed", err)
	}
	if s.QueueLen("a") != 0 || s.QueueLen("b") != 0 {
		t.Error("failed tuple was left in the queues")
	}
	if emitter.sinkErrors != 1 {
		t.Errorf("sink errors = %d, want 1", emitter.sinkErrors)
	}

	sink.err = nil
	push(t, s, "a", ms(200))
	push(t, s, "b", ms(210))
	if n := len(sink.Tuples()); n != 1 {
		t.Errorf("emitted %d tuples after recovery, want 1", n)
	}
	if st := s.Status(); st.SinkErrors != 1 || st.Emitted != 2 {
		t.Errorf("Status() sink errors=%d emitted=%d, want 1 and 2", st.SinkErrors, st.Emitted)
	}
}

func TestSynchronizer_SetToleranceSweeps(t *testing.T) {
	s, sink := newTestSync(t, 50*time.Millisecond, 10, "a", "b")

	push(t, s, "a", ms(100))
	push(t, s, "b", ms(180))
	if len(sink.Tuples()) != 0 {
		t.Fatal("unexpected emission before tolerance change")
	}

	if err := s.SetTolerance(context.Background(), 100*time.Millisecond); err != nil {
		t.Fatalf("SetTolerance() error = %v", err)
	}
	if n := len(sink.Tuples()); n != 1 {
		t.Errorf("emitted %d tuples after widening tolerance, want 1", n)
	}
	if s.Tolerance() != 100*time.Millisecond {
		t.Errorf("Tolerance() = %v, want 100ms", s.Tolerance())
	}

	if err := s.SetTolerance(context.Background(), -time.Second); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("SetTolerance(negative) error = %v, want ErrInvalidConfig", err)
	}
}

func TestSynchronizer_MissingStreamStaysSilent(t *testing.T) {
	s, sink := newTestSync(t, 50*time.Millisecond, 5, domain.DefaultStreams()...)

	// Everything except vel_smoother.
	for i := int64(0); i < 20; i++ {
		for _, id := range domain.DefaultStreams()[:5] {
			push(t, s, id, ms(100*i))
		}
	}
	if n := len(sink.Tuples()); n != 0 {
		t.Errorf("emitted %d tuples without vel_smoother, want 0", n)
	}
	if s.QueueLen(domain.StreamDepth) != 5 {
		t.Errorf("QueueLen(depth) = %d, want capacity 5", s.QueueLen(domain.StreamDepth))
	}
}

// checkTupleProperties verifies the invariants every emission sequence must hold.
func checkTupleProperties(t *testing.T, tuples []*domain.AlignedTuple, streams []domain.StreamID, tol time.Duration) {
	t.Helper()
	seen := make(map[uint64]bool)
	var prevRef int64
	for i, tup := range tuples {
		if len(tup.Messages) != len(streams) {
			t.Fatalf("tuple %d has %d members, want %d", i, len(tup.Messages), len(streams))
		}
		lo, hi := tup.Messages[0].Timestamp, tup.Messages[0].Timestamp
		for j, m := range tup.Messages {
			if m.Stream != streams[j] {
				t.Errorf("tuple %d member %d stream = %s, want %s", i, j, m.Stream, streams[j])
			}
			if seen[m.Seq] {
				t.Errorf("message %d emitted twice", m.Seq)
			}
			seen[m.Seq] = true
			lo = min(lo, m.Timestamp)
			hi = max(hi, m.Timestamp)
		}
		if time.Duration(hi-lo) > tol {
			t.Errorf("tuple %d spread %v exceeds tolerance %v", i, time.Duration(hi-lo), tol)
		}
		if tup.Reference != lo {
			t.Errorf("tuple %d reference %d, want earliest member %d", i, tup.Reference, lo)
		}
		if i > 0 && tup.Reference < prevRef {
			t.Errorf("tuple %d reference %d precedes previous %d", i, tup.Reference, prevRef)
		}
		prevRef = tup.Reference
	}
}

func TestSynchronizer_RandomizedProperties(t *testing.T) {
	streams := domain.DefaultStreams()
	rates := []int64{33, 33, 100, 20, 50, 50} // ms between messages per stream
	const tol = 30 * time.Millisecond

	for seed := int64(1); seed <= 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		s, sink := newTestSync(t, tol, 20, streams...)

		type arrival struct {
			stream domain.StreamID
			stamp  int64
		}
		var arrivals []arrival
		for i, id := range streams {
			for ts := int64(rng.Intn(20)); ts < 5000; ts += rates[i] + int64(rng.Intn(7)) - 3 {
				arrivals = append(arrivals, arrival{id, ms(ts)})
			}
		}
		// Deliver roughly in time order with some local reordering.
		rng.Shuffle(len(arrivals), func(i, j int) {
			if abs64(arrivals[i].stamp-arrivals[j].stamp) < ms(40) {
				arrivals[i], arrivals[j] = arrivals[j], arrivals[i]
			}
		})
		sortArrivals := func(a []arrival) {
			for i := 1; i < len(a); i++ {
				for j := i; j > 0 && a[j].stamp+ms(40) < a[j-1].stamp; j-- {
					a[j], a[j-1] = a[j-1], a[j]
				}
			}
		}
		sortArrivals(arrivals)

		for _, a := range arrivals {
			push(t, s, a.stream, a.stamp)
		}

		tuples := sink.Tuples()
		if len(tuples) == 0 {
			t.Errorf("seed %d: no tuples emitted", seed)
		}
		checkTupleProperties(t, tuples, streams, tol)
	}
}

func TestSynchronizer_ConcurrentProducers(t *testing.T) {
	streams := domain.DefaultStreams()
	const tol = 20 * time.Millisecond
	s, sink := newTestSync(t, tol, 50, streams...)

	var wg sync.WaitGroup
	for _, id := range streams {
		wg.Add(1)
		go func(id domain.StreamID) {
			defer wg.Done()
			for i := int64(0); i < 200; i++ {
				_ = s.Push(context.Background(), domain.NewMessage(id, ms(i*50), nil))
			}
		}(id)
	}
	wg.Wait()

	checkTupleProperties(t, sink.Tuples(), streams, tol)
	st := s.Status()
	if st.Pushed != uint64(len(streams)*200) {
		t.Errorf("Pushed = %d, want %d", st.Pushed, len(streams)*200)
	}
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
