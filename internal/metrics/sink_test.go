package metrics

import (
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSink_Counter(t *testing.T) {
	sink := NewSink()
	require.NoError(t, sink.Add(HTTPReqs, 1))
	require.NoError(t, sink.Add(HTTPReqs, 1))
	require.NoError(t, sink.Add(HTTPReqs, 3))

	snap := sink.Snapshot(5 * time.Second)
	m, ok := snap.Get(HTTPReqs)
	require.True(t, ok)
	assert.Equal(t, Counter, m.Kind)
	assert.Equal(t, int64(3), m.Count)
	assert.Equal(t, 5.0, m.Sum)
	assert.InDelta(t, 1.0, m.Rate, 1e-9)
	assert.InDelta(t, 0.6, m.Throughput, 1e-9)
}

func TestSink_RateIsExact(t *testing.T) {
	sink := NewSink()
	const n, k = 1000, 37
	for i := 0; i < n; i++ {
		require.NoError(t, sink.AddRate(Errors, i < k))
	}

	m, _ := sink.Snapshot(time.Second).Get(Errors)
	assert.Equal(t, float64(k)/float64(n), m.Rate)
	assert.Equal(t, int64(k), m.Passes)
	assert.Equal(t, int64(n-k), m.Fails)
}

func TestSink_TrendPercentiles(t *testing.T) {
	sink := NewSink()
	for i := 1; i <= 1000; i++ {
		require.NoError(t, sink.AddTrend(HTTPReqDuration, float64(i)))
	}

	m, _ := sink.Snapshot(time.Second).Get(HTTPReqDuration)
	assert.Equal(t, int64(1000), m.Count)
	assert.Equal(t, 1.0, m.Min)
	assert.Equal(t, 1000.0, m.Max)
	assert.InDelta(t, 500.5, m.Avg, 1e-9)
	assert.GreaterOrEqual(t, m.P95, 940.0)
	assert.LessOrEqual(t, m.P95, 960.0)
	assert.InDelta(t, 500, m.Med, 2)
	assert.InDelta(t, 990, m.P99, 2)
}

func TestSink_TrendPercentilesIgnoreArrivalOrder(t *testing.T) {
	values := make([]float64, 1000)
	for i := range values {
		values[i] = float64(i + 1)
	}

	ordered := NewSink()
	for _, v := range values {
		require.NoError(t, ordered.AddTrend(ResponseTime, v))
	}

	rng := rand.New(rand.NewPCG(1, 2))
	rng.Shuffle(len(values), func(i, j int) { values[i], values[j] = values[j], values[i] })
	shuffled := NewSink()
	for _, v := range values {
		require.NoError(t, shuffled.AddTrend(ResponseTime, v))
	}

	a, _ := ordered.Snapshot(time.Second).Get(ResponseTime)
	b, _ := shuffled.Snapshot(time.Second).Get(ResponseTime)
	assert.Equal(t, a.Percentiles, b.Percentiles)
}

func TestSink_ExtraPercentiles(t *testing.T) {
	sink := NewSink()
	for i := 1; i <= 100; i++ {
		require.NoError(t, sink.AddTrend("t", float64(i)))
	}

	m, _ := sink.Snapshot(time.Second, 75).Get("t")
	v, ok := m.Percentile(75)
	require.True(t, ok)
	assert.InDelta(t, 75, v, 1)

	_, ok = m.Percentile(42)
	assert.False(t, ok)
}

func TestSink_KindMismatch(t *testing.T) {
	sink := NewSink()
	require.NoError(t, sink.Add("x", 1))

	err := sink.AddTrend("x", 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrKindMismatch))

	m, _ := sink.Snapshot(time.Second).Get("x")
	assert.Equal(t, Counter, m.Kind)
	assert.Equal(t, int64(1), m.Count)
}

func TestSink_EmptySnapshot(t *testing.T) {
	sink := NewSink()
	sink.Snapshot(time.Second)
	require.NoError(t, sink.Merge(NewSink()))

	snap := sink.Snapshot(0)
	assert.Empty(t, snap.Metrics)
}

func TestSink_Merge(t *testing.T) {
	build := func(offset int) *Sink {
		s := NewSink()
		for i := 0; i < 100; i++ {
			_ = s.AddTrend(HTTPReqDuration, float64(offset+i))
			_ = s.AddRate(HTTPReqFailed, i%10 == 0)
			_ = s.Add(HTTPReqs, 1)
		}
		return s
	}

	ab := build(0)
	require.NoError(t, ab.Merge(build(100)))
	ba := build(100)
	require.NoError(t, ba.Merge(build(0)))

	x := ab.Snapshot(time.Second)
	y := ba.Snapshot(time.Second)
	assert.Equal(t, x.Metrics, y.Metrics)

	d, _ := x.Get(HTTPReqDuration)
	assert.Equal(t, int64(200), d.Count)
	assert.Equal(t, 0.0, d.Min)
	assert.Equal(t, 199.0, d.Max)

	r, _ := x.Get(HTTPReqFailed)
	assert.Equal(t, 0.1, r.Rate)
}

func TestSink_MergeKindMismatch(t *testing.T) {
	a := NewSink()
	_ = a.Add("m", 1)
	b := NewSink()
	_ = b.AddRate("m", true)
	_ = b.Add("other", 2)

	err := a.Merge(b)
	assert.ErrorIs(t, err, ErrKindMismatch)

	other, ok := a.Snapshot(time.Second).Get("other")
	require.True(t, ok)
	assert.Equal(t, 2.0, other.Sum)
}

func TestSink_ConcurrentRecording(t *testing.T) {
	sink := NewSink()
	var wg sync.WaitGroup
	for w := 0; w < 20; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				_ = sink.Add(HTTPReqs, 1)
				_ = sink.AddRate(Checks, i%2 == 0)
				_ = sink.AddTrend(HTTPReqDuration, float64(i))
			}
		}()
	}
	wg.Wait()

	snap := sink.Snapshot(time.Second)
	reqs, _ := snap.Get(HTTPReqs)
	assert.Equal(t, 10000.0, reqs.Sum)
	checks, _ := snap.Get(Checks)
	assert.Equal(t, 0.5, checks.Rate)
	dur, _ := snap.Get(HTTPReqDuration)
	assert.Equal(t, int64(10000), dur.Count)
}

func TestSink_CloseRejectsWrites(t *testing.T) {
	sink := NewSink()
	require.NoError(t, sink.Batch(func() {
		_ = sink.Add(HTTPReqs, 1)
		_ = sink.AddTrend(HTTPReqDuration, 5)
	}))

	sink.Close()
	assert.ErrorIs(t, sink.Add(HTTPReqs, 1), ErrClosed)
	assert.ErrorIs(t, sink.Merge(NewSink()), ErrClosed)

	called := false
	err := sink.Batch(func() { called = true })
	assert.ErrorIs(t, err, ErrClosed)
	assert.False(t, called)

	reqs, _ := sink.Snapshot(time.Second).Get(HTTPReqs)
	assert.Equal(t, 1.0, reqs.Sum)
}

func TestSink_CloseWaitsForBatch(t *testing.T) {
	sink := NewSink()
	inBatch := make(chan struct{})
	release := make(chan struct{})
	batchDone := make(chan error, 1)
	go func() {
		batchDone <- sink.Batch(func() {
			_ = sink.Add(HTTPReqs, 1)
			close(inBatch)
			<-release
			_ = sink.AddTrend(HTTPReqDuration, 7)
		})
	}()
	<-inBatch

	closed := make(chan struct{})
	go func() {
		sink.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a batch was in progress")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	<-closed
	require.NoError(t, <-batchDone)

	snap := sink.Snapshot(time.Second)
	reqs, _ := snap.Get(HTTPReqs)
	dur, _ := snap.Get(HTTPReqDuration)
	assert.Equal(t, int64(reqs.Sum), dur.Count)
}

func TestTaggedName(t *testing.T) {
	assert.Equal(t, "response_time", TaggedName("response_time", nil))
	name := TaggedName("response_time", map[string]string{"test_type": "spike", "scenario": "spike"})
	assert.Equal(t, "response_time{scenario:spike,test_type:spike}", name)

	base, tags := SplitName(name)
	assert.Equal(t, "response_time", base)
	assert.Equal(t, "scenario:spike,test_type:spike", tags)

	base, tags = SplitName("http_reqs")
	assert.Equal(t, "http_reqs", base)
	assert.Empty(t, tags)
}

func TestPercentileKey(t *testing.T) {
	assert.Equal(t, "p(95)", PercentileKey(95))
	assert.Equal(t, "p(99.9)", PercentileKey(99.9))
}
