package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Gather(t *testing.T) {
	sink := NewSink()
	_ = sink.Add(HTTPReqs, 1)
	_ = sink.Add(HTTPReqs, 1)
	_ = sink.AddRate(HTTPReqFailed, true)
	_ = sink.AddRate(HTTPReqFailed, false)
	_ = sink.AddTrend(HTTPReqDuration, 10)
	_ = sink.AddTrend(TaggedName(ResponseTime, map[string]string{"scenario": "baseline"}), 12)
	_ = sink.AddRate(TaggedName(Checks, map[string]string{"check": "status is 200"}), true)

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(NewCollector(sink, "surge")))

	families, err := reg.Gather()
	require.NoError(t, err)

	byName := make(map[string]int)
	for _, f := range families {
		byName[f.GetName()] = len(f.GetMetric())
	}

	assert.Equal(t, 1, byName["surge_http_reqs_total"])
	assert.Equal(t, 1, byName["surge_http_req_failed_ratio"])
	assert.Equal(t, 1, byName["surge_http_req_duration"])
	assert.Equal(t, 1, byName["surge_response_time"])
	assert.Equal(t, 1, byName["surge_checks_ratio"])

	for _, f := range families {
		if f.GetName() == "surge_http_reqs_total" {
			assert.Equal(t, 2.0, f.GetMetric()[0].GetCounter().GetValue())
		}
		if f.GetName() == "surge_http_req_failed_ratio" {
			assert.Equal(t, 0.5, f.GetMetric()[0].GetGauge().GetValue())
		}
		if f.GetName() == "surge_response_time" {
			labels := f.GetMetric()[0].GetLabel()
			require.Len(t, labels, 1)
			assert.Equal(t, "scenario:baseline", labels[0].GetValue())
		}
	}
}

func TestCollector_AttachDetach(t *testing.T) {
	c := NewCollector(nil, "surge")
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Empty(t, families)

	sink := NewSink()
	_ = sink.Add(HTTPReqs, 3)
	c.Attach(sink)
	families, err = reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, "surge_http_reqs_total", families[0].GetName())

	c.Detach()
	families, err = reg.Gather()
	require.NoError(t, err)
	assert.Empty(t, families)
}

func TestCollector_GatherWhileRecording(t *testing.T) {
	sink := NewSink()
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(NewCollector(sink, "surge")))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 2000; i++ {
			_ = sink.AddTrend(HTTPReqDuration, float64(i%100))
		}
	}()
	for i := 0; i < 20; i++ {
		_, err := reg.Gather()
		require.NoError(t, err)
	}
	<-done

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, uint64(2000), families[0].GetMetric()[0].GetSummary().GetSampleCount())
}

func TestSink_CopiesAreDetached(t *testing.T) {
	sink := NewSink()
	_ = sink.AddTrend(HTTPReqDuration, 10)

	cp := sink.copies()
	_ = sink.AddTrend(HTTPReqDuration, 1000)

	require.Len(t, cp, 1)
	assert.Equal(t, int64(1), cp[0].count)
	assert.Equal(t, 10.0, cp[0].quantile(99))
}

func TestSanitizeMetricName(t *testing.T) {
	assert.Equal(t, "http_reqs", sanitizeMetricName("http_reqs"))
	assert.Equal(t, "my_metric_name", sanitizeMetricName("my-metric.name"))
}
