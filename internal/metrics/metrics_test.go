package metrics

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterAndGauge(t *testing.T) {
	r := NewRegistry("snippetd", "")
	c := r.RegisterCounter("events_total", "events", nil)
	c.Inc()
	c.Add(2)
	assert.Equal(t, uint64(3), c.Value())
	assert.Same(t, c, r.RegisterCounter("events_total", "events", nil))
	assert.Equal(t, "snippetd_events_total", c.Name())

	g := r.RegisterGauge("triggers", "triggers", nil)
	g.Set(5)
	g.Dec()
	assert.Equal(t, int64(4), r.Gauge("triggers").Value())
}

func TestHistogramBuckets(t *testing.T) {
	h := NewHistogram("h", "help", nil, []float64{1, 5, 10})
	for _, v := range []float64{0.5, 1, 3, 7, 20} {
		h.Observe(v)
	}

	assert.Equal(t, []uint64{2, 3, 4, 5}, h.Cumulative())
	assert.Equal(t, uint64(5), h.Count())
	assert.InDelta(t, 31.5, h.Sum(), 1e-9)
}

func TestWritePrometheus(t *testing.T) {
	r := NewRegistry("snippetd", "")
	r.RegisterCounter("b_total", "second", Labels{"scope": "sync"}).Inc()
	r.RegisterCounter("a_total", "first", nil).Add(2)
	r.RegisterHistogram("lat_seconds", "latency", nil, []float64{1}).Observe(0.5)

	var buf bytes.Buffer
	require.NoError(t, r.WritePrometheus(&buf))
	out := buf.String()

	assert.Contains(t, out, "# TYPE snippetd_a_total counter\nsnippetd_a_total 2\n")
	assert.Contains(t, out, `snippetd_b_total{scope="sync"} 1`)
	assert.Contains(t, out, `snippetd_lat_seconds_bucket{le="1"} 1`)
	assert.Contains(t, out, `snippetd_lat_seconds_bucket{le="+Inf"} 1`)
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("a_total")), bytes.Index(buf.Bytes(), []byte("b_total")))
}

func TestWriteTextfile(t *testing.T) {
	r := NewRegistry("snippetd", "")
	r.RegisterGauge("triggers", "triggers", nil).Set(3)

	path := filepath.Join(t.TempDir(), "metrics", "snippetd.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "snippetd_triggers 3")
}

func TestSnippetdMetrics(t *testing.T) {
	m := NewSnippetdMetrics(nil)

	m.RecordOutcome("expanded", time.Microsecond)
	m.RecordOutcome("no-match", time.Microsecond)
	m.RecordOutcome("ignored", time.Microsecond)
	m.RecordOutcome("failed", time.Microsecond)
	assert.Equal(t, uint64(4), m.InputEvents.Value())
	assert.Equal(t, uint64(1), m.Expansions.Value())
	assert.Equal(t, uint64(1), m.WriteFailures.Value())
	assert.Equal(t, uint64(4), m.HandleLatency.Count())

	m.RecordRefresh(nil, 4, time.Millisecond)
	m.RecordRefresh(errors.New("locked"), 0, time.Millisecond)
	assert.Equal(t, uint64(1), m.Refreshes.Value())
	assert.Equal(t, uint64(1), m.RefreshFailures.Value())
	assert.Equal(t, int64(4), m.Triggers.Value(), "failed refresh keeps gauge")

	snap := m.Registry().Snapshot()
	assert.Equal(t, uint64(1), snap["snippetd_expansions_total"])
}
