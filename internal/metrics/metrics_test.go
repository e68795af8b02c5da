package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusSink_CounterAccumulates(t *testing.T) {
	sink := NewPrometheusSink()

	sink.IncCounter("pipeline.chunks_processed", Labels{"pipeline": "p1"}, 3)
	sink.IncCounter("pipeline.chunks_processed", Labels{"pipeline": "p1"}, 2)

	snap := sink.Snapshot()
	require.Contains(t, snap.Counters, "pipeline_chunks_processed")
	assert.Equal(t, float64(5), snap.Counters["pipeline_chunks_processed"])
}

func TestPrometheusSink_GaugeIsLastWriterWins(t *testing.T) {
	sink := NewPrometheusSink()

	sink.SetGauge("writer.queue_depth", Labels{"pipeline": "p1"}, 4)
	sink.SetGauge("writer.queue_depth", Labels{"pipeline": "p1"}, 9)

	snap := sink.Snapshot()
	assert.Equal(t, float64(9), snap.Gauges["writer_queue_depth"])
}

func TestPrometheusSink_HistogramObservesBuckets(t *testing.T) {
	sink := NewPrometheusSink()

	sink.ObserveHistogram("stage.duration_ms", Labels{"stage": "zstd"}, 3)
	sink.ObserveHistogram("stage.duration_ms", Labels{"stage": "zstd"}, 60)

	snap := sink.Snapshot()
	h, ok := snap.Histograms["stage_duration_ms"]
	require.True(t, ok)
	assert.EqualValues(t, 2, h.SampleCount)
	assert.Equal(t, float64(63), h.SampleSum)
}
