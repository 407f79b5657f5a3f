package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/stanlemon/storm-dynamic-spout/message"
)

func TestRecorder_EmittedIncrementsPerConsumer(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.Emitted("firehose:0")
	r.Emitted("firehose:0")
	r.Emitted("replay:req-1")

	require.Equal(t, float64(2), testutil.ToFloat64(r.emitted.WithLabelValues("firehose:0")))
	require.Equal(t, float64(1), testutil.ToFloat64(r.emitted.WithLabelValues(string(message.VirtualConsumerID("replay:req-1")))))
}

func TestRecorder_GaugesSetDirectly(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.SetBufferLength(7)
	r.SetActiveConsumers(3)

	require.Equal(t, float64(7), testutil.ToFloat64(r.bufferLen))
	require.Equal(t, float64(3), testutil.ToFloat64(r.consumers))
}
