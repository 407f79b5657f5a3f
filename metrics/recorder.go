// Package metrics wraps the engine's Prometheus instruments in one
// explicitly constructed, non-global value, per the design decision to
// replace ambient package-level metric singletons with values threaded
// through constructors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/stanlemon/storm-dynamic-spout/message"
)

// Recorder holds every counter/gauge the coordinator and its
// VirtualConsumers report against. Construct one per process and pass it
// to every component that needs to record something; instance equality is
// preserved across workers because it is a single shared value, not a
// package global.
type Recorder struct {
	emitted   *prometheus.CounterVec
	acked     *prometheus.CounterVec
	failed    *prometheus.CounterVec
	abandoned *prometheus.CounterVec
	transient *prometheus.CounterVec
	bufferLen prometheus.Gauge
	consumers prometheus.Gauge
}

// NewRecorder builds and registers instruments against reg. Passing
// prometheus.NewRegistry() (rather than the global DefaultRegisterer) keeps
// tests hermetic.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spout_messages_emitted_total",
			Help: "Messages emitted downstream by virtual consumer id.",
		}, []string{"consumer_id"}),
		acked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spout_messages_acked_total",
			Help: "Messages acked by virtual consumer id.",
		}, []string{"consumer_id"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spout_messages_failed_total",
			Help: "Messages failed (and retried) by virtual consumer id.",
		}, []string{"consumer_id"}),
		abandoned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spout_messages_abandoned_total",
			Help: "Failed messages given up on (retryFurther=false) by virtual consumer id.",
		}, []string{"consumer_id"}),
		transient: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spout_transient_errors_total",
			Help: "Transient collaborator failures by consumer id and operation.",
		}, []string{"consumer_id", "op"}),
		bufferLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spout_buffer_length",
			Help: "Current occupied length of the message buffer.",
		}),
		consumers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spout_active_virtual_consumers",
			Help: "Number of virtual consumers currently running.",
		}),
	}

	reg.MustRegister(r.emitted, r.acked, r.failed, r.abandoned, r.transient, r.bufferLen, r.consumers)
	return r
}

func (r *Recorder) Emitted(id message.VirtualConsumerID) { r.emitted.WithLabelValues(string(id)).Inc() }
func (r *Recorder) Acked(id message.VirtualConsumerID)   { r.acked.WithLabelValues(string(id)).Inc() }
func (r *Recorder) Failed(id message.VirtualConsumerID)  { r.failed.WithLabelValues(string(id)).Inc() }
func (r *Recorder) Abandoned(id message.VirtualConsumerID) {
	r.abandoned.WithLabelValues(string(id)).Inc()
}
func (r *Recorder) Transient(id message.VirtualConsumerID, op string) {
	r.transient.WithLabelValues(string(id), op).Inc()
}
func (r *Recorder) SetBufferLength(n int)   { r.bufferLen.Set(float64(n)) }
func (r *Recorder) SetActiveConsumers(n int) { r.consumers.Set(float64(n)) }
