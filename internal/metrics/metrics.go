// internal/metrics/metrics.go
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tamzrod/kiosk-coordinator/internal/delivery"
	"github.com/tamzrod/kiosk-coordinator/internal/events"
	"github.com/tamzrod/kiosk-coordinator/internal/registers"
	"github.com/tamzrod/kiosk-coordinator/internal/status"
)

const namespace = "kiosk"

// Metrics exports decoded registers, delivery outcomes and device health.
// It implements events.Sink.
type Metrics struct {
	reg *prometheus.Registry

	registerValue  *prometheus.GaugeVec
	stateUpdates   *prometheus.CounterVec
	equipErrors    *prometheus.CounterVec
	disconnects    *prometheus.CounterVec
	deliveries     *prometheus.CounterVec
	depositWeight  prometheus.Histogram
	health         *prometheus.GaugeVec
	secondsInError *prometheus.GaugeVec
}

// New builds the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),

		registerValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "register_value",
			Help:      "Latest decoded register value (booleans as 0/1).",
		}, []string{"device", "register"}),

		stateUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_updates_total",
			Help:      "Published register snapshots.",
		}, []string{"device"}),

		equipErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "equipment_errors_total",
			Help:      "Transport errors per serial port.",
		}, []string{"port"}),

		disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "equipment_disconnects_total",
			Help:      "Released port sessions.",
		}, []string{"port"}),

		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Finished delivery attempts by door and outcome.",
		}, []string{"door", "outcome"}),

		depositWeight: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "deposit_weight_grams",
			Help:      "Weight reported for accepted deposits.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}),

		health: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_health",
			Help:      "Device health code (0 unknown, 1 ok, 2 error, 3 stale, 4 disabled).",
		}, []string{"device"}),

		secondsInError: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_seconds_in_error",
			Help:      "Seconds the device has been unhealthy.",
		}, []string{"device"}),
	}

	m.reg.MustRegister(
		m.registerValue,
		m.stateUpdates,
		m.equipErrors,
		m.disconnects,
		m.deliveries,
		m.depositWeight,
		m.health,
		m.secondsInError,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) Emit(ev events.Event) {
	switch ev.Kind {
	case events.StateUpdated:
		m.stateUpdates.WithLabelValues(ev.Device).Inc()
		st, ok := ev.Payload.(registers.State)
		if !ok {
			return
		}
		for name, r := range st.Readings() {
			m.registerValue.WithLabelValues(ev.Device, name).Set(r.Value.Float())
		}

	case events.EquipmentError:
		m.equipErrors.WithLabelValues(ev.Port).Inc()

	case events.EquipmentDisconnect:
		m.disconnects.WithLabelValues(ev.Port).Inc()

	case events.DeliverySucceeded:
		m.deliveries.WithLabelValues(ev.DoorKey, "succeeded").Inc()
		if rec, ok := ev.Payload.(delivery.Receipt); ok {
			m.depositWeight.Observe(rec.Weight)
		}

	case events.DeliveryAborted:
		m.deliveries.WithLabelValues(ev.DoorKey, "aborted").Inc()

	case events.DeliveryFailed:
		m.deliveries.WithLabelValues(ev.DoorKey, "failed").Inc()
	}
}

// ObserveHealth records a device health snapshot. Wire it to status.Tracker.OnChange.
func (m *Metrics) ObserveHealth(device string, s status.Snapshot) {
	m.health.WithLabelValues(device).Set(float64(s.Health))
	m.secondsInError.WithLabelValues(device).Set(float64(s.SecondsInError))
}
