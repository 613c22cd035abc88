package buffer

import "github.com/prometheus/client_golang/prometheus"

var prom struct {
	GlobalSegmentsFree    prometheus.Gauge
	FloatingRequests      prometheus.Counter
	ListenerRegistrations prometheus.Counter
}

func init() {
	prom.GlobalSegmentsFree = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "flowd",
		Subsystem: "network_buffer",
		Name:      "global_segments_free",
		Help:      "number of free segments in the global pool",
	})
	prom.FloatingRequests = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "flowd",
		Subsystem: "network_buffer",
		Name:      "floating_requests_total",
		Help:      "number of floating buffer requests served by fixed pools",
	})
	prom.ListenerRegistrations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "flowd",
		Subsystem: "network_buffer",
		Name:      "listener_registrations_total",
		Help:      "number of buffer listener registrations on fixed pools",
	})
}

func PrometheusRegister(registry prometheus.Registerer) error {
	if err := registry.Register(prom.GlobalSegmentsFree); err != nil {
		return err
	}
	if err := registry.Register(prom.FloatingRequests); err != nil {
		return err
	}
	return registry.Register(prom.ListenerRegistrations)
}
