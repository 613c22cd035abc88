package consumer

import "github.com/prometheus/client_golang/prometheus"

var prom struct {
	BytesIn             prometheus.Counter
	BuffersIn           prometheus.Counter
	CreditAnnouncements prometheus.Counter
}

func init() {
	prom.BytesIn = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "flowd",
		Subsystem: "network_consumer",
		Name:      "bytes_in_total",
		Help:      "bytes delivered to consuming tasks by remote input channels",
	})
	prom.BuffersIn = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "flowd",
		Subsystem: "network_consumer",
		Name:      "buffers_in_total",
		Help:      "buffers delivered to consuming tasks by remote input channels",
	})
	prom.CreditAnnouncements = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "flowd",
		Subsystem: "network_consumer",
		Name:      "credit_announcements_total",
		Help:      "credit announcements scheduled towards producers",
	})
}

func PrometheusRegister(registry prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{prom.BytesIn, prom.BuffersIn, prom.CreditAnnouncements} {
		if err := registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}
