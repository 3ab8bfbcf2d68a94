package supervisor

import "github.com/prometheus/client_golang/prometheus"

// Collector exposes registry-wide service counts to Prometheus.
type Collector struct {
	sup *Supervisor

	services *prometheus.Desc
	running  *prometheus.Desc
	errored  *prometheus.Desc
	startup  *prometheus.Desc
}

// NewCollector builds a collector reading from sup.
func NewCollector(sup *Supervisor) *Collector {
	ns, sub := "tianshand", "services"
	return &Collector{
		sup: sup,
		services: prometheus.NewDesc(prometheus.BuildFQName(ns, sub, "registered"),
			"Registered services", nil, nil),
		running: prometheus.NewDesc(prometheus.BuildFQName(ns, sub, "running"),
			"Services currently running", nil, nil),
		errored: prometheus.NewDesc(prometheus.BuildFQName(ns, sub, "errored"),
			"Services in the error state", nil, nil),
		startup: prometheus.NewDesc(prometheus.BuildFQName(ns, sub, "startup_seconds"),
			"Duration of the last full startup pass", nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.services
	ch <- c.running
	ch <- c.errored
	ch <- c.startup
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.sup.GetStats()
	ch <- prometheus.MustNewConstMetric(c.services, prometheus.GaugeValue, float64(st.Total))
	ch <- prometheus.MustNewConstMetric(c.running, prometheus.GaugeValue, float64(st.Running))
	ch <- prometheus.MustNewConstMetric(c.errored, prometheus.GaugeValue, float64(st.Errored))
	ch <- prometheus.MustNewConstMetric(c.startup, prometheus.GaugeValue, st.StartupTime.Seconds())
}
