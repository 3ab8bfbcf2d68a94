package eventbus

import "github.com/prometheus/client_golang/prometheus"

// Collector exposes bus statistics to Prometheus. Register it once per bus:
//
//	prometheus.MustRegister(eventbus.NewCollector(bus))
type Collector struct {
	bus *Bus

	posted    *prometheus.Desc
	delivered *prometheus.Desc
	dropped   *prometheus.Desc
	handlers  *prometheus.Desc
	depth     *prometheus.Desc
	highWater *prometheus.Desc
}

// NewCollector builds a collector reading from bus.
func NewCollector(bus *Bus) *Collector {
	ns, sub := "tianshand", "eventbus"
	return &Collector{
		bus: bus,
		posted: prometheus.NewDesc(prometheus.BuildFQName(ns, sub, "events_posted_total"),
			"Events accepted into the queue or delivered synchronously", nil, nil),
		delivered: prometheus.NewDesc(prometheus.BuildFQName(ns, sub, "events_delivered_total"),
			"Handler invocations", nil, nil),
		dropped: prometheus.NewDesc(prometheus.BuildFQName(ns, sub, "events_dropped_total"),
			"Events dropped on enqueue timeout", nil, nil),
		handlers: prometheus.NewDesc(prometheus.BuildFQName(ns, sub, "handlers"),
			"Live handler registrations", nil, nil),
		depth: prometheus.NewDesc(prometheus.BuildFQName(ns, sub, "queue_depth"),
			"Events currently queued", nil, nil),
		highWater: prometheus.NewDesc(prometheus.BuildFQName(ns, sub, "queue_high_water"),
			"Maximum observed queue depth", nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.posted
	ch <- c.delivered
	ch <- c.dropped
	ch <- c.handlers
	ch <- c.depth
	ch <- c.highWater
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.bus.Stats()
	ch <- prometheus.MustNewConstMetric(c.posted, prometheus.CounterValue, float64(s.Posted))
	ch <- prometheus.MustNewConstMetric(c.delivered, prometheus.CounterValue, float64(s.Delivered))
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(s.Dropped))
	ch <- prometheus.MustNewConstMetric(c.handlers, prometheus.GaugeValue, float64(s.Handlers))
	ch <- prometheus.MustNewConstMetric(c.depth, prometheus.GaugeValue, float64(s.QueueDepth))
	ch <- prometheus.MustNewConstMetric(c.highWater, prometheus.GaugeValue, float64(s.QueueHighWater))
}
