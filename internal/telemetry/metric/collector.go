package metric

import "github.com/prometheus/client_golang/prometheus"

// StatsSource reports live server resource counts.
type StatsSource interface {
	Connections() int
	Instances() int
	Streams() int
}

// Collector exports the live resource counts of a StatsSource as gauges.
// Values are read at scrape time.
type Collector struct {
	src StatsSource

	connections *prometheus.Desc
	instances   *prometheus.Desc
	streams     *prometheus.Desc
}

// NewCollector creates a collector reading from src.
func NewCollector(src StatsSource) *Collector {
	return &Collector{
		src: src,
		connections: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "connections"),
			"Open client connections.", nil, nil),
		instances: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "instances"),
			"Live batches, checkouts and snapshots.", nil, nil),
		streams: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "streams"),
			"Open stream handles.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.connections
	ch <- c.instances
	ch <- c.streams
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.connections, prometheus.GaugeValue, float64(c.src.Connections()))
	ch <- prometheus.MustNewConstMetric(c.instances, prometheus.GaugeValue, float64(c.src.Instances()))
	ch <- prometheus.MustNewConstMetric(c.streams, prometheus.GaugeValue, float64(c.src.Streams()))
}
