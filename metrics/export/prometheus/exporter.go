package prometheus

import (
	"net/http"

	"github.com/arturkam25/Codify"
	"github.com/arturkam25/Codify/metrics/export/internaldefs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsSource interface {
	MetricsSnapshot() codify.MetricsSnapshot
	AuditDropped() uint64
}

// Collector is a [prometheus.Collector] that reads engine counters at scrape
// time. Nothing is copied between scrapes.
type Collector struct {
	source       metricsSource
	counters     []*prometheus.Desc
	histograms   []*prometheus.Desc
	auditDropped *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector for engine.
func NewCollector(engine *codify.Engine) *Collector {
	return NewCollectorFromSource(engine)
}

// NewCollectorFromSource creates a collector for any snapshot source.
func NewCollectorFromSource(source metricsSource) *Collector {
	c := &Collector{
		source:       source,
		counters:     make([]*prometheus.Desc, len(internaldefs.CounterDefs)),
		histograms:   make([]*prometheus.Desc, len(internaldefs.HistogramDefs)),
		auditDropped: prometheus.NewDesc(internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, nil, nil),
	}
	for i, def := range internaldefs.CounterDefs {
		c.counters[i] = prometheus.NewDesc(def.Name, def.Help, nil, nil)
	}
	for i, def := range internaldefs.HistogramDefs {
		c.histograms[i] = prometheus.NewDesc(def.Name, def.Help, nil, nil)
	}
	return c
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.counters {
		ch <- d
	}
	for _, d := range c.histograms {
		ch <- d
	}
	ch <- c.auditDropped
}

// Collect emits nothing while engine metrics are disabled.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c == nil || c.source == nil {
		return
	}

	snapshot := c.source.MetricsSnapshot()
	dropped := c.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return
	}

	for i, def := range internaldefs.CounterDefs {
		ch <- prometheus.MustNewConstMetric(c.counters[i], prometheus.CounterValue, float64(snapshot.Counters[def.ID]))
	}

	for i, def := range internaldefs.HistogramDefs {
		raw, ok := snapshot.Histograms[def.ID]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		buckets := make(map[float64]uint64, len(internaldefs.HistogramUpperBounds))
		for j, bound := range internaldefs.HistogramUpperBounds {
			buckets[bound] = cumulative[j]
		}
		count := cumulative[len(cumulative)-1]
		sum := snapshot.HistogramSums[def.ID].Seconds()
		ch <- prometheus.MustNewConstHistogram(c.histograms[i], count, sum, buckets)
	}

	ch <- prometheus.MustNewConstMetric(c.auditDropped, prometheus.CounterValue, float64(dropped))
}

// Register adds a collector for engine to reg.
func Register(reg prometheus.Registerer, engine *codify.Engine) (*Collector, error) {
	c := NewCollector(engine)
	if err := reg.Register(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Handler serves the engine metrics from a dedicated registry.
func Handler(engine *codify.Engine) (http.Handler, error) {
	reg := prometheus.NewRegistry()
	if _, err := Register(reg, engine); err != nil {
		return nil, err
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}
