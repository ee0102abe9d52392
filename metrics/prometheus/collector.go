// Package prometheus exports semkv metrics to Prometheus.
//
//	reg := prometheus.NewRegistry()
//	mc, _ := semkvprom.New(reg, "semkv")
//	kv, _ := semkv.Open(ctx, backend, semkv.WithMetricsCollector(mc))
//	_ = reg.Register(semkvprom.NewStatsCollector(kv, "semkv"))
package prometheus

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/semkv"
)

var _ semkv.MetricsCollector = (*Collector)(nil)

// Collector implements semkv.MetricsCollector with Prometheus metrics.
type Collector struct {
	opLatency   *prometheus.HistogramVec
	ops         *prometheus.CounterVec
	commitBytes prometheus.Counter
}

// New creates a Collector and registers its metrics with reg.
func New(reg prometheus.Registerer, namespace string) (*Collector, error) {
	c := &Collector{
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_latency_seconds",
			Help:      "Latency of store operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "status"}),
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Total store operations",
		}, []string{"op", "status"}),
		commitBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commit_bytes_total",
			Help:      "Total bytes written by commits",
		}),
	}

	for _, m := range []prometheus.Collector{c.opLatency, c.ops, c.commitBytes} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collector) observe(op string, d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.opLatency.WithLabelValues(op, status).Observe(d.Seconds())
	c.ops.WithLabelValues(op, status).Inc()
}

// RecordPut implements semkv.MetricsCollector.
func (c *Collector) RecordPut(d time.Duration, err error) { c.observe("put", d, err) }

// RecordGet implements semkv.MetricsCollector.
func (c *Collector) RecordGet(d time.Duration, err error) { c.observe("get", d, err) }

// RecordRemove implements semkv.MetricsCollector.
func (c *Collector) RecordRemove(d time.Duration, err error) { c.observe("remove", d, err) }

// RecordSearch implements semkv.MetricsCollector. Range searches report k == 0.
func (c *Collector) RecordSearch(k int, d time.Duration, err error) {
	if k == 0 {
		c.observe("search_range", d, err)
		return
	}
	c.observe("search", d, err)
}

// RecordCommit implements semkv.MetricsCollector.
func (c *Collector) RecordCommit(bytes int64, d time.Duration, err error) {
	c.observe("commit", d, err)
	if err == nil {
		c.commitBytes.Add(float64(bytes))
	}
}

// StatsCollector exposes KV.Stats as gauges on every scrape.
type StatsCollector struct {
	kv *semkv.KV

	indexSize  *prometheus.Desc
	live       *prometheus.Desc
	tombstones *prometheus.Desc
	version    *prometheus.Desc
	bloomItems *prometheus.Desc
	bloomFPR   *prometheus.Desc
}

// NewStatsCollector returns a prometheus.Collector over kv.
func NewStatsCollector(kv *semkv.KV, namespace string) *StatsCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil)
	}
	return &StatsCollector{
		kv:         kv,
		indexSize:  desc("index_vectors", "Vectors in the index, live or dead"),
		live:       desc("live_keys", "Keys with a live value"),
		tombstones: desc("tombstones", "Tombstoned ordinals"),
		version:    desc("checkpoint_version", "Last committed checkpoint"),
		bloomItems: desc("bloom_items", "Ordinals added to the tombstone bloom filter"),
		bloomFPR:   desc("bloom_observed_false_positive_rate", "Observed bloom false positive rate"),
	}
}

// Describe implements prometheus.Collector.
func (s *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- s.indexSize
	ch <- s.live
	ch <- s.tombstones
	ch <- s.version
	ch <- s.bloomItems
	ch <- s.bloomFPR
}

// Collect implements prometheus.Collector. A closed store yields nothing.
func (s *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	st, err := s.kv.Stats(context.Background())
	if err != nil {
		return
	}
	ch <- prometheus.MustNewConstMetric(s.indexSize, prometheus.GaugeValue, float64(st.IndexSize))
	ch <- prometheus.MustNewConstMetric(s.live, prometheus.GaugeValue, float64(st.Live))
	ch <- prometheus.MustNewConstMetric(s.tombstones, prometheus.GaugeValue, float64(st.Tombstones))
	ch <- prometheus.MustNewConstMetric(s.version, prometheus.GaugeValue, float64(st.Version))
	ch <- prometheus.MustNewConstMetric(s.bloomItems, prometheus.GaugeValue, float64(st.Bloom.Items))
	ch <- prometheus.MustNewConstMetric(s.bloomFPR, prometheus.GaugeValue, st.Bloom.ObservedFalsePositiveRate)
}
