// Package metrics exports the channel-and-shaping pipeline's runtime
// state as Prometheus metrics, and offers a query client for reading
// them back out of a running Prometheus server using the standard
// client_golang/promauto conventions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joshuamhtsang/sine/internal/orchestrator"
)

// Exporter holds every metric sine publishes and a registry to serve
// them from.
type Exporter struct {
	registry *prometheus.Registry

	sinrDB         *prometheus.GaugeVec
	snrDB          *prometheus.GaugeVec
	berGauge       *prometheus.GaugeVec
	perGauge       *prometheus.GaugeVec
	rateMbps       *prometheus.GaugeVec
	delayMs        *prometheus.GaugeVec
	jitterMs       *prometheus.GaugeVec
	lossPercent    *prometheus.GaugeVec
	degradedLinks  prometheus.Gauge
	linkFailures   prometheus.Counter
	shaperFailures prometheus.Counter
	recomputes     prometheus.Counter

	lastRecomputeID string
}

// New builds an Exporter on its own registry, so sine's metrics never
// collide with another library's default registry.
func New() *Exporter {
	reg := prometheus.NewRegistry()
	labels := []string{"tx_node", "tx_iface", "rx_node", "rx_iface"}

	e := &Exporter{
		registry: reg,
		sinrDB: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sine", Subsystem: "link", Name: "sinr_db", Help: "Signal-to-interference-plus-noise ratio in dB.",
		}, labels),
		snrDB: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sine", Subsystem: "link", Name: "snr_db", Help: "Signal-to-noise ratio in dB, excluding interference.",
		}, labels),
		berGauge: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sine", Subsystem: "link", Name: "bit_error_rate", Help: "Uncoded theoretical bit error rate.",
		}, labels),
		perGauge: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sine", Subsystem: "link", Name: "packet_error_rate", Help: "FEC-coded packet error rate (BLER).",
		}, labels),
		rateMbps: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sine", Subsystem: "link", Name: "rate_mbps", Help: "Effective throughput in Mbps after MCS and MAC scaling.",
		}, labels),
		delayMs: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sine", Subsystem: "link", Name: "delay_ms", Help: "netem delay applied to this link in milliseconds.",
		}, labels),
		jitterMs: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sine", Subsystem: "link", Name: "jitter_ms", Help: "netem jitter applied to this link in milliseconds.",
		}, labels),
		lossPercent: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sine", Subsystem: "link", Name: "loss_percent", Help: "netem packet loss percentage applied to this link.",
		}, labels),
		degradedLinks: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "sine", Subsystem: "batch", Name: "degraded_links", Help: "Number of links using synthesized degraded metrics in the latest batch.",
		}),
		linkFailures: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "sine", Subsystem: "batch", Name: "link_failures_total", Help: "Cumulative count of per-link path-compute failures across all observed batches.",
		}),
		shaperFailures: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "sine", Subsystem: "batch", Name: "shaper_failures_total", Help: "Cumulative count of tc command failures across all observed batches.",
		}),
		recomputes: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "sine", Subsystem: "batch", Name: "recomputes_total", Help: "Cumulative count of distinct recompute batches observed.",
		}),
	}
	return e
}

// Handler serves the registry in the Prometheus text exposition format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Observe records one completed batch's Snapshot. The counters advance
// only when the snapshot's RecomputeID differs from the last one observed
// (or is empty), so re-observing the same batch does not count it twice.
func (e *Exporter) Observe(snap orchestrator.Snapshot) {
	if snap.RecomputeID == "" || snap.RecomputeID != e.lastRecomputeID {
		e.lastRecomputeID = snap.RecomputeID
		e.recomputes.Inc()
		e.linkFailures.Add(float64(len(snap.Failures)))
		e.shaperFailures.Add(float64(len(snap.ShaperFails)))
	}

	degraded := 0.0
	for link, m := range snap.Metrics {
		labels := prometheus.Labels{
			"tx_node": link.TxNode, "tx_iface": link.TxIface,
			"rx_node": link.RxNode, "rx_iface": link.RxIface,
		}
		e.sinrDB.With(labels).Set(m.SINRdB)
		e.snrDB.With(labels).Set(m.SNRdB)
		e.berGauge.With(labels).Set(m.BER)
		e.perGauge.With(labels).Set(m.PER)
		e.rateMbps.With(labels).Set(m.RateMbps)
		e.delayMs.With(labels).Set(m.DelayMs)
		e.jitterMs.With(labels).Set(m.JitterMs)
		e.lossPercent.With(labels).Set(m.LossPercent)
		if m.Degraded {
			degraded++
		}
	}
	e.degradedLinks.Set(degraded)
}
