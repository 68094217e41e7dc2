package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/joshuamhtsang/sine/internal/orchestrator"
	"github.com/joshuamhtsang/sine/internal/pipeline"
	"github.com/joshuamhtsang/sine/internal/topology"
)

func TestObserveExposesPerLinkGauges(t *testing.T) {
	e := New()
	link := topology.LinkID{TxNode: "a", TxIface: "wlan0", RxNode: "b", RxIface: "wlan0"}
	snap := orchestrator.Snapshot{
		Metrics: map[topology.LinkID]pipeline.ChannelMetrics{
			link: {SINRdB: 20, SNRdB: 22, BER: 1e-5, PER: 0.01, RateMbps: 54, DelayMs: 2, JitterMs: 0.5, LossPercent: 1},
		},
	}
	e.Observe(snap)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	e.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, `sine_link_sinr_db{rx_iface="wlan0",rx_node="b",tx_iface="wlan0",tx_node="a"} 20`) {
		t.Fatalf("expected sinr_db gauge in output, got:\n%s", body)
	}
	if !strings.Contains(body, "sine_batch_recomputes_total 1") {
		t.Fatalf("expected recompute counter to be 1, got:\n%s", body)
	}
}

func TestObserveCountsDegradedLinks(t *testing.T) {
	e := New()
	link := topology.LinkID{TxNode: "a", TxIface: "wlan0", RxNode: "b", RxIface: "wlan0"}
	snap := orchestrator.Snapshot{
		Metrics: map[topology.LinkID]pipeline.ChannelMetrics{
			link: {Degraded: true, LossPercent: 100},
		},
		Failures: []pipeline.LinkFailure{{Link: link}},
	}
	e.Observe(snap)

	rec := httptest.NewRecorder()
	e.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, "sine_batch_degraded_links 1") {
		t.Fatalf("expected 1 degraded link, got:\n%s", body)
	}
	if !strings.Contains(body, "sine_batch_link_failures_total 1") {
		t.Fatalf("expected 1 link failure, got:\n%s", body)
	}
}
