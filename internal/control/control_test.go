package control

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/joshuamhtsang/sine/internal/linkbudget"
	"github.com/joshuamhtsang/sine/internal/metrics"
	"github.com/joshuamhtsang/sine/internal/modulation"
	"github.com/joshuamhtsang/sine/internal/orchestrator"
	"github.com/joshuamhtsang/sine/internal/pathsolver"
	"github.com/joshuamhtsang/sine/internal/pipeline"
	"github.com/joshuamhtsang/sine/internal/shaper"
	"github.com/joshuamhtsang/sine/internal/topology"
)

type fakeExecutor struct{ commands [][]string }

func (f *fakeExecutor) Exec(_ context.Context, _ int, cmd []string) (string, error) {
	f.commands = append(f.commands, cmd)
	return "", nil
}

func gainPtr(v float64) *float64 { return &v }

func wirelessAt(x float64, ip string) *topology.Interface {
	scheme := modulation.QPSK
	fec := modulation.FECNone
	rate := 0.75
	return &topology.Interface{
		Name: "wlan0", Kind: topology.InterfaceWireless, IPAddress: ip,
		Wireless: &topology.WirelessParams{
			Position:         linkbudget.Vec3{X: x},
			TxPowerDBm:       20,
			FrequencyHz:      5.18e9,
			BandwidthHz:      20e6,
			AntennaGainDBi:   gainPtr(0),
			Polarization:     topology.PolV,
			NoiseFigureDB:    7,
			RxSensitivityDBm: -90,
			Modulation:       &scheme,
			FEC:              &fec,
			CodeRate:         &rate,
			IsActive:         true,
			MAC:              &topology.MACModelDescriptor{Kind: topology.MACNone},
		},
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	exec := &fakeExecutor{}
	solver := pathsolver.NewCachedSolver(pathsolver.NewFallback(false))
	topo := &topology.Topology{
		Name:       "test",
		SceneRef:   "empty_room",
		EnableSINR: true,
		Nodes: map[string]*topology.Node{
			"a": {Name: "a", Interfaces: map[string]*topology.Interface{"wlan0": wirelessAt(0, "10.0.0.1")}},
			"b": {Name: "b", Interfaces: map[string]*topology.Interface{"wlan0": wirelessAt(50, "10.0.0.2")}},
		},
		MCSTables: map[string]*modulation.Table{},
	}
	cfg := orchestrator.Config{
		Topology: topo,
		Discovery: orchestrator.Discovery{
			PID:          map[string]int{"a": 1, "b": 2},
			PointToPoint: []orchestrator.PointToPointLink{{NodeA: "a", IfaceA: "wlan0", NodeB: "b", IfaceB: "wlan0"}},
		},
		ChannelCtx:  pipeline.NewChannelContext(solver, nil),
		Shaper:      shaper.New(exec),
		SceneFreqHz: 5.18e9,
		SceneBwHz:   20e6,
	}
	o, err := orchestrator.New(cfg)
	if err != nil {
		t.Fatalf("orchestrator.New: %v", err)
	}
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(o.Stop)
	return New(o, nil, 0, nil)
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHealthReportsHealthyAfterStart(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body map[string]interface{}
	decodeJSON(t, rec, &body)
	if body["status"] != "healthy" {
		t.Fatalf("expected healthy status, got %+v", body)
	}
	if running, ok := body["running"].(bool); !ok || !running {
		t.Fatalf("expected running=true, got %+v", body)
	}
}

func TestGetPositionRoundTripsSetPosition(t *testing.T) {
	s := newTestServer(t)

	update := positionUpdate{Node: "a", X: 12, Y: 3, Z: 1}
	payload, _ := json.Marshal(update)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/position", bytes.NewReader(payload)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/position/a", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Position linkbudget.Vec3 `json:"position"`
	}
	decodeJSON(t, rec, &body)
	if body.Position.X != 12 || body.Position.Y != 3 {
		t.Fatalf("expected updated position, got %+v", body.Position)
	}
}

func TestGetPositionUnknownNodeReturns404(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/position/ghost", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestSetInterfaceActiveTogglesState(t *testing.T) {
	s := newTestServer(t)

	update := interfaceUpdate{Node: "a", Interface: "wlan0", IsActive: false}
	payload, _ := json.Marshal(update)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/interface", bytes.NewReader(payload)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/interface/a/wlan0", nil))
	var body struct {
		IsActive bool `json:"is_active"`
	}
	decodeJSON(t, rec, &body)
	if body.IsActive {
		t.Fatalf("expected interface to report inactive after toggle")
	}
}

func TestSetInterfaceActiveUnknownInterfaceReturns404(t *testing.T) {
	s := newTestServer(t)
	update := interfaceUpdate{Node: "a", Interface: "missing", IsActive: true}
	payload, _ := json.Marshal(update)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/interface", bytes.NewReader(payload)))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRecomputeReturnsSuccess(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/recompute", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestNodesListsBothNodes(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nodes", nil))
	var body struct {
		Nodes []NodeView `json:"nodes"`
	}
	decodeJSON(t, rec, &body)
	if len(body.Nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(body.Nodes))
	}
}

func TestSetPositionMalformedBodyReturns400(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/position", bytes.NewReader([]byte("not json"))))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestMetricsQueryUnconfiguredReturns503(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics/query?q=up", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestMetricsQueryMissingParamReturns400(t *testing.T) {
	s := newTestServer(t)
	queryClient, err := metrics.NewQueryClient(metrics.QueryConfig{URL: "http://127.0.0.1:0"}, nil)
	if err != nil {
		t.Fatalf("NewQueryClient: %v", err)
	}
	s.query = queryClient
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics/query", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}
