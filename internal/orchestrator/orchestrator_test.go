package orchestrator

import (
	"context"
	"testing"

	"github.com/joshuamhtsang/sine/internal/linkbudget"
	"github.com/joshuamhtsang/sine/internal/modulation"
	"github.com/joshuamhtsang/sine/internal/pathsolver"
	"github.com/joshuamhtsang/sine/internal/pipeline"
	"github.com/joshuamhtsang/sine/internal/shaper"
	"github.com/joshuamhtsang/sine/internal/topology"
)

type fakeExecutor struct {
	commands [][]string
}

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

func twoNodeTopology() *topology.Topology {
	return &topology.Topology{
		Name:       "test",
		SceneRef:   "empty_room",
		EnableSINR: true,
		Nodes: map[string]*topology.Node{
			"a": {Name: "a", Interfaces: map[string]*topology.Interface{"wlan0": wirelessAt(0, "10.0.0.1")}},
			"b": {Name: "b", Interfaces: map[string]*topology.Interface{"wlan0": wirelessAt(50, "10.0.0.2")}},
		},
		MCSTables: map[string]*modulation.Table{},
	}
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *fakeExecutor) {
	t.Helper()
	exec := &fakeExecutor{}
	solver := pathsolver.NewCachedSolver(pathsolver.NewFallback(false))
	cfg := Config{
		Topology: twoNodeTopology(),
		Discovery: Discovery{
			PID:          map[string]int{"a": 1, "b": 2},
			PointToPoint: []PointToPointLink{{NodeA: "a", IfaceA: "wlan0", NodeB: "b", IfaceB: "wlan0"}},
		},
		ChannelCtx:  pipeline.NewChannelContext(solver, nil),
		Shaper:      shaper.New(exec),
		SceneFreqHz: 5.18e9,
		SceneBwHz:   20e6,
	}
	o, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o, exec
}

func TestStartComputesAndShapesInitialBatch(t *testing.T) {
	o, exec := newTestOrchestrator(t)
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	o.Stop()

	snap := o.Snapshot()
	if len(snap.Metrics) != 2 {
		t.Fatalf("expected 2 directed links in snapshot, got %d", len(snap.Metrics))
	}
	if len(exec.commands) == 0 {
		t.Fatalf("expected shaping commands to be issued")
	}
}

func TestSetPositionTriggersRecomputeAndRejectsUnknownNode(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer o.Stop()

	if err := o.SetPositionXYZ(context.Background(), "a", 10, 10, 0); err != nil {
		t.Fatalf("SetPositionXYZ: %v", err)
	}
	pos, err := o.Position("a")
	if err != nil {
		t.Fatalf("Position: %v", err)
	}
	if pos.X != 10 || pos.Y != 10 {
		t.Fatalf("expected position to be updated, got %+v", pos)
	}

	if err := o.SetPositionXYZ(context.Background(), "ghost", 0, 0, 0); err == nil {
		t.Fatalf("expected error for unknown node")
	}
}

func TestSetInterfaceActiveTogglesAndRejectsUnknownInterface(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer o.Stop()

	if err := o.SetInterfaceActive(context.Background(), "a", "wlan0", false); err != nil {
		t.Fatalf("SetInterfaceActive: %v", err)
	}
	active, err := o.InterfaceActive("a", "wlan0")
	if err != nil {
		t.Fatalf("InterfaceActive: %v", err)
	}
	if active {
		t.Fatalf("expected interface to be inactive after toggle")
	}

	if err := o.SetInterfaceActive(context.Background(), "a", "missing", true); err == nil {
		t.Fatalf("expected error for unknown interface")
	}
}

func TestNodesListsSortedPositions(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer o.Stop()

	nodes := o.Nodes()
	if len(nodes) != 2 || nodes[0].Name != "a" || nodes[1].Name != "b" {
		t.Fatalf("expected sorted [a, b], got %+v", nodes)
	}
}
