package pathsolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ExternalSolver is a PairSolver backed by an external ray-tracing
// process reached over HTTP (spec.md §6.1: "potentially GPU", a
// separate process from the emulator). It holds no scene or device
// state itself beyond what it needs to fill ComputePair's request body;
// the external process owns the actual ray tracing.
type ExternalSolver struct {
	baseURL string
	client  *http.Client
	name    string
}

// NewExternalSolver builds a client for an external solver listening at
// baseURL (e.g. a Sionna-backed ray tracer exposing a /compute_pair
// endpoint).
func NewExternalSolver(baseURL string, timeout time.Duration) *ExternalSolver {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ExternalSolver{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		name:    "external_rt_solver",
	}
}

func (e *ExternalSolver) Name() string { return e.name }

// LoadScene, ClearDevices, AddTransmitter, AddReceiver, ComputePaths are
// part of the stateful Solver contract; ExternalSolver only supports the
// narrower PairSolver surface the per-link pipeline actually drives, so
// LoadScene, ClearDevices, AddTransmitter and AddReceiver are no-ops and
// ComputePaths returns an error.
func (e *ExternalSolver) LoadScene(sceneRef string, freqHz, bwHz float64) error { return nil }
func (e *ExternalSolver) ClearDevices()                                        {}
func (e *ExternalSolver) AddTransmitter(d Device) error                        { return nil }
func (e *ExternalSolver) AddReceiver(d Device) error                           { return nil }

func (e *ExternalSolver) ComputePaths() (PathResult, error) {
	return PathResult{}, fmt.Errorf("pathsolver: ExternalSolver only supports ComputePair")
}

func (e *ExternalSolver) GetPathDetails() (PathDetails, error) {
	return PathDetails{}, fmt.Errorf("pathsolver: ExternalSolver does not expose ray-level detail")
}

type externalPairRequest struct {
	Tx       Device  `json:"tx"`
	Rx       Device  `json:"rx"`
	SceneRef string  `json:"scene_ref"`
	FreqHz   float64 `json:"freq_hz"`
	BwHz     float64 `json:"bw_hz"`
}

type externalPairResponse struct {
	PathLossDB    float64      `json:"path_loss_db"`
	MinDelayNs    float64      `json:"min_delay_ns"`
	MaxDelayNs    float64      `json:"max_delay_ns"`
	RMSDelayNs    float64      `json:"rms_delay_ns"`
	NumPaths      int          `json:"num_paths"`
	DominantKind  DominantKind `json:"dominant_kind"`
	GainsEmbedded bool         `json:"gains_embedded"`
}

// ComputePair posts (tx, rx, scene) to the external process and decodes
// its PathResult. Any transport or non-2xx failure is returned as an
// error; per spec.md §4.7 step 6 callers substitute Degraded() rather
// than failing the whole batch.
func (e *ExternalSolver) ComputePair(tx, rx Device, sceneRef string, freqHz, bwHz float64) (PathResult, error) {
	body, err := json.Marshal(externalPairRequest{Tx: tx, Rx: rx, SceneRef: sceneRef, FreqHz: freqHz, BwHz: bwHz})
	if err != nil {
		return PathResult{}, fmt.Errorf("pathsolver: encode external request: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/compute_pair", bytes.NewReader(body))
	if err != nil {
		return PathResult{}, fmt.Errorf("pathsolver: build external request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return PathResult{}, fmt.Errorf("pathsolver: external solver request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return PathResult{}, fmt.Errorf("pathsolver: external solver returned status %d", resp.StatusCode)
	}

	var decoded externalPairResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return PathResult{}, fmt.Errorf("pathsolver: decode external response: %w", err)
	}

	return PathResult{
		PathLossDB:    decoded.PathLossDB,
		MinDelayNs:    decoded.MinDelayNs,
		MaxDelayNs:    decoded.MaxDelayNs,
		RMSDelayNs:    decoded.RMSDelayNs,
		NumPaths:      decoded.NumPaths,
		DominantKind:  decoded.DominantKind,
		GainsEmbedded: decoded.GainsEmbedded,
	}, nil
}
