// Command sine-waypoints drives a node through a series of waypoints
// against a running sine control server, posting position updates at a
// fixed tick interval. It is a standalone binary run alongside
// `sine run` rather than baked into the main server, keeping mobility
// scripting separate from the emulation process itself.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joshuamhtsang/sine/internal/linkbudget"
	"github.com/joshuamhtsang/sine/internal/logging"
	"github.com/joshuamhtsang/sine/internal/mobility"
)

var rootCmd = &cobra.Command{
	Use:   "sine-waypoints",
	Short: "Play a waypoint path against a running sine control server",
	Args:  cobra.NoArgs,
	RunE:  run,
}

var (
	controlURL string
	node       string
	pathFile   string
	loop       bool
	tick       time.Duration
)

func init() {
	rootCmd.Flags().StringVar(&controlURL, "control-url", "http://localhost:8002", "base URL of the sine control server")
	rootCmd.Flags().StringVar(&node, "node", "", "node name to move (required)")
	rootCmd.Flags().StringVar(&pathFile, "path", "", "YAML file listing waypoints (required)")
	rootCmd.Flags().BoolVar(&loop, "loop", false, "repeat the path indefinitely")
	rootCmd.Flags().DurationVar(&tick, "tick", 100*time.Millisecond, "position update interval")
	_ = rootCmd.MarkFlagRequired("node")
	_ = rootCmd.MarkFlagRequired("path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type waypointFile struct {
	Waypoints []struct {
		Position struct {
			X, Y, Z float64
		}
		Velocity float64
	}
}

func loadWaypoints(path string) ([]mobility.Waypoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read waypoint file: %w", err)
	}
	var raw waypointFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse waypoint file: %w", err)
	}
	waypoints := make([]mobility.Waypoint, 0, len(raw.Waypoints))
	for _, wp := range raw.Waypoints {
		waypoints = append(waypoints, mobility.Waypoint{
			Position: linkbudget.Vec3{X: wp.Position.X, Y: wp.Position.Y, Z: wp.Position.Z},
			Velocity: wp.Velocity,
		})
	}
	return waypoints, nil
}

// httpPositionSetter implements mobility.PositionSetter by calling the
// control server's POST /position endpoint.
type httpPositionSetter struct {
	baseURL string
	client  *http.Client
}

func (h *httpPositionSetter) SetPositionXYZ(ctx context.Context, node string, x, y, z float64) error {
	payload, _ := json.Marshal(map[string]interface{}{"node": node, "x": x, "y": y, "z": z})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/position", strings.NewReader(string(payload)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("position update rejected: status %d", resp.StatusCode)
	}
	return nil
}

func run(cmd *cobra.Command, args []string) error {
	waypoints, err := loadWaypoints(pathFile)
	if err != nil {
		return err
	}

	log := logging.New(logging.Config{Level: logging.LevelInfo, Format: logging.FormatText, Output: os.Stdout})
	setter := &httpPositionSetter{baseURL: controlURL, client: &http.Client{Timeout: 5 * time.Second}}
	player := mobility.NewPlayer(setter, tick, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting waypoint playback", "node", node, "waypoints", len(waypoints), "loop", loop)
	return player.Play(ctx, node, waypoints, loop)
}
