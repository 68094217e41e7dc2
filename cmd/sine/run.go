package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/joshuamhtsang/sine/internal/config"
	"github.com/joshuamhtsang/sine/internal/containerlab"
	"github.com/joshuamhtsang/sine/internal/control"
	"github.com/joshuamhtsang/sine/internal/logging"
	"github.com/joshuamhtsang/sine/internal/metrics"
	"github.com/joshuamhtsang/sine/internal/orchestrator"
	"github.com/joshuamhtsang/sine/internal/pathsolver"
	"github.com/joshuamhtsang/sine/internal/pipeline"
	"github.com/joshuamhtsang/sine/internal/shaper"
	"github.com/joshuamhtsang/sine/internal/topology"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Args:  cobra.NoArgs,
	Short: "Load a topology and run the channel-and-shaping emulation loop",
	Long:  `Loads a network.yaml topology, discovers its containers, and continuously recomputes and applies channel conditions until interrupted.`,
	RunE:  runEmulation,
}

var (
	runTopologyPath string
	runMCSTableDir  string
	runSceneFreqHz  float64
	runSceneBwHz    float64
	runSetFlags     []string
)

func init() {
	runCmd.Flags().StringVar(&runTopologyPath, "topology", "", "path to network.yaml (overrides config)")
	runCmd.Flags().StringVar(&runMCSTableDir, "mcs-dir", "", "directory containing MCS table files")
	runCmd.Flags().Float64Var(&runSceneFreqHz, "scene-freq-hz", 5.18e9, "scene reference frequency in Hz")
	runCmd.Flags().Float64Var(&runSceneBwHz, "scene-bw-hz", 20e6, "scene reference bandwidth in Hz")
	runCmd.Flags().StringArrayVar(&runSetFlags, "set", nil, "override topology values (e.g. --set nodes.node1.wlan0.tx_power_dbm=17)")
}

// parseSetFlags turns a list of "key=value" strings into a map,
// discarding malformed entries the same way chaos-runner's run.go does.
func parseSetFlags(setFlags []string) map[string]string {
	overrides := make(map[string]string, len(setFlags))
	for _, flag := range setFlags {
		parts := strings.SplitN(flag, "=", 2)
		if len(parts) == 2 {
			overrides[parts[0]] = parts[1]
		}
	}
	return overrides
}

func runEmulation(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	topoPath := runTopologyPath
	if topoPath == "" {
		topoPath = cfg.Topology.Path
	}

	logLevel := logging.LevelInfo
	if verbose {
		logLevel = logging.LevelDebug
	}
	log := logging.New(logging.Config{
		Level:  logLevel,
		Format: logging.Format(cfg.Framework.LogFormat),
		Output: os.Stdout,
	})

	log.Info("sine starting", "version", version, "topology", topoPath)

	topo, err := topology.Load(topoPath, runMCSTableDir)
	if err != nil {
		return fmt.Errorf("load topology: %w", err)
	}

	if overrides := parseSetFlags(runSetFlags); len(overrides) > 0 {
		if err := topology.ApplyOverrides(topo, overrides); err != nil {
			return fmt.Errorf("apply --set overrides: %w", err)
		}
		log.Debug("applied topology overrides", "count", len(overrides))
	}
	if err := topo.Validate(); err != nil {
		return fmt.Errorf("topology invalid after overrides: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var disc orchestrator.Discovery
	switch cfg.Discovery.Backend {
	case "docker":
		dockerDiscoverer, err := containerlab.NewDockerDiscoverer()
		if err != nil {
			return fmt.Errorf("create docker discoverer: %w", err)
		}
		disc, err = dockerDiscoverer.Discover(ctx, topo)
		if err != nil {
			return fmt.Errorf("discover containers: %w", err)
		}
	case "kurtosis":
		dockerForKurtosis, err := containerlab.NewDockerClient()
		if err != nil {
			return fmt.Errorf("create docker client for kurtosis discovery: %w", err)
		}
		kurtosisDiscoverer, err := containerlab.NewKurtosisDiscoverer(dockerForKurtosis, cfg.Discovery.KurtosisEnclave)
		if err != nil {
			return fmt.Errorf("create kurtosis discoverer: %w", err)
		}
		disc, err = kurtosisDiscoverer.Discover(ctx, topo)
		if err != nil {
			return fmt.Errorf("discover kurtosis services: %w", err)
		}
	default:
		return fmt.Errorf("unsupported discovery backend %q", cfg.Discovery.Backend)
	}
	log.Info("container discovery complete", "nodes", len(disc.PID), "point_to_point_links", len(disc.PointToPoint))

	fallback := pathsolver.NewFallback(false)
	var rtSolver pathsolver.PairSolver
	if cfg.Solver.ExternalURL != "" {
		external := pathsolver.NewExternalSolver(cfg.Solver.ExternalURL, cfg.Solver.RequestTimeout)
		rtSolver = pathsolver.NewRateLimitedSolver(external, cfg.Solver.RateLimitHz, cfg.Solver.Burst, ctx)
		log.Info("external ray-tracing solver configured", "url", cfg.Solver.ExternalURL, "rate_hz", cfg.Solver.RateLimitHz)
	}
	solverImpl, err := pathsolver.Select(pathsolver.EngineAuto, pathsolver.ModeNormal, rtSolver, fallback)
	if err != nil {
		return fmt.Errorf("select path solver: %w", err)
	}
	solver := pathsolver.NewCachedSolver(solverImpl)

	channelCtx := pipeline.NewChannelContext(solver, log)
	sh := shaper.New(shaper.NsenterExecutor{})

	orch, err := orchestrator.New(orchestrator.Config{
		Topology:     topo,
		Discovery:    disc,
		ChannelCtx:   channelCtx,
		Shaper:       sh,
		SceneFreqHz:  runSceneFreqHz,
		SceneBwHz:    runSceneBwHz,
		PollInterval: cfg.Topology.PollInterval,
		Logger:       log,
	})
	if err != nil {
		return fmt.Errorf("create orchestrator: %w", err)
	}

	var exporter *metrics.Exporter
	if cfg.Metrics.Enabled {
		exporter = metrics.New()
		metricsSrv := &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: exporter.Handler()}
		go func() {
			log.Info("metrics server listening", "addr", cfg.Metrics.ListenAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server failed", "error", err.Error())
			}
		}()
		go func() {
			<-ctx.Done()
			_ = metricsSrv.Close()
		}()
	}

	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("start orchestrator: %w", err)
	}
	log.Info("initial batch complete", "links", len(orch.Snapshot().Metrics))

	if exporter != nil {
		exporter.Observe(orch.Snapshot())
		go exportMetricsOnPoll(ctx, orch, exporter, cfg.Topology.PollInterval)
	}

	var controlSrv *http.Server
	if cfg.Control.Enabled {
		var queryClient *metrics.QueryClient
		if cfg.Metrics.QueryURL != "" {
			queryClient, err = metrics.NewQueryClient(metrics.QueryConfig{
				URL:     cfg.Metrics.QueryURL,
				Timeout: cfg.Metrics.QueryTimeout,
			}, log)
			if err != nil {
				return fmt.Errorf("create metrics query client: %w", err)
			}
		}
		handler := control.New(orch, log, cfg.Control.RequestTimeout, queryClient)
		controlSrv = &http.Server{Addr: cfg.Control.ListenAddr, Handler: handler}
		go func() {
			log.Info("control server listening", "addr", cfg.Control.ListenAddr)
			if err := controlSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("control server failed", "error", err.Error())
			}
		}()
	}

	<-ctx.Done()
	log.Info("shutdown signal received, stopping")
	orch.Stop()
	if controlSrv != nil {
		_ = controlSrv.Close()
	}
	return nil
}

// exportMetricsOnPoll re-publishes the orchestrator's Snapshot to
// exporter every interval, so Prometheus sees results from the poll
// loop's recomputes and not just the initial batch.
func exportMetricsOnPoll(ctx context.Context, orch *orchestrator.Orchestrator, exporter *metrics.Exporter, interval time.Duration) {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			exporter.Observe(orch.Snapshot())
		}
	}
}
