package containerlab

import (
	"context"
	"fmt"
	"sort"

	"github.com/kurtosis-tech/kurtosis/api/golang/engine/lib/kurtosis_context"

	"github.com/joshuamhtsang/sine/internal/cerrors"
	"github.com/joshuamhtsang/sine/internal/orchestrator"
	"github.com/joshuamhtsang/sine/internal/topology"
)

// KurtosisDiscoverer resolves topology nodes to container PIDs when a
// scene is deployed as Kurtosis services rather than bare `docker run`
// containers — the second discovery backend spec.md §6.2 leaves open.
// It resolves each node's enclave service to a container name (falling
// back to the enclave-prefixed name Kurtosis sometimes uses), then
// shares the same DockerClient the Docker-native Discoverer uses for
// the PID lookup.
type KurtosisDiscoverer struct {
	kurtosisCtx *kurtosis_context.KurtosisContext
	docker      DockerClient
	enclave     string
}

// NewKurtosisDiscoverer connects to the local Kurtosis engine and returns
// a discoverer scoped to enclave.
func NewKurtosisDiscoverer(docker DockerClient, enclave string) (*KurtosisDiscoverer, error) {
	ctx, err := kurtosis_context.NewKurtosisContextFromLocalEngine()
	if err != nil {
		return nil, cerrors.New(cerrors.KindConfig, "containerlab.NewKurtosisDiscoverer", fmt.Errorf("connect to kurtosis engine: %w", err))
	}
	return &KurtosisDiscoverer{kurtosisCtx: ctx, docker: docker, enclave: enclave}, nil
}

// Discover resolves every topology node to its Kurtosis service's
// container PID, then derives point-to-point links the same way the
// Docker-native Discoverer does (by shared, non-bridge network
// membership), since Kurtosis services still sit on Docker networks
// under the hood.
func (k *KurtosisDiscoverer) Discover(ctx context.Context, topo *topology.Topology) (orchestrator.Discovery, error) {
	enclaveCtx, err := k.kurtosisCtx.GetEnclaveContext(ctx, k.enclave)
	if err != nil {
		return orchestrator.Discovery{}, cerrors.New(cerrors.KindConfig, "containerlab.Discover", fmt.Errorf("get enclave %q: %w", k.enclave, err))
	}

	disc := orchestrator.Discovery{PID: make(map[string]int), LocalInterfaceName: make(map[string]string)}
	bridgeNames := make(map[string]bool, len(topo.SharedBridges))
	for _, b := range topo.SharedBridges {
		bridgeNames[b.Name] = true
	}
	networkMembers := make(map[string][]string)

	for nodeName := range topo.Nodes {
		containerName := nodeName
		if _, err := enclaveCtx.GetServiceContext(nodeName); err != nil {
			// Kurtosis often prefixes service container names with the
			// enclave name; fall back to that before giving up.
			containerName = fmt.Sprintf("%s--%s", k.enclave, nodeName)
		}

		inspect, err := k.docker.ContainerInspect(ctx, containerName)
		if err != nil {
			return orchestrator.Discovery{}, cerrors.New(cerrors.KindConfig, "containerlab.Discover", fmt.Errorf("inspect kurtosis service %q (container %q): %w", nodeName, containerName, err))
		}
		disc.PID[nodeName] = inspect.State.Pid

		if inspect.NetworkSettings != nil {
			for netName := range inspect.NetworkSettings.Networks {
				if bridgeNames[netName] {
					continue
				}
				networkMembers[netName] = append(networkMembers[netName], nodeName)
			}
		}
	}

	for _, members := range networkMembers {
		if len(members) != 2 {
			continue
		}
		sort.Strings(members)
		nodeA, nodeB := members[0], members[1]
		ifaceA, okA := firstWirelessIface(topo, nodeA)
		ifaceB, okB := firstWirelessIface(topo, nodeB)
		if !okA || !okB {
			continue
		}
		disc.PointToPoint = append(disc.PointToPoint, orchestrator.PointToPointLink{
			NodeA: nodeA, IfaceA: ifaceA, NodeB: nodeB, IfaceB: ifaceB,
		})
	}
	sort.Slice(disc.PointToPoint, func(i, j int) bool {
		if disc.PointToPoint[i].NodeA != disc.PointToPoint[j].NodeA {
			return disc.PointToPoint[i].NodeA < disc.PointToPoint[j].NodeA
		}
		return disc.PointToPoint[i].NodeB < disc.PointToPoint[j].NodeB
	})

	return disc, nil
}
