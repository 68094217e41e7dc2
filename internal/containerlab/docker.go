// Package containerlab resolves a topology's node names to the running
// containers that back them (spec.md §6.2, the "container orchestrator
// inbound" surface): each node's PID for nsenter-based shaping, and the
// wired/point-to-point pairs a containerlab-style deployment expresses
// as container-to-container networks outside any declared shared
// bridge.
package containerlab

import (
	"context"
	"fmt"
	"sort"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"

	"github.com/joshuamhtsang/sine/internal/cerrors"
	"github.com/joshuamhtsang/sine/internal/orchestrator"
	"github.com/joshuamhtsang/sine/internal/topology"
)

// DockerClient is the subset of the Docker SDK client this package uses,
// declared locally so it can be faked in tests without a daemon.
type DockerClient interface {
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
}

// Discoverer resolves topology nodes against a running Docker daemon. It
// assumes the containerlab convention that a node's container name
// equals its topology node name.
type Discoverer struct {
	cli DockerClient
}

// NewDockerDiscoverer builds a Discoverer from a live Docker client
// configured from the environment (DOCKER_HOST and friends).
func NewDockerDiscoverer() (*Discoverer, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, cerrors.New(cerrors.KindConfig, "containerlab.NewDockerDiscoverer", fmt.Errorf("create docker client: %w", err))
	}
	return &Discoverer{cli: cli}, nil
}

// NewWithClient builds a Discoverer over an already-constructed client;
// used by tests to inject a fake.
func NewWithClient(cli DockerClient) *Discoverer {
	return &Discoverer{cli: cli}
}

// NewDockerClient builds a live Docker SDK client from the environment,
// for callers (like the Kurtosis discovery backend) that need the raw
// DockerClient rather than a Docker-native Discoverer.
func NewDockerClient() (DockerClient, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, cerrors.New(cerrors.KindConfig, "containerlab.NewDockerClient", fmt.Errorf("create docker client: %w", err))
	}
	return cli, nil
}

// Discover inspects every node in topo and returns the orchestrator.Discovery
// it implies: a PID per node, and the point-to-point wireless pairs
// found by grouping containers sharing a Docker network that is not one
// of topo's declared shared bridges.
func (d *Discoverer) Discover(ctx context.Context, topo *topology.Topology) (orchestrator.Discovery, error) {
	disc := orchestrator.Discovery{
		PID:                make(map[string]int),
		LocalInterfaceName: make(map[string]string),
	}

	bridgeNames := make(map[string]bool, len(topo.SharedBridges))
	for _, b := range topo.SharedBridges {
		bridgeNames[b.Name] = true
	}

	// networkMembers maps a Docker network name to the nodes attached to
	// it, so a network connecting exactly two nodes (and not itself one
	// of the declared shared bridges) becomes a point-to-point pair.
	networkMembers := make(map[string][]string)

	for nodeName := range topo.Nodes {
		inspect, err := d.cli.ContainerInspect(ctx, nodeName)
		if err != nil {
			return orchestrator.Discovery{}, cerrors.New(cerrors.KindConfig, "containerlab.Discover", fmt.Errorf("inspect container %q: %w", nodeName, err))
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
			NodeA: nodeA, IfaceA: ifaceA,
			NodeB: nodeB, IfaceB: ifaceB,
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

// firstWirelessIface returns the first (sorted) wireless interface name
// on node, per the convention that a node's point-to-point Docker
// network corresponds to its single wireless radio.
func firstWirelessIface(topo *topology.Topology, node string) (string, bool) {
	n, ok := topo.Nodes[node]
	if !ok {
		return "", false
	}
	names := make([]string, 0, len(n.Interfaces))
	for name, iface := range n.Interfaces {
		if iface.Kind == topology.InterfaceWireless {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "", false
	}
	sort.Strings(names)
	return names[0], true
}
