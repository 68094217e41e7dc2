// Package mobility plays back waypoint paths against a node's position,
// driving it through the control surface (C11) or the orchestrator
// in-process. This is a supplemented feature: moving nodes through a
// scripted path is a core part of exercising a mobile wireless scene,
// so it earns a home here even though spec.md's distillation does not
// name it directly. Segment-by-segment, constant-velocity interpolation
// drives per-tick position updates; the step loop itself is structured
// as a pure function (Interpolate) plus a thin player so it can be
// tested without sleeping in real time.
package mobility

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/joshuamhtsang/sine/internal/linkbudget"
	"github.com/joshuamhtsang/sine/internal/logging"
)

// Waypoint is one stop on a node's path. Velocity is the speed used to
// travel FROM this waypoint TO the next one, in meters/second.
type Waypoint struct {
	Position linkbudget.Vec3
	Velocity float64
}

// PositionSetter updates a node's position; satisfied by an in-process
// *orchestrator.Orchestrator or an HTTP client calling POST /position.
type PositionSetter interface {
	SetPositionXYZ(ctx context.Context, node string, x, y, z float64) error
}

// Interpolate returns the sequence of intermediate positions (including
// the final position, excluding the starting one) visited while moving
// from `from` to `to` at the given velocity, sampled
// every tick. A zero-length segment or non-positive velocity yields no
// steps.
func Interpolate(from, to linkbudget.Vec3, velocity float64, tick time.Duration) []linkbudget.Vec3 {
	dx, dy, dz := to.X-from.X, to.Y-from.Y, to.Z-from.Z
	distance := math.Sqrt(dx*dx + dy*dy + dz*dz)
	if distance < 0.01 || velocity <= 0 {
		return nil
	}

	totalTime := distance / velocity
	steps := int(totalTime / tick.Seconds())
	if steps < 1 {
		steps = 1
	}
	stepDistance := distance / float64(steps)
	dirX, dirY, dirZ := dx/distance, dy/distance, dz/distance

	positions := make([]linkbudget.Vec3, 0, steps)
	traveled := 0.0
	for i := 0; i < steps; i++ {
		traveled += stepDistance
		if traveled > distance {
			traveled = distance
		}
		positions = append(positions, linkbudget.Vec3{
			X: from.X + dirX*traveled,
			Y: from.Y + dirY*traveled,
			Z: from.Z + dirZ*traveled,
		})
	}
	return positions
}

// Player drives a node through a sequence of Waypoints via a PositionSetter.
type Player struct {
	Setter PositionSetter
	Tick   time.Duration
	Log    *logging.Logger
}

// NewPlayer builds a Player. tick defaults to 100ms, matching the
// original script's update_interval_ms default and the orchestrator's
// own poll cadence.
func NewPlayer(setter PositionSetter, tick time.Duration, log *logging.Logger) *Player {
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Player{Setter: setter, Tick: tick, Log: log}
}

// Play moves node through every segment of waypoints in order, sleeping
// Tick between each intermediate position update. If loop is true, the
// path repeats until ctx is cancelled; otherwise Play returns after one
// pass. At least 2 waypoints are required.
func (p *Player) Play(ctx context.Context, node string, waypoints []Waypoint, loop bool) error {
	if len(waypoints) < 2 {
		return fmt.Errorf("mobility: node %q needs at least 2 waypoints, got %d", node, len(waypoints))
	}

	for {
		for i := 0; i < len(waypoints)-1; i++ {
			seg := waypoints[i]
			steps := Interpolate(seg.Position, waypoints[i+1].Position, seg.Velocity, p.Tick)
			for _, pos := range steps {
				if err := p.Setter.SetPositionXYZ(ctx, node, pos.X, pos.Y, pos.Z); err != nil {
					return fmt.Errorf("mobility: update %q position: %w", node, err)
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(p.Tick):
				}
			}
		}
		p.Log.Info("node completed waypoint path", "node", node, "loop", loop)
		if !loop {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}
