package mobility

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/joshuamhtsang/sine/internal/linkbudget"
)

func TestInterpolateReachesDestination(t *testing.T) {
	steps := Interpolate(linkbudget.Vec3{}, linkbudget.Vec3{X: 10}, 1.0, 100*time.Millisecond)
	if len(steps) == 0 {
		t.Fatalf("expected at least one step")
	}
	last := steps[len(steps)-1]
	if math.Abs(last.X-10) > 1e-9 {
		t.Fatalf("expected final step to land on destination, got %+v", last)
	}
}

func TestInterpolateZeroDistanceYieldsNoSteps(t *testing.T) {
	steps := Interpolate(linkbudget.Vec3{X: 5}, linkbudget.Vec3{X: 5}, 1.0, 100*time.Millisecond)
	if len(steps) != 0 {
		t.Fatalf("expected no steps for a zero-length segment, got %v", steps)
	}
}

func TestInterpolateNonPositiveVelocityYieldsNoSteps(t *testing.T) {
	steps := Interpolate(linkbudget.Vec3{}, linkbudget.Vec3{X: 10}, 0, 100*time.Millisecond)
	if len(steps) != 0 {
		t.Fatalf("expected no steps for zero velocity, got %v", steps)
	}
}

type recordingSetter struct {
	mu        sync.Mutex
	positions []linkbudget.Vec3
}

func (r *recordingSetter) SetPositionXYZ(_ context.Context, _ string, x, y, z float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions = append(r.positions, linkbudget.Vec3{X: x, Y: y, Z: z})
	return nil
}

func TestPlayerVisitsEverySegmentOnce(t *testing.T) {
	setter := &recordingSetter{}
	player := NewPlayer(setter, time.Millisecond, nil)

	waypoints := []Waypoint{
		{Position: linkbudget.Vec3{X: 0}, Velocity: 50},
		{Position: linkbudget.Vec3{X: 1}, Velocity: 50},
		{Position: linkbudget.Vec3{X: 1, Y: 1}, Velocity: 50},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := player.Play(ctx, "node1", waypoints, false); err != nil {
		t.Fatalf("Play: %v", err)
	}

	setter.mu.Lock()
	defer setter.mu.Unlock()
	if len(setter.positions) == 0 {
		t.Fatalf("expected at least one position update")
	}
	last := setter.positions[len(setter.positions)-1]
	if math.Abs(last.X-1) > 1e-6 || math.Abs(last.Y-1) > 1e-6 {
		t.Fatalf("expected path to finish at final waypoint, got %+v", last)
	}
}

func TestPlayRejectsFewerThanTwoWaypoints(t *testing.T) {
	player := NewPlayer(&recordingSetter{}, time.Millisecond, nil)
	err := player.Play(context.Background(), "node1", []Waypoint{{Position: linkbudget.Vec3{}}}, false)
	if err == nil {
		t.Fatalf("expected an error for fewer than 2 waypoints")
	}
}

