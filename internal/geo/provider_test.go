package geo

import (
	"context"
	"math"
	"testing"

	"github.com/dkeye/convoy/internal/domain"
)

func TestStaticAlwaysSamePosition(t *testing.T) {
	p := &Static{Position: domain.Coordinate{Latitude: 1.5, Longitude: -2.5}}
	for i := 0; i < 3; i++ {
		pos, err := p.CurrentPosition(context.Background())
		if err != nil {
			t.Fatalf("CurrentPosition failed: %v", err)
		}
		if pos != p.Position {
			t.Errorf("position = %+v", pos)
		}
	}
}

func TestRandomWalkStepsAreBounded(t *testing.T) {
	start := domain.Coordinate{Latitude: 52.52, Longitude: 13.405}
	w := NewRandomWalk(start, 0.001, 1)

	prev := start
	for i := 0; i < 100; i++ {
		pos, err := w.CurrentPosition(context.Background())
		if err != nil {
			t.Fatalf("CurrentPosition failed: %v", err)
		}
		if d := math.Abs(pos.Latitude - prev.Latitude); d > 0.001 {
			t.Fatalf("lat step %d = %v, exceeds max", i, d)
		}
		if d := math.Abs(pos.Longitude - prev.Longitude); d > 0.001 {
			t.Fatalf("lng step %d = %v, exceeds max", i, d)
		}
		prev = pos
	}
	if prev == start {
		t.Error("walker never moved")
	}
}
