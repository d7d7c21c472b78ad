// Package geo provides position sources for the location publisher.
// The real mobile shells plug a platform provider in; these two cover
// servers, tests and the demo CLI.
package geo

import (
	"context"
	"math/rand"
	"sync"

	"github.com/dkeye/convoy/internal/domain"
)

// Static always reports the same position.
type Static struct {
	Position domain.Coordinate
}

func (s *Static) RequestPermission(context.Context) error {
	return nil
}

func (s *Static) CurrentPosition(context.Context) (domain.Coordinate, error) {
	return s.Position, nil
}

// RandomWalk simulates movement: each reading steps at most MaxStep
// degrees from the previous one. Safe for concurrent use.
type RandomWalk struct {
	mu      sync.Mutex
	current domain.Coordinate
	maxStep float64
	rng     *rand.Rand
}

func NewRandomWalk(start domain.Coordinate, maxStep float64, seed int64) *RandomWalk {
	if maxStep <= 0 {
		maxStep = 0.0005
	}
	return &RandomWalk{
		current: start,
		maxStep: maxStep,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

func (w *RandomWalk) RequestPermission(context.Context) error {
	return nil
}

func (w *RandomWalk) CurrentPosition(context.Context) (domain.Coordinate, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.current.Latitude += (w.rng.Float64()*2 - 1) * w.maxStep
	w.current.Longitude += (w.rng.Float64()*2 - 1) * w.maxStep
	return w.current, nil
}
