package session_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkeye/convoy/internal/core"
	"github.com/dkeye/convoy/internal/domain"
	"github.com/dkeye/convoy/internal/geo"
	"github.com/dkeye/convoy/internal/session"
)

// gatedSink mimics the session gate: publishes are dropped until the
// identity is "assigned".
type gatedSink struct {
	open  atomic.Bool
	sends atomic.Int64
}

func (g *gatedSink) publish(domain.Coordinate) error {
	if !g.open.Load() {
		return core.ErrNotConnected
	}
	g.sends.Add(1)
	return nil
}

func TestPublisherSkipsWhileGateClosed(t *testing.T) {
	sink := &gatedSink{}
	p := session.NewPublisher(&geo.Static{}, sink.publish, 20*time.Millisecond)
	p.Start()
	defer p.Stop()

	time.Sleep(110 * time.Millisecond)
	if n := sink.sends.Load(); n != 0 {
		t.Fatalf("sends with gate closed = %d, want 0", n)
	}

	sink.open.Store(true)
	time.Sleep(110 * time.Millisecond)
	n := sink.sends.Load()
	if n < 2 || n > 7 {
		t.Errorf("sends after opening gate = %d, want roughly one per interval", n)
	}
}

func TestPublisherStopIsIdempotentAndFinal(t *testing.T) {
	sink := &gatedSink{}
	sink.open.Store(true)
	p := session.NewPublisher(&geo.Static{}, sink.publish, 20*time.Millisecond)
	p.Start()
	time.Sleep(70 * time.Millisecond)

	p.Stop()
	p.Stop()

	before := sink.sends.Load()
	time.Sleep(70 * time.Millisecond)
	if after := sink.sends.Load(); after != before {
		t.Errorf("sends after Stop grew from %d to %d", before, after)
	}
}

func TestPublisherRestartDoesNotDuplicateTimers(t *testing.T) {
	sink := &gatedSink{}
	sink.open.Store(true)
	p := session.NewPublisher(&geo.Static{}, sink.publish, 30*time.Millisecond)
	p.Start()
	p.Start()
	defer p.Stop()

	time.Sleep(130 * time.Millisecond)
	n := sink.sends.Load()
	// Two live timers would roughly double the rate.
	if n > 6 {
		t.Errorf("sends = %d, want at most one per interval", n)
	}
	if n < 2 {
		t.Errorf("sends = %d, publisher does not seem to run", n)
	}
}
