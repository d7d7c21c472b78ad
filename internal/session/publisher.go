package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/convoy/internal/core"
	"github.com/dkeye/convoy/internal/domain"
)

const defaultPublishInterval = 10 * time.Second

// Publisher is the timer loop that shares the device position while a
// session is joined. Each tick acquires permission and position, then
// publishes; ticks that cannot publish (identity missing, connection
// down, position unavailable) are skipped, never queued.
type Publisher struct {
	geo      core.GeoProvider
	publish  func(domain.Coordinate) error
	interval time.Duration

	mu   sync.Mutex
	stop chan struct{}
}

func NewPublisher(geo core.GeoProvider, publish func(domain.Coordinate) error, interval time.Duration) *Publisher {
	if interval <= 0 {
		interval = defaultPublishInterval
	}
	return &Publisher{geo: geo, publish: publish, interval: interval}
}

// Start begins ticking. A running publisher is stopped first so there
// is never more than one timer.
func (p *Publisher) Start() {
	p.mu.Lock()
	if p.stop != nil {
		close(p.stop)
	}
	stop := make(chan struct{})
	p.stop = stop
	p.mu.Unlock()

	go p.loop(stop)
	log.Debug().Str("module", "session.publisher").Dur("interval", p.interval).Msg("publisher started")
}

// Stop is idempotent.
func (p *Publisher) Stop() {
	p.mu.Lock()
	if p.stop != nil {
		close(p.stop)
		p.stop = nil
	}
	p.mu.Unlock()
}

func (p *Publisher) loop(stop chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.tick()
		}
	}
}

func (p *Publisher) tick() {
	if p.geo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.interval)
	defer cancel()

	if err := p.geo.RequestPermission(ctx); err != nil {
		log.Warn().Err(err).Str("module", "session.publisher").Msg("no location permission")
		return
	}
	pos, err := p.geo.CurrentPosition(ctx)
	if err != nil {
		log.Warn().Err(err).Str("module", "session.publisher").Msg("position unavailable")
		return
	}
	if err := p.publish(pos); err != nil {
		log.Debug().Err(err).Str("module", "session.publisher").Msg("tick skipped")
	}
}
