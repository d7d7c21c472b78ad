package core

import (
	"context"

	"github.com/dkeye/convoy/internal/domain"
)

// SignalTransport abstracts the one persistent connection to the
// coordination server. Owned by the adapter; the session only sends
// through it and observes its close.
type SignalTransport interface {
	Send(msgType string, payload any) error
	IsConnected() bool
	// OnClose replaces the close observer. Fires once per connection,
	// for caller-initiated and unexpected closes alike.
	OnClose(fn func(error))
	Close()
}

// GeoProvider is what the location publisher needs from the platform.
type GeoProvider interface {
	RequestPermission(ctx context.Context) error
	CurrentPosition(ctx context.Context) (domain.Coordinate, error)
}
