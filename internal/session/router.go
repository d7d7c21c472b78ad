package session

import (
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/dkeye/convoy/internal/protocol"
)

// HandlerFunc receives only the payload of a matched frame, never the
// envelope.
type HandlerFunc func(payload []byte)

// FoldFunc is invoked with every room-shaped payload before dispatch.
type FoldFunc func(payload []byte)

// Router is the single dispatch point from inbound frames to handlers.
// At most one handler per message type: registering replaces any
// previous handler for that type, there is no queueing. Call sites rely
// on that to clear stale handlers by overwriting them.
type Router struct {
	mu       sync.Mutex
	seq      uint64
	handlers map[string]handlerEntry
	fold     FoldFunc
}

type handlerEntry struct {
	id uint64
	fn HandlerFunc
}

func NewRouter() *Router {
	return &Router{handlers: make(map[string]handlerEntry)}
}

// SetFold replaces the snapshot-fold hook.
func (r *Router) SetFold(fn FoldFunc) {
	r.mu.Lock()
	r.fold = fn
	r.mu.Unlock()
}

// OnMessage registers fn for msgType, replacing any existing handler.
// The returned func unregisters fn; it is a no-op if a later handler
// already replaced it.
func (r *Router) OnMessage(msgType string, fn HandlerFunc) func() {
	r.mu.Lock()
	r.seq++
	id := r.seq
	r.handlers[msgType] = handlerEntry{id: id, fn: fn}
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		if e, ok := r.handlers[msgType]; ok && e.id == id {
			delete(r.handlers, msgType)
		}
		r.mu.Unlock()
	}
}

// Dispatch routes one decoded frame: the fold hook runs for any payload
// carrying users or destination fields, whether or not a handler is
// registered, so the room snapshot stays current opportunistically.
// Then exactly zero or one handler is invoked.
func (r *Router) Dispatch(env protocol.Envelope) {
	payload := []byte(env.Payload)

	r.mu.Lock()
	fold := r.fold
	entry, matched := r.handlers[env.Type]
	r.mu.Unlock()

	if fold != nil && len(payload) > 0 && roomShaped(payload) {
		fold(payload)
	}
	if !matched {
		log.Debug().Str("module", "session.router").Str("type", env.Type).Msg("no handler")
		return
	}
	entry.fn(payload)
}

func roomShaped(payload []byte) bool {
	return gjson.GetBytes(payload, "users").Exists() ||
		gjson.GetBytes(payload, "destination").Exists()
}
