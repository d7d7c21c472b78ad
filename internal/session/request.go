package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/convoy/internal/core"
)

// awaitReply wraps a fire-and-forget exchange into a request/reply
// pair: it registers a one-shot handler for replyType, sends, and races
// the reply against the timeout. Whichever settles first unregisters
// the handler, so a late reply can neither resolve nor leak; the result
// is delivered at most once.
func awaitReply[T any](ctx context.Context, r *Router, replyType string, timeout time.Duration, send func() error) (T, error) {
	var zero T
	replies := make(chan T, 1)
	unregister := r.OnMessage(replyType, func(payload []byte) {
		var v T
		if err := json.Unmarshal(payload, &v); err != nil {
			log.Error().Err(err).Str("module", "session").Str("type", replyType).Msg("bad reply payload")
			return
		}
		select {
		case replies <- v:
		default:
		}
	})
	defer unregister()

	if err := send(); err != nil {
		return zero, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case v := <-replies:
		return v, nil
	case <-timer.C:
		return zero, core.ErrRequestTimeout
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
