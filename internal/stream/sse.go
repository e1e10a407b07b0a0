package stream

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/stagehand-relay/internal/relay"
)

// Subscriber is the relay surface the stream handlers need.
type Subscriber interface {
	Subscribe() *relay.Subscription
}

// SSEHandler serves the update stream as Server-Sent Events. The first event
// is "snapshot" carrying the current state, then one "update" per broadcast.
type SSEHandler struct {
	relay     Subscriber
	heartbeat time.Duration
	logger    *zap.Logger
}

// NewSSEHandler creates an SSEHandler. heartbeat <= 0 disables keepalive comments.
func NewSSEHandler(src Subscriber, heartbeat time.Duration, logger *zap.Logger) *SSEHandler {
	return &SSEHandler{relay: src, heartbeat: heartbeat, logger: logger}
}

func (h *SSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sub := h.relay.Subscribe()
	defer sub.Close()

	log := h.logger.With(zap.String("subscriber_id", string(sub.ID())))
	log.Info("sse subscriber connected", zap.String("remote_addr", r.RemoteAddr))

	if err := writeEvent(w, "snapshot", sub.Initial()); err != nil {
		log.Debug("failed to send snapshot", zap.Error(err))
		return
	}
	flusher.Flush()
	sub.Activate()

	var heartbeat <-chan time.Time
	if h.heartbeat > 0 {
		ticker := time.NewTicker(h.heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			log.Info("sse subscriber disconnected")
			return
		case <-sub.Done():
			log.Info("sse subscriber dropped")
			return
		case u := <-sub.Updates():
			if err := writeEvent(w, "update", u); err != nil {
				log.Debug("failed to write to client", zap.Error(err))
				return
			}
			flusher.Flush()
		case <-heartbeat:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, u relay.Update) error {
	data, err := EncodeJSON(u)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\nid: %d\ndata: %s\n\n", event, u.Seq, data)
	return err
}
