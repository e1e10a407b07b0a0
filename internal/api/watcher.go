package api

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dgnsrekt/stagehand-relay/internal/relay"
	"github.com/dgnsrekt/stagehand-relay/internal/stream"
)

// Watcher follows the relay's WebSocket stream.
type Watcher struct {
	url     string
	format  stream.Format
	encoder *stream.Encoder
	dialer  *websocket.Dialer
	logger  *zap.Logger
}

// NewWatcher builds a watcher for the relay at baseURL (http or https).
func NewWatcher(baseURL string, format stream.Format, encoder *stream.Encoder, logger *zap.Logger) (*Watcher, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path += "/ws/media"

	return &Watcher{
		url:     u.String(),
		format:  format,
		encoder: encoder,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			Subprotocols:     []string{format.Subprotocol()},
		},
		logger: logger,
	}, nil
}

// Watch calls fn for every update, starting with the initial one. It returns
// nil when ctx is cancelled or the relay closes the stream normally.
func (w *Watcher) Watch(ctx context.Context, fn func(relay.Update)) error {
	conn, resp, err := w.dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", w.url, err)
	}
	defer conn.Close()

	if got := resp.Header.Get("Sec-WebSocket-Protocol"); got != w.format.Subprotocol() {
		return fmt.Errorf("relay negotiated %q, want %q", got, w.format.Subprotocol())
	}
	w.logger.Debug("watching relay", zap.String("url", w.url), zap.Stringer("format", w.format))

	stop := context.AfterFunc(ctx, func() {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	})
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return fmt.Errorf("relay closed stream: %d %s", closeErr.Code, closeErr.Text)
			}
			return fmt.Errorf("reading stream: %w", err)
		}

		u, err := w.encoder.Decode(w.format, data)
		if err != nil {
			return err
		}
		fn(u)
	}
}
