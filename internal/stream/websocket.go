package stream

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dgnsrekt/stagehand-relay/internal/relay"
)

// Maximum message size allowed from peer. Clients only send control frames.
const maxMessageSize = 4 * 1024

// WSConfig holds keepalive timings for the WebSocket stream.
type WSConfig struct {
	// Time allowed to write a message to the peer.
	WriteWait time.Duration
	// Time allowed to read the next pong message from the peer.
	PongWait time.Duration
	// Send pings to peer with this period. Must be less than PongWait.
	PingPeriod time.Duration
}

// DefaultWSConfig returns the standard keepalive timings.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		WriteWait:  10 * time.Second,
		PongWait:   60 * time.Second,
		PingPeriod: 54 * time.Second,
	}
}

// WSHandler serves the update stream over WebSocket.
type WSHandler struct {
	relay    Subscriber
	encoder  *Encoder
	cfg      WSConfig
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewWSHandler(src Subscriber, encoder *Encoder, cfg WSConfig, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		relay:   src,
		encoder: encoder,
		cfg:     cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
			Subprotocols:    []string{ProtocolProtobuf, ProtocolJSON},
		},
		logger: logger,
	}
}

// negotiate picks the first supported subprotocol the client asked for.
// Clients that request none get JSON.
func negotiate(r *http.Request) (Format, http.Header) {
	for _, proto := range websocket.Subprotocols(r) {
		switch proto {
		case ProtocolProtobuf:
			return FormatProtobuf, http.Header{"Sec-WebSocket-Protocol": {proto}}
		case ProtocolJSON:
			return FormatJSON, http.Header{"Sec-WebSocket-Protocol": {proto}}
		}
	}
	return FormatJSON, nil
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	format, responseHeader := negotiate(r)

	h.logger.Debug("websocket subprotocol negotiated",
		zap.Stringer("format", format),
		zap.Strings("requested", websocket.Subprotocols(r)),
	)

	conn, err := h.upgrader.Upgrade(w, r, responseHeader)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &wsClient{
		conn:    conn,
		format:  format,
		encoder: h.encoder,
		cfg:     h.cfg,
		logger: h.logger.With(
			zap.String("connID", uuid.New().String()),
			zap.Stringer("format", format),
		),
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go c.readPump(cancel)
	c.writePump(ctx, h.relay)
}

type wsClient struct {
	conn    *websocket.Conn
	format  Format
	encoder *Encoder
	cfg     WSConfig
	logger  *zap.Logger
}

// readPump discards peer messages and cancels the stream once the peer goes away.
func (c *wsClient) readPump(cancel context.CancelFunc) {
	defer cancel()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
	}
}

// writePump subscribes, writes the initial update, then streams broadcasts
// until the peer leaves, the server shuts down, or the relay drops us.
func (c *wsClient) writePump(ctx context.Context, src Subscriber) {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	sub := src.Subscribe()
	defer sub.Close()

	log := c.logger.With(zap.String("subscriber_id", string(sub.ID())))
	log.Info("websocket subscriber connected", zap.String("remote_addr", c.conn.RemoteAddr().String()))

	if err := c.write(sub.Initial()); err != nil {
		log.Debug("failed to send initial update", zap.Error(err))
		return
	}
	sub.Activate()

	for {
		select {
		case <-ctx.Done():
			c.close(websocket.CloseGoingAway, "")
			log.Info("websocket subscriber disconnected")
			return

		case <-sub.Done():
			c.close(websocket.CloseTryAgainLater, "subscriber dropped")
			log.Info("websocket subscriber dropped")
			return

		case u := <-sub.Updates():
			if err := c.write(u); err != nil {
				log.Debug("websocket write error", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) write(u relay.Update) error {
	data, err := c.encoder.Encode(c.format, u)
	if err != nil {
		return err
	}

	msgType := websocket.TextMessage
	if c.format == FormatProtobuf {
		msgType = websocket.BinaryMessage
	}

	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
	return c.conn.WriteMessage(msgType, data)
}

func (c *wsClient) close(code int, text string) {
	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, text))
}
