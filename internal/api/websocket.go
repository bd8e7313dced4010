package api

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/casement-core/internal/relay"
)

// Fallbacks for relay transport settings the config leaves unset.
const (
	defaultSendBufferSize = 64
	defaultPingInterval   = 30 * time.Second
	defaultPongTimeout    = 10 * time.Second
)

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// relayClient adapts one WebSocket connection to the relay engine.
//
// It implements relay.Sender: outbound frames go through a buffered
// channel drained by writePump, so a slow peer drops frames instead of
// blocking whoever is broadcasting.
type relayClient struct {
	conn   *websocket.Conn
	send   chan []byte
	closed bool
	mu     sync.Mutex
}

// TrySend queues a frame for delivery. Returns false when the peer is
// gone or its buffer is full.
func (c *relayClient) TrySend(data []byte) (ok bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()

	// The send channel may be closed between the flag check and the
	// send; recover turns that race into a dropped frame.
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	select {
	case c.send <- data:
		return true
	default:
		// Peer buffer full, skip
		return false
	}
}

// Writable reports whether the transport can still accept frames.
func (c *relayClient) Writable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// markClosed flags the client so no further frames are queued.
func (c *relayClient) markClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// handleRelay upgrades the HTTP connection and hands it to the relay engine.
//
// The credential arrives as a token query parameter (WebSocket clients
// cannot reliably set headers). When the session gate is up the
// credential must validate; with the gate down (degraded startup) the
// relay still accepts connections, since brokering device/observer
// traffic must survive credential-store outages.
func (s *Server) handleRelay(w http.ResponseWriter, r *http.Request) {
	if s.gate != nil {
		// Browser WebSocket clients cannot set headers, so the query
		// parameter is the primary channel; the header works for
		// everything else.
		raw := r.URL.Query().Get("token")
		if raw == "" {
			raw = bearerToken(r)
		}
		if raw == "" {
			writeUnauthorized(w, "credential required via token query parameter or Authorization header")
			return
		}
		if _, err := s.gate.Validate(r.Context(), raw); err != nil {
			writeUnauthorized(w, authFailureMessage(err))
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("relay upgrade failed", "error", err)
		return
	}

	bufSize := s.relayCfg.SendBufferSize
	if bufSize <= 0 {
		bufSize = defaultSendBufferSize
	}

	client := &relayClient{
		conn: conn,
		send: make(chan []byte, bufSize),
	}

	connID := s.engine.HandleConnect(client)

	go s.writePump(client)
	go s.readPump(client, connID)
}

// relayTimings returns the ping interval and pong wait, falling back to
// defaults for unset config.
func (s *Server) relayTimings() (pingInterval, pongWait time.Duration) {
	pingInterval = time.Duration(s.relayCfg.PingInterval) * time.Second
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}
	pongWait = time.Duration(s.relayCfg.PongTimeout) * time.Second
	if pongWait <= 0 {
		pongWait = defaultPongTimeout
	}
	return pingInterval, pongWait
}

// readPump reads frames from the WebSocket and feeds them to the engine.
// A protocol violation from the engine closes the connection.
func (s *Server) readPump(client *relayClient, connID string) {
	defer func() {
		client.markClosed()
		s.engine.HandleDisconnect(connID)
		client.conn.Close()
		close(client.send)
	}()

	client.conn.SetReadLimit(int64(s.relayCfg.MaxMessageSize))
	pingInterval, pongWait := s.relayTimings()
	//nolint:errcheck // Best-effort deadline on connection setup
	client.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, frame, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("relay read error", "conn_id", connID, "error", err)
			} else {
				s.logger.Debug("relay connection closed", "conn_id", connID, "error", err)
			}
			return
		}
		// Any frame resets the read deadline; the device reports often
		// enough that protocol pings are a fallback, not the norm.
		//nolint:errcheck // Best-effort deadline reset
		client.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))

		if err := s.engine.HandleFrame(connID, frame); err != nil {
			if errors.Is(err, relay.ErrProtocol) {
				s.logger.Warn("closing connection after protocol violation", "conn_id", connID, "error", err)
			}
			return
		}
	}
}

// writePump drains the send buffer onto the WebSocket and keeps the
// connection alive with pings.
func (s *Server) writePump(client *relayClient) {
	pingInterval, pongWait := s.relayTimings()

	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-client.send:
			if !ok {
				// readPump tore the connection down
				//nolint:errcheck // Best-effort close message
				client.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			client.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := client.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				client.markClosed()
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			client.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				client.markClosed()
				return
			}
		}
	}
}
