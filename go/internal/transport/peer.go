package transport

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mcdev12/scorelink/go/internal/session"
	"github.com/rs/zerolog/log"
)

type outbound struct {
	messageType int
	data        []byte
}

// peerConn is one WebSocket link to a remote device. Both sides must accept before
// the link counts as established; payloads received earlier are dropped.
type peerConn struct {
	t      *NetTransport
	remote session.Endpoint
	conn   *websocket.Conn
	send   chan outbound

	mu             sync.Mutex
	localAccepted  bool
	remoteAccepted bool
	established    bool
	closed         bool
	// reported is set once a terminal event (failed result or disconnect) has been
	// emitted, or when the close was requested locally and needs no event.
	reported bool
}

func (c *peerConn) start() {
	go c.writePump()
	go c.readPump()
}

// accept marks the link accepted locally before telling the remote side, so a payload
// the remote sends in reply to ACCEPT always finds the link established.
func (c *peerConn) accept() {
	c.mu.Lock()
	c.localAccepted = true
	c.mu.Unlock()
	c.checkEstablished()

	if err := c.enqueue(outbound{websocket.TextMessage, []byte(controlAccept)}); err != nil {
		log.Warn().Err(err).Str("endpoint", string(c.remote)).Msg("failed to send accept")
	}
}

func (c *peerConn) reject() {
	if err := c.enqueue(outbound{websocket.TextMessage, []byte(controlReject)}); err != nil {
		log.Warn().Err(err).Str("endpoint", string(c.remote)).Msg("failed to send reject")
	}

	c.mu.Lock()
	alreadyReported := c.reported
	c.reported = true
	c.mu.Unlock()

	c.shutdown()
	if !alreadyReported {
		c.t.emit(session.ConnectionResult{Endpoint: c.remote, OK: false, Err: errors.New("connection rejected locally")})
	}
}

// closeLocal closes the link without reporting it back to this device
func (c *peerConn) closeLocal() {
	c.mu.Lock()
	c.reported = true
	c.mu.Unlock()
	c.shutdown()
}

func (c *peerConn) checkEstablished() {
	c.mu.Lock()
	if c.established || c.closed || !c.localAccepted || !c.remoteAccepted {
		c.mu.Unlock()
		return
	}
	c.established = true
	c.mu.Unlock()

	log.Info().Str("endpoint", string(c.remote)).Msg("peer connection established")
	c.t.emit(session.ConnectionResult{Endpoint: c.remote, OK: true})
}

func (c *peerConn) sendData(data []byte) error {
	c.mu.Lock()
	established := c.established
	c.mu.Unlock()
	if !established {
		return fmt.Errorf("send to %s: %w", c.remote, ErrNotConnected)
	}
	return c.enqueue(outbound{websocket.BinaryMessage, append([]byte(nil), data...)})
}

func (c *peerConn) enqueue(msg outbound) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("send to %s: %w", c.remote, ErrNotConnected)
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return fmt.Errorf("send to %s: send buffer full", c.remote)
	}
}

// shutdown stops the write pump, which closes the socket and ends the read pump
func (c *peerConn) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.t.unregister(c)
}

// finish runs once the read pump exits and reports the loss if nobody else did
func (c *peerConn) finish() {
	c.mu.Lock()
	report := !c.reported
	c.reported = true
	established := c.established
	c.mu.Unlock()

	c.shutdown()
	c.conn.Close()

	if !report {
		return
	}
	if established {
		c.t.emit(session.Disconnected{Endpoint: c.remote})
		return
	}
	c.t.emit(session.ConnectionResult{
		Endpoint: c.remote,
		OK:       false,
		Err:      fmt.Errorf("connection to %s closed before it was established", c.remote),
	})
}

// writePump handles sending messages to the WebSocket connection
func (c *peerConn) writePump() {
	cfg := c.t.config.Connection
	ticker := c.t.clock.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if !ok {
				// channel was closed
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(msg.messageType, msg.data); err != nil {
				log.Error().
					Err(err).
					Str("endpoint", string(c.remote)).
					Msg("failed to write message to peer")
				return
			}

		case <-ticker.Chan():
			c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("endpoint", string(c.remote)).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *peerConn) readPump() {
	defer c.finish()

	cfg := c.t.config.Connection
	c.conn.SetReadLimit(cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().
					Err(err).
					Str("endpoint", string(c.remote)).
					Msg("unexpected peer close")
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))

		switch messageType {
		case websocket.TextMessage:
			c.handleControl(string(message))
		case websocket.BinaryMessage:
			c.mu.Lock()
			established := c.established
			c.mu.Unlock()
			if !established {
				log.Warn().Str("endpoint", string(c.remote)).Msg("dropping payload before connection established")
				continue
			}
			c.t.emit(session.PayloadReceived{Endpoint: c.remote, Data: message})
		}
	}
}

func (c *peerConn) handleControl(msg string) {
	switch msg {
	case controlAccept:
		c.mu.Lock()
		c.remoteAccepted = true
		c.mu.Unlock()
		c.checkEstablished()
	case controlReject:
		c.mu.Lock()
		alreadyReported := c.reported
		c.reported = true
		c.mu.Unlock()
		c.shutdown()
		if !alreadyReported {
			c.t.emit(session.ConnectionResult{Endpoint: c.remote, OK: false, Err: errors.New("connection rejected by peer")})
		}
	default:
		log.Debug().Str("endpoint", string(c.remote)).Str("message", msg).Msg("ignoring unknown control message")
	}
}
