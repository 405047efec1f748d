package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/bsdavidson/oink/internal/commands"
	"github.com/bsdavidson/oink/internal/logging"
	"github.com/bsdavidson/oink/internal/protocol"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192

	// Events queued per client before new ones are dropped
	sendBufferSize = 64
)

// Encoding query values for /events
const (
	EncodingJSON = "json"
	EncodingCBOR = "cbor"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Event is one inbound packet as streamed on /events.
// Name and Value are filled in when the command table knows the packet.
type Event struct {
	Command    string    `json:"command" cbor:"command"`
	Parameter  string    `json:"parameter" cbor:"parameter"`
	DeviceType string    `json:"deviceType" cbor:"deviceType"`
	Zone       string    `json:"zone,omitempty" cbor:"zone,omitempty"`
	Name       string    `json:"name,omitempty" cbor:"name,omitempty"`
	Value      string    `json:"value,omitempty" cbor:"value,omitempty"`
	Received   time.Time `json:"received" cbor:"received"`
}

// NewEvent wraps p, naming it from the default command table
func NewEvent(p protocol.Packet, received time.Time) Event {
	e := Event{
		Command:    p.Command,
		Parameter:  p.Parameter,
		DeviceType: p.DeviceType,
		Received:   received,
	}

	table, err := commands.Default()
	if err != nil {
		return e
	}
	e.Zone, e.Name, e.Value, _ = table.Identify(p)
	return e
}

// client is one /events websocket connection
type client struct {
	id       string
	conn     *websocket.Conn
	encoding string
	send     chan []byte
	done     chan struct{}
	once     sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		_ = c.conn.Close()
	})
}

func (c *client) messageType() int {
	if c.encoding == EncodingCBOR {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}

func encodeEvent(e Event, encoding string) ([]byte, error) {
	if encoding == EncodingCBOR {
		return cbor.Marshal(e)
	}
	return json.Marshal(e)
}

// handleEvents upgrades to a websocket and streams every packet the
// receiver sends until the peer goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	encoding := r.URL.Query().Get("encoding")
	switch encoding {
	case "":
		encoding = EncodingJSON
	case EncodingJSON, EncodingCBOR:
	default:
		http.Error(w, "unsupported encoding (expected json or cbor)", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response
		logging.Debug("WebSocket upgrade failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return
	}

	c := &client{
		id:       uuid.New().String(),
		conn:     conn,
		encoding: encoding,
		send:     make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
	}

	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()
	s.wg.Add(1)

	logging.Info("Event stream opened",
		zap.String("client_id", c.id),
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("encoding", encoding),
	)

	unsubscribe := s.device.Subscribe(func(p protocol.Packet) {
		data, err := encodeEvent(NewEvent(p, time.Now()), c.encoding)
		if err != nil {
			logging.Error("Failed to encode event", zap.String("client_id", c.id), zap.Error(err))
			return
		}
		select {
		case c.send <- data:
		case <-c.done:
		default:
			logging.Warn("Event stream full, dropping event",
				zap.String("client_id", c.id),
				zap.String("command", p.Command),
			)
		}
	})

	go s.writePump(c)
	s.readPump(c)

	unsubscribe()
	c.close()

	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()
	s.wg.Done()

	logging.LogConnection(r.RemoteAddr, "event_stream_closed")
}

// readPump discards client messages and keeps the pong deadline fresh.
// It returns when the connection fails or is closed.
func (s *Server) readPump(c *client) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Debug("Event stream read error", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}
		logging.LogEventFrame(c.id, "received", messageType == websocket.BinaryMessage, data)
	}
}

// writePump is the only writer on c.conn
func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(c.messageType(), data); err != nil {
				logging.Debug("Event stream write failed", zap.String("client_id", c.id), zap.Error(err))
				return
			}
			logging.LogEventFrame(c.id, "sent", c.messageType() == websocket.BinaryMessage, data)

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}
