package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"morpho-market-indexer/internal/observability"
)

const (
	feedWriteTimeout = 10 * time.Second
	feedPingInterval = 30 * time.Second
	feedPongTimeout  = 60 * time.Second
	feedReadLimit    = 512
	feedSendBuffer   = 8
)

// Feed is a WebSocket hub that pushes run notifications to connected
// dashboard clients. The hub goroutine owns the client set; handlers
// and broadcasters only talk to it through channels.
type Feed struct {
	upgrader   websocket.Upgrader
	register   chan *feedClient
	unregister chan *feedClient
	broadcast  chan []byte
	clients    map[*feedClient]bool
	done       chan struct{}
	logger     *log.Logger
}

// RunNotice is the message pushed to clients after an ingestion run
// lands new data.
type RunNotice struct {
	Type               string `json:"type"`
	RunID              string `json:"runId"`
	Mode               string `json:"mode"`
	ActivitiesIngested int    `json:"activitiesIngested"`
	SnapshotBlock      uint64 `json:"snapshotBlock"`
	FinishedAt         int64  `json:"finishedAt"`
}

// NewFeed creates a feed hub. Run must be called for it to serve.
func NewFeed(logger *log.Logger) *Feed {
	if logger == nil {
		logger = log.Default()
	}

	return &Feed{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		register:   make(chan *feedClient),
		unregister: make(chan *feedClient),
		broadcast:  make(chan []byte, 16),
		clients:    make(map[*feedClient]bool),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run serves the hub until ctx is cancelled, then closes every client.
func (f *Feed) Run(ctx context.Context) {
	defer close(f.done)

	for {
		select {
		case client := <-f.register:
			f.clients[client] = true
			observability.SetWSClients(len(f.clients))

		case client := <-f.unregister:
			if _, ok := f.clients[client]; ok {
				delete(f.clients, client)
				close(client.send)
				observability.SetWSClients(len(f.clients))
			}

		case message := <-f.broadcast:
			for client := range f.clients {
				select {
				case client.send <- message:
				default:
					// Slow client; drop it rather than block the hub.
					delete(f.clients, client)
					close(client.send)
				}
			}
			observability.SetWSClients(len(f.clients))

		case <-ctx.Done():
			for client := range f.clients {
				delete(f.clients, client)
				close(client.send)
			}
			observability.SetWSClients(0)
			return
		}
	}
}

// Broadcast sends v as JSON to every connected client. Failures are
// logged and dropped; the feed never affects a run's outcome.
func (f *Feed) Broadcast(v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		f.logger.Printf("Marshal feed message: %v", err)
		return
	}

	select {
	case f.broadcast <- payload:
	case <-f.done:
	default:
		f.logger.Printf("Feed backlog full, dropping message")
	}
}

type feedClient struct {
	feed *Feed
	conn *websocket.Conn
	send chan []byte
}

func (f *Feed) handleConnect(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Printf("Upgrade websocket: %v", err)
		return
	}

	client := &feedClient{feed: f, conn: conn, send: make(chan []byte, feedSendBuffer)}
	select {
	case f.register <- client:
	case <-f.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump discards inbound frames; the feed is one-way. It keeps the
// read side alive for pong handling and detects closed connections.
func (c *feedClient) readPump() {
	defer func() {
		select {
		case c.feed.unregister <- c:
		case <-c.feed.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(feedReadLimit)
	c.conn.SetReadDeadline(time.Now().Add(feedPongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(feedPongTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *feedClient) writePump() {
	ticker := time.NewTicker(feedPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
