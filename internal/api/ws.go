package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ashgrove/scrollmarket/internal/book"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in development
	},
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Broadcaster pushes book snapshots to websocket subscribers from the
// in-memory index. Snapshots are advisory reads; the store stays the
// source of truth.
type Broadcaster struct {
	book  *book.Book
	log   *zap.Logger
	depth int

	mu      sync.RWMutex
	clients map[*wsClient]bool
}

// NewBroadcaster creates a broadcaster over the book index.
func NewBroadcaster(idx *book.Book, log *zap.Logger, depth int) *Broadcaster {
	if log == nil {
		log = zap.NewNop()
	}
	return &Broadcaster{
		book:    idx,
		log:     log,
		depth:   depth,
		clients: make(map[*wsClient]bool),
	}
}

// Broadcast sends the current snapshot to every subscriber.
func (b *Broadcaster) Broadcast() {
	snap := b.book.Snapshot(b.depth)

	b.mu.RLock()
	clients := make([]*wsClient, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, client := range clients {
		client.mu.Lock()
		err := client.conn.WriteJSON(snap)
		client.mu.Unlock()
		if err != nil {
			b.log.Warn("dropping websocket client", zap.Error(err))
			b.remove(client)
		}
	}
}

// Run broadcasts on the interval until stop is closed.
func (b *Broadcaster) Run(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.Broadcast()
		case <-stop:
			return
		}
	}
}

func (b *Broadcaster) remove(client *wsClient) {
	b.mu.Lock()
	delete(b.clients, client)
	b.mu.Unlock()
	client.conn.Close()
}

// Handle upgrades the connection and subscribes it to snapshots.
func (b *Broadcaster) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &wsClient{conn: conn}
	b.mu.Lock()
	b.clients[client] = true
	b.mu.Unlock()

	// Initial snapshot, then keep the connection open until the peer
	// goes away.
	client.mu.Lock()
	_ = conn.WriteJSON(b.book.Snapshot(b.depth))
	client.mu.Unlock()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			b.remove(client)
			return
		}
	}
}
