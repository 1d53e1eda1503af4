package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"coinrush/store"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32
)

// DocumentSubscriber is what the hub needs to follow documents.
type DocumentSubscriber interface {
	Subscribe(ctx context.Context, collection, id string, onChange func(store.Document), onError func(error)) (store.Unsubscribe, error)
}

// Hub streams document snapshots to websocket clients. Each watched document has
// one store subscription, opened with its first client and closed with its last.
type Hub struct {
	docs       DocumentSubscriber
	clients    map[*Client]bool
	feeds      map[string]*feed
	broadcast  chan feedUpdate
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mutex      sync.RWMutex
}

type Client struct {
	hub        *Hub
	id         string
	socket     *websocket.Conn
	send       chan []byte
	collection string
	docID      string
	uid        string
}

type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type feed struct {
	key         string
	unsubscribe store.Unsubscribe
	clients     map[*Client]bool
	last        []byte
}

type feedUpdate struct {
	feed *feed
	data []byte
	err  error
}

func NewHub(docs DocumentSubscriber) *Hub {
	return &Hub{
		docs:       docs,
		clients:    make(map[*Client]bool),
		feeds:      make(map[string]*feed),
		broadcast:  make(chan feedUpdate, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run owns the client and feed maps until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		h.mutex.Lock()
		for key, f := range h.feeds {
			f.unsubscribe()
			delete(h.feeds, key)
		}
		for client := range h.clients {
			close(client.send)
			delete(h.clients, client)
		}
		h.mutex.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.addClient(ctx, client)

		case client := <-h.unregister:
			h.mutex.Lock()
			h.removeClient(client)
			h.mutex.Unlock()

		case update := <-h.broadcast:
			h.mutex.Lock()
			h.deliver(update)
			h.mutex.Unlock()
		}
	}
}

func (h *Hub) addClient(ctx context.Context, client *Client) {
	key := client.collection + ":" + client.docID

	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.clients[client] = true
	f, ok := h.feeds[key]
	if !ok {
		f = &feed{key: key, clients: make(map[*Client]bool)}
		unsubscribe, err := h.docs.Subscribe(ctx, client.collection, client.docID,
			func(doc store.Document) { h.publish(f, doc) },
			func(err error) { h.fail(f, err) },
		)
		if err != nil {
			log.Warn().Err(err).Str("doc", key).Str("client", client.id).Msg("could not watch document")
			h.sendTo(client, errorMessage(err))
			close(client.send)
			delete(h.clients, client)
			return
		}
		f.unsubscribe = unsubscribe
		h.feeds[key] = f
	}
	f.clients[client] = true
	if f.last != nil {
		h.sendTo(client, f.last)
	}
	log.Debug().Str("doc", key).Str("client", client.id).Str("uid", client.uid).Int("watchers", len(f.clients)).Msg("client registered")
}

// removeClient expects the mutex to be held.
func (h *Hub) removeClient(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)

	key := client.collection + ":" + client.docID
	f, ok := h.feeds[key]
	if !ok {
		return
	}
	delete(f.clients, client)
	if len(f.clients) == 0 {
		f.unsubscribe()
		delete(h.feeds, key)
		log.Debug().Str("doc", key).Msg("stopped watching document")
	}
}

// deliver expects the mutex to be held. Updates from a feed that has been
// replaced or closed are ignored.
func (h *Hub) deliver(update feedUpdate) {
	f := update.feed
	if h.feeds[f.key] != f {
		return
	}
	if update.err != nil {
		log.Warn().Err(update.err).Str("doc", f.key).Msg("document stream failed")
		data := errorMessage(update.err)
		for client := range f.clients {
			h.sendTo(client, data)
			h.removeClient(client)
		}
		return
	}
	f.last = update.data
	for client := range f.clients {
		h.sendTo(client, update.data)
	}
}

// sendTo drops clients that cannot keep up. The mutex must be held.
func (h *Hub) sendTo(client *Client, data []byte) {
	select {
	case client.send <- data:
	default:
		log.Warn().Str("client", client.id).Msg("client send buffer full, closing connection")
		h.removeClient(client)
	}
}

func (h *Hub) publish(f *feed, doc store.Document) {
	data, err := json.Marshal(Message{Type: "snapshot", Payload: doc})
	if err != nil {
		log.Error().Err(err).Str("doc", f.key).Msg("error marshaling snapshot")
		return
	}
	select {
	case h.broadcast <- feedUpdate{feed: f, data: data}:
	case <-h.done:
	}
}

func (h *Hub) fail(f *feed, err error) {
	select {
	case h.broadcast <- feedUpdate{feed: f, err: err}:
	case <-h.done:
	}
}

func errorMessage(err error) []byte {
	data, _ := json.Marshal(Message{Type: "error", Payload: err.Error()})
	return data
}

// ConnectedClients reports how many clients watch the given document.
func (h *Hub) ConnectedClients(collection, id string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	if f, ok := h.feeds[collection+":"+id]; ok {
		return len(f.clients)
	}
	return 0
}

// RegisterClient attaches an upgraded connection to a document stream.
func (h *Hub) RegisterClient(conn *websocket.Conn, collection, docID, uid string) *Client {
	client := &Client{
		hub:        h,
		id:         uuid.NewString(),
		socket:     conn,
		send:       make(chan []byte, sendBuffer),
		collection: collection,
		docID:      docID,
		uid:        uid,
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return client
	}

	go client.writePump()
	go client.readPump()

	return client
}

func (h *Hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// readPump only watches for disconnects; clients write over HTTP.
func (c *Client) readPump() {
	defer func() {
		c.hub.UnregisterClient(c)
		c.socket.Close()
	}()

	c.socket.SetReadLimit(maxMessageSize)
	c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		return c.socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.socket.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Str("client", c.id).Msg("websocket read error")
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.socket.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.socket.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
