package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kopi-pos/api/internal/event"
	"github.com/kopi-pos/api/internal/models"
)

// FloorRoom receives every event regardless of table.
const FloorRoom int64 = 0

// Event represents a WebSocket message to be broadcast
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// tableEvent routes an event to one table's room and the floor room.
type tableEvent struct {
	TableID int64
	Event   Event
}

// Hub maintains the set of active clients and broadcasts messages to them.
// Rooms are keyed by table ID; FloorRoom subscribers see all tables.
type Hub struct {
	rooms map[int64]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *tableEvent
	done       chan struct{}

	mu  sync.RWMutex
	log zerolog.Logger
	now func() time.Time
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		rooms:      make(map[int64]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *tableEvent, 256),
		done:       make(chan struct{}),
		log:        log.With().Str("component", "ws_hub").Logger(),
		now:        time.Now,
	}
}

// Run starts the hub's main loop and returns when ctx is cancelled,
// closing every client's send channel.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for room, clients := range h.rooms {
				for client := range clients {
					close(client.send)
				}
				delete(h.rooms, room)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.tableID] == nil {
				h.rooms[client.tableID] = make(map[*Client]bool)
			}
			h.rooms[client.tableID][client] = true
			h.mu.Unlock()
			h.log.Debug().Str("client_id", client.id.String()).Int64("table_id", client.tableID).Msg("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client.tableID, client)
			h.mu.Unlock()

		case ev := <-h.broadcast:
			message, err := json.Marshal(ev.Event)
			if err != nil {
				h.log.Error().Err(err).Str("type", ev.Event.Type).Msg("marshal ws event")
				continue
			}

			h.mu.Lock()
			h.deliver(ev.TableID, message)
			if ev.TableID != FloorRoom {
				h.deliver(FloorRoom, message)
			}
			h.mu.Unlock()
		}
	}
}

// deliver must be called with mu held.
func (h *Hub) deliver(room int64, message []byte) {
	for client := range h.rooms[room] {
		select {
		case client.send <- message:
		default:
			// Client's send buffer is full, drop it
			h.log.Warn().Str("client_id", client.id.String()).Int64("table_id", room).Msg("slow client disconnected")
			h.remove(room, client)
		}
	}
}

// remove must be called with mu held.
func (h *Hub) remove(room int64, client *Client) {
	clients, ok := h.rooms[room]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.rooms, room)
	}
}

func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// BroadcastToTable queues an event for a table's room and the floor room.
// It never blocks; when the queue is full the event is dropped.
func (h *Hub) BroadcastToTable(tableID int64, ev Event) {
	select {
	case h.broadcast <- &tableEvent{TableID: tableID, Event: ev}:
	default:
		h.log.Warn().Str("type", ev.Type).Int64("table_id", tableID).Msg("ws broadcast queue full, event dropped")
	}
}

func (h *Hub) OnPaymentCompleted(_ context.Context, order *models.Order, method string) {
	p := event.PaymentCompleted(order, method, h.now())
	h.send(p.TableID, p.Type, p)
}

func (h *Hub) OnPaymentFailed(_ context.Context, order *models.Order, reason string) {
	p := event.PaymentFailed(order, reason, h.now())
	h.send(p.TableID, p.Type, p)
}

func (h *Hub) OnTableStatusChanged(_ context.Context, table models.Table, from, to string) {
	p := event.TableStatusChanged(table, from, to, h.now())
	h.send(p.TableID, p.Type, p)
}

func (h *Hub) send(tableID int64, typ string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		h.log.Error().Err(err).Str("type", typ).Msg("marshal ws payload")
		return
	}
	h.BroadcastToTable(tableID, Event{Type: typ, Payload: raw})
}
