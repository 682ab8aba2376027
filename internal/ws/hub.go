package ws

import (
	"encoding/json"
	"log"
	"sync"
)

// Channel names clients can subscribe to. The kitchen display and the cashier
// dashboard listen on separate channels; order lifecycle events go to both.
const (
	ChannelKitchen = "kitchen"
	ChannelCashier = "cashier"
)

// Event represents a WebSocket message to be broadcast
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// channelEvent is an internal struct for routing events to channels.
// An empty Channel means every connected client.
type channelEvent struct {
	Channel string
	Event   Event
}

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	// Registered clients by channel
	rooms map[string]map[*Client]bool

	// Inbound messages from clients (register/unregister)
	register   chan *Client
	unregister chan *Client

	// Outbound messages to broadcast
	broadcast chan *channelEvent

	// Mutex for thread-safe room access
	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *channelEvent, 256),
	}
}

// Run starts the hub's main loop
// This should be called as a goroutine: go hub.Run()
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.channel] == nil {
				h.rooms[client.channel] = make(map[*Client]bool)
			}
			h.rooms[client.channel][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.rooms[client.channel]; ok {
				if _, exists := clients[client]; exists {
					delete(clients, client)
					close(client.send)
					// Clean up empty rooms
					if len(clients) == 0 {
						delete(h.rooms, client.channel)
					}
				}
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			// Marshal event to JSON once
			message, err := json.Marshal(event.Event)
			if err != nil {
				continue
			}

			h.mu.Lock()
			for channel, clients := range h.rooms {
				if event.Channel != "" && event.Channel != channel {
					continue
				}
				for client := range clients {
					select {
					case client.send <- message:
					default:
						// Client's send buffer is full, close and unregister
						close(client.send)
						delete(clients, client)
						if len(clients) == 0 {
							delete(h.rooms, channel)
						}
					}
				}
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastToChannel sends an event to all clients subscribed to a channel.
func (h *Hub) BroadcastToChannel(channel string, event Event) {
	h.broadcast <- &channelEvent{Channel: channel, Event: event}
}

// BroadcastAll sends an event to every connected client.
func (h *Hub) BroadcastAll(event Event) {
	h.broadcast <- &channelEvent{Event: event}
}

// Notifier adapts the hub to the service layer's broadcast interface.
type Notifier struct {
	hub *Hub
}

func NewNotifier(hub *Hub) *Notifier {
	return &Notifier{hub: hub}
}

// Broadcast marshals the payload and fans the event out to all displays.
func (n *Notifier) Broadcast(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("ERROR: marshal ws payload for %s: %v", event, err)
		return
	}
	n.hub.BroadcastAll(Event{Type: event, Payload: data})
}
