// Package ws pushes real-time events to connected clients over WebSocket.
// The hub is push-only: all writes go through the REST API, and the socket
// carries notifications (new assistant replies, edits, chat updates) back to
// every connection the owning user has open.
package ws

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/domain"
)

// Event types delivered to clients.
const (
	EventMessageCreated = "message.created"
	EventMessageUpdated = "message.updated"
	EventChatUpdated    = "chat.updated"
	EventSummaryReady   = "summary.ready"
)

// Event is the envelope written to the socket.
type Event struct {
	Type    string          `json:"type"`
	ChatID  string          `json:"chat_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Hub tracks connections per user and fans events out to them. All state is
// owned by the Run goroutine; the exported methods communicate over channels
// and are safe to call from any goroutine.
type Hub struct {
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	events     chan userEvent
	done       chan struct{}

	log zerolog.Logger
}

type userEvent struct {
	userID string
	data   []byte
}

// NewHub constructs a Hub. Call Run in its own goroutine before serving.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan userEvent, 64),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Run owns the client set until Close is called.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		case ev := <-h.events:
			for client := range h.clients {
				if client.userID != ev.userID {
					continue
				}
				select {
				case client.send <- ev.data:
				default:
					// Slow consumer; drop the connection rather than block the hub.
					close(client.send)
					delete(h.clients, client)
				}
			}
		case <-h.done:
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			return
		}
	}
}

// Close stops the Run loop and disconnects every client.
func (h *Hub) Close() {
	close(h.done)
}

// NotifyMessage pushes a message event (created or updated) to the chat owner.
func (h *Hub) NotifyMessage(userID, eventType string, msg *domain.Message) {
	if msg == nil {
		return
	}
	h.notify(userID, eventType, msg.ChatID, msg)
}

// NotifyChat pushes a chat metadata event to the owner.
func (h *Hub) NotifyChat(userID string, chat *domain.Chat) {
	if chat == nil {
		return
	}
	h.notify(userID, EventChatUpdated, chat.ID, chat)
}

// NotifySummary tells the owner a regenerated summary is available.
func (h *Hub) NotifySummary(userID string) {
	h.notify(userID, EventSummaryReady, "", nil)
}

func (h *Hub) notify(userID, eventType, chatID string, payload any) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			h.log.Error().Err(err).Str("event", eventType).Msg("marshal ws event")
			return
		}
		raw = b
	}
	data, err := json.Marshal(Event{Type: eventType, ChatID: chatID, Payload: raw})
	if err != nil {
		return
	}
	select {
	case h.events <- userEvent{userID: userID, data: data}:
	case <-h.done:
	}
}
