package websocket

import (
	"encoding/json"

	"gator-press/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MessageToSend defines the structure for sending a message to a specific user.
type MessageToSend struct {
	TargetUserID uuid.UUID
	Payload      []byte
}

// Hub maintains the set of active clients and fans lifecycle events out to them.
type Hub struct {
	// Registered clients. Maps user ID to a set of active client connections.
	clients map[uuid.UUID]map[*Client]bool

	// Events for every connected client.
	broadcast chan []byte

	// Events for the connections of one user.
	sendDirect chan *MessageToSend

	register   chan *Client
	unregister chan *Client
	stop       chan struct{}
	done       chan struct{}

	logger zerolog.Logger
}

const hubQueueSize = 256

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]bool),
		broadcast:  make(chan []byte, hubQueueSize),
		sendDirect: make(chan *MessageToSend, hubQueueSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		logger:     logger.With().Str("component", "websocket-hub").Logger(),
	}
}

// Run starts the hub's processing loop. It returns after Stop.
func (h *Hub) Run() {
	h.logger.Info().Msg("WebSocket hub started")
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			if _, ok := h.clients[client.UserID]; !ok {
				h.clients[client.UserID] = make(map[*Client]bool)
			}
			h.clients[client.UserID][client] = true
			h.logger.Debug().
				Str("user_id", client.UserID.String()).
				Int("connections", len(h.clients[client.UserID])).
				Msg("Client registered")

		case client := <-h.unregister:
			h.remove(client)

		case message := <-h.broadcast:
			for _, userClients := range h.clients {
				for client := range userClients {
					h.deliver(client, message)
				}
			}

		case direct := <-h.sendDirect:
			userClients := h.clients[direct.TargetUserID]
			if len(userClients) == 0 {
				h.logger.Debug().Str("user_id", direct.TargetUserID.String()).Msg("User not connected, direct message dropped")
				continue
			}
			for client := range userClients {
				h.deliver(client, direct.Payload)
			}

		case <-h.stop:
			for _, userClients := range h.clients {
				for client := range userClients {
					close(client.Send)
				}
			}
			h.clients = make(map[uuid.UUID]map[*Client]bool)
			h.logger.Info().Msg("WebSocket hub stopped")
			return
		}
	}
}

// Stop closes every client connection and ends Run.
func (h *Hub) Stop() {
	select {
	case <-h.stop:
	default:
		close(h.stop)
	}
	<-h.done
}

// Register adds a client. It is a no-op once the hub has stopped.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.Send)
	}
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) remove(client *Client) {
	userClients, ok := h.clients[client.UserID]
	if !ok {
		return
	}
	if _, ok := userClients[client]; !ok {
		return
	}
	delete(userClients, client)
	close(client.Send)
	if len(userClients) == 0 {
		delete(h.clients, client.UserID)
	}
	h.logger.Debug().
		Str("user_id", client.UserID.String()).
		Int("remaining", len(userClients)).
		Msg("Client unregistered")
}

// deliver never blocks the hub; a client that cannot keep up is dropped.
func (h *Hub) deliver(client *Client, payload []byte) {
	select {
	case client.Send <- payload:
	default:
		h.logger.Warn().Str("user_id", client.UserID.String()).Msg("Send buffer full, dropping client")
		h.remove(client)
	}
}

// PublishEvent broadcasts a lifecycle event to all clients. Published and
// rejected events are also sent directly to the post's creator. It never
// blocks the caller: when the hub queue is full the event is dropped.
func (h *Hub) PublishEvent(event models.LifecycleEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("type", string(event.Type)).Msg("Failed to encode event")
		return
	}

	select {
	case h.broadcast <- payload:
	default:
		h.logger.Warn().Str("type", string(event.Type)).Msg("Hub broadcast queue full, event dropped")
	}

	if event.CreatedBy == uuid.Nil {
		return
	}
	switch event.Type {
	case models.EventPostPublished, models.EventPostRejected:
		h.SendDirectMessage(event.CreatedBy, directPayload(event, payload))
	}
}

// directPayload wraps the event so clients can tell it apart from the broadcast copy.
func directPayload(event models.LifecycleEvent, payload []byte) []byte {
	wrapped, err := json.Marshal(struct {
		Direct bool                  `json:"direct"`
		Event  models.LifecycleEvent `json:"event"`
	}{Direct: true, Event: event})
	if err != nil {
		return payload
	}
	return wrapped
}

// SendDirectMessage queues a message for every connection of one user
// without blocking.
func (h *Hub) SendDirectMessage(targetUserID uuid.UUID, payload []byte) {
	select {
	case h.sendDirect <- &MessageToSend{TargetUserID: targetUserID, Payload: payload}:
	default:
		h.logger.Warn().Str("user_id", targetUserID.String()).Msg("Hub direct queue full, message dropped")
	}
}
