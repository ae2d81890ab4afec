// Package communication pushes orchestration events to connected UI clients
// over WebSocket.
package communication

import (
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/soullab/oracle-choreography/core"
)

// WSEvent is the envelope sent to WebSocket clients.
type WSEvent struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Event types pushed to clients in addition to the choreography events
// themselves.
const (
	EventTurnCompleted = "TURN_COMPLETED"
	EventOrchestration = "ORCHESTRATION_EVENT"
	EventRulesReplaced = "RULES_REPLACED"
)

// Hub fans WSEvents out to every connected client. Construct one per
// process and share it between the API layer and the orchestrator's event
// sink.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan WSEvent
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
}

// NewHub creates a hub and starts its dispatch loop.
func NewHub() *Hub {
	h := &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan WSEvent, 64),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if err := client.WriteJSON(event); err != nil {
					log.Printf("WebSocket error: %v", err)
					client.Close()
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues an event for every connected client. Non-blocking: if
// the queue is full the event is dropped, since these are fire-and-forget
// notifications.
func (h *Hub) Broadcast(eventType string, payload interface{}) {
	select {
	case h.broadcast <- WSEvent{Type: eventType, Payload: payload}:
	default:
		log.Printf("WebSocket hub: dropping %s event, broadcast queue full", eventType)
	}
}

// Emit implements core.EventSink, forwarding orchestration events to clients.
func (h *Hub) Emit(event core.OrchestrationEvent) {
	h.Broadcast(EventOrchestration, event)
}

// Register returns the channel new client connections are announced on.
func (h *Hub) Register() chan<- *websocket.Conn {
	return h.register
}

// Unregister returns the channel closing client connections are announced on.
func (h *Hub) Unregister() chan<- *websocket.Conn {
	return h.unregister
}
