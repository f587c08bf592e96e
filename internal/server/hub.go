package server

import (
	"encoding/json"
	"log"

	"gridbook/internal/engine"
	"gridbook/internal/store"
)

// Message defines the structure of data exchanged via WebSocket
type Message struct {
	Type       string          `json:"type"`
	WorkbookID string          `json:"workbook_id"`
	Payload    json.RawMessage `json:"payload"`
	User       string          `json:"user,omitempty"`
}

// Hub maintains the set of active clients, one room per workbook, and
// broadcasts snapshots to every client watching a workbook.
type Hub struct {
	books *store.WorkbookManager

	// Registered clients per workbook.
	rooms map[string]map[*Client]bool

	// Inbound messages from the clients.
	broadcast chan *Message

	// Workbook ids whose state changed outside the hub (HTTP handlers).
	notify chan string

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client
}

func NewHub(books *store.WorkbookManager) *Hub {
	return &Hub{
		books:      books,
		broadcast:  make(chan *Message),
		notify:     make(chan string, 16),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		rooms:      make(map[string]map[*Client]bool),
	}
}

// NotifyUpdate asks the hub to push a fresh snapshot of the workbook to
// its room. Safe to call from any goroutine.
func (h *Hub) NotifyUpdate(workbookID string) {
	select {
	case h.notify <- workbookID:
	default:
		// The room will catch up on the next update.
		log.Printf("Hub notify queue full, dropping update for workbook %s", workbookID)
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			if h.rooms[client.workbookID] == nil {
				h.rooms[client.workbookID] = make(map[*Client]bool)
			}
			h.rooms[client.workbookID][client] = true
			log.Printf("Client registered to workbook %s: %s", client.workbookID, client.username)

			// Send current state to the new client
			if payload, ok := h.snapshot(client.workbookID); ok {
				client.send <- msgToBytes(&Message{
					Type:       "INIT",
					WorkbookID: client.workbookID,
					Payload:    payload,
					User:       "system",
				})
			}

		case client := <-h.unregister:
			if clients, ok := h.rooms[client.workbookID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.send)
					if len(clients) == 0 {
						delete(h.rooms, client.workbookID)
					}
					log.Printf("Client unregistered from workbook %s", client.workbookID)
				}
			}

		case id := <-h.notify:
			h.broadcastSnapshot(id, "system")

		case message := <-h.broadcast:
			switch message.Type {
			case "DISPATCH":
				var cmd struct {
					Op   string          `json:"op"`
					Args json.RawMessage `json:"args"`
				}
				if err := json.Unmarshal(message.Payload, &cmd); err != nil {
					log.Printf("Error unmarshalling dispatch payload: %v", err)
					continue
				}
				op, err := engine.DecodeOp(cmd.Op, cmd.Args)
				if err == nil {
					err = h.books.With(message.WorkbookID, func(wb *engine.Workbook) error {
						return wb.Apply(op)
					})
				}
				if err != nil {
					h.sendError(message.WorkbookID, message.User, err)
					continue
				}
				h.broadcastSnapshot(message.WorkbookID, message.User)

			case "UNDO":
				err := h.books.With(message.WorkbookID, func(wb *engine.Workbook) error {
					_, err := wb.Undo()
					return err
				})
				if err != nil {
					h.sendError(message.WorkbookID, message.User, err)
					continue
				}
				h.broadcastSnapshot(message.WorkbookID, message.User)

			default:
				log.Printf("Unknown message type %q from %s", message.Type, message.User)
			}
		}
	}
}

// snapshot renders the export form of a workbook for the wire.
func (h *Hub) snapshot(workbookID string) (json.RawMessage, bool) {
	var payload json.RawMessage
	err := h.books.View(workbookID, func(wb *engine.Workbook) error {
		b, err := json.Marshal(wb.Export())
		payload = b
		return err
	})
	if err != nil {
		log.Printf("Error building snapshot for workbook %s: %v", workbookID, err)
		return nil, false
	}
	return payload, true
}

func (h *Hub) broadcastSnapshot(workbookID, user string) {
	clients, ok := h.rooms[workbookID]
	if !ok || len(clients) == 0 {
		return
	}
	payload, ok := h.snapshot(workbookID)
	if !ok {
		return
	}
	msg := msgToBytes(&Message{
		Type:       "UPDATE",
		WorkbookID: workbookID,
		Payload:    payload,
		User:       user,
	})
	for client := range clients {
		select {
		case client.send <- msg:
		default:
			close(client.send)
			delete(clients, client)
		}
	}
}

// sendError delivers an operation failure to the clients of the user
// that issued it, not the whole room.
func (h *Hub) sendError(workbookID, user string, opErr error) {
	payload, _ := json.Marshal(map[string]string{"error": opErr.Error()})
	msg := msgToBytes(&Message{
		Type:       "ERROR",
		WorkbookID: workbookID,
		Payload:    payload,
		User:       user,
	})
	for client := range h.rooms[workbookID] {
		if client.username != user {
			continue
		}
		select {
		case client.send <- msg:
		default:
			close(client.send)
			delete(h.rooms[workbookID], client)
		}
	}
}

func msgToBytes(msg *Message) []byte {
	b, _ := json.Marshal(msg)
	return b
}
