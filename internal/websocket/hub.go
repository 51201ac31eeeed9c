package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/thereayou/abstrio/pkg/wallet"
)

// EventType определяет типы событий
type EventType string

const (
	TypePing EventType = "ping"

	TypeUserRegistered EventType = "user_registered"
	TypeUserUpdated    EventType = "user_updated"
	TypeEmailPending   EventType = "email_pending"
	TypeEmailVerified  EventType = "email_verified"
)

// Event is pushed to every connection of one wallet address.
type Event struct {
	Type      EventType       `json:"type"`
	Address   string          `json:"address,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

type Client struct {
	ID      uuid.UUID
	Address string
	Conn    *websocket.Conn
	Send    chan []byte
	Hub     *Hub
}

type Hub struct {
	clients map[uuid.UUID]*Client

	// Клиенты по адресу (один кошелёк может иметь несколько соединений)
	addressClients map[string]map[uuid.UUID]*Client

	register   chan *Client
	unregister chan *Client

	mu     sync.RWMutex
	logger *zap.Logger

	// Контекст для graceful shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub создает новый Hub
func NewHub(logger *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:        make(map[uuid.UUID]*Client),
		addressClients: make(map[string]map[uuid.UUID]*Client),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		logger:         logger,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Run запускает hub
func (h *Hub) Run() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case <-ticker.C:
			h.ping()
		}
	}
}

// Stop останавливает hub и закрывает все соединения
func (h *Hub) Stop() {
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()

	for id, client := range h.clients {
		close(client.Send)
		client.Conn.Close()
		delete(h.clients, id)
	}
	h.addressClients = make(map[string]map[uuid.UUID]*Client)
}

// Register returns false when the hub is already stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client

	if _, ok := h.addressClients[client.Address]; !ok {
		h.addressClients[client.Address] = make(map[uuid.UUID]*Client)
	}
	h.addressClients[client.Address][client.ID] = client

	h.logger.Debug("ws client registered",
		zap.String("client_id", client.ID.String()),
		zap.String("address", client.Address))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return
	}

	if clients, ok := h.addressClients[client.Address]; ok {
		delete(clients, client.ID)
		if len(clients) == 0 {
			delete(h.addressClients, client.Address)
		}
	}

	delete(h.clients, client.ID)
	close(client.Send)

	h.logger.Debug("ws client unregistered",
		zap.String("client_id", client.ID.String()),
		zap.String("address", client.Address))
}

// Publish sends an event to every open connection of address. Slow
// connections whose queue is full miss the event.
func (h *Hub) Publish(address string, typ EventType, data any) error {
	address = wallet.NormalizeAddress(address)
	event := Event{Type: typ, Address: address, Timestamp: time.Now()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		event.Data = raw
	}
	msg, err := json.Marshal(event)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.addressClients[address] {
		select {
		case client.Send <- msg:
		default:
			h.logger.Warn("ws send queue full", zap.String("client_id", client.ID.String()))
		}
	}
	return nil
}

// Subscribers returns the number of open connections for address.
func (h *Hub) Subscribers(address string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.addressClients[wallet.NormalizeAddress(address)])
}

func (h *Hub) ping() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(Event{Type: TypePing, Timestamp: time.Now()})
	if err != nil {
		return
	}
	for _, client := range h.clients {
		select {
		case client.Send <- data:
		default:
		}
	}
}
