package websocket

import (
	"context"
	"log/slog"
	"sync"

	"ovozber-backend/model"

	"github.com/gorilla/websocket"
)

// Client 代表一个WebSocket连接客户端
type Client struct {
	PollID uint
	conn   *websocket.Conn
	send   chan []byte
}

// Hub 按投票ID维护客户端并广播消息
type Hub struct {
	clients    map[uint]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	log        *slog.Logger
	done       chan struct{}
}

// NewHub 创建Hub，需要调用 Run 启动
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[uint]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        log,
		done:       make(chan struct{}),
	}
}

// Run 处理注册/注销，ctx 结束时关闭所有连接
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if _, ok := h.clients[client.PollID]; !ok {
				h.clients[client.PollID] = make(map[*Client]bool)
			}
			h.clients[client.PollID][client] = true
			total := len(h.clients[client.PollID])
			h.mu.Unlock()
			h.log.Debug("客户端已注册", "poll_id", client.PollID, "clients", total)

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client)
			h.mu.Unlock()
			h.log.Debug("客户端已注销", "poll_id", client.PollID)

		case <-ctx.Done():
			h.mu.Lock()
			for _, clients := range h.clients {
				for client := range clients {
					h.removeLocked(client)
				}
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) removeLocked(client *Client) {
	clients, ok := h.clients[client.PollID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.clients, client.PollID)
	}
}

// BroadcastToPoll 向订阅该投票的所有客户端广播，发送缓冲区已满的客户端被断开
func (h *Hub) BroadcastToPoll(pollID uint, message *model.WebSocketMessage) {
	payload, err := message.ToJSON()
	if err != nil {
		h.log.Error("序列化WebSocket消息失败", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	clients := h.clients[pollID]
	for client := range clients {
		select {
		case client.send <- payload:
		default:
			h.removeLocked(client)
		}
	}
	h.log.Debug("已广播消息", "poll_id", pollID, "clients", len(clients), "type", message.Type)
}

// ClientCount 当前订阅某投票的客户端数量
func (h *Hub) ClientCount(pollID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[pollID])
}

// RegisterClient 注册客户端，Hub 已停止时直接关闭发送通道
func (h *Hub) RegisterClient(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.send)
	}
}

// UnregisterClient 注销客户端
func (h *Hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}
