package websocket

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"ovozber-backend/model"
	"ovozber-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	// 必须小于 pongWait
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Handler WebSocket处理器
type Handler struct {
	hub         *Hub
	broadcaster *Broadcaster
	upgrader    websocket.Upgrader
	log         *slog.Logger
}

// NewHandler 创建WebSocket处理器，allowedOrigins 含 "*" 时不校验来源
func NewHandler(hub *Hub, broadcaster *Broadcaster, allowedOrigins []string, log *slog.Logger) *Handler {
	return &Handler{
		hub:         hub,
		broadcaster: broadcaster,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		log: log,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		set[origin] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set["*"] || set[origin]
	}
}

// HandleConnection 升级连接，先推送一次当前统计，之后随投票事件推送
func (h *Handler) HandleConnection(c *gin.Context) {
	pollID, snapshot, ok := h.initialSnapshot(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("WebSocket升级失败", "error", err)
		return
	}

	client := &Client{
		PollID: pollID,
		conn:   conn,
		send:   make(chan []byte, 256),
	}
	if payload, err := snapshot.ToJSON(); err == nil {
		client.send <- payload
	}
	h.hub.RegisterClient(client)

	go h.writePump(client)
	go h.readPump(client)
}

// initialSnapshot 解析投票ID并计算首帧统计，失败时已写入响应
func (h *Handler) initialSnapshot(c *gin.Context) (uint, *model.WebSocketMessage, bool) {
	pollID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || pollID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid poll ID"})
		return 0, nil, false
	}

	snapshot, err := h.broadcaster.snapshot(c.Request.Context(), uint(pollID))
	if err != nil {
		if errors.Is(err, service.ErrPollNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Poll not found"})
			return 0, nil, false
		}
		h.log.Error("获取初始统计失败", "poll_id", pollID, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Statistics unavailable"})
		return 0, nil, false
	}
	return uint(pollID), snapshot, true
}

// readPump 只处理 pong 和关闭，客户端发来的内容忽略
func (h *Handler) readPump(client *Client) {
	defer func() {
		h.hub.UnregisterClient(client)
		client.conn.Close()
	}()

	client.conn.SetReadLimit(maxMessageSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Debug("读取WebSocket消息失败", "error", err)
			}
			return
		}
	}
}

func (h *Handler) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
