package websocket

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const sseHeartbeat = 15 * time.Second

// HandleSSE 以 Server-Sent Events 推送统计，与 WebSocket 共用 Hub
func (h *Handler) HandleSSE(c *gin.Context) {
	pollID, snapshot, ok := h.initialSnapshot(c)
	if !ok {
		return
	}

	client := &Client{PollID: pollID, send: make(chan []byte, 256)}
	if payload, err := snapshot.ToJSON(); err == nil {
		client.send <- payload
	}
	h.hub.RegisterClient(client)
	defer h.hub.UnregisterClient(client)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	// 长连接不受服务器 WriteTimeout 限制
	_ = http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{})

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	h.log.Debug("SSE客户端已连接", "poll_id", pollID, "client_ip", c.ClientIP())
	c.Stream(func(w io.Writer) bool {
		select {
		case payload, ok := <-client.send:
			if !ok {
				return false
			}
			c.SSEvent(MessageTypeStatistics, json.RawMessage(payload))
			return true
		case <-heartbeat.C:
			_, err := io.WriteString(w, ": ping\n\n")
			return err == nil
		case <-c.Request.Context().Done():
			return false
		}
	})
	h.log.Debug("SSE客户端已断开", "poll_id", pollID)
}
