package model

import (
	"encoding/json"
	"time"
)

// PollPhase 投票生命周期阶段
type PollPhase string

const (
	PollPhaseInactive  PollPhase = "inactive"  // 已停用
	PollPhaseScheduled PollPhase = "scheduled" // 未开始
	PollPhaseOpen      PollPhase = "open"      // 进行中
	PollPhaseEnded     PollPhase = "ended"     // 已结束
)

// PollSummary 投票列表项
type PollSummary struct {
	ID          uint       `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	IsActive    bool       `json:"is_active"`
	IsOpen      bool       `json:"is_open"`
	Phase       PollPhase  `json:"phase"`
	Order       int        `json:"order"`
}

// ChannelSummary 必须订阅的频道
type ChannelSummary struct {
	ID              uint   `json:"id"`
	ChannelID       string `json:"channel_id"`
	ChannelUsername string `json:"channel_username"`
	Title           string `json:"title"`
	Description     string `json:"description"`
}

// RegionSummary 地区及其区县
type RegionSummary struct {
	ID          uint              `json:"id"`
	PollID      uint              `json:"poll_id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Order       int               `json:"order"`
	Districts   []DistrictSummary `json:"districts"`
}

// DistrictSummary 区县
type DistrictSummary struct {
	ID          uint   `json:"id"`
	RegionID    uint   `json:"region_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Order       int    `json:"order"`
}

// CandidateSummary 候选人
type CandidateSummary struct {
	ID         uint   `json:"id"`
	PollID     uint   `json:"poll_id"`
	DistrictID *uint  `json:"district_id,omitempty"`
	FullName   string `json:"full_name"`
	Bio        string `json:"bio,omitempty"`
	Position   string `json:"position,omitempty"`
	PhotoURL   string `json:"photo_url,omitempty"`
	Order      int    `json:"order"`
}

// WebSocketMessage 定义WebSocket消息格式
type WebSocketMessage struct {
	Type    string      `json:"type"`    // 消息类型
	PollID  uint        `json:"pollId"`  // 投票ID
	Payload interface{} `json:"payload"` // 消息内容
}

// ToJSON 将WebSocket消息转换为JSON字节数组
func (m *WebSocketMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}
