package models

import (
	"time"

	"gorm.io/gorm"
)

// User 投票用户，外部身份为聊天平台的数字ID
type User struct {
	gorm.Model
	ExternalID   int64  `gorm:"uniqueIndex;not null" json:"telegram_id"`
	Username     string `gorm:"size:255" json:"username"`
	FullName     string `gorm:"size:255" json:"full_name"`
	PhoneNumber  string `gorm:"size:20" json:"phone_number"`
	IsSubscribed bool   `gorm:"not null" json:"is_subscribed"`
	// HasVoted 冗余标记：至少投过一票。只在投票提交事务内写入
	HasVoted bool `gorm:"not null" json:"has_voted"`
}

// Channel 必须订阅的频道
type Channel struct {
	gorm.Model
	ChannelID       string `gorm:"size:255;uniqueIndex;not null" json:"channel_id"`
	ChannelUsername string `gorm:"size:255;not null" json:"channel_username"`
	Title           string `gorm:"size:255;not null" json:"title"`
	Description     string `gorm:"type:text" json:"description"`
	IsActive        bool   `gorm:"not null" json:"is_active"`
}

// Vote 投票记录，创建后不再修改
//
// (user_id, poll_id) 上的唯一索引是整个系统唯一的串行化点。
type Vote struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	UserID      uint      `gorm:"not null;uniqueIndex:idx_vote_user_poll,priority:1" json:"user_id"`
	PollID      uint      `gorm:"not null;uniqueIndex:idx_vote_user_poll,priority:2;index" json:"poll_id"`
	CandidateID uint      `gorm:"not null;index" json:"candidate_id"`
	VotedAt     time.Time `gorm:"not null;index" json:"voted_at"`
	IPAddress   *string   `gorm:"size:45" json:"ip_address,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
