package model

import "time"

// RejectReason 投票被拒绝的原因，前端据此展示本地化提示
type RejectReason string

const (
	ReasonUserNotFound      RejectReason = "user_not_found"
	ReasonPollNotFound      RejectReason = "poll_not_found"
	ReasonPollClosed        RejectReason = "poll_closed"
	ReasonAlreadyVoted      RejectReason = "already_voted"
	ReasonCandidateNotFound RejectReason = "candidate_not_found"
	ReasonCandidateMismatch RejectReason = "candidate_mismatch"
)

var reasonMessages = map[RejectReason]string{
	ReasonUserNotFound:      "User not found",
	ReasonPollNotFound:      "Poll not found",
	ReasonPollClosed:        "Voting on this poll is closed",
	ReasonAlreadyVoted:      "You have already voted in this poll",
	ReasonCandidateNotFound: "Candidate not found",
	ReasonCandidateMismatch: "Candidate does not belong to this poll",
}

// Message 默认的英文说明
func (r RejectReason) Message() string {
	if msg, ok := reasonMessages[r]; ok {
		return msg
	}
	return string(r)
}

// RegisterUserRequest 注册或更新用户
type RegisterUserRequest struct {
	TelegramID  int64  `json:"telegram_id" binding:"required"`
	Username    string `json:"username"`
	FullName    string `json:"full_name"`
	PhoneNumber string `json:"phone_number"`
}

// UserSummary 用户信息
type UserSummary struct {
	ID              uint      `json:"id"`
	TelegramID      int64     `json:"telegram_id"`
	Username        string    `json:"username"`
	FullName        string    `json:"full_name"`
	PhoneNumber     string    `json:"phone_number"`
	IsSubscribed    bool      `json:"is_subscribed"`
	VotedPollsCount int       `json:"voted_polls_count"`
	CreatedAt       time.Time `json:"created_at"`
}

// CheckSubscriptionRequest 查询订阅/投票状态
type CheckSubscriptionRequest struct {
	TelegramID int64 `json:"telegram_id" binding:"required"`
	PollID     *uint `json:"poll_id,omitempty"`
}

// SubscriptionStatus 订阅/投票状态
type SubscriptionStatus struct {
	IsSubscribed   bool  `json:"is_subscribed"`
	HasVotedInPoll *bool `json:"has_voted_in_poll,omitempty"`
}

// CastVoteRequest 提交投票请求
type CastVoteRequest struct {
	TelegramID  int64  `json:"telegram_id" binding:"required"`
	PollID      uint   `json:"poll_id" binding:"required"`
	CandidateID uint   `json:"candidate_id" binding:"required"`
	IPAddress   string `json:"-"`
}

// VoteSummary 已提交的投票
type VoteSummary struct {
	ID          uint      `json:"id"`
	UserID      uint      `json:"user_id"`
	PollID      uint      `json:"poll_id"`
	CandidateID uint      `json:"candidate_id"`
	VotedAt     time.Time `json:"voted_at"`
}

// VoteResult 投票结果。被拒绝时 Success=false 并带 Reason
type VoteResult struct {
	Success bool         `json:"success"`
	Reason  RejectReason `json:"reason,omitempty"`
	Message string       `json:"message,omitempty"`
	Vote    *VoteSummary `json:"vote,omitempty"`
}

// Rejected 构造拒绝结果
func Rejected(reason RejectReason) *VoteResult {
	return &VoteResult{Success: false, Reason: reason, Message: reason.Message()}
}

// VoteCastEvent 投票成功后发布的事件
type VoteCastEvent struct {
	EventID     string    `json:"event_id"`
	VoteID      uint      `json:"vote_id"`
	UserID      uint      `json:"user_id"`
	PollID      uint      `json:"poll_id"`
	CandidateID uint      `json:"candidate_id"`
	VotedAt     time.Time `json:"voted_at"`
}
