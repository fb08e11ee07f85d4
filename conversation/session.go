package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"ovozber-backend/cache"
	"ovozber-backend/model"
)

// State 会话状态
type State string

const (
	StateCheckingSubscription State = "checking_subscription"
	StateSelectingPoll        State = "selecting_poll"
	StateSelectingRegion      State = "selecting_region"
	StateSelectingDistrict    State = "selecting_district"
	StateSelectingCandidate   State = "selecting_candidate"
	StateFinished             State = "finished"
)

// EventKind 用户的一次输入
type EventKind string

const (
	EventStart               EventKind = "start"
	EventConfirmSubscription EventKind = "confirm_subscription"
	EventChoosePoll          EventKind = "choose_poll"
	EventChooseRegion        EventKind = "choose_region"
	EventChooseDistrict      EventKind = "choose_district"
	EventChooseCandidate     EventKind = "choose_candidate"
	EventBack                EventKind = "back"
	EventCancel              EventKind = "cancel"
)

// Event 一条入站消息
type Event struct {
	Kind     EventKind `json:"kind" binding:"required"`
	ID       uint      `json:"id,omitempty"`
	Username string    `json:"username,omitempty"`
	FullName string    `json:"full_name,omitempty"`
	Language string    `json:"language,omitempty"`
}

// Session 两条消息之间保存的上下文
//
// 只保存用户的选择，不保存是否已投票，投票时总是重新检查。
type Session struct {
	TelegramID int64     `json:"telegram_id"`
	State      State     `json:"state"`
	Language   string    `json:"language"`
	PollID     uint      `json:"poll_id,omitempty"`
	RegionID   uint      `json:"region_id,omitempty"`
	DistrictID uint      `json:"district_id,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// PromptKind 回复类型
type PromptKind string

const (
	PromptChannels   PromptKind = "channels"
	PromptPolls      PromptKind = "polls"
	PromptRegions    PromptKind = "regions"
	PromptDistricts  PromptKind = "districts"
	PromptCandidates PromptKind = "candidates"
	PromptVoteResult PromptKind = "vote_result"
	PromptEnded      PromptKind = "ended"
)

// Option 一个可选按钮，URL 非空时为外链
type Option struct {
	Event EventKind `json:"event,omitempty"`
	ID    uint      `json:"id,omitempty"`
	Label string    `json:"label"`
	URL   string    `json:"url,omitempty"`
}

// Prompt 发给用户的下一条消息
type Prompt struct {
	Kind    PromptKind        `json:"kind"`
	State   State             `json:"state"`
	Notice  string            `json:"notice,omitempty"`
	Text    string            `json:"text"`
	Options []Option          `json:"options"`
	Vote    *model.VoteResult `json:"vote,omitempty"`
}

type sessionRepo struct {
	store cache.SessionStore
}

func sessionKey(telegramID int64) string {
	return strconv.FormatInt(telegramID, 10)
}

func (r sessionRepo) load(ctx context.Context, telegramID int64) (*Session, bool, error) {
	data, found, err := r.store.Load(ctx, sessionKey(telegramID))
	if err != nil || !found {
		return nil, false, err
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, false, fmt.Errorf("解析会话失败: %w", err)
	}
	return &s, true, nil
}

func (r sessionRepo) save(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("序列化会话失败: %w", err)
	}
	return r.store.Save(ctx, sessionKey(s.TelegramID), data)
}

func (r sessionRepo) delete(ctx context.Context, telegramID int64) error {
	return r.store.Delete(ctx, sessionKey(telegramID))
}
