package service

import (
	"time"

	"ovozber-backend/model"
	"ovozber-backend/models"
)

// PollPhaseAt 计算投票在 now 时刻所处的阶段
//
// 开始和结束时间都是闭区间边界；未设置的一端不做限制。
func PollPhaseAt(poll *models.Poll, now time.Time) model.PollPhase {
	switch {
	case !poll.IsActive:
		return model.PollPhaseInactive
	case poll.StartDate != nil && now.Before(*poll.StartDate):
		return model.PollPhaseScheduled
	case poll.EndDate != nil && now.After(*poll.EndDate):
		return model.PollPhaseEnded
	default:
		return model.PollPhaseOpen
	}
}

// IsPollOpen 投票在 now 时刻是否接受投票
func IsPollOpen(poll *models.Poll, now time.Time) bool {
	return PollPhaseAt(poll, now) == model.PollPhaseOpen
}

// SummarizePoll 构造投票列表项
func SummarizePoll(poll *models.Poll, now time.Time) model.PollSummary {
	phase := PollPhaseAt(poll, now)
	return model.PollSummary{
		ID:          poll.ID,
		Title:       poll.Title,
		Description: poll.Description,
		StartDate:   poll.StartDate,
		EndDate:     poll.EndDate,
		IsActive:    poll.IsActive,
		IsOpen:      phase == model.PollPhaseOpen,
		Phase:       phase,
		Order:       poll.Order,
	}
}
