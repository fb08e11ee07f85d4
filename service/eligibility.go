package service

import (
	"context"
	"errors"

	"ovozber-backend/model"
	"ovozber-backend/models"
	"ovozber-backend/repository"
)

// Eligibility 资格检查结果，Reason 为空表示可以投票
type Eligibility struct {
	Reason    model.RejectReason
	User      *models.User
	Poll      *models.Poll
	Candidate *models.Candidate
}

// Eligible 是否可以投票
func (e *Eligibility) Eligible() bool {
	return e.Reason == ""
}

// EligibilityChecker 投票资格检查
//
// 检查按固定顺序进行，第一个失败项即为结果。检查只读，
// 最终是否重复投票以存储层唯一约束为准。
type EligibilityChecker struct {
	store repository.Store
	clock Clock
}

// NewEligibilityChecker 创建资格检查器
func NewEligibilityChecker(store repository.Store, clock Clock) *EligibilityChecker {
	return &EligibilityChecker{store: store, clock: clock}
}

// Check 检查用户能否在投票中为候选人投票，只有存储故障返回 error
func (c *EligibilityChecker) Check(ctx context.Context, externalID int64, pollID, candidateID uint) (*Eligibility, error) {
	result := &Eligibility{}

	user, err := c.store.GetUserByExternalID(ctx, externalID)
	if err != nil {
		return rejectOnNotFound(result, err, model.ReasonUserNotFound)
	}
	result.User = user

	poll, err := c.store.GetPoll(ctx, pollID)
	if err != nil {
		return rejectOnNotFound(result, err, model.ReasonPollNotFound)
	}
	// 停用的投票对外不可见，按不存在处理而不是已关闭
	if !poll.IsActive {
		result.Reason = model.ReasonPollNotFound
		return result, nil
	}
	result.Poll = poll

	if !IsPollOpen(poll, c.clock.Now()) {
		result.Reason = model.ReasonPollClosed
		return result, nil
	}

	voted, err := c.store.HasVote(ctx, user.ID, poll.ID)
	if err != nil {
		return nil, unavailable(err)
	}
	if voted {
		result.Reason = model.ReasonAlreadyVoted
		return result, nil
	}

	candidate, err := c.store.GetCandidate(ctx, candidateID)
	if err != nil {
		return rejectOnNotFound(result, err, model.ReasonCandidateNotFound)
	}
	if !candidate.IsActive {
		result.Reason = model.ReasonCandidateNotFound
		return result, nil
	}
	result.Candidate = candidate

	if candidate.ResolvePollID() != poll.ID {
		result.Reason = model.ReasonCandidateMismatch
	}
	return result, nil
}

func rejectOnNotFound(result *Eligibility, err error, reason model.RejectReason) (*Eligibility, error) {
	if errors.Is(err, repository.ErrNotFound) {
		result.Reason = reason
		return result, nil
	}
	return nil, unavailable(err)
}
