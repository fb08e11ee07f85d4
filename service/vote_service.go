package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ovozber-backend/model"
	"ovozber-backend/models"
	"ovozber-backend/repository"

	"github.com/google/uuid"
)

// VoteLocker 按 (user, poll) 加短期锁，用来吸收重复点击
//
// 锁只是减压手段，正确性由存储层唯一约束保证，拿不到锁时照常继续。
type VoteLocker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// EventPublisher 投票事件发布
type EventPublisher interface {
	PublishVoteCast(ctx context.Context, event model.VoteCastEvent) error
}

// VoteService 投票提交
type VoteService struct {
	store     repository.Store
	checker   *EligibilityChecker
	clock     Clock
	locker    VoteLocker
	publisher EventPublisher
	log       *slog.Logger

	// 发布事件的最长等待，超时后放弃发布，不影响已落库的投票
	publishTimeout time.Duration
}

// DefaultPublishTimeout 投票事件发布的默认超时
const DefaultPublishTimeout = 500 * time.Millisecond

// VoteOption 投票服务可选项
type VoteOption func(*VoteService)

// WithVoteLocker 启用分布式锁
func WithVoteLocker(locker VoteLocker) VoteOption {
	return func(s *VoteService) {
		s.locker = locker
	}
}

// WithEventPublisher 启用投票事件发布
func WithEventPublisher(publisher EventPublisher) VoteOption {
	return func(s *VoteService) {
		s.publisher = publisher
	}
}

// WithPublishTimeout 设置事件发布超时，d <= 0 时使用默认值
func WithPublishTimeout(d time.Duration) VoteOption {
	return func(s *VoteService) {
		if d > 0 {
			s.publishTimeout = d
		}
	}
}

// NewVoteService 创建投票服务
func NewVoteService(store repository.Store, clock Clock, log *slog.Logger, opts ...VoteOption) *VoteService {
	s := &VoteService{
		store:          store,
		checker:        NewEligibilityChecker(store, clock),
		clock:          clock,
		publishTimeout: DefaultPublishTimeout,
		log:            log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CastVote 提交投票
//
// 每次都重新读取用户、投票和候选人并检查资格，之前对话步骤里的结果不复用。
// 被拒绝时返回 Success=false 的结果；只有存储故障返回 error。
func (s *VoteService) CastVote(ctx context.Context, req model.CastVoteRequest) (*model.VoteResult, error) {
	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, fmt.Sprintf("vote:%d:%d", req.TelegramID, req.PollID))
		if err != nil {
			s.log.Warn("获取投票锁失败，继续提交", "telegram_id", req.TelegramID, "poll_id", req.PollID, "error", err)
		} else {
			defer unlock()
		}
	}

	eligibility, err := s.checker.Check(ctx, req.TelegramID, req.PollID, req.CandidateID)
	if err != nil {
		s.log.Error("资格检查失败", "telegram_id", req.TelegramID, "poll_id", req.PollID, "error", err)
		return nil, err
	}
	if !eligibility.Eligible() {
		s.log.Info("投票被拒绝", "telegram_id", req.TelegramID, "poll_id", req.PollID,
			"candidate_id", req.CandidateID, "reason", eligibility.Reason)
		return model.Rejected(eligibility.Reason), nil
	}

	vote := &models.Vote{
		UserID:      eligibility.User.ID,
		PollID:      eligibility.Poll.ID,
		CandidateID: eligibility.Candidate.ID,
		VotedAt:     s.clock.Now(),
	}
	if req.IPAddress != "" {
		ip := req.IPAddress
		vote.IPAddress = &ip
	}

	if err := s.store.InsertVote(ctx, vote); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// 并发提交中落败的一方
			s.log.Info("重复投票被唯一约束拦截", "user_id", vote.UserID, "poll_id", vote.PollID)
			return model.Rejected(model.ReasonAlreadyVoted), nil
		}
		s.log.Error("写入投票失败", "user_id", vote.UserID, "poll_id", vote.PollID, "error", err)
		return nil, unavailable(err)
	}

	s.log.Info("投票成功", "vote_id", vote.ID, "user_id", vote.UserID, "poll_id", vote.PollID, "candidate_id", vote.CandidateID)
	s.publish(ctx, vote)

	return &model.VoteResult{
		Success: true,
		Message: "Vote recorded",
		Vote: &model.VoteSummary{
			ID:          vote.ID,
			UserID:      vote.UserID,
			PollID:      vote.PollID,
			CandidateID: vote.CandidateID,
			VotedAt:     vote.VotedAt,
		},
	}, nil
}

// publish 发布投票事件，失败只记录日志，投票已经落库
func (s *VoteService) publish(ctx context.Context, vote *models.Vote) {
	if s.publisher == nil {
		return
	}
	event := model.VoteCastEvent{
		EventID:     uuid.NewString(),
		VoteID:      vote.ID,
		UserID:      vote.UserID,
		PollID:      vote.PollID,
		CandidateID: vote.CandidateID,
		VotedAt:     vote.VotedAt,
	}
	// 与请求取消解耦，只受发布超时约束
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()
	if err := s.publisher.PublishVoteCast(ctx, event); err != nil {
		s.log.Warn("发布投票事件失败", "vote_id", vote.ID, "error", err)
	}
}
