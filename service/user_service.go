package service

import (
	"context"
	"errors"
	"log/slog"

	"ovozber-backend/model"
	"ovozber-backend/models"
	"ovozber-backend/repository"
)

// UserService 用户注册、订阅与投票记录
type UserService struct {
	store repository.Store
	clock Clock
	log   *slog.Logger
}

// NewUserService 创建用户服务
func NewUserService(store repository.Store, clock Clock, log *slog.Logger) *UserService {
	return &UserService{store: store, clock: clock, log: log}
}

// RegisterOrUpdate 注册或更新用户，返回是否新建
func (s *UserService) RegisterOrUpdate(ctx context.Context, req model.RegisterUserRequest) (*model.UserSummary, bool, error) {
	user := &models.User{
		ExternalID:  req.TelegramID,
		Username:    req.Username,
		FullName:    req.FullName,
		PhoneNumber: req.PhoneNumber,
	}
	created, err := s.store.UpsertUser(ctx, user)
	if err != nil {
		return nil, false, storeError(err, nil)
	}
	if created {
		s.log.Info("新用户注册", "telegram_id", user.ExternalID, "user_id", user.ID)
	}

	voted, err := s.store.ListVotedPolls(ctx, user.ID)
	if err != nil {
		return nil, false, unavailable(err)
	}
	summary := summarizeUser(user, len(voted))
	return &summary, created, nil
}

// MarkSubscribed 标记用户已订阅全部必需频道
func (s *UserService) MarkSubscribed(ctx context.Context, telegramID int64) error {
	if err := s.store.MarkSubscribed(ctx, telegramID); err != nil {
		return storeError(err, ErrUserNotFound)
	}
	s.log.Info("用户订阅已确认", "telegram_id", telegramID)
	return nil
}

// HasVoted 用户是否已在投票中投票，未注册的用户视为未投票
func (s *UserService) HasVoted(ctx context.Context, telegramID int64, pollID uint) (bool, error) {
	user, err := s.store.GetUserByExternalID(ctx, telegramID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, unavailable(err)
	}

	voted, err := s.store.HasVote(ctx, user.ID, pollID)
	if err != nil {
		return false, unavailable(err)
	}
	return voted, nil
}

// VotedPolls 用户参与过的投票
func (s *UserService) VotedPolls(ctx context.Context, telegramID int64) ([]model.PollSummary, error) {
	user, err := s.store.GetUserByExternalID(ctx, telegramID)
	if err != nil {
		return nil, storeError(err, ErrUserNotFound)
	}

	polls, err := s.store.ListVotedPolls(ctx, user.ID)
	if err != nil {
		return nil, unavailable(err)
	}

	now := s.clock.Now()
	summaries := make([]model.PollSummary, 0, len(polls))
	for i := range polls {
		summaries = append(summaries, SummarizePoll(&polls[i], now))
	}
	return summaries, nil
}

// SubscriptionStatus 订阅状态，带 PollID 时同时返回是否已投票
//
// 未注册的用户返回未订阅、未投票。
func (s *UserService) SubscriptionStatus(ctx context.Context, req model.CheckSubscriptionRequest) (*model.SubscriptionStatus, error) {
	status := &model.SubscriptionStatus{}

	user, err := s.store.GetUserByExternalID(ctx, req.TelegramID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		if req.PollID != nil {
			status.HasVotedInPoll = new(bool)
		}
		return status, nil
	case err != nil:
		return nil, unavailable(err)
	}

	status.IsSubscribed = user.IsSubscribed
	if req.PollID != nil {
		voted, err := s.store.HasVote(ctx, user.ID, *req.PollID)
		if err != nil {
			return nil, unavailable(err)
		}
		status.HasVotedInPoll = &voted
	}
	return status, nil
}

func summarizeUser(user *models.User, votedPolls int) model.UserSummary {
	return model.UserSummary{
		ID:              user.ID,
		TelegramID:      user.ExternalID,
		Username:        user.Username,
		FullName:        user.FullName,
		PhoneNumber:     user.PhoneNumber,
		IsSubscribed:    user.IsSubscribed,
		VotedPollsCount: votedPolls,
		CreatedAt:       user.CreatedAt,
	}
}
