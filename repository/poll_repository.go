package repository

import (
	"context"
	"errors"

	"ovozber-backend/models"
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("record not found")
	// ErrConflict 唯一约束冲突，投票场景下表示 (user, poll) 已有投票
	ErrConflict = errors.New("unique constraint conflict")
	// ErrUnavailable 存储不可用（连接失败、超时等）
	ErrUnavailable = errors.New("storage unavailable")
)

// UserStore 用户数据访问接口
type UserStore interface {
	// UpsertUser 按外部ID创建或更新用户，返回是否新建
	UpsertUser(ctx context.Context, user *models.User) (bool, error)
	GetUserByExternalID(ctx context.Context, externalID int64) (*models.User, error)
	MarkSubscribed(ctx context.Context, externalID int64) error
}

// CatalogStore 投票、地区、候选人等只读为主的数据
type CatalogStore interface {
	ListChannels(ctx context.Context) ([]models.Channel, error)

	GetPoll(ctx context.Context, id uint) (*models.Poll, error)
	ListActivePolls(ctx context.Context) ([]models.Poll, error)

	GetRegion(ctx context.Context, id uint) (*models.Region, error)
	ListRegions(ctx context.Context, pollID uint) ([]models.Region, error)
	ListDistricts(ctx context.Context, regionID uint) ([]models.District, error)

	// GetCandidate 预加载 District.Region，便于解析所属投票
	GetCandidate(ctx context.Context, id uint) (*models.Candidate, error)
	ListCandidatesByDistrict(ctx context.Context, districtID uint) ([]models.Candidate, error)
	ListCandidatesByPoll(ctx context.Context, pollID uint) ([]models.Candidate, error)
}

// VoteStore 投票记录
type VoteStore interface {
	HasVote(ctx context.Context, userID, pollID uint) (bool, error)
	// InsertVote 原子写入投票，(user, poll) 已存在时返回 ErrConflict
	InsertVote(ctx context.Context, vote *models.Vote) error
	ListVotedPolls(ctx context.Context, userID uint) ([]models.Poll, error)
}

// StatsStore 统计查询，每次实时计算
type StatsStore interface {
	CountVotes(ctx context.Context, pollID uint) (int64, error)
	CountParticipants(ctx context.Context, pollID uint) (int64, error)
	CandidateVoteCounts(ctx context.Context, pollID uint) ([]CandidateCount, error)
	RegionVoteCounts(ctx context.Context, pollID uint) ([]GroupCount, error)
	DistrictVoteCounts(ctx context.Context, pollID uint) ([]GroupCount, error)
	TopCandidates(ctx context.Context, limit int) ([]CandidateCount, error)
	GlobalCounters(ctx context.Context) (*GlobalCounters, error)
}

// Store 组合全部数据访问接口
type Store interface {
	UserStore
	CatalogStore
	VoteStore
	StatsStore
	Ping(ctx context.Context) error
}

// CandidateCount 候选人票数
type CandidateCount struct {
	CandidateID  uint
	PollID       uint
	FullName     string
	DistrictName string
	RegionName   string
	Votes        int64
}

// GroupCount 地区/区县票数
type GroupCount struct {
	ID    uint
	Name  string
	Votes int64
}

// GlobalCounters 全站计数
type GlobalCounters struct {
	TotalUsers      int64
	SubscribedUsers int64
	VotedUsers      int64
	TotalVotes      int64
}
