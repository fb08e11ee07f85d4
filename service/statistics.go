package service

import (
	"context"
	"sort"

	"ovozber-backend/model"
	"ovozber-backend/repository"
)

// TopCandidatesLimit 全站统计中的候选人数量
const TopCandidatesLimit = 10

// StatisticsService 统计服务，每次从投票记录实时计算
type StatisticsService struct {
	store repository.Store
	clock Clock
}

// NewStatisticsService 创建统计服务
func NewStatisticsService(store repository.Store, clock Clock) *StatisticsService {
	return &StatisticsService{store: store, clock: clock}
}

// PollStatistics 单个投票的统计
func (s *StatisticsService) PollStatistics(ctx context.Context, pollID uint) (*model.PollStatistics, error) {
	poll, err := s.store.GetPoll(ctx, pollID)
	if err != nil {
		return nil, storeError(err, ErrPollNotFound)
	}

	total, err := s.store.CountVotes(ctx, pollID)
	if err != nil {
		return nil, unavailable(err)
	}
	participants, err := s.store.CountParticipants(ctx, pollID)
	if err != nil {
		return nil, unavailable(err)
	}
	counts, err := s.store.CandidateVoteCounts(ctx, pollID)
	if err != nil {
		return nil, unavailable(err)
	}
	regions, err := s.store.RegionVoteCounts(ctx, pollID)
	if err != nil {
		return nil, unavailable(err)
	}
	districts, err := s.store.DistrictVoteCounts(ctx, pollID)
	if err != nil {
		return nil, unavailable(err)
	}

	now := s.clock.Now()
	return &model.PollStatistics{
		PollID:            poll.ID,
		Title:             poll.Title,
		IsOpen:            IsPollOpen(poll, now),
		TotalVotes:        total,
		TotalParticipants: participants,
		Candidates:        RankCandidates(counts, total),
		Regions:           rankGroups(regions),
		Districts:         rankGroups(districts),
		UpdatedAt:         now,
	}, nil
}

// GlobalStatistics 全站统计
func (s *StatisticsService) GlobalStatistics(ctx context.Context) (*model.GlobalStatistics, error) {
	counters, err := s.store.GlobalCounters(ctx)
	if err != nil {
		return nil, unavailable(err)
	}
	top, err := s.store.TopCandidates(ctx, TopCandidatesLimit)
	if err != nil {
		return nil, unavailable(err)
	}

	return &model.GlobalStatistics{
		TotalUsers:      counters.TotalUsers,
		SubscribedUsers: counters.SubscribedUsers,
		VotedUsers:      counters.VotedUsers,
		TotalVotes:      counters.TotalVotes,
		TopCandidates:   RankCandidates(top, counters.TotalVotes),
	}, nil
}

// RankCandidates 按票数降序排名，同票按候选人ID升序
//
// total 为 0 时所有百分比为 0。
func RankCandidates(counts []repository.CandidateCount, total int64) []model.CandidateStatistic {
	sorted := make([]repository.CandidateCount, len(counts))
	copy(sorted, counts)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Votes != sorted[j].Votes {
			return sorted[i].Votes > sorted[j].Votes
		}
		return sorted[i].CandidateID < sorted[j].CandidateID
	})

	ranking := make([]model.CandidateStatistic, 0, len(sorted))
	for i, c := range sorted {
		ranking = append(ranking, model.CandidateStatistic{
			Rank:         i + 1,
			CandidateID:  c.CandidateID,
			PollID:       c.PollID,
			FullName:     c.FullName,
			DistrictName: c.DistrictName,
			RegionName:   c.RegionName,
			Votes:        c.Votes,
			Percentage:   Percentage(c.Votes, total),
		})
	}
	return ranking
}

// Percentage votes 占 total 的百分比，total 为 0 时返回 0
func Percentage(votes, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(votes) / float64(total) * 100
}

func rankGroups(counts []repository.GroupCount) []model.GroupStatistic {
	groups := make([]model.GroupStatistic, 0, len(counts))
	for _, g := range counts {
		groups = append(groups, model.GroupStatistic{ID: g.ID, Name: g.Name, Votes: g.Votes})
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Votes != groups[j].Votes {
			return groups[i].Votes > groups[j].Votes
		}
		return groups[i].ID < groups[j].ID
	})
	return groups
}
