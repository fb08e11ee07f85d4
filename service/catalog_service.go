package service

import (
	"context"

	"ovozber-backend/model"
	"ovozber-backend/models"
	"ovozber-backend/repository"
)

// CatalogService 投票、地区、区县、候选人的浏览
type CatalogService struct {
	store repository.Store
	clock Clock
}

// NewCatalogService 创建目录服务
func NewCatalogService(store repository.Store, clock Clock) *CatalogService {
	return &CatalogService{store: store, clock: clock}
}

// ListOpenPolls 当前接受投票的投票
func (s *CatalogService) ListOpenPolls(ctx context.Context) ([]model.PollSummary, error) {
	return s.ListPolls(ctx, false)
}

// ListPolls 启用的投票，includeClosed 为 false 时只返回开放中的
func (s *CatalogService) ListPolls(ctx context.Context, includeClosed bool) ([]model.PollSummary, error) {
	polls, err := s.store.ListActivePolls(ctx)
	if err != nil {
		return nil, unavailable(err)
	}

	now := s.clock.Now()
	summaries := make([]model.PollSummary, 0, len(polls))
	for i := range polls {
		summary := SummarizePoll(&polls[i], now)
		if !includeClosed && !summary.IsOpen {
			continue
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// GetPoll 启用的投票详情
func (s *CatalogService) GetPoll(ctx context.Context, pollID uint) (*model.PollSummary, error) {
	poll, err := s.activePoll(ctx, pollID)
	if err != nil {
		return nil, err
	}
	summary := SummarizePoll(poll, s.clock.Now())
	return &summary, nil
}

// ListChannels 必须订阅的频道
func (s *CatalogService) ListChannels(ctx context.Context) ([]model.ChannelSummary, error) {
	channels, err := s.store.ListChannels(ctx)
	if err != nil {
		return nil, unavailable(err)
	}

	summaries := make([]model.ChannelSummary, 0, len(channels))
	for _, ch := range channels {
		summaries = append(summaries, model.ChannelSummary{
			ID:              ch.ID,
			ChannelID:       ch.ChannelID,
			ChannelUsername: ch.ChannelUsername,
			Title:           ch.Title,
			Description:     ch.Description,
		})
	}
	return summaries, nil
}

// ListGroups 投票下的地区及其区县
func (s *CatalogService) ListGroups(ctx context.Context, pollID uint) ([]model.RegionSummary, error) {
	if _, err := s.activePoll(ctx, pollID); err != nil {
		return nil, err
	}

	regions, err := s.store.ListRegions(ctx, pollID)
	if err != nil {
		return nil, unavailable(err)
	}

	summaries := make([]model.RegionSummary, 0, len(regions))
	for _, r := range regions {
		summaries = append(summaries, model.RegionSummary{
			ID:          r.ID,
			PollID:      r.PollID,
			Name:        r.Name,
			Description: r.Description,
			Order:       r.Order,
			Districts:   summarizeDistricts(r.Districts),
		})
	}
	return summaries, nil
}

// ListDistricts 地区下的区县
func (s *CatalogService) ListDistricts(ctx context.Context, regionID uint) ([]model.DistrictSummary, error) {
	region, err := s.store.GetRegion(ctx, regionID)
	if err != nil {
		return nil, storeError(err, ErrRegionNotFound)
	}
	if !region.IsActive {
		return nil, ErrRegionNotFound
	}

	districts, err := s.store.ListDistricts(ctx, regionID)
	if err != nil {
		return nil, unavailable(err)
	}
	return summarizeDistricts(districts), nil
}

// ListCandidatesByDistrict 区县下的候选人
func (s *CatalogService) ListCandidatesByDistrict(ctx context.Context, districtID uint) ([]model.CandidateSummary, error) {
	candidates, err := s.store.ListCandidatesByDistrict(ctx, districtID)
	if err != nil {
		return nil, unavailable(err)
	}
	return summarizeCandidates(candidates), nil
}

// ListCandidatesByPoll 投票下的全部候选人
func (s *CatalogService) ListCandidatesByPoll(ctx context.Context, pollID uint) ([]model.CandidateSummary, error) {
	if _, err := s.activePoll(ctx, pollID); err != nil {
		return nil, err
	}

	candidates, err := s.store.ListCandidatesByPoll(ctx, pollID)
	if err != nil {
		return nil, unavailable(err)
	}
	return summarizeCandidates(candidates), nil
}

func (s *CatalogService) activePoll(ctx context.Context, pollID uint) (*models.Poll, error) {
	poll, err := s.store.GetPoll(ctx, pollID)
	if err != nil {
		return nil, storeError(err, ErrPollNotFound)
	}
	if !poll.IsActive {
		return nil, ErrPollNotFound
	}
	return poll, nil
}

func summarizeDistricts(districts []models.District) []model.DistrictSummary {
	summaries := make([]model.DistrictSummary, 0, len(districts))
	for _, d := range districts {
		summaries = append(summaries, model.DistrictSummary{
			ID:          d.ID,
			RegionID:    d.RegionID,
			Name:        d.Name,
			Description: d.Description,
			Order:       d.Order,
		})
	}
	return summaries
}

func summarizeCandidates(candidates []models.Candidate) []model.CandidateSummary {
	summaries := make([]model.CandidateSummary, 0, len(candidates))
	for _, c := range candidates {
		summaries = append(summaries, model.CandidateSummary{
			ID:         c.ID,
			PollID:     c.PollID,
			DistrictID: c.DistrictID,
			FullName:   c.FullName,
			Bio:        c.Bio,
			Position:   c.Position,
			PhotoURL:   c.PhotoURL,
			Order:      c.Order,
		})
	}
	return summaries
}
