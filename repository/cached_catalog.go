package repository

import (
	"context"
	"fmt"
	"log/slog"

	"ovozber-backend/models"
)

// CatalogKeyPrefix 目录缓存键的统一前缀
const CatalogKeyPrefix = "catalog:"

// CatalogCache 目录数据的缓存后端
type CatalogCache interface {
	// Load 命中时把缓存内容解码到 dest 并返回 true
	Load(ctx context.Context, key string, dest interface{}) (bool, error)
	Save(ctx context.Context, key string, value interface{}) error
}

// CachedStore 带缓存的数据仓库
//
// 只缓存列表类的目录查询。投票、用户、统计以及按ID取单个实体的查询
// 直接走底层 Store，投票资格判断总是读到最新状态。
type CachedStore struct {
	Store
	cache CatalogCache
	log   *slog.Logger
}

// NewCachedStore 创建带缓存的数据仓库
func NewCachedStore(store Store, cache CatalogCache, log *slog.Logger) *CachedStore {
	return &CachedStore{Store: store, cache: cache, log: log}
}

// ListChannels 获取启用的频道
func (r *CachedStore) ListChannels(ctx context.Context) ([]models.Channel, error) {
	return cached(ctx, r, CatalogKeyPrefix+"channels", func() ([]models.Channel, error) {
		return r.Store.ListChannels(ctx)
	})
}

// ListRegions 获取投票下的地区
func (r *CachedStore) ListRegions(ctx context.Context, pollID uint) ([]models.Region, error) {
	return cached(ctx, r, fmt.Sprintf(CatalogKeyPrefix+"poll:%d:regions", pollID), func() ([]models.Region, error) {
		return r.Store.ListRegions(ctx, pollID)
	})
}

// ListDistricts 获取地区下的区县
func (r *CachedStore) ListDistricts(ctx context.Context, regionID uint) ([]models.District, error) {
	return cached(ctx, r, fmt.Sprintf(CatalogKeyPrefix+"region:%d:districts", regionID), func() ([]models.District, error) {
		return r.Store.ListDistricts(ctx, regionID)
	})
}

// ListCandidatesByDistrict 获取区县下的候选人
func (r *CachedStore) ListCandidatesByDistrict(ctx context.Context, districtID uint) ([]models.Candidate, error) {
	return cached(ctx, r, fmt.Sprintf(CatalogKeyPrefix+"district:%d:candidates", districtID), func() ([]models.Candidate, error) {
		return r.Store.ListCandidatesByDistrict(ctx, districtID)
	})
}

// ListCandidatesByPoll 获取投票下的候选人
func (r *CachedStore) ListCandidatesByPoll(ctx context.Context, pollID uint) ([]models.Candidate, error) {
	return cached(ctx, r, fmt.Sprintf(CatalogKeyPrefix+"poll:%d:candidates", pollID), func() ([]models.Candidate, error) {
		return r.Store.ListCandidatesByPoll(ctx, pollID)
	})
}

// cached 先读缓存，未命中时查库并回写。缓存故障只记录日志
func cached[T any](ctx context.Context, r *CachedStore, key string, load func() ([]T, error)) ([]T, error) {
	var items []T
	hit, err := r.cache.Load(ctx, key, &items)
	if err != nil {
		r.log.Warn("读取目录缓存失败", "key", key, "error", err)
	} else if hit {
		return items, nil
	}

	items, err = load()
	if err != nil {
		return nil, err
	}

	if err := r.cache.Save(ctx, key, items); err != nil {
		r.log.Warn("写入目录缓存失败", "key", key, "error", err)
	}
	return items, nil
}
