package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ovozber-backend/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore 基于 GORM 的数据仓库实现（MySQL / SQLite）
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 创建数据仓库
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Ping 检查数据库连接
func (r *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// UpsertUser 按外部ID创建或更新用户
func (r *GormStore) UpsertUser(ctx context.Context, user *models.User) (bool, error) {
	var existing models.User
	err := r.db.WithContext(ctx).Where("external_id = ?", user.ExternalID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// 并发注册时由唯一索引兜底，冲突则转为更新
		err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"username", "full_name", "updated_at"}),
		}).Create(user).Error
		if err != nil {
			return false, translateError(err)
		}
		return true, nil
	}
	if err != nil {
		return false, translateError(err)
	}

	updates := map[string]interface{}{
		"username":  user.Username,
		"full_name": user.FullName,
	}
	if user.PhoneNumber != "" {
		updates["phone_number"] = user.PhoneNumber
	}
	if err := r.db.WithContext(ctx).Model(&existing).Updates(updates).Error; err != nil {
		return false, translateError(err)
	}

	existing.Username = user.Username
	existing.FullName = user.FullName
	if user.PhoneNumber != "" {
		existing.PhoneNumber = user.PhoneNumber
	}
	*user = existing
	return false, nil
}

// GetUserByExternalID 按外部ID查询用户
func (r *GormStore) GetUserByExternalID(ctx context.Context, externalID int64) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&user).Error; err != nil {
		return nil, translateError(err)
	}
	return &user, nil
}

// MarkSubscribed 标记用户已订阅
func (r *GormStore) MarkSubscribed(ctx context.Context, externalID int64) error {
	user, err := r.GetUserByExternalID(ctx, externalID)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Model(user).Update("is_subscribed", true).Error; err != nil {
		return translateError(err)
	}
	return nil
}

// ListChannels 获取启用的频道
func (r *GormStore) ListChannels(ctx context.Context) ([]models.Channel, error) {
	var channels []models.Channel
	err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("title ASC, id ASC").Find(&channels).Error
	if err != nil {
		return nil, translateError(err)
	}
	return channels, nil
}

// GetPoll 按ID获取投票（不过滤状态）
func (r *GormStore) GetPoll(ctx context.Context, id uint) (*models.Poll, error) {
	var poll models.Poll
	if err := r.db.WithContext(ctx).First(&poll, id).Error; err != nil {
		return nil, translateError(err)
	}
	return &poll, nil
}

// ListActivePolls 获取启用的投票
func (r *GormStore) ListActivePolls(ctx context.Context) ([]models.Poll, error) {
	var polls []models.Poll
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("sort_order ASC, created_at DESC, id DESC").
		Find(&polls).Error
	if err != nil {
		return nil, translateError(err)
	}
	return polls, nil
}

// GetRegion 按ID获取地区
func (r *GormStore) GetRegion(ctx context.Context, id uint) (*models.Region, error) {
	var region models.Region
	if err := r.db.WithContext(ctx).First(&region, id).Error; err != nil {
		return nil, translateError(err)
	}
	return &region, nil
}

// ListRegions 获取投票下启用的地区，并预加载启用的区县
func (r *GormStore) ListRegions(ctx context.Context, pollID uint) ([]models.Region, error) {
	var regions []models.Region
	err := r.db.WithContext(ctx).
		Preload("Districts", func(db *gorm.DB) *gorm.DB {
			return db.Where("is_active = ?", true).Order("sort_order ASC, name ASC")
		}).
		Where("poll_id = ? AND is_active = ?", pollID, true).
		Order("sort_order ASC, name ASC").
		Find(&regions).Error
	if err != nil {
		return nil, translateError(err)
	}
	return regions, nil
}

// ListDistricts 获取地区下启用的区县
func (r *GormStore) ListDistricts(ctx context.Context, regionID uint) ([]models.District, error) {
	var districts []models.District
	err := r.db.WithContext(ctx).
		Where("region_id = ? AND is_active = ?", regionID, true).
		Order("sort_order ASC, name ASC").
		Find(&districts).Error
	if err != nil {
		return nil, translateError(err)
	}
	return districts, nil
}

// GetCandidate 按ID获取候选人（不过滤状态）
func (r *GormStore) GetCandidate(ctx context.Context, id uint) (*models.Candidate, error) {
	var candidate models.Candidate
	if err := r.db.WithContext(ctx).Preload("District.Region").First(&candidate, id).Error; err != nil {
		return nil, translateError(err)
	}
	return &candidate, nil
}

// ListCandidatesByDistrict 获取区县下启用的候选人
func (r *GormStore) ListCandidatesByDistrict(ctx context.Context, districtID uint) ([]models.Candidate, error) {
	var candidates []models.Candidate
	err := r.db.WithContext(ctx).
		Where("district_id = ? AND is_active = ?", districtID, true).
		Order("sort_order ASC, full_name ASC, id ASC").
		Find(&candidates).Error
	if err != nil {
		return nil, translateError(err)
	}
	return candidates, nil
}

// ListCandidatesByPoll 获取投票下启用的候选人
func (r *GormStore) ListCandidatesByPoll(ctx context.Context, pollID uint) ([]models.Candidate, error) {
	var candidates []models.Candidate
	err := r.db.WithContext(ctx).
		Where("poll_id = ? AND is_active = ?", pollID, true).
		Order("sort_order ASC, full_name ASC, id ASC").
		Find(&candidates).Error
	if err != nil {
		return nil, translateError(err)
	}
	return candidates, nil
}

// HasVote 用户是否已在该投票中投票
func (r *GormStore) HasVote(ctx context.Context, userID, pollID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Vote{}).
		Where("user_id = ? AND poll_id = ?", userID, pollID).
		Count(&count).Error
	if err != nil {
		return false, translateError(err)
	}
	return count > 0, nil
}

// InsertVote 在一个事务内写入投票并维护用户的 has_voted 标记
func (r *GormStore) InsertVote(ctx context.Context, vote *models.Vote) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(vote).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).Where("id = ?", vote.UserID).Update("has_voted", true).Error
	})
	return translateError(err)
}

// ListVotedPolls 用户参与过的投票
func (r *GormStore) ListVotedPolls(ctx context.Context, userID uint) ([]models.Poll, error) {
	var polls []models.Poll
	voted := r.db.Model(&models.Vote{}).Select("poll_id").Where("user_id = ?", userID)
	err := r.db.WithContext(ctx).
		Where("id IN (?)", voted).
		Order("sort_order ASC, created_at DESC, id DESC").
		Find(&polls).Error
	if err != nil {
		return nil, translateError(err)
	}
	return polls, nil
}

// CountVotes 投票总数
func (r *GormStore) CountVotes(ctx context.Context, pollID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Vote{}).Where("poll_id = ?", pollID).Count(&count).Error; err != nil {
		return 0, translateError(err)
	}
	return count, nil
}

// CountParticipants 参与人数（去重用户）
func (r *GormStore) CountParticipants(ctx context.Context, pollID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Vote{}).
		Where("poll_id = ?", pollID).
		Distinct("user_id").
		Count(&count).Error
	if err != nil {
		return 0, translateError(err)
	}
	return count, nil
}

// CandidateVoteCounts 投票下每个候选人的票数
//
// 包含启用的候选人以及已停用但仍有票的候选人，排序交给调用方。
func (r *GormStore) CandidateVoteCounts(ctx context.Context, pollID uint) ([]CandidateCount, error) {
	var rows []CandidateCount
	err := r.db.WithContext(ctx).
		Table("candidates AS c").
		Select("c.id AS candidate_id, c.poll_id, c.full_name, COALESCE(d.name, '') AS district_name, COALESCE(rg.name, '') AS region_name, COUNT(v.id) AS votes").
		Joins("LEFT JOIN districts d ON d.id = c.district_id").
		Joins("LEFT JOIN regions rg ON rg.id = d.region_id").
		Joins("LEFT JOIN votes v ON v.candidate_id = c.id AND v.poll_id = ?", pollID).
		Where("c.poll_id = ? AND c.deleted_at IS NULL", pollID).
		Group("c.id, c.poll_id, c.full_name, c.is_active, d.name, rg.name").
		Having("c.is_active = ? OR COUNT(v.id) > 0", true).
		Scan(&rows).Error
	if err != nil {
		return nil, translateError(err)
	}
	return rows, nil
}

// RegionVoteCounts 投票下每个地区的票数
func (r *GormStore) RegionVoteCounts(ctx context.Context, pollID uint) ([]GroupCount, error) {
	var rows []GroupCount
	err := r.db.WithContext(ctx).
		Table("regions AS rg").
		Select("rg.id, rg.name, COUNT(v.id) AS votes").
		Joins("LEFT JOIN districts d ON d.region_id = rg.id AND d.deleted_at IS NULL").
		Joins("LEFT JOIN candidates c ON c.district_id = d.id AND c.deleted_at IS NULL").
		Joins("LEFT JOIN votes v ON v.candidate_id = c.id AND v.poll_id = ?", pollID).
		Where("rg.poll_id = ? AND rg.is_active = ? AND rg.deleted_at IS NULL", pollID, true).
		Group("rg.id, rg.name").
		Scan(&rows).Error
	if err != nil {
		return nil, translateError(err)
	}
	return rows, nil
}

// DistrictVoteCounts 投票下每个区县的票数
func (r *GormStore) DistrictVoteCounts(ctx context.Context, pollID uint) ([]GroupCount, error) {
	var rows []GroupCount
	err := r.db.WithContext(ctx).
		Table("districts AS d").
		Select("d.id, d.name, COUNT(v.id) AS votes").
		Joins("JOIN regions rg ON rg.id = d.region_id AND rg.deleted_at IS NULL").
		Joins("LEFT JOIN candidates c ON c.district_id = d.id AND c.deleted_at IS NULL").
		Joins("LEFT JOIN votes v ON v.candidate_id = c.id AND v.poll_id = ?", pollID).
		Where("rg.poll_id = ? AND d.is_active = ? AND d.deleted_at IS NULL", pollID, true).
		Group("d.id, d.name").
		Scan(&rows).Error
	if err != nil {
		return nil, translateError(err)
	}
	return rows, nil
}

// TopCandidates 全站得票最多的候选人，同票按ID升序
func (r *GormStore) TopCandidates(ctx context.Context, limit int) ([]CandidateCount, error) {
	var rows []CandidateCount
	err := r.db.WithContext(ctx).
		Table("candidates AS c").
		Select("c.id AS candidate_id, c.poll_id, c.full_name, COALESCE(d.name, '') AS district_name, COALESCE(rg.name, '') AS region_name, COUNT(v.id) AS votes").
		Joins("LEFT JOIN districts d ON d.id = c.district_id").
		Joins("LEFT JOIN regions rg ON rg.id = d.region_id").
		Joins("LEFT JOIN votes v ON v.candidate_id = c.id AND v.poll_id = c.poll_id").
		Where("c.is_active = ? AND c.deleted_at IS NULL", true).
		Group("c.id, c.poll_id, c.full_name, d.name, rg.name").
		Order("votes DESC, c.id ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, translateError(err)
	}
	return rows, nil
}

// GlobalCounters 全站计数
func (r *GormStore) GlobalCounters(ctx context.Context) (*GlobalCounters, error) {
	var counters GlobalCounters
	db := r.db.WithContext(ctx)

	if err := db.Model(&models.User{}).Count(&counters.TotalUsers).Error; err != nil {
		return nil, translateError(err)
	}
	if err := db.Model(&models.User{}).Where("is_subscribed = ?", true).Count(&counters.SubscribedUsers).Error; err != nil {
		return nil, translateError(err)
	}
	if err := db.Model(&models.User{}).Where("has_voted = ?", true).Count(&counters.VotedUsers).Error; err != nil {
		return nil, translateError(err)
	}
	if err := db.Model(&models.Vote{}).Count(&counters.TotalVotes).Error; err != nil {
		return nil, translateError(err)
	}
	return &counters, nil
}

// translateError 将 GORM/驱动错误映射为仓库层错误
func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey), isUniqueViolation(err):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

// isUniqueViolation 兜底识别未被方言翻译的唯一约束错误（sqlite / mysql）
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "Duplicate entry")
}
