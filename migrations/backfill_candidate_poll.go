package migrations

import (
	"fmt"
	"log/slog"

	"gorm.io/gorm"
)

// candidate 仅用于检查字段
type candidate struct {
	PollID     uint
	DistrictID *uint
}

func (candidate) TableName() string {
	return "candidates"
}

// BackfillCandidatePoll 为只挂在区县下的候选人补齐 poll_id
//
// 早期数据的候选人只有 district_id，poll 需要经 District→Region 推导。
// 可重复执行，返回更新的行数。
func BackfillCandidatePoll(db *gorm.DB, log *slog.Logger) (int64, error) {
	log.Info("执行迁移: 补齐候选人 poll_id")

	m := db.Migrator()
	if !m.HasColumn(&candidate{}, "district_id") {
		log.Info("迁移跳过: candidates 表没有 district_id 字段")
		return 0, nil
	}
	if !m.HasColumn(&candidate{}, "poll_id") {
		if err := m.AddColumn(&candidate{}, "PollID"); err != nil {
			return 0, fmt.Errorf("添加 poll_id 字段失败: %w", err)
		}
	}

	result := db.Exec(`UPDATE candidates SET poll_id = (
		SELECT r.poll_id FROM districts d JOIN regions r ON r.id = d.region_id WHERE d.id = candidates.district_id
	) WHERE (poll_id IS NULL OR poll_id = 0) AND district_id IN (
		SELECT d.id FROM districts d JOIN regions r ON r.id = d.region_id
	)`)
	if result.Error != nil {
		log.Error("迁移失败", "error", result.Error)
		return 0, fmt.Errorf("补齐候选人 poll_id 失败: %w", result.Error)
	}

	log.Info("迁移成功", "rows", result.RowsAffected)
	return result.RowsAffected, nil
}

// OrphanCandidates 统计仍无法确定所属投票的候选人
func OrphanCandidates(db *gorm.DB) (int64, error) {
	var count int64
	err := db.Table("candidates").
		Where("(poll_id IS NULL OR poll_id = 0) AND deleted_at IS NULL").
		Count(&count).Error
	return count, err
}
