package models

import (
	"time"

	"gorm.io/gorm"
)

// Poll represents a time-boxed voting event
type Poll struct {
	gorm.Model             // Includes fields like ID, CreatedAt, UpdatedAt, DeletedAt
	Title       string     `gorm:"size:255;not null" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	StartDate   *time.Time `json:"start_date,omitempty"` // Optional opening time
	EndDate     *time.Time `json:"end_date,omitempty"`   // Optional closing time
	IsActive    bool       `gorm:"not null;index" json:"is_active"`
	Order       int        `gorm:"column:sort_order;not null;default:0" json:"order"`
	Regions     []Region   `gorm:"foreignKey:PollID" json:"regions,omitempty"`
}

// Region 地区（属于投票）
type Region struct {
	gorm.Model
	PollID      uint       `gorm:"not null;uniqueIndex:idx_region_poll_name,priority:1" json:"poll_id"`
	Name        string     `gorm:"size:255;not null;uniqueIndex:idx_region_poll_name,priority:2" json:"name"`
	Description string     `gorm:"type:text" json:"description"`
	IsActive    bool       `gorm:"not null" json:"is_active"`
	Order       int        `gorm:"column:sort_order;not null;default:0" json:"order"`
	Districts   []District `gorm:"foreignKey:RegionID" json:"districts,omitempty"`
}

// District 区县（属于地区）
type District struct {
	gorm.Model
	RegionID    uint    `gorm:"not null;uniqueIndex:idx_district_region_name,priority:1" json:"region_id"`
	Region      *Region `gorm:"foreignKey:RegionID" json:"region,omitempty"`
	Name        string  `gorm:"size:255;not null;uniqueIndex:idx_district_region_name,priority:2" json:"name"`
	Description string  `gorm:"type:text" json:"description"`
	IsActive    bool    `gorm:"not null" json:"is_active"`
	Order       int     `gorm:"column:sort_order;not null;default:0" json:"order"`
}

// Candidate 候选人
//
// 候选人总是直接挂在投票下（PollID），旧数据可能只有 District 链路，
// 由 migrations.BackfillCandidatePoll 补齐。
type Candidate struct {
	gorm.Model
	PollID     uint      `gorm:"not null;index" json:"poll_id"`
	DistrictID *uint     `gorm:"index" json:"district_id,omitempty"`
	District   *District `gorm:"foreignKey:DistrictID" json:"district,omitempty"`
	FullName   string    `gorm:"size:255;not null" json:"full_name"`
	Bio        string    `gorm:"type:text" json:"bio"`
	Position   string    `gorm:"size:255" json:"position"`
	PhotoURL   string    `gorm:"size:512" json:"photo_url"`
	IsActive   bool      `gorm:"not null" json:"is_active"`
	Order      int       `gorm:"column:sort_order;not null;default:0" json:"order"`
}

// ResolvePollID 返回候选人所属投票，直接挂载优先，其次走 District→Region→Poll
func (c *Candidate) ResolvePollID() uint {
	if c.PollID != 0 {
		return c.PollID
	}
	if c.District != nil && c.District.Region != nil {
		return c.District.Region.PollID
	}
	return 0
}
