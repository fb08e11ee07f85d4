package model

import "time"

// PollStatistics 投票统计结果
type PollStatistics struct {
	PollID            uint                 `json:"poll_id"`
	Title             string               `json:"title"`
	IsOpen            bool                 `json:"is_open"`
	TotalVotes        int64                `json:"total_votes"`
	TotalParticipants int64                `json:"total_participants"`
	Candidates        []CandidateStatistic `json:"candidates"`
	Regions           []GroupStatistic     `json:"regions"`
	Districts         []GroupStatistic     `json:"districts"`
	UpdatedAt         time.Time            `json:"updated_at"`
}

// CandidateStatistic 候选人统计结果
type CandidateStatistic struct {
	Rank         int     `json:"rank"`
	CandidateID  uint    `json:"candidate_id"`
	PollID       uint    `json:"poll_id"`
	FullName     string  `json:"full_name"`
	DistrictName string  `json:"district,omitempty"`
	RegionName   string  `json:"region,omitempty"`
	Votes        int64   `json:"votes"`
	Percentage   float64 `json:"percentage"`
}

// GroupStatistic 地区/区县票数
type GroupStatistic struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Votes int64  `json:"votes"`
}

// GlobalStatistics 全站统计
type GlobalStatistics struct {
	TotalUsers      int64                `json:"total_users"`
	SubscribedUsers int64                `json:"subscribed_users"`
	VotedUsers      int64                `json:"voted_users"`
	TotalVotes      int64                `json:"total_votes"`
	TopCandidates   []CandidateStatistic `json:"top_candidates"`
}
