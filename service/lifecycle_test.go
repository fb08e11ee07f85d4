package service

import (
	"testing"
	"time"

	"ovozber-backend/model"
	"ovozber-backend/models"

	"github.com/stretchr/testify/assert"
)

func TestPollPhaseAt(t *testing.T) {
	start := testNow.Add(-time.Hour)
	end := testNow.Add(time.Hour)

	tests := []struct {
		name  string
		poll  models.Poll
		now   time.Time
		phase model.PollPhase
	}{
		{"inactive", models.Poll{IsActive: false, StartDate: &start, EndDate: &end}, testNow, model.PollPhaseInactive},
		{"no bounds", models.Poll{IsActive: true}, testNow, model.PollPhaseOpen},
		{"before start", models.Poll{IsActive: true, StartDate: &start}, start.Add(-time.Second), model.PollPhaseScheduled},
		{"at start", models.Poll{IsActive: true, StartDate: &start}, start, model.PollPhaseOpen},
		{"at end", models.Poll{IsActive: true, EndDate: &end}, end, model.PollPhaseOpen},
		{"after end", models.Poll{IsActive: true, EndDate: &end}, end.Add(time.Second), model.PollPhaseEnded},
		{"within window", models.Poll{IsActive: true, StartDate: &start, EndDate: &end}, testNow, model.PollPhaseOpen},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			poll := tc.poll
			assert.Equal(t, tc.phase, PollPhaseAt(&poll, tc.now))
			assert.Equal(t, tc.phase == model.PollPhaseOpen, IsPollOpen(&poll, tc.now))
		})
	}
}

func TestSummarizePoll(t *testing.T) {
	end := testNow.Add(-time.Minute)
	poll := models.Poll{Title: "Closed", IsActive: true, EndDate: &end, Order: 3}
	poll.ID = 9

	summary := SummarizePoll(&poll, testNow)

	assert.Equal(t, uint(9), summary.ID)
	assert.False(t, summary.IsOpen)
	assert.Equal(t, model.PollPhaseEnded, summary.Phase)
	assert.Equal(t, 3, summary.Order)
}
