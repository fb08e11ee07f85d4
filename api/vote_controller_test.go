package api

import (
	"fmt"
	"net/http"
	"sync"
	"testing"

	"ovozber-backend/model"
	"ovozber-backend/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func voteBody(telegramID int64, pollID, candidateID uint) gin.H {
	return gin.H{"telegram_id": telegramID, "poll_id": pollID, "candidate_id": candidateID}
}

func TestCastVote(t *testing.T) {
	e := SetupTestEnvironment(t)

	w := e.request(t, http.MethodPost, "/api/votes", voteBody(1001, e.poll.ID, e.candidateA.ID))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var result model.VoteResult
	decode(t, w, &result)
	assert.True(t, result.Success)
	require.NotNil(t, result.Vote)
	assert.Equal(t, e.poll.ID, result.Vote.PollID)
	assert.Equal(t, e.candidateA.ID, result.Vote.CandidateID)

	var vote models.Vote
	require.NoError(t, e.db.First(&vote, result.Vote.ID).Error)
	require.NotNil(t, vote.IPAddress)
	assert.Equal(t, "192.0.2.1", *vote.IPAddress)

	var user models.User
	require.NoError(t, e.db.First(&user, e.user.ID).Error)
	assert.True(t, user.HasVoted)
}

func TestCastVoteRejections(t *testing.T) {
	e := SetupTestEnvironment(t)

	require.Equal(t, http.StatusCreated,
		e.request(t, http.MethodPost, "/api/votes", voteBody(1001, e.poll.ID, e.candidateA.ID)).Code)

	tests := []struct {
		name   string
		body   gin.H
		status int
		reason model.RejectReason
	}{
		{"already voted", voteBody(1001, e.poll.ID, e.candidateB.ID), http.StatusConflict, model.ReasonAlreadyVoted},
		{"unknown user", voteBody(9999, e.poll.ID, e.candidateA.ID), http.StatusNotFound, model.ReasonUserNotFound},
		{"unknown poll", voteBody(1001, 999, e.candidateA.ID), http.StatusNotFound, model.ReasonPollNotFound},
		{"closed poll", voteBody(1001, e.closedPoll.ID, e.closedCand.ID), http.StatusForbidden, model.ReasonPollClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.request(t, http.MethodPost, "/api/votes", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())

			var result model.VoteResult
			decode(t, w, &result)
			assert.False(t, result.Success)
			assert.Equal(t, tt.reason, result.Reason)
			assert.NotEmpty(t, result.Message)
		})
	}
}

func TestCastVoteCandidateChecks(t *testing.T) {
	e := SetupTestEnvironment(t)
	other := models.User{ExternalID: 2002}
	require.NoError(t, e.db.Create(&other).Error)

	w := e.request(t, http.MethodPost, "/api/votes", voteBody(2002, e.poll.ID, 999))
	assert.Equal(t, http.StatusNotFound, w.Code)
	var result model.VoteResult
	decode(t, w, &result)
	assert.Equal(t, model.ReasonCandidateNotFound, result.Reason)

	w = e.request(t, http.MethodPost, "/api/votes", voteBody(2002, e.poll.ID, e.closedCand.ID))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	decode(t, w, &result)
	assert.Equal(t, model.ReasonCandidateMismatch, result.Reason)
}

func TestCastVoteInactivePoll(t *testing.T) {
	e := SetupTestEnvironment(t)
	require.NoError(t, e.db.Model(&e.poll).Update("is_active", false).Error)

	w := e.request(t, http.MethodPost, "/api/votes", voteBody(1001, e.poll.ID, e.candidateA.ID))
	assert.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
	var result model.VoteResult
	decode(t, w, &result)
	assert.Equal(t, model.ReasonPollNotFound, result.Reason)
	assert.NotEqual(t, model.ReasonPollClosed, result.Reason)
}

func TestCastVoteBadRequest(t *testing.T) {
	e := SetupTestEnvironment(t)

	w := e.request(t, http.MethodPost, "/api/votes", gin.H{"telegram_id": 1001})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCastVoteConcurrentRequests(t *testing.T) {
	e := SetupTestEnvironment(t)

	const attempts = 10
	codes := make(chan int, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			candidate := e.candidateA.ID
			if i%2 == 1 {
				candidate = e.candidateB.ID
			}
			codes <- e.request(t, http.MethodPost, "/api/votes", voteBody(1001, e.poll.ID, candidate)).Code
		}(i)
	}
	wg.Wait()
	close(codes)

	counts := map[int]int{}
	for code := range codes {
		counts[code]++
	}
	assert.Equal(t, 1, counts[http.StatusCreated], fmt.Sprint(counts))
	assert.Equal(t, attempts-1, counts[http.StatusConflict], fmt.Sprint(counts))

	var stored int64
	require.NoError(t, e.db.Model(&models.Vote{}).Where("user_id = ?", e.user.ID).Count(&stored).Error)
	assert.Equal(t, int64(1), stored)
}

func TestServiceUnavailable(t *testing.T) {
	e := SetupTestEnvironment(t)
	sqlDB, err := e.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	w := e.request(t, http.MethodPost, "/api/votes", voteBody(1001, e.poll.ID, e.candidateA.ID))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = e.request(t, http.MethodGet, "/api/polls", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = e.request(t, http.MethodGet, "/api/status", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
