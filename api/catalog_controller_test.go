package api

import (
	"net/http"
	"strconv"
	"testing"

	"ovozber-backend/model"
	"ovozber-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func TestListPolls(t *testing.T) {
	e := SetupTestEnvironment(t)

	w := e.request(t, http.MethodGet, "/api/polls", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var polls []model.PollSummary
	decode(t, w, &polls)
	require.Len(t, polls, 1)
	assert.Equal(t, e.poll.ID, polls[0].ID)
	assert.True(t, polls[0].IsOpen)
	assert.Equal(t, model.PollPhaseOpen, polls[0].Phase)

	w = e.request(t, http.MethodGet, "/api/polls?all=true", nil)
	decode(t, w, &polls)
	require.Len(t, polls, 2)
	byID := map[uint]model.PollSummary{}
	for _, p := range polls {
		byID[p.ID] = p
	}
	assert.False(t, byID[e.closedPoll.ID].IsOpen)
	assert.Equal(t, model.PollPhaseEnded, byID[e.closedPoll.ID].Phase)
}

func TestGetPoll(t *testing.T) {
	e := SetupTestEnvironment(t)

	w := e.request(t, http.MethodGet, "/api/polls/"+itoa(e.poll.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var poll model.PollSummary
	decode(t, w, &poll)
	assert.Equal(t, "Best mayor", poll.Title)

	assert.Equal(t, http.StatusNotFound, e.request(t, http.MethodGet, "/api/polls/999", nil).Code)
	assert.Equal(t, http.StatusBadRequest, e.request(t, http.MethodGet, "/api/polls/abc", nil).Code)
	assert.Equal(t, http.StatusBadRequest, e.request(t, http.MethodGet, "/api/polls/0", nil).Code)
}

func TestGeography(t *testing.T) {
	e := SetupTestEnvironment(t)

	w := e.request(t, http.MethodGet, "/api/polls/"+itoa(e.poll.ID)+"/regions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var regions []model.RegionSummary
	decode(t, w, &regions)
	require.Len(t, regions, 1)
	assert.Equal(t, "Toshkent", regions[0].Name)
	require.Len(t, regions[0].Districts, 1)

	w = e.request(t, http.MethodGet, "/api/regions/"+itoa(e.region.ID)+"/districts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var districts []model.DistrictSummary
	decode(t, w, &districts)
	require.Len(t, districts, 1)
	assert.Equal(t, e.district.ID, districts[0].ID)

	w = e.request(t, http.MethodGet, "/api/districts/"+itoa(e.district.ID)+"/candidates", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var candidates []model.CandidateSummary
	decode(t, w, &candidates)
	require.Len(t, candidates, 2)
	assert.Equal(t, "Alisher", candidates[0].FullName)

	w = e.request(t, http.MethodGet, "/api/polls/"+itoa(e.poll.ID)+"/candidates", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &candidates)
	assert.Len(t, candidates, 2)

	assert.Equal(t, http.StatusNotFound, e.request(t, http.MethodGet, "/api/regions/999/districts", nil).Code)
	assert.Equal(t, http.StatusNotFound, e.request(t, http.MethodGet, "/api/polls/999/regions", nil).Code)
}

func TestListChannels(t *testing.T) {
	e := SetupTestEnvironment(t)
	require.NoError(t, e.db.Create(&models.Channel{ChannelID: "-1001", ChannelUsername: "@ovozber", Title: "Ovozber", IsActive: true}).Error)
	require.NoError(t, e.db.Create(&models.Channel{ChannelID: "-1002", ChannelUsername: "@old", Title: "Old", IsActive: false}).Error)

	w := e.request(t, http.MethodGet, "/api/channels", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var channels []model.ChannelSummary
	decode(t, w, &channels)
	require.Len(t, channels, 1)
	assert.Equal(t, "@ovozber", channels[0].ChannelUsername)
}
