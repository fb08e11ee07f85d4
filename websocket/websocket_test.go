package websocket

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"ovozber-backend/logging"
	"ovozber-backend/model"
	"ovozber-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStats struct {
	calls atomic.Int64
	votes atomic.Int64
}

func (f *fakeStats) PollStatistics(_ context.Context, pollID uint) (*model.PollStatistics, error) {
	f.calls.Add(1)
	if pollID != 1 {
		return nil, service.ErrPollNotFound
	}
	return &model.PollStatistics{PollID: pollID, Title: "Best mayor", TotalVotes: f.votes.Load()}, nil
}

type received struct {
	Type    string               `json:"type"`
	PollID  uint                 `json:"pollId"`
	Payload model.PollStatistics `json:"payload"`
}

func setupServer(t *testing.T) (*Hub, *Broadcaster, *fakeStats, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logging.Discard()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(log)
	go hub.Run(ctx)

	stats := &fakeStats{}
	broadcaster := NewBroadcaster(hub, stats, log)
	handler := NewHandler(hub, broadcaster, []string{"*"}, log)

	router := gin.New()
	router.GET("/api/polls/:id/ws", handler.HandleConnection)
	server := httptest.NewServer(router)
	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return hub, broadcaster, stats, server
}

func dial(t *testing.T, server *httptest.Server, path string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + path
	return websocket.DefaultDialer.Dial(url, nil)
}

func readMessage(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg received
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestStatisticsPushedOnVote(t *testing.T) {
	hub, broadcaster, stats, server := setupServer(t)

	conn, _, err := dial(t, server, "/api/polls/1/ws")
	require.NoError(t, err)
	defer conn.Close()

	initial := readMessage(t, conn)
	assert.Equal(t, MessageTypeStatistics, initial.Type)
	assert.Equal(t, uint(1), initial.PollID)
	assert.Equal(t, int64(0), initial.Payload.TotalVotes)

	require.Eventually(t, func() bool { return hub.ClientCount(1) == 1 }, time.Second, 10*time.Millisecond)

	stats.votes.Store(1)
	require.NoError(t, broadcaster.HandleVoteCast(context.Background(), model.VoteCastEvent{EventID: "e1", PollID: 1}))

	update := readMessage(t, conn)
	assert.Equal(t, int64(1), update.Payload.TotalVotes)
	assert.Equal(t, "Best mayor", update.Payload.Title)
}

func TestHandleVoteCastSkipsPollsWithoutClients(t *testing.T) {
	_, broadcaster, stats, _ := setupServer(t)

	require.NoError(t, broadcaster.HandleVoteCast(context.Background(), model.VoteCastEvent{PollID: 1}))
	assert.Equal(t, int64(0), stats.calls.Load())
}

func TestConnectionRejectsBadPoll(t *testing.T) {
	_, _, _, server := setupServer(t)

	_, resp, err := dial(t, server, "/api/polls/abc/ws")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, resp, err = dial(t, server, "/api/polls/99/ws")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestClientUnregisteredOnClose(t *testing.T) {
	hub, _, _, server := setupServer(t)

	conn, _, err := dial(t, server, "/api/polls/1/ws")
	require.NoError(t, err)
	readMessage(t, conn)
	require.Eventually(t, func() bool { return hub.ClientCount(1) == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.ClientCount(1) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://ovozber.uz"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.True(t, check(req))
	req.Header.Set("Origin", "https://ovozber.uz")
	assert.True(t, check(req))
	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(req))
}

func TestSSEStreamsStatistics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := logging.Discard()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub(log)
	go hub.Run(ctx)

	stats := &fakeStats{}
	broadcaster := NewBroadcaster(hub, stats, log)
	handler := NewHandler(hub, broadcaster, []string{"*"}, log)
	router := gin.New()
	router.GET("/api/polls/:id/live", handler.HandleSSE)
	server := httptest.NewServer(router)
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/polls/2/live")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	reqCtx, stop := context.WithCancel(context.Background())
	defer stop()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, server.URL+"/api/polls/1/live", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream"), resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	nextData := func() received {
		t.Helper()
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if strings.HasPrefix(line, "data:") {
				var msg received
				require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &msg))
				return msg
			}
		}
	}

	initial := nextData()
	assert.Equal(t, MessageTypeStatistics, initial.Type)
	assert.Equal(t, int64(0), initial.Payload.TotalVotes)

	require.Eventually(t, func() bool { return hub.ClientCount(1) == 1 }, time.Second, 10*time.Millisecond)
	stats.votes.Store(3)
	require.NoError(t, broadcaster.HandleVoteCast(context.Background(), model.VoteCastEvent{PollID: 1}))
	assert.Equal(t, int64(3), nextData().Payload.TotalVotes)

	stop()
	require.Eventually(t, func() bool { return hub.ClientCount(1) == 0 }, 2*time.Second, 10*time.Millisecond)
}
