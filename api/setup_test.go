package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ovozber-backend/cache"
	"ovozber-backend/conversation"
	"ovozber-backend/database"
	"ovozber-backend/logging"
	"ovozber-backend/models"
	"ovozber-backend/repository"
	"ovozber-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const adminKey = "test-admin-key"

type testEnv struct {
	router     *gin.Engine
	db         *gorm.DB
	store      *repository.GormStore
	poll       models.Poll
	closedPoll models.Poll
	region     models.Region
	district   models.District
	candidateA models.Candidate
	candidateB models.Candidate
	closedCand models.Candidate
	user       models.User
	cache      *fakeInvalidator
	events     *fakeEvents
}

type fakeInvalidator struct {
	keys []string
}

func (f *fakeInvalidator) Invalidate(_ context.Context, keys ...string) error {
	f.keys = append(f.keys, keys...)
	return nil
}

type fakeEvents struct{}

func (fakeEvents) Kind() string { return "memory" }

func (fakeEvents) Stats(context.Context) map[string]int64 {
	return map[string]int64{"published": 3}
}

func (f fakeEvents) QueueStats(ctx context.Context) map[string]interface{} {
	return map[string]interface{}{"type": f.Kind(), "queues": f.Stats(ctx)}
}

func (fakeEvents) RetryDeadLetters(context.Context) (int, error) {
	return 2, nil
}

// SetupTestEnvironment builds the full API over an in-memory SQLite database
// with one open poll, one closed poll and a registered user.
func SetupTestEnvironment(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.OpenInMemory(name, logging.Discard())
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	})

	e := &testEnv{db: db, store: repository.NewGormStore(db), cache: &fakeInvalidator{}, events: &fakeEvents{}}
	e.seed(t)

	log := logging.Discard()
	clock := service.ClockFunc(func() time.Time { return testNow })
	users := service.NewUserService(e.store, clock, log)
	catalog := service.NewCatalogService(e.store, clock)
	votes := service.NewVoteService(e.store, clock, log)
	stats := service.NewStatisticsService(e.store, clock)
	machine := conversation.NewMachine(conversation.Deps{
		Users:    users,
		Catalog:  catalog,
		Voter:    votes,
		Sessions: cache.NewMemorySessionStore(time.Hour),
		Clock:    clock,
	}, conversation.LangUzbek, log)

	e.router = gin.New()
	group := e.router.Group("/api")
	NewHealthController(e.store, nil, e.events).RegisterRoutes(group)
	NewUserController(users).RegisterRoutes(group)
	NewCatalogController(catalog).RegisterRoutes(group)
	NewVoteController(votes).RegisterRoutes(group)
	NewStatisticsController(stats).RegisterRoutes(group)
	NewConversationController(machine).RegisterRoutes(group)
	NewAdminController(adminKey, e.cache, e.events, NewRateLimitStats()).RegisterRoutes(group)
	return e
}

func (e *testEnv) seed(t *testing.T) {
	t.Helper()
	db := e.db

	start := testNow.Add(-24 * time.Hour)
	end := testNow.Add(24 * time.Hour)
	e.poll = models.Poll{Title: "Best mayor", StartDate: &start, EndDate: &end, IsActive: true}
	require.NoError(t, db.Create(&e.poll).Error)

	closedEnd := testNow.Add(-time.Hour)
	e.closedPoll = models.Poll{Title: "Last year", EndDate: &closedEnd, IsActive: true}
	require.NoError(t, db.Create(&e.closedPoll).Error)

	e.region = models.Region{PollID: e.poll.ID, Name: "Toshkent", IsActive: true}
	require.NoError(t, db.Create(&e.region).Error)
	e.district = models.District{RegionID: e.region.ID, Name: "Chilonzor", IsActive: true}
	require.NoError(t, db.Create(&e.district).Error)

	e.candidateA = models.Candidate{PollID: e.poll.ID, DistrictID: &e.district.ID, FullName: "Alisher", IsActive: true}
	e.candidateB = models.Candidate{PollID: e.poll.ID, DistrictID: &e.district.ID, FullName: "Bobur", IsActive: true}
	e.closedCand = models.Candidate{PollID: e.closedPoll.ID, FullName: "Dilnoza", IsActive: true}
	require.NoError(t, db.Create(&e.candidateA).Error)
	require.NoError(t, db.Create(&e.candidateB).Error)
	require.NoError(t, db.Create(&e.closedCand).Error)

	e.user = models.User{ExternalID: 1001, FullName: "Voter"}
	require.NoError(t, db.Create(&e.user).Error)
}

func (e *testEnv) request(t *testing.T, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	req.RemoteAddr = "192.0.2.1:1234"
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dest), w.Body.String())
}
