package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"ovozber-backend/database"
	"ovozber-backend/logging"
	"ovozber-backend/models"
	"ovozber-backend/repository"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) Clock {
	return ClockFunc(func() time.Time { return t })
}

type fixture struct {
	db         *gorm.DB
	store      *repository.GormStore
	poll       models.Poll
	otherPoll  models.Poll
	region     models.Region
	district   models.District
	candidateA models.Candidate
	candidateB models.Candidate
	foreign    models.Candidate
	user       models.User
}

// setupFixture builds one open poll with two candidates, a second poll with
// one candidate and a registered user.
func setupFixture(t *testing.T) *fixture {
	t.Helper()
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

	f := &fixture{db: db, store: repository.NewGormStore(db)}

	start := testNow.Add(-24 * time.Hour)
	end := testNow.Add(24 * time.Hour)
	f.poll = models.Poll{Title: "Mayor", StartDate: &start, EndDate: &end, IsActive: true}
	f.otherPoll = models.Poll{Title: "Teacher", IsActive: true}
	require.NoError(t, db.Create(&f.poll).Error)
	require.NoError(t, db.Create(&f.otherPoll).Error)

	f.region = models.Region{PollID: f.poll.ID, Name: "Samarkand", IsActive: true}
	require.NoError(t, db.Create(&f.region).Error)
	f.district = models.District{RegionID: f.region.ID, Name: "Urgut", IsActive: true}
	require.NoError(t, db.Create(&f.district).Error)

	f.candidateA = models.Candidate{PollID: f.poll.ID, DistrictID: &f.district.ID, FullName: "Aziz", IsActive: true}
	f.candidateB = models.Candidate{PollID: f.poll.ID, DistrictID: &f.district.ID, FullName: "Botir", IsActive: true}
	f.foreign = models.Candidate{PollID: f.otherPoll.ID, FullName: "Gulnora", IsActive: true}
	require.NoError(t, db.Create(&f.candidateA).Error)
	require.NoError(t, db.Create(&f.candidateB).Error)
	require.NoError(t, db.Create(&f.foreign).Error)

	f.user = models.User{ExternalID: 1001, FullName: "Voter"}
	require.NoError(t, db.Create(&f.user).Error)

	return f
}

func (f *fixture) addUser(t *testing.T, externalID int64) models.User {
	t.Helper()
	user := models.User{ExternalID: externalID}
	require.NoError(t, f.db.Create(&user).Error)
	return user
}

// failingStore reports every call as a storage outage.
type failingStore struct {
	repository.Store
}

func (failingStore) GetUserByExternalID(context.Context, int64) (*models.User, error) {
	return nil, repository.ErrUnavailable
}

func (failingStore) GetPoll(context.Context, uint) (*models.Poll, error) {
	return nil, repository.ErrUnavailable
}

func (failingStore) ListActivePolls(context.Context) ([]models.Poll, error) {
	return nil, repository.ErrUnavailable
}
