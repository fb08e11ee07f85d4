package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ovozber-backend/logging"
	"ovozber-backend/model"
	"ovozber-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.VoteCastEvent
	err    error
}

func (p *recordingPublisher) PublishVoteCast(_ context.Context, event model.VoteCastEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

type countingLocker struct {
	locks   atomic.Int32
	unlocks atomic.Int32
	err     error
}

func (l *countingLocker) Lock(context.Context, string) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	l.locks.Add(1)
	return func() { l.unlocks.Add(1) }, nil
}

func newVoteService(f *fixture, now time.Time, opts ...VoteOption) *VoteService {
	return NewVoteService(f.store, fixedClock(now), logging.Discard(), opts...)
}

func voteRequest(telegramID int64, pollID, candidateID uint) model.CastVoteRequest {
	return model.CastVoteRequest{TelegramID: telegramID, PollID: pollID, CandidateID: candidateID}
}

func TestCastVoteSuccess(t *testing.T) {
	f := setupFixture(t)
	publisher := &recordingPublisher{}
	svc := newVoteService(f, testNow, WithEventPublisher(publisher))

	req := voteRequest(f.user.ExternalID, f.poll.ID, f.candidateA.ID)
	req.IPAddress = "10.0.0.1"
	result, err := svc.CastVote(context.Background(), req)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.NotNil(t, result.Vote)
	assert.Equal(t, f.poll.ID, result.Vote.PollID)
	assert.Equal(t, f.candidateA.ID, result.Vote.CandidateID)
	assert.True(t, result.Vote.VotedAt.Equal(testNow))

	var stored models.Vote
	require.NoError(t, f.db.First(&stored, result.Vote.ID).Error)
	require.NotNil(t, stored.IPAddress)
	assert.Equal(t, "10.0.0.1", *stored.IPAddress)

	var user models.User
	require.NoError(t, f.db.First(&user, f.user.ID).Error)
	assert.True(t, user.HasVoted)

	require.Len(t, publisher.events, 1)
	assert.Equal(t, result.Vote.ID, publisher.events[0].VoteID)
	assert.NotEmpty(t, publisher.events[0].EventID)
}

func TestCastVoteRejections(t *testing.T) {
	f := setupFixture(t)

	inactive := models.Poll{Title: "Off", IsActive: false}
	require.NoError(t, f.db.Create(&inactive).Error)
	retired := models.Candidate{PollID: f.poll.ID, FullName: "Retired", IsActive: false}
	require.NoError(t, f.db.Create(&retired).Error)

	tests := []struct {
		name   string
		req    model.CastVoteRequest
		now    time.Time
		reason model.RejectReason
	}{
		{"unknown user", voteRequest(999, f.poll.ID, f.candidateA.ID), testNow, model.ReasonUserNotFound},
		{"unknown poll", voteRequest(f.user.ExternalID, 9999, f.candidateA.ID), testNow, model.ReasonPollNotFound},
		{"inactive poll", voteRequest(f.user.ExternalID, inactive.ID, f.candidateA.ID), testNow, model.ReasonPollNotFound},
		{"before start", voteRequest(f.user.ExternalID, f.poll.ID, f.candidateA.ID), testNow.Add(-48 * time.Hour), model.ReasonPollClosed},
		{"after end", voteRequest(f.user.ExternalID, f.poll.ID, f.candidateA.ID), testNow.Add(48 * time.Hour), model.ReasonPollClosed},
		{"unknown candidate", voteRequest(f.user.ExternalID, f.poll.ID, 9999), testNow, model.ReasonCandidateNotFound},
		{"inactive candidate", voteRequest(f.user.ExternalID, f.poll.ID, retired.ID), testNow, model.ReasonCandidateNotFound},
		{"candidate of other poll", voteRequest(f.user.ExternalID, f.poll.ID, f.foreign.ID), testNow, model.ReasonCandidateMismatch},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := newVoteService(f, tc.now)
			result, err := svc.CastVote(context.Background(), tc.req)
			require.NoError(t, err)
			assert.False(t, result.Success)
			assert.Equal(t, tc.reason, result.Reason)
			assert.Equal(t, tc.reason.Message(), result.Message)
		})
	}

	var count int64
	require.NoError(t, f.db.Model(&models.Vote{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCastVoteCheckOrder(t *testing.T) {
	f := setupFixture(t)
	svc := newVoteService(f, testNow.Add(48*time.Hour))

	// Closed poll and foreign candidate: the poll check comes first
	result, err := svc.CastVote(context.Background(), voteRequest(f.user.ExternalID, f.poll.ID, f.foreign.ID))
	require.NoError(t, err)
	assert.Equal(t, model.ReasonPollClosed, result.Reason)

	// Unknown user and unknown poll: the user check comes first
	result, err = svc.CastVote(context.Background(), voteRequest(999, 9999, 9999))
	require.NoError(t, err)
	assert.Equal(t, model.ReasonUserNotFound, result.Reason)
}

func TestCastVoteSecondAttemptRejected(t *testing.T) {
	f := setupFixture(t)
	svc := newVoteService(f, testNow)
	ctx := context.Background()

	first, err := svc.CastVote(ctx, voteRequest(f.user.ExternalID, f.poll.ID, f.candidateA.ID))
	require.NoError(t, err)
	require.True(t, first.Success)

	// Changing the candidate does not help
	second, err := svc.CastVote(ctx, voteRequest(f.user.ExternalID, f.poll.ID, f.candidateB.ID))
	require.NoError(t, err)
	assert.False(t, second.Success)
	assert.Equal(t, model.ReasonAlreadyVoted, second.Reason)

	// Already voted is reported before candidate problems
	third, err := svc.CastVote(ctx, voteRequest(f.user.ExternalID, f.poll.ID, f.foreign.ID))
	require.NoError(t, err)
	assert.Equal(t, model.ReasonAlreadyVoted, third.Reason)

	// Voting in another poll is still allowed
	other, err := svc.CastVote(ctx, voteRequest(f.user.ExternalID, f.otherPoll.ID, f.foreign.ID))
	require.NoError(t, err)
	assert.True(t, other.Success)
}

func TestCastVoteConcurrentSameUser(t *testing.T) {
	f := setupFixture(t)
	svc := newVoteService(f, testNow)

	const attempts = 25
	var wg sync.WaitGroup
	var succeeded, alreadyVoted, failed atomic.Int32

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			candidate := f.candidateA.ID
			if i%2 == 1 {
				candidate = f.candidateB.ID
			}
			result, err := svc.CastVote(context.Background(), voteRequest(f.user.ExternalID, f.poll.ID, candidate))
			switch {
			case err != nil:
				failed.Add(1)
			case result.Success:
				succeeded.Add(1)
			case result.Reason == model.ReasonAlreadyVoted:
				alreadyVoted.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, int32(attempts-1), alreadyVoted.Load())
	assert.Zero(t, failed.Load())

	var count int64
	require.NoError(t, f.db.Model(&models.Vote{}).Where("user_id = ? AND poll_id = ?", f.user.ID, f.poll.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCastVoteConcurrentDistinctUsers(t *testing.T) {
	f := setupFixture(t)
	svc := newVoteService(f, testNow)

	const voters = 10
	users := make([]models.User, voters)
	for i := range users {
		users[i] = f.addUser(t, int64(5000+i))
	}

	var wg sync.WaitGroup
	var succeeded atomic.Int32
	for _, u := range users {
		wg.Add(1)
		go func(externalID int64) {
			defer wg.Done()
			result, err := svc.CastVote(context.Background(), voteRequest(externalID, f.poll.ID, f.candidateA.ID))
			if err == nil && result.Success {
				succeeded.Add(1)
			}
		}(u.ExternalID)
	}
	wg.Wait()

	assert.Equal(t, int32(voters), succeeded.Load())
}

func TestCastVoteLocker(t *testing.T) {
	f := setupFixture(t)
	locker := &countingLocker{}
	svc := newVoteService(f, testNow, WithVoteLocker(locker))

	result, err := svc.CastVote(context.Background(), voteRequest(f.user.ExternalID, f.poll.ID, f.candidateA.ID))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int32(1), locker.locks.Load())
	assert.Equal(t, int32(1), locker.unlocks.Load())
}

func TestCastVoteProceedsWithoutLock(t *testing.T) {
	f := setupFixture(t)
	svc := newVoteService(f, testNow, WithVoteLocker(&countingLocker{err: errors.New("redis down")}))

	result, err := svc.CastVote(context.Background(), voteRequest(f.user.ExternalID, f.poll.ID, f.candidateA.ID))
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestCastVotePublishFailureKeepsVote(t *testing.T) {
	f := setupFixture(t)
	svc := newVoteService(f, testNow, WithEventPublisher(&recordingPublisher{err: errors.New("broker down")}))

	result, err := svc.CastVote(context.Background(), voteRequest(f.user.ExternalID, f.poll.ID, f.candidateA.ID))
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestCastVoteUnavailable(t *testing.T) {
	svc := NewVoteService(failingStore{}, fixedClock(testNow), logging.Discard())

	result, err := svc.CastVote(context.Background(), voteRequest(1, 1, 1))
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrUnavailable)
}

type blockingPublisher struct {
	err chan error
}

func (p *blockingPublisher) PublishVoteCast(ctx context.Context, _ model.VoteCastEvent) error {
	<-ctx.Done()
	p.err <- ctx.Err()
	return ctx.Err()
}

func TestCastVoteSlowPublisherBounded(t *testing.T) {
	f := setupFixture(t)
	publisher := &blockingPublisher{err: make(chan error, 1)}
	svc := newVoteService(f, testNow, WithEventPublisher(publisher), WithPublishTimeout(50*time.Millisecond))

	started := time.Now()
	result, err := svc.CastVote(context.Background(), voteRequest(f.user.ExternalID, f.poll.ID, f.candidateA.ID))
	elapsed := time.Since(started)

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Less(t, elapsed, 2*time.Second)
	assert.ErrorIs(t, <-publisher.err, context.DeadlineExceeded)

	var count int64
	require.NoError(t, f.db.Model(&models.Vote{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestPublishTimeoutDefault(t *testing.T) {
	f := setupFixture(t)
	assert.Equal(t, DefaultPublishTimeout, newVoteService(f, testNow).publishTimeout)
	assert.Equal(t, DefaultPublishTimeout, newVoteService(f, testNow, WithPublishTimeout(0)).publishTimeout)
}
