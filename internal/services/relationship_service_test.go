package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/knotapp/knot/internal/models"
)

// resolvedMidFlightRequestRepo simulates a request row that a concurrent
// accept or decline moved out of pending between the upsert and the re-read.
type resolvedMidFlightRequestRepo struct {
	*fakeFollowRequestRepo
}

func (r *resolvedMidFlightRequestRepo) Upsert(requesterID, recipientID uint) (*models.FollowRequest, error) {
	return nil, gorm.ErrRecordNotFound
}

type relationshipFixture struct {
	follows       *fakeFollowRepo
	requests      *fakeFollowRequestRepo
	users         *fakeUserRepo
	notifications *fakeNotificationRepo
	service       *RelationshipService
}

func newRelationshipFixture(t *testing.T) *relationshipFixture {
	t.Helper()
	f := &relationshipFixture{
		follows:  newFakeFollowRepo(),
		requests: newFakeFollowRequestRepo(),
		users: newFakeUserRepo(
			&models.User{ID: 1, DisplayName: "Alice", Handle: "alice"},
			&models.User{ID: 2, DisplayName: "Bob", Handle: "bob"},
			&models.User{ID: 3, DisplayName: "Carol", Handle: "carol"},
		),
		notifications: newFakeNotificationRepo(),
	}
	f.service = NewRelationshipService(f.follows, f.requests, f.users, f.notifications, nil, nil)
	return f
}

func TestRequestFollow(t *testing.T) {
	t.Run("SelfTarget", func(t *testing.T) {
		f := newRelationshipFixture(t)
		_, err := f.service.RequestFollow(1, 1)
		assert.ErrorIs(t, err, ErrInvalidTarget)
	})

	t.Run("UnknownTarget", func(t *testing.T) {
		f := newRelationshipFixture(t)
		_, err := f.service.RequestFollow(1, 99)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("CreatesPendingRequestAndNotifies", func(t *testing.T) {
		f := newRelationshipFixture(t)
		status, err := f.service.RequestFollow(1, 2)
		require.NoError(t, err)
		assert.Equal(t, FollowStatusPending, status)

		req, err := f.requests.GetPendingBetween(1, 2)
		require.NoError(t, err)
		assert.Equal(t, models.FollowRequestPending, req.Status)

		notifs := f.notifications.byRecipientAndType(2, models.NotificationFollowRequest)
		require.Len(t, notifs, 1)
		assert.Equal(t, uint(1), notifs[0].ActorID)
		assert.Contains(t, notifs[0].Data, "request_id")
	})

	t.Run("DuplicateRequestIsIdempotent", func(t *testing.T) {
		f := newRelationshipFixture(t)
		first, err := f.service.RequestFollow(1, 2)
		require.NoError(t, err)
		second, err := f.service.RequestFollow(1, 2)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, 1, f.requests.count(), "duplicate request must not create a second row")
	})

	t.Run("AlreadyFollowing", func(t *testing.T) {
		f := newRelationshipFixture(t)
		_, err := f.follows.CreateFollow(&models.Follow{FollowerID: 1, FollowingID: 2})
		require.NoError(t, err)

		status, err := f.service.RequestFollow(1, 2)
		require.NoError(t, err)
		assert.Equal(t, FollowStatusFollowing, status)
		assert.Equal(t, 0, f.requests.count())
	})

	t.Run("RequestResolvedMidFlightIsConflict", func(t *testing.T) {
		f := newRelationshipFixture(t)
		f.service = NewRelationshipService(
			f.follows, &resolvedMidFlightRequestRepo{f.requests}, f.users, f.notifications, nil, nil)

		_, err := f.service.RequestFollow(1, 2)
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("ReversePendingAutoAccepts", func(t *testing.T) {
		f := newRelationshipFixture(t)
		// Bob already asked to follow Alice
		_, err := f.service.RequestFollow(2, 1)
		require.NoError(t, err)

		// Alice tries to follow Bob: Bob's request is accepted instead
		status, err := f.service.RequestFollow(1, 2)
		require.NoError(t, err)
		assert.Equal(t, FollowStatusAccepted, status)

		// Only the Bob->Alice edge exists
		following, _ := f.follows.IsFollowing(2, 1)
		assert.True(t, following)
		following, _ = f.follows.IsFollowing(1, 2)
		assert.False(t, following, "the shortcut must not create the reverse edge")

		// Bob's request is terminal and Bob was notified
		req, err := f.requests.GetByID(1)
		require.NoError(t, err)
		assert.Equal(t, models.FollowRequestAccepted, req.Status)
		assert.Len(t, f.notifications.byRecipientAndType(2, models.NotificationFollowAccepted), 1)

		// Counters moved for both sides
		bob, _ := f.users.GetUserByID(2)
		alice, _ := f.users.GetUserByID(1)
		assert.Equal(t, 1, bob.FollowingCount)
		assert.Equal(t, 1, alice.FollowersCount)
	})
}

func TestAcceptRequest(t *testing.T) {
	t.Run("CreatesOnlyForwardEdge", func(t *testing.T) {
		f := newRelationshipFixture(t)
		_, err := f.service.RequestFollow(1, 2)
		require.NoError(t, err)
		req, err := f.requests.GetPendingBetween(1, 2)
		require.NoError(t, err)

		require.NoError(t, f.service.AcceptRequest(2, req.ID))

		following, _ := f.follows.IsFollowing(1, 2)
		assert.True(t, following, "requester now follows the accepter")
		following, _ = f.follows.IsFollowing(2, 1)
		assert.False(t, following, "the accepter does not follow back automatically")

		alice, _ := f.users.GetUserByID(1)
		bob, _ := f.users.GetUserByID(2)
		assert.Equal(t, 1, alice.FollowingCount)
		assert.Equal(t, 1, bob.FollowersCount)

		assert.Len(t, f.notifications.byRecipientAndType(1, models.NotificationFollowAccepted), 1)
	})

	t.Run("OnlyRecipientMayAccept", func(t *testing.T) {
		f := newRelationshipFixture(t)
		_, err := f.service.RequestFollow(1, 2)
		require.NoError(t, err)
		req, _ := f.requests.GetPendingBetween(1, 2)

		assert.ErrorIs(t, f.service.AcceptRequest(3, req.ID), ErrNotFound)
	})

	t.Run("UnknownRequest", func(t *testing.T) {
		f := newRelationshipFixture(t)
		assert.ErrorIs(t, f.service.AcceptRequest(2, 42), ErrNotFound)
	})

	t.Run("AcceptIsOneWay", func(t *testing.T) {
		f := newRelationshipFixture(t)
		_, err := f.service.RequestFollow(1, 2)
		require.NoError(t, err)
		req, _ := f.requests.GetPendingBetween(1, 2)

		require.NoError(t, f.service.AcceptRequest(2, req.ID))
		assert.ErrorIs(t, f.service.AcceptRequest(2, req.ID), ErrNotFound)
	})
}

func TestDeclineRequest(t *testing.T) {
	f := newRelationshipFixture(t)
	_, err := f.service.RequestFollow(1, 2)
	require.NoError(t, err)
	req, _ := f.requests.GetPendingBetween(1, 2)

	require.NoError(t, f.service.DeclineRequest(2, req.ID))

	stored, err := f.requests.GetByID(req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FollowRequestDeclined, stored.Status)

	following, _ := f.follows.IsFollowing(1, 2)
	assert.False(t, following)
	assert.Empty(t, f.notifications.byRecipientAndType(1, models.NotificationFollowAccepted))

	// Terminal: declining twice fails
	assert.ErrorIs(t, f.service.DeclineRequest(2, req.ID), ErrNotFound)
}

func TestFollowBackIssuesNewPendingRequest(t *testing.T) {
	f := newRelationshipFixture(t)

	// Alice follows Bob via request + accept
	_, err := f.service.RequestFollow(1, 2)
	require.NoError(t, err)
	req, _ := f.requests.GetPendingBetween(1, 2)
	require.NoError(t, f.service.AcceptRequest(2, req.ID))

	// Bob hits "follow back". The original request is accepted, not pending,
	// so the shortcut does not fire: Bob gets a pending request, not an edge.
	status, err := f.service.FollowBack(2, 1)
	require.NoError(t, err)
	assert.Equal(t, FollowStatusPending, status)

	following, _ := f.follows.IsFollowing(2, 1)
	assert.False(t, following)
	_, err = f.requests.GetPendingBetween(2, 1)
	assert.NoError(t, err)
}

func TestUnfollow(t *testing.T) {
	f := newRelationshipFixture(t)
	_, err := f.service.RequestFollow(1, 2)
	require.NoError(t, err)
	req, _ := f.requests.GetPendingBetween(1, 2)
	require.NoError(t, f.service.AcceptRequest(2, req.ID))

	require.NoError(t, f.service.Unfollow(1, 2))

	following, _ := f.follows.IsFollowing(1, 2)
	assert.False(t, following)
	alice, _ := f.users.GetUserByID(1)
	bob, _ := f.users.GetUserByID(2)
	assert.Equal(t, 0, alice.FollowingCount)
	assert.Equal(t, 0, bob.FollowersCount)

	assert.ErrorIs(t, f.service.Unfollow(1, 2), ErrNotFound)
}

func TestFollowCounts(t *testing.T) {
	f := newRelationshipFixture(t)

	// Alice follows Bob, Carol follows Bob
	for _, follower := range []uint{1, 3} {
		_, err := f.service.RequestFollow(follower, 2)
		require.NoError(t, err)
		req, err := f.requests.GetPendingBetween(follower, 2)
		require.NoError(t, err)
		require.NoError(t, f.service.AcceptRequest(2, req.ID))
	}

	followers, following, err := f.service.FollowCounts(2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), followers)
	assert.Equal(t, int64(0), following)

	followers, following, err = f.service.FollowCounts(1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), followers)
	assert.Equal(t, int64(1), following)

	// Counts track edge removal
	require.NoError(t, f.service.Unfollow(1, 2))
	followers, _, err = f.service.FollowCounts(2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), followers)
}

func TestComputeRelationshipView(t *testing.T) {
	pending := &models.FollowRequest{ID: 7, Status: models.FollowRequestPending}
	declined := &models.FollowRequest{ID: 8, Status: models.FollowRequestDeclined}

	tests := []struct {
		name      string
		following bool
		outgoing  *models.FollowRequest
		incoming  *models.FollowRequest
		want      models.RelationshipStatus
	}{
		{"None", false, nil, nil, models.RelationshipStatus{View: models.RelationshipNone}},
		{"Following", true, nil, nil, models.RelationshipStatus{View: models.RelationshipFollowing}},
		{"FollowingWinsOverIncoming", true, nil, pending, models.RelationshipStatus{View: models.RelationshipFollowing}},
		{"OutgoingPending", false, pending, nil, models.RelationshipStatus{View: models.RelationshipPending}},
		{"IncomingPending", false, nil, pending, models.RelationshipStatus{View: models.RelationshipRequestedYou, RequestID: 7}},
		{"TerminalRequestsIgnored", false, declined, declined, models.RelationshipStatus{View: models.RelationshipNone}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeRelationshipView(tt.following, tt.outgoing, tt.incoming)
			assert.Equal(t, tt.want, got)
		})
	}
}

// Covers the request -> accept -> follow-back-needed flow end to end.
func TestRequestAcceptFlow(t *testing.T) {
	f := newRelationshipFixture(t)

	// Alice requests to follow Bob
	status, err := f.service.RequestFollow(1, 2)
	require.NoError(t, err)
	require.Equal(t, FollowStatusPending, status)

	// Bob sees exactly one incoming request, from Alice
	list, err := f.service.ListRelationships(2)
	require.NoError(t, err)
	require.Len(t, list.Incoming, 1)
	assert.Equal(t, uint(1), list.Incoming[0].User.ID)

	// Alice sees it as outgoing
	list, err = f.service.ListRelationships(1)
	require.NoError(t, err)
	require.Len(t, list.Outgoing, 1)
	assert.Equal(t, uint(2), list.Outgoing[0].User.ID)

	// Bob accepts
	require.NoError(t, f.service.AcceptRequest(2, list.Outgoing[0].RequestID))

	// Alice's view of Bob is now "following"
	rel, err := f.service.RelationshipWith(1, 2)
	require.NoError(t, err)
	assert.Equal(t, models.RelationshipFollowing, rel.View)

	// Bob's follower list shows Alice, needing a follow back
	list, err = f.service.ListRelationships(2)
	require.NoError(t, err)
	require.Len(t, list.Followers, 1)
	assert.Equal(t, uint(1), list.Followers[0].User.ID)
	assert.Equal(t, models.FollowerTagNeedsFollowBack, list.Followers[0].Tag)
	assert.Empty(t, list.Incoming)

	// Once Bob also follows Alice, the tag flips
	_, err = f.service.FollowBack(2, 1)
	require.NoError(t, err)
	reqBack, err := f.requests.GetPendingBetween(2, 1)
	require.NoError(t, err)
	require.NoError(t, f.service.AcceptRequest(1, reqBack.ID))

	list, err = f.service.ListRelationships(2)
	require.NoError(t, err)
	require.Len(t, list.Followers, 1)
	assert.Equal(t, models.FollowerTagFollowing, list.Followers[0].Tag)
}
