package services

import (
	"encoding/json"
	"errors"
	"sort"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/knotapp/knot/internal/models"
	"github.com/knotapp/knot/internal/realtime"
	"github.com/knotapp/knot/internal/repositories"
)

// FollowStatus is the outcome of a follow attempt
type FollowStatus string

const (
	FollowStatusFollowing FollowStatus = "following" // edge already existed
	FollowStatusAccepted  FollowStatus = "accepted"  // their pending request was auto-accepted
	FollowStatusPending   FollowStatus = "pending"   // a new request is awaiting the target
)

// RelationshipService is the state machine governing follow requests and
// directional follow edges
type RelationshipService struct {
	follows       repositories.FollowRepository
	requests      repositories.FollowRequestRepository
	users         repositories.UserRepository
	notifications repositories.NotificationRepository
	hub           *realtime.Hub
	logger        *zap.Logger
}

// NewRelationshipService creates a new RelationshipService
func NewRelationshipService(
	follows repositories.FollowRepository,
	requests repositories.FollowRequestRepository,
	users repositories.UserRepository,
	notifications repositories.NotificationRepository,
	hub *realtime.Hub,
	logger *zap.Logger,
) *RelationshipService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RelationshipService{
		follows:       follows,
		requests:      requests,
		users:         users,
		notifications: notifications,
		hub:           hub,
		logger:        logger,
	}
}

// RequestFollow asks to follow the target user.
//
//   - Already following: idempotent no-op, returns "following".
//   - The target already has a pending request to the actor: that request is
//     accepted instead (edge target->actor only) and "accepted" is returned.
//   - Otherwise a pending request is upserted for (actor, target) and the
//     target is notified; returns "pending".
func (s *RelationshipService) RequestFollow(actorID, targetID uint) (FollowStatus, error) {
	if actorID == targetID {
		return "", ErrInvalidTarget
	}
	if _, err := s.users.GetUserByID(targetID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}

	following, err := s.follows.IsFollowing(actorID, targetID)
	if err != nil {
		return "", err
	}
	if following {
		return FollowStatusFollowing, nil
	}

	// Reverse-pending shortcut: the target already asked to follow the actor,
	// so trying to follow them counts as accepting. Only the target->actor
	// edge is created.
	if reverse, err := s.requests.GetPendingBetween(targetID, actorID); err == nil {
		if err := s.acceptPending(reverse); err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return "", err
			}
			// Lost a race on the reverse request; fall through to a plain request
		} else {
			return FollowStatusAccepted, nil
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	req, err := s.requests.Upsert(actorID, targetID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// The upsert succeeded but the row was resolved by a concurrent
			// accept or decline before the re-read; the caller should refresh
			return "", ErrConflict
		}
		return "", err
	}

	s.notify(actorID, targetID, models.NotificationFollowRequest,
		"requested to follow you", map[string]interface{}{"request_id": req.ID})
	return FollowStatusPending, nil
}

// FollowBack is the "follow back" action on a follower. It is the same code
// path as RequestFollow: after an accept the original request is no longer
// pending, so the reverse-pending shortcut does not fire and the caller gets
// a new pending request rather than an instant mutual edge.
func (s *RelationshipService) FollowBack(actorID, targetID uint) (FollowStatus, error) {
	return s.RequestFollow(actorID, targetID)
}

// AcceptRequest accepts a pending follow request addressed to the actor. It
// creates the requester->recipient edge only; the recipient does not
// automatically follow the requester back.
func (s *RelationshipService) AcceptRequest(actorID, requestID uint) error {
	req, err := s.requests.GetByID(requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	if req.RecipientID != actorID || req.Status != models.FollowRequestPending {
		return ErrNotFound
	}
	if err := s.acceptPending(req); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// acceptPending performs the shared accept path: conditional status
// transition, edge creation, counters and the notification to the requester.
// The WHERE-guarded transition is the serialization point; only the winner of
// a concurrent accept proceeds past it.
func (s *RelationshipService) acceptPending(req *models.FollowRequest) error {
	if err := s.requests.MarkAccepted(req.ID, req.RecipientID); err != nil {
		return err
	}

	created, err := s.follows.CreateFollow(&models.Follow{
		FollowerID:  req.RequesterID,
		FollowingID: req.RecipientID,
	})
	if err != nil {
		return err
	}
	if created {
		if err := s.users.IncrementFollowingCount(req.RequesterID); err != nil {
			s.logger.Warn("failed to bump following count", zap.Uint("user_id", req.RequesterID), zap.Error(err))
		}
		if err := s.users.IncrementFollowersCount(req.RecipientID); err != nil {
			s.logger.Warn("failed to bump followers count", zap.Uint("user_id", req.RecipientID), zap.Error(err))
		}
	}

	s.notify(req.RecipientID, req.RequesterID, models.NotificationFollowAccepted,
		"accepted your follow request", nil)
	return nil
}

// DeclineRequest declines a pending follow request addressed to the actor.
// No edge, no counters, no notification.
func (s *RelationshipService) DeclineRequest(actorID, requestID uint) error {
	if err := s.requests.MarkDeclined(requestID, actorID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// Unfollow removes the actor's follow edge to the target and adjusts both
// counters. Prior conversations survive; the lost edge freezes them.
func (s *RelationshipService) Unfollow(actorID, targetID uint) error {
	if actorID == targetID {
		return ErrInvalidTarget
	}
	if err := s.follows.DeleteFollow(actorID, targetID); err != nil {
		return ErrNotFound
	}
	if err := s.users.DecrementFollowingCount(actorID); err != nil {
		s.logger.Warn("failed to drop following count", zap.Uint("user_id", actorID), zap.Error(err))
	}
	if err := s.users.DecrementFollowersCount(targetID); err != nil {
		s.logger.Warn("failed to drop followers count", zap.Uint("user_id", targetID), zap.Error(err))
	}
	return nil
}

// ComputeRelationshipView derives the viewer's four-state relationship to
// another user from edge existence and the two possible pending requests.
// Every listing and search path goes through this one function.
func ComputeRelationshipView(following bool, outgoing, incoming *models.FollowRequest) models.RelationshipStatus {
	switch {
	case following:
		return models.RelationshipStatus{View: models.RelationshipFollowing}
	case outgoing != nil && outgoing.Status == models.FollowRequestPending:
		return models.RelationshipStatus{View: models.RelationshipPending}
	case incoming != nil && incoming.Status == models.FollowRequestPending:
		return models.RelationshipStatus{View: models.RelationshipRequestedYou, RequestID: incoming.ID}
	default:
		return models.RelationshipStatus{View: models.RelationshipNone}
	}
}

// FollowCounts returns follower and following counts derived from the edge
// table. The denormalized columns on users are display hints; edge counts are
// the authoritative numbers for profiles.
func (s *RelationshipService) FollowCounts(userID uint) (followers, following int64, err error) {
	followers, err = s.follows.GetFollowersCount(userID)
	if err != nil {
		return 0, 0, err
	}
	following, err = s.follows.GetFollowingCount(userID)
	if err != nil {
		return 0, 0, err
	}
	return followers, following, nil
}

// RelationshipWith computes the viewer's relationship view of another user
func (s *RelationshipService) RelationshipWith(viewerID, otherID uint) (models.RelationshipStatus, error) {
	following, err := s.follows.IsFollowing(viewerID, otherID)
	if err != nil {
		return models.RelationshipStatus{}, err
	}
	outgoing, err := s.requests.GetPendingBetween(viewerID, otherID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.RelationshipStatus{}, err
	}
	incoming, err := s.requests.GetPendingBetween(otherID, viewerID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.RelationshipStatus{}, err
	}
	return ComputeRelationshipView(following, outgoing, incoming), nil
}

// ListRelationships returns the viewer's followers (tagged with whether the
// viewer follows them back), incoming pending requests and outgoing pending
// requests.
func (s *RelationshipService) ListRelationships(viewerID uint) (*models.RelationshipList, error) {
	followerIDs, err := s.follows.GetFollowerIDs(viewerID)
	if err != nil {
		return nil, err
	}
	followingIDs, err := s.follows.GetFollowingIDs(viewerID)
	if err != nil {
		return nil, err
	}
	incoming, err := s.requests.GetIncomingPending(viewerID)
	if err != nil {
		return nil, err
	}
	outgoing, err := s.requests.GetOutgoingPending(viewerID)
	if err != nil {
		return nil, err
	}

	followingSet := make(map[uint]bool, len(followingIDs))
	for _, id := range followingIDs {
		followingSet[id] = true
	}

	// Resolve every referenced user in one batch
	idSet := make(map[uint]struct{})
	for _, id := range followerIDs {
		idSet[id] = struct{}{}
	}
	for _, r := range incoming {
		idSet[r.RequesterID] = struct{}{}
	}
	for _, r := range outgoing {
		idSet[r.RecipientID] = struct{}{}
	}
	ids := make([]uint, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	users, err := s.users.GetUsersByIDs(ids)
	if err != nil {
		return nil, err
	}
	userMap := make(map[uint]models.UserCompact, len(users))
	for _, u := range users {
		userMap[u.ID] = u.ToCompact()
	}

	list := &models.RelationshipList{
		Followers: make([]models.FollowerEntry, 0, len(followerIDs)),
		Incoming:  make([]models.RequestEntry, 0, len(incoming)),
		Outgoing:  make([]models.RequestEntry, 0, len(outgoing)),
	}
	for _, id := range followerIDs {
		tag := models.FollowerTagNeedsFollowBack
		if followingSet[id] {
			tag = models.FollowerTagFollowing
		}
		list.Followers = append(list.Followers, models.FollowerEntry{User: userMap[id], Tag: tag})
	}
	for _, r := range incoming {
		list.Incoming = append(list.Incoming, models.RequestEntry{
			RequestID: r.ID,
			User:      userMap[r.RequesterID],
			CreatedAt: r.CreatedAt,
		})
	}
	for _, r := range outgoing {
		list.Outgoing = append(list.Outgoing, models.RequestEntry{
			RequestID: r.ID,
			User:      userMap[r.RecipientID],
			CreatedAt: r.CreatedAt,
		})
	}
	return list, nil
}

// notify stores a notification for the recipient and pushes it to their live
// channels. Push failures never propagate; the row is the durable record.
func (s *RelationshipService) notify(actorID, recipientID uint, notifType, text string, data map[string]interface{}) {
	actor, err := s.users.GetUserByID(actorID)
	if err != nil {
		s.logger.Warn("notification actor lookup failed", zap.Uint("actor_id", actorID), zap.Error(err))
		return
	}

	notif := &models.Notification{
		Type:        notifType,
		ActorID:     actorID,
		RecipientID: recipientID,
		Message:     actor.DisplayName + " " + text,
	}
	if data != nil {
		if encoded, err := json.Marshal(data); err == nil {
			notif.Data = string(encoded)
		}
	}
	if err := s.notifications.CreateNotification(notif); err != nil {
		s.logger.Error("failed to store notification", zap.Uint("recipient_id", recipientID), zap.Error(err))
		return
	}

	if s.hub != nil {
		s.hub.Publish(recipientID, realtime.EventNotificationNew, map[string]interface{}{
			"notification": notif,
			"actor":        actor.ToCompact(),
		})
	}
}
