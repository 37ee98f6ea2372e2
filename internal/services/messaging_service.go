package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/knotapp/knot/internal/models"
	"github.com/knotapp/knot/internal/realtime"
	"github.com/knotapp/knot/internal/repositories"
)

// MessagingService gates conversations behind mutual follows and appends
// messages to the conversation store
type MessagingService struct {
	conversations repositories.ConversationRepository
	follows       repositories.FollowRepository
	users         repositories.UserRepository
	notifications repositories.NotificationRepository
	hub           *realtime.Hub
	logger        *zap.Logger
}

// NewMessagingService creates a new MessagingService
func NewMessagingService(
	conversations repositories.ConversationRepository,
	follows repositories.FollowRepository,
	users repositories.UserRepository,
	notifications repositories.NotificationRepository,
	hub *realtime.Hub,
	logger *zap.Logger,
) *MessagingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessagingService{
		conversations: conversations,
		follows:       follows,
		users:         users,
		notifications: notifications,
		hub:           hub,
		logger:        logger,
	}
}

// OpenConversation returns the conversation between the actor and the peer,
// creating it if needed. Both users must follow each other. Concurrent first
// opens from either side converge on the same conversation via the canonical
// pair id.
func (s *MessagingService) OpenConversation(ctx context.Context, actorID, peerID uint) (*models.ConversationView, error) {
	if actorID == peerID {
		return nil, ErrInvalidTarget
	}
	peer, err := s.users.GetUserByID(peerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	mutual, err := s.mutualFollow(actorID, peerID)
	if err != nil {
		return nil, err
	}
	if !mutual {
		return nil, ErrForbidden
	}

	conv, err := s.conversations.GetOrCreate(ctx, models.ConversationIDFor(actorID, peerID), []uint{actorID, peerID})
	if err != nil {
		return nil, err
	}
	view := conv.ViewFor(actorID, peer.ToCompact())
	return &view, nil
}

// SendMessage appends a message to a conversation resolved either by id or by
// peer. The mutual-follow invariant is re-validated at send time: a
// unilateral unfollow after conversation creation blocks further sends while
// leaving the conversation and its history intact.
func (s *MessagingService) SendMessage(ctx context.Context, actorID uint, req models.SendMessageRequest) (*models.ConversationView, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, ErrEmptyContent
	}

	var peerID uint
	switch {
	case req.ConversationID != "":
		conv, err := s.conversations.GetByID(ctx, req.ConversationID)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		if !conv.HasParticipant(actorID) {
			return nil, ErrNotFound
		}
		peerID = conv.PeerOf(actorID)
	case req.PeerID != 0:
		if req.PeerID == actorID {
			return nil, ErrInvalidTarget
		}
		peerID = req.PeerID
	default:
		return nil, ErrNotFound
	}

	mutual, err := s.mutualFollow(actorID, peerID)
	if err != nil {
		return nil, err
	}
	if !mutual {
		return nil, ErrForbidden
	}

	convID := models.ConversationIDFor(actorID, peerID)
	if _, err := s.conversations.GetOrCreate(ctx, convID, []uint{actorID, peerID}); err != nil {
		return nil, err
	}

	msg := models.Message{
		ID:        uuid.NewString(),
		SenderID:  actorID,
		Content:   content,
		CreatedAt: time.Now(),
	}
	conv, err := s.conversations.AppendMessage(ctx, convID, msg)
	if err != nil {
		return nil, err
	}

	s.pushConversation(conv)
	s.notifyMessage(actorID, peerID, conv.ID)

	peer, err := s.users.GetUserByID(peerID)
	if err != nil {
		return nil, err
	}
	view := conv.ViewFor(actorID, peer.ToCompact())
	return &view, nil
}

// ListConversations returns the viewer's conversations, serialized relative
// to them and most recently updated first
func (s *MessagingService) ListConversations(ctx context.Context, viewerID uint) ([]models.ConversationView, error) {
	conversations, err := s.conversations.GetByParticipant(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	peerIDs := make([]uint, 0, len(conversations))
	for i := range conversations {
		if id := conversations[i].PeerOf(viewerID); id != 0 {
			peerIDs = append(peerIDs, id)
		}
	}
	peers, err := s.users.GetUsersByIDs(peerIDs)
	if err != nil {
		return nil, err
	}
	peerMap := make(map[uint]models.UserCompact, len(peers))
	for _, u := range peers {
		peerMap[u.ID] = u.ToCompact()
	}

	views := make([]models.ConversationView, 0, len(conversations))
	for i := range conversations {
		peer := peerMap[conversations[i].PeerOf(viewerID)]
		views = append(views, conversations[i].ViewFor(viewerID, peer))
	}
	return views, nil
}

// mutualFollow reports whether both directional edges exist right now
func (s *MessagingService) mutualFollow(a, b uint) (bool, error) {
	forward, err := s.follows.IsFollowing(a, b)
	if err != nil {
		return false, err
	}
	if !forward {
		return false, nil
	}
	return s.follows.IsFollowing(b, a)
}

// pushConversation fans the updated conversation out to both participants,
// each serialized relative to the recipient so "mine" is computed correctly
// on both ends
func (s *MessagingService) pushConversation(conv *models.Conversation) {
	if s.hub == nil {
		return
	}
	users, err := s.users.GetUsersByIDs(conv.ParticipantIDs)
	if err != nil {
		s.logger.Warn("failed to resolve conversation participants", zap.String("conversation_id", conv.ID), zap.Error(err))
		return
	}
	compact := make(map[uint]models.UserCompact, len(users))
	for _, u := range users {
		compact[u.ID] = u.ToCompact()
	}
	for _, id := range conv.ParticipantIDs {
		s.hub.Publish(id, realtime.EventChatConversation, conv.ViewFor(id, compact[conv.PeerOf(id)]))
	}
}

// notifyMessage stores a durable message notification for the recipient so
// offline users find it on their next poll
func (s *MessagingService) notifyMessage(actorID, recipientID uint, conversationID string) {
	actor, err := s.users.GetUserByID(actorID)
	if err != nil {
		return
	}
	notif := &models.Notification{
		Type:        models.NotificationMessage,
		ActorID:     actorID,
		RecipientID: recipientID,
		Message:     actor.DisplayName + " sent you a message",
	}
	if encoded, err := json.Marshal(map[string]string{"conversation_id": conversationID}); err == nil {
		notif.Data = string(encoded)
	}
	if err := s.notifications.CreateNotification(notif); err != nil {
		s.logger.Error("failed to store message notification", zap.Uint("recipient_id", recipientID), zap.Error(err))
	}
}
