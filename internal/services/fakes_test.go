package services

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"

	"github.com/knotapp/knot/internal/models"
)

// In-memory repository fakes. They enforce the same uniqueness and
// conditional-transition rules the Postgres/Mongo implementations get from
// their indexes and guarded writes, so service-level race behavior can be
// exercised without a database.

type fakeFollowRepo struct {
	mu    sync.Mutex
	edges map[[2]uint]bool
}

func newFakeFollowRepo() *fakeFollowRepo {
	return &fakeFollowRepo{edges: make(map[[2]uint]bool)}
}

func (f *fakeFollowRepo) CreateFollow(follow *models.Follow) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := [2]uint{follow.FollowerID, follow.FollowingID}
	if f.edges[key] {
		return false, nil
	}
	f.edges[key] = true
	return true, nil
}

func (f *fakeFollowRepo) DeleteFollow(followerID, followingID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := [2]uint{followerID, followingID}
	if !f.edges[key] {
		return gorm.ErrRecordNotFound
	}
	delete(f.edges, key)
	return nil
}

func (f *fakeFollowRepo) IsFollowing(followerID, followingID uint) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.edges[[2]uint{followerID, followingID}], nil
}

func (f *fakeFollowRepo) GetFollowerIDs(userID uint) ([]uint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []uint
	for key := range f.edges {
		if key[1] == userID {
			ids = append(ids, key[0])
		}
	}
	return ids, nil
}

func (f *fakeFollowRepo) GetFollowingIDs(userID uint) ([]uint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []uint
	for key := range f.edges {
		if key[0] == userID {
			ids = append(ids, key[1])
		}
	}
	return ids, nil
}

func (f *fakeFollowRepo) GetFollowersCount(userID uint) (int64, error) {
	ids, _ := f.GetFollowerIDs(userID)
	return int64(len(ids)), nil
}

func (f *fakeFollowRepo) GetFollowingCount(userID uint) (int64, error) {
	ids, _ := f.GetFollowingIDs(userID)
	return int64(len(ids)), nil
}

type fakeFollowRequestRepo struct {
	mu       sync.Mutex
	nextID   uint
	requests map[uint]*models.FollowRequest
}

func newFakeFollowRequestRepo() *fakeFollowRequestRepo {
	return &fakeFollowRequestRepo{nextID: 1, requests: make(map[uint]*models.FollowRequest)}
}

func (f *fakeFollowRequestRepo) Upsert(requesterID, recipientID uint) (*models.FollowRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, req := range f.requests {
		if req.RequesterID == requesterID && req.RecipientID == recipientID {
			req.Status = models.FollowRequestPending
			req.CreatedAt = time.Now()
			clone := *req
			return &clone, nil
		}
	}
	req := &models.FollowRequest{
		ID:          f.nextID,
		RequesterID: requesterID,
		RecipientID: recipientID,
		Status:      models.FollowRequestPending,
		CreatedAt:   time.Now(),
	}
	f.nextID++
	f.requests[req.ID] = req
	clone := *req
	return &clone, nil
}

func (f *fakeFollowRequestRepo) GetByID(id uint) (*models.FollowRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *req
	return &clone, nil
}

func (f *fakeFollowRequestRepo) GetPendingBetween(requesterID, recipientID uint) (*models.FollowRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, req := range f.requests {
		if req.RequesterID == requesterID && req.RecipientID == recipientID && req.Status == models.FollowRequestPending {
			clone := *req
			return &clone, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeFollowRequestRepo) GetOutgoingPending(requesterID uint) ([]models.FollowRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.FollowRequest
	for _, req := range f.requests {
		if req.RequesterID == requesterID && req.Status == models.FollowRequestPending {
			out = append(out, *req)
		}
	}
	return out, nil
}

func (f *fakeFollowRequestRepo) GetIncomingPending(recipientID uint) ([]models.FollowRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.FollowRequest
	for _, req := range f.requests {
		if req.RecipientID == recipientID && req.Status == models.FollowRequestPending {
			out = append(out, *req)
		}
	}
	return out, nil
}

func (f *fakeFollowRequestRepo) MarkAccepted(id, recipientID uint) error {
	return f.transition(id, recipientID, models.FollowRequestAccepted)
}

func (f *fakeFollowRequestRepo) MarkDeclined(id, recipientID uint) error {
	return f.transition(id, recipientID, models.FollowRequestDeclined)
}

func (f *fakeFollowRequestRepo) transition(id, recipientID uint, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok || req.RecipientID != recipientID || req.Status != models.FollowRequestPending {
		return gorm.ErrRecordNotFound
	}
	req.Status = status
	return nil
}

func (f *fakeFollowRequestRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uint]*models.User
}

func newFakeUserRepo(users ...*models.User) *fakeUserRepo {
	repo := &fakeUserRepo{users: make(map[uint]*models.User)}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (f *fakeUserRepo) CreateUser(user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.ID] = user
	return nil
}

func (f *fakeUserRepo) GetUserByID(id uint) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *user
	return &clone, nil
}

func (f *fakeUserRepo) GetUserByEmail(email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Email == email {
			clone := *user
			return &clone, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUserRepo) GetUsersByIDs(ids []uint) ([]models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.User
	for _, id := range ids {
		if user, ok := f.users[id]; ok {
			out = append(out, *user)
		}
	}
	return out, nil
}

func (f *fakeUserRepo) SearchUsers(query string) ([]models.User, error) {
	return nil, nil
}

func (f *fakeUserRepo) IncrementFollowersCount(userID uint) error {
	return f.adjust(userID, func(u *models.User) { u.FollowersCount++ })
}

func (f *fakeUserRepo) DecrementFollowersCount(userID uint) error {
	return f.adjust(userID, func(u *models.User) {
		if u.FollowersCount > 0 {
			u.FollowersCount--
		}
	})
}

func (f *fakeUserRepo) IncrementFollowingCount(userID uint) error {
	return f.adjust(userID, func(u *models.User) { u.FollowingCount++ })
}

func (f *fakeUserRepo) DecrementFollowingCount(userID uint) error {
	return f.adjust(userID, func(u *models.User) {
		if u.FollowingCount > 0 {
			u.FollowingCount--
		}
	})
}

func (f *fakeUserRepo) adjust(userID uint, fn func(*models.User)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user, ok := f.users[userID]; ok {
		fn(user)
	}
	return nil
}

type fakeNotificationRepo struct {
	mu            sync.Mutex
	nextID        uint
	notifications []*models.Notification
}

func newFakeNotificationRepo() *fakeNotificationRepo {
	return &fakeNotificationRepo{nextID: 1}
}

func (f *fakeNotificationRepo) CreateNotification(notification *models.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	notification.ID = f.nextID
	notification.CreatedAt = time.Now()
	f.nextID++
	f.notifications = append(f.notifications, notification)
	return nil
}

func (f *fakeNotificationRepo) GetByRecipientID(recipientID uint, page, limit int) ([]models.Notification, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Notification
	for _, n := range f.notifications {
		if n.RecipientID == recipientID {
			out = append(out, *n)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeNotificationRepo) GetUnreadCount(recipientID uint) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, n := range f.notifications {
		if n.RecipientID == recipientID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (f *fakeNotificationRepo) MarkRead(recipientID uint, ids []uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	idSet := make(map[uint]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}
	for _, n := range f.notifications {
		if n.RecipientID == recipientID && idSet[n.ID] {
			n.IsRead = true
		}
	}
	return nil
}

func (f *fakeNotificationRepo) MarkAllRead(recipientID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.notifications {
		if n.RecipientID == recipientID {
			n.IsRead = true
		}
	}
	return nil
}

func (f *fakeNotificationRepo) Delete(recipientID uint, ids []uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	idSet := make(map[uint]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}
	kept := f.notifications[:0]
	for _, n := range f.notifications {
		if !(n.RecipientID == recipientID && idSet[n.ID]) {
			kept = append(kept, n)
		}
	}
	f.notifications = kept
	return nil
}

func (f *fakeNotificationRepo) byRecipientAndType(recipientID uint, notifType string) []*models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Notification
	for _, n := range f.notifications {
		if n.RecipientID == recipientID && n.Type == notifType {
			out = append(out, n)
		}
	}
	return out
}

type fakeConversationRepo struct {
	mu            sync.Mutex
	conversations map[string]*models.Conversation
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{conversations: make(map[string]*models.Conversation)}
}

func (f *fakeConversationRepo) GetOrCreate(ctx context.Context, id string, participantIDs []uint) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if conv, ok := f.conversations[id]; ok {
		clone := *conv
		clone.Messages = append([]models.Message(nil), conv.Messages...)
		return &clone, nil
	}
	now := time.Now()
	conv := &models.Conversation{
		ID:             id,
		ParticipantIDs: append([]uint(nil), participantIDs...),
		Messages:       []models.Message{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	f.conversations[id] = conv
	clone := *conv
	return &clone, nil
}

func (f *fakeConversationRepo) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.conversations[id]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	clone := *conv
	clone.Messages = append([]models.Message(nil), conv.Messages...)
	return &clone, nil
}

func (f *fakeConversationRepo) AppendMessage(ctx context.Context, id string, msg models.Message) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.conversations[id]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	conv.Messages = append(conv.Messages, msg)
	conv.UpdatedAt = msg.CreatedAt
	clone := *conv
	clone.Messages = append([]models.Message(nil), conv.Messages...)
	return &clone, nil
}

func (f *fakeConversationRepo) GetByParticipant(ctx context.Context, userID uint) ([]models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Conversation
	for _, conv := range f.conversations {
		if conv.HasParticipant(userID) {
			clone := *conv
			clone.Messages = append([]models.Message(nil), conv.Messages...)
			out = append(out, clone)
		}
	}
	return out, nil
}

func (f *fakeConversationRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conversations)
}
