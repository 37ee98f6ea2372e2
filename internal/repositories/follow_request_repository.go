package repositories

import (
	"time"

	"github.com/knotapp/knot/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FollowRequestRepository defines the interface for follow request data
// operations. Uniqueness of the ordered (requester, recipient) pair and the
// one-way status transitions are enforced here, at the store level, not in
// application code.
type FollowRequestRepository interface {
	Upsert(requesterID, recipientID uint) (*models.FollowRequest, error)
	GetByID(id uint) (*models.FollowRequest, error)
	GetPendingBetween(requesterID, recipientID uint) (*models.FollowRequest, error)
	GetOutgoingPending(requesterID uint) ([]models.FollowRequest, error)
	GetIncomingPending(recipientID uint) ([]models.FollowRequest, error)
	MarkAccepted(id, recipientID uint) error
	MarkDeclined(id, recipientID uint) error
}

// PostgresFollowRequestRepository implements FollowRequestRepository for PostgreSQL
type PostgresFollowRequestRepository struct {
	db *gorm.DB
}

// NewPostgresFollowRequestRepository creates a new PostgresFollowRequestRepository
func NewPostgresFollowRequestRepository(db *gorm.DB) *PostgresFollowRequestRepository {
	return &PostgresFollowRequestRepository{db: db}
}

// Upsert creates a pending request for the ordered pair, or resets the
// existing row to pending. The composite unique index on
// (requester_id, recipient_id) turns a concurrent double-insert into a single
// row; a repeated request overwrites rather than duplicates.
func (r *PostgresFollowRequestRepository) Upsert(requesterID, recipientID uint) (*models.FollowRequest, error) {
	req := &models.FollowRequest{
		RequesterID: requesterID,
		RecipientID: recipientID,
		Status:      models.FollowRequestPending,
	}
	err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "requester_id"}, {Name: "recipient_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"status":     models.FollowRequestPending,
			"created_at": time.Now(),
		}),
	}).Create(req).Error
	if err != nil {
		return nil, err
	}
	// Re-read so the caller gets the surviving row's id on conflict
	return r.GetPendingBetween(requesterID, recipientID)
}

// GetByID retrieves a follow request by ID
func (r *PostgresFollowRequestRepository) GetByID(id uint) (*models.FollowRequest, error) {
	var req models.FollowRequest
	if err := r.db.First(&req, id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

// GetPendingBetween retrieves the pending request for an ordered pair, if any
func (r *PostgresFollowRequestRepository) GetPendingBetween(requesterID, recipientID uint) (*models.FollowRequest, error) {
	var req models.FollowRequest
	err := r.db.Where("requester_id = ? AND recipient_id = ? AND status = ?",
		requesterID, recipientID, models.FollowRequestPending).First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// GetOutgoingPending retrieves all pending requests sent by a user
func (r *PostgresFollowRequestRepository) GetOutgoingPending(requesterID uint) ([]models.FollowRequest, error) {
	var requests []models.FollowRequest
	if err := r.db.Where("requester_id = ? AND status = ?", requesterID, models.FollowRequestPending).Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}

// GetIncomingPending retrieves all pending requests received by a user
func (r *PostgresFollowRequestRepository) GetIncomingPending(recipientID uint) ([]models.FollowRequest, error) {
	var requests []models.FollowRequest
	if err := r.db.Where("recipient_id = ? AND status = ?", recipientID, models.FollowRequestPending).Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}

// MarkAccepted transitions a request to accepted. The WHERE clause pins the
// recipient and the pending status, so only the addressee can act and two
// concurrent accepts resolve to a single winner; the loser sees
// gorm.ErrRecordNotFound.
func (r *PostgresFollowRequestRepository) MarkAccepted(id, recipientID uint) error {
	return r.transition(id, recipientID, models.FollowRequestAccepted)
}

// MarkDeclined transitions a request to declined, with the same guards as
// MarkAccepted.
func (r *PostgresFollowRequestRepository) MarkDeclined(id, recipientID uint) error {
	return r.transition(id, recipientID, models.FollowRequestDeclined)
}

func (r *PostgresFollowRequestRepository) transition(id, recipientID uint, status string) error {
	res := r.db.Model(&models.FollowRequest{}).
		Where("id = ? AND recipient_id = ? AND status = ?", id, recipientID, models.FollowRequestPending).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
