package repositories

import (
	"github.com/knotapp/knot/internal/models"
	"gorm.io/gorm"
)

// NotificationRepository defines the interface for notification operations.
// Every read and mutation is scoped to the recipient, so one user can never
// touch another user's notifications.
type NotificationRepository interface {
	CreateNotification(notification *models.Notification) error
	GetByRecipientID(recipientID uint, page, limit int) ([]models.Notification, int64, error)
	GetUnreadCount(recipientID uint) (int64, error)
	MarkRead(recipientID uint, ids []uint) error
	MarkAllRead(recipientID uint) error
	Delete(recipientID uint, ids []uint) error
}

// PostgresNotificationRepository implements NotificationRepository for PostgreSQL
type PostgresNotificationRepository struct {
	db *gorm.DB
}

// NewPostgresNotificationRepository creates a new PostgresNotificationRepository
func NewPostgresNotificationRepository(db *gorm.DB) *PostgresNotificationRepository {
	return &PostgresNotificationRepository{db: db}
}

// CreateNotification creates a new notification
func (r *PostgresNotificationRepository) CreateNotification(notification *models.Notification) error {
	return r.db.Create(notification).Error
}

// GetByRecipientID returns paginated notifications for a recipient, newest first
func (r *PostgresNotificationRepository) GetByRecipientID(recipientID uint, page, limit int) ([]models.Notification, int64, error) {
	var notifications []models.Notification
	var total int64

	if err := r.db.Model(&models.Notification{}).Where("recipient_id = ?", recipientID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	err := r.db.Where("recipient_id = ?", recipientID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&notifications).Error
	if err != nil {
		return nil, 0, err
	}
	return notifications, total, nil
}

// GetUnreadCount returns the number of unread notifications for a recipient
func (r *PostgresNotificationRepository) GetUnreadCount(recipientID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Notification{}).Where("recipient_id = ? AND is_read = ?", recipientID, false).Count(&count).Error
	return count, err
}

// MarkRead marks the given notifications as read, ignoring ids the recipient
// does not own
func (r *PostgresNotificationRepository) MarkRead(recipientID uint, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.Model(&models.Notification{}).
		Where("recipient_id = ? AND id IN ?", recipientID, ids).
		Update("is_read", true).Error
}

// MarkAllRead marks all of a recipient's notifications as read
func (r *PostgresNotificationRepository) MarkAllRead(recipientID uint) error {
	return r.db.Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Update("is_read", true).Error
}

// Delete removes the given notifications, ignoring ids the recipient does not own
func (r *PostgresNotificationRepository) Delete(recipientID uint, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.Where("recipient_id = ? AND id IN ?", recipientID, ids).Delete(&models.Notification{}).Error
}
