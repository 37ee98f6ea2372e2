package models

import "time"

// Notification types emitted by the relationship engine and messaging gateway
const (
	NotificationFollowRequest  = "follow-request"
	NotificationFollowAccepted = "follow-accepted"
	NotificationMessage        = "message"
)

// Notification represents a user notification (PostgreSQL). Rows are owned
// exclusively by the recipient; every read/mutation is scoped to RecipientID.
type Notification struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Type        string    `json:"type" gorm:"size:30;index"` // follow-request, follow-accepted, message
	ActorID     uint      `json:"actor_id" gorm:"index"`
	RecipientID uint      `json:"recipient_id" gorm:"index"`
	Message     string    `json:"message"`
	Data        string    `json:"data,omitempty" gorm:"type:text"` // JSON payload: request id, conversation id, etc.
	IsRead      bool      `json:"is_read" gorm:"default:false;index"`
	CreatedAt   time.Time `json:"created_at" gorm:"index"`
}

// MarkNotificationsReadRequest defines the request body for marking
// notifications read, either a set of ids or everything at once
type MarkNotificationsReadRequest struct {
	IDs []uint `json:"ids,omitempty"`
	All bool   `json:"all,omitempty"`
}

// DeleteNotificationsRequest defines the request body for deleting notifications
type DeleteNotificationsRequest struct {
	IDs []uint `json:"ids" validate:"required,min=1"`
}
