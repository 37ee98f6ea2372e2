package models

import "time"

// Follow request statuses. Transitions are one-way: a request leaves "pending"
// exactly once and is never deleted, so the table doubles as an audit trail.
const (
	FollowRequestPending  = "pending"
	FollowRequestAccepted = "accepted"
	FollowRequestDeclined = "declined"
)

// FollowRequest represents a follow request from one user to another.
// At most one row exists per ordered (requester, recipient) pair; a repeated
// request from the same requester overwrites the row instead of duplicating it.
type FollowRequest struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	RequesterID uint      `json:"requester_id" gorm:"index;uniqueIndex:idx_requester_recipient"`
	RecipientID uint      `json:"recipient_id" gorm:"index;uniqueIndex:idx_requester_recipient"`
	Status      string    `json:"status" gorm:"type:varchar(20);default:'pending'"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
