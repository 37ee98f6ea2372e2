package models

import "time"

// RelationshipView is the four-state relationship a viewer has with another
// user, derived from follow edges and pending requests; it is never persisted.
type RelationshipView string

const (
	RelationshipNone         RelationshipView = "none"
	RelationshipPending      RelationshipView = "pending"       // viewer has an outgoing pending request
	RelationshipRequestedYou RelationshipView = "requested-you" // the other user has a pending request to the viewer
	RelationshipFollowing    RelationshipView = "following"
)

// RelationshipStatus pairs the view with the pending request id when the view
// is requested-you, so clients can accept/decline directly.
type RelationshipStatus struct {
	View      RelationshipView `json:"view"`
	RequestID uint             `json:"request_id,omitempty"`
}

// Follower entry tags for ListRelationships.
const (
	FollowerTagFollowing       = "following"
	FollowerTagNeedsFollowBack = "needs-follow-back"
)

// FollowerEntry is a user who follows the viewer, tagged with whether the
// viewer follows them back.
type FollowerEntry struct {
	User UserCompact `json:"user"`
	Tag  string      `json:"tag"`
}

// RequestEntry is a pending follow request with the counterparty attached.
type RequestEntry struct {
	RequestID uint        `json:"request_id"`
	User      UserCompact `json:"user"`
	CreatedAt time.Time   `json:"created_at"`
}

// RelationshipList is the full relationship picture for one viewer.
type RelationshipList struct {
	Followers []FollowerEntry `json:"followers"`
	Incoming  []RequestEntry  `json:"incoming_requests"`
	Outgoing  []RequestEntry  `json:"outgoing_requests"`
}

// UserWithRelationship decorates a search/profile result with the viewer's
// relationship to it.
type UserWithRelationship struct {
	UserCompact
	Relationship RelationshipStatus `json:"relationship"`
}
