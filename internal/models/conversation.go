package models

import (
	"fmt"
	"time"
)

// Message is a single chat message embedded in a conversation document (MongoDB)
type Message struct {
	ID        string    `bson:"id" json:"id"`
	SenderID  uint      `bson:"sender_id" json:"sender_id"`
	Content   string    `bson:"content" json:"content"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// Conversation is a direct-message thread between exactly two users (MongoDB).
// Its _id is derived from the participant pair, so both participants resolve
// to the same document no matter who opens it first. The messages array is
// append-only.
type Conversation struct {
	ID             string    `bson:"_id" json:"id"`
	ParticipantIDs []uint    `bson:"participant_ids" json:"participant_ids"`
	Messages       []Message `bson:"messages" json:"messages"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at" json:"updated_at"`
}

// ConversationIDFor returns the canonical conversation id for a participant
// pair. The pair is sorted first, so the id is the same in both directions.
func ConversationIDFor(a, b uint) string {
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("dm:%d:%d", a, b)
}

// HasParticipant reports whether the user is one of the two participants
func (c *Conversation) HasParticipant(userID uint) bool {
	for _, id := range c.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// PeerOf returns the other participant's id. Returns 0 when the user is not a
// participant.
func (c *Conversation) PeerOf(userID uint) uint {
	if !c.HasParticipant(userID) {
		return 0
	}
	for _, id := range c.ParticipantIDs {
		if id != userID {
			return id
		}
	}
	return 0
}

// MessageView is a message serialized relative to one viewer
type MessageView struct {
	Message
	Mine bool `json:"mine"`
}

// ConversationView is a conversation serialized relative to one viewer: which
// messages are "mine" and who the peer is both depend on who is looking.
type ConversationView struct {
	ID        string        `json:"id"`
	Peer      UserCompact   `json:"peer"`
	Messages  []MessageView `json:"messages"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// ViewFor serializes the conversation for the given viewer. The peer's compact
// info is filled in by the caller.
func (c *Conversation) ViewFor(viewerID uint, peer UserCompact) ConversationView {
	view := ConversationView{
		ID:        c.ID,
		Peer:      peer,
		Messages:  make([]MessageView, len(c.Messages)),
		UpdatedAt: c.UpdatedAt,
	}
	for i, m := range c.Messages {
		view.Messages[i] = MessageView{Message: m, Mine: m.SenderID == viewerID}
	}
	return view
}

// OpenConversationRequest defines the request body for opening a conversation
type OpenConversationRequest struct {
	PeerID uint `json:"peer_id" validate:"required"`
}

// SendMessageRequest defines the request body for sending a message. Either
// the conversation id or the peer id resolves the target conversation.
type SendMessageRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	PeerID         uint   `json:"peer_id,omitempty"`
	Content        string `json:"content"`
}
