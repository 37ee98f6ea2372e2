package repositories

import (
	"context"
	"time"

	"github.com/knotapp/knot/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConversationRepository defines the interface for conversation data operations
type ConversationRepository interface {
	GetOrCreate(ctx context.Context, id string, participantIDs []uint) (*models.Conversation, error)
	GetByID(ctx context.Context, id string) (*models.Conversation, error)
	AppendMessage(ctx context.Context, id string, msg models.Message) (*models.Conversation, error)
	GetByParticipant(ctx context.Context, userID uint) ([]models.Conversation, error)
}

// MongoConversationRepository implements ConversationRepository for MongoDB
type MongoConversationRepository struct {
	collection *mongo.Collection
}

// NewMongoConversationRepository creates a new MongoConversationRepository
func NewMongoConversationRepository(db *mongo.Database) *MongoConversationRepository {
	return &MongoConversationRepository{collection: db.Collection("conversations")}
}

// GetOrCreate returns the conversation with the given canonical id, creating
// it if it does not exist. The upsert on _id makes concurrent first calls from
// either participant converge on the same document.
func (r *MongoConversationRepository) GetOrCreate(ctx context.Context, id string, participantIDs []uint) (*models.Conversation, error) {
	now := time.Now()
	update := bson.M{
		"$setOnInsert": bson.M{
			"participant_ids": participantIDs,
			"messages":        []models.Message{},
			"created_at":      now,
			"updated_at":      now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var conv models.Conversation
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&conv)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// GetByID retrieves a conversation by its canonical id
func (r *MongoConversationRepository) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// AppendMessage atomically appends a message and bumps updated_at, returning
// the updated document. The messages array is append-only; nothing in this
// path can edit or remove prior entries.
func (r *MongoConversationRepository) AppendMessage(ctx context.Context, id string, msg models.Message) (*models.Conversation, error) {
	update := bson.M{
		"$push": bson.M{"messages": msg},
		"$set":  bson.M{"updated_at": msg.CreatedAt},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var conv models.Conversation
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&conv)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// GetByParticipant retrieves all conversations a user participates in, most
// recently updated first
func (r *MongoConversationRepository) GetByParticipant(ctx context.Context, userID uint) ([]models.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{"participant_ids": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var conversations []models.Conversation
	if err := cursor.All(ctx, &conversations); err != nil {
		return nil, err
	}
	return conversations, nil
}
