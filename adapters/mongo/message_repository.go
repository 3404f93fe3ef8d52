package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/satriahrh/peacepal/server/domain/entities"
	"github.com/satriahrh/peacepal/server/domain/repositories"
)

const defaultPollInterval = 2 * time.Second

// messageDocument is the stored shape of a message. Messages of every app share one
// collection and are partitioned by app_id and user_id.
type messageDocument struct {
	ID        string    `bson:"_id"`
	AppID     string    `bson:"app_id"`
	UserID    string    `bson:"user_id"`
	Text      string    `bson:"text"`
	Sender    string    `bson:"sender"`
	CreatedAt time.Time `bson:"created_at"`
}

func (d messageDocument) toEntity() entities.Message {
	return entities.Message{
		ID:        d.ID,
		Text:      d.Text,
		Sender:    entities.Sender(d.Sender),
		CreatedAt: d.CreatedAt,
	}
}

// MessageRepository implements repositories.MessageStore on MongoDB
type MessageRepository struct {
	collection   *mongo.Collection
	appID        string
	pollInterval time.Duration
	logger       *zap.Logger
}

var _ repositories.MessageStore = (*MessageRepository)(nil)

// NewMessageRepository creates a new MongoDB message repository
func NewMessageRepository(db *mongo.Database, appID string, pollInterval time.Duration, logger *zap.Logger) *MessageRepository {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &MessageRepository{
		collection:   db.Collection("messages"),
		appID:        appID,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// EnsureIndexes creates the index used by the per-user history query
func (r *MessageRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "app_id", Value: 1}, {Key: "user_id", Value: 1}, {Key: "created_at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create message index: %w", err)
	}
	return nil
}

// Append implements repositories.MessageStore
func (r *MessageRepository) Append(ctx context.Context, userID string, message entities.Message) error {
	if userID == "" {
		return errors.New("user ID cannot be empty")
	}
	if err := message.Validate(); err != nil {
		return err
	}
	if message.IsLive() {
		return errors.New("provisional messages cannot be persisted")
	}
	if message.ID == "" {
		message.ID = uuid.NewString()
	}

	doc := messageDocument{
		ID:        message.ID,
		AppID:     r.appID,
		UserID:    userID,
		Text:      message.Text,
		Sender:    string(message.Sender),
		CreatedAt: message.CreatedAt,
	}
	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// List returns every message of the user ordered by creation time
func (r *MessageRepository) List(ctx context.Context, userID string) ([]entities.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"app_id": r.appID, "user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []messageDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}

	messages := make([]entities.Message, 0, len(docs))
	for _, d := range docs {
		messages = append(messages, d.toEntity())
	}
	return messages, nil
}

// Watch implements repositories.MessageStore. ctx bounds the initial load only; the
// subscription lives until the returned stop func is called. The change stream is opened
// before the initial load so no insert falls between the two. Deployments without change
// streams are polled.
func (r *MessageRepository) Watch(ctx context.Context, userID string, onSnapshot func([]entities.Message), onError func(error)) (func(), error) {
	wctx, cancel := context.WithCancel(context.Background())
	stopInitial := context.AfterFunc(ctx, cancel)

	stream, streamErr := r.collection.Watch(wctx, r.insertPipeline(userID))
	initial, err := r.List(ctx, userID)
	if !stopInitial() && err == nil {
		err = ctx.Err()
	}
	if err != nil {
		cancel()
		if stream != nil {
			stream.Close(context.Background())
		}
		return nil, err
	}
	onSnapshot(initial)

	go r.watchLoop(wctx, userID, stream, streamErr, len(initial), onSnapshot, onError)
	return cancel, nil
}

func (r *MessageRepository) insertPipeline(userID string) mongo.Pipeline {
	return mongo.Pipeline{{{Key: "$match", Value: bson.D{
		{Key: "operationType", Value: "insert"},
		{Key: "fullDocument.app_id", Value: r.appID},
		{Key: "fullDocument.user_id", Value: userID},
	}}}}
}

func (r *MessageRepository) watchLoop(ctx context.Context, userID string, stream *mongo.ChangeStream, streamErr error, known int, onSnapshot func([]entities.Message), onError func(error)) {
	logger := r.logger.With(zap.String("userID", userID))

	if streamErr != nil {
		logger.Info("Change streams unavailable, polling for messages", zap.Error(streamErr))
		r.poll(ctx, userID, known, onSnapshot, onError)
		return
	}
	defer stream.Close(context.Background())

	for stream.Next(ctx) {
		messages, err := r.List(ctx, userID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			onError(err)
			continue
		}
		known = len(messages)
		onSnapshot(messages)
	}

	if ctx.Err() != nil {
		return
	}
	if err := stream.Err(); err != nil {
		onError(err)
	}
	logger.Warn("Change stream ended, polling for messages")
	r.poll(ctx, userID, known, onSnapshot, onError)
}

// poll reloads the history whenever the number of stored messages changes. The collection
// is append-only so the count is enough to detect a change.
func (r *MessageRepository) poll(ctx context.Context, userID string, known int, onSnapshot func([]entities.Message), onError func(error)) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := r.collection.CountDocuments(ctx, bson.M{"app_id": r.appID, "user_id": userID})
			if err != nil {
				if ctx.Err() == nil {
					onError(fmt.Errorf("failed to count messages: %w", err))
				}
				continue
			}
			if int(count) == known {
				continue
			}

			messages, err := r.List(ctx, userID)
			if err != nil {
				if ctx.Err() == nil {
					onError(err)
				}
				continue
			}
			known = len(messages)
			onSnapshot(messages)
		}
	}
}
