package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
)

const defaultNotificationLimit = 50

// MongoNotificationStore stores in-app notifications in the shared MongoDB
// collection read by the storefront.
type MongoNotificationStore struct {
	collection *mongo.Collection
	logger     *logging.LoggerV2
}

func NewMongoNotificationStore(client *mongo.Client, cfg config.MongoConfig, logger *logging.LoggerV2) *MongoNotificationStore {
	return &MongoNotificationStore{
		collection: client.Database(cfg.Database).Collection(cfg.NotificationsCollection),
		logger:     logger,
	}
}

// notificationDocument is the stored shape. The storefront references users
// by ObjectId, so hex user ids are written as ObjectIds.
type notificationDocument struct {
	ID        primitive.ObjectID `bson:"_id"`
	User      interface{}        `bson:"user"`
	Message   string             `bson:"message"`
	Link      string             `bson:"link,omitempty"`
	IsRead    bool               `bson:"isRead"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

func newNotificationDocument(userID, message, link string, now time.Time) notificationDocument {
	return notificationDocument{
		ID:        primitive.NewObjectID(),
		User:      userRef(userID),
		Message:   message,
		Link:      link,
		IsRead:    false,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// userRef converts a hex user id to an ObjectId and leaves other ids as strings.
func userRef(userID string) interface{} {
	if oid, err := primitive.ObjectIDFromHex(userID); err == nil {
		return oid
	}
	return userID
}

// userFilter matches both ObjectId and string references for hex ids.
func userFilter(userID string) bson.M {
	if oid, ok := userRef(userID).(primitive.ObjectID); ok {
		return bson.M{"user": bson.M{"$in": bson.A{oid, userID}}}
	}
	return bson.M{"user": userID}
}

// Create inserts an unread notification for userID.
func (s *MongoNotificationStore) Create(ctx context.Context, userID, message, link string) error {
	doc := newNotificationDocument(userID, message, link, time.Now().UTC())

	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		s.logger.Error("Failed to insert notification", logging.Fields{
			"user_id": userID,
			"error":   err.Error(),
		})
		return errors.NewDeliveryError("notification", userID, err)
	}

	s.logger.Debug("Notification created", logging.Fields{
		"user_id":         userID,
		"notification_id": doc.ID.Hex(),
	})
	return nil
}

// ListByUser returns the newest notifications for userID.
func (s *MongoNotificationStore) ListByUser(ctx context.Context, userID string, limit int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = defaultNotificationLimit
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(int64(limit))

	// ObjectId _id and user values decode into the model's string fields as hex.
	cursor, err := s.collection.Find(ctx, userFilter(userID), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := make([]*models.Notification, 0)
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Ping checks connectivity for readiness probes.
func (s *MongoNotificationStore) Ping(ctx context.Context) error {
	return s.collection.Database().Client().Ping(ctx, nil)
}
