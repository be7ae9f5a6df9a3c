package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bradykim7/dentscraper/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	preferenceCollection = "notification_config"
	preferenceDocumentID = "notification_config"
)

// preferenceDocument is the stored form: recipients are comma-joined,
// the channel is kept as its string tag
type preferenceDocument struct {
	ID               string    `bson:"_id"`
	NotificationType string    `bson:"notification_type"`
	Recipients       string    `bson:"recipients"`
	UpdatedAt        time.Time `bson:"updated_at"`
}

func toPreferenceDocument(pref models.NotificationPreference) preferenceDocument {
	return preferenceDocument{
		ID:               preferenceDocumentID,
		NotificationType: string(pref.Channel),
		Recipients:       pref.JoinRecipients(),
	}
}

func (d preferenceDocument) toModel() (models.NotificationPreference, error) {
	channel, err := models.ParseNotificationChannel(d.NotificationType)
	if err != nil {
		return models.NotificationPreference{}, err
	}
	return models.NotificationPreference{
		Channel:    channel,
		Recipients: models.SplitRecipients(d.Recipients),
	}, nil
}

// PreferenceRepository handles persistence for the notification preference in MongoDB
type PreferenceRepository struct {
	db  *MongoDB
	log *zap.Logger
}

// NewPreferenceRepository creates a new preference repository
func NewPreferenceRepository(db *MongoDB, log *zap.Logger) *PreferenceRepository {
	return &PreferenceRepository{
		db:  db,
		log: log.Named("preference-repository"),
	}
}

// Get returns the stored preference
func (r *PreferenceRepository) Get(ctx context.Context) (models.NotificationPreference, bool, error) {
	collection := r.db.Collection(preferenceCollection)

	var doc preferenceDocument
	err := collection.FindOne(ctx, bson.M{"_id": preferenceDocumentID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.NotificationPreference{}, false, nil
	}
	if err != nil {
		return models.NotificationPreference{}, false, fmt.Errorf("failed to find notification config: %w", err)
	}

	pref, err := doc.toModel()
	if err != nil {
		return models.NotificationPreference{}, false, fmt.Errorf("failed to decode notification config: %w", err)
	}
	return pref, true, nil
}

// Upsert writes the single preference document
func (r *PreferenceRepository) Upsert(ctx context.Context, pref models.NotificationPreference) error {
	collection := r.db.Collection(preferenceCollection)
	doc := toPreferenceDocument(pref)

	update := bson.M{
		"$set": bson.M{
			"notification_type": doc.NotificationType,
			"recipients":        doc.Recipients,
			"updated_at":        time.Now(),
		},
	}

	_, err := collection.UpdateOne(ctx,
		bson.M{"_id": preferenceDocumentID},
		update,
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert notification config: %w", err)
	}

	r.log.Info("Notification config updated",
		zap.String("notification_type", doc.NotificationType),
		zap.Int("recipients", len(pref.Recipients)))
	return nil
}
