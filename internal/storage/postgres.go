package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bradykim7/dentscraper/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	preferenceRowID = 1

	createPreferenceTable = `
CREATE TABLE IF NOT EXISTS notification_config (
	id                INTEGER PRIMARY KEY,
	notification_type TEXT NOT NULL,
	recipients        TEXT NOT NULL DEFAULT ''
)`

	selectPreference = `
SELECT notification_type, recipients
FROM notification_config
WHERE id = $1`

	upsertPreference = `
INSERT INTO notification_config (id, notification_type, recipients)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE
SET notification_type = EXCLUDED.notification_type,
	recipients = EXCLUDED.recipients`
)

// PostgresPreferenceStore keeps the notification preference in a one-row table
type PostgresPreferenceStore struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

// NewPostgresPreferenceStore connects to dsn and creates the table if needed
func NewPostgresPreferenceStore(ctx context.Context, dsn string, log *zap.Logger) (*PostgresPreferenceStore, error) {
	logger := log.Named("postgres")

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, createPreferenceTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create notification_config table: %w", err)
	}

	logger.Info("Connected to Postgres")

	return &PostgresPreferenceStore{pool: pool, log: logger}, nil
}

// Get returns the stored preference
func (s *PostgresPreferenceStore) Get(ctx context.Context) (models.NotificationPreference, bool, error) {
	var notificationType, recipients string
	err := s.pool.QueryRow(ctx, selectPreference, preferenceRowID).Scan(&notificationType, &recipients)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.NotificationPreference{}, false, nil
	}
	if err != nil {
		return models.NotificationPreference{}, false, fmt.Errorf("failed to query notification config: %w", err)
	}

	channel, err := models.ParseNotificationChannel(notificationType)
	if err != nil {
		return models.NotificationPreference{}, false, err
	}

	return models.NotificationPreference{
		Channel:    channel,
		Recipients: models.SplitRecipients(recipients),
	}, true, nil
}

// Upsert writes the single preference row
func (s *PostgresPreferenceStore) Upsert(ctx context.Context, pref models.NotificationPreference) error {
	_, err := s.pool.Exec(ctx, upsertPreference, preferenceRowID, string(pref.Channel), pref.JoinRecipients())
	if err != nil {
		return fmt.Errorf("failed to upsert notification config: %w", err)
	}

	s.log.Info("Notification config updated", zap.String("notification_type", string(pref.Channel)))
	return nil
}

// Close releases the connection pool
func (s *PostgresPreferenceStore) Close() {
	s.pool.Close()
}
