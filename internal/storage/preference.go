package storage

import (
	"context"
	"slices"
	"sync"

	"github.com/bradykim7/dentscraper/internal/models"
	"go.uber.org/zap"
)

// PreferenceStore holds the single notification preference record
type PreferenceStore interface {
	// Get returns the stored preference; ok is false when none has been written
	Get(ctx context.Context) (pref models.NotificationPreference, ok bool, err error)

	// Upsert creates the record on first write and replaces it afterwards
	Upsert(ctx context.Context, pref models.NotificationPreference) error
}

// ResolvePreference returns the stored preference, or fallback when none exists
// or the store cannot be read
func ResolvePreference(ctx context.Context, store PreferenceStore, fallback models.NotificationPreference, log *zap.Logger) models.NotificationPreference {
	pref, ok, err := store.Get(ctx)
	if err != nil {
		log.Error("Failed to read notification preference, using default", zap.Error(err))
		return fallback
	}
	if !ok {
		return fallback
	}
	return pref
}

// MemoryPreferenceStore keeps the preference in process memory
type MemoryPreferenceStore struct {
	mu   sync.RWMutex
	pref *models.NotificationPreference
}

// NewMemoryPreferenceStore creates an empty in-memory store
func NewMemoryPreferenceStore() *MemoryPreferenceStore {
	return &MemoryPreferenceStore{}
}

// Get returns a copy of the stored preference
func (s *MemoryPreferenceStore) Get(ctx context.Context) (models.NotificationPreference, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.pref == nil {
		return models.NotificationPreference{}, false, nil
	}
	return models.NotificationPreference{
		Channel:    s.pref.Channel,
		Recipients: slices.Clone(s.pref.Recipients),
	}, true, nil
}

// Upsert replaces the stored preference
func (s *MemoryPreferenceStore) Upsert(ctx context.Context, pref models.NotificationPreference) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pref = &models.NotificationPreference{
		Channel:    pref.Channel,
		Recipients: slices.Clone(pref.Recipients),
	}
	return nil
}
