package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pysugar/commshub/internal/db/models"
	"gorm.io/gorm"
)

// LogStore reads and updates communication logs.
type LogStore struct {
	db *gorm.DB
}

// NewLogStore creates a LogStore.
func NewLogStore(db *gorm.DB) *LogStore {
	return &LogStore{db: db}
}

// ListCommunicationLogs returns logs with SentAt inside the inclusive bounds,
// ordered by SentAt then ID so reports over the same rows are stable.
func (s *LogStore) ListCommunicationLogs(ctx context.Context, from, to *time.Time) ([]models.CommunicationLog, error) {
	q := s.db.WithContext(ctx).Model(&models.CommunicationLog{})
	if from != nil {
		q = q.Where("sent_at >= ?", from.UTC())
	}
	if to != nil {
		q = q.Where("sent_at <= ?", to.UTC())
	}

	var logs []models.CommunicationLog
	if err := q.Order("sent_at ASC").Order("id ASC").Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to list communication logs: %w", err)
	}
	return logs, nil
}

// CreateCommunicationLog inserts a log entry, assigning an ID when missing.
func (s *LogStore) CreateCommunicationLog(ctx context.Context, entry *models.CommunicationLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.SentAt.IsZero() {
		entry.SentAt = time.Now()
	}
	// SQLite compares timestamps as text; keep them in one zone.
	entry.SentAt = entry.SentAt.UTC()
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to create communication log: %w", err)
	}
	return nil
}

// ApplyStatus advances the log identified by the provider's message id. It
// returns false when the event is stale or the message is unknown.
func (s *LogStore) ApplyStatus(ctx context.Context, providerMessageID string, status models.MessageStatus, at time.Time) (bool, error) {
	var changed bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry models.CommunicationLog
		if err := tx.Where("provider_message_id = ?", providerMessageID).First(&entry).Error; err != nil {
			return err
		}
		if !entry.Advance(status, at) {
			return nil
		}
		changed = true
		return tx.Model(&entry).Select("status", "read_at", "updated_at").Updates(&entry).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to apply status %s to %s: %w", status, providerMessageID, err)
	}
	return changed, nil
}

// BackfillChannels sets channel on logs that were stored without one.
func (s *LogStore) BackfillChannels(ctx context.Context, channel models.Channel) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.CommunicationLog{}).
		Where("channel = ? OR channel IS NULL", "").
		Update("channel", channel)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to backfill log channels: %w", res.Error)
	}
	return res.RowsAffected, nil
}
