package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pysugar/commshub/internal/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CredentialStore persists OAuth credentials and pending states through gorm.
type CredentialStore struct {
	db     *gorm.DB
	sealer *Sealer
}

// NewCredentialStore creates a gorm-backed store. sealer may be nil.
func NewCredentialStore(db *gorm.DB, sealer *Sealer) *CredentialStore {
	return &CredentialStore{db: db, sealer: sealer}
}

// GetCredential loads the credential for (userID, provider).
func (s *CredentialStore) GetCredential(ctx context.Context, userID, provider string) (*models.Credential, error) {
	var cred models.Credential
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", userID, provider).
		First(&cred).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	if err := openTokens(s.sealer, &cred); err != nil {
		return nil, err
	}
	return &cred, nil
}

// SaveCredential upserts on (user_id, provider): last writer wins.
func (s *CredentialStore) SaveCredential(ctx context.Context, cred *models.Credential) error {
	if cred.ID == "" {
		cred.ID = uuid.New().String()
	}
	row := *cred
	row.ExpiresAt = row.ExpiresAt.UTC()
	if err := sealTokens(s.sealer, &row); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "provider"}},
		DoUpdates: clause.AssignmentColumns(credentialUpdateColumns),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	cred.CreatedAt = row.CreatedAt
	cred.UpdatedAt = row.UpdatedAt
	return nil
}

var credentialUpdateColumns = []string{
	"provider_user_id", "provider_email", "provider_display_name",
	"access_token", "refresh_token", "expires_at", "scopes",
	"is_connected", "sync_status", "last_sync_at", "last_error", "updated_at",
}

// SaveState stores the pending state for (userID, provider), replacing any earlier one.
func (s *CredentialStore) SaveState(ctx context.Context, st *models.OAuthState) error {
	st.ExpiresAt = st.ExpiresAt.UTC()
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{"state", "expires_at", "created_at"}),
	}).Create(st).Error
	if err != nil {
		return fmt.Errorf("failed to save oauth state: %w", err)
	}
	return nil
}

// ConsumeState returns and deletes the pending state for (userID, provider).
func (s *CredentialStore) ConsumeState(ctx context.Context, userID, provider string) (*models.OAuthState, error) {
	var st models.OAuthState
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND provider = ?", userID, provider).First(&st).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ? AND provider = ?", userID, provider).Delete(&models.OAuthState{}).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to consume oauth state: %w", err)
	}
	return &st, nil
}

// FindStateOwner resolves which user a state was issued to.
func (s *CredentialStore) FindStateOwner(ctx context.Context, state, provider string) (string, error) {
	var st models.OAuthState
	err := s.db.WithContext(ctx).Where("state = ? AND provider = ?", state, provider).First(&st).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to look up oauth state: %w", err)
	}
	return st.UserID, nil
}

// HasPendingState reports whether an unexpired state exists for (userID, provider).
func (s *CredentialStore) HasPendingState(ctx context.Context, userID, provider string, now time.Time) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.OAuthState{}).
		Where("user_id = ? AND provider = ? AND expires_at > ?", userID, provider, now.UTC()).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to count oauth states: %w", err)
	}
	return count > 0, nil
}

// DeleteExpiredStates removes states past their expiry and returns how many were dropped.
func (s *CredentialStore) DeleteExpiredStates(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", now.UTC()).Delete(&models.OAuthState{})
	return res.RowsAffected, res.Error
}

func sealTokens(s *Sealer, cred *models.Credential) error {
	var err error
	if cred.AccessToken, err = s.Seal(cred.AccessToken); err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}
	if cred.RefreshToken, err = s.Seal(cred.RefreshToken); err != nil {
		return fmt.Errorf("seal refresh token: %w", err)
	}
	return nil
}

func openTokens(s *Sealer, cred *models.Credential) error {
	var err error
	if cred.AccessToken, err = s.Open(cred.AccessToken); err != nil {
		return err
	}
	if cred.RefreshToken, err = s.Open(cred.RefreshToken); err != nil {
		return err
	}
	return nil
}
