package models

import "time"

// ProviderGoogleDrive is the only OAuth provider wired today.
const ProviderGoogleDrive = "google_drive"

// SyncStatus tracks the health of the last provider interaction.
type SyncStatus string

const (
	SyncNotConnected SyncStatus = "not_connected"
	SyncPending      SyncStatus = "pending"
	SyncSuccess      SyncStatus = "success"
	SyncError        SyncStatus = "error"
	SyncDisconnected SyncStatus = "disconnected"
)

// Credential stores one OAuth grant per (user, provider). A new authorization
// overwrites the row; disconnect only flips IsConnected.
type Credential struct {
	ID                  string     `gorm:"primaryKey" json:"id"` // UUID
	UserID              string     `gorm:"uniqueIndex:idx_credential_user_provider;not null" json:"user_id"`
	Provider            string     `gorm:"uniqueIndex:idx_credential_user_provider;not null" json:"provider"`
	ProviderUserID      string     `json:"provider_user_id"`
	ProviderEmail       string     `json:"provider_email"`
	ProviderDisplayName string     `json:"provider_display_name"`
	AccessToken         string     `gorm:"type:text" json:"-"`
	RefreshToken        string     `gorm:"type:text" json:"-"`
	ExpiresAt           time.Time  `json:"expires_at"`
	Scopes              []string   `gorm:"serializer:json;type:text" json:"scopes"`
	IsConnected         bool       `gorm:"default:false" json:"is_connected"`
	SyncStatus          SyncStatus `gorm:"default:'not_connected'" json:"sync_status"`
	LastSyncAt          *time.Time `json:"last_sync_at,omitempty"`
	LastError           string     `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// TableName keeps the table name stable across renames of the Go type.
func (Credential) TableName() string {
	return "oauth_credentials"
}

// OAuthState is an issued, single-use CSRF state for a pending authorization.
type OAuthState struct {
	UserID    string    `gorm:"primaryKey"`
	Provider  string    `gorm:"primaryKey"`
	State     string    `gorm:"uniqueIndex;not null"`
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
}

func (OAuthState) TableName() string {
	return "oauth_states"
}
