package token

import (
	"context"
	"time"

	"github.com/pysugar/commshub/internal/db/models"
)

// CredentialStore is the persistence the Manager needs. Implementations return
// db.ErrNotFound for missing rows.
type CredentialStore interface {
	GetCredential(ctx context.Context, userID, provider string) (*models.Credential, error)
	SaveCredential(ctx context.Context, cred *models.Credential) error
	SaveState(ctx context.Context, st *models.OAuthState) error
	ConsumeState(ctx context.Context, userID, provider string) (*models.OAuthState, error)
	FindStateOwner(ctx context.Context, state, provider string) (string, error)
	HasPendingState(ctx context.Context, userID, provider string, now time.Time) (bool, error)
}
