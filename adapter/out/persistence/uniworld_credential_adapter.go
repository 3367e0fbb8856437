package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"uniworld_server/core/domain"
	"uniworld_server/core/port/out"
	"uniworld_server/pkg/crypto"
)

// CredentialAdapter implements out.CredentialRepository on PostgreSQL.
// Token columns are sealed with AES-GCM before they touch the row.
type CredentialAdapter struct {
	db        *sqlx.DB
	encryptor *crypto.Encryptor
}

var _ out.CredentialRepository = (*CredentialAdapter)(nil)

func NewCredentialAdapter(db *sqlx.DB, encryptor *crypto.Encryptor) *CredentialAdapter {
	return &CredentialAdapter{db: db, encryptor: encryptor}
}

// Upsert writes the credential, replacing any existing row for the
// same (user, provider). The unique constraint on that pair is what
// keeps reconnects from accumulating rows.
func (a *CredentialAdapter) Upsert(ctx context.Context, cred *domain.Credential) error {
	entity, err := a.toEntity(cred)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO oauth_credentials (id, user_id, provider, access_token, refresh_token,
		                               token_expiry, email, created_at, updated_at)
		VALUES (:id, :user_id, :provider, :access_token, :refresh_token,
		        :token_expiry, :email, NOW(), NOW())
		ON CONFLICT (user_id, provider) DO UPDATE SET
			access_token  = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expiry  = EXCLUDED.token_expiry,
			email         = EXCLUDED.email,
			updated_at    = NOW()`

	if _, err := a.db.NamedExecContext(ctx, query, entity); err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}
	return nil
}

// Find returns the credential for (user, provider).
func (a *CredentialAdapter) Find(ctx context.Context, userID uuid.UUID, provider domain.Provider) (*domain.Credential, error) {
	var entity out.CredentialEntity
	query := `
		SELECT id, user_id, provider, access_token, refresh_token,
		       token_expiry, email, created_at, updated_at
		FROM oauth_credentials
		WHERE user_id = $1 AND provider = $2`

	if err := a.db.GetContext(ctx, &entity, query, userID, provider.String()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, out.ErrNotFound
		}
		return nil, fmt.Errorf("find credential: %w", err)
	}
	return a.toDomain(&entity)
}

// FindAll returns every credential the user holds.
func (a *CredentialAdapter) FindAll(ctx context.Context, userID uuid.UUID) ([]*domain.Credential, error) {
	var entities []out.CredentialEntity
	query := `
		SELECT id, user_id, provider, access_token, refresh_token,
		       token_expiry, email, created_at, updated_at
		FROM oauth_credentials
		WHERE user_id = $1
		ORDER BY created_at`

	if err := a.db.SelectContext(ctx, &entities, query, userID); err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}

	creds := make([]*domain.Credential, 0, len(entities))
	for i := range entities {
		c, err := a.toDomain(&entities[i])
		if err != nil {
			return nil, err
		}
		creds = append(creds, c)
	}
	return creds, nil
}

// UpdateTokens persists a refresh result in one statement. An empty
// refreshToken keeps the stored value, so providers that do not
// rotate never blank the row.
func (a *CredentialAdapter) UpdateTokens(ctx context.Context, userID uuid.UUID, provider domain.Provider, accessToken, refreshToken string, expiry time.Time) error {
	encAccess, err := a.encryptor.Encrypt(accessToken)
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}
	encRefresh, err := a.encryptor.Encrypt(refreshToken)
	if err != nil {
		return fmt.Errorf("encrypt refresh token: %w", err)
	}

	query := `
		UPDATE oauth_credentials
		SET access_token  = $1,
		    refresh_token = CASE WHEN $2 <> '' THEN $2 ELSE refresh_token END,
		    token_expiry  = $3,
		    updated_at    = NOW()
		WHERE user_id = $4 AND provider = $5`

	res, err := a.db.ExecContext(ctx, query, encAccess, encRefresh, expiry, userID, provider.String())
	if err != nil {
		return fmt.Errorf("update tokens: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return out.ErrNotFound
	}
	return nil
}

// Delete removes the credential. Missing rows are fine.
func (a *CredentialAdapter) Delete(ctx context.Context, userID uuid.UUID, provider domain.Provider) error {
	query := `DELETE FROM oauth_credentials WHERE user_id = $1 AND provider = $2`
	if _, err := a.db.ExecContext(ctx, query, userID, provider.String()); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

// ===========================================================================
// Mapping
// ===========================================================================

func (a *CredentialAdapter) toEntity(cred *domain.Credential) (*out.CredentialEntity, error) {
	encAccess, err := a.encryptor.Encrypt(cred.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("encrypt access token: %w", err)
	}
	encRefresh, err := a.encryptor.Encrypt(cred.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("encrypt refresh token: %w", err)
	}

	return &out.CredentialEntity{
		ID:           cred.ID,
		UserID:       cred.UserID,
		Provider:     cred.Provider.String(),
		AccessToken:  encAccess,
		RefreshToken: encRefresh,
		TokenExpiry:  cred.TokenExpiry,
		Email:        cred.Email,
	}, nil
}

func (a *CredentialAdapter) toDomain(entity *out.CredentialEntity) (*domain.Credential, error) {
	provider, ok := domain.ParseProvider(entity.Provider)
	if !ok {
		return nil, fmt.Errorf("unknown provider in row: %q", entity.Provider)
	}

	return &domain.Credential{
		ID:           entity.ID,
		UserID:       entity.UserID,
		Provider:     provider,
		AccessToken:  a.decryptToken(entity.AccessToken),
		RefreshToken: a.decryptToken(entity.RefreshToken),
		TokenExpiry:  entity.TokenExpiry,
		Email:        entity.Email,
		CreatedAt:    entity.CreatedAt,
		UpdatedAt:    entity.UpdatedAt,
	}, nil
}

// decryptToken opens a sealed token. Rows written before encryption
// was enabled come back as-is.
func (a *CredentialAdapter) decryptToken(token string) string {
	if token == "" || !a.encryptor.IsEncrypted(token) {
		return token
	}
	plain, err := a.encryptor.Decrypt(token)
	if err != nil {
		return token
	}
	return plain
}
