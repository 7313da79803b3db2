// Package sqlstore provides bun-backed persistence for the credential
// lifecycle: the singleton credential record, the append-only refresh log,
// and pending oauth state records.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/kontorhq/ledgerlink/core"
)

type CredentialStore struct {
	db   *bun.DB
	repo repository.Repository[*credentialRecord]
}

func NewCredentialStore(db *bun.DB) (*CredentialStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*credentialRecord](db, credentialHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid credential repository wiring: %w", err)
		}
	}
	return &CredentialStore{db: db, repo: repo}, nil
}

func (s *CredentialStore) Get(ctx context.Context, key string) (core.Credentials, error) {
	if s == nil || s.repo == nil {
		return core.Credentials{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return core.Credentials{}, fmt.Errorf("sqlstore: credential key is required")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("key", "=", key),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Credentials{}, err
	}
	if len(records) == 0 {
		return core.Credentials{}, core.ErrCredentialsNotFound
	}
	return records[0].toDomain(), nil
}

func (s *CredentialStore) UpsertClient(ctx context.Context, in core.ConfigureClientInput) (core.Credentials, error) {
	if s == nil || s.repo == nil || s.db == nil {
		return core.Credentials{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	key := strings.TrimSpace(in.Key)
	if key == "" {
		return core.Credentials{}, fmt.Errorf("sqlstore: credential key is required")
	}
	clientID := strings.TrimSpace(in.ClientID)
	clientSecret := strings.TrimSpace(in.ClientSecret)
	if clientID == "" || clientSecret == "" {
		return core.Credentials{}, fmt.Errorf("sqlstore: client id and client secret are required")
	}

	now := time.Now().UTC()
	var saved core.Credentials
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, loadErr := s.loadForUpdate(ctx, tx, key)
		if loadErr != nil && !errors.Is(loadErr, sql.ErrNoRows) {
			return loadErr
		}

		if existing == nil {
			record := &credentialRecord{
				ID:           uuid.NewString(),
				Key:          key,
				ClientID:     clientID,
				ClientSecret: clientSecret,
				Status:       string(core.LinkStatusPendingAuth),
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			inserted, createErr := s.repo.CreateTx(ctx, tx, record)
			if createErr != nil {
				return createErr
			}
			saved = inserted.toDomain()
			return nil
		}

		// Token material survives a client credential update.
		_, updateErr := tx.NewUpdate().
			Model((*credentialRecord)(nil)).
			Set("client_id = ?", clientID).
			Set("client_secret = ?", clientSecret).
			Set("updated_at = ?", now).
			Where("key = ?", key).
			Exec(ctx)
		if updateErr != nil {
			return updateErr
		}
		existing.ClientID = clientID
		existing.ClientSecret = clientSecret
		existing.UpdatedAt = now
		saved = existing.toDomain()
		return nil
	})
	if err != nil {
		return core.Credentials{}, err
	}
	return saved, nil
}

func (s *CredentialStore) Replace(ctx context.Context, in core.ReplaceCredentialsInput) (core.Credentials, error) {
	if s == nil || s.db == nil {
		return core.Credentials{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	key := strings.TrimSpace(in.Key)
	if key == "" {
		return core.Credentials{}, fmt.Errorf("sqlstore: credential key is required")
	}

	now := time.Now().UTC()
	var saved core.Credentials
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, loadErr := s.loadForUpdate(ctx, tx, key)
		if errors.Is(loadErr, sql.ErrNoRows) {
			return core.ErrCredentialsNotFound
		}
		if loadErr != nil {
			return loadErr
		}

		domain := existing.toDomain()
		if in.Status != "" {
			if transitionErr := domain.TransitionTo(in.Status, "", now); transitionErr != nil {
				return transitionErr
			}
		}

		_, updateErr := tx.NewUpdate().
			Model((*credentialRecord)(nil)).
			Set("access_token = ?", in.AccessToken).
			Set("refresh_token = ?", in.RefreshToken).
			Set("expires_at = ?", in.ExpiresAt).
			Set("is_legacy_token = ?", in.IsLegacyToken).
			Set("status = ?", string(domain.Status)).
			Set("last_error = ?", domain.LastError).
			Set("updated_at = ?", now).
			Where("key = ?", key).
			Exec(ctx)
		if updateErr != nil {
			return updateErr
		}

		existing.AccessToken = in.AccessToken
		existing.RefreshToken = in.RefreshToken
		existing.ExpiresAt = in.ExpiresAt
		existing.IsLegacyToken = in.IsLegacyToken
		existing.Status = string(domain.Status)
		existing.LastError = domain.LastError
		existing.UpdatedAt = now
		saved = existing.toDomain()
		return nil
	})
	if err != nil {
		return core.Credentials{}, err
	}
	return saved, nil
}

// UpdateTokens commits a refresh result guarded by compare-and-swap on the
// previous access token: a concurrent refresh that landed first makes the
// guard miss and the caller gets core.ErrCredentialsConflict instead of
// silently overwriting the newer token.
func (s *CredentialStore) UpdateTokens(ctx context.Context, in core.UpdateTokensInput) (core.Credentials, error) {
	if s == nil || s.db == nil {
		return core.Credentials{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	key := strings.TrimSpace(in.Key)
	if key == "" {
		return core.Credentials{}, fmt.Errorf("sqlstore: credential key is required")
	}
	if strings.TrimSpace(in.AccessToken) == "" {
		return core.Credentials{}, fmt.Errorf("sqlstore: access token is required")
	}

	now := time.Now().UTC()
	var saved core.Credentials
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		update := tx.NewUpdate().
			Model((*credentialRecord)(nil)).
			Set("access_token = ?", in.AccessToken).
			Set("expires_at = ?", in.ExpiresAt).
			Set("status = ?", string(core.LinkStatusActive)).
			Set("last_error = ?", "").
			Set("updated_at = ?", now).
			Where("key = ?", key).
			Where("access_token = ?", in.ExpectedAccessToken)
		// An omitted refresh token keeps the stored one.
		if strings.TrimSpace(in.RefreshToken) != "" {
			update = update.Set("refresh_token = ?", in.RefreshToken)
		}

		result, updateErr := update.Exec(ctx)
		if updateErr != nil {
			return updateErr
		}
		affected, affectedErr := result.RowsAffected()
		if affectedErr != nil {
			return affectedErr
		}
		if affected == 0 {
			if _, loadErr := s.loadForUpdate(ctx, tx, key); errors.Is(loadErr, sql.ErrNoRows) {
				return core.ErrCredentialsNotFound
			} else if loadErr != nil {
				return loadErr
			}
			return core.ErrCredentialsConflict
		}

		reloaded, loadErr := s.loadForUpdate(ctx, tx, key)
		if loadErr != nil {
			return loadErr
		}
		saved = reloaded.toDomain()
		return nil
	})
	if err != nil {
		return core.Credentials{}, err
	}
	return saved, nil
}

func (s *CredentialStore) UpdateStatus(ctx context.Context, key string, status core.LinkStatus, reason string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: credential store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("sqlstore: credential key is required")
	}

	now := time.Now().UTC()
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, loadErr := s.loadForUpdate(ctx, tx, key)
		if errors.Is(loadErr, sql.ErrNoRows) {
			return core.ErrCredentialsNotFound
		}
		if loadErr != nil {
			return loadErr
		}

		domain := existing.toDomain()
		if transitionErr := domain.TransitionTo(status, reason, now); transitionErr != nil {
			return transitionErr
		}

		_, updateErr := tx.NewUpdate().
			Model((*credentialRecord)(nil)).
			Set("status = ?", string(domain.Status)).
			Set("last_error = ?", domain.LastError).
			Set("updated_at = ?", now).
			Where("key = ?", key).
			Exec(ctx)
		return updateErr
	})
}

func (s *CredentialStore) loadForUpdate(ctx context.Context, tx bun.Tx, key string) (*credentialRecord, error) {
	record := &credentialRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return record, nil
}
