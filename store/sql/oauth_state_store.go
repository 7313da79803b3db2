package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/kontorhq/ledgerlink/core"
)

// OAuthStateStore keeps at most one pending authorization attempt per
// credential key. Saving a new attempt supersedes the previous one.
type OAuthStateStore struct {
	db  *bun.DB
	ttl time.Duration
}

func NewOAuthStateStore(db *bun.DB, ttl time.Duration) (*OAuthStateStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &OAuthStateStore{db: db, ttl: ttl}, nil
}

func (s *OAuthStateStore) Save(ctx context.Context, key string, record core.OAuthStateRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: oauth state store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("sqlstore: credential key is required")
	}
	if strings.TrimSpace(record.Nonce) == "" {
		return fmt.Errorf("sqlstore: oauth state nonce is required")
	}

	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.ExpiresAt.IsZero() {
		record.ExpiresAt = record.CreatedAt.Add(s.ttl)
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*oauthStateRecord)(nil)).
			Where("key = ?", key).
			Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewInsert().
			Model(&oauthStateRecord{
				ID:          uuid.NewString(),
				Key:         key,
				Nonce:       strings.TrimSpace(record.Nonce),
				OriginURL:   strings.TrimSpace(record.OriginURL),
				RedirectURI: strings.TrimSpace(record.RedirectURI),
				CreatedAt:   record.CreatedAt,
				ExpiresAt:   record.ExpiresAt,
			}).
			Exec(ctx)
		return err
	})
}

func (s *OAuthStateStore) Pending(ctx context.Context, key string) (core.OAuthStateRecord, bool, error) {
	if s == nil || s.db == nil {
		return core.OAuthStateRecord{}, false, fmt.Errorf("sqlstore: oauth state store is not configured")
	}
	record := &oauthStateRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("key = ?", strings.TrimSpace(key)).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return core.OAuthStateRecord{}, false, nil
	}
	if err != nil {
		return core.OAuthStateRecord{}, false, err
	}
	// Expired records are reported as-is; expiry enforcement is the
	// validation layer's concern.
	return record.toDomain(), true, nil
}

func (s *OAuthStateStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: oauth state store is not configured")
	}
	_, err := s.db.NewDelete().
		Model((*oauthStateRecord)(nil)).
		Where("key = ?", strings.TrimSpace(key)).
		Exec(ctx)
	return err
}
