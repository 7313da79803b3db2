package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/kontorhq/ledgerlink/core"
)

const credentialCacheKeyPrefix = "ledgerlink::credentials::v1"

// CachedCredentialStore serves credential reads from cache. The refresh loop
// reads the record every check tick, so the hot path avoids a database
// round trip; every write invalidates before returning.
type CachedCredentialStore struct {
	base  core.CredentialStore
	cache repositorycache.CacheService
}

func NewCachedCredentialStore(base core.CredentialStore, cacheService repositorycache.CacheService) (*CachedCredentialStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base credential store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: credential cache service is required")
	}
	return &CachedCredentialStore{base: base, cache: cacheService}, nil
}

// CredentialCacheKey returns the deterministic cache key for a credential
// record: ledgerlink::credentials::v1::<key> with the key URL-path escaped.
func CredentialCacheKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("sqlstore: credential key is required")
	}
	return credentialCacheKeyPrefix + "::" + url.PathEscape(key), nil
}

func (s *CachedCredentialStore) Get(ctx context.Context, key string) (core.Credentials, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Credentials{}, fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	cacheKey, err := CredentialCacheKey(key)
	if err != nil {
		return core.Credentials{}, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.Credentials, error) {
		return s.base.Get(ctx, key)
	})
}

func (s *CachedCredentialStore) UpsertClient(ctx context.Context, in core.ConfigureClientInput) (core.Credentials, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Credentials{}, fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	saved, err := s.base.UpsertClient(ctx, in)
	if err != nil {
		return core.Credentials{}, err
	}
	if err := s.invalidate(ctx, in.Key); err != nil {
		return core.Credentials{}, err
	}
	return saved, nil
}

func (s *CachedCredentialStore) Replace(ctx context.Context, in core.ReplaceCredentialsInput) (core.Credentials, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Credentials{}, fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	saved, err := s.base.Replace(ctx, in)
	if err != nil {
		return core.Credentials{}, err
	}
	if err := s.invalidate(ctx, in.Key); err != nil {
		return core.Credentials{}, err
	}
	return saved, nil
}

func (s *CachedCredentialStore) UpdateTokens(ctx context.Context, in core.UpdateTokensInput) (core.Credentials, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Credentials{}, fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	saved, err := s.base.UpdateTokens(ctx, in)
	if err != nil {
		// A compare-and-swap miss means the cached copy is stale too.
		if invalidateErr := s.invalidate(ctx, in.Key); invalidateErr != nil {
			return core.Credentials{}, invalidateErr
		}
		return core.Credentials{}, err
	}
	if err := s.invalidate(ctx, in.Key); err != nil {
		return core.Credentials{}, err
	}
	return saved, nil
}

func (s *CachedCredentialStore) UpdateStatus(ctx context.Context, key string, status core.LinkStatus, reason string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	if err := s.base.UpdateStatus(ctx, key, status, reason); err != nil {
		return err
	}
	return s.invalidate(ctx, key)
}

func (s *CachedCredentialStore) invalidate(ctx context.Context, key string) error {
	cacheKey, err := CredentialCacheKey(key)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

var _ core.CredentialStore = (*CachedCredentialStore)(nil)
