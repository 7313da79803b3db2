package sqlstore

import (
	"fmt"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"

	"github.com/kontorhq/ledgerlink/core"
)

// RepositoryFactory wires the bun-backed stores from one database handle.
type RepositoryFactory struct {
	db *bun.DB

	credentialStore *CredentialStore
	refreshLogStore *RefreshLogStore
	oauthStateStore *OAuthStateStore
	stateTTL        time.Duration
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

// WithOAuthStateTTL sets the pending authorization attempt lifetime. Must be
// called before BuildStores.
func (f *RepositoryFactory) WithOAuthStateTTL(ttl time.Duration) *RepositoryFactory {
	if f != nil && ttl > 0 {
		f.stateTTL = ttl
	}
	return f
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.credentialStore != nil && f.refreshLogStore != nil && f.oauthStateStore != nil {
		return nil
	}
	return f.initStores()
}

func (f *RepositoryFactory) CredentialStore() core.CredentialStore {
	if f == nil || f.credentialStore == nil {
		return nil
	}
	return f.credentialStore
}

func (f *RepositoryFactory) RefreshLogStore() core.RefreshLogStore {
	if f == nil || f.refreshLogStore == nil {
		return nil
	}
	return f.refreshLogStore
}

func (f *RepositoryFactory) OAuthStateStore() core.OAuthStateStore {
	if f == nil || f.oauthStateStore == nil {
		return nil
	}
	return f.oauthStateStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	credentialStore, err := NewCredentialStore(f.db)
	if err != nil {
		return err
	}
	f.credentialStore = credentialStore

	refreshLogStore, err := NewRefreshLogStore(f.db)
	if err != nil {
		return err
	}
	f.refreshLogStore = refreshLogStore

	oauthStateStore, err := NewOAuthStateStore(f.db, f.stateTTL)
	if err != nil {
		return err
	}
	f.oauthStateStore = oauthStateStore

	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
