package sqlstore

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/kontorhq/ledgerlink/core"
)

type credentialRecord struct {
	bun.BaseModel `bun:"table:ledgerlink_credentials,alias:lc"`

	ID            string     `bun:"id,pk"`
	Key           string     `bun:"key,notnull,unique"`
	ClientID      string     `bun:"client_id"`
	ClientSecret  string     `bun:"client_secret"`
	AccessToken   string     `bun:"access_token"`
	RefreshToken  string     `bun:"refresh_token"`
	ExpiresAt     *time.Time `bun:"expires_at,nullzero"`
	IsLegacyToken bool       `bun:"is_legacy_token,notnull"`
	Status        string     `bun:"status,notnull"`
	LastError     string     `bun:"last_error"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *credentialRecord) toDomain() core.Credentials {
	if r == nil {
		return core.Credentials{}
	}
	return core.Credentials{
		Key:           r.Key,
		ClientID:      r.ClientID,
		ClientSecret:  r.ClientSecret,
		AccessToken:   r.AccessToken,
		RefreshToken:  r.RefreshToken,
		ExpiresAt:     r.ExpiresAt,
		IsLegacyToken: r.IsLegacyToken,
		Status:        core.LinkStatus(r.Status),
		LastError:     r.LastError,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

type refreshLogRecord struct {
	bun.BaseModel `bun:"table:ledgerlink_refresh_log,alias:lrl"`

	ID            string    `bun:"id,pk"`
	Key           string    `bun:"key,notnull"`
	Success       bool      `bun:"success,notnull"`
	Message       string    `bun:"message"`
	CorrelationID string    `bun:"correlation_id"`
	TokenLength   int       `bun:"token_length,notnull"`
	Forced        bool      `bun:"forced,notnull"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func (r *refreshLogRecord) toDomain() core.RefreshLogEntry {
	if r == nil {
		return core.RefreshLogEntry{}
	}
	return core.RefreshLogEntry{
		ID:            r.ID,
		Timestamp:     r.CreatedAt,
		Success:       r.Success,
		Message:       r.Message,
		CorrelationID: r.CorrelationID,
		TokenLength:   r.TokenLength,
		Forced:        r.Forced,
	}
}

type oauthStateRecord struct {
	bun.BaseModel `bun:"table:ledgerlink_oauth_states,alias:los"`

	ID          string    `bun:"id,pk"`
	Key         string    `bun:"key,notnull,unique"`
	Nonce       string    `bun:"nonce,notnull"`
	OriginURL   string    `bun:"origin_url"`
	RedirectURI string    `bun:"redirect_uri"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	ExpiresAt   time.Time `bun:"expires_at,notnull"`
}

func (r *oauthStateRecord) toDomain() core.OAuthStateRecord {
	if r == nil {
		return core.OAuthStateRecord{}
	}
	return core.OAuthStateRecord{
		Nonce:       r.Nonce,
		OriginURL:   r.OriginURL,
		RedirectURI: r.RedirectURI,
		CreatedAt:   r.CreatedAt,
		ExpiresAt:   r.ExpiresAt,
	}
}
