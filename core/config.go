package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultCheckInterval  = 15 * time.Minute
	DefaultForceInterval  = 12 * time.Hour
	DefaultRequestTimeout = 30 * time.Second
	DefaultLockTTL        = 30 * time.Second
)

type ProviderConfig struct {
	AuthorizeURL string `koanf:"authorize_url" mapstructure:"authorize_url"`
	TokenURL     string `koanf:"token_url" mapstructure:"token_url"`
	MigrationURL string `koanf:"migration_url" mapstructure:"migration_url"`
	RedirectURI  string `koanf:"redirect_uri" mapstructure:"redirect_uri"`
}

type RefreshConfig struct {
	LeadWindow     time.Duration `koanf:"lead_window" mapstructure:"lead_window"`
	CheckInterval  time.Duration `koanf:"check_interval" mapstructure:"check_interval"`
	ForceInterval  time.Duration `koanf:"force_interval" mapstructure:"force_interval"`
	RequestTimeout time.Duration `koanf:"request_timeout" mapstructure:"request_timeout"`
	LockTTL        time.Duration `koanf:"lock_ttl" mapstructure:"lock_ttl"`
}

type Config struct {
	ServiceName   string         `koanf:"service_name" mapstructure:"service_name"`
	CredentialKey string         `koanf:"credential_key" mapstructure:"credential_key"`
	Provider      ProviderConfig `koanf:"provider" mapstructure:"provider"`
	Refresh       RefreshConfig  `koanf:"refresh" mapstructure:"refresh"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:   "ledgerlink",
		CredentialKey: DefaultCredentialKey,
		Refresh: RefreshConfig{
			LeadWindow:     DefaultRefreshLeadWindow,
			CheckInterval:  DefaultCheckInterval,
			ForceInterval:  DefaultForceInterval,
			RequestTimeout: DefaultRequestTimeout,
			LockTTL:        DefaultLockTTL,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Refresh.LeadWindow < 0 {
		return fmt.Errorf("core: refresh.lead_window must not be negative")
	}
	if c.Refresh.CheckInterval < 0 {
		return fmt.Errorf("core: refresh.check_interval must not be negative")
	}
	if c.Refresh.ForceInterval < 0 {
		return fmt.Errorf("core: refresh.force_interval must not be negative")
	}
	return nil
}

func (c Config) credentialKey() string {
	key := strings.TrimSpace(c.CredentialKey)
	if key == "" {
		return DefaultCredentialKey
	}
	return key
}
