// Package ledgerlink manages the OAuth credential lifecycle for the
// accounting provider link: client configuration, the authorization
// handshake, proactive token refresh, and the refresh audit trail.
package ledgerlink

import "github.com/kontorhq/ledgerlink/core"

type Config = core.Config

type ProviderConfig = core.ProviderConfig

type RefreshConfig = core.RefreshConfig

type Option = core.Option

type Service = core.Service

type Credentials = core.Credentials
type LinkStatus = core.LinkStatus
type LinkReport = core.LinkReport
type RefreshLogEntry = core.RefreshLogEntry
type RefreshTrigger = core.RefreshTrigger
type TokenFreshness = core.TokenFreshness

type CredentialStore = core.CredentialStore
type RefreshLogStore = core.RefreshLogStore
type OAuthStateStore = core.OAuthStateStore
type TokenGateway = core.TokenGateway
type RefreshLocker = core.RefreshLocker

type BeginAuthorizationRequest = core.BeginAuthorizationRequest
type BeginAuthorizationResponse = core.BeginAuthorizationResponse
type CallbackRequest = core.CallbackRequest
type CallbackCompletion = core.CallbackCompletion
type RefreshRequest = core.RefreshRequest
type RefreshOutcome = core.RefreshOutcome

type RefreshScheduler = core.RefreshScheduler

const (
	LinkStatusPendingAuth       = core.LinkStatusPendingAuth
	LinkStatusActive            = core.LinkStatusActive
	LinkStatusReconnectRequired = core.LinkStatusReconnectRequired
	LinkStatusDisconnected      = core.LinkStatusDisconnected
)

var (
	WithLogger          = core.WithLogger
	WithLoggerProvider  = core.WithLoggerProvider
	WithMetricsRecorder = core.WithMetricsRecorder
	WithErrorMapper     = core.WithErrorMapper
	WithConfigProvider  = core.WithConfigProvider
	WithOptionsResolver = core.WithOptionsResolver
	WithCredentialStore = core.WithCredentialStore
	WithRefreshLogStore = core.WithRefreshLogStore
	WithOAuthStateStore = core.WithOAuthStateStore
	WithTokenGateway    = core.WithTokenGateway
	WithRefreshLocker   = core.WithRefreshLocker
	WithClock           = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}

func NewRefreshScheduler(service *Service, opts ...core.SchedulerOption) (*RefreshScheduler, error) {
	return core.NewRefreshScheduler(service, opts...)
}
