package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// ClientCredentials are the provider application credentials used for HTTP
// Basic auth on every token endpoint call.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
}

// TokenResult is the normalized outcome of a token endpoint call. An empty
// RefreshToken means the provider kept the previous one; it must never cause
// the stored refresh token to be blanked.
type TokenResult struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresAt    *time.Time
}

// TokenGateway performs the provider token endpoint calls. Implementations
// never return unclassified errors: every failure path yields an envelope the
// error mapper can translate (see gateway.ProviderError).
type TokenGateway interface {
	ExchangeCode(ctx context.Context, creds ClientCredentials, code string, redirectURI string) (TokenResult, error)
	Refresh(ctx context.Context, creds ClientCredentials, refreshToken string) (TokenResult, error)
	MigrateLegacyToken(ctx context.Context, creds ClientCredentials, accessToken string) (TokenResult, error)
}

type ConfigureClientInput struct {
	Key          string
	ClientID     string
	ClientSecret string
}

// ReplaceCredentialsInput fully replaces the token material on the singleton
// record. Used by the authorization callback and the legacy migration.
type ReplaceCredentialsInput struct {
	Key           string
	AccessToken   string
	RefreshToken  string
	ExpiresAt     *time.Time
	IsLegacyToken bool
	Status        LinkStatus
}

// UpdateTokensInput partially replaces token material. ExpectedAccessToken is
// the compare-and-swap guard: the write only lands if the stored access token
// still matches, so a concurrent refresh cannot overwrite a newer token with
// a stale one. An empty RefreshToken keeps the stored one.
type UpdateTokensInput struct {
	Key                 string
	ExpectedAccessToken string
	AccessToken         string
	RefreshToken        string
	ExpiresAt           *time.Time
}

type CredentialStore interface {
	Get(ctx context.Context, key string) (Credentials, error)
	// UpsertClient creates the singleton record on first operator submit, or
	// updates the client id/secret in place without touching token material.
	UpsertClient(ctx context.Context, in ConfigureClientInput) (Credentials, error)
	Replace(ctx context.Context, in ReplaceCredentialsInput) (Credentials, error)
	UpdateTokens(ctx context.Context, in UpdateTokensInput) (Credentials, error)
	UpdateStatus(ctx context.Context, key string, status LinkStatus, reason string) error
}

type AppendRefreshLogInput struct {
	Key           string
	Success       bool
	Message       string
	CorrelationID string
	TokenLength   int
	Forced        bool
}

// RefreshLogStore is append-only. Append failures are logged and swallowed by
// the caller; they never fail a refresh.
type RefreshLogStore interface {
	Append(ctx context.Context, in AppendRefreshLogInput) error
	List(ctx context.Context, key string, limit int) ([]RefreshLogEntry, error)
}

type LockHandle interface {
	Unlock(ctx context.Context) error
}

// RefreshLocker serializes writers of the shared credential record across
// processes. The memory implementation covers single-process deployments;
// multi-node hosts supply an advisory database lock.
type RefreshLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (LockHandle, error)
}

type BeginAuthorizationRequest struct {
	RedirectURI string
	OriginURL   string
	Metadata    map[string]any
}

type BeginAuthorizationResponse struct {
	URL   string
	State string
}

// CallbackRequest carries the provider redirect query parameters.
type CallbackRequest struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
	RedirectURI      string
}

// CallbackCompletion reports the callback outcome. Pending means the code has
// not arrived yet (not an error); the caller should keep waiting.
type CallbackCompletion struct {
	Pending     bool
	Credentials Credentials
}

type RefreshRequest struct {
	Force   bool
	Trigger RefreshTrigger
}

// RefreshOutcome describes one EnsureFresh/Refresh pass. Attempted is false
// for the fresh-token no-op path, which performs zero network calls.
type RefreshOutcome struct {
	Credentials   Credentials
	Attempted     bool
	Refreshed     bool
	CorrelationID string
}

// LinkReport is the read model surfaced to callers and status UIs.
type LinkReport struct {
	Configured        bool
	Status            LinkStatus
	Freshness         TokenFreshness
	ExpiresAt         *time.Time
	NextRefreshDue    time.Time
	RequiresReconnect bool
	IsLegacyToken     bool
	LastRefresh       *RefreshLogEntry
}

type JobExecutionMessage struct {
	JobID          string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}
