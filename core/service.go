package core

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"golang.org/x/sync/singleflight"
)

func categoryForCallbackError(code string) goerrors.Category {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "access_denied":
		return goerrors.CategoryAuthz
	default:
		return goerrors.CategoryAuth
	}
}

// Service owns the provider credential lifecycle: authorization redirect,
// callback completion, proactive refresh, and the audit trail. The rest of
// the application only calls EnsureFresh and Refresh(force).
type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	credentialStore CredentialStore
	refreshLogStore RefreshLogStore
	oauthStateStore OAuthStateStore
	gateway         TokenGateway
	locker          RefreshLocker
	refreshGroup    singleflight.Group
	nowFn           func() time.Time
}

func NewService(cfg Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("ledgerlink", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("ledgerlink"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.oauthStateStore == nil {
		builder.oauthStateStore = NewMemoryOAuthStateStore(defaultOAuthStateTTL)
	}
	if builder.locker == nil {
		builder.locker = NewMemoryRefreshLocker()
	}
	if builder.nowFn == nil {
		builder.nowFn = func() time.Time { return time.Now().UTC() }
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	return &Service{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorMapper:     builder.errorMapper,
		configProvider:  builder.configProvider,
		optionsResolver: builder.optionsResolver,
		credentialStore: builder.credentialStore,
		refreshLogStore: builder.refreshLogStore,
		oauthStateStore: builder.oauthStateStore,
		gateway:         builder.gateway,
		locker:          builder.locker,
		nowFn:           builder.nowFn,
	}, nil
}

func Setup(cfg Config, options ...Option) (*Service, error) {
	return NewService(cfg, options...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) now() time.Time {
	if s == nil || s.nowFn == nil {
		return time.Now().UTC()
	}
	return s.nowFn().UTC()
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

// ConfigureClient records the operator-submitted provider application
// credentials, creating the singleton record on first submit.
func (s *Service) ConfigureClient(ctx context.Context, clientID, clientSecret string) (credentials Credentials, err error) {
	startedAt := s.now()
	fields := map[string]any{
		"credential_key": s.config.credentialKey(),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "configure_client", err, fields)
	}()

	if s == nil || s.credentialStore == nil {
		err = s.mapError(fmt.Errorf("core: credential store is not configured"))
		return Credentials{}, err
	}
	clientID = strings.TrimSpace(clientID)
	clientSecret = strings.TrimSpace(clientSecret)
	if clientID == "" || clientSecret == "" {
		err = s.mapError(fmt.Errorf("core: client id and client secret are required"))
		return Credentials{}, err
	}

	credentials, storeErr := s.credentialStore.UpsertClient(ctx, ConfigureClientInput{
		Key:          s.config.credentialKey(),
		ClientID:     clientID,
		ClientSecret: clientSecret,
	})
	if storeErr != nil {
		err = s.mapError(storeErr)
		return Credentials{}, err
	}
	return credentials, nil
}

// BeginAuthorization builds the provider authorize URL and stores the
// one-time state nonce bound to this attempt.
func (s *Service) BeginAuthorization(ctx context.Context, req BeginAuthorizationRequest) (response BeginAuthorizationResponse, err error) {
	startedAt := s.now()
	fields := map[string]any{
		"credential_key": s.config.credentialKey(),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "begin_authorization", err, fields)
	}()

	if s == nil || s.credentialStore == nil {
		err = s.mapError(fmt.Errorf("core: credential store is not configured"))
		return BeginAuthorizationResponse{}, err
	}
	credentials, loadErr := s.credentialStore.Get(ctx, s.config.credentialKey())
	if loadErr != nil {
		err = s.mapError(loadErr)
		return BeginAuthorizationResponse{}, err
	}
	if !credentials.HasClientCredentials() {
		err = s.mapError(fmt.Errorf("core: client credentials are required before authorization"))
		return BeginAuthorizationResponse{}, err
	}

	authorizeURL := strings.TrimSpace(s.config.Provider.AuthorizeURL)
	if authorizeURL == "" {
		err = s.mapError(fmt.Errorf("core: provider authorize_url is required"))
		return BeginAuthorizationResponse{}, err
	}
	redirectURI := strings.TrimSpace(req.RedirectURI)
	if redirectURI == "" {
		redirectURI = strings.TrimSpace(s.config.Provider.RedirectURI)
	}

	state, stateErr := GenerateState()
	if stateErr != nil {
		err = s.mapError(stateErr)
		return BeginAuthorizationResponse{}, err
	}
	now := s.now()
	if saveErr := s.oauthStateStore.Save(ctx, s.config.credentialKey(), OAuthStateRecord{
		Nonce:       state,
		OriginURL:   strings.TrimSpace(req.OriginURL),
		RedirectURI: redirectURI,
		CreatedAt:   now,
	}); saveErr != nil {
		err = s.mapError(saveErr)
		return BeginAuthorizationResponse{}, err
	}

	parsed, parseErr := url.Parse(authorizeURL)
	if parseErr != nil {
		err = s.mapError(fmt.Errorf("core: invalid provider authorize_url: %w", parseErr))
		return BeginAuthorizationResponse{}, err
	}
	query := parsed.Query()
	query.Set("response_type", "code")
	query.Set("client_id", credentials.ClientID)
	query.Set("state", state)
	if redirectURI != "" {
		query.Set("redirect_uri", redirectURI)
	}
	parsed.RawQuery = query.Encode()

	return BeginAuthorizationResponse{URL: parsed.String(), State: state}, nil
}

// CompleteCallback consumes the provider redirect. Ordering follows the
// authorization contract: provider error first, then absent code (a no-op),
// then state validation, then the code exchange. Failures after step two
// never partially commit credentials.
func (s *Service) CompleteCallback(ctx context.Context, req CallbackRequest) (completion CallbackCompletion, err error) {
	startedAt := s.now()
	fields := map[string]any{
		"credential_key": s.config.credentialKey(),
	}
	defer func() {
		if !completion.Pending {
			s.observeOperation(ctx, startedAt, "complete_callback", err, fields)
		}
	}()

	if s == nil || s.credentialStore == nil || s.gateway == nil {
		err = s.mapError(fmt.Errorf("core: credential store and token gateway are required"))
		return CallbackCompletion{}, err
	}

	if providerError := strings.TrimSpace(req.Error); providerError != "" {
		description := strings.TrimSpace(req.ErrorDescription)
		if description == "" {
			description = "authorization was rejected by the provider"
		}
		err = s.mapError(newLinkError(
			fmt.Sprintf("core: authorization failed: %s: %s", providerError, description),
			categoryForCallbackError(providerError),
			LinkErrorReconnectRequired,
		))
		return CallbackCompletion{}, err
	}

	if strings.TrimSpace(req.Code) == "" {
		// The provider has not redirected back yet; nothing to do.
		return CallbackCompletion{Pending: true}, nil
	}

	if stateErr := s.validateCallbackState(ctx, req); stateErr != nil {
		err = s.mapError(stateErr)
		return CallbackCompletion{}, err
	}

	credentials, loadErr := s.credentialStore.Get(ctx, s.config.credentialKey())
	if loadErr != nil {
		err = s.mapError(loadErr)
		return CallbackCompletion{}, err
	}
	if !credentials.HasClientCredentials() {
		err = s.mapError(fmt.Errorf("core: client credentials are required before completing authorization"))
		return CallbackCompletion{}, err
	}

	redirectURI := strings.TrimSpace(req.RedirectURI)
	if redirectURI == "" {
		redirectURI = strings.TrimSpace(s.config.Provider.RedirectURI)
	}

	result, exchangeErr := s.gateway.ExchangeCode(ctx, ClientCredentials{
		ClientID:     credentials.ClientID,
		ClientSecret: credentials.ClientSecret,
	}, strings.TrimSpace(req.Code), redirectURI)
	if exchangeErr != nil {
		err = s.mapError(exchangeErr)
		return CallbackCompletion{}, err
	}

	if validateErr := ValidateAccessToken(result.AccessToken); validateErr != nil {
		err = s.mapError(validateErr)
		return CallbackCompletion{}, err
	}
	if validateErr := ValidateRefreshToken(result.RefreshToken); validateErr != nil {
		err = s.mapError(validateErr)
		return CallbackCompletion{}, err
	}

	saved, saveErr := s.credentialStore.Replace(ctx, ReplaceCredentialsInput{
		Key:          s.config.credentialKey(),
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresAt:    result.ExpiresAt,
		Status:       LinkStatusActive,
	})
	if saveErr != nil {
		err = s.mapError(saveErr)
		return CallbackCompletion{}, err
	}

	// The nonce is single use: discard it only after a successful exchange.
	if deleteErr := s.oauthStateStore.Delete(ctx, s.config.credentialKey()); deleteErr != nil {
		s.logWarn(ctx, "failed to discard consumed oauth state", map[string]any{
			"credential_key": s.config.credentialKey(),
			"error":          deleteErr.Error(),
		})
	}

	return CallbackCompletion{Credentials: saved}, nil
}

func (s *Service) validateCallbackState(ctx context.Context, req CallbackRequest) error {
	if s.oauthStateStore == nil {
		return nil
	}
	stored, found, err := s.oauthStateStore.Pending(ctx, s.config.credentialKey())
	if err != nil {
		return err
	}
	if !found {
		if strings.TrimSpace(req.State) != "" {
			// The attempt state was lost (expired storage, different node).
			// The exchange code is tamper-evident on its own, so this is a
			// warning rather than a hard failure.
			s.logWarn(ctx, "oauth callback state missing from store", map[string]any{
				"credential_key": s.config.credentialKey(),
			})
		}
		return nil
	}
	return ValidateCallbackState(s.now(), req.State, &stored)
}

// MigrateLegacyToken upgrades a legacy single-token credential to the
// refresh-token flow.
func (s *Service) MigrateLegacyToken(ctx context.Context) (credentials Credentials, err error) {
	startedAt := s.now()
	fields := map[string]any{
		"credential_key": s.config.credentialKey(),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "migrate_legacy_token", err, fields)
	}()

	if s == nil || s.credentialStore == nil || s.gateway == nil {
		err = s.mapError(fmt.Errorf("core: credential store and token gateway are required"))
		return Credentials{}, err
	}
	current, loadErr := s.credentialStore.Get(ctx, s.config.credentialKey())
	if loadErr != nil {
		err = s.mapError(loadErr)
		return Credentials{}, err
	}
	if !current.IsLegacyToken {
		err = s.mapError(fmt.Errorf("core: credentials are not a legacy token"))
		return Credentials{}, err
	}
	if !current.HasClientCredentials() || strings.TrimSpace(current.AccessToken) == "" {
		err = s.mapError(ErrMissingCredentials)
		return Credentials{}, err
	}

	result, migrateErr := s.gateway.MigrateLegacyToken(ctx, ClientCredentials{
		ClientID:     current.ClientID,
		ClientSecret: current.ClientSecret,
	}, current.AccessToken)
	if migrateErr != nil {
		err = s.mapError(migrateErr)
		return Credentials{}, err
	}
	if validateErr := ValidateAccessToken(result.AccessToken); validateErr != nil {
		err = s.mapError(validateErr)
		return Credentials{}, err
	}
	if validateErr := ValidateRefreshToken(result.RefreshToken); validateErr != nil {
		err = s.mapError(validateErr)
		return Credentials{}, err
	}

	saved, saveErr := s.credentialStore.Replace(ctx, ReplaceCredentialsInput{
		Key:          s.config.credentialKey(),
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresAt:    result.ExpiresAt,
		Status:       LinkStatusActive,
	})
	if saveErr != nil {
		err = s.mapError(saveErr)
		return Credentials{}, err
	}
	return saved, nil
}

// Disconnect marks the link as disconnected. The record itself survives so
// the operator can re-authorize without re-entering client credentials.
func (s *Service) Disconnect(ctx context.Context, reason string) (err error) {
	startedAt := s.now()
	fields := map[string]any{
		"credential_key": s.config.credentialKey(),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "disconnect", err, fields)
	}()

	if s == nil || s.credentialStore == nil {
		err = s.mapError(fmt.Errorf("core: credential store is not configured"))
		return err
	}
	if updateErr := s.credentialStore.UpdateStatus(ctx, s.config.credentialKey(), LinkStatusDisconnected, strings.TrimSpace(reason)); updateErr != nil {
		err = s.mapError(updateErr)
		return err
	}
	return nil
}

// LinkStatus reports the current lifecycle state for status UIs and callers.
func (s *Service) LinkStatus(ctx context.Context) (LinkReport, error) {
	if s == nil || s.credentialStore == nil {
		return LinkReport{}, fmt.Errorf("core: credential store is not configured")
	}
	credentials, err := s.credentialStore.Get(ctx, s.config.credentialKey())
	if err != nil {
		if errors.Is(err, ErrCredentialsNotFound) {
			return LinkReport{Configured: false}, nil
		}
		return LinkReport{}, s.mapError(err)
	}

	report := LinkReport{
		Configured:        credentials.HasClientCredentials(),
		Status:            credentials.Status,
		Freshness:         ResolveTokenFreshness(s.now(), credentials, s.config.Refresh.LeadWindow),
		ExpiresAt:         credentials.ExpiresAt,
		NextRefreshDue:    NextRefreshDue(credentials, s.config.Refresh.LeadWindow),
		RequiresReconnect: credentials.Status == LinkStatusReconnectRequired,
		IsLegacyToken:     credentials.IsLegacyToken,
	}
	if s.refreshLogStore != nil {
		entries, listErr := s.refreshLogStore.List(ctx, s.config.credentialKey(), 1)
		if listErr != nil {
			s.logWarn(ctx, "failed to load last refresh log entry", map[string]any{
				"credential_key": s.config.credentialKey(),
				"error":          listErr.Error(),
			})
		} else if len(entries) > 0 {
			last := entries[0]
			report.LastRefresh = &last
		}
	}
	return report, nil
}

// RefreshLog returns the most recent refresh attempts, newest first.
func (s *Service) RefreshLog(ctx context.Context, limit int) ([]RefreshLogEntry, error) {
	if s == nil || s.refreshLogStore == nil {
		return nil, fmt.Errorf("core: refresh log store is not configured")
	}
	entries, err := s.refreshLogStore.List(ctx, s.config.credentialKey(), limit)
	if err != nil {
		return nil, s.mapError(err)
	}
	return entries, nil
}
