package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// EnsureFresh returns credentials that are valid for provider API calls,
// refreshing first when the access token is due soon. It is the "get current
// valid credentials" entry point for the rest of the application.
func (s *Service) EnsureFresh(ctx context.Context) (Credentials, error) {
	outcome, err := s.Refresh(ctx, RefreshRequest{Trigger: RefreshTriggerOnDemand})
	if err != nil {
		return Credentials{}, err
	}
	return outcome.Credentials, nil
}

// Refresh runs one maybe-refresh pass. With Force unset it is idempotent
// under no-op: a fresh token produces zero network calls and returns the
// stored credentials unchanged. Concurrent callers for the same credential
// key share a single in-flight refresh through singleflight, so exactly one
// provider call is made and every caller observes its result.
func (s *Service) Refresh(ctx context.Context, req RefreshRequest) (outcome RefreshOutcome, err error) {
	if s == nil {
		return RefreshOutcome{}, fmt.Errorf("core: service is nil")
	}

	startedAt := s.now()
	correlationID := uuid.NewString()
	trigger := req.Trigger
	if trigger == "" {
		trigger = RefreshTriggerOnDemand
	}
	fields := map[string]any{
		"credential_key": s.config.credentialKey(),
		"trigger":        string(trigger),
		"correlation_id": correlationID,
		"forced":         req.Force,
	}
	defer func() {
		fields["attempted"] = outcome.Attempted
		fields["refreshed"] = outcome.Refreshed
		s.observeOperation(ctx, startedAt, "refresh", err, fields)
	}()

	// Forced passes fly separately from maybe-refresh passes: a forced call
	// must reach the provider even when a concurrent non-forced pass resolves
	// to a fresh no-op.
	flightKey := s.config.credentialKey()
	if req.Force {
		flightKey += "::forced"
	}
	value, groupErr, _ := s.refreshGroup.Do(flightKey, func() (any, error) {
		return s.refreshOnce(ctx, req.Force, correlationID)
	})
	if groupErr != nil {
		err = groupErr
		return RefreshOutcome{}, err
	}
	shared, ok := value.(RefreshOutcome)
	if !ok {
		err = s.mapError(fmt.Errorf("core: unexpected refresh result type %T", value))
		return RefreshOutcome{}, err
	}
	outcome = shared
	return outcome, nil
}

func (s *Service) refreshOnce(ctx context.Context, force bool, correlationID string) (RefreshOutcome, error) {
	if s.credentialStore == nil || s.gateway == nil {
		return RefreshOutcome{}, s.mapError(fmt.Errorf("core: credential store and token gateway are required"))
	}
	key := s.config.credentialKey()

	credentials, err := s.credentialStore.Get(ctx, key)
	if err != nil {
		return RefreshOutcome{}, s.mapError(err)
	}

	if !credentials.HasClientCredentials() || !credentials.HasRefreshToken() {
		s.appendRefreshLog(ctx, AppendRefreshLogInput{
			Key:           key,
			Success:       false,
			Message:       "missing client credentials or refresh token",
			CorrelationID: correlationID,
			Forced:        force,
		})
		s.markReconnectRequired(ctx, credentials, ErrMissingCredentials.Error())
		return RefreshOutcome{}, s.mapError(ErrMissingCredentials)
	}

	if !ShouldRefresh(s.now(), credentials, s.config.Refresh.LeadWindow, force) {
		return RefreshOutcome{Credentials: credentials, CorrelationID: correlationID}, nil
	}

	lockTTL := s.config.Refresh.LockTTL
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	unlock := func() {}
	if s.locker != nil {
		handle, lockErr := s.locker.Acquire(ctx, key, lockTTL)
		if lockErr != nil {
			return RefreshOutcome{}, s.mapError(lockErr)
		}
		unlock = func() { _ = handle.Unlock(ctx) }
	}
	defer unlock()

	// Another process may have refreshed while we waited on the lock.
	credentials, err = s.credentialStore.Get(ctx, key)
	if err != nil {
		return RefreshOutcome{}, s.mapError(err)
	}
	if !ShouldRefresh(s.now(), credentials, s.config.Refresh.LeadWindow, force) {
		return RefreshOutcome{Credentials: credentials, CorrelationID: correlationID}, nil
	}

	result, gatewayErr := s.gateway.Refresh(ctx, ClientCredentials{
		ClientID:     credentials.ClientID,
		ClientSecret: credentials.ClientSecret,
	}, credentials.RefreshToken)
	if gatewayErr != nil {
		// The gateway call failed outright: the stored record is not touched
		// at all, as opposed to a success response that merely omitted a new
		// refresh token.
		mapped := s.mapError(gatewayErr)
		s.appendRefreshLog(ctx, AppendRefreshLogInput{
			Key:           key,
			Success:       false,
			Message:       gatewayErr.Error(),
			CorrelationID: correlationID,
			Forced:        force,
		})
		if RequiresReconnect(mapped) {
			s.markReconnectRequired(ctx, credentials, gatewayErr.Error())
		}
		return RefreshOutcome{Attempted: true, CorrelationID: correlationID}, mapped
	}

	if validateErr := ValidateAccessToken(result.AccessToken); validateErr != nil {
		s.appendRefreshLog(ctx, AppendRefreshLogInput{
			Key:           key,
			Success:       false,
			Message:       validateErr.Error(),
			CorrelationID: correlationID,
			TokenLength:   len(strings.TrimSpace(result.AccessToken)),
			Forced:        force,
		})
		return RefreshOutcome{Attempted: true, CorrelationID: correlationID}, s.mapError(validateErr)
	}
	if newToken := strings.TrimSpace(result.RefreshToken); newToken != "" {
		if validateErr := ValidateRefreshToken(newToken); validateErr != nil {
			s.appendRefreshLog(ctx, AppendRefreshLogInput{
				Key:           key,
				Success:       false,
				Message:       validateErr.Error(),
				CorrelationID: correlationID,
				Forced:        force,
			})
			return RefreshOutcome{Attempted: true, CorrelationID: correlationID}, s.mapError(validateErr)
		}
	}

	updated, updateErr := s.credentialStore.UpdateTokens(ctx, UpdateTokensInput{
		Key:                 key,
		ExpectedAccessToken: credentials.AccessToken,
		AccessToken:         result.AccessToken,
		RefreshToken:        strings.TrimSpace(result.RefreshToken),
		ExpiresAt:           result.ExpiresAt,
	})
	if updateErr != nil {
		if isConflict(updateErr) {
			// A concurrent writer landed first; their token is newer than
			// the one this pass fetched. Observe their result instead of
			// overwriting it.
			current, reloadErr := s.credentialStore.Get(ctx, key)
			if reloadErr != nil {
				return RefreshOutcome{Attempted: true, CorrelationID: correlationID}, s.mapError(reloadErr)
			}
			s.logWarn(ctx, "refresh lost compare-and-swap, keeping concurrent result", map[string]any{
				"credential_key": key,
				"correlation_id": correlationID,
			})
			return RefreshOutcome{Credentials: current, Attempted: true, CorrelationID: correlationID}, nil
		}
		s.appendRefreshLog(ctx, AppendRefreshLogInput{
			Key:           key,
			Success:       false,
			Message:       updateErr.Error(),
			CorrelationID: correlationID,
			Forced:        force,
		})
		return RefreshOutcome{Attempted: true, CorrelationID: correlationID}, s.mapError(updateErr)
	}

	s.appendRefreshLog(ctx, AppendRefreshLogInput{
		Key:           key,
		Success:       true,
		Message:       refreshSuccessMessage(result),
		CorrelationID: correlationID,
		TokenLength:   len(result.AccessToken),
		Forced:        force,
	})

	return RefreshOutcome{
		Credentials:   updated,
		Attempted:     true,
		Refreshed:     true,
		CorrelationID: correlationID,
	}, nil
}

// appendRefreshLog is fire-and-forget: audit failures are logged and never
// fail the refresh outcome.
func (s *Service) appendRefreshLog(ctx context.Context, in AppendRefreshLogInput) {
	if s == nil || s.refreshLogStore == nil {
		return
	}
	if err := s.refreshLogStore.Append(ctx, in); err != nil {
		s.logWarn(ctx, "failed to append refresh log entry", map[string]any{
			"credential_key": in.Key,
			"correlation_id": in.CorrelationID,
			"error":          err.Error(),
		})
	}
}

// markReconnectRequired parks a previously authorized link. A record still in
// pending_auth or deliberately disconnected keeps its status: reconnect only
// applies to a link that worked before.
func (s *Service) markReconnectRequired(ctx context.Context, credentials Credentials, reason string) {
	if s == nil || s.credentialStore == nil {
		return
	}
	if credentials.Status != LinkStatusActive && credentials.Status != LinkStatusReconnectRequired {
		return
	}
	if err := s.credentialStore.UpdateStatus(ctx, credentials.Key, LinkStatusReconnectRequired, reason); err != nil {
		s.logWarn(ctx, "failed to mark link as reconnect required", map[string]any{
			"credential_key": credentials.Key,
			"error":          err.Error(),
		})
	}
}

func refreshSuccessMessage(result TokenResult) string {
	if strings.TrimSpace(result.RefreshToken) != "" {
		return "token refreshed, provider rotated refresh token"
	}
	return "token refreshed, refresh token unchanged"
}

func isConflict(err error) bool {
	return errors.Is(err, ErrCredentialsConflict)
}
