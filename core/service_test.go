package core

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type fakeCredentialStore struct {
	mu           sync.Mutex
	record       *Credentials
	getCalls     int
	updateCalls  int
	failGet      error
	failUpdate   error
	conflictOnce bool
	// getGate runs outside the store mutex so a test can hold one reader
	// inside Get while other callers keep making progress.
	getGate func()
}

func (s *fakeCredentialStore) Get(context.Context, string) (Credentials, error) {
	s.mu.Lock()
	s.getCalls++
	gate := s.getGate
	failGet := s.failGet
	var record Credentials
	found := s.record != nil
	if found {
		record = *s.record
	}
	s.mu.Unlock()

	if gate != nil {
		gate()
	}
	if failGet != nil {
		return Credentials{}, failGet
	}
	if !found {
		return Credentials{}, ErrCredentialsNotFound
	}
	return record, nil
}

func (s *fakeCredentialStore) UpsertClient(_ context.Context, in ConfigureClientInput) (Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if s.record == nil {
		s.record = &Credentials{
			Key:          in.Key,
			ClientID:     in.ClientID,
			ClientSecret: in.ClientSecret,
			Status:       LinkStatusPendingAuth,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		return *s.record, nil
	}
	s.record.ClientID = in.ClientID
	s.record.ClientSecret = in.ClientSecret
	s.record.UpdatedAt = now
	return *s.record, nil
}

func (s *fakeCredentialStore) Replace(_ context.Context, in ReplaceCredentialsInput) (Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record == nil {
		return Credentials{}, ErrCredentialsNotFound
	}
	s.record.AccessToken = in.AccessToken
	s.record.RefreshToken = in.RefreshToken
	s.record.ExpiresAt = in.ExpiresAt
	s.record.IsLegacyToken = in.IsLegacyToken
	s.record.Status = in.Status
	s.record.LastError = ""
	s.record.UpdatedAt = time.Now().UTC()
	return *s.record, nil
}

func (s *fakeCredentialStore) UpdateTokens(_ context.Context, in UpdateTokensInput) (Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateCalls++
	if s.failUpdate != nil {
		return Credentials{}, s.failUpdate
	}
	if s.record == nil {
		return Credentials{}, ErrCredentialsNotFound
	}
	if s.conflictOnce {
		s.conflictOnce = false
		return Credentials{}, ErrCredentialsConflict
	}
	if s.record.AccessToken != in.ExpectedAccessToken {
		return Credentials{}, ErrCredentialsConflict
	}
	s.record.AccessToken = in.AccessToken
	if strings.TrimSpace(in.RefreshToken) != "" {
		s.record.RefreshToken = in.RefreshToken
	}
	s.record.ExpiresAt = in.ExpiresAt
	s.record.Status = LinkStatusActive
	s.record.LastError = ""
	s.record.UpdatedAt = time.Now().UTC()
	return *s.record, nil
}

func (s *fakeCredentialStore) UpdateStatus(_ context.Context, _ string, status LinkStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record == nil {
		return ErrCredentialsNotFound
	}
	return s.record.TransitionTo(status, reason, time.Now().UTC())
}

func (s *fakeCredentialStore) snapshot() Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record == nil {
		return Credentials{}
	}
	return *s.record
}

type fakeGateway struct {
	mu            sync.Mutex
	exchangeCalls int
	refreshCalls  int
	migrateCalls  int
	result        TokenResult
	err           error
}

func (g *fakeGateway) ExchangeCode(context.Context, ClientCredentials, string, string) (TokenResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.exchangeCalls++
	return g.result, g.err
}

func (g *fakeGateway) Refresh(context.Context, ClientCredentials, string) (TokenResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refreshCalls++
	return g.result, g.err
}

func (g *fakeGateway) MigrateLegacyToken(context.Context, ClientCredentials, string) (TokenResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.migrateCalls++
	return g.result, g.err
}

func (g *fakeGateway) calls() (int, int, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.exchangeCalls, g.refreshCalls, g.migrateCalls
}

type fakeRefreshLogStore struct {
	mu      sync.Mutex
	entries []RefreshLogEntry
	failure error
}

func (s *fakeRefreshLogStore) Append(_ context.Context, in AppendRefreshLogInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure != nil {
		return s.failure
	}
	s.entries = append(s.entries, RefreshLogEntry{
		ID:            fmt.Sprintf("entry-%d", len(s.entries)+1),
		Timestamp:     time.Now().UTC(),
		Success:       in.Success,
		Message:       in.Message,
		CorrelationID: in.CorrelationID,
		TokenLength:   in.TokenLength,
		Forced:        in.Forced,
	})
	return nil
}

func (s *fakeRefreshLogStore) List(_ context.Context, _ string, limit int) ([]RefreshLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RefreshLogEntry, 0, len(s.entries))
	for i := len(s.entries) - 1; i >= 0; i-- {
		out = append(out, s.entries[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *fakeRefreshLogStore) all() []RefreshLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RefreshLogEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

type serviceFixture struct {
	service *Service
	store   *fakeCredentialStore
	gateway *fakeGateway
	logs    *fakeRefreshLogStore
	states  *MemoryOAuthStateStore
	now     time.Time
}

func newServiceFixture(t *testing.T, options ...Option) *serviceFixture {
	t.Helper()
	fixture := &serviceFixture{
		store:   &fakeCredentialStore{},
		gateway: &fakeGateway{},
		logs:    &fakeRefreshLogStore{},
		states:  NewMemoryOAuthStateStore(defaultOAuthStateTTL),
		now:     time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}

	cfg := Config{
		Provider: ProviderConfig{
			AuthorizeURL: "https://provider.example.com/oauth/authorize",
			TokenURL:     "https://provider.example.com/oauth/token",
			MigrationURL: "https://provider.example.com/oauth/migrate",
			RedirectURI:  "https://app.example.com/callback",
		},
	}
	base := []Option{
		WithCredentialStore(fixture.store),
		WithRefreshLogStore(fixture.logs),
		WithOAuthStateStore(fixture.states),
		WithTokenGateway(fixture.gateway),
		WithClock(func() time.Time { return fixture.now }),
	}
	service, err := NewService(cfg, append(base, options...)...)
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	fixture.service = service
	return fixture
}

func (f *serviceFixture) seedActive(t *testing.T, accessToken string, expiresAt *time.Time) {
	t.Helper()
	f.store.record = &Credentials{
		Key:          DefaultCredentialKey,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		AccessToken:  accessToken,
		RefreshToken: strings.Repeat("r", RefreshTokenCanonicalLength),
		ExpiresAt:    expiresAt,
		Status:       LinkStatusActive,
		CreatedAt:    f.now.Add(-24 * time.Hour),
		UpdatedAt:    f.now.Add(-time.Hour),
	}
}

func TestConfigureClient(t *testing.T) {
	ctx := context.Background()

	t.Run("creates_singleton_record", func(t *testing.T) {
		fixture := newServiceFixture(t)
		credentials, err := fixture.service.ConfigureClient(ctx, "client-id", "client-secret")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if credentials.Status != LinkStatusPendingAuth {
			t.Fatalf("expected pending_auth, got %s", credentials.Status)
		}
		if credentials.Key != DefaultCredentialKey {
			t.Fatalf("expected default key, got %q", credentials.Key)
		}
	})

	t.Run("updates_in_place_without_touching_tokens", func(t *testing.T) {
		fixture := newServiceFixture(t)
		expiresAt := fixture.now.Add(2 * time.Hour)
		fixture.seedActive(t, strings.Repeat("a", 120), &expiresAt)

		if _, err := fixture.service.ConfigureClient(ctx, "new-client", "new-secret"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		record := fixture.store.snapshot()
		if record.ClientID != "new-client" {
			t.Fatalf("expected updated client id, got %q", record.ClientID)
		}
		if record.AccessToken != strings.Repeat("a", 120) {
			t.Fatal("token material must survive a client credential update")
		}
	})

	t.Run("rejects_blank_input", func(t *testing.T) {
		fixture := newServiceFixture(t)
		if _, err := fixture.service.ConfigureClient(ctx, "  ", "secret"); err == nil {
			t.Fatal("expected validation error")
		}
		var richErr *goerrors.Error
		_, err := fixture.service.ConfigureClient(ctx, "client", "")
		if !goerrors.As(err, &richErr) {
			t.Fatalf("expected mapped error envelope, got %T", err)
		}
		if richErr.TextCode != LinkErrorBadInput {
			t.Fatalf("expected %s, got %s", LinkErrorBadInput, richErr.TextCode)
		}
	})
}

func TestBeginAuthorization(t *testing.T) {
	ctx := context.Background()

	t.Run("builds_authorize_url_and_saves_state", func(t *testing.T) {
		fixture := newServiceFixture(t)
		fixture.seedActive(t, "", nil)

		response, err := fixture.service.BeginAuthorization(ctx, BeginAuthorizationRequest{
			OriginURL: "https://app.example.com/settings",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		parsed, parseErr := url.Parse(response.URL)
		if parseErr != nil {
			t.Fatalf("authorize url did not parse: %v", parseErr)
		}
		query := parsed.Query()
		if query.Get("response_type") != "code" {
			t.Fatalf("expected response_type=code, got %q", query.Get("response_type"))
		}
		if query.Get("client_id") != "client-id" {
			t.Fatalf("expected client_id, got %q", query.Get("client_id"))
		}
		if query.Get("state") != response.State {
			t.Fatal("url state must match the returned state")
		}
		if query.Get("redirect_uri") != "https://app.example.com/callback" {
			t.Fatalf("expected configured redirect uri, got %q", query.Get("redirect_uri"))
		}

		stored, found, stateErr := fixture.states.Pending(ctx, DefaultCredentialKey)
		if stateErr != nil || !found {
			t.Fatalf("expected pending state, found=%t err=%v", found, stateErr)
		}
		if stored.Nonce != response.State {
			t.Fatal("stored nonce must match the issued state")
		}
	})

	t.Run("requires_client_credentials", func(t *testing.T) {
		fixture := newServiceFixture(t)
		fixture.store.record = &Credentials{Key: DefaultCredentialKey, Status: LinkStatusPendingAuth}

		if _, err := fixture.service.BeginAuthorization(ctx, BeginAuthorizationRequest{}); err == nil {
			t.Fatal("expected error without client credentials")
		}
	})

	t.Run("requires_configured_record", func(t *testing.T) {
		fixture := newServiceFixture(t)
		_, err := fixture.service.BeginAuthorization(ctx, BeginAuthorizationRequest{})
		var richErr *goerrors.Error
		if !goerrors.As(err, &richErr) || richErr.TextCode != LinkErrorNotConfigured {
			t.Fatalf("expected %s, got %v", LinkErrorNotConfigured, err)
		}
	})
}

func TestCompleteCallback(t *testing.T) {
	ctx := context.Background()

	newAccess := func(t *testing.T, expires time.Time) string {
		return testJWT(t, map[string]any{"exp": expires.Unix()})
	}

	t.Run("provider_error_takes_precedence", func(t *testing.T) {
		fixture := newServiceFixture(t)
		fixture.seedActive(t, "", nil)

		_, err := fixture.service.CompleteCallback(ctx, CallbackRequest{
			Code:  "also-present",
			Error: "access_denied",
		})
		var richErr *goerrors.Error
		if !goerrors.As(err, &richErr) {
			t.Fatalf("expected error envelope, got %v", err)
		}
		if richErr.TextCode != LinkErrorReconnectRequired {
			t.Fatalf("expected %s, got %s", LinkErrorReconnectRequired, richErr.TextCode)
		}
		if richErr.Category != goerrors.CategoryAuthz {
			t.Fatalf("expected authz category for access_denied, got %s", richErr.Category)
		}
		if exchanges, _, _ := fixture.gateway.calls(); exchanges != 0 {
			t.Fatal("provider error must short-circuit before the exchange")
		}
	})

	t.Run("missing_code_is_pending_not_error", func(t *testing.T) {
		fixture := newServiceFixture(t)
		completion, err := fixture.service.CompleteCallback(ctx, CallbackRequest{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !completion.Pending {
			t.Fatal("expected pending completion")
		}
	})

	t.Run("state_mismatch_rejects_and_keeps_nonce", func(t *testing.T) {
		fixture := newServiceFixture(t)
		fixture.seedActive(t, "", nil)
		if err := fixture.states.Save(ctx, DefaultCredentialKey, OAuthStateRecord{Nonce: "expected-nonce"}); err != nil {
			t.Fatalf("seed state: %v", err)
		}

		_, err := fixture.service.CompleteCallback(ctx, CallbackRequest{Code: "auth-code", State: "tampered"})
		var richErr *goerrors.Error
		if !goerrors.As(err, &richErr) || richErr.TextCode != LinkErrorStateMismatch {
			t.Fatalf("expected %s, got %v", LinkErrorStateMismatch, err)
		}
		if exchanges, _, _ := fixture.gateway.calls(); exchanges != 0 {
			t.Fatal("mismatched state must block the exchange")
		}
		if _, found, _ := fixture.states.Pending(ctx, DefaultCredentialKey); !found {
			t.Fatal("nonce must survive a failed validation")
		}
	})

	t.Run("missing_stored_state_proceeds", func(t *testing.T) {
		fixture := newServiceFixture(t)
		fixture.seedActive(t, "", nil)
		expires := fixture.now.Add(time.Hour)
		fixture.gateway.result = TokenResult{
			AccessToken:  newAccess(t, expires),
			RefreshToken: strings.Repeat("n", RefreshTokenCanonicalLength),
			ExpiresAt:    &expires,
		}

		completion, err := fixture.service.CompleteCallback(ctx, CallbackRequest{Code: "auth-code", State: "orphaned"})
		if err != nil {
			t.Fatalf("expected orphaned state to proceed, got %v", err)
		}
		if completion.Credentials.Status != LinkStatusActive {
			t.Fatalf("expected active link, got %s", completion.Credentials.Status)
		}
	})

	t.Run("successful_exchange_replaces_tokens_and_consumes_state", func(t *testing.T) {
		fixture := newServiceFixture(t)
		fixture.seedActive(t, "", nil)
		if err := fixture.states.Save(ctx, DefaultCredentialKey, OAuthStateRecord{Nonce: "nonce-1"}); err != nil {
			t.Fatalf("seed state: %v", err)
		}
		expires := fixture.now.Add(time.Hour)
		newRefresh := strings.Repeat("n", RefreshTokenCanonicalLength)
		fixture.gateway.result = TokenResult{
			AccessToken:  newAccess(t, expires),
			RefreshToken: newRefresh,
			ExpiresAt:    &expires,
		}

		completion, err := fixture.service.CompleteCallback(ctx, CallbackRequest{Code: "auth-code", State: "nonce-1"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if completion.Credentials.RefreshToken != newRefresh {
			t.Fatal("expected refresh token replaced")
		}
		if completion.Credentials.Status != LinkStatusActive {
			t.Fatalf("expected active link, got %s", completion.Credentials.Status)
		}
		if _, found, _ := fixture.states.Pending(ctx, DefaultCredentialKey); found {
			t.Fatal("nonce must be consumed after success")
		}
	})

	t.Run("short_access_token_is_rejected_and_not_persisted", func(t *testing.T) {
		fixture := newServiceFixture(t)
		fixture.seedActive(t, "previous-token", nil)
		fixture.gateway.result = TokenResult{
			AccessToken:  "a.b.c",
			RefreshToken: strings.Repeat("n", RefreshTokenCanonicalLength),
		}

		_, err := fixture.service.CompleteCallback(ctx, CallbackRequest{Code: "auth-code"})
		var richErr *goerrors.Error
		if !goerrors.As(err, &richErr) || richErr.TextCode != LinkErrorInvalidToken {
			t.Fatalf("expected %s, got %v", LinkErrorInvalidToken, err)
		}
		if fixture.store.snapshot().AccessToken != "previous-token" {
			t.Fatal("stored token must not change when the new one is rejected")
		}
	})
}

func TestMigrateLegacyToken(t *testing.T) {
	ctx := context.Background()

	t.Run("upgrades_legacy_record", func(t *testing.T) {
		fixture := newServiceFixture(t)
		fixture.store.record = &Credentials{
			Key:           DefaultCredentialKey,
			ClientID:      "client-id",
			ClientSecret:  "client-secret",
			AccessToken:   "legacy-token",
			IsLegacyToken: true,
			Status:        LinkStatusActive,
		}
		expires := fixture.now.Add(time.Hour)
		fixture.gateway.result = TokenResult{
			AccessToken:  testJWT(t, map[string]any{"exp": expires.Unix()}),
			RefreshToken: strings.Repeat("n", RefreshTokenCanonicalLength),
			ExpiresAt:    &expires,
		}

		credentials, err := fixture.service.MigrateLegacyToken(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if credentials.IsLegacyToken {
			t.Fatal("expected legacy flag cleared")
		}
		if !credentials.HasRefreshToken() {
			t.Fatal("expected refresh token after migration")
		}
		if _, _, migrations := fixture.gateway.calls(); migrations != 1 {
			t.Fatalf("expected one migration call, got %d", migrations)
		}
	})

	t.Run("rejects_non_legacy_record", func(t *testing.T) {
		fixture := newServiceFixture(t)
		fixture.seedActive(t, strings.Repeat("a", 120), nil)

		if _, err := fixture.service.MigrateLegacyToken(ctx); err == nil {
			t.Fatal("expected error for non-legacy credentials")
		}
	})
}

func TestDisconnect(t *testing.T) {
	ctx := context.Background()
	fixture := newServiceFixture(t)
	fixture.seedActive(t, strings.Repeat("a", 120), nil)

	if err := fixture.service.Disconnect(ctx, "operator requested"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	record := fixture.store.snapshot()
	if record.Status != LinkStatusDisconnected {
		t.Fatalf("expected disconnected, got %s", record.Status)
	}
	if record.ClientID == "" {
		t.Fatal("client credentials must survive a disconnect")
	}
}

func TestLinkStatusReport(t *testing.T) {
	ctx := context.Background()

	t.Run("unconfigured", func(t *testing.T) {
		fixture := newServiceFixture(t)
		report, err := fixture.service.LinkStatus(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Configured {
			t.Fatal("expected unconfigured report")
		}
	})

	t.Run("active_with_fresh_token", func(t *testing.T) {
		fixture := newServiceFixture(t)
		expires := fixture.now.Add(3 * time.Hour)
		fixture.seedActive(t, strings.Repeat("a", 120), &expires)
		_ = fixture.logs.Append(ctx, AppendRefreshLogInput{Key: DefaultCredentialKey, Success: true, Message: "refreshed"})

		report, err := fixture.service.LinkStatus(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !report.Configured || report.Status != LinkStatusActive {
			t.Fatalf("unexpected report %+v", report)
		}
		if report.Freshness != FreshnessFresh {
			t.Fatalf("expected fresh token, got %s", report.Freshness)
		}
		if report.NextRefreshDue.IsZero() {
			t.Fatal("expected next refresh due for known expiry")
		}
		if report.LastRefresh == nil || !report.LastRefresh.Success {
			t.Fatal("expected last refresh entry")
		}
	})

	t.Run("reconnect_required_is_flagged", func(t *testing.T) {
		fixture := newServiceFixture(t)
		fixture.seedActive(t, strings.Repeat("a", 120), nil)
		fixture.store.record.Status = LinkStatusReconnectRequired

		report, err := fixture.service.LinkStatus(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !report.RequiresReconnect {
			t.Fatal("expected reconnect flag")
		}
	})
}
