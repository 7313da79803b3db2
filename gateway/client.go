// Package gateway implements the provider token endpoint client: code
// exchange, refresh, and legacy token migration over OAuth2 form posts with
// HTTP Basic client authentication.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kontorhq/ledgerlink/core"
)

const (
	defaultTokenRequestTimeout = 30 * time.Second
	maxTokenResponseBodyBytes  = 1 << 20

	grantTypeAuthorizationCode = "authorization_code"
	grantTypeRefreshToken      = "refresh_token"
	grantTypeMigration         = "migration"
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type ClientConfig struct {
	TokenURL       string
	MigrationURL   string
	RequestTimeout time.Duration
	HTTPClient     HTTPDoer
	Now            func() time.Time
}

// TokenClient implements core.TokenGateway against a single provider.
type TokenClient struct {
	config     ClientConfig
	httpClient HTTPDoer
}

func NewTokenClient(cfg ClientConfig) *TokenClient {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultTokenRequestTimeout
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &TokenClient{
		config: ClientConfig{
			TokenURL:       strings.TrimSpace(cfg.TokenURL),
			MigrationURL:   strings.TrimSpace(cfg.MigrationURL),
			RequestTimeout: timeout,
			Now:            now,
		},
		httpClient: httpClient,
	}
}

func (c *TokenClient) ExchangeCode(ctx context.Context, creds core.ClientCredentials, code string, redirectURI string) (core.TokenResult, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return core.TokenResult{}, &ProviderError{
			Description: "authorization code is required",
			Kind:        core.FailureInvalidGrant,
		}
	}
	values := url.Values{}
	values.Set("grant_type", grantTypeAuthorizationCode)
	values.Set("code", code)
	if redirectURI = strings.TrimSpace(redirectURI); redirectURI != "" {
		values.Set("redirect_uri", redirectURI)
	}
	return c.doTokenRequest(ctx, c.config.TokenURL, creds, values)
}

func (c *TokenClient) Refresh(ctx context.Context, creds core.ClientCredentials, refreshToken string) (core.TokenResult, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return core.TokenResult{}, &ProviderError{
			Description: "refresh token is required",
			Kind:        core.FailureInvalidGrant,
		}
	}
	values := url.Values{}
	values.Set("grant_type", grantTypeRefreshToken)
	values.Set("refresh_token", refreshToken)
	return c.doTokenRequest(ctx, c.config.TokenURL, creds, values)
}

func (c *TokenClient) MigrateLegacyToken(ctx context.Context, creds core.ClientCredentials, accessToken string) (core.TokenResult, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return core.TokenResult{}, &ProviderError{
			Description: "legacy access token is required",
			Kind:        core.FailureInvalidGrant,
		}
	}
	endpoint := c.config.MigrationURL
	if endpoint == "" {
		endpoint = c.config.TokenURL
	}
	values := url.Values{}
	values.Set("grant_type", grantTypeMigration)
	values.Set("access_token", accessToken)
	return c.doTokenRequest(ctx, endpoint, creds, values)
}

func (c *TokenClient) doTokenRequest(ctx context.Context, endpoint string, creds core.ClientCredentials, values url.Values) (core.TokenResult, error) {
	if c == nil || c.httpClient == nil {
		return core.TokenResult{}, &ProviderError{
			Description: "http client is not configured",
			Kind:        core.FailureNetwork,
		}
	}
	clientID := strings.TrimSpace(creds.ClientID)
	clientSecret := strings.TrimSpace(creds.ClientSecret)
	if clientID == "" || clientSecret == "" {
		return core.TokenResult{}, &ProviderError{
			Description: "client id and client secret are required",
			Kind:        core.FailureInvalidClient,
		}
	}
	if strings.TrimSpace(endpoint) == "" {
		return core.TokenResult{}, &ProviderError{
			Description: "token endpoint url is required",
			Kind:        core.FailureNetwork,
		}
	}

	if ctx == nil {
		ctx = context.Background()
	}
	requestCtx := ctx
	cancel := func() {}
	if c.config.RequestTimeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, c.config.RequestTimeout)
	}
	defer cancel()

	httpReq, err := http.NewRequestWithContext(
		requestCtx,
		http.MethodPost,
		endpoint,
		strings.NewReader(values.Encode()),
	)
	if err != nil {
		return core.TokenResult{}, &ProviderError{
			Description: "build token request",
			Kind:        core.FailureNetwork,
			Cause:       err,
		}
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.SetBasicAuth(clientID, clientSecret)

	response, err := c.httpClient.Do(httpReq)
	if err != nil {
		return core.TokenResult{}, &ProviderError{
			Description: "token request failed",
			Kind:        core.FailureNetwork,
			Cause:       err,
		}
	}
	defer response.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(response.Body, maxTokenResponseBodyBytes+1))
	if readErr != nil {
		return core.TokenResult{}, &ProviderError{
			StatusCode:  response.StatusCode,
			Description: "read token response",
			Kind:        core.FailureNetwork,
			Cause:       readErr,
		}
	}
	if int64(len(body)) > maxTokenResponseBodyBytes {
		return core.TokenResult{}, &ProviderError{
			StatusCode:  response.StatusCode,
			Description: fmt.Sprintf("token response exceeds %d bytes", maxTokenResponseBodyBytes),
			Kind:        core.FailureInvalidResponseFormat,
		}
	}

	// Providers serve HTML error pages from proxies and maintenance windows;
	// the raw body is read first so a non-JSON payload classifies cleanly
	// instead of surfacing as a decode panic path.
	payload := map[string]any{}
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			return core.TokenResult{}, &ProviderError{
				StatusCode:  response.StatusCode,
				Description: "token response is not valid json",
				Kind:        core.FailureInvalidResponseFormat,
				Cause:       err,
			}
		}
	}

	errorCode := strings.TrimSpace(readAnyString(payload["error"]))
	errorDescription := strings.TrimSpace(readAnyString(payload["error_description"]))
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices || errorCode != "" {
		if errorDescription == "" {
			errorDescription = "provider rejected the token request"
		}
		return core.TokenResult{}, &ProviderError{
			StatusCode:  response.StatusCode,
			Code:        errorCode,
			Description: errorDescription,
			Kind:        classifyFailure(response.StatusCode, errorCode),
		}
	}

	accessToken := strings.TrimSpace(readAnyString(payload["access_token"]))
	if accessToken == "" {
		return core.TokenResult{}, &ProviderError{
			StatusCode:  response.StatusCode,
			Description: "token response missing access token",
			Kind:        core.FailureInvalidResponseFormat,
		}
	}

	tokenType := strings.ToLower(strings.TrimSpace(readAnyString(payload["token_type"])))
	if tokenType == "" {
		tokenType = "bearer"
	}

	result := core.TokenResult{
		AccessToken:  accessToken,
		RefreshToken: strings.TrimSpace(readAnyString(payload["refresh_token"])),
		TokenType:    tokenType,
		ExpiresAt:    c.resolveExpiry(accessToken, readAnyInt64(payload["expires_in"])),
	}
	return result, nil
}

// resolveExpiry reads the exp claim embedded in the access token itself. A
// payload that cannot be decoded yields a nil expiry, which the freshness
// check treats as always due; the expires_in hint is consulted only for
// tokens that decoded cleanly but carry no exp claim.
func (c *TokenClient) resolveExpiry(accessToken string, expiresIn int64) *time.Time {
	decoded, err := core.DecodeAccessTokenExpiry(accessToken)
	if err != nil {
		return nil
	}
	if decoded != nil {
		return decoded
	}
	if expiresIn > 0 {
		value := c.config.Now().UTC().Add(time.Duration(expiresIn) * time.Second)
		return &value
	}
	return nil
}

func readAnyString(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case fmt.Stringer:
		return typed.String()
	case float64:
		return fmt.Sprintf("%v", typed)
	default:
		return ""
	}
}

func readAnyInt64(value any) int64 {
	switch typed := value.(type) {
	case int:
		return int64(typed)
	case int64:
		return typed
	case float64:
		return int64(typed)
	case json.Number:
		parsed, err := typed.Int64()
		if err != nil {
			return 0
		}
		return parsed
	case string:
		trimmed := strings.TrimSpace(typed)
		if trimmed == "" {
			return 0
		}
		var parsed int64
		if _, err := fmt.Sscan(trimmed, &parsed); err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

var _ core.TokenGateway = (*TokenClient)(nil)
