package core

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// MinAccessTokenLength guards against persisting truncated tokens: the
	// provider's access tokens are JWTs and are never shorter than this.
	MinAccessTokenLength = 100

	accessTokenSegments = 3

	// RefreshTokenCanonicalLength is the provider's documented refresh token
	// size. Refresh tokens are opaque, so this is advisory only.
	RefreshTokenCanonicalLength = 40
)

var (
	ErrInvalidAccessTokenFormat  = errors.New("core: invalid access token format")
	ErrInvalidRefreshTokenFormat = errors.New("core: invalid refresh token format")
)

// ValidateAccessToken checks the syntactic shape of a provider access token:
// three dot-separated JWT segments and a minimum length. Tokens failing this
// check are rejected before they ever reach the store.
func ValidateAccessToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: empty token", ErrInvalidAccessTokenFormat)
	}
	if len(token) < MinAccessTokenLength {
		return fmt.Errorf("%w: token length %d below minimum %d", ErrInvalidAccessTokenFormat, len(token), MinAccessTokenLength)
	}
	if len(strings.Split(token, ".")) != accessTokenSegments {
		return fmt.Errorf("%w: expected %d segments", ErrInvalidAccessTokenFormat, accessTokenSegments)
	}
	return nil
}

// ValidateRefreshToken checks a refresh token is a non-empty opaque string.
func ValidateRefreshToken(token string) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("%w: empty token", ErrInvalidRefreshTokenFormat)
	}
	return nil
}

// DecodeAccessTokenExpiry extracts the `exp` claim from the access token's
// payload segment without verifying the signature. A nil result with nil
// error means the token carries no exp claim; callers must treat such tokens
// as unknown freshness (always due for a refresh check).
func DecodeAccessTokenExpiry(token string) (*time.Time, error) {
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != accessTokenSegments {
		return nil, fmt.Errorf("%w: expected %d segments", ErrInvalidAccessTokenFormat, accessTokenSegments)
	}
	claims, err := decodeJWTSection(parts[1])
	if err != nil {
		return nil, fmt.Errorf("core: decode token payload: %w", err)
	}
	raw, ok := claims["exp"]
	if !ok {
		return nil, nil
	}
	expiresAt, err := parseUnixClaim(raw)
	if err != nil {
		return nil, fmt.Errorf("core: parse exp claim: %w", err)
	}
	return &expiresAt, nil
}

func decodeJWTSection(section string) (map[string]any, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(section))
	if err != nil {
		return nil, err
	}
	decoded := map[string]any{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}

func parseUnixClaim(value any) (time.Time, error) {
	switch typed := value.(type) {
	case float64:
		return time.Unix(int64(typed), 0).UTC(), nil
	case int64:
		return time.Unix(typed, 0).UTC(), nil
	case int:
		return time.Unix(int64(typed), 0).UTC(), nil
	case json.Number:
		parsed, err := typed.Int64()
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(parsed, 0).UTC(), nil
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(parsed, 0).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported claim type %T", value)
	}
}
