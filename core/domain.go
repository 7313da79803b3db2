package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidLinkStatusTransition = errors.New("core: invalid link status transition")
	ErrCredentialsNotFound         = errors.New("core: credentials not found")
	ErrMissingCredentials          = errors.New("core: client id, client secret and refresh token are required")
	ErrCredentialsConflict         = errors.New("core: credentials were updated concurrently")
)

// DefaultCredentialKey identifies the single shared credential record. The
// lifecycle manager owns exactly one provider link per key.
const DefaultCredentialKey = "default"

type LinkStatus string

const (
	// LinkStatusPendingAuth means client id/secret are configured but the
	// operator has not completed the authorization redirect yet.
	LinkStatusPendingAuth LinkStatus = "pending_auth"
	LinkStatusActive      LinkStatus = "active"
	// LinkStatusReconnectRequired is terminal until a human re-runs the
	// authorization flow: the provider rejected the refresh token or the
	// client credentials.
	LinkStatusReconnectRequired LinkStatus = "reconnect_required"
	LinkStatusDisconnected      LinkStatus = "disconnected"
)

// Credentials is the singleton provider credential record. AccessToken and
// RefreshToken are replaced by CompleteCallback (full) and Refresh (partial:
// the refresh token survives unless the provider issued a new one).
type Credentials struct {
	Key           string
	ClientID      string
	ClientSecret  string
	AccessToken   string
	RefreshToken  string
	ExpiresAt     *time.Time
	IsLegacyToken bool
	Status        LinkStatus
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (c *Credentials) TransitionTo(status LinkStatus, reason string, now time.Time) error {
	if c == nil {
		return nil
	}
	if c.Status == status {
		c.UpdatedAt = now
		if strings.TrimSpace(reason) != "" {
			c.LastError = strings.TrimSpace(reason)
		}
		return nil
	}
	if !linkTransitionAllowed(c.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidLinkStatusTransition, c.Status, status)
	}
	c.Status = status
	c.UpdatedAt = now
	if strings.TrimSpace(reason) != "" {
		c.LastError = strings.TrimSpace(reason)
	}
	if status == LinkStatusActive {
		c.LastError = ""
	}
	return nil
}

func linkTransitionAllowed(current, next LinkStatus) bool {
	allowed := map[LinkStatus]map[LinkStatus]struct{}{
		LinkStatusPendingAuth: {
			LinkStatusActive:       {},
			LinkStatusDisconnected: {},
		},
		LinkStatusActive: {
			LinkStatusReconnectRequired: {},
			LinkStatusDisconnected:      {},
		},
		LinkStatusReconnectRequired: {
			LinkStatusActive:       {},
			LinkStatusDisconnected: {},
		},
		LinkStatusDisconnected: {
			LinkStatusPendingAuth: {},
			LinkStatusActive:      {},
		},
	}
	_, ok := allowed[current][next]
	return ok
}

// HasClientCredentials reports whether the operator has configured the
// provider application credentials.
func (c Credentials) HasClientCredentials() bool {
	return strings.TrimSpace(c.ClientID) != "" && strings.TrimSpace(c.ClientSecret) != ""
}

func (c Credentials) HasRefreshToken() bool {
	return strings.TrimSpace(c.RefreshToken) != ""
}

// RefreshLogEntry is an append-only observability record of one refresh
// attempt. It never feeds back into correctness decisions.
type RefreshLogEntry struct {
	ID            string
	Timestamp     time.Time
	Success       bool
	Message       string
	CorrelationID string
	TokenLength   int
	Forced        bool
}

type RefreshTrigger string

const (
	RefreshTriggerScheduled RefreshTrigger = "scheduled"
	RefreshTriggerForced    RefreshTrigger = "forced"
	RefreshTriggerOnDemand  RefreshTrigger = "on_demand"
)
