package command

import (
	"strings"

	"github.com/kontorhq/ledgerlink/core"
)

const (
	TypeConfigureClient    = "ledgerlink.command.client.configure"
	TypeBeginAuthorization = "ledgerlink.command.authorization.begin"
	TypeCompleteCallback   = "ledgerlink.command.callback.complete"
	TypeRefresh            = "ledgerlink.command.refresh"
	TypeMigrateLegacyToken = "ledgerlink.command.token.migrate"
	TypeDisconnect         = "ledgerlink.command.disconnect"
)

type ConfigureClientMessage struct {
	ClientID     string
	ClientSecret string
}

func (ConfigureClientMessage) Type() string { return TypeConfigureClient }

func (m ConfigureClientMessage) Validate() error {
	if strings.TrimSpace(m.ClientID) == "" {
		return commandValidationError("client_id", "client id is required")
	}
	if strings.TrimSpace(m.ClientSecret) == "" {
		return commandValidationError("client_secret", "client secret is required")
	}
	return nil
}

type BeginAuthorizationMessage struct {
	Request core.BeginAuthorizationRequest
}

func (BeginAuthorizationMessage) Type() string { return TypeBeginAuthorization }

func (m BeginAuthorizationMessage) Validate() error {
	return nil
}

type CompleteCallbackMessage struct {
	Request core.CallbackRequest
}

func (CompleteCallbackMessage) Type() string { return TypeCompleteCallback }

func (m CompleteCallbackMessage) Validate() error {
	// A callback without code or provider error is a pending poll, which the
	// service treats as a valid request.
	return nil
}

type RefreshMessage struct {
	Force   bool
	Trigger core.RefreshTrigger
}

func (RefreshMessage) Type() string { return TypeRefresh }

func (m RefreshMessage) Validate() error {
	switch m.Trigger {
	case "", core.RefreshTriggerScheduled, core.RefreshTriggerForced, core.RefreshTriggerOnDemand:
		return nil
	default:
		return commandValidationError("trigger", "unknown refresh trigger")
	}
}

type MigrateLegacyTokenMessage struct{}

func (MigrateLegacyTokenMessage) Type() string { return TypeMigrateLegacyToken }

func (MigrateLegacyTokenMessage) Validate() error { return nil }

type DisconnectMessage struct {
	Reason string
}

func (DisconnectMessage) Type() string { return TypeDisconnect }

func (m DisconnectMessage) Validate() error {
	return nil
}
