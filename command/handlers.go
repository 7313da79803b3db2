// Package command exposes the mutating credential lifecycle operations as
// go-command messages so callers can dispatch them over a message router.
package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/kontorhq/ledgerlink/core"
)

// MutatingService is the slice of the lifecycle service the command layer
// needs. *core.Service satisfies it.
type MutatingService interface {
	ConfigureClient(ctx context.Context, clientID, clientSecret string) (core.Credentials, error)
	BeginAuthorization(ctx context.Context, req core.BeginAuthorizationRequest) (core.BeginAuthorizationResponse, error)
	CompleteCallback(ctx context.Context, req core.CallbackRequest) (core.CallbackCompletion, error)
	Refresh(ctx context.Context, req core.RefreshRequest) (core.RefreshOutcome, error)
	MigrateLegacyToken(ctx context.Context) (core.Credentials, error)
	Disconnect(ctx context.Context, reason string) error
}

type ConfigureClientCommand struct {
	service MutatingService
}

func NewConfigureClientCommand(service MutatingService) *ConfigureClientCommand {
	return &ConfigureClientCommand{service: service}
}

func (c *ConfigureClientCommand) Execute(ctx context.Context, msg ConfigureClientMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: configure client service is required")
	}
	out, err := c.service.ConfigureClient(ctx, msg.ClientID, msg.ClientSecret)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type BeginAuthorizationCommand struct {
	service MutatingService
}

func NewBeginAuthorizationCommand(service MutatingService) *BeginAuthorizationCommand {
	return &BeginAuthorizationCommand{service: service}
}

func (c *BeginAuthorizationCommand) Execute(ctx context.Context, msg BeginAuthorizationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: authorization service is required")
	}
	out, err := c.service.BeginAuthorization(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CompleteCallbackCommand struct {
	service MutatingService
}

func NewCompleteCallbackCommand(service MutatingService) *CompleteCallbackCommand {
	return &CompleteCallbackCommand{service: service}
}

func (c *CompleteCallbackCommand) Execute(ctx context.Context, msg CompleteCallbackMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: callback service is required")
	}
	out, err := c.service.CompleteCallback(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RefreshCommand struct {
	service MutatingService
}

func NewRefreshCommand(service MutatingService) *RefreshCommand {
	return &RefreshCommand{service: service}
}

func (c *RefreshCommand) Execute(ctx context.Context, msg RefreshMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: refresh service is required")
	}
	trigger := msg.Trigger
	if trigger == "" {
		trigger = core.RefreshTriggerOnDemand
	}
	out, err := c.service.Refresh(ctx, core.RefreshRequest{Force: msg.Force, Trigger: trigger})
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type MigrateLegacyTokenCommand struct {
	service MutatingService
}

func NewMigrateLegacyTokenCommand(service MutatingService) *MigrateLegacyTokenCommand {
	return &MigrateLegacyTokenCommand{service: service}
}

func (c *MigrateLegacyTokenCommand) Execute(ctx context.Context, msg MigrateLegacyTokenMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: migration service is required")
	}
	out, err := c.service.MigrateLegacyToken(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DisconnectCommand struct {
	service MutatingService
}

func NewDisconnectCommand(service MutatingService) *DisconnectCommand {
	return &DisconnectCommand{service: service}
}

func (c *DisconnectCommand) Execute(ctx context.Context, msg DisconnectMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: disconnect service is required")
	}
	return c.service.Disconnect(ctx, msg.Reason)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
