package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[ConfigureClientMessage]    = (*ConfigureClientCommand)(nil)
	_ gocmd.Commander[BeginAuthorizationMessage] = (*BeginAuthorizationCommand)(nil)
	_ gocmd.Commander[CompleteCallbackMessage]   = (*CompleteCallbackCommand)(nil)
	_ gocmd.Commander[RefreshMessage]            = (*RefreshCommand)(nil)
	_ gocmd.Commander[MigrateLegacyTokenMessage] = (*MigrateLegacyTokenCommand)(nil)
	_ gocmd.Commander[DisconnectMessage]         = (*DisconnectCommand)(nil)
)
