package ledgerlink

import (
	"fmt"

	linkcommand "github.com/kontorhq/ledgerlink/command"
	linkquery "github.com/kontorhq/ledgerlink/query"
)

// CommandQueryService is the full lifecycle surface the facade dispatches
// against. *core.Service satisfies it.
type CommandQueryService interface {
	linkcommand.MutatingService
	linkquery.LinkStatusReader
}

type Commands struct {
	ConfigureClient    *linkcommand.ConfigureClientCommand
	BeginAuthorization *linkcommand.BeginAuthorizationCommand
	CompleteCallback   *linkcommand.CompleteCallbackCommand
	Refresh            *linkcommand.RefreshCommand
	MigrateLegacyToken *linkcommand.MigrateLegacyTokenCommand
	Disconnect         *linkcommand.DisconnectCommand
}

type Queries struct {
	GetLinkStatus  *linkquery.GetLinkStatusQuery
	ListRefreshLog *linkquery.ListRefreshLogQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

func NewFacade(service CommandQueryService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("ledgerlink: command/query service is required")
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		ConfigureClient:    linkcommand.NewConfigureClientCommand(service),
		BeginAuthorization: linkcommand.NewBeginAuthorizationCommand(service),
		CompleteCallback:   linkcommand.NewCompleteCallbackCommand(service),
		Refresh:            linkcommand.NewRefreshCommand(service),
		MigrateLegacyToken: linkcommand.NewMigrateLegacyTokenCommand(service),
		Disconnect:         linkcommand.NewDisconnectCommand(service),
	}
	facade.queries = Queries{
		GetLinkStatus:  linkquery.NewGetLinkStatusQuery(service),
		ListRefreshLog: linkquery.NewListRefreshLogQuery(service),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
