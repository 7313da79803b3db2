package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/kontorhq/ledgerlink/core"
)

var (
	_ gocmd.Querier[GetLinkStatusMessage, core.LinkReport]         = (*GetLinkStatusQuery)(nil)
	_ gocmd.Querier[ListRefreshLogMessage, []core.RefreshLogEntry] = (*ListRefreshLogQuery)(nil)
)
