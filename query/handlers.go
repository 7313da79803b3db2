// Package query exposes the read side of the credential lifecycle as
// go-command queries.
package query

import (
	"context"

	"github.com/kontorhq/ledgerlink/core"
)

// LinkStatusReader is the read-only slice of the lifecycle service.
// *core.Service satisfies it.
type LinkStatusReader interface {
	LinkStatus(ctx context.Context) (core.LinkReport, error)
	RefreshLog(ctx context.Context, limit int) ([]core.RefreshLogEntry, error)
}

type GetLinkStatusQuery struct {
	reader LinkStatusReader
}

func NewGetLinkStatusQuery(reader LinkStatusReader) *GetLinkStatusQuery {
	return &GetLinkStatusQuery{reader: reader}
}

func (q *GetLinkStatusQuery) Query(ctx context.Context, msg GetLinkStatusMessage) (core.LinkReport, error) {
	if q == nil || q.reader == nil {
		return core.LinkReport{}, queryDependencyError("query: link status reader is required")
	}
	return q.reader.LinkStatus(ctx)
}

type ListRefreshLogQuery struct {
	reader LinkStatusReader
}

func NewListRefreshLogQuery(reader LinkStatusReader) *ListRefreshLogQuery {
	return &ListRefreshLogQuery{reader: reader}
}

func (q *ListRefreshLogQuery) Query(ctx context.Context, msg ListRefreshLogMessage) ([]core.RefreshLogEntry, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: refresh log reader is required")
	}
	return q.reader.RefreshLog(ctx, msg.Limit)
}
