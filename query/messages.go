package query

const (
	TypeGetLinkStatus  = "ledgerlink.query.link_status.get"
	TypeListRefreshLog = "ledgerlink.query.refresh_log.list"
)

type GetLinkStatusMessage struct{}

func (GetLinkStatusMessage) Type() string { return TypeGetLinkStatus }

func (GetLinkStatusMessage) Validate() error { return nil }

type ListRefreshLogMessage struct {
	Limit int
}

func (ListRefreshLogMessage) Type() string { return TypeListRefreshLog }

func (m ListRefreshLogMessage) Validate() error {
	if m.Limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	return nil
}
