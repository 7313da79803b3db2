package sqlstore

import "github.com/kontorhq/ledgerlink/core"

var (
	_ core.CredentialStore = (*CredentialStore)(nil)
	_ core.RefreshLogStore = (*RefreshLogStore)(nil)
	_ core.OAuthStateStore = (*OAuthStateStore)(nil)
)
