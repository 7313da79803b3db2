package core

import "time"

// DefaultRefreshLeadWindow is how far ahead of expiry a token counts as due
// for proactive refresh.
const DefaultRefreshLeadWindow = 30 * time.Minute

type TokenFreshness string

const (
	// FreshnessFresh: expiry is known and further away than the lead window.
	FreshnessFresh TokenFreshness = "fresh"
	// FreshnessDueSoon: expiry is within the lead window, already past, or
	// unknown. Unknown expiry always counts as due so a token whose exp claim
	// could not be decoded is re-checked on every tick.
	FreshnessDueSoon TokenFreshness = "due_soon"
)

// ResolveTokenFreshness evaluates whether the stored access token should be
// proactively refreshed.
func ResolveTokenFreshness(now time.Time, credentials Credentials, leadWindow time.Duration) TokenFreshness {
	if now.IsZero() {
		now = time.Now().UTC()
	} else {
		now = now.UTC()
	}
	if leadWindow <= 0 {
		leadWindow = DefaultRefreshLeadWindow
	}
	if credentials.ExpiresAt == nil {
		return FreshnessDueSoon
	}
	if credentials.ExpiresAt.UTC().After(now.Add(leadWindow)) {
		return FreshnessFresh
	}
	return FreshnessDueSoon
}

// ShouldRefresh returns true when a refresh call must be made: either the
// caller forces it or the token is due soon.
func ShouldRefresh(now time.Time, credentials Credentials, leadWindow time.Duration, force bool) bool {
	if force {
		return true
	}
	return ResolveTokenFreshness(now, credentials, leadWindow) == FreshnessDueSoon
}

// NextRefreshDue computes when the scheduled check would next trigger a
// refresh for the given credentials. Zero time means due immediately.
func NextRefreshDue(credentials Credentials, leadWindow time.Duration) time.Time {
	if leadWindow <= 0 {
		leadWindow = DefaultRefreshLeadWindow
	}
	if credentials.ExpiresAt == nil {
		return time.Time{}
	}
	return credentials.ExpiresAt.UTC().Add(-leadWindow)
}
