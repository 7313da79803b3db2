package query

import (
	"context"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/kontorhq/ledgerlink/core"
)

type stubLinkStatusReader struct {
	linkStatusFn func(ctx context.Context) (core.LinkReport, error)
	refreshLogFn func(ctx context.Context, limit int) ([]core.RefreshLogEntry, error)
}

func (s stubLinkStatusReader) LinkStatus(ctx context.Context) (core.LinkReport, error) {
	return s.linkStatusFn(ctx)
}

func (s stubLinkStatusReader) RefreshLog(ctx context.Context, limit int) ([]core.RefreshLogEntry, error) {
	return s.refreshLogFn(ctx, limit)
}

func TestGetLinkStatusQuery_DelegatesToReader(t *testing.T) {
	expected := core.LinkReport{
		Configured: true,
		Status:     core.LinkStatusActive,
		Freshness:  core.FreshnessDueSoon,
	}
	reader := stubLinkStatusReader{
		linkStatusFn: func(_ context.Context) (core.LinkReport, error) {
			return expected, nil
		},
	}

	q := NewGetLinkStatusQuery(reader)
	report, err := q.Query(context.Background(), GetLinkStatusMessage{})
	if err != nil {
		t.Fatalf("query link status: %v", err)
	}
	if !report.Configured || report.Status != core.LinkStatusActive {
		t.Fatalf("unexpected report: %#v", report)
	}
}

func TestListRefreshLogQuery_PassesLimit(t *testing.T) {
	reader := stubLinkStatusReader{
		refreshLogFn: func(_ context.Context, limit int) ([]core.RefreshLogEntry, error) {
			if limit != 5 {
				t.Fatalf("expected limit 5, got %d", limit)
			}
			return []core.RefreshLogEntry{{
				Timestamp: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
				Success:   true,
				Message:   "token refreshed",
			}}, nil
		},
	}

	q := NewListRefreshLogQuery(reader)
	entries, err := q.Query(context.Background(), ListRefreshLogMessage{Limit: 5})
	if err != nil {
		t.Fatalf("query refresh log: %v", err)
	}
	if len(entries) != 1 || !entries[0].Success {
		t.Fatalf("unexpected entries: %#v", entries)
	}
}

func TestQueries_NilReaderReturnsRichError(t *testing.T) {
	var statusQuery *GetLinkStatusQuery
	_, err := statusQuery.Query(context.Background(), GetLinkStatusMessage{})
	if err == nil {
		t.Fatalf("expected dependency error")
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
}

func TestListRefreshLogMessage_ValidateRejectsNegativeLimit(t *testing.T) {
	if err := (ListRefreshLogMessage{Limit: -1}).Validate(); err == nil {
		t.Fatalf("expected validation error for negative limit")
	}
	if err := (ListRefreshLogMessage{Limit: 0}).Validate(); err != nil {
		t.Fatalf("expected zero limit to validate, got %v", err)
	}
}
