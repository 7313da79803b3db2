package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/kontorhq/ledgerlink/core"
)

const defaultRefreshLogListLimit = 20

// RefreshLogStore persists refresh attempt audit entries. Entries are
// observability only and are never read back into lifecycle decisions.
type RefreshLogStore struct {
	repo repository.Repository[*refreshLogRecord]
}

func NewRefreshLogStore(db *bun.DB) (*RefreshLogStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*refreshLogRecord](db, refreshLogHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid refresh log repository wiring: %w", err)
		}
	}
	return &RefreshLogStore{repo: repo}, nil
}

func (s *RefreshLogStore) Append(ctx context.Context, in core.AppendRefreshLogInput) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: refresh log store is not configured")
	}
	key := strings.TrimSpace(in.Key)
	if key == "" {
		return fmt.Errorf("sqlstore: credential key is required")
	}

	record := &refreshLogRecord{
		ID:            uuid.NewString(),
		Key:           key,
		Success:       in.Success,
		Message:       strings.TrimSpace(in.Message),
		CorrelationID: strings.TrimSpace(in.CorrelationID),
		TokenLength:   in.TokenLength,
		Forced:        in.Forced,
		CreatedAt:     time.Now().UTC(),
	}
	_, err := s.repo.Create(ctx, record)
	return err
}

func (s *RefreshLogStore) List(ctx context.Context, key string, limit int) ([]core.RefreshLogEntry, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: refresh log store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("sqlstore: credential key is required")
	}
	if limit <= 0 {
		limit = defaultRefreshLogListLimit
	}

	records, _, err := s.repo.List(ctx,
		repository.SelectBy("key", "=", key),
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(limit, 0),
	)
	if err != nil {
		return nil, err
	}
	entries := make([]core.RefreshLogEntry, 0, len(records))
	for _, record := range records {
		entries = append(entries, record.toDomain())
	}
	return entries, nil
}
