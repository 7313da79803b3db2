package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestValidateCallbackState(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		received string
		stored   *OAuthStateRecord
		wantErr  error
	}{
		{
			name:     "no_stored_record_passes",
			received: "anything",
			stored:   nil,
		},
		{
			name:     "matching_nonce",
			received: "nonce-1",
			stored:   &OAuthStateRecord{Nonce: "nonce-1", ExpiresAt: now.Add(5 * time.Minute)},
		},
		{
			name:     "matching_nonce_with_whitespace",
			received: "  nonce-1  ",
			stored:   &OAuthStateRecord{Nonce: "nonce-1", ExpiresAt: now.Add(5 * time.Minute)},
		},
		{
			name:     "mismatch",
			received: "nonce-2",
			stored:   &OAuthStateRecord{Nonce: "nonce-1", ExpiresAt: now.Add(5 * time.Minute)},
			wantErr:  ErrStateMismatch,
		},
		{
			name:     "empty_received_against_stored",
			received: "",
			stored:   &OAuthStateRecord{Nonce: "nonce-1", ExpiresAt: now.Add(5 * time.Minute)},
			wantErr:  ErrStateMismatch,
		},
		{
			name:     "expired",
			received: "nonce-1",
			stored:   &OAuthStateRecord{Nonce: "nonce-1", ExpiresAt: now.Add(-time.Minute)},
			wantErr:  ErrStateExpired,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateCallbackState(now, tc.received, tc.stored)
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("expected validation to pass, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestGenerateState(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 50; i++ {
		state, err := GenerateState()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(state) < 30 {
			t.Fatalf("state too short: %q", state)
		}
		if _, dup := seen[state]; dup {
			t.Fatalf("duplicate state generated: %q", state)
		}
		seen[state] = struct{}{}
	}
}

func TestMemoryOAuthStateStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryOAuthStateStore(10 * time.Minute)

	if _, found, err := store.Pending(ctx, "default"); err != nil || found {
		t.Fatalf("expected empty store, found=%t err=%v", found, err)
	}

	record := OAuthStateRecord{Nonce: "nonce-1", OriginURL: "https://app.example.com/settings"}
	if err := store.Save(ctx, "default", record); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	stored, found, err := store.Pending(ctx, "default")
	if err != nil || !found {
		t.Fatalf("expected pending record, found=%t err=%v", found, err)
	}
	if stored.Nonce != "nonce-1" {
		t.Fatalf("unexpected nonce %q", stored.Nonce)
	}
	if stored.ExpiresAt.IsZero() {
		t.Fatal("expected expiry to be stamped from store ttl")
	}

	// A second attempt for the same key replaces the first: only one pending
	// authorization per credential key.
	if err := store.Save(ctx, "default", OAuthStateRecord{Nonce: "nonce-2"}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	stored, _, _ = store.Pending(ctx, "default")
	if stored.Nonce != "nonce-2" {
		t.Fatalf("expected replacement nonce, got %q", stored.Nonce)
	}

	if err := store.Delete(ctx, "default"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, found, _ := store.Pending(ctx, "default"); found {
		t.Fatal("expected record deleted")
	}

	if err := store.Save(ctx, "", OAuthStateRecord{Nonce: "n"}); err == nil {
		t.Fatal("expected error for empty key")
	}
	if err := store.Save(ctx, "default", OAuthStateRecord{}); err == nil {
		t.Fatal("expected error for empty nonce")
	}
}
