package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPolicyWriterDecide(t *testing.T) {
	now := time.Unix(2000, 0)
	writer := NewPolicyWriter(nil, func() time.Time { return now })
	sixty := int64(60)

	testCases := []struct {
		name     string
		status   int
		maxAge   *int64
		store    bool
		withMeta bool
	}{
		{"ok no ttl", 200, nil, true, false},
		{"permanent redirect", 301, nil, true, false},
		{"temporary redirect", 302, nil, false, false},
		{"temporary redirect with ttl", 302, &sixty, false, false},
		{"not found", 404, nil, true, false},
		{"ok with ttl", 200, &sixty, true, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			decision := writer.Decide(tc.status, tc.maxAge)
			if decision.Store != tc.store {
				t.Fatalf("expected store=%v, got %+v", tc.store, decision)
			}
			if (decision.Meta != nil) != tc.withMeta {
				t.Fatalf("expected meta=%v, got %+v", tc.withMeta, decision.Meta)
			}
			if decision.Meta != nil && decision.Meta.ExpiresAt-decision.Meta.CachedAt != 60 {
				t.Fatalf("ttl mismatch: %+v", decision.Meta)
			}
		})
	}
}

func TestPolicyWriterWrite(t *testing.T) {
	store := newTestStore(t)
	writer := NewPolicyWriter(store, nil)
	if !writer.Enabled() {
		t.Fatalf("writer with store should be enabled")
	}
	key := store.KeyFor("example.com", "/redirect")

	if err := writer.Write(context.Background(), key, []byte("302"), writer.Decide(302, nil)); err != nil {
		t.Fatalf("skip decision should not error: %v", err)
	}
	result, _ := store.Lookup(context.Background(), key)
	if result.Hit {
		t.Fatalf("302 response must not be cached")
	}

	if err := writer.Write(context.Background(), key, []byte("301"), writer.Decide(301, nil)); err != nil {
		t.Fatalf("write error: %v", err)
	}
	result, _ = store.Lookup(context.Background(), key)
	if !result.Hit || result.Entry.Meta != nil {
		t.Fatalf("301 should be cached without meta, got %+v", result)
	}
}

func TestPolicyWriterWithoutStore(t *testing.T) {
	writer := NewPolicyWriter(nil, nil)
	if writer.Enabled() {
		t.Fatalf("writer without store should be disabled")
	}
	err := writer.Write(context.Background(), Key{Path: "/tmp/x"}, nil, Decision{Store: true})
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}
