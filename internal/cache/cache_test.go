package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	if err := store.SetJSON(ctx, "k", payload{Name: "shoe", Count: 2}, time.Minute); err != nil {
		t.Fatalf("SetJSON error: %v", err)
	}

	var got payload
	ok, err := store.GetJSON(ctx, "k", &got)
	if err != nil || !ok {
		t.Fatalf("GetJSON ok=%v err=%v", ok, err)
	}
	if got.Name != "shoe" || got.Count != 2 {
		t.Fatalf("unexpected payload: %+v", got)
	}

	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	ok, err = store.GetJSON(ctx, "k", &got)
	if err != nil {
		t.Fatalf("GetJSON after delete error: %v", err)
	}
	if ok {
		t.Fatalf("expected miss after delete")
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.now = func() time.Time { return now }

	ctx := context.Background()
	if err := store.SetString(ctx, "url_hash:abc", "processing", time.Hour); err != nil {
		t.Fatalf("SetString error: %v", err)
	}

	val, ok, err := store.GetString(ctx, "url_hash:abc")
	if err != nil || !ok || val != "processing" {
		t.Fatalf("expected live entry, got val=%q ok=%v err=%v", val, ok, err)
	}

	now = now.Add(2 * time.Hour)
	_, ok, err = store.GetString(ctx, "url_hash:abc")
	if err != nil {
		t.Fatalf("GetString after expiry error: %v", err)
	}
	if ok {
		t.Fatalf("expected entry to expire")
	}
}

func TestKeyNamespaces(t *testing.T) {
	t.Parallel()

	url := "https://shop.example.com/p/123"
	if URLStateKey(url) == URLStateKey("https://shop.example.com/p/124") {
		t.Fatalf("distinct urls must hash to distinct keys")
	}
	if URLStateKey(url) != URLStateKey(url) {
		t.Fatalf("key derivation must be stable")
	}
	if got := JobStatusKey("j1"); got != "job_status:j1" {
		t.Fatalf("unexpected job status key: %s", got)
	}
	if got := PricesKey("p1"); got != "prices:p1" {
		t.Fatalf("unexpected prices key: %s", got)
	}
	if got := IdentityKey("p1"); got != "product_identity:p1" {
		t.Fatalf("unexpected identity key: %s", got)
	}
}
