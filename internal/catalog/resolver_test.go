package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"price-radar/internal/model"
	"price-radar/internal/storage"

	"github.com/shopspring/decimal"
)

func newTestResolver(t *testing.T) (*Resolver, *storage.Store) {
	t.Helper()
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("NewStore error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return NewResolver(store, nil, nil, nil, nil), store
}

func TestResolveCreatesAndReusesByGTIN(t *testing.T) {
	t.Parallel()

	r, _ := newTestResolver(t)
	ctx := context.Background()

	first := model.ExtractedProduct{
		Name:  "Air Zoom Pegasus 40",
		Brand: "Nike",
		GTIN:  "4006381333932",
		Price: decimal.RequireFromString("129.99"),
	}
	created, isNew, err := r.Resolve(ctx, first, "https://www.runshop.com/p/1", "runshop")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if !isNew {
		t.Fatalf("expected first resolve to create")
	}

	// A differently-named listing with the same GTIN must resolve to the same product.
	second := model.ExtractedProduct{
		Name:  "Nike Pegasus 40 Laufschuh",
		Brand: "Nike",
		GTIN:  "4006381333932",
		Price: decimal.RequireFromString("119.99"),
	}
	resolved, isNew, err := r.Resolve(ctx, second, "https://www.sportschuh.de/p/2", "sportschuh")
	if err != nil {
		t.Fatalf("Resolve second error: %v", err)
	}
	if isNew {
		t.Fatalf("expected gtin match to reuse existing product")
	}
	if resolved.ID != created.ID {
		t.Fatalf("expected same canonical id, got %s vs %s", resolved.ID, created.ID)
	}
}

func TestResolveByNameBrandIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	r, _ := newTestResolver(t)
	ctx := context.Background()

	first := model.ExtractedProduct{Name: "Pixel Buds Pro", Brand: "Google", Price: decimal.NewFromInt(199)}
	created, _, err := r.Resolve(ctx, first, "https://shop.example.com/p/1", "example")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}

	second := model.ExtractedProduct{Name: "  PIXEL BUDS PRO ", Brand: "google", Price: decimal.NewFromInt(189)}
	resolved, isNew, err := r.Resolve(ctx, second, "https://other.example.com/p/2", "other")
	if err != nil {
		t.Fatalf("Resolve second error: %v", err)
	}
	if isNew || resolved.ID != created.ID {
		t.Fatalf("expected case-insensitive name+brand reuse, isNew=%v ids %s vs %s", isNew, resolved.ID, created.ID)
	}
}

func TestResolveCreatesWithTaxonomyAndAttributes(t *testing.T) {
	t.Parallel()

	r, _ := newTestResolver(t)
	ctx := context.Background()

	extracted := model.ExtractedProduct{
		Name:       "running shoes",
		Brand:      "Nike",
		Price:      decimal.NewFromInt(99),
		Attributes: map[string]string{"color": "volt"},
	}
	created, isNew, err := r.Resolve(ctx, extracted, "https://www.runshop.com/p/3", "runshop")
	if err != nil || !isNew {
		t.Fatalf("Resolve isNew=%v err=%v", isNew, err)
	}
	// Brand hint is consulted before name keywords when category text is absent.
	if created.Category != "footwear" || created.Subcategory != "sneakers" {
		t.Fatalf("expected footwear/sneakers, got %s/%s", created.Category, created.Subcategory)
	}
	// Explicit extracted attributes win over inferred ones.
	if created.Attributes["color"] != "volt" {
		t.Fatalf("expected extracted color to take precedence, got %v", created.Attributes["color"])
	}
}

func TestResolveRejectsUnusableName(t *testing.T) {
	t.Parallel()

	r, _ := newTestResolver(t)
	_, _, err := r.Resolve(context.Background(), model.ExtractedProduct{Name: "ab"}, "", "ext")
	if !errors.Is(err, ErrInvalidProduct) {
		t.Fatalf("expected ErrInvalidProduct, got %v", err)
	}
}

func TestSimilarityEdgesAreSymmetric(t *testing.T) {
	t.Parallel()

	r, store := newTestResolver(t)
	ctx := context.Background()

	first := model.ExtractedProduct{
		Name:  "Air Zoom Pegasus 40 black",
		Brand: "Nike",
		Price: decimal.NewFromInt(129),
	}
	a, _, err := r.Resolve(ctx, first, "https://www.runshop.com/p/4", "runshop")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}

	second := model.ExtractedProduct{
		Name:  "Ultraboost Light black",
		Brand: "Nike", // same brand keeps the pair above the 0.4 threshold
		Price: decimal.NewFromInt(149),
	}
	b, _, err := r.Resolve(ctx, second, "https://www.runshop.com/p/5", "runshop")
	if err != nil {
		t.Fatalf("Resolve second error: %v", err)
	}

	out, err := store.ListSimilarities(ctx, b.ID)
	if err != nil {
		t.Fatalf("ListSimilarities error: %v", err)
	}
	if len(out) != 1 || out[0].SimilarProductID != a.ID {
		t.Fatalf("expected edge b->a, got %+v", out)
	}
	back, err := store.ListSimilarities(ctx, a.ID)
	if err != nil {
		t.Fatalf("ListSimilarities back error: %v", err)
	}
	if len(back) != 1 || back[0].SimilarProductID != b.ID {
		t.Fatalf("expected symmetric edge a->b, got %+v", back)
	}
	if out[0].SimilarityScore != back[0].SimilarityScore {
		t.Fatalf("expected equal scores, got %f vs %f", out[0].SimilarityScore, back[0].SimilarityScore)
	}
	if out[0].MatchReason == "" {
		t.Fatalf("expected match reasons to be recorded")
	}
}
