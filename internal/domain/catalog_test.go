package domain

import (
	"testing"
	"time"
)

func int64Ptr(v int64) *int64 {
	return &v
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func sampleProducts() []Product {
	return []Product{
		{ID: "p1", Name: "Laptop Pro 14", Category: "Informatique", SubCategory: "Ordinateurs portables", Price: 89900, Stock: 3, CreatedAt: timePtr(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))},
		{ID: "p2", Name: "Smartphone X", Category: "Téléphonie", Price: 49900, Stock: 0, CreatedAt: timePtr(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))},
		{ID: "p3", Name: "Laptop Air 13", Category: "Informatique", SubCategory: "Ordinateurs portables", Price: 69900, Stock: 8},
		{ID: "p4", Name: "Écran 27 pouces", Category: "Informatique", SubCategory: "Écrans", Price: 19900, Stock: 5, CreatedAt: timePtr(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))},
	}
}

func idsOf(products []Product) []string {
	ids := make([]string, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	return ids
}

func assertIDs(t *testing.T, got []Product, want ...string) {
	t.Helper()
	ids := idsOf(got)
	if len(ids) != len(want) {
		t.Fatalf("expected %d products %v, got %v", len(want), want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, ids)
		}
	}
}

func TestQueryProductsNoConstraintsPreservesOrder(t *testing.T) {
	products := sampleProducts()
	got := QueryProducts(products, FilterSpec{}, SortKeyPopularity)
	assertIDs(t, got, "p1", "p2", "p3", "p4")
}

func TestQueryProductsSearchIsCaseInsensitive(t *testing.T) {
	got := QueryProducts(sampleProducts(), FilterSpec{Search: "lApToP"}, SortKeyPopularity)
	assertIDs(t, got, "p1", "p3")
}

func TestQueryProductsFiltersAreConjunctive(t *testing.T) {
	filter := FilterSpec{
		Category:    "Informatique",
		SubCategory: "Ordinateurs portables",
		MinPrice:    int64Ptr(70000),
	}
	got := QueryProducts(sampleProducts(), filter, SortKeyPopularity)
	assertIDs(t, got, "p1")
}

func TestQueryProductsPriceBoundsAreInclusive(t *testing.T) {
	filter := FilterSpec{MinPrice: int64Ptr(19900), MaxPrice: int64Ptr(49900)}
	got := QueryProducts(sampleProducts(), filter, SortKeyPopularity)
	assertIDs(t, got, "p2", "p4")
}

func TestQueryProductsInStockExcludesZeroStock(t *testing.T) {
	got := QueryProducts(sampleProducts(), FilterSpec{InStock: true}, SortKeyPopularity)
	assertIDs(t, got, "p1", "p3", "p4")
}

func TestQueryProductsSortPriceAscending(t *testing.T) {
	got := QueryProducts(sampleProducts(), FilterSpec{}, SortKeyPriceAsc)
	assertIDs(t, got, "p4", "p2", "p3", "p1")
}

func TestQueryProductsSortPriceDescending(t *testing.T) {
	got := QueryProducts(sampleProducts(), FilterSpec{}, SortKeyPriceDesc)
	assertIDs(t, got, "p1", "p3", "p2", "p4")
}

func TestQueryProductsSortNewestMissingTimestampLast(t *testing.T) {
	got := QueryProducts(sampleProducts(), FilterSpec{}, SortKeyNewest)
	assertIDs(t, got, "p2", "p1", "p4", "p3")
}

func TestQueryProductsStableForEqualPrices(t *testing.T) {
	products := []Product{
		{ID: "a", Price: 100, Stock: 1},
		{ID: "b", Price: 100, Stock: 1},
		{ID: "c", Price: 50, Stock: 1},
	}
	got := QueryProducts(products, FilterSpec{}, SortKeyPriceAsc)
	assertIDs(t, got, "c", "a", "b")
}

func TestQueryProductsDoesNotMutateInput(t *testing.T) {
	products := sampleProducts()
	_ = QueryProducts(products, FilterSpec{}, SortKeyPriceDesc)
	assertIDs(t, products, "p1", "p2", "p3", "p4")
}

func TestQueryProductsIdempotentUnderEmptyRequery(t *testing.T) {
	first := QueryProducts(sampleProducts(), FilterSpec{InStock: true, Category: "Informatique"}, SortKeyPriceAsc)
	second := QueryProducts(first, FilterSpec{}, SortKeyPopularity)
	assertIDs(t, second, idsOf(first)...)
}

func TestParseSortKeyDefaultsToPopularity(t *testing.T) {
	cases := map[string]SortKey{
		"price-asc":  SortKeyPriceAsc,
		"PRICE-DESC": SortKeyPriceDesc,
		" newest ":   SortKeyNewest,
		"popular":    SortKeyPopularity,
		"unknown":    SortKeyPopularity,
		"":           SortKeyPopularity,
	}
	for raw, want := range cases {
		if got := ParseSortKey(raw); got != want {
			t.Fatalf("ParseSortKey(%q) = %q, want %q", raw, got, want)
		}
	}
}
