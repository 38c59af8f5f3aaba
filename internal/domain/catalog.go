package domain

import (
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// SortKey selects the ordering applied to catalog query results.
type SortKey string

const (
	// SortKeyPopularity preserves the input order, which encodes the
	// assumed popularity ranking. This is the default.
	SortKeyPopularity SortKey = "popular"
	// SortKeyPriceAsc orders products by ascending price.
	SortKeyPriceAsc SortKey = "price-asc"
	// SortKeyPriceDesc orders products by descending price.
	SortKeyPriceDesc SortKey = "price-desc"
	// SortKeyNewest orders products by creation time, newest first.
	// Products without a creation timestamp sort last.
	SortKeyNewest SortKey = "newest"
)

// ParseSortKey maps a raw query value onto a supported SortKey, defaulting
// to popularity for unknown or empty values.
func ParseSortKey(raw string) SortKey {
	switch SortKey(strings.ToLower(strings.TrimSpace(raw))) {
	case SortKeyPriceAsc:
		return SortKeyPriceAsc
	case SortKeyPriceDesc:
		return SortKeyPriceDesc
	case SortKeyNewest:
		return SortKeyNewest
	default:
		return SortKeyPopularity
	}
}

// FilterSpec narrows the visible product list. Zero values mean "unset";
// all present constraints are combined conjunctively.
type FilterSpec struct {
	Category    string
	SubCategory string
	MinPrice    *int64
	MaxPrice    *int64
	InStock     bool
	Search      string
}

// IsZero reports whether the filter carries no constraints at all.
func (f FilterSpec) IsZero() bool {
	return strings.TrimSpace(f.Category) == "" &&
		strings.TrimSpace(f.SubCategory) == "" &&
		f.MinPrice == nil &&
		f.MaxPrice == nil &&
		!f.InStock &&
		strings.TrimSpace(f.Search) == ""
}

var searchFolder = cases.Fold()

// QueryProducts filters and orders the provided products without mutating the
// input. Filtering is conjunctive across the present FilterSpec fields;
// sorting is stable, so ties keep the input (popularity) order.
func QueryProducts(products []Product, filter FilterSpec, sortKey SortKey) []Product {
	out := make([]Product, 0, len(products))
	search := searchFolder.String(strings.TrimSpace(filter.Search))
	category := strings.TrimSpace(filter.Category)
	subCategory := strings.TrimSpace(filter.SubCategory)

	for _, p := range products {
		if search != "" && !strings.Contains(searchFolder.String(p.Name), search) {
			continue
		}
		if category != "" && p.Category != category {
			continue
		}
		if subCategory != "" && p.SubCategory != subCategory {
			continue
		}
		if filter.MinPrice != nil && p.Price < *filter.MinPrice {
			continue
		}
		if filter.MaxPrice != nil && p.Price > *filter.MaxPrice {
			continue
		}
		if filter.InStock && p.Stock <= 0 {
			continue
		}
		out = append(out, p)
	}

	switch sortKey {
	case SortKeyPriceAsc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	case SortKeyPriceDesc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Price > out[j].Price })
	case SortKeyNewest:
		sort.SliceStable(out, func(i, j int) bool {
			return createdAtOrZero(out[i]).After(createdAtOrZero(out[j]))
		})
	}

	return out
}

func createdAtOrZero(p Product) time.Time {
	if p.CreatedAt != nil {
		return p.CreatedAt.UTC()
	}
	return time.Time{}
}
