// Package query is the read-side projection layer. It consumes the record
// store and adds no invariants of its own: every read resolves to current
// versions only.
package query

import (
	"context"
	"sort"

	"github.com/openwitness/chronicle/internal/domain"
	"github.com/openwitness/chronicle/internal/repository"
)

// Service serves listings, search and aggregations over current versions.
type Service struct {
	store    repository.Store
	regions  domain.RegionSet
	pageSize int
}

// NewService creates a projection service. pageSize governs paginated
// listings.
func NewService(store repository.Store, regions domain.RegionSet, pageSize int) *Service {
	if pageSize <= 0 {
		pageSize = 20
	}
	return &Service{store: store, regions: regions, pageSize: pageSize}
}

// Page is one page of current versions.
type Page struct {
	Items      []domain.RecordVersion `json:"items"`
	TotalCount int                    `json:"total_count"`
	Page       int                    `json:"page"`
	PageSize   int                    `json:"page_size"`
}

// ListCurrent returns up to limit current versions of kind, newest first.
func (s *Service) ListCurrent(ctx context.Context, kind domain.Kind, limit int) ([]domain.RecordVersion, error) {
	desc, ok := domain.DescriptorFor(kind)
	if !ok {
		return nil, &domain.NotFoundError{Resource: "collection", ID: string(kind)}
	}
	if limit <= 0 {
		limit = s.pageSize
	}

	items, _, err := s.store.Records().ListCurrent(ctx, kind, desc.SearchField, "", limit, 0)
	return items, err
}

// ListCurrentPaginated returns one page of current versions, optionally
// matching searchQuery against the kind's designated free-text field.
func (s *Service) ListCurrentPaginated(ctx context.Context, kind domain.Kind, page int, searchQuery string) (Page, error) {
	desc, ok := domain.DescriptorFor(kind)
	if !ok {
		return Page{}, &domain.NotFoundError{Resource: "collection", ID: string(kind)}
	}
	if page < 1 {
		page = 1
	}

	items, total, err := s.store.Records().ListCurrent(ctx, kind, desc.SearchField, searchQuery, s.pageSize, (page-1)*s.pageSize)
	if err != nil {
		return Page{}, err
	}
	return Page{Items: items, TotalCount: total, Page: page, PageSize: s.pageSize}, nil
}

// RegionCount is one bucket of the map aggregation.
type RegionCount struct {
	Region string `json:"region"`
	Count  int    `json:"count"`
}

// AggregateByRegion counts current versions of kind grouped by the kind's
// region field, normalized onto the fixed region enumeration. Values outside
// the enumeration land in the unknown bucket.
func (s *Service) AggregateByRegion(ctx context.Context, kind domain.Kind) ([]RegionCount, error) {
	desc, ok := domain.DescriptorFor(kind)
	if !ok {
		return nil, &domain.NotFoundError{Resource: "collection", ID: string(kind)}
	}

	raw, err := s.store.Records().CountCurrentByFieldValue(ctx, kind, desc.RegionField)
	if err != nil {
		return nil, err
	}

	buckets := make(map[string]int, len(raw))
	for value, count := range raw {
		buckets[s.regions.Normalize(value)] += count
	}

	out := make([]RegionCount, 0, len(buckets))
	for region, count := range buckets {
		out = append(out, RegionCount{Region: region, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Region < out[j].Region
	})
	return out, nil
}
