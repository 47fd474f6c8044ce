package service

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/hemidirasim/sahibparfum-sub001/internal/errors"
	"github.com/hemidirasim/sahibparfum-sub001/internal/models"
	"github.com/hemidirasim/sahibparfum-sub001/internal/repository"
)

const (
	defaultPageSize = 12
	maxPageSize     = 60
)

// CatalogService serves the storefront product listing.
type CatalogService struct {
	repo repository.CatalogRepository
}

func NewCatalogService(repo repository.CatalogRepository) *CatalogService {
	return &CatalogService{repo: repo}
}

func (s *CatalogService) ListProducts(ctx context.Context, filter *models.ProductFilter) (*models.ProductPage, error) {
	return s.repo.ListProducts(ctx, filter)
}

func (s *CatalogService) GetProduct(ctx context.Context, slug string) (*models.Product, error) {
	return s.repo.GetProductBySlug(ctx, slug)
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]models.Category, error) {
	return s.repo.ListCategories(ctx)
}

// ParseProductFilter reads listing query parameters into a normalized filter.
func ParseProductFilter(q url.Values) (*models.ProductFilter, error) {
	f := &models.ProductFilter{
		CategorySlug: strings.TrimSpace(q.Get("category")),
		Brands:       splitList(q.Get("brand")),
		Search:       strings.TrimSpace(q.Get("search")),
		Sort:         models.ProductSort(q.Get("sort")),
		Page:         1,
		Limit:        defaultPageSize,
	}

	var err error
	if f.MinPrice, err = parseDecimal(q.Get("minPrice"), "minPrice"); err != nil {
		return nil, err
	}
	if f.MaxPrice, err = parseDecimal(q.Get("maxPrice"), "maxPrice"); err != nil {
		return nil, err
	}
	if f.MinPrice != nil && f.MaxPrice != nil && f.MinPrice.GreaterThan(*f.MaxPrice) {
		return nil, errors.NewValidationError("minPrice", "minPrice cannot exceed maxPrice")
	}

	for _, v := range splitList(q.Get("volume")) {
		ml, err := strconv.Atoi(strings.TrimSuffix(strings.ToLower(v), "ml"))
		if err != nil || ml <= 0 {
			return nil, errors.NewValidationError("volume", "volume must be a list of positive integers")
		}
		f.Volumes = append(f.Volumes, ml)
	}

	if v := q.Get("rating"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil || r < 0 || r > 5 {
			return nil, errors.NewValidationError("rating", "rating must be between 0 and 5")
		}
		f.MinRating = r
	}

	if v := q.Get("page"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			f.Page = p
		}
	}
	if v := q.Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil && l > 0 {
			f.Limit = min(l, maxPageSize)
		}
	}

	switch f.Sort {
	case models.SortNewest, models.SortPriceAsc, models.SortPriceDesc, models.SortRating, models.SortName:
	default:
		f.Sort = models.SortNewest
	}

	return f, nil
}

func parseDecimal(v, field string) (*decimal.Decimal, error) {
	if v == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil || d.IsNegative() {
		return nil, errors.NewValidationError(field, field+" must be a non-negative number")
	}
	return &d, nil
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
