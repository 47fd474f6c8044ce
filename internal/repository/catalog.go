package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/hemidirasim/sahibparfum-sub001/internal/errors"
	"github.com/hemidirasim/sahibparfum-sub001/internal/logging"
	"github.com/hemidirasim/sahibparfum-sub001/internal/models"
)

const effectivePriceExpr = "COALESCE(NULLIF(sale_price, 0), price)"

// likeEscaper quotes LIKE wildcards with PostgreSQL's default escape character.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

var _ CatalogRepository = (*GormCatalogRepository)(nil)

// GormCatalogRepository reads products and categories through gorm.
type GormCatalogRepository struct {
	db     *gorm.DB
	logger *logging.LoggerV2
}

func NewGormCatalogRepository(db *gorm.DB, logger *logging.LoggerV2) *GormCatalogRepository {
	return &GormCatalogRepository{db: db, logger: logger}
}

// condition is one WHERE clause with its arguments.
type condition struct {
	Query string
	Args  []interface{}
}

// productConditions translates a listing filter into WHERE clauses. categoryIDs
// holds the resolved category and its children when a category was requested.
func productConditions(f *models.ProductFilter, categoryIDs []string) []condition {
	conds := []condition{{Query: "is_active = ?", Args: []interface{}{true}}}

	if f.CategorySlug != "" {
		conds = append(conds, condition{Query: "category_id IN ?", Args: []interface{}{categoryIDs}})
	}
	if len(f.Brands) > 0 {
		conds = append(conds, condition{Query: "brand IN ?", Args: []interface{}{f.Brands}})
	}
	if f.MinPrice != nil {
		conds = append(conds, condition{Query: effectivePriceExpr + " >= ?", Args: []interface{}{*f.MinPrice}})
	}
	if f.MaxPrice != nil {
		conds = append(conds, condition{Query: effectivePriceExpr + " <= ?", Args: []interface{}{*f.MaxPrice}})
	}
	if len(f.Volumes) > 0 {
		conds = append(conds, condition{Query: "volume_ml IN ?", Args: []interface{}{f.Volumes}})
	}
	if f.MinRating > 0 {
		conds = append(conds, condition{Query: "rating >= ?", Args: []interface{}{f.MinRating}})
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + likeEscaper.Replace(s) + "%"
		conds = append(conds, condition{
			Query: "(name ILIKE ? OR brand ILIKE ? OR description ILIKE ?)",
			Args:  []interface{}{like, like, like},
		})
	}
	return conds
}

func productOrder(sort models.ProductSort) string {
	switch sort {
	case models.SortPriceAsc:
		return effectivePriceExpr + " ASC"
	case models.SortPriceDesc:
		return effectivePriceExpr + " DESC"
	case models.SortRating:
		return "rating DESC"
	case models.SortName:
		return "name ASC"
	default:
		return "created_at DESC"
	}
}

// ListProducts returns one page of active products matching the filter.
func (r *GormCatalogRepository) ListProducts(ctx context.Context, f *models.ProductFilter) (*models.ProductPage, error) {
	var categoryIDs []string
	if f.CategorySlug != "" {
		ids, err := r.categoryTree(ctx, f.CategorySlug)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return &models.ProductPage{Products: []models.Product{}, Page: f.Page}, nil
		}
		categoryIDs = ids
	}

	q := r.db.WithContext(ctx).Model(&models.Product{})
	for _, c := range productConditions(f, categoryIDs) {
		q = q.Where(c.Query, c.Args...)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, err
	}

	products := make([]models.Product, 0, f.Limit)
	err := q.Order(productOrder(f.Sort)).
		Limit(f.Limit).
		Offset((f.Page - 1) * f.Limit).
		Find(&products).Error
	if err != nil {
		r.logger.Error("Failed to list products", logging.Fields{"error": err.Error()})
		return nil, err
	}

	totalPages := int((total + int64(f.Limit) - 1) / int64(f.Limit))
	return &models.ProductPage{
		Products:   products,
		Total:      total,
		Page:       f.Page,
		TotalPages: totalPages,
	}, nil
}

// categoryTree resolves a slug to the category id plus the ids of its children.
func (r *GormCatalogRepository) categoryTree(ctx context.Context, slug string) ([]string, error) {
	var root models.Category
	err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&root).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var children []string
	if err := r.db.WithContext(ctx).Model(&models.Category{}).
		Where("parent_id = ?", root.ID).
		Pluck("id", &children).Error; err != nil {
		return nil, err
	}
	return append([]string{root.ID}, children...), nil
}

func (r *GormCatalogRepository) GetProductBySlug(ctx context.Context, slug string) (*models.Product, error) {
	var p models.Product
	err := r.db.WithContext(ctx).Where("slug = ? AND is_active = ?", slug, true).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *GormCatalogRepository) ListCategories(ctx context.Context) ([]models.Category, error) {
	categories := make([]models.Category, 0)
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&categories).Error; err != nil {
		return nil, err
	}
	return categories, nil
}
