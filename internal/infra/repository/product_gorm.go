package repository

import (
	"context"
	"errors"

	"ecshop/internal/domain/model"
	repo "ecshop/internal/repository"

	"gorm.io/gorm"
)

// sortキー -> ORDER BY（idは同値時の順序固定）
var productOrders = map[string][]string{
	"price_asc":  {"price ASC", "id ASC"},
	"price_desc": {"price DESC", "id DESC"},
	"name":       {"name ASC", "id ASC"},
	"new":        {"created_at DESC", "id DESC"},
}

type ProductGormRepository struct {
	db *gorm.DB
}

func NewProductGormRepository(db *gorm.DB) *ProductGormRepository {
	return &ProductGormRepository{db: db}
}

// 公開中（is_active かつ未削除）だけ
func (r *ProductGormRepository) ListPublic(ctx context.Context, q repo.ProductListQuery) ([]model.Product, int64, error) {
	base := r.db.WithContext(ctx).Model(&model.Product{}).
		Where("is_active = ?", true).
		Scopes(productFilters(q))

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	orders, ok := productOrders[q.Sort]
	if !ok {
		orders = productOrders["new"]
	}
	list := base.Scopes(paginate(q.Page, q.Limit))
	for _, o := range orders {
		list = list.Order(o)
	}

	products := []model.Product{}
	if err := list.Find(&products).Error; err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

func productFilters(q repo.ProductListQuery) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if q.Q != "" {
			like := "%" + q.Q + "%"
			db = db.Where("name ILIKE ? OR description ILIKE ?", like, like)
		}
		if q.Category != "" {
			db = db.Where("category = ?", q.Category)
		}
		if q.MinPrice != nil {
			db = db.Where("price >= ?", *q.MinPrice)
		}
		if q.MaxPrice != nil {
			db = db.Where("price <= ?", *q.MaxPrice)
		}
		return db
	}
}

// page は1始まり
func paginate(page, limit int) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if page < 1 {
			page = 1
		}
		return db.Offset((page - 1) * limit).Limit(limit)
	}
}

func (r *ProductGormRepository) FindByID(ctx context.Context, id int64) (model.Product, error) {
	var p model.Product
	err := r.db.WithContext(ctx).Take(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Product{}, repo.ErrNotFound
	}
	return p, err
}

// 見つからないIDは結果に含まれない（削除済みも同様）
func (r *ProductGormRepository) FindByIDs(ctx context.Context, ids []int64) ([]model.Product, error) {
	products := []model.Product{}
	if len(ids) == 0 {
		return products, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error
	return products, err
}

func (r *ProductGormRepository) Create(ctx context.Context, p model.Product) (model.Product, error) {
	if err := r.db.WithContext(ctx).Create(&p).Error; err != nil {
		return model.Product{}, err
	}
	return p, nil
}

// stockは触らない
func (r *ProductGormRepository) Update(ctx context.Context, p model.Product) error {
	res := r.db.WithContext(ctx).Model(&model.Product{ID: p.ID}).
		Select("name", "description", "category", "price", "is_active").
		Updates(&p)
	return affectedOrNotFound(res)
}

func (r *ProductGormRepository) SoftDelete(ctx context.Context, id int64) error {
	return affectedOrNotFound(r.db.WithContext(ctx).Delete(&model.Product{}, id))
}

func affectedOrNotFound(res *gorm.DB) error {
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
