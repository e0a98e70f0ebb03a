package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	gocache "github.com/patrickmn/go-cache"

	"github.com/merchpulse/storesync/internal/model"
	"github.com/merchpulse/storesync/internal/repository"
	apperrors "github.com/merchpulse/storesync/pkg/errors"
)

// catalogRepository reads the host platform's tables. Everything here is
// read-only; the sync subsystem never mutates catalog state.
type catalogRepository struct {
	BaseRepository
	// Category names change rarely but are resolved for every product
	// record build, so they get a short-lived cache.
	names *gocache.Cache
}

func NewCatalogRepository(base BaseRepository) repository.CatalogRepository {
	return &catalogRepository{
		BaseRepository: base,
		names:          gocache.New(5*time.Minute, 10*time.Minute),
	}
}

func (r *catalogRepository) ProductIDs(ctx context.Context) ([]int64, error) {
	return r.selectIDs(ctx, `SELECT id FROM products ORDER BY id ASC`)
}

// CombinationIDs lists variant ids, optionally excluding variants whose
// parent product is in excludeProductIDs (used by the initializer to
// skip products already known remotely).
func (r *catalogRepository) CombinationIDs(ctx context.Context, excludeProductIDs []int64) ([]int64, error) {
	if len(excludeProductIDs) == 0 {
		return r.selectIDs(ctx, `SELECT id FROM product_combinations ORDER BY id ASC`)
	}

	query, args, err := sqlx.In(
		`SELECT id FROM product_combinations WHERE product_id NOT IN (?) ORDER BY id ASC`,
		excludeProductIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to expand combination filter: %w", err)
	}

	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list combination ids: %w", err)
	}
	return ids, nil
}

func (r *catalogRepository) CategoryIDs(ctx context.Context) ([]int64, error) {
	return r.selectIDs(ctx, `SELECT id FROM categories ORDER BY id ASC`)
}

func (r *catalogRepository) CustomerIDs(ctx context.Context) ([]int64, error) {
	return r.selectIDs(ctx, `SELECT id FROM customers ORDER BY id ASC`)
}

func (r *catalogRepository) OrderIDs(ctx context.Context) ([]int64, error) {
	return r.selectIDs(ctx, `SELECT id FROM orders ORDER BY id ASC`)
}

func (r *catalogRepository) Product(ctx context.Context, id int64) (*model.Product, error) {
	query := `
		SELECT id, name, price, sale_price, link, available_for_sale,
		       description, photo_url, stock, main_category_id, created_at
		FROM products WHERE id = $1
	`

	var product model.Product
	if err := r.db.GetContext(ctx, &product, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("product", err)
		}
		return nil, fmt.Errorf("failed to load product %d: %w", id, err)
	}

	categoryIDs, err := r.selectIDsArg(ctx,
		`SELECT category_id FROM product_categories WHERE product_id = $1 ORDER BY category_id ASC`, id)
	if err != nil {
		return nil, err
	}
	product.CategoryIDs = categoryIDs

	return &product, nil
}

func (r *catalogRepository) Combinations(ctx context.Context, productID int64) ([]*model.Combination, error) {
	query := `
		SELECT id, product_id, price_delta, sale_price, stock
		FROM product_combinations WHERE product_id = $1 ORDER BY id ASC
	`

	var combinations []*model.Combination
	if err := r.db.SelectContext(ctx, &combinations, query, productID); err != nil {
		return nil, fmt.Errorf("failed to load combinations for product %d: %w", productID, err)
	}
	return combinations, nil
}

func (r *catalogRepository) Combination(ctx context.Context, id int64) (*model.Combination, error) {
	query := `SELECT id, product_id, price_delta, sale_price, stock FROM product_combinations WHERE id = $1`

	var combination model.Combination
	if err := r.db.GetContext(ctx, &combination, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("combination", err)
		}
		return nil, fmt.Errorf("failed to load combination %d: %w", id, err)
	}
	return &combination, nil
}

func (r *catalogRepository) Category(ctx context.Context, id int64) (*model.Category, error) {
	var category model.Category
	if err := r.db.GetContext(ctx, &category, `SELECT id, name, link FROM categories WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("category", err)
		}
		return nil, fmt.Errorf("failed to load category %d: %w", id, err)
	}
	return &category, nil
}

func (r *catalogRepository) CategoryName(ctx context.Context, id int64) (string, error) {
	key := fmt.Sprintf("category:%d", id)
	if name, ok := r.names.Get(key); ok {
		return name.(string), nil
	}

	category, err := r.Category(ctx, id)
	if err != nil {
		return "", err
	}

	r.names.Set(key, category.Name, gocache.DefaultExpiration)
	return category.Name, nil
}

func (r *catalogRepository) Customer(ctx context.Context, id int64) (*model.Customer, error) {
	query := `SELECT id, email, first_name, last_name, gender, guest, created_at FROM customers WHERE id = $1`

	var customer model.Customer
	if err := r.db.GetContext(ctx, &customer, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("customer", err)
		}
		return nil, fmt.Errorf("failed to load customer %d: %w", id, err)
	}
	return &customer, nil
}

func (r *catalogRepository) Order(ctx context.Context, id int64) (*model.Order, error) {
	query := `SELECT id, customer_id, state_id, currency, created_at FROM orders WHERE id = $1`

	var order model.Order
	if err := r.db.GetContext(ctx, &order, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("order", err)
		}
		return nil, fmt.Errorf("failed to load order %d: %w", id, err)
	}

	customer, err := r.Customer(ctx, order.CustomerID)
	if err != nil {
		return nil, err
	}
	order.Customer = customer

	itemsQuery := `
		SELECT product_id, combination_id, quantity, unit_price
		FROM order_items WHERE order_id = $1 ORDER BY product_id ASC
	`
	var items []model.OrderItem
	if err := r.db.SelectContext(ctx, &items, itemsQuery, id); err != nil {
		return nil, fmt.Errorf("failed to load order items for %d: %w", id, err)
	}
	order.Items = items

	return &order, nil
}

func (r *catalogRepository) selectIDs(ctx context.Context, query string) ([]int64, error) {
	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, query); err != nil {
		return nil, fmt.Errorf("failed to list ids: %w", err)
	}
	return ids, nil
}

func (r *catalogRepository) selectIDsArg(ctx context.Context, query string, arg any) ([]int64, error) {
	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, query, arg); err != nil {
		return nil, fmt.Errorf("failed to list ids: %w", err)
	}
	return ids, nil
}
