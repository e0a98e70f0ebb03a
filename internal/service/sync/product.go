package sync

import (
	"context"

	"github.com/merchpulse/storesync/internal/model"
	apperrors "github.com/merchpulse/storesync/pkg/errors"
)

// ProductAdapter handles bare-product mutations. A product with
// combinations is synced exclusively through its variants; the adapter
// stays silent for it and lets the variant adapter carry the state.
type ProductAdapter struct {
	adapterBase
}

func (a *ProductAdapter) OnAdd(ctx context.Context, productID int64) error {
	product, err := a.catalog.Product(ctx, productID)
	if apperrors.IsNotFound(err) {
		a.logger.Warn("product vanished before enqueue", "product_id", productID)
		return nil
	}
	if err != nil {
		return err
	}

	combinations, err := a.catalog.Combinations(ctx, productID)
	if err != nil {
		return err
	}
	if len(combinations) > 0 {
		return nil
	}

	item, err := a.build.ProductRecord(ctx, product, true)
	if err != nil {
		return err
	}
	return a.enqueue(ctx, model.ActionCreate, model.EntityProducts, productID, &model.ProductPayload{
		ProductID: productID,
		VariantID: model.NoVariants,
		Item:      item,
	})
}

func (a *ProductAdapter) OnUpdate(ctx context.Context, productID int64) error {
	product, err := a.catalog.Product(ctx, productID)
	if apperrors.IsNotFound(err) {
		// Vanished between the platform event and now; downgrade to delete.
		return a.OnDelete(ctx, productID)
	}
	if err != nil {
		return err
	}

	combinations, err := a.catalog.Combinations(ctx, productID)
	if err != nil {
		return err
	}

	// Product-level changes (name, category, availability) affect every
	// variant record, so a combined product re-projects its variants.
	if len(combinations) > 0 {
		for _, combination := range combinations {
			item, err := a.build.VariantRecord(ctx, combination, product, false)
			if err != nil {
				return err
			}
			if item == nil {
				continue
			}
			err = a.enqueue(ctx, model.ActionUpdate, model.EntityVariants, combination.ID, &model.ProductPayload{
				ProductID: productID,
				VariantID: variantID(combination.ID),
				Item:      item,
			})
			if err != nil {
				return err
			}
		}
		return nil
	}

	item, err := a.build.ProductRecord(ctx, product, false)
	if err != nil {
		return err
	}
	return a.enqueue(ctx, model.ActionUpdate, model.EntityProducts, productID, &model.ProductPayload{
		ProductID: productID,
		VariantID: model.NoVariants,
		Item:      item,
	})
}

func (a *ProductAdapter) OnDelete(ctx context.Context, productID int64) error {
	return a.enqueue(ctx, model.ActionDelete, model.EntityProducts, productID, &model.ProductPayload{
		ProductID: productID,
		VariantID: model.NoVariants,
	})
}

// OnStatusChange covers availability toggles; the projection already
// carries availability so this is a plain re-sync.
func (a *ProductAdapter) OnStatusChange(ctx context.Context, productID int64) error {
	return a.OnUpdate(ctx, productID)
}

// OnQuantityChange covers stock movements.
func (a *ProductAdapter) OnQuantityChange(ctx context.Context, productID int64) error {
	return a.OnUpdate(ctx, productID)
}
