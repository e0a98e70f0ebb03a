package sync

import (
	"context"

	"github.com/merchpulse/storesync/internal/model"
	apperrors "github.com/merchpulse/storesync/pkg/errors"
)

// VariantAdapter handles combination mutations and owns the
// product/variant crossover: the remote side must never hold a bare
// product record and variant records for the same product at once.
type VariantAdapter struct {
	adapterBase
}

func (a *VariantAdapter) OnAdd(ctx context.Context, combinationID int64) error {
	combination, err := a.catalog.Combination(ctx, combinationID)
	if apperrors.IsNotFound(err) {
		a.logger.Warn("combination vanished before enqueue", "combination_id", combinationID)
		return nil
	}
	if err != nil {
		return err
	}

	product, err := a.catalog.Product(ctx, combination.ProductID)
	if apperrors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}

	combinations, err := a.catalog.Combinations(ctx, product.ID)
	if err != nil {
		return err
	}

	// First variant: retire the bare-product record in the same operation
	// so both forms never coexist remotely.
	if len(combinations) == 1 {
		err := a.enqueue(ctx, model.ActionDelete, model.EntityProducts, product.ID, &model.ProductPayload{
			ProductID: product.ID,
			VariantID: model.NoVariants,
		})
		if err != nil {
			return err
		}
	}

	item, err := a.build.VariantRecord(ctx, combination, product, true)
	if err != nil {
		return err
	}
	return a.enqueue(ctx, model.ActionCreate, model.EntityVariants, combinationID, &model.ProductPayload{
		ProductID: product.ID,
		VariantID: variantID(combinationID),
		Item:      item,
	})
}

func (a *VariantAdapter) OnUpdate(ctx context.Context, combinationID int64) error {
	combination, err := a.catalog.Combination(ctx, combinationID)
	if apperrors.IsNotFound(err) {
		a.logger.Warn("combination vanished before enqueue", "combination_id", combinationID)
		return nil
	}
	if err != nil {
		return err
	}

	item, err := a.build.VariantRecord(ctx, combination, nil, false)
	if err != nil {
		return err
	}
	if item == nil {
		return nil
	}
	return a.enqueue(ctx, model.ActionUpdate, model.EntityVariants, combinationID, &model.ProductPayload{
		ProductID: combination.ProductID,
		VariantID: variantID(combinationID),
		Item:      item,
	})
}

// OnDelete runs after the platform removed the combination, so the
// parent product id travels with the event.
func (a *VariantAdapter) OnDelete(ctx context.Context, combinationID, productID int64) error {
	err := a.enqueue(ctx, model.ActionDelete, model.EntityVariants, combinationID, &model.ProductPayload{
		ProductID: productID,
		VariantID: variantID(combinationID),
	})
	if err != nil {
		return err
	}

	remaining, err := a.catalog.Combinations(ctx, productID)
	if err != nil {
		return err
	}
	if len(remaining) > 0 {
		return nil
	}

	// Last variant gone: the product reverts to a bare record.
	product, err := a.catalog.Product(ctx, productID)
	if apperrors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
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
