package sync

import (
	"context"

	"github.com/merchpulse/storesync/internal/model"
	apperrors "github.com/merchpulse/storesync/pkg/errors"
)

type CategoryAdapter struct {
	adapterBase
}

func (a *CategoryAdapter) OnAdd(ctx context.Context, categoryID int64) error {
	return a.sync(ctx, model.ActionCreate, categoryID, true)
}

func (a *CategoryAdapter) OnUpdate(ctx context.Context, categoryID int64) error {
	return a.sync(ctx, model.ActionUpdate, categoryID, false)
}

func (a *CategoryAdapter) OnDelete(ctx context.Context, categoryID int64) error {
	return a.enqueue(ctx, model.ActionDelete, model.EntityCategories, categoryID, &model.CategoryPayload{
		CategoryID: categoryID,
	})
}

func (a *CategoryAdapter) sync(ctx context.Context, action model.Action, categoryID int64, withID bool) error {
	category, err := a.catalog.Category(ctx, categoryID)
	if apperrors.IsNotFound(err) {
		a.logger.Warn("category vanished before enqueue", "category_id", categoryID)
		return nil
	}
	if err != nil {
		return err
	}

	return a.enqueue(ctx, action, model.EntityCategories, categoryID, &model.CategoryPayload{
		CategoryID: categoryID,
		Item:       a.build.CategoryRecord(category, withID),
	})
}
