package sync

import (
	"context"

	"github.com/merchpulse/storesync/internal/model"
	apperrors "github.com/merchpulse/storesync/pkg/errors"
)

type UserAdapter struct {
	adapterBase
}

func (a *UserAdapter) OnAdd(ctx context.Context, customerID int64) error {
	customer, err := a.catalog.Customer(ctx, customerID)
	if apperrors.IsNotFound(err) {
		a.logger.Warn("customer vanished before enqueue", "customer_id", customerID)
		return nil
	}
	if err != nil {
		return err
	}

	return a.enqueue(ctx, model.ActionCreate, model.EntityUsers, customerID, &model.UserPayload{
		UserID: customerID,
		Item:   a.build.UserRecord(customer, true),
	})
}

func (a *UserAdapter) OnUpdate(ctx context.Context, customerID int64) error {
	customer, err := a.catalog.Customer(ctx, customerID)
	if apperrors.IsNotFound(err) {
		return a.OnDelete(ctx, customerID)
	}
	if err != nil {
		return err
	}

	return a.enqueue(ctx, model.ActionUpdate, model.EntityUsers, customerID, &model.UserPayload{
		UserID: customerID,
		Item:   a.build.UserRecord(customer, false),
	})
}

func (a *UserAdapter) OnDelete(ctx context.Context, customerID int64) error {
	return a.enqueue(ctx, model.ActionDelete, model.EntityUsers, customerID, &model.UserPayload{
		UserID: customerID,
	})
}
