package sync

import (
	"context"

	"github.com/merchpulse/storesync/internal/model"
	apperrors "github.com/merchpulse/storesync/pkg/errors"
)

// OrderAdapter handles order lifecycle events, including the guest-order
// pseudo-user and cancellation detection.
type OrderAdapter struct {
	adapterBase
}

func (a *OrderAdapter) OnAdd(ctx context.Context, orderID int64) error {
	order, err := a.catalog.Order(ctx, orderID)
	if apperrors.IsNotFound(err) {
		a.logger.Warn("order vanished before enqueue", "order_id", orderID)
		return nil
	}
	if err != nil {
		return err
	}

	// Guest orders need the pseudo-user upserted alongside the order so
	// the remote side can attribute it.
	if order.Customer != nil && order.Customer.Guest {
		err := a.enqueue(ctx, model.ActionCreate, model.EntityGuestUsers, orderID, &model.GuestUserPayload{
			Item: a.build.GuestUserRecord(order),
		})
		if err != nil {
			return err
		}
	}

	return a.enqueue(ctx, model.ActionCreate, model.EntityOrders, orderID, &model.OrderPayload{
		OrderID: orderID,
		Item:    a.build.OrderRecord(order, true),
	})
}

func (a *OrderAdapter) OnDelete(ctx context.Context, orderID int64) error {
	return a.enqueue(ctx, model.ActionDelete, model.EntityOrders, orderID, &model.OrderPayload{
		OrderID: orderID,
	})
}

// OnStatusChange watches for the cancelled state. The pending-job guard
// keeps duplicate platform events from producing duplicate cancels.
func (a *OrderAdapter) OnStatusChange(ctx context.Context, orderID int64, newStateID int) error {
	if newStateID != a.build.cancelledStateID {
		return nil
	}

	exists, err := a.queue.ExistsPending(ctx, model.ActionCancel, model.EntityOrders, orderID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	return a.enqueue(ctx, model.ActionCancel, model.EntityOrders, orderID, &model.OrderPayload{
		OrderID: orderID,
	})
}
