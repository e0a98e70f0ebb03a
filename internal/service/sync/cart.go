package sync

import (
	"context"

	"github.com/merchpulse/storesync/internal/model"
	apperrors "github.com/merchpulse/storesync/pkg/errors"
)

// CartAdapter relays cart-save events as browse-tracking jobs. Rapid
// cart edits coalesce into one pending job per customer through the
// queue's natural-key upsert.
type CartAdapter struct {
	adapterBase
}

func (a *CartAdapter) OnCartSave(ctx context.Context, cart *model.Cart) error {
	if cart == nil || cart.CustomerID == 0 {
		return nil
	}

	customer, err := a.catalog.Customer(ctx, cart.CustomerID)
	if apperrors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	// Anonymous and guest carts are not tracked.
	if customer.Guest {
		return nil
	}

	payload := a.build.CartEvent(cart)
	return a.enqueue(ctx, model.ActionTrack, model.EntityEvents, cart.CustomerID, &payload)
}
