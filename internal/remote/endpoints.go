package remote

import (
	"context"
	"fmt"
	"net/http"
)

// EntityEndpoint exposes the batch CRUD verbs shared by the products,
// categories and users collections. Variants fold into products and
// guest users fold into users on the remote side.
type EntityEndpoint struct {
	client *Client
	entity string
}

func (e *EntityEndpoint) BatchCreate(ctx context.Context, items any) (*Response, error) {
	return e.client.do(ctx, http.MethodPost, "/v1/"+e.entity, items)
}

func (e *EntityEndpoint) BatchUpdate(ctx context.Context, items any) (*Response, error) {
	return e.client.do(ctx, http.MethodPut, "/v1/"+e.entity, items)
}

// BatchDelete accepts whatever key shape the collection uses: bare ids
// for categories/users/orders, {product_id, variant_id} pairs for
// products.
func (e *EntityEndpoint) BatchDelete(ctx context.Context, keys any) (*Response, error) {
	return e.client.do(ctx, http.MethodDelete, "/v1/"+e.entity, keys)
}

func (e *EntityEndpoint) DeleteAll(ctx context.Context) (*Response, error) {
	return e.client.do(ctx, http.MethodDelete, "/v1/"+e.entity+"/all", nil)
}

type OrdersEndpoint struct {
	EntityEndpoint
}

func (e *OrdersEndpoint) BatchCancel(ctx context.Context, ids []int64) (*Response, error) {
	return e.client.do(ctx, http.MethodPost, "/v1/orders/cancel", ids)
}

type EventsEndpoint struct {
	client *Client
}

func (e *EventsEndpoint) BatchTrack(ctx context.Context, events any) (*Response, error) {
	return e.client.do(ctx, http.MethodPost, "/v1/events", events)
}

// OverviewEndpoint enumerates the ids the remote service already holds,
// used for bootstrap diffing and credential validation.
type OverviewEndpoint struct {
	client *Client
}

// All is the lightweight credential check: any 2xx means the key pair is
// valid.
func (o *OverviewEndpoint) All(ctx context.Context) error {
	res, err := o.client.do(ctx, http.MethodGet, "/v1/overview", nil)
	if err != nil {
		return err
	}
	if !res.Success() {
		return fmt.Errorf("overview request returned %d", res.HTTPCode)
	}
	return nil
}

func (o *OverviewEndpoint) Products(ctx context.Context) ([]int64, error) {
	return o.ids(ctx, "products")
}

func (o *OverviewEndpoint) Categories(ctx context.Context) ([]int64, error) {
	return o.ids(ctx, "categories")
}

func (o *OverviewEndpoint) Users(ctx context.Context) ([]int64, error) {
	return o.ids(ctx, "users")
}

func (o *OverviewEndpoint) Orders(ctx context.Context) ([]int64, error) {
	return o.ids(ctx, "orders")
}

func (o *OverviewEndpoint) ids(ctx context.Context, entity string) ([]int64, error) {
	res, err := o.client.do(ctx, http.MethodGet, "/v1/overview/"+entity, nil)
	if err != nil {
		return nil, err
	}
	if !res.Success() {
		return nil, fmt.Errorf("overview %s returned %d", entity, res.HTTPCode)
	}

	var set IDSet
	if err := res.DecodeData(&set); err != nil {
		return nil, err
	}
	return set.IDs, nil
}
