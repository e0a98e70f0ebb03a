package model

import (
	"encoding/json"
	"fmt"
)

// Job payloads form a tagged union keyed by (action, entity type). Each
// producer marshals one of the concrete types below and the dispatcher
// decodes through DecodePayload, so the per-branch field access is
// checked at compile time instead of duck-typed.

// ProductPayload carries product and variant jobs. VariantID is either a
// numeric combination id rendered as a string or the NoVariants sentinel.
type ProductPayload struct {
	ProductID int64          `json:"product_id"`
	VariantID string         `json:"variant_id"`
	Item      *ProductRecord `json:"item,omitempty"`
}

type CategoryPayload struct {
	CategoryID int64           `json:"category_id"`
	Item       *CategoryRecord `json:"item,omitempty"`
}

type UserPayload struct {
	UserID int64       `json:"user_id"`
	Item   *UserRecord `json:"item,omitempty"`
}

// GuestUserPayload has no local entity id; guest users are keyed by email
// on the remote side.
type GuestUserPayload struct {
	Item *UserRecord `json:"item"`
}

type OrderPayload struct {
	OrderID int64        `json:"order_id"`
	Item    *OrderRecord `json:"item,omitempty"`
}

// IDListPayload carries bulk init/reinit chunks.
type IDListPayload struct {
	IDs []int64 `json:"ids"`
}

// EventPayload carries a browser-side tracking event for one user.
type EventPayload struct {
	User  EventUser   `json:"user"`
	Event EventRecord `json:"event"`
}

// MarshalPayload serializes a payload value for storage on a Job.
func MarshalPayload(p any) (json.RawMessage, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job payload: %w", err)
	}
	return b, nil
}

// DecodePayload returns the typed payload for a job based on its action
// and entity type.
func (j *Job) DecodePayload() (any, error) {
	decode := func(v any) (any, error) {
		if err := json.Unmarshal(j.Payload, v); err != nil {
			return nil, fmt.Errorf("failed to decode %s/%s payload for job %d: %w",
				j.Action, j.EntityType, j.ID, err)
		}
		return v, nil
	}

	switch j.Action {
	case ActionInit, ActionReinit:
		return decode(&IDListPayload{})
	case ActionDeleteAll:
		return &IDListPayload{}, nil
	case ActionTrack:
		return decode(&EventPayload{})
	}

	switch j.EntityType {
	case EntityProducts, EntityVariants:
		return decode(&ProductPayload{})
	case EntityCategories:
		return decode(&CategoryPayload{})
	case EntityUsers:
		return decode(&UserPayload{})
	case EntityGuestUsers:
		return decode(&GuestUserPayload{})
	case EntityOrders:
		return decode(&OrderPayload{})
	}
	return nil, fmt.Errorf("no payload type for %s/%s", j.Action, j.EntityType)
}

// ProductPayload returns the job payload decoded as a product/variant
// payload, failing on any other pairing.
func (j *Job) ProductPayload() (*ProductPayload, error) {
	p, err := j.DecodePayload()
	if err != nil {
		return nil, err
	}
	v, ok := p.(*ProductPayload)
	if !ok {
		return nil, fmt.Errorf("job %d is not a product job", j.ID)
	}
	return v, nil
}

// IDList returns the job payload decoded as a bulk id list.
func (j *Job) IDList() (*IDListPayload, error) {
	p, err := j.DecodePayload()
	if err != nil {
		return nil, err
	}
	v, ok := p.(*IDListPayload)
	if !ok {
		return nil, fmt.Errorf("job %d is not a bulk job", j.ID)
	}
	return v, nil
}
