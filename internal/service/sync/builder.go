package sync

import (
	"context"
	"fmt"
	"strconv"

	"github.com/merchpulse/storesync/internal/model"
	"github.com/merchpulse/storesync/internal/repository"
	apperrors "github.com/merchpulse/storesync/pkg/errors"
)

// Builder projects local catalog entities into remote-facing records.
// Projections are pure given the entity's current state; withID controls
// whether the entity's own id is embedded (create bodies carry ids,
// update bodies key on the ids stored in the job payload).
type Builder struct {
	catalog          repository.CatalogRepository
	storeURL         string
	cancelledStateID int
}

func NewBuilder(catalog repository.CatalogRepository, storeURL string, cancelledStateID int) *Builder {
	return &Builder{
		catalog:          catalog,
		storeURL:         storeURL,
		cancelledStateID: cancelledStateID,
	}
}

func (b *Builder) ProductRecord(ctx context.Context, p *model.Product, withID bool) (*model.ProductRecord, error) {
	categories, mainCategory, err := b.categoryNames(ctx, p)
	if err != nil {
		return nil, err
	}

	record := &model.ProductRecord{
		Name:         p.Name,
		Price:        effectivePrice(p.SalePrice, p.Price),
		FullPrice:    p.Price,
		Link:         p.Link,
		Available:    p.AvailableForSale,
		Description:  p.Description,
		PhotoURL:     p.PhotoURL,
		Stock:        p.Stock,
		Categories:   categories,
		MainCategory: mainCategory,
	}
	if withID {
		record.ProductID = p.ID
		record.VariantID = model.NoVariants
	}
	return record, nil
}

// VariantRecord returns nil without error when the parent product has
// vanished; callers skip the variant in that case.
func (b *Builder) VariantRecord(ctx context.Context, c *model.Combination, p *model.Product, withID bool) (*model.ProductRecord, error) {
	if p == nil {
		var err error
		p, err = b.catalog.Product(ctx, c.ProductID)
		if apperrors.IsNotFound(err) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
	}

	categories, mainCategory, err := b.categoryNames(ctx, p)
	if err != nil {
		return nil, err
	}

	record := &model.ProductRecord{
		Name:         p.Name,
		Price:        effectivePrice(c.SalePrice, p.Price+c.PriceDelta),
		FullPrice:    p.Price + c.PriceDelta,
		Link:         p.Link,
		Available:    p.AvailableForSale,
		Description:  p.Description,
		PhotoURL:     p.PhotoURL,
		Stock:        c.Stock,
		Categories:   categories,
		MainCategory: mainCategory,
	}
	if withID {
		record.ProductID = p.ID
		record.VariantID = strconv.FormatInt(c.ID, 10)
	}
	return record, nil
}

func (b *Builder) CategoryRecord(category *model.Category, withID bool) *model.CategoryRecord {
	record := &model.CategoryRecord{
		Name: category.Name,
		Link: category.Link,
	}
	if withID {
		record.CategoryID = category.ID
	}
	return record
}

func (b *Builder) UserRecord(customer *model.Customer, withID bool) *model.UserRecord {
	record := &model.UserRecord{
		Email:     customer.Email,
		FirstName: customer.FirstName,
		LastName:  customer.LastName,
		Timestamp: model.RemoteTimestamp(customer.CreatedAt),
	}
	if withID {
		record.UserID = strconv.FormatInt(customer.ID, 10)
	}
	return record
}

// GuestUserRecord synthesizes a pseudo-user for a guest order, keyed by
// email rather than customer id.
func (b *Builder) GuestUserRecord(order *model.Order) *model.UserRecord {
	title := "Mrs"
	if order.Customer.Gender == 1 {
		title = "Mr"
	}
	return &model.UserRecord{
		UserID:          order.Customer.Email,
		Email:           order.Customer.Email,
		Title:           title,
		FirstName:       order.Customer.FirstName,
		LastName:        order.Customer.LastName,
		EmailSubscriber: false,
		GuestAccount:    true,
	}
}

func (b *Builder) OrderRecord(order *model.Order, withID bool) *model.OrderRecord {
	userID := strconv.FormatInt(order.CustomerID, 10)
	if order.Customer != nil && order.Customer.Guest {
		userID = order.Customer.Email
	}

	status := "completed"
	if order.StateID == b.cancelledStateID {
		status = "cancelled"
	}

	lines := make([]model.OrderLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, model.OrderLine{
			ProductID: item.ProductID,
			VariantID: variantID(item.CombinationID),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Currency:  order.Currency,
		})
	}

	record := &model.OrderRecord{
		UserID:      userID,
		Timestamp:   model.RemoteTimestamp(order.CreatedAt),
		OrderStatus: status,
		Cart:        lines,
	}
	if withID {
		record.OrderID = order.ID
	}
	return record
}

func (b *Builder) CartEvent(cart *model.Cart) model.EventPayload {
	lines := make([]model.OrderLine, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		lines = append(lines, model.OrderLine{
			ProductID: line.ProductID,
			VariantID: variantID(line.CombinationID),
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Currency:  cart.Currency,
		})
	}

	return model.EventPayload{
		User: model.EventUser{UserID: strconv.FormatInt(cart.CustomerID, 10)},
		Event: model.EventRecord{
			Type:     "cart",
			Subtype:  "update",
			Cart:     lines,
			CartLink: b.storeURL + "/cart",
		},
	}
}

func (b *Builder) categoryNames(ctx context.Context, p *model.Product) ([]string, string, error) {
	names := make([]string, 0, len(p.CategoryIDs))
	for _, id := range p.CategoryIDs {
		name, err := b.catalog.CategoryName(ctx, id)
		if apperrors.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("failed to resolve category %d: %w", id, err)
		}
		names = append(names, name)
	}

	mainCategory, err := b.catalog.CategoryName(ctx, p.MainCategoryID)
	if err != nil && !apperrors.IsNotFound(err) {
		return nil, "", fmt.Errorf("failed to resolve main category: %w", err)
	}
	return names, mainCategory, nil
}

func effectivePrice(sale, full float64) float64 {
	if sale > 0 && sale < full {
		return sale
	}
	return full
}

// variantID renders a combination id for the remote API, mapping the
// zero id onto the no-variants sentinel.
func variantID(combinationID int64) string {
	if combinationID <= 0 {
		return model.NoVariants
	}
	return strconv.FormatInt(combinationID, 10)
}
