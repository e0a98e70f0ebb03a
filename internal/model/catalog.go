package model

import "time"

// Local catalog entities. The host platform owns these; this service
// only reads them to build remote-facing records.

type Product struct {
	ID               int64     `db:"id"`
	Name             string    `db:"name"`
	Price            float64   `db:"price"`
	SalePrice        float64   `db:"sale_price"`
	Link             string    `db:"link"`
	AvailableForSale bool      `db:"available_for_sale"`
	Description      string    `db:"description"`
	PhotoURL         string    `db:"photo_url"`
	Stock            int       `db:"stock"`
	MainCategoryID   int64     `db:"main_category_id"`
	CategoryIDs      []int64   `db:"-"`
	CreatedAt        time.Time `db:"created_at"`
}

// Combination is a purchasable variant of a product.
type Combination struct {
	ID         int64   `db:"id"`
	ProductID  int64   `db:"product_id"`
	PriceDelta float64 `db:"price_delta"`
	SalePrice  float64 `db:"sale_price"`
	Stock      int     `db:"stock"`
}

type Category struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
	Link string `db:"link"`
}

type Customer struct {
	ID        int64     `db:"id"`
	Email     string    `db:"email"`
	FirstName string    `db:"first_name"`
	LastName  string    `db:"last_name"`
	Gender    int       `db:"gender"`
	Guest     bool      `db:"guest"`
	CreatedAt time.Time `db:"created_at"`
}

type OrderItem struct {
	ProductID     int64   `db:"product_id"`
	CombinationID int64   `db:"combination_id"`
	Quantity      int     `db:"quantity"`
	UnitPrice     float64 `db:"unit_price"`
}

type Order struct {
	ID         int64       `db:"id"`
	CustomerID int64       `db:"customer_id"`
	StateID    int         `db:"state_id"`
	Currency   string      `db:"currency"`
	CreatedAt  time.Time   `db:"created_at"`
	Customer   *Customer   `db:"-"`
	Items      []OrderItem `db:"-"`
}

type CartLine struct {
	ProductID     int64   `json:"product_id"`
	CombinationID int64   `json:"combination_id"`
	Quantity      int     `json:"quantity"`
	UnitPrice     float64 `json:"unit_price"`
}

type Cart struct {
	CustomerID int64      `json:"customer_id"`
	Lines      []CartLine `json:"lines"`
	Currency   string     `json:"currency"`
}
