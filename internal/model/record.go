package model

import "time"

// Remote-facing record shapes. These are the bodies sent to the
// recommendation service's batch endpoints; field names follow its API.

// ProductRecord represents either a bare product or a single variant.
// ProductID/VariantID are only populated on create (the batch update
// endpoints key on the ids carried in the job payload).
type ProductRecord struct {
	ProductID    int64    `json:"product_id,omitempty"`
	VariantID    string   `json:"variant_id,omitempty"`
	Name         string   `json:"name"`
	Price        float64  `json:"price"`
	FullPrice    float64  `json:"full_price"`
	Link         string   `json:"link"`
	Available    bool     `json:"available"`
	Description  string   `json:"description"`
	PhotoURL     string   `json:"photo_url"`
	Stock        int      `json:"stock"`
	Categories   []string `json:"categories"`
	MainCategory string   `json:"main_category"`
}

type CategoryRecord struct {
	CategoryID int64  `json:"category_id,omitempty"`
	Name       string `json:"name"`
	Link       string `json:"link"`
}

// UserRecord covers both registered customers and guest pseudo-users.
// For guests, UserID is the email and GuestAccount is true.
type UserRecord struct {
	UserID          string `json:"user_id,omitempty"`
	Email           string `json:"email"`
	Title           string `json:"title,omitempty"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Timestamp       string `json:"timestamp,omitempty"`
	EmailSubscriber bool   `json:"email_subscriber"`
	GuestAccount    bool   `json:"guest_account,omitempty"`
}

type OrderLine struct {
	ProductID int64   `json:"product_id"`
	VariantID string  `json:"variant_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Currency  string  `json:"currency"`
}

type OrderRecord struct {
	OrderID     int64       `json:"order_id,omitempty"`
	UserID      string      `json:"user_id"`
	Timestamp   string      `json:"timestamp"`
	OrderStatus string      `json:"order_status"`
	Cart        []OrderLine `json:"cart"`
}

type EventUser struct {
	UserID string `json:"user_id"`
}

// EventRecord is a browser-event body, currently only cart updates.
type EventRecord struct {
	Type     string      `json:"type"`
	Subtype  string      `json:"subtype"`
	Cart     []OrderLine `json:"cart"`
	CartLink string      `json:"cart_link"`
}

// RemoteTimestamp renders a time the way the remote API expects:
// RFC 3339 in UTC with a literal Z suffix.
func RemoteTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}
