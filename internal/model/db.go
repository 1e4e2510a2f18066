package model

import "time"

// CheckoutItem is the line-item snapshot stored on carts and orders, and
// serialized into payment intent metadata. Price is the decimal string the
// product row carried when the item was added.
type CheckoutItem struct {
	ProductID string `json:"productId"`
	Price     string `json:"price"`
	Quantity  int32  `json:"quantity"`
}

type Cart struct {
	ID              string         `gorm:"primaryKey;size:36;not null"` // uuid, also the cartId cookie value
	Items           []CheckoutItem `gorm:"serializer:json"`
	PaymentIntentID string         `gorm:"size:64;index"`
	ClientSecret    string         `gorm:"size:128"`
	Closed          bool           `gorm:"not null;default:false"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Product struct {
	ID          string `gorm:"primaryKey;size:36;not null"`
	StoreID     string `gorm:"size:36;index;not null"`
	Name        string `gorm:"size:128;not null"`
	Price       string `gorm:"type:decimal(10,2);not null"`
	Inventory   int32  `gorm:"not null;default:0"`
	Category    string `gorm:"size:64;index"`
	Subcategory string `gorm:"size:64"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Store struct {
	ID              string `gorm:"primaryKey;size:36;not null"`
	UserID          string `gorm:"size:64;index;not null"` // owner, auth provider id
	Name            string `gorm:"size:128;not null"`
	StripeAccountID string `gorm:"size:64"`
	Active          bool   `gorm:"not null;default:false"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Payment is the store's connected merchant account record, one per store,
// created lazily on the first connect attempt.
type Payment struct {
	ID                     uint   `gorm:"primaryKey"`
	StoreID                string `gorm:"size:36;uniqueIndex;not null"`
	StripeAccountID        string `gorm:"size:64;not null"`
	DetailsSubmitted       bool   `gorm:"not null;default:false"`
	StripeAccountCreatedAt *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

type Order struct {
	ID       string         `gorm:"primaryKey;size:36;not null"`
	StoreID  string         `gorm:"size:36;index;not null"`
	Items    []CheckoutItem `gorm:"serializer:json"`
	Quantity int32          `gorm:"not null"`
	Amount   int64          `gorm:"not null"` // minor currency units
	Email    string         `gorm:"size:128"`
	// Unique index enforces exactly-once order creation per payment intent.
	StripePaymentIntentID     string `gorm:"size:64;uniqueIndex;not null"`
	StripePaymentIntentStatus string `gorm:"size:32;not null"`
	CreatedAt                 time.Time
}

// UserSubscription holds a user's billing metadata from the processor,
// keyed by the auth provider's user id. The plan resolver reads it on every
// request; the billing webhooks write it.
type UserSubscription struct {
	UserID                 string `gorm:"primaryKey;size:64;not null"`
	StripeCustomerID       string `gorm:"size:64;index"`
	StripeSubscriptionID   string `gorm:"size:64;index"`
	StripePriceID          string `gorm:"size:64"`
	StripeCurrentPeriodEnd *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

type WebhookEvent struct {
	EventID     string `gorm:"primaryKey;size:128;not null"`
	EventType   string `gorm:"size:64;index"`
	ProcessedAt time.Time
	CreatedAt   time.Time
}
