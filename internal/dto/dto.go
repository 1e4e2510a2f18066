package dto

import "time"

// User is the identity supplied by the authentication provider.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type CartItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
}

// CartLineItem is a cart or order item joined against the current product row.
type CartLineItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Price       string `json:"price"`
	Inventory   int32  `json:"inventory"`
	StoreID     string `json:"store_id"`
	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
	Quantity    int32  `json:"quantity"`
}

type CartResponse struct {
	ID     string         `json:"id"`
	Closed bool           `json:"closed"`
	Items  []CartLineItem `json:"items"`
}

type CreatePaymentIntentRequest struct {
	Items []CartItemRequest `json:"items"`
}

type CreatePaymentIntentResponse struct {
	ClientSecret string `json:"client_secret"`
}

type AccountStatusResponse struct {
	IsConnected      bool   `json:"is_connected"`
	DetailsSubmitted bool   `json:"details_submitted"`
	StripeAccountID  string `json:"stripe_account_id,omitempty"`
}

type ConnectResponse struct {
	URL string `json:"url"`
}

type PaymentIntentSummary struct {
	ID      string `json:"id"`
	Amount  int64  `json:"amount"`
	Created int64  `json:"created"`
	CartID  string `json:"cart_id"`
}

type PaymentIntentListResponse struct {
	PaymentIntents []PaymentIntentSummary `json:"payment_intents"`
	HasMore        bool                   `json:"has_more"`
}

type OrderSummaryResponse struct {
	IsVerified bool           `json:"is_verified"`
	LineItems  []CartLineItem `json:"line_items"`
}

// PlanWithPrice is a catalog plan joined with its live processor price,
// formatted for display.
type PlanWithPrice struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	Price         string `json:"price"`
	LimitStores   int    `json:"limit_stores"`
	LimitProducts int    `json:"limit_products"`
}

// UserPlan is the display-ready resolved subscription plan.
type UserPlan struct {
	ID                     string     `json:"id"`
	Title                  string     `json:"title"`
	Description            string     `json:"description"`
	LimitStores            int        `json:"limit_stores"`
	LimitProducts          int        `json:"limit_products"`
	IsSubscribed           bool       `json:"is_subscribed"`
	IsCanceled             bool       `json:"is_canceled"`
	IsActive               bool       `json:"is_active"`
	StripeSubscriptionID   string     `json:"stripe_subscription_id,omitempty"`
	StripeCustomerID       string     `json:"stripe_customer_id,omitempty"`
	StripeCurrentPeriodEnd *time.Time `json:"stripe_current_period_end,omitempty"`
}

type ManagePlanRequest struct {
	StripePriceID string `json:"stripe_price_id"`
	IsCurrentPlan bool   `json:"is_current_plan"`
}

type ManagePlanResponse struct {
	URL string `json:"url"`
}
