package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"storefront-checkout/internal/config"
)

// Payment intent statuses we branch on. "succeeded" is the processor's
// terminal-success value.
const (
	PaymentIntentStatusSucceeded             = "succeeded"
	PaymentIntentStatusRequiresPaymentMethod = "requires_payment_method"
)

type StripeClient interface {
	CreateAccount(ctx context.Context) (*Account, error)
	RetrieveAccount(ctx context.Context, accountID string) (*Account, error)
	DeleteAccount(ctx context.Context, accountID string) error
	CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (*AccountLink, error)

	CreatePaymentIntent(ctx context.Context, stripeAccountID string, params *PaymentIntentParams) (*PaymentIntent, error)
	RetrievePaymentIntent(ctx context.Context, stripeAccountID, intentID string) (*PaymentIntent, error)
	ListPaymentIntents(ctx context.Context, stripeAccountID string, limit int) (*PaymentIntentList, error)

	RetrievePrice(ctx context.Context, priceID string) (*Price, error)
	RetrieveSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	CreateBillingPortalSession(ctx context.Context, customerID, returnURL string) (*Session, error)
	CreateCheckoutSession(ctx context.Context, params *CheckoutSessionParams) (*Session, error)
}

type Account struct {
	ID               string `json:"id"`
	DetailsSubmitted bool   `json:"details_submitted"`
	Created          int64  `json:"created"`
}

type AccountLink struct {
	URL       string `json:"url"`
	ExpiresAt int64  `json:"expires_at"`
}

type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	Country    string `json:"country"`
	PostalCode string `json:"postal_code"`
}

type Shipping struct {
	Name    string   `json:"name"`
	Address *Address `json:"address"`
}

type PaymentIntent struct {
	ID           string            `json:"id"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Status       string            `json:"status"`
	ClientSecret string            `json:"client_secret"`
	Created      int64             `json:"created"`
	ReceiptEmail string            `json:"receipt_email"`
	Metadata     map[string]string `json:"metadata"`
	Shipping     *Shipping         `json:"shipping"`
}

type PaymentIntentList struct {
	Data    []*PaymentIntent `json:"data"`
	HasMore bool             `json:"has_more"`
}

type PaymentIntentParams struct {
	Amount               int64
	ApplicationFeeAmount int64
	Currency             string
	Metadata             map[string]string
}

type Price struct {
	ID         string `json:"id"`
	UnitAmount int64  `json:"unit_amount"`
	Currency   string `json:"currency"`
}

type Subscription struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
	CurrentPeriodEnd  int64  `json:"current_period_end"`
	Customer          string `json:"customer"`
	Items             struct {
		Data []struct {
			Price Price `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type CheckoutSessionParams struct {
	SuccessURL    string
	CancelURL     string
	Mode          string
	CustomerEmail string
	PriceID       string
	Quantity      int64
	Metadata      map[string]string
}

type stripeClientImpl struct {
	httpClient *http.Client
	baseApiURL string
	secretKey  string
}

func NewStripeClient(stripeCfg *config.Stripe) StripeClient {
	return &stripeClientImpl{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseApiURL: stripeCfg.BaseApiURL,
		secretKey:  stripeCfg.SecretKey,
	}
}

type stripeError struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// do issues one form-encoded request against the processor API. A non-empty
// stripeAccountID routes the call to the connected merchant account.
func (c *stripeClientImpl) do(ctx context.Context, method, path, stripeAccountID string, form url.Values, out interface{}) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseApiURL+path, body)
	if err != nil {
		return fmt.Errorf("http new request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if stripeAccountID != "" {
		req.Header.Set("Stripe-Account", stripeAccountID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		var apiErr stripeError
		if json.Unmarshal(b, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("stripe error %d (%s): %s", resp.StatusCode, apiErr.Error.Type, apiErr.Error.Message)
		}
		return fmt.Errorf("stripe error %d: %s", resp.StatusCode, string(b))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode stripe response: %w", err)
	}
	return nil
}

func (c *stripeClientImpl) CreateAccount(ctx context.Context) (*Account, error) {
	form := url.Values{}
	form.Set("type", "standard")

	var account Account
	if err := c.do(ctx, http.MethodPost, "/v1/accounts", "", form, &account); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	return &account, nil
}

func (c *stripeClientImpl) RetrieveAccount(ctx context.Context, accountID string) (*Account, error) {
	var account Account
	if err := c.do(ctx, http.MethodGet, "/v1/accounts/"+accountID, "", nil, &account); err != nil {
		return nil, fmt.Errorf("retrieve account: %w", err)
	}
	return &account, nil
}

func (c *stripeClientImpl) DeleteAccount(ctx context.Context, accountID string) error {
	if err := c.do(ctx, http.MethodDelete, "/v1/accounts/"+accountID, "", nil, nil); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return nil
}

func (c *stripeClientImpl) CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (*AccountLink, error) {
	form := url.Values{}
	form.Set("account", accountID)
	form.Set("refresh_url", refreshURL)
	form.Set("return_url", returnURL)
	form.Set("type", "account_onboarding")

	var link AccountLink
	if err := c.do(ctx, http.MethodPost, "/v1/account_links", "", form, &link); err != nil {
		return nil, fmt.Errorf("create account link: %w", err)
	}
	return &link, nil
}

func (c *stripeClientImpl) CreatePaymentIntent(ctx context.Context, stripeAccountID string, params *PaymentIntentParams) (*PaymentIntent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(params.Amount, 10))
	form.Set("currency", params.Currency)
	form.Set("application_fee_amount", strconv.FormatInt(params.ApplicationFeeAmount, 10))
	form.Set("automatic_payment_methods[enabled]", "true")
	for k, v := range params.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	var intent PaymentIntent
	if err := c.do(ctx, http.MethodPost, "/v1/payment_intents", stripeAccountID, form, &intent); err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	return &intent, nil
}

func (c *stripeClientImpl) RetrievePaymentIntent(ctx context.Context, stripeAccountID, intentID string) (*PaymentIntent, error) {
	var intent PaymentIntent
	if err := c.do(ctx, http.MethodGet, "/v1/payment_intents/"+intentID, stripeAccountID, nil, &intent); err != nil {
		return nil, fmt.Errorf("retrieve payment intent: %w", err)
	}
	return &intent, nil
}

func (c *stripeClientImpl) ListPaymentIntents(ctx context.Context, stripeAccountID string, limit int) (*PaymentIntentList, error) {
	var list PaymentIntentList
	path := fmt.Sprintf("/v1/payment_intents?limit=%d", limit)
	if err := c.do(ctx, http.MethodGet, path, stripeAccountID, nil, &list); err != nil {
		return nil, fmt.Errorf("list payment intents: %w", err)
	}
	return &list, nil
}

func (c *stripeClientImpl) RetrievePrice(ctx context.Context, priceID string) (*Price, error) {
	var price Price
	if err := c.do(ctx, http.MethodGet, "/v1/prices/"+priceID, "", nil, &price); err != nil {
		return nil, fmt.Errorf("retrieve price: %w", err)
	}
	return &price, nil
}

func (c *stripeClientImpl) RetrieveSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	var sub Subscription
	if err := c.do(ctx, http.MethodGet, "/v1/subscriptions/"+subscriptionID, "", nil, &sub); err != nil {
		return nil, fmt.Errorf("retrieve subscription: %w", err)
	}
	return &sub, nil
}

func (c *stripeClientImpl) CreateBillingPortalSession(ctx context.Context, customerID, returnURL string) (*Session, error) {
	form := url.Values{}
	form.Set("customer", customerID)
	form.Set("return_url", returnURL)

	var session Session
	if err := c.do(ctx, http.MethodPost, "/v1/billing_portal/sessions", "", form, &session); err != nil {
		return nil, fmt.Errorf("create billing portal session: %w", err)
	}
	return &session, nil
}

func (c *stripeClientImpl) CreateCheckoutSession(ctx context.Context, params *CheckoutSessionParams) (*Session, error) {
	form := url.Values{}
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)
	form.Set("mode", params.Mode)
	form.Set("billing_address_collection", "auto")
	form.Set("payment_method_types[0]", "card")
	form.Set("customer_email", params.CustomerEmail)
	form.Set("line_items[0][price]", params.PriceID)
	form.Set("line_items[0][quantity]", strconv.FormatInt(params.Quantity, 10))
	for k, v := range params.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	var session Session
	if err := c.do(ctx, http.MethodPost, "/v1/checkout/sessions", "", form, &session); err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &session, nil
}
