package service

import (
	"context"
	"fmt"
	"testing"

	"storefront-checkout/internal/client"
	"storefront-checkout/internal/config"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, client.AutoMigrate(db))

	return db
}

func testPricingConfig() *config.Pricing {
	return &config.Pricing{FeeBps: 1000, Currency: "usd"}
}

// fakeStripeClient satisfies client.StripeClient; tests override the call
// hooks they exercise and count retrievals where caching matters.
type fakeStripeClient struct {
	retrieveAccountFn       func(accountID string) (*client.Account, error)
	createAccountFn         func() (*client.Account, error)
	deleteAccountFn         func(accountID string) error
	createAccountLinkFn     func(accountID string) (*client.AccountLink, error)
	createPaymentIntentFn   func(stripeAccountID string, params *client.PaymentIntentParams) (*client.PaymentIntent, error)
	retrievePaymentIntentFn func(stripeAccountID, intentID string) (*client.PaymentIntent, error)
	listPaymentIntentsFn    func(stripeAccountID string, limit int) (*client.PaymentIntentList, error)
	retrievePriceFn         func(priceID string) (*client.Price, error)
	retrieveSubscriptionFn  func(subscriptionID string) (*client.Subscription, error)
	billingPortalFn         func(customerID string) (*client.Session, error)
	checkoutSessionFn       func(params *client.CheckoutSessionParams) (*client.Session, error)

	priceRetrievals int
}

func (f *fakeStripeClient) CreateAccount(ctx context.Context) (*client.Account, error) {
	if f.createAccountFn == nil {
		return &client.Account{ID: "acct_new"}, nil
	}
	return f.createAccountFn()
}

func (f *fakeStripeClient) RetrieveAccount(ctx context.Context, accountID string) (*client.Account, error) {
	if f.retrieveAccountFn == nil {
		return &client.Account{ID: accountID, DetailsSubmitted: true}, nil
	}
	return f.retrieveAccountFn(accountID)
}

func (f *fakeStripeClient) DeleteAccount(ctx context.Context, accountID string) error {
	if f.deleteAccountFn == nil {
		return nil
	}
	return f.deleteAccountFn(accountID)
}

func (f *fakeStripeClient) CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (*client.AccountLink, error) {
	if f.createAccountLinkFn == nil {
		return &client.AccountLink{URL: "https://connect.example.com/onboard/" + accountID}, nil
	}
	return f.createAccountLinkFn(accountID)
}

func (f *fakeStripeClient) CreatePaymentIntent(ctx context.Context, stripeAccountID string, params *client.PaymentIntentParams) (*client.PaymentIntent, error) {
	if f.createPaymentIntentFn == nil {
		return &client.PaymentIntent{
			ID:           "pi_test",
			Amount:       params.Amount,
			Status:       client.PaymentIntentStatusRequiresPaymentMethod,
			ClientSecret: "pi_test_secret",
			Metadata:     params.Metadata,
		}, nil
	}
	return f.createPaymentIntentFn(stripeAccountID, params)
}

func (f *fakeStripeClient) RetrievePaymentIntent(ctx context.Context, stripeAccountID, intentID string) (*client.PaymentIntent, error) {
	if f.retrievePaymentIntentFn == nil {
		return nil, fmt.Errorf("no intent configured")
	}
	return f.retrievePaymentIntentFn(stripeAccountID, intentID)
}

func (f *fakeStripeClient) ListPaymentIntents(ctx context.Context, stripeAccountID string, limit int) (*client.PaymentIntentList, error) {
	if f.listPaymentIntentsFn == nil {
		return &client.PaymentIntentList{}, nil
	}
	return f.listPaymentIntentsFn(stripeAccountID, limit)
}

func (f *fakeStripeClient) RetrievePrice(ctx context.Context, priceID string) (*client.Price, error) {
	f.priceRetrievals++
	if f.retrievePriceFn == nil {
		return &client.Price{ID: priceID, UnitAmount: 2500, Currency: "usd"}, nil
	}
	return f.retrievePriceFn(priceID)
}

func (f *fakeStripeClient) RetrieveSubscription(ctx context.Context, subscriptionID string) (*client.Subscription, error) {
	if f.retrieveSubscriptionFn == nil {
		return &client.Subscription{ID: subscriptionID}, nil
	}
	return f.retrieveSubscriptionFn(subscriptionID)
}

func (f *fakeStripeClient) CreateBillingPortalSession(ctx context.Context, customerID, returnURL string) (*client.Session, error) {
	if f.billingPortalFn == nil {
		return &client.Session{URL: "https://billing.example.com/portal"}, nil
	}
	return f.billingPortalFn(customerID)
}

func (f *fakeStripeClient) CreateCheckoutSession(ctx context.Context, params *client.CheckoutSessionParams) (*client.Session, error) {
	if f.checkoutSessionFn == nil {
		return &client.Session{URL: "https://checkout.example.com/session"}, nil
	}
	return f.checkoutSessionFn(params)
}

type memoryPriceCache struct {
	values map[string]string
}

func newMemoryPriceCache() *memoryPriceCache {
	return &memoryPriceCache{values: map[string]string{}}
}

func (c *memoryPriceCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok := c.values[key]
	return v, ok, nil
}

func (c *memoryPriceCache) Set(ctx context.Context, key, value string) error {
	c.values[key] = value
	return nil
}
