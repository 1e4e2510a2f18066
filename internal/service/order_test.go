package service

import (
	"context"
	"encoding/json"
	"testing"

	"storefront-checkout/internal/client"
	"storefront-checkout/internal/model"
	"storefront-checkout/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newOrderService(t *testing.T) (OrderService, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	return NewOrderService(
		db,
		repository.NewCartRepository(db),
		repository.NewProductRepository(db),
		repository.NewOrderRepository(db),
	), db
}

func seedOpenCart(t *testing.T, db *gorm.DB, cartID, intentID string, items []model.CheckoutItem) {
	t.Helper()
	require.NoError(t, db.Create(&model.Cart{
		ID:              cartID,
		Items:           items,
		PaymentIntentID: intentID,
		ClientSecret:    intentID + "_secret",
	}).Error)
}

func succeededIntent(t *testing.T, intentID, cartID string, amount int64, items []model.CheckoutItem) *client.PaymentIntent {
	t.Helper()
	serialized, err := json.Marshal(items)
	require.NoError(t, err)

	return &client.PaymentIntent{
		ID:           intentID,
		Amount:       amount,
		Status:       client.PaymentIntentStatusSucceeded,
		ReceiptEmail: "buyer@example.com",
		Metadata: map[string]string{
			"cartId":  cartID,
			"storeId": "store_1",
			"items":   string(serialized),
		},
	}
}

func productInventory(t *testing.T, db *gorm.DB, productID string) int32 {
	t.Helper()
	var product model.Product
	require.NoError(t, db.Where("id = ?", productID).First(&product).Error)
	return product.Inventory
}

func orderCount(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&model.Order{}).Count(&count).Error)
	return count
}

func TestReconcileCommitsOrder(t *testing.T) {
	svc, db := newOrderService(t)
	seedProduct(t, db, "p1", "10.00", 10)

	items := []model.CheckoutItem{{ProductID: "p1", Price: "10.00", Quantity: 2}}
	seedOpenCart(t, db, "cart_1", "pi_1", items)

	intent := succeededIntent(t, "pi_1", "cart_1", 2000, items)
	require.NoError(t, svc.Reconcile(context.Background(), "store_1", intent, "cart_1"))

	assert.Equal(t, int32(8), productInventory(t, db, "p1"))
	assert.Equal(t, int64(1), orderCount(t, db))

	var order model.Order
	require.NoError(t, db.Where("stripe_payment_intent_id = ?", "pi_1").First(&order).Error)
	assert.Equal(t, "store_1", order.StoreID)
	assert.Equal(t, int64(2000), order.Amount)
	assert.Equal(t, int32(2), order.Quantity)
	assert.Equal(t, "buyer@example.com", order.Email)
	assert.Equal(t, client.PaymentIntentStatusSucceeded, order.StripePaymentIntentStatus)

	var cart model.Cart
	require.NoError(t, db.Where("id = ?", "cart_1").First(&cart).Error)
	assert.True(t, cart.Closed)
	assert.Empty(t, cart.Items)
}

func TestReconcileReplayDoesNotDoubleCommit(t *testing.T) {
	svc, db := newOrderService(t)
	seedProduct(t, db, "p1", "10.00", 10)

	items := []model.CheckoutItem{{ProductID: "p1", Price: "10.00", Quantity: 2}}
	seedOpenCart(t, db, "cart_1", "pi_1", items)

	intent := succeededIntent(t, "pi_1", "cart_1", 2000, items)
	require.NoError(t, svc.Reconcile(context.Background(), "store_1", intent, "cart_1"))

	err := svc.Reconcile(context.Background(), "store_1", intent, "cart_1")
	assert.ErrorIs(t, err, ErrCartClosed)

	// Inventory stays at 8 and exactly one order row exists.
	assert.Equal(t, int32(8), productInventory(t, db, "p1"))
	assert.Equal(t, int64(1), orderCount(t, db))
}

func TestReconcileDuplicateIntentRejectedByUniqueIndex(t *testing.T) {
	svc, db := newOrderService(t)
	seedProduct(t, db, "p1", "10.00", 10)

	items := []model.CheckoutItem{{ProductID: "p1", Price: "10.00", Quantity: 2}}
	seedOpenCart(t, db, "cart_1", "pi_1", items)

	// An order for pi_1 already exists even though the cart never closed,
	// e.g. the webhook path committed against another cart row first.
	require.NoError(t, db.Create(&model.Order{
		ID:                        "order_prior",
		StoreID:                   "store_1",
		Items:                     items,
		Quantity:                  2,
		Amount:                    2000,
		StripePaymentIntentID:     "pi_1",
		StripePaymentIntentStatus: client.PaymentIntentStatusSucceeded,
	}).Error)

	intent := succeededIntent(t, "pi_1", "cart_1", 2000, items)
	err := svc.Reconcile(context.Background(), "store_1", intent, "cart_1")
	assert.ErrorIs(t, err, ErrOrderAlreadyRecorded)

	// The failed commit rolled back: inventory untouched, cart still open.
	assert.Equal(t, int32(10), productInventory(t, db, "p1"))
	assert.Equal(t, int64(1), orderCount(t, db))

	var cart model.Cart
	require.NoError(t, db.Where("id = ?", "cart_1").First(&cart).Error)
	assert.False(t, cart.Closed)
}

func TestReconcileInsufficientInventoryAbortsWholeCommit(t *testing.T) {
	svc, db := newOrderService(t)
	seedProduct(t, db, "p1", "10.00", 10)
	seedProduct(t, db, "p2", "5.00", 1)

	items := []model.CheckoutItem{
		{ProductID: "p1", Price: "10.00", Quantity: 2},
		{ProductID: "p2", Price: "5.00", Quantity: 3}, // only 1 in stock
	}
	seedOpenCart(t, db, "cart_1", "pi_1", items)

	intent := succeededIntent(t, "pi_1", "cart_1", 3500, items)
	err := svc.Reconcile(context.Background(), "store_1", intent, "cart_1")
	assert.ErrorIs(t, err, ErrInsufficientInventory)

	// All-or-nothing: p1 must not have been decremented either.
	assert.Equal(t, int32(10), productInventory(t, db, "p1"))
	assert.Equal(t, int32(1), productInventory(t, db, "p2"))
	assert.Equal(t, int64(0), orderCount(t, db))

	var cart model.Cart
	require.NoError(t, db.Where("id = ?", "cart_1").First(&cart).Error)
	assert.False(t, cart.Closed)
}

func TestReconcileIntentMismatch(t *testing.T) {
	svc, db := newOrderService(t)
	seedProduct(t, db, "p1", "10.00", 10)

	items := []model.CheckoutItem{{ProductID: "p1", Price: "10.00", Quantity: 2}}
	seedOpenCart(t, db, "cart_1", "pi_other", items)

	intent := succeededIntent(t, "pi_1", "cart_1", 2000, items)
	err := svc.Reconcile(context.Background(), "store_1", intent, "cart_1")
	assert.ErrorIs(t, err, ErrIntentMismatch)

	assert.Equal(t, int32(10), productInventory(t, db, "p1"))
	assert.Equal(t, int64(0), orderCount(t, db))
}

func TestGetOrderLineItemsPendingIntentIsReadOnly(t *testing.T) {
	svc, db := newOrderService(t)
	seedProduct(t, db, "p1", "10.00", 10)

	items := []model.CheckoutItem{{ProductID: "p1", Price: "10.00", Quantity: 2}}
	seedOpenCart(t, db, "cart_1", "pi_1", items)

	serialized, err := json.Marshal(items)
	require.NoError(t, err)

	lineItems, err := svc.GetOrderLineItems(context.Background(), &OrderLineItemsInput{
		StoreID: "store_1",
		Items:   string(serialized),
		Intent: &client.PaymentIntent{
			ID:     "pi_1",
			Status: "processing",
			Metadata: map[string]string{
				"cartId": "cart_1",
				"items":  string(serialized),
			},
		},
		CartID: "cart_1",
	})
	require.NoError(t, err)

	require.Len(t, lineItems, 1)
	assert.Equal(t, "p1", lineItems[0].ID)
	assert.Equal(t, int32(2), lineItems[0].Quantity)

	// Pending intent: nothing committed.
	assert.Equal(t, int32(10), productInventory(t, db, "p1"))
	assert.Equal(t, int64(0), orderCount(t, db))
}

func TestGetOrderLineItemsReconcilesSucceededIntent(t *testing.T) {
	svc, db := newOrderService(t)
	seedProduct(t, db, "p1", "10.00", 10)

	items := []model.CheckoutItem{{ProductID: "p1", Price: "10.00", Quantity: 2}}
	seedOpenCart(t, db, "cart_1", "pi_1", items)

	serialized, err := json.Marshal(items)
	require.NoError(t, err)

	intent := succeededIntent(t, "pi_1", "cart_1", 2000, items)
	lineItems, err := svc.GetOrderLineItems(context.Background(), &OrderLineItemsInput{
		StoreID: "store_1",
		Items:   string(serialized),
		Intent:  intent,
		CartID:  "cart_1",
	})
	require.NoError(t, err)
	require.Len(t, lineItems, 1)

	assert.Equal(t, int32(8), productInventory(t, db, "p1"))
	assert.Equal(t, int64(1), orderCount(t, db))

	// Replaying the summary page keeps showing items without re-committing.
	lineItems, err = svc.GetOrderLineItems(context.Background(), &OrderLineItemsInput{
		StoreID: "store_1",
		Items:   string(serialized),
		Intent:  intent,
		CartID:  "cart_1",
	})
	require.NoError(t, err)
	require.Len(t, lineItems, 1)

	assert.Equal(t, int32(8), productInventory(t, db, "p1"))
	assert.Equal(t, int64(1), orderCount(t, db))
}

func TestGetOrderLineItemsRejectsMalformedPayload(t *testing.T) {
	svc, _ := newOrderService(t)

	_, err := svc.GetOrderLineItems(context.Background(), &OrderLineItemsInput{
		StoreID: "store_1",
		Items:   "not json",
	})
	assert.ErrorIs(t, err, ErrInvalidItems)
}
