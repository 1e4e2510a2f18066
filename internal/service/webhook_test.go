package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"storefront-checkout/internal/client"
	"storefront-checkout/internal/model"
	"storefront-checkout/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testWebhookSecret = "whsec_test"

func signedHeader(secret string, body []byte, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts.Unix(), 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func newWebhookService(t *testing.T, stripeClient *fakeStripeClient, now time.Time) (*webhookServiceImpl, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)

	orderService := NewOrderService(
		db,
		repository.NewCartRepository(db),
		repository.NewProductRepository(db),
		repository.NewOrderRepository(db),
	)

	return &webhookServiceImpl{
		stripeClient:  stripeClient,
		webhookSecret: testWebhookSecret,
		orderService:  orderService,
		eventRepo:     repository.NewWebhookEventRepository(db),
		subRepo:       repository.NewSubscriptionRepository(db),
		now:           func() time.Time { return now },
	}, db
}

func webhookBody(t *testing.T, eventID, eventType string, object any) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"id":   eventID,
		"type": eventType,
		"data": map[string]any{"object": object},
	})
	require.NoError(t, err)
	return body
}

func TestVerifySignature(t *testing.T) {
	now := time.Unix(1700000000, 0)
	body := []byte(`{"id":"evt_1"}`)

	valid := signedHeader(testWebhookSecret, body, now)

	tests := []struct {
		name   string
		header string
		body   []byte
		err    error
	}{
		{"valid", valid, body, nil},
		{"tampered body", valid, []byte(`{"id":"evt_2"}`), ErrInvalidSignature},
		{"wrong secret", signedHeader("whsec_other", body, now), body, ErrInvalidSignature},
		{"stale timestamp", signedHeader(testWebhookSecret, body, now.Add(-6*time.Minute)), body, ErrInvalidSignature},
		{"future timestamp", signedHeader(testWebhookSecret, body, now.Add(6*time.Minute)), body, ErrInvalidSignature},
		{"missing signature", "t=1700000000", body, ErrInvalidSignature},
		{"garbage header", "not a signature", body, ErrInvalidSignature},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := verifySignature(tc.header, tc.body, testWebhookSecret, now)
			if tc.err == nil {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, tc.err)
			}
		})
	}
}

func TestVerifySignatureAcceptsSecondarySignature(t *testing.T) {
	// During secret rotation the processor sends one v1 per active secret.
	now := time.Unix(1700000000, 0)
	body := []byte(`{"id":"evt_1"}`)

	stale := signedHeader("whsec_retired", body, now)
	valid := signedHeader(testWebhookSecret, body, now)
	header := stale + ",v1=" + valid[len(valid)-64:]

	require.NoError(t, verifySignature(header, body, testWebhookSecret, now))
}

func TestHandleEventRejectsBadSignature(t *testing.T) {
	now := time.Unix(1700000000, 0)
	svc, _ := newWebhookService(t, &fakeStripeClient{}, now)

	body := webhookBody(t, "evt_1", "payment_intent.succeeded", map[string]any{"id": "pi_1"})

	err := svc.HandleEvent(context.Background(), signedHeader("whsec_wrong", body, now), body)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestHandleEventPaymentIntentSucceededReconciles(t *testing.T) {
	now := time.Unix(1700000000, 0)
	svc, db := newWebhookService(t, &fakeStripeClient{}, now)

	items := []model.CheckoutItem{{ProductID: "prod_1", Price: "19.99", Quantity: 2}}
	seedProduct(t, db, "prod_1", "19.99", 10)
	seedOpenCart(t, db, "cart_1", "pi_1", items)
	intent := succeededIntent(t, "pi_1", "cart_1", 3998, items)

	body := webhookBody(t, "evt_1", "payment_intent.succeeded", intent)
	require.NoError(t, svc.HandleEvent(context.Background(), signedHeader(testWebhookSecret, body, now), body))

	assert.Equal(t, int64(1), orderCount(t, db))
	assert.Equal(t, int32(8), productInventory(t, db, "prod_1"))

	var cart model.Cart
	require.NoError(t, db.Where("id = ?", "cart_1").First(&cart).Error)
	assert.True(t, cart.Closed)

	var event model.WebhookEvent
	require.NoError(t, db.Where("event_id = ?", "evt_1").First(&event).Error)
	assert.Equal(t, "payment_intent.succeeded", event.EventType)
}

func TestHandleEventRaceWithOrderSummaryIsBenign(t *testing.T) {
	now := time.Unix(1700000000, 0)
	svc, db := newWebhookService(t, &fakeStripeClient{}, now)

	items := []model.CheckoutItem{{ProductID: "prod_1", Price: "19.99", Quantity: 1}}
	seedProduct(t, db, "prod_1", "19.99", 10)
	seedOpenCart(t, db, "cart_1", "pi_1", items)
	intent := succeededIntent(t, "pi_1", "cart_1", 1999, items)

	// The browser-driven summary path committed first.
	require.NoError(t, svc.orderService.Reconcile(context.Background(), "store_1", intent, "cart_1"))

	body := webhookBody(t, "evt_1", "payment_intent.succeeded", intent)
	require.NoError(t, svc.HandleEvent(context.Background(), signedHeader(testWebhookSecret, body, now), body))

	assert.Equal(t, int64(1), orderCount(t, db))
	assert.Equal(t, int32(9), productInventory(t, db, "prod_1"))
}

func TestHandleEventDeduplicatesByEventID(t *testing.T) {
	now := time.Unix(1700000000, 0)
	stripeClient := &fakeStripeClient{}
	svc, db := newWebhookService(t, stripeClient, now)

	periodEnd := now.Add(30 * 24 * time.Hour)
	stripeClient.retrieveSubscriptionFn = func(subscriptionID string) (*client.Subscription, error) {
		sub := &client.Subscription{ID: subscriptionID, CurrentPeriodEnd: periodEnd.Unix()}
		sub.Items.Data = []struct {
			Price client.Price `json:"price"`
		}{{Price: client.Price{ID: "price_pro"}}}
		return sub, nil
	}

	body := webhookBody(t, "evt_1", "checkout.session.completed", map[string]any{
		"id":           "cs_1",
		"customer":     "cus_1",
		"subscription": "sub_1",
		"metadata":     map[string]string{"userId": "user_1"},
	})
	header := signedHeader(testWebhookSecret, body, now)

	require.NoError(t, svc.HandleEvent(context.Background(), header, body))

	var sub model.UserSubscription
	require.NoError(t, db.Where("user_id = ?", "user_1").First(&sub).Error)
	assert.Equal(t, "sub_1", sub.StripeSubscriptionID)
	assert.Equal(t, "price_pro", sub.StripePriceID)

	// A redelivery must be a no-op even when the processor is unreachable.
	stripeClient.retrieveSubscriptionFn = func(subscriptionID string) (*client.Subscription, error) {
		return nil, errors.New("processor is down")
	}
	require.NoError(t, svc.HandleEvent(context.Background(), header, body))
}

func TestMarkProcessedConcurrentDuplicateIsQuiet(t *testing.T) {
	// Two deliveries of one event can both pass the Exists check before
	// either insert lands; the second insert must not fail the delivery.
	db := newTestDB(t)
	eventRepo := repository.NewWebhookEventRepository(db)

	require.NoError(t, eventRepo.MarkProcessed(context.Background(), "evt_1", "payment_intent.succeeded"))
	require.NoError(t, eventRepo.MarkProcessed(context.Background(), "evt_1", "payment_intent.succeeded"))

	var count int64
	require.NoError(t, db.Model(&model.WebhookEvent{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestHandleEventSubscriptionUpdated(t *testing.T) {
	now := time.Unix(1700000000, 0)
	svc, db := newWebhookService(t, &fakeStripeClient{}, now)

	oldEnd := now.Add(24 * time.Hour)
	require.NoError(t, db.Create(&model.UserSubscription{
		UserID:                 "user_1",
		StripeCustomerID:       "cus_1",
		StripeSubscriptionID:   "sub_1",
		StripePriceID:          "price_pro",
		StripeCurrentPeriodEnd: &oldEnd,
	}).Error)

	newEnd := now.Add(31 * 24 * time.Hour)
	body := webhookBody(t, "evt_1", "customer.subscription.updated", map[string]any{
		"id":                 "sub_1",
		"current_period_end": newEnd.Unix(),
	})

	require.NoError(t, svc.HandleEvent(context.Background(), signedHeader(testWebhookSecret, body, now), body))

	var sub model.UserSubscription
	require.NoError(t, db.Where("user_id = ?", "user_1").First(&sub).Error)
	require.NotNil(t, sub.StripeCurrentPeriodEnd)
	assert.Equal(t, newEnd.Unix(), sub.StripeCurrentPeriodEnd.Unix())
	assert.Equal(t, "price_pro", sub.StripePriceID)
}

func TestHandleEventUnknownSubscriptionIsIgnored(t *testing.T) {
	now := time.Unix(1700000000, 0)
	svc, db := newWebhookService(t, &fakeStripeClient{}, now)

	body := webhookBody(t, "evt_1", "customer.subscription.deleted", map[string]any{
		"id": "sub_unknown",
	})

	require.NoError(t, svc.HandleEvent(context.Background(), signedHeader(testWebhookSecret, body, now), body))

	var count int64
	require.NoError(t, db.Model(&model.UserSubscription{}).Count(&count).Error)
	assert.Zero(t, count)
}
