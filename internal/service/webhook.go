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
	"strings"
	"time"

	"storefront-checkout/internal/client"
	"storefront-checkout/internal/model"
	"storefront-checkout/internal/repository"
	"storefront-checkout/internal/util"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Reconciliation normally runs when the buyer's browser returns to the order
// summary page, which races against the tab being closed. The webhook path
// drives the same commit from the processor side so either trigger may land
// first; the order's unique intent index keeps the outcome single.

const signatureTolerance = 5 * time.Minute

var ErrInvalidSignature = errors.New("webhook signature verification failed")

type webhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type checkoutSessionObject struct {
	ID           string            `json:"id"`
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

type WebhookService interface {
	HandleEvent(ctx context.Context, signatureHeader string, body []byte) error
}

type webhookServiceImpl struct {
	stripeClient  client.StripeClient
	webhookSecret string
	orderService  OrderService
	eventRepo     repository.WebhookEventRepository
	subRepo       repository.SubscriptionRepository
	now           func() time.Time
}

func NewWebhookService(
	stripeClient client.StripeClient,
	webhookSecret string,
	orderService OrderService,
	eventRepo repository.WebhookEventRepository,
	subRepo repository.SubscriptionRepository,
) WebhookService {
	return &webhookServiceImpl{
		stripeClient:  stripeClient,
		webhookSecret: webhookSecret,
		orderService:  orderService,
		eventRepo:     eventRepo,
		subRepo:       subRepo,
		now:           time.Now,
	}
}

func (s *webhookServiceImpl) HandleEvent(ctx context.Context, signatureHeader string, body []byte) error {
	if err := verifySignature(signatureHeader, body, s.webhookSecret, s.now()); err != nil {
		return err
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("decode webhook payload: %w", err)
	}

	util.WebhookEventsTotal.WithLabelValues(event.Type).Inc()

	processed, err := s.eventRepo.Exists(ctx, event.ID)
	if err != nil {
		return fmt.Errorf("check webhook event: %w", err)
	}
	if processed {
		util.WebhookDuplicatesTotal.Inc()
		return nil
	}

	switch event.Type {
	case "payment_intent.succeeded":
		if err := s.handlePaymentIntentSucceeded(ctx, event.Data.Object); err != nil {
			return err
		}
	case "checkout.session.completed":
		if err := s.handleCheckoutSessionCompleted(ctx, event.Data.Object); err != nil {
			return err
		}
	case "customer.subscription.updated", "customer.subscription.deleted":
		if err := s.handleSubscriptionUpdated(ctx, event.Data.Object); err != nil {
			return err
		}
	}

	return s.eventRepo.MarkProcessed(ctx, event.ID, event.Type)
}

func (s *webhookServiceImpl) handlePaymentIntentSucceeded(ctx context.Context, object json.RawMessage) error {
	var intent client.PaymentIntent
	if err := json.Unmarshal(object, &intent); err != nil {
		return fmt.Errorf("decode payment intent object: %w", err)
	}

	cartID := intent.Metadata["cartId"]
	storeID := intent.Metadata["storeId"]
	if cartID == "" || storeID == "" {
		return fmt.Errorf("payment intent %s missing cart or store metadata", intent.ID)
	}

	err := s.orderService.Reconcile(ctx, storeID, &intent, cartID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrCartClosed),
		errors.Is(err, ErrOrderAlreadyRecorded),
		errors.Is(err, ErrIntentMismatch):
		// The synchronous order-summary path got there first.
		return nil
	default:
		return err
	}
}

func (s *webhookServiceImpl) handleCheckoutSessionCompleted(ctx context.Context, object json.RawMessage) error {
	var session checkoutSessionObject
	if err := json.Unmarshal(object, &session); err != nil {
		return fmt.Errorf("decode checkout session object: %w", err)
	}

	userID := session.Metadata["userId"]
	if userID == "" || session.Subscription == "" {
		// One-time payment sessions carry no subscription; nothing to store.
		return nil
	}

	sub, err := s.stripeClient.RetrieveSubscription(ctx, session.Subscription)
	if err != nil {
		util.ProcessorRequestsFailedTotal.WithLabelValues("retrieve_subscription").Inc()
		return fmt.Errorf("%w: %v", ErrProcessorUnavailable, err)
	}

	periodEnd := time.Unix(sub.CurrentPeriodEnd, 0)
	priceID := ""
	if len(sub.Items.Data) > 0 {
		priceID = sub.Items.Data[0].Price.ID
	}

	return s.subRepo.Upsert(ctx, &model.UserSubscription{
		UserID:                 userID,
		StripeCustomerID:       session.Customer,
		StripeSubscriptionID:   sub.ID,
		StripePriceID:          priceID,
		StripeCurrentPeriodEnd: &periodEnd,
	})
}

func (s *webhookServiceImpl) handleSubscriptionUpdated(ctx context.Context, object json.RawMessage) error {
	var sub client.Subscription
	if err := json.Unmarshal(object, &sub); err != nil {
		return fmt.Errorf("decode subscription object: %w", err)
	}

	existing, err := s.subRepo.GetBySubscriptionID(ctx, sub.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Subscription created outside this system; nothing to sync.
			util.GetLogger().Warn("subscription event for unknown subscription",
				zap.String("subscription_id", sub.ID))
			return nil
		}
		return fmt.Errorf("get subscription: %w", err)
	}

	periodEnd := time.Unix(sub.CurrentPeriodEnd, 0)
	priceID := existing.StripePriceID
	if len(sub.Items.Data) > 0 {
		priceID = sub.Items.Data[0].Price.ID
	}

	return s.subRepo.Upsert(ctx, &model.UserSubscription{
		UserID:                 existing.UserID,
		StripeCustomerID:       existing.StripeCustomerID,
		StripeSubscriptionID:   sub.ID,
		StripePriceID:          priceID,
		StripeCurrentPeriodEnd: &periodEnd,
	})
}

// verifySignature checks the processor's signature header: an HMAC-SHA256 of
// "timestamp.payload" under the endpoint secret, with a bounded clock skew.
func verifySignature(header string, body []byte, secret string, now time.Time) error {
	var timestamp int64
	var signatures [][]byte

	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return ErrInvalidSignature
			}
			timestamp = ts
		case "v1":
			sig, err := hex.DecodeString(v)
			if err != nil {
				continue
			}
			signatures = append(signatures, sig)
		}
	}

	if timestamp == 0 || len(signatures) == 0 {
		return ErrInvalidSignature
	}

	age := now.Sub(time.Unix(timestamp, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := mac.Sum(nil)

	for _, sig := range signatures {
		if hmac.Equal(expected, sig) {
			return nil
		}
	}

	return ErrInvalidSignature
}
