package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront-checkout/internal/client"
	"storefront-checkout/internal/config"
	"storefront-checkout/internal/dto"
	"storefront-checkout/internal/model"
	"storefront-checkout/internal/repository"
	"storefront-checkout/internal/util"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// The processor rejects metadata values longer than 500 characters, so the
// serialized item list is validated before the intent is created.
const metadataValueLimit = 500

// AccountStatus reports a store's merchant account. IsConnected requires the
// account's onboarding details to have been submitted; Account may still be
// non-nil while IsConnected is false (onboarding started, not finished).
type AccountStatus struct {
	IsConnected bool
	Account     *client.Account
	Payment     *model.Payment
}

// VerifiedIntent pairs a retrieved payment intent with the dual-check result.
type VerifiedIntent struct {
	Intent     *client.PaymentIntent
	IsVerified bool
}

type StripeService interface {
	GetAccountStatus(ctx context.Context, storeID string, retrieveAccount bool) (*AccountStatus, error)
	CreateAccountLink(ctx context.Context, storeID string) (string, error)
	CreatePaymentIntent(ctx context.Context, storeID, cartID string, items []model.CheckoutItem) (string, error)
	GetPaymentIntent(ctx context.Context, storeID, intentID, cartID, deliveryPostalCode string) (*VerifiedIntent, error)
	ListPaymentIntents(ctx context.Context, storeID string, limit int) (*dto.PaymentIntentListResponse, error)
}

type stripeServiceImpl struct {
	db           *gorm.DB
	stripeClient client.StripeClient
	baseURL      string
	pricingCfg   *config.Pricing
	storeRepo    repository.StoreRepository
	paymentRepo  repository.PaymentRepository
	cartRepo     repository.CartRepository
}

func NewStripeService(
	db *gorm.DB,
	stripeClient client.StripeClient,
	baseURL string,
	pricingCfg *config.Pricing,
	storeRepo repository.StoreRepository,
	paymentRepo repository.PaymentRepository,
	cartRepo repository.CartRepository,
) StripeService {
	return &stripeServiceImpl{
		db:           db,
		stripeClient: stripeClient,
		baseURL:      baseURL,
		pricingCfg:   pricingCfg,
		storeRepo:    storeRepo,
		paymentRepo:  paymentRepo,
		cartRepo:     cartRepo,
	}
}

// GetAccountStatus fails closed: a missing store or payment row is a plain
// not-connected status with a nil error, while a processor failure keeps the
// not-connected status but also reports ErrProcessorUnavailable so callers
// can tell the two apart.
func (s *stripeServiceImpl) GetAccountStatus(ctx context.Context, storeID string, retrieveAccount bool) (*AccountStatus, error) {
	notConnected := &AccountStatus{}

	_, err := s.storeRepo.Get(ctx, storeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notConnected, nil
		}
		return notConnected, fmt.Errorf("get store: %w", err)
	}

	payment, err := s.paymentRepo.GetByStoreID(ctx, storeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notConnected, nil
		}
		return notConnected, fmt.Errorf("get payment record: %w", err)
	}

	if payment.StripeAccountID == "" {
		return notConnected, nil
	}

	if !retrieveAccount {
		return &AccountStatus{
			IsConnected: payment.DetailsSubmitted,
			Payment:     payment,
		}, nil
	}

	account, err := s.stripeClient.RetrieveAccount(ctx, payment.StripeAccountID)
	if err != nil {
		util.ProcessorRequestsFailedTotal.WithLabelValues("retrieve_account").Inc()
		util.GetLogger().Warn("retrieve merchant account failed",
			zap.String("store_id", storeID), zap.Error(err))
		return notConnected, fmt.Errorf("%w: %v", ErrProcessorUnavailable, err)
	}

	// Onboarding finished at the processor but the local rows have not
	// caught up. Sync payment and store in one transaction.
	if account.DetailsSubmitted && !payment.DetailsSubmitted {
		var createdAt *time.Time
		if account.Created > 0 {
			t := time.Unix(account.Created, 0)
			createdAt = &t
		}

		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.paymentRepo.MarkDetailsSubmitted(ctx, tx, storeID, createdAt); err != nil {
				return fmt.Errorf("mark details submitted: %w", err)
			}
			return s.storeRepo.SetStripeAccountID(ctx, tx, storeID, account.ID)
		})
		if err != nil {
			return notConnected, err
		}
		payment.DetailsSubmitted = true
	}

	return &AccountStatus{
		IsConnected: payment.DetailsSubmitted,
		Account:     account,
		Payment:     payment,
	}, nil
}

func (s *stripeServiceImpl) CreateAccountLink(ctx context.Context, storeID string) (string, error) {
	// A processor failure must stop the flow here: proceeding on a
	// not-connected fallback status would mint a fresh account over a
	// store whose live account simply could not be retrieved.
	status, err := s.GetAccountStatus(ctx, storeID, true)
	if err != nil {
		return "", err
	}

	if status.IsConnected {
		return "", ErrStoreAlreadyConnected
	}

	if _, err := s.storeRepo.Get(ctx, storeID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrStoreNotFound
		}
		return "", fmt.Errorf("get store: %w", err)
	}

	// A half-onboarded account cannot be resumed with a fresh link, so it
	// is deleted and recreated.
	if status.Account != nil && !status.Account.DetailsSubmitted {
		if err := s.stripeClient.DeleteAccount(ctx, status.Account.ID); err != nil {
			return "", fmt.Errorf("%w: %v", ErrProcessorUnavailable, err)
		}
		status.Payment = nil
	}

	stripeAccountID := ""
	if status.Payment != nil {
		stripeAccountID = status.Payment.StripeAccountID
	}
	if stripeAccountID == "" {
		account, err := s.stripeClient.CreateAccount(ctx)
		if err != nil {
			util.ProcessorRequestsFailedTotal.WithLabelValues("create_account").Inc()
			return "", fmt.Errorf("%w: %v", ErrProcessorUnavailable, err)
		}
		stripeAccountID = account.ID

		// Payment record is created lazily on first connect attempt.
		err = s.paymentRepo.Upsert(ctx, &model.Payment{
			StoreID:         storeID,
			StripeAccountID: stripeAccountID,
		})
		if err != nil {
			return "", fmt.Errorf("upsert payment record: %w", err)
		}
	}

	dashboardURL := fmt.Sprintf("%s/dashboard/stores/%s", s.baseURL, storeID)
	link, err := s.stripeClient.CreateAccountLink(ctx, stripeAccountID, dashboardURL, dashboardURL)
	if err != nil {
		util.ProcessorRequestsFailedTotal.WithLabelValues("create_account_link").Inc()
		return "", fmt.Errorf("%w: %v", ErrProcessorUnavailable, err)
	}
	if link.URL == "" {
		return "", fmt.Errorf("%w: empty onboarding url", ErrProcessorUnavailable)
	}

	return link.URL, nil
}

func (s *stripeServiceImpl) CreatePaymentIntent(ctx context.Context, storeID, cartID string, items []model.CheckoutItem) (string, error) {
	status, err := s.GetAccountStatus(ctx, storeID, false)
	if err != nil {
		return "", err
	}
	if !status.IsConnected || status.Payment == nil {
		return "", ErrStoreNotConnected
	}

	if cartID == "" {
		return "", ErrCartNotFound
	}

	total, fee, err := CalculateOrderAmount(items, s.pricingCfg)
	if err != nil {
		return "", err
	}

	serializedItems, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("marshal checkout items: %w", err)
	}
	if len(serializedItems) > metadataValueLimit {
		return "", ErrCartTooLarge
	}

	intent, err := s.stripeClient.CreatePaymentIntent(ctx, status.Payment.StripeAccountID, &client.PaymentIntentParams{
		Amount:               total,
		ApplicationFeeAmount: fee,
		Currency:             s.pricingCfg.Currency,
		Metadata: map[string]string{
			"cartId":  cartID,
			"storeId": storeID,
			"items":   string(serializedItems),
		},
	})
	if err != nil {
		util.ProcessorRequestsFailedTotal.WithLabelValues("create_payment_intent").Inc()
		return "", fmt.Errorf("%w: %v", ErrProcessorUnavailable, err)
	}

	util.PaymentIntentsCreatedTotal.Inc()

	if intent.Status == client.PaymentIntentStatusRequiresPaymentMethod {
		if err := s.cartRepo.AttachPaymentIntent(ctx, cartID, intent.ID, intent.ClientSecret); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// Zero rows matched either a missing cart or a closed
				// one; closed carts must be reported as closed.
				if cart, getErr := s.cartRepo.Get(ctx, cartID); getErr == nil && cart.Closed {
					return "", ErrCartClosed
				}
				return "", ErrCartNotFound
			}
			return "", fmt.Errorf("attach payment intent to cart: %w", err)
		}
	}

	return intent.ClientSecret, nil
}

// GetPaymentIntent retrieves the intent and verifies it against the caller's
// session: the intent must be in the terminal-success status, and either the
// cart-id cookie matches the intent's cart-id metadata or the supplied postal
// code matches the intent's shipping address. This blocks checkout links
// replayed by a session that never held the original cart.
func (s *stripeServiceImpl) GetPaymentIntent(ctx context.Context, storeID, intentID, cartID, deliveryPostalCode string) (*VerifiedIntent, error) {
	status, err := s.GetAccountStatus(ctx, storeID, false)
	if err != nil {
		return nil, err
	}
	if !status.IsConnected || status.Payment == nil {
		return nil, ErrStoreNotConnected
	}

	intent, err := s.stripeClient.RetrievePaymentIntent(ctx, status.Payment.StripeAccountID, intentID)
	if err != nil {
		util.ProcessorRequestsFailedTotal.WithLabelValues("retrieve_payment_intent").Inc()
		return nil, fmt.Errorf("%w: %v", ErrProcessorUnavailable, err)
	}

	if intent.Status != client.PaymentIntentStatusSucceeded {
		return &VerifiedIntent{Intent: intent}, nil
	}

	cartMatches := cartID != "" && intent.Metadata["cartId"] == cartID
	postalMatches := deliveryPostalCode != "" &&
		intentPostalCode(intent) == strings.ReplaceAll(deliveryPostalCode, " ", "")

	return &VerifiedIntent{
		Intent:     intent,
		IsVerified: cartMatches || postalMatches,
	}, nil
}

func (s *stripeServiceImpl) ListPaymentIntents(ctx context.Context, storeID string, limit int) (*dto.PaymentIntentListResponse, error) {
	status, err := s.GetAccountStatus(ctx, storeID, false)
	if err != nil {
		return nil, err
	}
	if !status.IsConnected || status.Payment == nil {
		return nil, ErrStoreNotConnected
	}

	if limit <= 0 {
		limit = 10
	}

	list, err := s.stripeClient.ListPaymentIntents(ctx, status.Payment.StripeAccountID, limit)
	if err != nil {
		util.ProcessorRequestsFailedTotal.WithLabelValues("list_payment_intents").Inc()
		return nil, fmt.Errorf("%w: %v", ErrProcessorUnavailable, err)
	}

	summaries := make([]dto.PaymentIntentSummary, 0, len(list.Data))
	for _, intent := range list.Data {
		summaries = append(summaries, dto.PaymentIntentSummary{
			ID:      intent.ID,
			Amount:  intent.Amount,
			Created: intent.Created,
			CartID:  intent.Metadata["cartId"],
		})
	}

	return &dto.PaymentIntentListResponse{
		PaymentIntents: summaries,
		HasMore:        list.HasMore,
	}, nil
}

// Postal codes are compared without whitespace ("SW1A 1AA" == "SW1A1AA").
func intentPostalCode(intent *client.PaymentIntent) string {
	if intent.Shipping == nil || intent.Shipping.Address == nil {
		return ""
	}
	return strings.ReplaceAll(intent.Shipping.Address.PostalCode, " ", "")
}
