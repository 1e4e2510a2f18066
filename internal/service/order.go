package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"storefront-checkout/internal/client"
	"storefront-checkout/internal/dto"
	"storefront-checkout/internal/model"
	"storefront-checkout/internal/repository"
	"storefront-checkout/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OrderLineItemsInput carries everything the order-summary page hands back
// after the processor redirect: the serialized item list from the intent
// metadata, the retrieved intent, and the caller's cart-id cookie.
type OrderLineItemsInput struct {
	StoreID string
	Items   string
	Intent  *client.PaymentIntent
	CartID  string
}

type OrderService interface {
	// GetOrderLineItems returns the order's line items for display and, when
	// the intent has succeeded and the cart is still open, commits the order.
	// Commit failures are logged and reported via metrics but do not disturb
	// the returned line items; the page renders either way.
	GetOrderLineItems(ctx context.Context, input *OrderLineItemsInput) ([]dto.CartLineItem, error)
	// Reconcile turns one succeeded payment intent into an order row,
	// decremented inventory and a closed cart, atomically. Replays surface
	// ErrCartClosed, ErrIntentMismatch or ErrOrderAlreadyRecorded.
	Reconcile(ctx context.Context, storeID string, intent *client.PaymentIntent, cartID string) error
}

type orderServiceImpl struct {
	db          *gorm.DB
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
	orderRepo   repository.OrderRepository
}

func NewOrderService(
	db *gorm.DB,
	cartRepo repository.CartRepository,
	productRepo repository.ProductRepository,
	orderRepo repository.OrderRepository,
) OrderService {
	return &orderServiceImpl{
		db:          db,
		cartRepo:    cartRepo,
		productRepo: productRepo,
		orderRepo:   orderRepo,
	}
}

func (s *orderServiceImpl) GetOrderLineItems(ctx context.Context, input *OrderLineItemsInput) ([]dto.CartLineItem, error) {
	items, err := parseCheckoutItems(input.Items)
	if err != nil {
		return nil, err
	}

	lineItems, err := s.lineItems(ctx, items)
	if err != nil {
		return nil, err
	}

	if input.Intent == nil || input.Intent.Status != client.PaymentIntentStatusSucceeded {
		// Pending or failed intent: nothing to commit, show the items.
		return lineItems, nil
	}

	if err := s.Reconcile(ctx, input.StoreID, input.Intent, input.CartID); err != nil {
		switch {
		case errors.Is(err, ErrCartClosed),
			errors.Is(err, ErrOrderAlreadyRecorded),
			errors.Is(err, ErrIntentMismatch):
			// Already reconciled, or this session never held the cart.
			// The items are still the right thing to display.
		case errors.Is(err, ErrInsufficientInventory):
			util.GetLogger().Error("order reconciliation aborted",
				zap.String("payment_intent_id", input.Intent.ID), zap.Error(err))
		default:
			util.GetLogger().Error("order reconciliation failed",
				zap.String("payment_intent_id", input.Intent.ID), zap.Error(err))
		}
	}

	return lineItems, nil
}

func (s *orderServiceImpl) Reconcile(ctx context.Context, storeID string, intent *client.PaymentIntent, cartID string) error {
	if cartID == "" {
		util.ReconciliationFailedTotal.WithLabelValues("no_cart").Inc()
		return ErrCartNotFound
	}

	items, err := parseCheckoutItems(intent.Metadata["items"])
	if err != nil {
		util.ReconciliationFailedTotal.WithLabelValues("invalid_items").Inc()
		return err
	}

	var quantity int32
	for _, item := range items {
		quantity += item.Quantity
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cart, err := s.cartRepo.GetForUpdate(ctx, tx, cartID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCartNotFound
			}
			return fmt.Errorf("get cart: %w", err)
		}

		if cart.Closed {
			return ErrCartClosed
		}
		if cart.PaymentIntentID == "" || cart.PaymentIntentID != intent.ID {
			return ErrIntentMismatch
		}

		err = s.orderRepo.Create(ctx, tx, &model.Order{
			ID:                        uuid.NewString(),
			StoreID:                   storeID,
			Items:                     items,
			Quantity:                  quantity,
			Amount:                    intent.Amount,
			Email:                     intent.ReceiptEmail,
			StripePaymentIntentID:     intent.ID,
			StripePaymentIntentStatus: intent.Status,
		})
		if err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// A concurrent reconciliation won the race. Roll back so
				// inventory is not decremented twice.
				return ErrOrderAlreadyRecorded
			}
			return fmt.Errorf("create order: %w", err)
		}

		// All-or-nothing: any item that would push inventory negative
		// aborts the whole transaction, order row included.
		for _, item := range items {
			applied, err := s.productRepo.DecrementInventory(ctx, tx, item.ProductID, item.Quantity)
			if err != nil {
				return fmt.Errorf("decrement inventory: %w", err)
			}
			if !applied {
				return fmt.Errorf("product %s: %w", item.ProductID, ErrInsufficientInventory)
			}
		}

		return s.cartRepo.Close(ctx, tx, cartID)
	})
	if err != nil {
		util.ReconciliationFailedTotal.WithLabelValues(reconcileFailureReason(err)).Inc()
		return err
	}

	util.OrdersReconciledTotal.Inc()
	return nil
}

func reconcileFailureReason(err error) string {
	switch {
	case errors.Is(err, ErrCartClosed):
		return "cart_closed"
	case errors.Is(err, ErrIntentMismatch):
		return "intent_mismatch"
	case errors.Is(err, ErrOrderAlreadyRecorded):
		return "duplicate_intent"
	case errors.Is(err, ErrInsufficientInventory):
		return "insufficient_inventory"
	case errors.Is(err, ErrCartNotFound):
		return "cart_not_found"
	default:
		return "internal"
	}
}

func parseCheckoutItems(serialized string) ([]model.CheckoutItem, error) {
	if serialized == "" {
		serialized = "[]"
	}

	var items []model.CheckoutItem
	if err := json.Unmarshal([]byte(serialized), &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidItems, err)
	}

	for _, item := range items {
		if item.ProductID == "" || item.Quantity <= 0 {
			return nil, ErrInvalidItems
		}
	}

	return items, nil
}

func (s *orderServiceImpl) lineItems(ctx context.Context, items []model.CheckoutItem) ([]dto.CartLineItem, error) {
	if len(items) == 0 {
		return []dto.CartLineItem{}, nil
	}

	productIDs := make([]string, len(items))
	quantityByProduct := make(map[string]int32, len(items))
	for i, item := range items {
		productIDs[i] = item.ProductID
		quantityByProduct[item.ProductID] = item.Quantity
	}

	products, err := s.productRepo.FindMany(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("find order products: %w", err)
	}

	lineItems := make([]dto.CartLineItem, 0, len(products))
	for _, product := range products {
		lineItems = append(lineItems, dto.CartLineItem{
			ID:          product.ID,
			Name:        product.Name,
			Price:       product.Price,
			Inventory:   product.Inventory,
			StoreID:     product.StoreID,
			Category:    product.Category,
			Subcategory: product.Subcategory,
			Quantity:    quantityByProduct[product.ID],
		})
	}

	return lineItems, nil
}
