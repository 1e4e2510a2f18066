package handler

import (
	"errors"
	"net/http"

	"storefront-checkout/internal/dto"
	"storefront-checkout/internal/model"
	"storefront-checkout/internal/service"

	"github.com/labstack/echo/v4"
)

type CheckoutHandler struct {
	stripeService service.StripeService
	orderService  service.OrderService
	cartService   service.CartService
}

func NewCheckoutHandler(stripeService service.StripeService, orderService service.OrderService, cartService service.CartService) *CheckoutHandler {
	return &CheckoutHandler{
		stripeService: stripeService,
		orderService:  orderService,
		cartService:   cartService,
	}
}

// CreatePaymentIntent computes the charge amount from the submitted items and
// creates the intent on the store's connected account, tagged with the cart
// id so the order summary can verify the session later.
func (h *CheckoutHandler) CreatePaymentIntent(c echo.Context) error {
	ctx := c.Request().Context()

	storeID := c.Param("storeID")
	if storeID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing store id")
	}

	var req dto.CreatePaymentIntentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	cartID := cartIDFromCookie(c)

	cart, err := h.cartService.Get(ctx, cartID)
	if err != nil {
		return err
	}

	priceByProduct := make(map[string]string, len(cart.Items))
	for _, lineItem := range cart.Items {
		priceByProduct[lineItem.ID] = lineItem.Price
	}

	// Quantities come from the client, prices only from product rows.
	items := make([]model.CheckoutItem, 0, len(req.Items))
	for _, item := range req.Items {
		price, ok := priceByProduct[item.ProductID]
		if !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "item not in cart")
		}
		items = append(items, model.CheckoutItem{
			ProductID: item.ProductID,
			Price:     price,
			Quantity:  item.Quantity,
		})
	}

	clientSecret, err := h.stripeService.CreatePaymentIntent(ctx, storeID, cartID, items)
	if err != nil {
		return checkoutError(err)
	}

	return c.JSON(http.StatusOK, &dto.CreatePaymentIntentResponse{
		ClientSecret: clientSecret,
	})
}

// OrderSummary verifies the intent the processor redirected back with and,
// when verified, reconciles it into an order. Rendering never fails on a
// reconciliation problem; the summary simply reports isVerified=false.
func (h *CheckoutHandler) OrderSummary(c echo.Context) error {
	ctx := c.Request().Context()

	storeID := c.Param("storeID")
	intentID := c.QueryParam("payment_intent_id")
	if storeID == "" || intentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing store or payment intent id")
	}

	cartID := cartIDFromCookie(c)
	postalCode := c.QueryParam("delivery_postal_code")

	verified, err := h.stripeService.GetPaymentIntent(ctx, storeID, intentID, cartID, postalCode)
	if err != nil {
		if errors.Is(err, service.ErrStoreNotConnected) || errors.Is(err, service.ErrProcessorUnavailable) {
			// Fail closed: render an unverified, empty summary.
			return c.JSON(http.StatusOK, &dto.OrderSummaryResponse{
				LineItems: []dto.CartLineItem{},
			})
		}
		return err
	}

	reconcileIntent := verified.Intent
	if !verified.IsVerified {
		reconcileIntent = nil
	}

	lineItems, err := h.orderService.GetOrderLineItems(ctx, &service.OrderLineItemsInput{
		StoreID: storeID,
		Items:   verified.Intent.Metadata["items"],
		Intent:  reconcileIntent,
		CartID:  cartID,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidItems) {
			return echo.NewHTTPError(http.StatusBadRequest, "malformed item payload")
		}
		return err
	}

	return c.JSON(http.StatusOK, &dto.OrderSummaryResponse{
		IsVerified: verified.IsVerified,
		LineItems:  lineItems,
	})
}

func checkoutError(err error) error {
	switch {
	case errors.Is(err, service.ErrStoreNotConnected):
		return echo.NewHTTPError(http.StatusConflict, "store not connected to payment processor")
	case errors.Is(err, service.ErrCartNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "cart not found")
	case errors.Is(err, service.ErrCartClosed):
		return echo.NewHTTPError(http.StatusConflict, "cart is closed")
	case errors.Is(err, service.ErrCartTooLarge):
		return echo.NewHTTPError(http.StatusBadRequest, "cart has too many items for checkout")
	case errors.Is(err, service.ErrInvalidQuantity), errors.Is(err, service.ErrInvalidPrice):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrProcessorUnavailable):
		return echo.NewHTTPError(http.StatusBadGateway, "payment processor unavailable")
	default:
		return err
	}
}
