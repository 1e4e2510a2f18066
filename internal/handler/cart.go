package handler

import (
	"errors"
	"net/http"

	"storefront-checkout/internal/dto"
	"storefront-checkout/internal/service"

	"github.com/labstack/echo/v4"
)

const cartCookieName = "cartId"

type CartHandler struct {
	cartService service.CartService
}

func NewCartHandler(cartService service.CartService) *CartHandler {
	return &CartHandler{
		cartService: cartService,
	}
}

// cartIDFromCookie returns the cart id, or "" when no cookie is present.
// Absence of the cookie means an empty cart, never an error.
func cartIDFromCookie(c echo.Context) string {
	cookie, err := c.Cookie(cartCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func setCartCookie(c echo.Context, cartID string) {
	c.SetCookie(&http.Cookie{
		Name:     cartCookieName,
		Value:    cartID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *CartHandler) GetCart(c echo.Context) error {
	ctx := c.Request().Context()

	cart, err := h.cartService.Get(ctx, cartIDFromCookie(c))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, cart)
}

func (h *CartHandler) AddItem(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.CartItemRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	cartID := cartIDFromCookie(c)

	cart, err := h.cartService.AddItem(ctx, cartID, req.ProductID, req.Quantity)
	if err != nil {
		return cartError(err)
	}

	// First write mints the cart; the cookie is how the session keeps it.
	if cartID == "" {
		setCartCookie(c, cart.ID)
	}

	return c.JSON(http.StatusOK, cart)
}

func (h *CartHandler) RemoveItem(c echo.Context) error {
	ctx := c.Request().Context()

	productID := c.Param("productID")
	if productID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing product id")
	}

	cart, err := h.cartService.RemoveItem(ctx, cartIDFromCookie(c), productID)
	if err != nil {
		return cartError(err)
	}

	return c.JSON(http.StatusOK, cart)
}

func cartError(err error) error {
	switch {
	case errors.Is(err, service.ErrCartClosed):
		return echo.NewHTTPError(http.StatusConflict, "cart is closed")
	case errors.Is(err, service.ErrCartNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "cart not found")
	case errors.Is(err, service.ErrInvalidQuantity), errors.Is(err, service.ErrInvalidItems):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return err
	}
}
