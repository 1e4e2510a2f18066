package handler

import (
	"errors"
	"net/http"
	"strconv"

	"storefront-checkout/internal/dto"
	"storefront-checkout/internal/service"

	"github.com/labstack/echo/v4"
)

type StoreHandler struct {
	stripeService service.StripeService
}

func NewStoreHandler(stripeService service.StripeService) *StoreHandler {
	return &StoreHandler{
		stripeService: stripeService,
	}
}

// AccountStatus feeds conditional UI rendering, so processor failures are
// reported as "not connected" rather than as an error page.
func (h *StoreHandler) AccountStatus(c echo.Context) error {
	ctx := c.Request().Context()

	storeID := c.Param("storeID")
	if storeID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing store id")
	}

	status, err := h.stripeService.GetAccountStatus(ctx, storeID, true)
	if err != nil && !errors.Is(err, service.ErrProcessorUnavailable) {
		return err
	}

	resp := &dto.AccountStatusResponse{
		IsConnected: status.IsConnected,
	}
	if status.Account != nil {
		resp.DetailsSubmitted = status.Account.DetailsSubmitted
		resp.StripeAccountID = status.Account.ID
	}

	return c.JSON(http.StatusOK, resp)
}

func (h *StoreHandler) Connect(c echo.Context) error {
	ctx := c.Request().Context()

	storeID := c.Param("storeID")
	if storeID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing store id")
	}

	url, err := h.stripeService.CreateAccountLink(ctx, storeID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrStoreAlreadyConnected):
			return echo.NewHTTPError(http.StatusConflict, "store already connected")
		case errors.Is(err, service.ErrStoreNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "store not found")
		case errors.Is(err, service.ErrProcessorUnavailable):
			return echo.NewHTTPError(http.StatusBadGateway, "payment processor unavailable")
		default:
			return err
		}
	}

	return c.JSON(http.StatusOK, &dto.ConnectResponse{URL: url})
}

func (h *StoreHandler) ListPaymentIntents(c echo.Context) error {
	ctx := c.Request().Context()

	storeID := c.Param("storeID")
	if storeID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing store id")
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	list, err := h.stripeService.ListPaymentIntents(ctx, storeID, limit)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrStoreNotConnected):
			return echo.NewHTTPError(http.StatusConflict, "store not connected")
		case errors.Is(err, service.ErrProcessorUnavailable):
			return echo.NewHTTPError(http.StatusBadGateway, "payment processor unavailable")
		default:
			return err
		}
	}

	return c.JSON(http.StatusOK, list)
}
