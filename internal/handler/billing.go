package handler

import (
	"errors"
	"net/http"

	"storefront-checkout/internal/dto"
	"storefront-checkout/internal/middleware"
	"storefront-checkout/internal/service"

	"github.com/labstack/echo/v4"
)

type BillingHandler struct {
	planService service.PlanService
}

func NewBillingHandler(planService service.PlanService) *BillingHandler {
	return &BillingHandler{
		planService: planService,
	}
}

func (h *BillingHandler) GetPlans(c echo.Context) error {
	ctx := c.Request().Context()

	plans, err := h.planService.GetPlans(ctx)
	if err != nil {
		if errors.Is(err, service.ErrProcessorUnavailable) {
			return echo.NewHTTPError(http.StatusBadGateway, "payment processor unavailable")
		}
		return err
	}

	return c.JSON(http.StatusOK, plans)
}

func (h *BillingHandler) GetPlan(c echo.Context) error {
	ctx := c.Request().Context()

	user := middleware.UserFromContext(c)
	if user == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "not signed in")
	}

	plan, err := h.planService.GetPlan(ctx, user.ID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPlanNotRecognized):
			// Configuration drift: a paid price id the catalog no longer
			// knows. Surfaced, not defaulted to free.
			return echo.NewHTTPError(http.StatusInternalServerError, "subscription plan not recognized")
		case errors.Is(err, service.ErrProcessorUnavailable):
			return echo.NewHTTPError(http.StatusBadGateway, "payment processor unavailable")
		default:
			return err
		}
	}

	return c.JSON(http.StatusOK, plan)
}

func (h *BillingHandler) ManagePlan(c echo.Context) error {
	ctx := c.Request().Context()

	user := middleware.UserFromContext(c)
	if user == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "not signed in")
	}

	var req dto.ManagePlanRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	url, err := h.planService.ManagePlan(ctx, user, &req)
	if err != nil {
		if errors.Is(err, service.ErrProcessorUnavailable) {
			return echo.NewHTTPError(http.StatusBadGateway, "payment processor unavailable")
		}
		return err
	}

	return c.JSON(http.StatusOK, &dto.ManagePlanResponse{URL: url})
}
