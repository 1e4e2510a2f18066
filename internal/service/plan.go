package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"storefront-checkout/internal/client"
	"storefront-checkout/internal/config"
	"storefront-checkout/internal/dto"
	"storefront-checkout/internal/repository"
	"storefront-checkout/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// A subscription whose period end has passed within the last day still counts
// as subscribed, tolerating processor webhook lag.
const subscriptionGrace = 24 * time.Hour

type PlanService interface {
	// GetPlan resolves the user's display-ready plan from stored billing
	// metadata and the live cancellation flag.
	GetPlan(ctx context.Context, userID string) (*dto.UserPlan, error)
	// GetPlans lists the catalog with live display prices, cached time-boxed.
	GetPlans(ctx context.Context) ([]dto.PlanWithPrice, error)
	// ManagePlan returns a billing-portal URL for the current plan or a
	// subscription checkout URL for a new one.
	ManagePlan(ctx context.Context, user *dto.User, input *dto.ManagePlanRequest) (string, error)
}

type planServiceImpl struct {
	stripeClient client.StripeClient
	catalog      *config.PlanCatalog
	priceCache   client.PriceCache
	baseURL      string
	subRepo      repository.SubscriptionRepository
}

func NewPlanService(
	stripeClient client.StripeClient,
	catalog *config.PlanCatalog,
	priceCache client.PriceCache,
	baseURL string,
	subRepo repository.SubscriptionRepository,
) PlanService {
	return &planServiceImpl{
		stripeClient: stripeClient,
		catalog:      catalog,
		priceCache:   priceCache,
		baseURL:      baseURL,
		subRepo:      subRepo,
	}
}

// IsSubscribed reports whether billing metadata represents a live
// subscription: a price id is present and the period end, plus the grace
// window, is still in the future.
func IsSubscribed(priceID string, periodEnd *time.Time, now time.Time) bool {
	return priceID != "" && periodEnd != nil && periodEnd.Add(subscriptionGrace).After(now)
}

// ResolvePlan maps billing metadata and the cancellation flag onto the
// catalog. A subscribed price id missing from the catalog is configuration
// drift and is surfaced, never silently defaulted to the free plan.
func ResolvePlan(catalog *config.PlanCatalog, priceID string, periodEnd *time.Time, isCanceled bool, now time.Time) (*dto.UserPlan, error) {
	subscribed := IsSubscribed(priceID, periodEnd, now)

	plan := &catalog.Free
	if subscribed {
		plan = catalog.FindByPriceID(priceID)
		if plan == nil {
			return nil, fmt.Errorf("%w: %s", ErrPlanNotRecognized, priceID)
		}
	}

	if !subscribed {
		isCanceled = false
	}

	return &dto.UserPlan{
		ID:            plan.ID,
		Title:         plan.Title,
		Description:   plan.Description,
		LimitStores:   plan.LimitStores,
		LimitProducts: plan.LimitProducts,
		IsSubscribed:  subscribed,
		IsCanceled:    isCanceled,
		IsActive:      subscribed && !isCanceled,
	}, nil
}

func (s *planServiceImpl) GetPlan(ctx context.Context, userID string) (*dto.UserPlan, error) {
	sub, err := s.subRepo.GetByUserID(ctx, userID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("get user subscription: %w", err)
		}
		return ResolvePlan(s.catalog, "", nil, false, time.Now())
	}

	now := time.Now()

	isCanceled := false
	if IsSubscribed(sub.StripePriceID, sub.StripeCurrentPeriodEnd, now) && sub.StripeSubscriptionID != "" {
		stripeSub, err := s.stripeClient.RetrieveSubscription(ctx, sub.StripeSubscriptionID)
		if err != nil {
			util.ProcessorRequestsFailedTotal.WithLabelValues("retrieve_subscription").Inc()
			return nil, fmt.Errorf("%w: %v", ErrProcessorUnavailable, err)
		}
		isCanceled = stripeSub.CancelAtPeriodEnd
	}

	plan, err := ResolvePlan(s.catalog, sub.StripePriceID, sub.StripeCurrentPeriodEnd, isCanceled, now)
	if err != nil {
		return nil, err
	}

	plan.StripeSubscriptionID = sub.StripeSubscriptionID
	plan.StripeCustomerID = sub.StripeCustomerID
	plan.StripeCurrentPeriodEnd = sub.StripeCurrentPeriodEnd

	return plan, nil
}

func (s *planServiceImpl) GetPlans(ctx context.Context) ([]dto.PlanWithPrice, error) {
	plans := s.catalog.Plans()
	out := make([]dto.PlanWithPrice, 0, len(plans))

	for _, plan := range plans {
		amount := int64(0)
		if plan.StripePriceID != "" {
			cents, err := s.priceUnitAmount(ctx, plan.StripePriceID)
			if err != nil {
				return nil, err
			}
			amount = cents
		}

		out = append(out, dto.PlanWithPrice{
			ID:            plan.ID,
			Title:         plan.Title,
			Description:   plan.Description,
			Price:         formatPrice(amount),
			LimitStores:   plan.LimitStores,
			LimitProducts: plan.LimitProducts,
		})
	}

	return out, nil
}

// priceUnitAmount looks up a price's unit amount, going through the
// time-boxed cache first. Cache errors degrade to a direct processor call.
func (s *planServiceImpl) priceUnitAmount(ctx context.Context, priceID string) (int64, error) {
	if s.priceCache != nil {
		cached, ok, err := s.priceCache.Get(ctx, priceID)
		if err != nil {
			util.GetLogger().Warn("price cache read failed", zap.Error(err))
		} else if ok {
			if cents, err := strconv.ParseInt(cached, 10, 64); err == nil {
				return cents, nil
			}
		}
	}

	price, err := s.stripeClient.RetrievePrice(ctx, priceID)
	if err != nil {
		util.ProcessorRequestsFailedTotal.WithLabelValues("retrieve_price").Inc()
		return 0, fmt.Errorf("%w: %v", ErrProcessorUnavailable, err)
	}

	if s.priceCache != nil {
		if err := s.priceCache.Set(ctx, priceID, strconv.FormatInt(price.UnitAmount, 10)); err != nil {
			util.GetLogger().Warn("price cache write failed", zap.Error(err))
		}
	}

	return price.UnitAmount, nil
}

func (s *planServiceImpl) ManagePlan(ctx context.Context, user *dto.User, input *dto.ManagePlanRequest) (string, error) {
	billingURL := s.baseURL + "/dashboard/billing"

	sub, err := s.subRepo.GetByUserID(ctx, user.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("get user subscription: %w", err)
	}

	// Already subscribed to this plan: hand the user to the billing portal.
	if sub != nil && input.IsCurrentPlan && sub.StripeCustomerID != "" &&
		IsSubscribed(sub.StripePriceID, sub.StripeCurrentPeriodEnd, time.Now()) {
		session, err := s.stripeClient.CreateBillingPortalSession(ctx, sub.StripeCustomerID, billingURL)
		if err != nil {
			util.ProcessorRequestsFailedTotal.WithLabelValues("create_billing_portal_session").Inc()
			return "", fmt.Errorf("%w: %v", ErrProcessorUnavailable, err)
		}
		return session.URL, nil
	}

	session, err := s.stripeClient.CreateCheckoutSession(ctx, &client.CheckoutSessionParams{
		SuccessURL:    billingURL,
		CancelURL:     billingURL,
		Mode:          "subscription",
		CustomerEmail: user.Email,
		PriceID:       input.StripePriceID,
		Quantity:      1,
		Metadata: map[string]string{
			"userId": user.ID,
		},
	})
	if err != nil {
		util.ProcessorRequestsFailedTotal.WithLabelValues("create_checkout_session").Inc()
		return "", fmt.Errorf("%w: %v", ErrProcessorUnavailable, err)
	}

	if session.URL == "" {
		return billingURL, nil
	}
	return session.URL, nil
}

func formatPrice(cents int64) string {
	return "$" + decimal.NewFromInt(cents).Div(centsPerUnit).StringFixed(2)
}
