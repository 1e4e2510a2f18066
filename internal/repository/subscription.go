package repository

import (
	"context"
	"time"

	"storefront-checkout/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SubscriptionRepository interface {
	GetByUserID(ctx context.Context, userID string) (*model.UserSubscription, error)
	GetBySubscriptionID(ctx context.Context, subscriptionID string) (*model.UserSubscription, error)
	Upsert(ctx context.Context, sub *model.UserSubscription) error
}

type subscriptionRepoImpl struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepoImpl{
		db: db,
	}
}

func (r *subscriptionRepoImpl) GetByUserID(ctx context.Context, userID string) (*model.UserSubscription, error) {
	var sub model.UserSubscription
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&sub).Error

	if err != nil {
		return nil, err
	}

	return &sub, nil
}

func (r *subscriptionRepoImpl) GetBySubscriptionID(ctx context.Context, subscriptionID string) (*model.UserSubscription, error) {
	var sub model.UserSubscription
	err := r.db.WithContext(ctx).
		Where("stripe_subscription_id = ?", subscriptionID).
		First(&sub).Error

	if err != nil {
		return nil, err
	}

	return &sub, nil
}

func (r *subscriptionRepoImpl) Upsert(ctx context.Context, sub *model.UserSubscription) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"stripe_customer_id":        sub.StripeCustomerID,
			"stripe_subscription_id":    sub.StripeSubscriptionID,
			"stripe_price_id":           sub.StripePriceID,
			"stripe_current_period_end": sub.StripeCurrentPeriodEnd,
			"updated_at":                time.Now(),
		}),
	}).Create(sub).Error
}
