package repository

import (
	"context"

	"storefront-checkout/internal/model"

	"gorm.io/gorm"
)

type StoreRepository interface {
	Get(ctx context.Context, storeID string) (*model.Store, error)
	SetStripeAccountID(ctx context.Context, tx *gorm.DB, storeID, stripeAccountID string) error
}

type storeRepoImpl struct {
	db *gorm.DB
}

func NewStoreRepository(db *gorm.DB) StoreRepository {
	return &storeRepoImpl{
		db: db,
	}
}

func (r *storeRepoImpl) Get(ctx context.Context, storeID string) (*model.Store, error) {
	var store model.Store
	err := r.db.WithContext(ctx).
		Where("id = ?", storeID).
		First(&store).Error

	if err != nil {
		return nil, err
	}

	return &store, nil
}

func (r *storeRepoImpl) SetStripeAccountID(ctx context.Context, tx *gorm.DB, storeID, stripeAccountID string) error {
	return tx.WithContext(ctx).
		Model(&model.Store{}).
		Where("id = ?", storeID).
		Updates(map[string]interface{}{
			"stripe_account_id": stripeAccountID,
			"active":            true,
		}).Error
}
