package repository

import (
	"context"
	"time"

	"storefront-checkout/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PaymentRepository interface {
	GetByStoreID(ctx context.Context, storeID string) (*model.Payment, error)
	Upsert(ctx context.Context, payment *model.Payment) error
	MarkDetailsSubmitted(ctx context.Context, tx *gorm.DB, storeID string, accountCreatedAt *time.Time) error
}

type paymentRepoImpl struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepoImpl{
		db: db,
	}
}

func (r *paymentRepoImpl) GetByStoreID(ctx context.Context, storeID string) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.WithContext(ctx).
		Where("store_id = ?", storeID).
		First(&payment).Error

	if err != nil {
		return nil, err
	}

	return &payment, nil
}

// Upsert writes the row's account linkage. Replacing the account id also
// replaces the onboarding state: a stale details_submitted flag from the
// previous account must not survive onto the new one.
func (r *paymentRepoImpl) Upsert(ctx context.Context, payment *model.Payment) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "store_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"stripe_account_id": payment.StripeAccountID,
			"details_submitted": payment.DetailsSubmitted,
			"updated_at":        time.Now(),
		}),
	}).Create(payment).Error
}

func (r *paymentRepoImpl) MarkDetailsSubmitted(ctx context.Context, tx *gorm.DB, storeID string, accountCreatedAt *time.Time) error {
	return tx.WithContext(ctx).
		Model(&model.Payment{}).
		Where("store_id = ?", storeID).
		Updates(map[string]interface{}{
			"details_submitted":         true,
			"stripe_account_created_at": accountCreatedAt,
			"updated_at":                time.Now(),
		}).Error
}
