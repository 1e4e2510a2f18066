package repository

import (
	"context"

	"storefront-checkout/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CartRepository interface {
	Get(ctx context.Context, cartID string) (*model.Cart, error)
	GetForUpdate(ctx context.Context, tx *gorm.DB, cartID string) (*model.Cart, error)
	Create(ctx context.Context, cart *model.Cart) error
	UpdateItems(ctx context.Context, tx *gorm.DB, cartID string, items []model.CheckoutItem) error
	AttachPaymentIntent(ctx context.Context, cartID, intentID, clientSecret string) error
	Close(ctx context.Context, tx *gorm.DB, cartID string) error
}

type cartRepoImpl struct {
	db *gorm.DB
}

func NewCartRepository(db *gorm.DB) CartRepository {
	return &cartRepoImpl{
		db: db,
	}
}

func (r *cartRepoImpl) Get(ctx context.Context, cartID string) (*model.Cart, error) {
	var cart model.Cart
	err := r.db.WithContext(ctx).
		Where("id = ?", cartID).
		First(&cart).Error

	if err != nil {
		return nil, err
	}

	return &cart, nil
}

// GetForUpdate locks the cart row for the remainder of tx so two concurrent
// reconciliations cannot both observe an open cart.
func (r *cartRepoImpl) GetForUpdate(ctx context.Context, tx *gorm.DB, cartID string) (*model.Cart, error) {
	var cart model.Cart
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", cartID).
		First(&cart).Error

	if err != nil {
		return nil, err
	}

	return &cart, nil
}

func (r *cartRepoImpl) Create(ctx context.Context, cart *model.Cart) error {
	return r.db.WithContext(ctx).Create(cart).Error
}

func (r *cartRepoImpl) UpdateItems(ctx context.Context, tx *gorm.DB, cartID string, items []model.CheckoutItem) error {
	return tx.WithContext(ctx).
		Model(&model.Cart{}).
		Where("id = ?", cartID).
		Update("items", items).Error
}

func (r *cartRepoImpl) AttachPaymentIntent(ctx context.Context, cartID, intentID, clientSecret string) error {
	result := r.db.WithContext(ctx).
		Model(&model.Cart{}).
		Where("id = ? AND closed = ?", cartID, false).
		Updates(map[string]interface{}{
			"payment_intent_id": intentID,
			"client_secret":     clientSecret,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Close is terminal: the cart keeps its row for the audit trail but its item
// list is emptied and every later mutation is rejected.
func (r *cartRepoImpl) Close(ctx context.Context, tx *gorm.DB, cartID string) error {
	return tx.WithContext(ctx).
		Model(&model.Cart{}).
		Where("id = ?", cartID).
		Updates(map[string]interface{}{
			"closed": true,
			"items":  []model.CheckoutItem{},
		}).Error
}
