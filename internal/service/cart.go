package service

import (
	"context"
	"errors"
	"fmt"

	"storefront-checkout/internal/dto"
	"storefront-checkout/internal/model"
	"storefront-checkout/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CartService interface {
	// Get returns the cart's line items joined with current product rows.
	// An empty cartID is an empty cart, not an error.
	Get(ctx context.Context, cartID string) (*dto.CartResponse, error)
	// AddItem appends to the cart, minting a new cart when cartID is empty.
	// The returned cart id is what the handler writes into the cookie.
	AddItem(ctx context.Context, cartID string, productID string, quantity int32) (*dto.CartResponse, error)
	RemoveItem(ctx context.Context, cartID string, productID string) (*dto.CartResponse, error)
}

type cartServiceImpl struct {
	db          *gorm.DB
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
}

func NewCartService(db *gorm.DB, cartRepo repository.CartRepository, productRepo repository.ProductRepository) CartService {
	return &cartServiceImpl{
		db:          db,
		cartRepo:    cartRepo,
		productRepo: productRepo,
	}
}

func (s *cartServiceImpl) Get(ctx context.Context, cartID string) (*dto.CartResponse, error) {
	if cartID == "" {
		return &dto.CartResponse{Items: []dto.CartLineItem{}}, nil
	}

	cart, err := s.cartRepo.Get(ctx, cartID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &dto.CartResponse{Items: []dto.CartLineItem{}}, nil
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}

	lineItems, err := s.lineItems(ctx, cart.Items)
	if err != nil {
		return nil, err
	}

	return &dto.CartResponse{
		ID:     cart.ID,
		Closed: cart.Closed,
		Items:  lineItems,
	}, nil
}

func (s *cartServiceImpl) AddItem(ctx context.Context, cartID string, productID string, quantity int32) (*dto.CartResponse, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	product, err := s.productRepo.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("product %s: %w", productID, ErrInvalidItems)
		}
		return nil, fmt.Errorf("find product: %w", err)
	}

	if cartID == "" {
		cart := &model.Cart{
			ID: uuid.NewString(),
			Items: []model.CheckoutItem{{
				ProductID: product.ID,
				Price:     product.Price,
				Quantity:  quantity,
			}},
		}
		if err := s.cartRepo.Create(ctx, cart); err != nil {
			return nil, fmt.Errorf("create cart: %w", err)
		}
		return s.Get(ctx, cart.ID)
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

		items := cart.Items
		found := false
		for i := range items {
			if items[i].ProductID == productID {
				items[i].Quantity += quantity
				items[i].Price = product.Price
				found = true
				break
			}
		}
		if !found {
			items = append(items, model.CheckoutItem{
				ProductID: product.ID,
				Price:     product.Price,
				Quantity:  quantity,
			})
		}

		return s.cartRepo.UpdateItems(ctx, tx, cartID, items)
	})
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, cartID)
}

func (s *cartServiceImpl) RemoveItem(ctx context.Context, cartID string, productID string) (*dto.CartResponse, error) {
	if cartID == "" {
		return nil, ErrCartNotFound
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
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

		items := make([]model.CheckoutItem, 0, len(cart.Items))
		for _, item := range cart.Items {
			if item.ProductID != productID {
				items = append(items, item)
			}
		}

		return s.cartRepo.UpdateItems(ctx, tx, cartID, items)
	})
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, cartID)
}

// lineItems joins checkout items against their current product rows. Items
// whose product no longer exists are dropped from the view.
func (s *cartServiceImpl) lineItems(ctx context.Context, items []model.CheckoutItem) ([]dto.CartLineItem, error) {
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
		return nil, fmt.Errorf("find cart products: %w", err)
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
