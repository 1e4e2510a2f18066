package service

import "errors"

// Failure kinds callers pattern-match on with errors.Is. Gateway and
// reconciliation calls return these instead of swallowing the cause.
var (
	ErrCartNotFound          = errors.New("cart not found")
	ErrCartClosed            = errors.New("cart is closed")
	ErrCartTooLarge          = errors.New("cart item list exceeds processor metadata limit")
	ErrInvalidItems          = errors.New("malformed line item payload")
	ErrInvalidQuantity       = errors.New("item quantity must be positive")
	ErrInvalidPrice          = errors.New("item price is not a valid monetary amount")
	ErrStoreNotFound         = errors.New("store not found")
	ErrStoreNotConnected     = errors.New("store not connected to payment processor")
	ErrStoreAlreadyConnected = errors.New("store already connected to payment processor")
	ErrProcessorUnavailable  = errors.New("payment processor request failed")
	ErrInsufficientInventory = errors.New("insufficient product inventory")
	ErrOrderAlreadyRecorded  = errors.New("order already recorded for payment intent")
	ErrIntentMismatch        = errors.New("payment intent does not match cart")
	ErrPlanNotRecognized     = errors.New("subscribed price id not present in plan catalog")
)
