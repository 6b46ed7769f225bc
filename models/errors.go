package models

import "errors"

// Falhas esperadas de uma compra. Cada uma corresponde a uma única mensagem para o cliente.
var (
	ErrAssetNotFound        = errors.New("asset not found")
	ErrInvalidBuyer         = errors.New("please enter your name")
	ErrInvalidQuantity      = errors.New("quantity must be a positive whole number")
	ErrInsufficientSupply   = errors.New("not enough supply available")
	ErrBusy                 = errors.New("asset is busy, please try again")
	ErrStorageFailure       = errors.New("storage unavailable, please try again later")
	ErrIdempotencyKeyReused = errors.New("idempotency key already used for a different purchase")
)
