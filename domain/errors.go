package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidState      = errors.New("invalid state")
	ErrInvalidLine       = errors.New("invalid line")
	ErrInsufficientStock = errors.New("insufficient stock")
)
