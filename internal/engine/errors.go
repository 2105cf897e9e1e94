package engine

import (
	"errors"
	"fmt"
)

// ErrOrderNotFound is returned when no event in the history names an order.
var ErrOrderNotFound = errors.New("order not found")

// NotFoundError names the order that was looked up.
type NotFoundError struct {
	OrderID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("order %q not found", e.OrderID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrOrderNotFound
}

// IsNotFound reports whether err is an unknown-order error.
// Uses errors.Is to handle wrapped errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound)
}
