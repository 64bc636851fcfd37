// Package ownership defines the port to the orders module's ownership check.
package ownership

import "context"

// Oracle answers whether an identity owns an order.
type Oracle interface {
	OwnsOrder(ctx context.Context, identityID, orderID string) (bool, error)
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func(ctx context.Context, identityID, orderID string) (bool, error)

// OwnsOrder calls f.
func (f OracleFunc) OwnsOrder(ctx context.Context, identityID, orderID string) (bool, error) {
	return f(ctx, identityID, orderID)
}
