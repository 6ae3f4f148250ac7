package api

import (
	"context"
)

type operatorKey struct{}

// WithOperator stores the authenticated caller of the management API.
func WithOperator(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, operatorKey{}, username)
}

// Operator returns the caller stored by WithOperator. It is empty when the API runs without auth.
func Operator(ctx context.Context) string {
	operator, _ := ctx.Value(operatorKey{}).(string)
	return operator
}
