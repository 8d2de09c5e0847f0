package ctxutil

import "context"

type operatorKey struct{}

// Operator is the authenticated caller of an ops endpoint.
type Operator struct {
	Subject string
	Role    string
}

func WithOperator(ctx context.Context, op *Operator) context.Context {
	return context.WithValue(Default(ctx), operatorKey{}, op)
}

func GetOperator(ctx context.Context) *Operator {
	if ctx == nil {
		return nil
	}
	op, _ := ctx.Value(operatorKey{}).(*Operator)
	return op
}
