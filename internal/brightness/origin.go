package brightness

import "context"

// Origin identifies the request that caused a change.
type Origin struct {
	// Caller is the bus unique name of the sender, or "mqtt".
	Caller string

	// CallID correlates log lines, audit rows and replies of one call.
	CallID string
}

type originKey struct{}

// WithOrigin returns a context carrying o.
func WithOrigin(ctx context.Context, o Origin) context.Context {
	return context.WithValue(ctx, originKey{}, o)
}

// OriginFrom returns the Origin stored in ctx, or the zero Origin.
func OriginFrom(ctx context.Context) Origin {
	o, _ := ctx.Value(originKey{}).(Origin)
	return o
}
