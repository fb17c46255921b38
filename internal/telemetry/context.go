package telemetry

import "context"

type telemeterCtxKey struct{}

// ContextWithTelemeter attaches the telemeter to the context.
func ContextWithTelemeter(ctx context.Context, tlm *Telemeter) context.Context {
	return context.WithValue(ctx, telemeterCtxKey{}, tlm)
}

// TelemeterFromContext returns the telemeter from the context, or a disabled
// one so callers never need a nil check.
func TelemeterFromContext(ctx context.Context) *Telemeter {
	if tlm, ok := ctx.Value(telemeterCtxKey{}).(*Telemeter); ok {
		return tlm
	}

	return new(Telemeter)
}
