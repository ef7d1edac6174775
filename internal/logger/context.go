package logger

import (
	"context"
	"maps"

	"go.uber.org/zap"
)

type (
	// contextKey is the private key type for storing the logger in a context.
	contextKey struct{}
	// keysKey stores the field keys already attached by WithKV.
	keysKey struct{}
)

// ToContext returns a copy of ctx carrying the provided logger.
func ToContext(ctx context.Context, l *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext returns the logger stored in ctx, or the global logger.
func FromContext(ctx context.Context) *zap.SugaredLogger {
	if ctx == nil {
		return global
	}

	if l, ok := ctx.Value(contextKey{}).(*zap.SugaredLogger); ok && l != nil {
		return l
	}

	return global
}

// WithName returns a context whose logger is named after the calling component.
// Nested calls produce dotted names, e.g. "package.stage".
func WithName(ctx context.Context, name string) context.Context {
	return ToContext(ctx, FromContext(ctx).Named(name))
}

// WithKV returns a context whose logger attaches the key-value pairs to every entry.
//
// A key that an outer WithKV already attached keeps its outer value and is not
// repeated, so a component can tag the template it works on whether or not its
// caller did.
func WithKV(ctx context.Context, kvs ...any) context.Context {
	attached, _ := ctx.Value(keysKey{}).(map[string]struct{})
	keys := maps.Clone(attached)

	if keys == nil {
		keys = make(map[string]struct{}, len(kvs)/2)
	}

	fresh := make([]any, 0, len(kvs))

	for i := 0; i+1 < len(kvs); i += 2 {
		if key, ok := kvs[i].(string); ok {
			if _, seen := keys[key]; seen {
				continue
			}

			keys[key] = struct{}{}
		}

		fresh = append(fresh, kvs[i], kvs[i+1])
	}

	// zap reports a dangling key itself.
	if len(kvs)%2 == 1 {
		fresh = append(fresh, kvs[len(kvs)-1])
	}

	if len(fresh) == 0 {
		return ctx
	}

	ctx = context.WithValue(ctx, keysKey{}, keys)

	return ToContext(ctx, FromContext(ctx).With(fresh...))
}
