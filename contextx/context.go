// Package contextx 在 context.Context 上携带请求级字段。
package contextx

import "context"

// key 以值类型区分字段，包外无法构造，不会与其他包的键冲突.
type key[T any] struct{ name string }

var (
	requestIDKey = key[string]{"request_id"}
	clientIPKey  = key[string]{"client_ip"}
)

func with[T any](ctx context.Context, k key[T], v T) context.Context {
	return context.WithValue(ctx, k, v)
}

func get[T any](ctx context.Context, k key[T]) T {
	v, _ := ctx.Value(k).(T)
	return v
}

func WithRequestID(ctx context.Context, id string) context.Context { return with(ctx, requestIDKey, id) }

// RequestID 没有时返回空串.
func RequestID(ctx context.Context) string { return get(ctx, requestIDKey) }

func WithClientIP(ctx context.Context, ip string) context.Context { return with(ctx, clientIPKey, ip) }

func ClientIP(ctx context.Context) string { return get(ctx, clientIPKey) }
