package fetch

import "context"

type noticeKey struct{}

// WithNotices returns a context whose fetch calls hand vendor rejections they recovered
// from to fn. Such calls return no data and a nil error.
func WithNotices(ctx context.Context, fn func(error)) context.Context {
	return context.WithValue(ctx, noticeKey{}, fn)
}

func notify(ctx context.Context, err error) {
	if fn, ok := ctx.Value(noticeKey{}).(func(error)); ok && fn != nil {
		fn(err)
	}
}
