package rate

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/irsalhamdi/craft-market/api/web"
	"github.com/irsalhamdi/craft-market/api/weberr"
)

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(ctx context.Context, r *http.Request) string

func RemoteAddr(_ context.Context, r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func Middleware(l *Limiter, key KeyFunc) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			if !l.Check(key(ctx, r)) {
				w.Header().Set("Retry-After", "1")
				err := errors.New("too many requests, slow down")
				return weberr.NewError(err, err.Error(), http.StatusTooManyRequests)
			}
			return handler(ctx, w, r)
		}
		return h
	}
	return m
}
