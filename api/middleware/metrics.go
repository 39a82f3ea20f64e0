package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/irsalhamdi/craft-market/api/web"
	"github.com/irsalhamdi/craft-market/metrics"
	"github.com/zenazn/goji/web/mutil"
)

// Metrics records request count and latency labelled by the route template,
// so /orders/{id} is one series rather than one per order.
func Metrics() web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			start := time.Now()

			path := r.URL.Path
			if route := mux.CurrentRoute(r); route != nil {
				if tpl, err := route.GetPathTemplate(); err == nil {
					path = tpl
				}
			}

			lw := mutil.WrapWriter(w)
			err := handler(ctx, lw, r)

			status := lw.Status()
			if status == 0 {
				status = http.StatusOK
			}
			metrics.ObserveRequest(r.Method, path, strconv.Itoa(status), time.Since(start))

			return err
		}
		return h
	}
	return m
}
