package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/irsalhamdi/craft-market/api/web"
	"github.com/sirupsen/logrus"
	"github.com/zenazn/goji/web/mutil"
)

// Logger writes one line per request keyed by the route template, so
// /orders/{id} aggregates across ids. caller, when set, names the user
// logged in to the request once the handler has run.
func Logger(log logrus.FieldLogger, caller func(context.Context) string) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			fields := logrus.Fields{
				"method":     r.Method,
				"route":      routeTemplate(r),
				"path":       r.URL.Path,
				"remoteaddr": r.RemoteAddr,
			}
			if rid := ContextRequestID(ctx); rid != "" {
				fields["req_id"] = rid
			}

			start := time.Now().UTC()
			lw := mutil.WrapWriter(w)
			err := handler(ctx, lw, r)

			fields["statuscode"] = lw.Status()
			fields["bytes"] = lw.BytesWritten()
			fields["since"] = time.Since(start).String()
			if caller != nil {
				if id := caller(ctx); id != "" {
					fields["user_id"] = id
				}
			}

			log.WithFields(fields).Info("completed")
			return err
		}
		return h
	}
	return m
}

func routeTemplate(r *http.Request) string {
	if rt := mux.CurrentRoute(r); rt != nil {
		if tpl, err := rt.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}
