package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/irsalhamdi/craft-market/api/web"
	"github.com/irsalhamdi/craft-market/api/weberr"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func serve(t *testing.T, log logrus.FieldLogger, h web.Handler) *httptest.ResponseRecorder {
	t.Helper()

	mw := []web.Middleware{RequestID(), Logger(log, nil), Errors(log), Panics()}
	handler := web.WrapMiddleware(mw, h)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/orders/1", nil)
	if err := handler(r.Context(), w, r); err != nil {
		t.Fatalf("errors middleware should swallow the error, got %v", err)
	}
	return w
}

func TestErrorsRendersDecoratedError(t *testing.T) {
	log, hook := test.NewNullLogger()

	w := serve(t, log, func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return weberr.NotFound(errors.New("order[1] missing"))
	})

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}

	var body weberr.ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Error != "the resource could not be found" {
		t.Fatalf("body = %q", body.Error)
	}

	if e := hook.LastEntry(); e == nil || e.Level != logrus.InfoLevel {
		t.Fatalf("expected the request to complete with an info log, got %v", e)
	}
}

func TestErrorsHidesUndecoratedError(t *testing.T) {
	log, hook := test.NewNullLogger()

	w := serve(t, log, func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return errors.New("pq: connection refused")
	})

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	b, _ := io.ReadAll(w.Body)
	if string(b) != `{"error":"Internal Server Error"}` {
		t.Fatalf("body = %s", b)
	}

	var logged bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Data["req_id"] != "" {
			logged = true
		}
	}
	if !logged {
		t.Fatal("expected the error to be logged with a request id")
	}
}

func TestPanicsRecovered(t *testing.T) {
	log, _ := test.NewNullLogger()

	w := serve(t, log, func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		panic("nil map")
	})

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}

func TestRequestIDHonoursHeader(t *testing.T) {
	var got string
	h := RequestID()(func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		got = ContextRequestID(ctx)
		return nil
	})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(RequestIDHeader, "abc")
	if err := h(r.Context(), httptest.NewRecorder(), r); err != nil {
		t.Fatal(err)
	}
	if got != "abc" {
		t.Fatalf("request id = %q", got)
	}
}

func TestRequestIDReplacesMalformedHeader(t *testing.T) {
	var got string
	h := RequestID()(func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		got = ContextRequestID(ctx)
		return nil
	})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(RequestIDHeader, "not a valid/id")
	w := httptest.NewRecorder()
	if err := h(r.Context(), w, r); err != nil {
		t.Fatal(err)
	}
	if got == "" || got == r.Header.Get(RequestIDHeader) {
		t.Fatalf("request id = %q", got)
	}
	if w.Header().Get(RequestIDHeader) != got {
		t.Fatalf("response header = %q, want %q", w.Header().Get(RequestIDHeader), got)
	}
}

func TestLoggerTagsRouteAndUser(t *testing.T) {
	log, hook := test.NewNullLogger()

	caller := func(ctx context.Context) string { return "u1" }
	h := web.WrapMiddleware([]web.Middleware{RequestID(), Logger(log, caller)},
		func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			w.WriteHeader(http.StatusNoContent)
			return nil
		})

	router := mux.NewRouter()
	router.Handle("/orders/{id}", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h(r.Context(), w, r); err != nil {
			t.Error(err)
		}
	}))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orders/42", nil))

	e := hook.LastEntry()
	if e == nil {
		t.Fatal("nothing logged")
	}
	if e.Data["route"] != "/orders/{id}" || e.Data["path"] != "/orders/42" {
		t.Fatalf("route = %v, path = %v", e.Data["route"], e.Data["path"])
	}
	if e.Data["user_id"] != "u1" || e.Data["statuscode"] != http.StatusNoContent {
		t.Fatalf("fields = %v", e.Data)
	}
	if id, _ := e.Data["req_id"].(string); id == "" {
		t.Fatal("request id missing")
	}
}
