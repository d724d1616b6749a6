package httpapp

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v5"

	"github.com/nesttask/nesttask-push/internal/httpapp/handlers"
)

func newTestEcho() *echo.Echo {
	e := echo.New()
	e.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return e
}

func TestHTTPErrorHandlerInternalErrorIsGeneric(t *testing.T) {
	e := newTestEcho()

	req := httptest.NewRequest(http.MethodPost, "http://example.com/push", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(handlers.ContextKeyRequestID, "req-123")

	es := &EchoServer{h: &handlers.Handlers{}, e: e}
	es.httpErrorHandler(c, errors.New("very sensitive error"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d want %d", rec.Code, http.StatusInternalServerError)
	}

	body := rec.Body.String()
	if strings.Contains(body, "very sensitive") {
		t.Fatalf("response leaked error details: %q", body)
	}
	if !strings.Contains(body, "internal server error") {
		t.Fatalf("response missing generic message: %q", body)
	}
	if !strings.Contains(body, "req-123") {
		t.Fatalf("response missing request reference: %q", body)
	}
	if !strings.Contains(body, handlers.InternalErrorCode) {
		t.Fatalf("response missing error code: %q", body)
	}
}

func TestHTTPErrorHandlerClientErrorKeepsMessage(t *testing.T) {
	e := newTestEcho()

	req := httptest.NewRequest(http.MethodPost, "http://example.com/push", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	es := &EchoServer{h: &handlers.Handlers{}, e: e}
	es.httpErrorHandler(c, echo.NewHTTPError(http.StatusUnauthorized, "invalid api key"))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d want %d", rec.Code, http.StatusUnauthorized)
	}
	if !strings.Contains(rec.Body.String(), "invalid api key") {
		t.Fatalf("response missing client error message: %q", rec.Body.String())
	}
}

func TestBearerAuth(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "valid key", header: "Bearer sekrit", want: http.StatusOK},
		{name: "wrong key", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "missing header", header: "", want: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic sekrit", want: http.StatusUnauthorized},
	}

	e := newTestEcho()
	handler := bearerAuth("sekrit")(func(c *echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "http://example.com/push", nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			err := handler(c)
			code := rec.Code
			var he *echo.HTTPError
			if errors.As(err, &he) {
				code = he.Code
			}
			if code != tt.want {
				t.Fatalf("status=%d want %d", code, tt.want)
			}
		})
	}
}

func TestRequestIDEchoesCallerID(t *testing.T) {
	e := newTestEcho()
	handler := requestID()(func(c *echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "http://example.com/healthz", nil)
	req.Header.Set(echo.HeaderXRequestID, "caller-7")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := handler(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if got := rec.Header().Get(echo.HeaderXRequestID); got != "caller-7" {
		t.Fatalf("request id=%q want caller-7", got)
	}
	if got, _ := c.Get(handlers.ContextKeyRequestID).(string); got != "caller-7" {
		t.Fatalf("context request id=%q want caller-7", got)
	}
}

func TestRequestIDGeneratesWhenAbsent(t *testing.T) {
	e := newTestEcho()
	handler := requestID()(func(c *echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "http://example.com/healthz", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := handler(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Header().Get(echo.HeaderXRequestID) == "" {
		t.Fatal("expected a generated request id")
	}
}
