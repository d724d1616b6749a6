// Package httpapp wires the echo HTTP server for the push API.
package httpapp

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/nesttask/nesttask-push/internal/config"
	"github.com/nesttask/nesttask-push/internal/httpapp/handlers"
)

// EchoServer is the HTTP server wrapper.
type EchoServer struct {
	h *handlers.Handlers
	e *echo.Echo
}

// NewEchoServer creates a new HTTP server.
func NewEchoServer(cfg config.Config, svc handlers.Deliverer, regs handlers.RegistrationWriter, logger *slog.Logger) (*EchoServer, error) {
	h := &handlers.Handlers{Cfg: cfg, Svc: svc, Registrations: regs}
	es := &EchoServer{h: h, e: echo.New()}
	es.e.HTTPErrorHandler = es.httpErrorHandler
	if logger != nil {
		es.e.Logger = logger
	}
	es.registerRoutes(cfg.PushAPIKey)
	return es, nil
}

func (es *EchoServer) registerRoutes(apiKey string) {
	es.e.Use(requestID())

	es.e.GET("/healthz", es.h.HandleHealthz)

	authed := es.e.Group("")
	if apiKey != "" {
		authed.Use(bearerAuth(apiKey))
	}
	authed.POST("/push", es.h.HandlePush)
	authed.POST("/registrations", es.h.HandleRegister)
}

// ServeHTTP lets the wrapper be mounted on a plain http.Server.
func (es *EchoServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	es.e.ServeHTTP(w, r)
}

// httpErrorHandler keeps error responses JSON shaped and never leaks internal
// details on 5xx. Clients get a request id reference they can quote back.
func (es *EchoServer) httpErrorHandler(c *echo.Context, err error) {
	if resp, _ := echo.UnwrapResponse(c.Response()); resp != nil && resp.Committed {
		return
	}

	code := http.StatusInternalServerError
	message := "internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if code < http.StatusInternalServerError {
			message = fmt.Sprintf("%v", he.Message)
			if message == "" {
				message = http.StatusText(code)
			}
		}
	}

	body := map[string]string{"error": message}
	if code >= http.StatusInternalServerError {
		body["code"] = handlers.InternalErrorCode
		if reqID, ok := c.Get(handlers.ContextKeyRequestID).(string); ok && reqID != "" {
			body["reference"] = reqID
		}
		es.e.Logger.Error("request failed",
			slog.String("method", c.Request().Method),
			slog.String("path", c.Request().URL.Path),
			slog.Any("error", err),
		)
	}
	if jsonErr := c.JSON(code, body); jsonErr != nil {
		es.e.Logger.Error("write error response", slog.Any("error", jsonErr))
	}
}

// requestID assigns each request an id, echoing back a caller supplied
// X-Request-ID when present.
func requestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			id := c.Request().Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = uuid.NewString()
			}
			c.Set(handlers.ContextKeyRequestID, id)
			c.Response().Header().Set(echo.HeaderXRequestID, id)
			return next(c)
		}
	}
}

// bearerAuth requires Authorization: Bearer <key> on every request in the
// group. Comparison is constant time.
func bearerAuth(apiKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			const prefix = "Bearer "
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(auth, prefix) {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}
			got := strings.TrimPrefix(auth, prefix)
			if subtle.ConstantTimeCompare([]byte(got), []byte(apiKey)) != 1 {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid api key")
			}
			return next(c)
		}
	}
}
