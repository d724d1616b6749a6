// Package handlers contains the JSON API handler logic.
package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v5"

	"github.com/nesttask/nesttask-push/internal/config"
	"github.com/nesttask/nesttask-push/internal/push"
	"github.com/nesttask/nesttask-push/internal/store"
)

const (
	// ContextKeyRequestID stores the request id (X-Request-ID) for logging and client error references.
	ContextKeyRequestID = "request_id"

	// InternalErrorCode is a stable error code safe to return to clients.
	InternalErrorCode = "INTERNAL_ERROR"
)

// Deliverer runs one push batch.
type Deliverer interface {
	Deliver(ctx context.Context, n push.Notification) (push.BatchResult, error)
}

// RegistrationWriter records device registrations.
type RegistrationWriter interface {
	UpsertRegistration(ctx context.Context, userID, token string) (store.Registration, error)
}

// Handlers groups all HTTP handlers and shared dependencies.
type Handlers struct {
	Cfg           config.Config
	Svc           Deliverer
	Registrations RegistrationWriter
}

// HandleHealthz returns a simple health check response.
func (h *Handlers) HandleHealthz(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok", "service": "nesttask-push"})
}

type pushRequest struct {
	TaskID    string            `json:"taskId"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	SectionID string            `json:"sectionId"`
	Data      map[string]string `json:"data"`
}

// HandlePush runs one delivery batch. Required fields are checked before any
// credential or audience work; a pre-dispatch failure is the only error shape
// callers ever see.
func (h *Handlers) HandlePush(c *echo.Context) error {
	var req pushRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	var missing []string
	for _, field := range []struct{ name, value string }{
		{"taskId", req.TaskID},
		{"title", req.Title},
		{"body", req.Body},
	} {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "missing required fields: " + strings.Join(missing, ", "),
		})
	}

	result, err := h.Svc.Deliver(c.Request().Context(), push.Notification{
		TaskID:    req.TaskID,
		Title:     req.Title,
		Body:      req.Body,
		SectionID: req.SectionID,
		Data:      req.Data,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, result)
}

type registrationRequest struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

// HandleRegister upserts a device registration for a user. A token that was
// retired earlier comes back active.
func (h *Handlers) HandleRegister(c *echo.Context) error {
	var req registrationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.Token) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "userId and token are required"})
	}

	reg, err := h.Registrations.UpsertRegistration(c.Request().Context(), req.UserID, req.Token)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]string{"id": reg.ID})
}
