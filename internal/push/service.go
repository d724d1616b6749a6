// Package push fans one logical notification out to every device registration
// in an audience, classifies per-device outcomes, and retires registrations
// the gateway rejects as permanently invalid.
package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/nesttask/nesttask-push/internal/fcm"
	"github.com/nesttask/nesttask-push/internal/metrics"
	"github.com/nesttask/nesttask-push/internal/store"
)

// Notification is the caller-supplied payload for one delivery batch.
type Notification struct {
	TaskID    string
	Title     string
	Body      string
	SectionID string
	Data      map[string]string
}

// BatchResult is the only externally observable summary of a batch.
// Sent+Failed always equals Total; Invalidated never exceeds Failed.
type BatchResult struct {
	Sent        int `json:"sent"`
	Failed      int `json:"failed"`
	Invalidated int `json:"invalidTokens"`
	Total       int `json:"total"`
}

// Outcome is one registration's dispatch result, held only long enough to be
// folded into the batch result.
type Outcome struct {
	RegistrationID string
	Success        bool
	Invalid        bool
	Err            error
}

// Gateway is the push gateway surface the service needs: one token per batch,
// one send per registration.
type Gateway interface {
	Token(ctx context.Context) (*oauth2.Token, error)
	Send(ctx context.Context, accessToken string, msg fcm.Message) error
}

// RegistrationStore is the slice of the relational store the service reads
// and, for invalidated registrations, writes.
type RegistrationStore interface {
	ListActiveRegistrations(ctx context.Context) ([]store.Registration, error)
	ListActiveRegistrationsByOwners(ctx context.Context, ownerIDs []string) ([]store.Registration, error)
	ListSectionMemberIDs(ctx context.Context, sectionID string) ([]string, error)
	DeactivateRegistration(ctx context.Context, id string) error
}

type Service struct {
	gateway Gateway
	store   RegistrationStore
	workers int
	logger  *slog.Logger
}

func NewService(gateway Gateway, regStore RegistrationStore, workers int, logger *slog.Logger) *Service {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		gateway: gateway,
		store:   regStore,
		workers: workers,
		logger:  logger,
	}
}

// Deliver runs one batch: resolve the audience, obtain a single bearer token,
// dispatch concurrently, retire invalid registrations, and aggregate.
// An error return means nothing was dispatched.
func (s *Service) Deliver(ctx context.Context, n Notification) (BatchResult, error) {
	start := time.Now()

	audience, err := s.resolveAudience(ctx, n.SectionID)
	if err != nil {
		metrics.PushBatchesTotal.WithLabelValues("audience_error").Inc()
		return BatchResult{}, fmt.Errorf("resolve audience: %w", err)
	}
	metrics.PushAudienceSize.Observe(float64(len(audience)))

	if len(audience) == 0 {
		s.logger.Info("push batch resolved empty audience", "task_id", n.TaskID, "section_id", n.SectionID)
		metrics.PushBatchesTotal.WithLabelValues("ok").Inc()
		return BatchResult{}, nil
	}

	// One token exchange per batch; every send shares it.
	token, err := s.gateway.Token(ctx)
	if err != nil {
		metrics.PushBatchesTotal.WithLabelValues("auth_error").Inc()
		return BatchResult{}, fmt.Errorf("obtain access token: %w", err)
	}

	data := s.messageData(n)
	outcomes := dispatch(ctx, audience, s.workers, func(ctx context.Context, reg store.Registration) Outcome {
		err := s.gateway.Send(ctx, token.AccessToken, fcm.Message{
			Token: reg.Token,
			Title: n.Title,
			Body:  n.Body,
			Data:  data,
		})
		return classify(reg.ID, err)
	})

	s.reconcile(ctx, outcomes)

	result := aggregate(outcomes)
	s.logger.Info("push batch complete",
		"task_id", n.TaskID,
		"sent", result.Sent,
		"failed", result.Failed,
		"invalidated", result.Invalidated,
		"total", result.Total,
		"elapsed", time.Since(start))

	metrics.PushBatchesTotal.WithLabelValues("ok").Inc()
	metrics.PushBatchDuration.Observe(time.Since(start).Seconds())
	metrics.PushSentTotal.Add(float64(result.Sent))
	metrics.PushFailedTotal.Add(float64(result.Failed))
	metrics.PushInvalidTokensTotal.Add(float64(result.Invalidated))
	return result, nil
}

// resolveAudience computes the deduplicated registration set. Section scoping
// is best effort: a failed or empty member lookup degrades to the unscoped
// audience instead of failing the batch.
func (s *Service) resolveAudience(ctx context.Context, sectionID string) ([]store.Registration, error) {
	if sectionID != "" {
		members, err := s.store.ListSectionMemberIDs(ctx, sectionID)
		switch {
		case err != nil:
			s.logger.Warn("section lookup failed, falling back to unscoped audience", "section_id", sectionID, "err", err)
		case len(members) == 0:
			s.logger.Warn("section resolved no members, falling back to unscoped audience", "section_id", sectionID)
		default:
			regs, err := s.store.ListActiveRegistrationsByOwners(ctx, members)
			if err != nil {
				return nil, err
			}
			return dedupe(regs), nil
		}
	}

	regs, err := s.store.ListActiveRegistrations(ctx)
	if err != nil {
		return nil, err
	}
	return dedupe(regs), nil
}

func (s *Service) messageData(n Notification) map[string]string {
	data := map[string]string{
		"task_id":    n.TaskID,
		"channel_id": "tasks",
	}
	for k, v := range n.Data {
		data[k] = v
	}
	return data
}

// reconcile retires registrations the gateway no longer recognizes. A failed
// update is logged and left for a later batch; stale rows self-heal.
func (s *Service) reconcile(ctx context.Context, outcomes []Outcome) {
	for _, outcome := range outcomes {
		if !outcome.Invalid {
			continue
		}
		if err := s.store.DeactivateRegistration(ctx, outcome.RegistrationID); err != nil {
			s.logger.Error("failed to deactivate invalid registration",
				"registration_id", outcome.RegistrationID, "err", err)
		} else {
			s.logger.Info("deactivated invalid registration", "registration_id", outcome.RegistrationID)
		}
	}
}

func classify(registrationID string, err error) Outcome {
	if err == nil {
		return Outcome{RegistrationID: registrationID, Success: true}
	}
	var sendErr *fcm.SendError
	if errors.As(err, &sendErr) && sendErr.TokenInvalid() {
		return Outcome{RegistrationID: registrationID, Invalid: true, Err: err}
	}
	return Outcome{RegistrationID: registrationID, Err: err}
}

func aggregate(outcomes []Outcome) BatchResult {
	result := BatchResult{Total: len(outcomes)}
	for _, outcome := range outcomes {
		if outcome.Success {
			result.Sent++
			continue
		}
		result.Failed++
		if outcome.Invalid {
			result.Invalidated++
		}
	}
	return result
}

func dedupe(regs []store.Registration) []store.Registration {
	seen := make(map[string]struct{}, len(regs))
	out := regs[:0]
	for _, reg := range regs {
		if _, ok := seen[reg.ID]; ok {
			continue
		}
		seen[reg.ID] = struct{}{}
		out = append(out, reg)
	}
	return out
}
