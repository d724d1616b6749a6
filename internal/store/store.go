// Package store is the pgx-backed view of the NestTask relational store that
// the push service needs: active device registrations, section membership,
// and tasks approaching their deadline.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Registration is one device eligible to receive push messages.
type Registration struct {
	ID     string
	Token  string
	UserID string
	Active bool
}

// Task is the slice of a task row the reminder worker needs.
type Task struct {
	ID        string
	Title     string
	SectionID *string
	DueAt     time.Time
}

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// ListActiveRegistrations returns every registration with active = true.
func (s *Store) ListActiveRegistrations(ctx context.Context) ([]Registration, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, token, user_id, active
		FROM device_registrations
		WHERE active
		ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list active registrations: %w", err)
	}
	defer rows.Close()

	return scanRegistrations(rows)
}

// ListActiveRegistrationsByOwners returns active registrations owned by any of
// the given users.
func (s *Store) ListActiveRegistrationsByOwners(ctx context.Context, ownerIDs []string) ([]Registration, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, token, user_id, active
		FROM device_registrations
		WHERE active AND user_id = ANY($1)
		ORDER BY created_at`, ownerIDs)
	if err != nil {
		return nil, fmt.Errorf("list registrations by owners: %w", err)
	}
	defer rows.Close()

	return scanRegistrations(rows)
}

// ListSectionMemberIDs resolves the user ids belonging to a section.
func (s *Store) ListSectionMemberIDs(ctx context.Context, sectionID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM users WHERE section_id = $1`, sectionID)
	if err != nil {
		return nil, fmt.Errorf("list section members: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeactivateRegistration flips active to false. Running it twice for the same
// id is harmless.
func (s *Store) DeactivateRegistration(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE device_registrations
		SET active = false, updated_at = now()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate registration %s: %w", id, err)
	}
	return nil
}

// UpsertRegistration records a device token for a user. A token that was
// previously retired comes back active, reassigned to the new owner.
func (s *Store) UpsertRegistration(ctx context.Context, userID, token string) (Registration, error) {
	reg := Registration{ID: uuid.New().String(), Token: token, UserID: userID, Active: true}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO device_registrations (id, token, user_id, active)
		VALUES ($1, $2, $3, true)
		ON CONFLICT (token) DO UPDATE
		SET user_id = EXCLUDED.user_id, active = true, updated_at = now()
		RETURNING id`, reg.ID, token, userID).Scan(&reg.ID)
	if err != nil {
		return Registration{}, fmt.Errorf("upsert registration: %w", err)
	}
	return reg, nil
}

// ListDueTasks returns tasks whose deadline falls inside the reminder window
// and that have not been reminded yet.
func (s *Store) ListDueTasks(ctx context.Context, now time.Time, window time.Duration) ([]Task, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, section_id, due_at
		FROM tasks
		WHERE reminded_at IS NULL AND due_at > $1 AND due_at <= $2
		ORDER BY due_at`, now, now.Add(window))
	if err != nil {
		return nil, fmt.Errorf("list due tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var task Task
		if err := rows.Scan(&task.ID, &task.Title, &task.SectionID, &task.DueAt); err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// MarkTaskReminded stamps a task so it is reminded at most once.
func (s *Store) MarkTaskReminded(ctx context.Context, taskID string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE tasks SET reminded_at = $2 WHERE id = $1 AND reminded_at IS NULL`, taskID, at)
	if err != nil {
		return fmt.Errorf("mark task reminded %s: %w", taskID, err)
	}
	return nil
}

type registrationRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanRegistrations(rows registrationRows) ([]Registration, error) {
	var regs []Registration
	for rows.Next() {
		var reg Registration
		if err := rows.Scan(&reg.ID, &reg.Token, &reg.UserID, &reg.Active); err != nil {
			return nil, err
		}
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}
