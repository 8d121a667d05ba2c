package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/switchboard/pkg/domain"
)

// Hydrate loads the summary, goals, milestones, habits and most recent
// progress logs of userID. A user without records yields an empty Snapshot.
func (s *Store) Hydrate(ctx context.Context, userID string) (domain.Snapshot, error) {
	var snap domain.Snapshot

	err := s.db.QueryRowContext(ctx, `SELECT summary FROM summaries WHERE user_id = ?`, userID).Scan(&snap.Summary)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return snap, fmt.Errorf("hydrate summary: %w", err)
	}

	if snap.Goals, err = s.goals(ctx, userID); err != nil {
		return snap, err
	}
	if snap.Milestones, err = s.milestones(ctx, userID); err != nil {
		return snap, err
	}
	if snap.Habits, err = s.habits(ctx, userID); err != nil {
		return snap, err
	}
	if snap.Progress, err = s.progress(ctx, userID); err != nil {
		return snap, err
	}
	return snap, nil
}

func (s *Store) goals(ctx context.Context, userID string) ([]domain.Goal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT goal_id, title, description, status, target_date
		FROM goals WHERE user_id = ? ORDER BY goal_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("hydrate goals: %w", err)
	}
	defer rows.Close()

	var out []domain.Goal
	for rows.Next() {
		var g domain.Goal
		var target sql.NullString
		if err := rows.Scan(&g.ID, &g.Title, &g.Description, &g.Status, &target); err != nil {
			return nil, fmt.Errorf("hydrate goals: %w", err)
		}
		if target.Valid {
			if t, err := time.Parse(time.RFC3339, target.String); err == nil {
				g.TargetDate = &t
			}
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *Store) milestones(ctx context.Context, userID string) ([]domain.Milestone, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.milestone_id, m.goal_id, m.description, m.status
		FROM milestones m JOIN goals g ON g.goal_id = m.goal_id
		WHERE g.user_id = ? ORDER BY m.milestone_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("hydrate milestones: %w", err)
	}
	defer rows.Close()

	var out []domain.Milestone
	for rows.Next() {
		var m domain.Milestone
		if err := rows.Scan(&m.ID, &m.GoalID, &m.Description, &m.Status); err != nil {
			return nil, fmt.Errorf("hydrate milestones: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) habits(ctx context.Context, userID string) ([]domain.Habit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT habit_id, description, frequency_type, frequency_value
		FROM habits WHERE user_id = ? ORDER BY habit_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("hydrate habits: %w", err)
	}
	defer rows.Close()

	var out []domain.Habit
	for rows.Next() {
		var h domain.Habit
		if err := rows.Scan(&h.ID, &h.Description, &h.FrequencyType, &h.FrequencyValue); err != nil {
			return nil, fmt.Errorf("hydrate habits: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *Store) progress(ctx context.Context, userID string) ([]domain.ProgressLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT log_id, log_type, content, created_at
		FROM progress_logs WHERE user_id = ?
		ORDER BY created_at DESC, log_id DESC LIMIT ?`, userID, s.progressLimit)
	if err != nil {
		return nil, fmt.Errorf("hydrate progress: %w", err)
	}
	defer rows.Close()

	var out []domain.ProgressLog
	for rows.Next() {
		var p domain.ProgressLog
		var created string
		if err := rows.Scan(&p.ID, &p.LogType, &p.Content, &created); err != nil {
			return nil, fmt.Errorf("hydrate progress: %w", err)
		}
		p.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, p)
	}
	return out, rows.Err()
}

// The writers below seed domain records. The orchestrator itself never
// calls them; they back the CLI and tests.

// PutSummary sets the conversation summary of userID.
func (s *Store) PutSummary(ctx context.Context, userID, summary string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO summaries (user_id, summary) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET summary = excluded.summary`, userID, summary)
	return err
}

// AddGoal inserts a goal and returns its id.
func (s *Store) AddGoal(ctx context.Context, userID string, g domain.Goal) (int64, error) {
	if g.Status == "" {
		g.Status = "active"
	}
	var target any
	if g.TargetDate != nil {
		target = g.TargetDate.UTC().Format(time.RFC3339)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO goals (user_id, title, description, status, target_date) VALUES (?, ?, ?, ?, ?)`,
		userID, g.Title, g.Description, g.Status, target)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// AddMilestone inserts a milestone under an existing goal.
func (s *Store) AddMilestone(ctx context.Context, m domain.Milestone) (int64, error) {
	if m.Status == "" {
		m.Status = "pending"
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO milestones (goal_id, description, status) VALUES (?, ?, ?)`,
		m.GoalID, m.Description, m.Status)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// AddHabit inserts a habit.
func (s *Store) AddHabit(ctx context.Context, userID string, h domain.Habit) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO habits (user_id, description, frequency_type, frequency_value) VALUES (?, ?, ?, ?)`,
		userID, h.Description, h.FrequencyType, h.FrequencyValue)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// AddProgress inserts a progress log. A zero CreatedAt means now.
func (s *Store) AddProgress(ctx context.Context, userID string, p domain.ProgressLog) (int64, error) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO progress_logs (user_id, log_type, content, created_at) VALUES (?, ?, ?, ?)`,
		userID, p.LogType, p.Content, p.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
