package postgres

import (
	"context"

	"github.com/avealis/inboxpilot/internal/actionlog"
	"github.com/avealis/inboxpilot/internal/domain"
)

// GetTriageStats собирает агрегаты по журналу действий для дашборда консоли.
func (s *Store) GetTriageStats(ctx context.Context, userID string) (*domain.TriageStats, error) {
	st := &domain.TriageStats{TopActions: make(map[string]int64)}

	// 1. Сводка по исходам за последние 24 часа
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE outcome = $2),
			COUNT(*) FILTER (WHERE outcome = $3)
		FROM action_log
		WHERE user_id = $1 AND timestamp > NOW() - INTERVAL '24 hours'`,
		userID, actionlog.OutcomeHeld, actionlog.OutcomeFailed,
	).Scan(&st.TotalActions, &st.HeldForReview, &st.FailedActions)
	if err != nil {
		return nil, err
	}

	// Automation rate = доля действий, прошедших без ручного разбора
	if st.TotalActions > 0 {
		st.AutomationRate = float64(st.TotalActions-st.HeldForReview) / float64(st.TotalActions)
	}

	// 2. Топ действий
	rows, err := s.pool.Query(ctx, `
		SELECT action, COUNT(*)
		FROM action_log
		WHERE user_id = $1 AND timestamp > NOW() - INTERVAL '24 hours'
		GROUP BY action ORDER BY COUNT(*) DESC LIMIT 10`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			action string
			count  int64
		)
		if err := rows.Scan(&action, &count); err != nil {
			return nil, err
		}
		st.TopActions[action] = count
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	// 3. Почасовая активность
	hourly, err := s.pool.Query(ctx, `
		SELECT to_char(date_trunc('hour', timestamp), 'YYYY-MM-DD HH24:00'), COUNT(*)
		FROM action_log
		WHERE user_id = $1 AND timestamp > NOW() - INTERVAL '24 hours'
		GROUP BY 1 ORDER BY 1`, userID)
	if err != nil {
		return nil, err
	}
	defer hourly.Close()

	st.HourlyActivity = make([]domain.ActivityPoint, 0)
	for hourly.Next() {
		var p domain.ActivityPoint
		if err := hourly.Scan(&p.Hour, &p.Count); err != nil {
			return nil, err
		}
		st.HourlyActivity = append(st.HourlyActivity, p)
	}
	return st, hourly.Err()
}
