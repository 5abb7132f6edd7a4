package postgres

/*
Файл context_repo.go — поставка learning context для informed-яруса пайплайна:
собственная недавняя история агента и фидбек операторов по прошлым апрувам.
Выборки жестко ограничены: контекст уходит во внешний классификатор, раздувать
его дорого.
*/

import (
	"context"
	"fmt"

	"github.com/avealis/inboxpilot/internal/domain"
	"github.com/avealis/inboxpilot/internal/pipeline"
)

const learningContextLimit = 10

// Gather реализует pipeline.ContextProvider поверх action_log и approvals.
func (s *Store) Gather(ctx context.Context, agentID string, item domain.MailItem) (pipeline.LearningContext, error) {
	lc := pipeline.LearningContext{}

	// 1. Последние действия агента
	rows, err := s.pool.Query(ctx, `
		SELECT action, outcome
		FROM action_log
		WHERE agent_id = $1
		ORDER BY timestamp DESC LIMIT $2`, agentID, learningContextLimit)
	if err != nil {
		return lc, err
	}
	defer rows.Close()
	for rows.Next() {
		var action, outcome string
		if err := rows.Scan(&action, &outcome); err != nil {
			return lc, err
		}
		lc.RecentActions = append(lc.RecentActions, fmt.Sprintf("%s:%s", action, outcome))
	}
	if err = rows.Err(); err != nil {
		return lc, err
	}

	// 2. Фидбек операторов: резолвнутые апрувы с комментарием
	fb, err := s.pool.Query(ctx, `
		SELECT status, COALESCE(comment, '')
		FROM approvals
		WHERE agent_id = $1 AND status <> 'PENDING' AND comment IS NOT NULL
		ORDER BY resolved_at DESC LIMIT $2`, agentID, learningContextLimit)
	if err != nil {
		return lc, err
	}
	defer fb.Close()
	for fb.Next() {
		var status, comment string
		if err := fb.Scan(&status, &comment); err != nil {
			return lc, err
		}
		lc.Feedback = append(lc.Feedback, fmt.Sprintf("%s: %s", status, comment))
	}
	if err = fb.Err(); err != nil {
		return lc, err
	}

	// 3. Похожие письма: та же категория или тот же отправитель
	sim, err := s.pool.Query(ctx, `
		SELECT al.action, al.outcome
		FROM action_log al
		JOIN approvals a ON a.item_id = al.item_id AND a.agent_id = al.agent_id
		WHERE al.agent_id = $1 AND (a.item->>'category' = $2 OR a.item->>'from' = $3)
		ORDER BY al.timestamp DESC LIMIT $4`,
		agentID, string(item.Category), item.From, learningContextLimit)
	if err != nil {
		return lc, err
	}
	defer sim.Close()
	for sim.Next() {
		var action, outcome string
		if err := sim.Scan(&action, &outcome); err != nil {
			return lc, err
		}
		lc.SimilarItems = append(lc.SimilarItems, fmt.Sprintf("%s:%s", action, outcome))
	}
	return lc, sim.Err()
}
