package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/avealis/inboxpilot/internal/actionlog"
)

// WriteBatch — пакетная вставка журнала действий. Вызывается батч-воркером
// actionlog.Writer, по одной строке не пишем.
func (s *Store) WriteBatch(ctx context.Context, entries []actionlog.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	// Количество колонок в таблице action_log
	numFields := 11
	placeholderStr := ""
	vals := make([]interface{}, 0, len(entries)*numFields)

	// Динамически строим запрос для пакетной вставки
	for i, e := range entries {
		p := i * numFields
		placeholderStr += fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d),",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8, p+9, p+10, p+11)

		vals = append(vals,
			e.ID, e.AgentID, e.UserID, e.ItemID,
			e.Action, e.Confidence, e.Reasoning,
			e.Outcome, e.Error, e.Timestamp, e.DurationMs,
		)
	}

	// Убираем лишнюю запятую в конце
	query := fmt.Sprintf(
		"INSERT INTO action_log (id, agent_id, user_id, item_id, action, confidence, reasoning, outcome, error, timestamp, duration_ms) VALUES %s ON CONFLICT (id) DO NOTHING",
		strings.TrimSuffix(placeholderStr, ","),
	)

	_, err := s.pool.Exec(ctx, query, vals...)
	return err
}
