package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/avealis/inboxpilot/internal/domain"
)

// MockClassifier имитирует внешний LLM-классификатор для local-режима и
// тестов: задержка, настраиваемые отказы и сырой JSON-ответ, который
// прогоняется через ту же строгую валидацию, что и боевой.
type MockClassifier struct {
	// FailFrom — письма этого отправителя роняют классификатор
	FailFrom string
	// RawBySubject — подмена сырого ответа модели по теме письма
	// (для проверки обработки малформа)
	RawBySubject map[string]string
	// MaxLatency > 0 включает имитацию задержки
	MaxLatency time.Duration
}

func (c *MockClassifier) Classify(ctx context.Context, item domain.MailItem, lc LearningContext) (domain.Decision, error) {
	if c.MaxLatency > 0 {
		// Имитируем задержку внешнего вызова
		latency := time.Duration(rand.Int63n(int64(c.MaxLatency)))
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return domain.Decision{}, ctx.Err()
		}
	}

	if c.FailFrom != "" && item.From == c.FailFrom {
		return domain.Decision{}, fmt.Errorf("classifier backend error")
	}

	if raw, ok := c.RawBySubject[item.Subject]; ok {
		return DecodeDecision([]byte(raw))
	}

	// Консервативный "умный" ответ: письма известных категорий отдаем с
	// высокой уверенностью, остальное помечаем на разбор
	if d, ok := Deterministic(item); ok {
		d.Reasoning = "classifier: " + d.Reasoning
		return d, nil
	}
	return domain.Decision{
		Action:           domain.ActionFlagForReview,
		Confidence:       0.6,
		Reasoning:        "classifier: no strong signal",
		RequiresApproval: true,
	}, nil
}

// DecodeDecision — строгий разбор сырого ответа модели. Неизвестные поля и
// невалидные значения отбрасываются целиком: частичный успех не принимаем.
func DecodeDecision(raw []byte) (domain.Decision, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var d domain.Decision
	if err := dec.Decode(&d); err != nil {
		return domain.Decision{}, fmt.Errorf("malformed decision payload: %w", err)
	}
	if !d.Valid() {
		return domain.Decision{}, fmt.Errorf("decision failed validation: action=%q confidence=%v", d.Action, d.Confidence)
	}
	return d, nil
}
