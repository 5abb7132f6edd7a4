package pipeline

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/avealis/inboxpilot/internal/domain"
)

// LearningContext — ограниченная выборка истории для informed-яруса:
// последние собственные действия, фидбек операторов по прошлым апрувам и
// небольшая пачка похожих писем.
type LearningContext struct {
	RecentActions []string `json:"recent_actions"`
	Feedback      []string `json:"feedback"`
	SimilarItems  []string `json:"similar_items"`
}

// ContextProvider поставляет learning context для письма. Ошибки провайдера
// не фатальны: informed-ярус просто работает с пустым контекстом.
type ContextProvider interface {
	Gather(ctx context.Context, agentID string, item domain.MailItem) (LearningContext, error)
}

// Classifier — внешний классификатор (LLM и т.п.). Может падать и возвращать
// мусор — пайплайн обязан это пережить.
type Classifier interface {
	Classify(ctx context.Context, item domain.MailItem, lc LearningContext) (domain.Decision, error)
}

// Pipeline всегда возвращает валидный Decision. Три яруса:
// informed -> deterministic -> default. Ошибки верхних ярусов гасятся молча
// (debug-лог) и не всплывают к циклу агента.
type Pipeline struct {
	provider   ContextProvider
	classifier Classifier
	cb         *gobreaker.CircuitBreaker
	timeout    time.Duration
	logger     *zap.Logger
}

func New(provider ContextProvider, classifier Classifier, timeout time.Duration, logger *zap.Logger) *Pipeline {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	// Классификатор — внешняя зависимость: если он деградировал, выбиваем
	// предохранитель и какое-то время сразу уходим на deterministic ярус,
	// не сжигая таймауты на каждом письме.
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "decision-classifier",
		MaxRequests: 2,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 4
		},
	})

	return &Pipeline{
		provider:   provider,
		classifier: classifier,
		cb:         cb,
		timeout:    timeout,
		logger:     logger.Named("pipeline"),
	}
}

// Decide — единственная точка входа. Никогда не возвращает ошибку.
func (p *Pipeline) Decide(ctx context.Context, agentID string, item domain.MailItem) domain.Decision {
	if d, ok := p.informed(ctx, agentID, item); ok {
		return d
	}
	if d, ok := Deterministic(item); ok {
		return d
	}
	return domain.DefaultDecision()
}

// informed — первый ярус: learning context + внешний классификатор со строгой
// валидацией ответа. Частичный успех успехом не считается.
func (p *Pipeline) informed(ctx context.Context, agentID string, item domain.MailItem) (domain.Decision, bool) {
	if p.classifier == nil {
		return domain.Decision{}, false
	}

	lc := LearningContext{}
	if p.provider != nil {
		gathered, err := p.provider.Gather(ctx, agentID, item)
		if err != nil {
			p.logger.Debug("context gathering failed, classifying without history",
				zap.String("item_id", item.ID), zap.Error(err))
		} else {
			lc = gathered
		}
	}

	result, err := p.cb.Execute(func() (any, error) {
		cctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		return p.classifier.Classify(cctx, item, lc)
	})
	if err != nil {
		p.logger.Debug("informed classifier failed, falling back",
			zap.String("item_id", item.ID), zap.Error(err))
		return domain.Decision{}, false
	}

	d, ok := result.(domain.Decision)
	if !ok || !d.Valid() {
		// Малформ от модели — молча отбрасываем, это штатный режим
		p.logger.Debug("informed decision rejected by validation",
			zap.String("item_id", item.ID))
		return domain.Decision{}, false
	}

	return d, true
}
