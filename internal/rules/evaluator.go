package rules

import (
	"strings"

	"go.uber.org/zap"

	"github.com/avealis/inboxpilot/internal/domain"
)

// Verdict — результат оценки решения политикой автономности.
type Verdict struct {
	Proceed bool // исполнять сейчас
	Notify  bool // исполнить, но отправить notification-событие
	Block   bool // остановить и создать Approval
	Rule    *domain.Rule
}

var (
	verdictProceed = Verdict{Proceed: true}
	verdictBlock   = Verdict{Block: true}
)

// Evaluator — чистая функция поверх (Decision, AutonomyLevel, []Rule).
// Состояния не держит, логгер нужен только для срабатываний правил.
type Evaluator struct {
	logger *zap.Logger
}

func NewEvaluator(logger *zap.Logger) *Evaluator {
	return &Evaluator{logger: logger.Named("rules")}
}

// Evaluate применяет политику в строгом порядке:
//  1. supervised — безусловный апрув, правила не проверяются;
//  2. semi-autonomous — первое совпавшее правило выигрывает (no stacking);
//  3. fully-autonomous — безусловный proceed.
func (e *Evaluator) Evaluate(level domain.AutonomyLevel, ruleset []domain.Rule, d domain.Decision) Verdict {
	switch level {
	case domain.AutonomySupervised:
		return verdictBlock
	case domain.AutonomyFull:
		return verdictProceed
	}

	// semi-autonomous: сканируем список в порядке конфигурации
	for i := range ruleset {
		r := &ruleset[i]
		if !matches(r, d) {
			continue
		}

		e.logger.Debug("rule matched",
			zap.String("condition", r.Condition),
			zap.String("action", string(r.Action)),
			zap.Float64("confidence", d.Confidence),
		)

		switch r.Action {
		case domain.RuleBlock:
			return Verdict{Block: true, Rule: r}
		case domain.RuleNotify:
			return Verdict{Proceed: true, Notify: true, Rule: r}
		default: // approve
			return Verdict{Proceed: true, Rule: r}
		}
	}

	// Ни одно правило не совпало — исполняем
	return verdictProceed
}

// matches — именованные предикаты условий. Неизвестное условие трактуем как
// boolean-флаг в контексте решения (например "financial_content").
func matches(r *domain.Rule, d domain.Decision) bool {
	switch {
	case r.Condition == "always":
		return true
	case r.Condition == "confidence_below" || strings.HasPrefix(r.Condition, "confidence<"):
		return d.Confidence < r.Threshold
	case r.Condition == "requires_approval":
		return d.RequiresApproval
	default:
		return d.Flag(r.Condition)
	}
}
