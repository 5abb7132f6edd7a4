package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/avealis/inboxpilot/internal/domain"
)

func TestEvaluateSupervisedBlocksEverything(t *testing.T) {
	e := NewEvaluator(zap.NewNop())

	// Даже абсолютно уверенное решение идет на апрув, правила игнорируются
	v := e.Evaluate(domain.AutonomySupervised,
		[]domain.Rule{{Condition: "always", Action: domain.RuleApprove}},
		domain.Decision{Action: domain.ActionArchive, Confidence: 1.0, Reasoning: "sure"})

	assert.True(t, v.Block)
	assert.False(t, v.Proceed)
}

func TestEvaluateFullAutonomyIgnoresRules(t *testing.T) {
	e := NewEvaluator(zap.NewNop())

	v := e.Evaluate(domain.AutonomyFull,
		[]domain.Rule{{Condition: "always", Action: domain.RuleBlock}},
		domain.Decision{Action: domain.ActionSendReply, Confidence: 0.1, Reasoning: "weak"})

	assert.True(t, v.Proceed)
	assert.False(t, v.Block)
}

func TestEvaluateSemiFirstMatchWins(t *testing.T) {
	e := NewEvaluator(zap.NewNop())

	ruleset := []domain.Rule{
		{Condition: "confidence_below", Threshold: 0.9, Action: domain.RuleNotify},
		{Condition: "always", Action: domain.RuleBlock}, // не должно сработать
	}
	v := e.Evaluate(domain.AutonomySemi, ruleset,
		domain.Decision{Action: domain.ActionArchive, Confidence: 0.5, Reasoning: "so-so"})

	assert.True(t, v.Proceed)
	assert.True(t, v.Notify)
	assert.False(t, v.Block)
	if assert.NotNil(t, v.Rule) {
		assert.Equal(t, "confidence_below", v.Rule.Condition)
	}
}

func TestEvaluateSemiNoMatchProceeds(t *testing.T) {
	e := NewEvaluator(zap.NewNop())

	ruleset := []domain.Rule{
		{Condition: "confidence_below", Threshold: 0.3, Action: domain.RuleBlock},
		{Condition: "financial_content", Action: domain.RuleBlock},
	}
	v := e.Evaluate(domain.AutonomySemi, ruleset,
		domain.Decision{Action: domain.ActionArchive, Confidence: 0.95, Reasoning: "confident"})

	assert.True(t, v.Proceed)
	assert.Nil(t, v.Rule)
}

func TestMatchesConditions(t *testing.T) {
	tests := []struct {
		name string
		rule domain.Rule
		d    domain.Decision
		want bool
	}{
		{
			name: "always",
			rule: domain.Rule{Condition: "always"},
			d:    domain.Decision{},
			want: true,
		},
		{
			name: "confidence below threshold",
			rule: domain.Rule{Condition: "confidence_below", Threshold: 0.8},
			d:    domain.Decision{Confidence: 0.7},
			want: true,
		},
		{
			name: "confidence at threshold is not below",
			rule: domain.Rule{Condition: "confidence_below", Threshold: 0.8},
			d:    domain.Decision{Confidence: 0.8},
			want: false,
		},
		{
			name: "inline confidence form",
			rule: domain.Rule{Condition: "confidence<0.9", Threshold: 0.9},
			d:    domain.Decision{Confidence: 0.85},
			want: true,
		},
		{
			name: "requires approval flag",
			rule: domain.Rule{Condition: "requires_approval"},
			d:    domain.Decision{RequiresApproval: true},
			want: true,
		},
		{
			name: "context boolean flag",
			rule: domain.Rule{Condition: "financial_content"},
			d:    domain.Decision{Context: map[string]any{"financial_content": true}},
			want: true,
		},
		{
			name: "unknown flag absent",
			rule: domain.Rule{Condition: "financial_content"},
			d:    domain.Decision{},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matches(&tt.rule, tt.d))
		})
	}
}
