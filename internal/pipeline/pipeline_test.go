package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/avealis/inboxpilot/internal/domain"
)

type stubClassifier struct {
	d   domain.Decision
	err error
}

func (s *stubClassifier) Classify(context.Context, domain.MailItem, LearningContext) (domain.Decision, error) {
	return s.d, s.err
}

type stubProvider struct {
	lc  LearningContext
	err error
}

func (s *stubProvider) Gather(context.Context, string, domain.MailItem) (LearningContext, error) {
	return s.lc, s.err
}

func TestDecideUsesInformedTier(t *testing.T) {
	want := domain.Decision{Action: domain.ActionArchive, Confidence: 0.95, Reasoning: "bulk sender"}
	p := New(&stubProvider{}, &stubClassifier{d: want}, time.Second, zap.NewNop())

	got := p.Decide(context.Background(), "a1", domain.MailItem{ID: "m1"})
	assert.Equal(t, want, got)
}

func TestDecideFallsBackToDeterministicOnClassifierError(t *testing.T) {
	p := New(nil, &stubClassifier{err: errors.New("backend down")}, time.Second, zap.NewNop())

	got := p.Decide(context.Background(), "a1", domain.MailItem{ID: "m1", Category: domain.CategoryNewsletter})
	assert.Equal(t, domain.ActionArchive, got.Action)
	assert.False(t, got.RequiresApproval)
}

func TestDecideRejectsMalformedInformedDecision(t *testing.T) {
	// Confidence вне [0,1] — валидация должна отбросить ответ целиком
	p := New(nil, &stubClassifier{d: domain.Decision{Action: domain.ActionSendReply, Confidence: 1.7, Reasoning: "x"}}, time.Second, zap.NewNop())

	got := p.Decide(context.Background(), "a1", domain.MailItem{ID: "m1", Category: domain.CategoryNotification})
	assert.Equal(t, domain.ActionMarkRead, got.Action)
}

func TestDecideDefaultsForUnknownCategory(t *testing.T) {
	p := New(nil, &stubClassifier{err: errors.New("down")}, time.Second, zap.NewNop())

	got := p.Decide(context.Background(), "a1", domain.MailItem{ID: "m1"})
	assert.Equal(t, domain.ActionFlagForReview, got.Action)
	assert.Equal(t, 0.5, got.Confidence)
	assert.True(t, got.RequiresApproval)
}

func TestDecideWithoutClassifierGoesDeterministic(t *testing.T) {
	p := New(nil, nil, time.Second, zap.NewNop())

	got := p.Decide(context.Background(), "a1", domain.MailItem{ID: "m1", Category: domain.CategoryFinancial})
	assert.Equal(t, domain.ActionFlagForReview, got.Action)
	assert.True(t, got.RequiresApproval)
	assert.True(t, got.Flag("financial_content"))
}

func TestDecideSurvivesProviderFailure(t *testing.T) {
	want := domain.Decision{Action: domain.ActionMarkRead, Confidence: 0.8, Reasoning: "noise"}
	p := New(&stubProvider{err: errors.New("db gone")}, &stubClassifier{d: want}, time.Second, zap.NewNop())

	// Провайдер контекста упал — классификация все равно идет, без истории
	got := p.Decide(context.Background(), "a1", domain.MailItem{ID: "m1"})
	assert.Equal(t, want, got)
}

func TestDecodeDecisionStrict(t *testing.T) {
	d, err := DecodeDecision([]byte(`{"action":"archive","confidence":0.9,"reasoning":"ok"}`))
	require.NoError(t, err)
	assert.Equal(t, domain.ActionArchive, d.Action)

	_, err = DecodeDecision([]byte(`{"action":"archive","confidence":0.9,"reasoning":"ok","hallucinated":true}`))
	assert.Error(t, err, "unknown fields must be rejected")

	_, err = DecodeDecision([]byte(`{"action":"","confidence":0.9,"reasoning":"ok"}`))
	assert.Error(t, err, "empty action must fail validation")

	_, err = DecodeDecision([]byte(`not json`))
	assert.Error(t, err)
}
