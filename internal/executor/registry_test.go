package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/avealis/inboxpilot/internal/domain"
)

func TestRegistryDispatchesKnownActions(t *testing.T) {
	provider := NewMockMailProvider()
	provider.MaxLatency = 0
	r := NewRegistry(zap.NewNop())
	RegisterMailHandlers(r, provider)

	item := domain.MailItem{ID: "m1"}
	cases := map[string]MailOp{
		domain.ActionGenerateReply: OpDraftReply,
		domain.ActionSendReply:     OpSendReply,
		domain.ActionArchive:       OpArchive,
		domain.ActionFlagForReview: OpFlag,
		domain.ActionMarkRead:      OpMarkRead,
	}

	for action, wantOp := range cases {
		err := r.Execute(context.Background(), item, domain.Decision{Action: action, Confidence: 1, Reasoning: "t"})
		require.NoError(t, err, action)
		calls := provider.Calls()
		assert.Equal(t, wantOp, calls[len(calls)-1].Op)
	}
	assert.Len(t, provider.Calls(), len(cases))
}

func TestRegistryUnknownActionIsTypedError(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	err := r.Execute(context.Background(), domain.MailItem{ID: "m1"},
		domain.Decision{Action: "delete_account", Confidence: 1, Reasoning: "t"})

	assert.ErrorIs(t, err, domain.ErrUnsupportedAction)
}
