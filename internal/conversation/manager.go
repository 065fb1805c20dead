package conversation

import (
	"context"
	"strings"

	"aikun/internal/logging"
	"aikun/internal/types"
)

// UnknownConversation is the sentinel bucket for events that carry no
// usable scope identity.
const UnknownConversation = "unknown"

// DeriveConversationID resolves the conversation identity from the
// channel-specific scope hints. Group beats room beats user: a user inside a
// group conversation shares the group's context, not their own.
func DeriveConversationID(groupID, roomID, userID string) string {
	switch {
	case groupID != "":
		return "group:" + groupID
	case roomID != "":
		return "room:" + roomID
	case userID != "":
		return "user:" + userID
	default:
		return UnknownConversation
	}
}

// Manager supplies bounded history windows and owns all writes to the turn
// log.
type Manager struct {
	store  types.TurnStore
	window int // W, in exchanges; a read returns up to 2*W turns
}

// NewManager creates a manager over the given store. window is in
// exchanges (user+assistant pairs).
func NewManager(store types.TurnStore, window int) *Manager {
	if window <= 0 {
		window = 12
	}
	return &Manager{store: store, window: window}
}

// Load returns up to 2*W most-recent turns in chronological order. Storage
// errors fail soft: research and synthesis proceed with empty history
// rather than aborting the reply.
func (m *Manager) Load(ctx context.Context, conversationID string) []types.Turn {
	turns, err := m.store.LoadTurns(ctx, conversationID, m.window*2)
	if err != nil {
		logging.StoreError("load history for %s failed: %v", conversationID, err)
		return nil
	}
	return turns
}

// Append persists one turn with fire-and-forget durability. A lost history
// write degrades future context but must never block the current reply, so
// errors are logged and swallowed.
func (m *Manager) Append(ctx context.Context, conversationID string, role types.Role, content string) {
	if strings.TrimSpace(content) == "" {
		return
	}
	if err := m.store.AppendTurn(ctx, conversationID, role, content); err != nil {
		logging.StoreError("append %s turn for %s failed: %v", role, conversationID, err)
	}
}

// Reset deletes all turns for the conversation. Synchronous; the error is
// surfaced because silently keeping history the user believes was cleared
// is worse than admitting the failure.
func (m *Manager) Reset(ctx context.Context, conversationID string) error {
	return m.store.DeleteTurns(ctx, conversationID)
}

// FindPendingQuery scans recent history backwards for an unanswered
// location clarification. It looks for the fixed clarification prompt among
// the last lookback turns and returns the user utterance that triggered it.
// lookback is a tunable, not a contract.
func FindPendingQuery(turns []types.Turn, clarificationPrompt string, lookback int) (string, bool) {
	if lookback <= 0 || lookback > len(turns) {
		lookback = len(turns)
	}

	start := len(turns) - lookback
	for i := len(turns) - 1; i >= start; i-- {
		t := turns[i]
		if t.Role != types.RoleAssistant {
			continue
		}
		// Only the most recent assistant turn counts: any later reply means
		// the clarification was already resolved.
		if t.Content != clarificationPrompt {
			return "", false
		}
		// The user turn immediately before the prompt is the pending query.
		if i > 0 && turns[i-1].Role == types.RoleUser {
			return turns[i-1].Content, true
		}
		return "", false
	}
	return "", false
}
