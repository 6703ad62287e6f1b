package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/PromptPanel/internal/models"
)

func TestConversationSessions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	started := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	for _, id := range []string{"sess_a", "sess_b"} {
		require.NoError(t, h.sessions.Save(ctx, models.ConversationSession{
			ID:             id,
			StateMachineID: "sm_1",
			CurrentState:   "greeting",
			Status:         models.SessionStatusActive,
			History:        []models.HistoryEntry{{State: "greeting", Timestamp: started}},
			StartedAt:      started,
			LastUpdatedAt:  started,
		}))
	}

	var list []models.ConversationSession
	h.result(h.do(http.MethodGet, "/conversation-sessions?active=true", nil), &list)
	require.Len(t, list, 2)

	var terminated models.ConversationSession
	h.result(h.do(http.MethodDelete, "/conversation-sessions/sess_a", nil), &terminated)
	assert.Equal(t, models.SessionStatusTerminated, terminated.Status)

	// Terminating twice is harmless.
	require.Equal(t, http.StatusOK, h.do(http.MethodDelete, "/conversation-sessions/sess_a", nil).Code)

	h.result(h.do(http.MethodGet, "/conversation-sessions?active=true", nil), &list)
	require.Len(t, list, 1)
	assert.Equal(t, "sess_b", list[0].ID)

	h.result(h.do(http.MethodGet, "/conversation-sessions", nil), &list)
	assert.Len(t, list, 2)

	var got models.ConversationSession
	h.result(h.do(http.MethodGet, "/conversation-sessions/sess_b", nil), &got)
	assert.Equal(t, "greeting", got.CurrentState)

	h.expectError(h.do(http.MethodGet, "/conversation-sessions/missing", nil), http.StatusNotFound)
	h.expectError(h.do(http.MethodDelete, "/conversation-sessions/missing", nil), http.StatusNotFound)
	h.expectError(h.do(http.MethodGet, "/conversation-sessions?active=maybe", nil), http.StatusBadRequest)
}
