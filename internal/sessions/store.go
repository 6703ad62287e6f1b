// Package sessions gives the panel read access to the conversation sessions that the
// chatbot engine runs, plus the ability to terminate one.
//
// The engine publishes each session as a JSON document; the panel never advances a
// session itself.
package sessions

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/BTreeMap/PromptPanel/internal/models"
)

// ErrNotFound is returned when no session exists under the given ID.
var ErrNotFound = errors.New("conversation session not found")

// Store lists, fetches and terminates conversation sessions.
type Store interface {
	// List returns sessions ordered by most recent activity first.
	List(ctx context.Context, activeOnly bool) ([]models.ConversationSession, error)
	Get(ctx context.Context, id string) (*models.ConversationSession, error)
	// Save writes a session as the engine would. Used by seeding tools and tests.
	Save(ctx context.Context, s models.ConversationSession) error
	// Terminate marks a session terminated and returns its new state.
	// Terminating an already-terminated session is not an error.
	Terminate(ctx context.Context, id string) (*models.ConversationSession, error)
	Close() error
}

func sortByActivity(list []models.ConversationSession) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].LastUpdatedAt.Equal(list[j].LastUpdatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].LastUpdatedAt.After(list[j].LastUpdatedAt)
	})
}

// terminate applies the terminated status in place and reports whether anything changed.
func terminate(s *models.ConversationSession, now time.Time) bool {
	if !s.IsActive() {
		return false
	}
	s.Status = models.SessionStatusTerminated
	s.LastUpdatedAt = now
	return true
}
