package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/PromptPanel/internal/models"
)

type fakeLister struct {
	mu       sync.Mutex
	calls    int
	inFlight int32
	overlap  bool
	failOn   map[int]bool
	active   []bool
}

func (f *fakeLister) ListSessions(ctx context.Context, activeOnly bool) ([]models.ConversationSession, error) {
	if atomic.AddInt32(&f.inFlight, 1) > 1 {
		f.mu.Lock()
		f.overlap = true
		f.mu.Unlock()
	}
	defer atomic.AddInt32(&f.inFlight, -1)

	f.mu.Lock()
	f.calls++
	n := f.calls
	f.active = append(f.active, activeOnly)
	f.mu.Unlock()

	if f.failOn[n] {
		return nil, errors.New("backend unavailable")
	}
	return []models.ConversationSession{{ID: "s1", Status: models.SessionStatusActive}}, nil
}

func TestMonitorContinuesAfterFailedPoll(t *testing.T) {
	lister := &fakeLister{failOn: map[int]bool{2: true}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var snaps []Snapshot
	m := New(lister, func(s Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		snaps = append(snaps, s)
		if len(snaps) == 4 {
			cancel()
		}
	}, WithInterval(5*time.Millisecond))

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(snaps), 4)
	assert.NoError(t, snaps[0].Err)
	assert.Len(t, snaps[0].Sessions, 1)
	assert.Error(t, snaps[1].Err)
	assert.Nil(t, snaps[1].Sessions)
	assert.NoError(t, snaps[2].Err, "the loop keeps polling after a failure")
}

func TestMonitorPollsSequentially(t *testing.T) {
	lister := &fakeLister{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var count int32
	m := New(lister, func(s Snapshot) {
		// A slow handler must delay the next poll rather than run alongside it.
		time.Sleep(10 * time.Millisecond)
		if atomic.AddInt32(&count, 1) == 3 {
			cancel()
		}
	}, WithInterval(time.Millisecond))
	_ = m.Run(ctx)

	lister.mu.Lock()
	defer lister.mu.Unlock()
	assert.False(t, lister.overlap)
	for _, active := range lister.active {
		assert.True(t, active)
	}
}

func TestMonitorAllSessions(t *testing.T) {
	lister := &fakeLister{}
	ctx, cancel := context.WithCancel(context.Background())
	m := New(lister, func(Snapshot) { cancel() }, WithAllSessions(), WithInterval(time.Hour))
	require.ErrorIs(t, m.Run(ctx), context.Canceled)

	lister.mu.Lock()
	defer lister.mu.Unlock()
	require.Len(t, lister.active, 1)
	assert.False(t, lister.active[0])
}
