package guard

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/fgeck/goworld-backup/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type mockHostService struct {
	listFunc  func(ctx context.Context) ([]string, error)
	pauseErr  map[string]error
	paused    []string
	resumed   []string
	broadcast []string
}

func (m *mockHostService) ListDataStores(ctx context.Context) ([]string, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx)
	}
	return []string{"world", "world_nether", "world_the_end"}, nil
}

func (m *mockHostService) Pause(_ context.Context, store string) error {
	m.paused = append(m.paused, store)
	return m.pauseErr[store]
}

func (m *mockHostService) Resume(_ context.Context, store string) error {
	m.resumed = append(m.resumed, store)
	return nil
}

func (m *mockHostService) DataDirectory() string {
	return "/srv/minecraft"
}

func (m *mockHostService) Broadcast(_ context.Context, message string, _ models.Color) error {
	m.broadcast = append(m.broadcast, message)
	return nil
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func TestPauseAll_EveryStore(t *testing.T) {
	h := &mockHostService{}
	svc := New(testLogger(), h)

	svc.PauseAll(context.Background())

	assert.Equal(t, []string{"world", "world_nether", "world_the_end"}, h.paused)
	assert.Empty(t, h.resumed)
}

func TestResumeAll_EveryStore(t *testing.T) {
	h := &mockHostService{}
	svc := New(testLogger(), h)

	svc.ResumeAll(context.Background())

	assert.Equal(t, []string{"world", "world_nether", "world_the_end"}, h.resumed)
}

func TestPauseAll_ContinuesAfterFailure(t *testing.T) {
	h := &mockHostService{pauseErr: map[string]error{"world": errors.New("rcon down")}}
	svc := New(testLogger(), h)

	svc.PauseAll(context.Background())

	assert.Equal(t, []string{"world", "world_nether", "world_the_end"}, h.paused)
}

func TestPauseAll_ListFailure(t *testing.T) {
	h := &mockHostService{
		listFunc: func(ctx context.Context) ([]string, error) {
			return nil, errors.New("permission denied")
		},
	}
	svc := New(testLogger(), h)

	assert.NotPanics(t, func() { svc.PauseAll(context.Background()) })
	assert.Empty(t, h.paused)
}

func TestResumeAll_ResumesExactlyThePausedStores(t *testing.T) {
	listed := []string{"world"}
	h := &mockHostService{
		listFunc: func(ctx context.Context) ([]string, error) {
			return listed, nil
		},
	}
	svc := New(testLogger(), h)

	svc.PauseAll(context.Background())
	// A directory appearing mid-cycle was never paused.
	listed = []string{"backups", "world"}
	svc.ResumeAll(context.Background())

	assert.Equal(t, []string{"world"}, h.paused)
	assert.Equal(t, []string{"world"}, h.resumed)
}

func TestResumeAll_ListsAgainAfterPairCompletes(t *testing.T) {
	h := &mockHostService{}
	svc := New(testLogger(), h)

	svc.PauseAll(context.Background())
	svc.ResumeAll(context.Background())
	svc.ResumeAll(context.Background())

	assert.Equal(t, []string{
		"world", "world_nether", "world_the_end",
		"world", "world_nether", "world_the_end",
	}, h.resumed)
}

func TestResumeAll_NoWorldsPaused(t *testing.T) {
	calls := 0
	h := &mockHostService{
		listFunc: func(ctx context.Context) ([]string, error) {
			calls++
			if calls == 1 {
				return []string{}, nil
			}
			return []string{"world"}, nil
		},
	}
	svc := New(testLogger(), h)

	svc.PauseAll(context.Background())
	svc.ResumeAll(context.Background())

	assert.Empty(t, h.paused)
	assert.Empty(t, h.resumed)
	assert.Equal(t, 1, calls)
}
