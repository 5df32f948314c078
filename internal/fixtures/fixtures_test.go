package fixtures

import (
	"context"
	"testing"
	"time"

	"furnidesk/internal/chat"
	"furnidesk/internal/database"
	"furnidesk/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

func TestThreads_AreValid(t *testing.T) {
	ids := make(map[string]bool)
	for _, thread := range Threads(now) {
		t.Run(thread.ID, func(t *testing.T) {
			require.NoError(t, chat.ValidateThread(thread))
			assert.False(t, ids[thread.ID], "duplicate thread id")
			ids[thread.ID] = true

			last, ok := thread.LastMessage()
			require.True(t, ok)
			assert.Equal(t, last.CreatedAt, thread.LastActivity)

			for i, m := range thread.Messages {
				assert.Equal(t, thread.ID, m.ThreadID)
				assert.True(t, m.Status.Valid())
				if i > 0 {
					assert.False(t, m.CreatedAt.Before(thread.Messages[i-1].CreatedAt), "messages are chronological")
				}
				if !m.IsSystem && thread.Type != models.ThreadClient {
					assert.True(t, thread.IsParticipant(m.SenderID), "%s is not in %s", m.SenderID, thread.ID)
				}
			}
		})
	}
}

func TestThreads_DefaultOrder(t *testing.T) {
	visible := chat.SelectVisible(Threads(now), chat.Filter{}, now)

	var ids []string
	for _, thread := range visible {
		ids = append(ids, thread.ID)
	}
	assert.Equal(t, []string{"grp-workshop", "cli-marina", "cli-ricardo", "dm-ana-bruno", "grp-deliveries", "cli-helena"}, ids)
}

func TestSeed(t *testing.T) {
	store := database.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, Seed(ctx, store, now))
	// seeding twice overwrites instead of duplicating
	require.NoError(t, Seed(ctx, store, now))

	threads, err := store.ListThreads(ctx)
	require.NoError(t, err)
	assert.Len(t, threads, 6)

	staff, err := store.ListParticipants(ctx)
	require.NoError(t, err)
	assert.Len(t, staff, 4)

	admin, err := store.GetParticipant(ctx, Carla.ID)
	require.NoError(t, err)
	assert.True(t, admin.IsAdmin)

	client, err := store.GetClient(ctx, Ricardo.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ClientProspect, client.Status)

	thread, found, err := store.FindThreadByExternalChat(ctx, models.SourceWhatsApp, "5511999990000@c.us")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "cli-marina", thread.ID)
}
