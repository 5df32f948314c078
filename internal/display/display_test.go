package display

import (
	"testing"
	"time"

	"furnidesk/internal/chat"
	"furnidesk/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Tuesday afternoon
var now = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

func TestTimestamp(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"zero", time.Time{}, ""},
		{"earlier today", time.Date(2026, 3, 10, 9, 5, 0, 0, time.UTC), "09:05"},
		{"midnight today", time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), "00:00"},
		{"yesterday", time.Date(2026, 3, 9, 23, 59, 0, 0, time.UTC), "Yesterday"},
		{"this week", time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC), "Saturday"},
		{"older", now.AddDate(0, 0, -20), "2 weeks ago"},
		{"clock skew", now.Add(time.Minute), "15:01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Timestamp(tt.at, now))
		})
	}
}

func TestSizeAndCounters(t *testing.T) {
	assert.Equal(t, "", Size(0))
	assert.Equal(t, "2.0 kB", Size(2048))
	assert.Equal(t, "1,234", Count(1234))

	assert.Equal(t, "", UnreadBadge(0))
	assert.Equal(t, "7", UnreadBadge(7))
	assert.Equal(t, "99+", UnreadBadge(150))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short text", Truncate("short   text", 20))
	assert.Equal(t, "abcd…", Truncate("abcdefgh", 5))
	assert.Equal(t, "cadeira…", Truncate("cadeira giratória", 8))
}

var (
	ana   = models.Participant{ID: "u-ana", Name: "Ana"}
	bruno = models.Participant{ID: "u-bruno", Name: "Bruno", IsOnline: true}
)

func TestPreview(t *testing.T) {
	session := models.SessionFor(ana)

	assert.Equal(t, "You: Sofa is ready", Preview(models.Message{SenderID: ana.ID, Content: "Sofa is ready"}, session))
	assert.Equal(t, "Sofa is ready", Preview(models.Message{SenderID: bruno.ID, Content: "Sofa is ready"}, session))
	assert.Equal(t, "Note: check the deposit", Preview(models.Message{SenderID: ana.ID, Content: "check the deposit", IsInternalNote: true}, session))
	assert.Equal(t, "Ana created the group Ops", Preview(models.Message{IsSystem: true, Content: "Ana created the group Ops"}, session))
	assert.Equal(t, "[image] sofa.jpg", Preview(models.Message{
		SenderID:    bruno.ID,
		Attachments: []models.Attachment{{Type: models.AttachmentImage, Name: "sofa.jpg"}},
	}, session))
}

func TestNewMessageView(t *testing.T) {
	session := models.SessionFor(ana)
	failed := models.Message{
		ID:          "m1",
		SenderID:    ana.ID,
		Content:     "Quote attached",
		CreatedAt:   now.Add(-time.Hour),
		Status:      models.StatusError,
		Attachments: []models.Attachment{{Type: models.AttachmentDocument, Name: "quote.pdf", Size: 2048}},
	}

	v := NewMessageView(failed, session, now)
	assert.True(t, v.Own)
	assert.True(t, v.CanRetry)
	assert.False(t, v.CanEdit)
	assert.Equal(t, "14:00", v.Time)
	require.Len(t, v.Attachments, 1)
	assert.Equal(t, "2.0 kB", v.Attachments[0].SizeLabel)

	other := NewMessageView(models.Message{ID: "m2", SenderID: bruno.ID, Status: models.StatusError}, session, now)
	assert.False(t, other.CanRetry)
	assert.False(t, other.CanEdit)
}

func TestNewThreadListView(t *testing.T) {
	session := models.SessionFor(ana)
	threads := []models.Thread{
		{
			ID:           "g1",
			Type:         models.ThreadGroup,
			Name:         "Workshop",
			Participants: []models.Participant{ana, bruno},
			UnreadCount:  3,
			LastActivity: now.Add(-2 * time.Hour),
			Messages: []models.Message{
				{ID: "m1", SenderID: bruno.ID, Content: "Varnish is dry", CreatedAt: now.Add(-2 * time.Hour)},
			},
		},
		{
			ID:           "d1",
			Type:         models.ThreadDirect,
			Name:         "Ana",
			Participants: []models.Participant{ana, {ID: "u-carla", Name: "Carla"}},
			LastActivity: now.AddDate(0, 0, -1),
		},
	}

	list := chat.BuildList(threads, chat.Filter{UnreadOnly: true}, now)
	v := NewThreadListView(list, session, now)

	require.Len(t, v.Threads, 1)
	item := v.Threads[0]
	assert.Equal(t, "g1", item.ID)
	assert.Equal(t, "3", item.UnreadLabel)
	assert.Equal(t, "13:00", item.Time)
	assert.Equal(t, "Varnish is dry", item.Preview)
	assert.True(t, item.Online)
	assert.Equal(t, 2, v.Total)
	assert.True(t, v.FiltersActive)
	assert.False(t, v.ClearFilters)
}

func TestNewThreadView(t *testing.T) {
	thread := models.Thread{
		ID:           "g1",
		Type:         models.ThreadGroup,
		Name:         "Workshop",
		Participants: []models.Participant{ana, bruno},
		Messages: []models.Message{
			{ID: "m1", SenderID: ana.ID, Content: "Hi", Status: models.StatusSent, CreatedAt: now},
			{ID: "m2", SenderID: bruno.ID, Content: "Hello", Status: models.StatusRead, CreatedAt: now},
		},
	}

	v := NewThreadView(thread, models.SessionFor(ana), now)
	assert.Nil(t, v.LastMessage)
	require.Len(t, v.Messages, 2)
	assert.True(t, v.Messages[0].CanEdit)
	assert.False(t, v.Messages[1].Own)
}
