package chat

import (
	"testing"
	"time"

	"furnidesk/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC)

func sampleThreads() []models.Thread {
	return []models.Thread{
		{
			ID:           "c1",
			Type:         models.ThreadClient,
			Name:         "Maria Silva",
			Client:       &models.ClientReference{ID: "cl1", Name: "Maria Silva", Status: models.ClientActive},
			LastActivity: now.Add(-2 * time.Hour),
		},
		{
			ID:           "g1",
			Type:         models.ThreadGroup,
			Name:         "Produção",
			Participants: []models.Participant{{ID: "u1", Name: "Ana"}, {ID: "u2", Name: "Mariana Costa"}},
			UnreadCount:  3,
			LastActivity: now.Add(-30 * time.Minute),
		},
		{
			ID:           "d1",
			Type:         models.ThreadDirect,
			Name:         "Carlos",
			Participants: []models.Participant{{ID: "u1", Name: "Ana"}, {ID: "u3", Name: "Carlos"}},
			Pinned:       true,
			LastActivity: now.Add(-72 * time.Hour),
		},
		{
			ID:           "c2",
			Type:         models.ThreadClient,
			Name:         "Pedro Alves",
			Client:       &models.ClientReference{ID: "cl2", Name: "Loja Pedro", Status: models.ClientProspect},
			LastActivity: now.Add(-5 * time.Minute),
		},
	}
}

func ids(threads []models.Thread) []string {
	out := make([]string, len(threads))
	for i, t := range threads {
		out[i] = t.ID
	}
	return out
}

func TestSelectVisible_Filters(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{
			name:   "no filter sorts pinned, unread, recent",
			filter: Filter{},
			want:   []string{"d1", "g1", "c2", "c1"},
		},
		{
			name:   "type all passes everything",
			filter: Filter{TypeFilter: TypeAll},
			want:   []string{"d1", "g1", "c2", "c1"},
		},
		{
			name:   "search matches participant name case-insensitively",
			filter: Filter{SearchTerm: "MARIAN"},
			want:   []string{"g1"},
		},
		{
			name:   "search matches linked client name",
			filter: Filter{SearchTerm: "loja"},
			want:   []string{"c2"},
		},
		{
			name:   "search maria with client type",
			filter: Filter{SearchTerm: "maria", TypeFilter: "client"},
			want:   []string{"c1"},
		},
		{
			name:   "unread only",
			filter: Filter{UnreadOnly: true},
			want:   []string{"g1"},
		},
		{
			name:   "recent only drops stale threads",
			filter: Filter{RecentOnly: true},
			want:   []string{"g1", "c2", "c1"},
		},
		{
			name:   "facets combine with and",
			filter: Filter{PinnedOnly: true, RecentOnly: true},
			want:   []string{},
		},
		{
			name:   "whitespace search is ignored",
			filter: Filter{SearchTerm: "   "},
			want:   []string{"d1", "g1", "c2", "c1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectVisible(sampleThreads(), tt.filter, now)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestSelectVisible_SubsetOfMatchingThreads(t *testing.T) {
	threads := sampleThreads()
	filters := []Filter{
		{},
		{SearchTerm: "a"},
		{TypeFilter: "group"},
		{PinnedOnly: true},
		{UnreadOnly: true, SearchTerm: "prod"},
		{RecentOnly: true, TypeFilter: "client"},
	}

	for _, f := range filters {
		got := SelectVisible(threads, f, now)
		gotIDs := ids(got)

		for _, th := range threads {
			if f.Matches(th, now) {
				assert.Contains(t, gotIDs, th.ID, "filter %+v", f)
			} else {
				assert.NotContains(t, gotIDs, th.ID, "filter %+v", f)
			}
		}
	}
}

func TestSelectVisible_Idempotent(t *testing.T) {
	threads := sampleThreads()
	// two threads that tie on every sort key
	threads = append(threads,
		models.Thread{ID: "t1", Type: models.ThreadGroup, Name: "A", LastActivity: now.Add(-time.Hour)},
		models.Thread{ID: "t2", Type: models.ThreadGroup, Name: "B", LastActivity: now.Add(-time.Hour)},
	)

	first := SelectVisible(threads, Filter{}, now)
	second := SelectVisible(threads, Filter{}, now)
	assert.Equal(t, ids(first), ids(second))

	again := SelectVisible(first, Filter{}, now)
	assert.Equal(t, ids(first), ids(again))

	// ties keep input order
	assert.Less(t, indexOf(ids(first), "t1"), indexOf(ids(first), "t2"))
}

func indexOf(list []string, id string) int {
	for i, v := range list {
		if v == id {
			return i
		}
	}
	return -1
}

func TestSelectVisible_PinnedFilterAfterToggle(t *testing.T) {
	a := models.Thread{ID: "A", Type: models.ThreadGroup, Name: "A"}
	b := models.Thread{ID: "B", Type: models.ThreadGroup, Name: "B"}

	a = TogglePin(a)

	got := SelectVisible([]models.Thread{a, b}, Filter{PinnedOnly: true}, now)
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].ID)
}

func TestSelectVisible_Empty(t *testing.T) {
	assert.Empty(t, SelectVisible(nil, Filter{}, now))
	assert.Empty(t, SelectVisible(sampleThreads(), Filter{SearchTerm: "nobody"}, now))
}

func TestIsRecent_Boundary(t *testing.T) {
	assert.True(t, IsRecent(models.Thread{LastActivity: now.Add(-RecentWindow)}, now))
	assert.False(t, IsRecent(models.Thread{LastActivity: now.Add(-RecentWindow - time.Second)}, now))
	assert.False(t, IsRecent(models.Thread{}, now))
}

func TestBuildList_EmptyState(t *testing.T) {
	t.Run("filtered out offers clear filters", func(t *testing.T) {
		list := BuildList(sampleThreads(), Filter{SearchTerm: "nobody"}, now)
		assert.True(t, list.Empty)
		assert.True(t, list.FiltersActive)
		assert.True(t, list.ClearFilters)
		assert.Equal(t, 4, list.Total)
	})

	t.Run("no threads at all", func(t *testing.T) {
		list := BuildList(nil, Filter{}, now)
		assert.True(t, list.Empty)
		assert.False(t, list.ClearFilters)
	})

	t.Run("results present", func(t *testing.T) {
		list := BuildList(sampleThreads(), Filter{TypeFilter: "group"}, now)
		assert.False(t, list.Empty)
		assert.True(t, list.FiltersActive)
		assert.False(t, list.ClearFilters)
	})
}
