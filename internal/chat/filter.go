package chat

import (
	"sort"
	"strings"
	"time"

	"furnidesk/internal/models"
)

// TypeAll disables the thread type filter.
const TypeAll = "all"

// RecentWindow is how far back LastActivity may lie for a thread to count as recent.
const RecentWindow = 24 * time.Hour

// Filter narrows the thread list. All active criteria must hold.
type Filter struct {
	SearchTerm string `json:"searchTerm"`
	TypeFilter string `json:"typeFilter"`
	PinnedOnly bool   `json:"pinnedOnly"`
	UnreadOnly bool   `json:"unreadOnly"`
	RecentOnly bool   `json:"recentOnly"`
}

// Active reports whether any criterion narrows the list.
func (f Filter) Active() bool {
	return strings.TrimSpace(f.SearchTerm) != "" ||
		(f.TypeFilter != "" && f.TypeFilter != TypeAll) ||
		f.PinnedOnly || f.UnreadOnly || f.RecentOnly
}

// Matches reports whether t satisfies every active criterion.
func (f Filter) Matches(t models.Thread, now time.Time) bool {
	if !matchesSearch(t, f.SearchTerm) {
		return false
	}
	if f.TypeFilter != "" && f.TypeFilter != TypeAll && string(t.Type) != f.TypeFilter {
		return false
	}
	if f.PinnedOnly && !t.Pinned {
		return false
	}
	if f.UnreadOnly && t.UnreadCount <= 0 {
		return false
	}
	if f.RecentOnly && !IsRecent(t, now) {
		return false
	}
	return true
}

// IsRecent reports whether the thread saw activity within RecentWindow of now.
func IsRecent(t models.Thread, now time.Time) bool {
	if t.LastActivity.IsZero() {
		return false
	}
	return !t.LastActivity.Before(now.Add(-RecentWindow))
}

func matchesSearch(t models.Thread, term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	if strings.Contains(strings.ToLower(t.Name), term) {
		return true
	}
	for _, p := range t.Participants {
		if strings.Contains(strings.ToLower(p.Name), term) {
			return true
		}
	}
	return t.Client != nil && strings.Contains(strings.ToLower(t.Client.Name), term)
}

// SelectVisible returns the threads matching f in display order: pinned
// first, then unread, then most recent activity. Ties keep their input order.
func SelectVisible(threads []models.Thread, f Filter, now time.Time) []models.Thread {
	visible := make([]models.Thread, 0, len(threads))
	for _, t := range threads {
		if f.Matches(t, now) {
			visible = append(visible, t)
		}
	}

	sort.SliceStable(visible, func(i, j int) bool {
		a, b := visible[i], visible[j]
		if a.Pinned != b.Pinned {
			return a.Pinned
		}
		aUnread, bUnread := a.UnreadCount > 0, b.UnreadCount > 0
		if aUnread != bUnread {
			return aUnread
		}
		return a.LastActivity.After(b.LastActivity)
	})
	return visible
}

// ThreadList is a filtered thread list ready for display. When nothing is
// visible because of active filters, ClearFilters tells the view to offer a
// way to reset them.
type ThreadList struct {
	Threads       []models.Thread `json:"threads"`
	Filter        Filter          `json:"filter"`
	Total         int             `json:"total"`
	Empty         bool            `json:"empty"`
	FiltersActive bool            `json:"filtersActive"`
	ClearFilters  bool            `json:"clearFilters"`
}

func BuildList(threads []models.Thread, f Filter, now time.Time) ThreadList {
	visible := SelectVisible(threads, f, now)
	active := f.Active()
	return ThreadList{
		Threads:       visible,
		Filter:        f,
		Total:         len(threads),
		Empty:         len(visible) == 0,
		FiltersActive: active,
		ClearFilters:  len(visible) == 0 && active,
	}
}
