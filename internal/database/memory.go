package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"furnidesk/internal/errors"
	"furnidesk/internal/models"
)

// MemoryStore keeps threads and the directory in process memory. It backs
// demo mode and tests; contents are lost on restart.
type MemoryStore struct {
	mu           sync.RWMutex
	threads      map[string]models.Thread
	order        []string
	participants map[string]models.Participant
	clients      map[string]models.ClientReference
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		threads:      make(map[string]models.Thread),
		participants: make(map[string]models.Participant),
		clients:      make(map[string]models.ClientReference),
	}
}

func (s *MemoryStore) SaveThread(_ context.Context, thread models.Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[thread.ID]; !ok {
		s.order = append(s.order, thread.ID)
	}
	s.threads[thread.ID] = thread.Clone()
	return nil
}

func (s *MemoryStore) GetThread(_ context.Context, threadID string) (models.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[threadID]
	if !ok {
		return models.Thread{}, errors.NewThreadNotFoundError(threadID)
	}
	return t.Clone(), nil
}

func (s *MemoryStore) ListThreads(_ context.Context) ([]models.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Thread, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.threads[id].Clone())
	}
	return out, nil
}

func (s *MemoryStore) DeleteThread(_ context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[threadID]; !ok {
		return nil
	}
	delete(s.threads, threadID)
	for i, id := range s.order {
		if id == threadID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) FindThreadByExternalChat(_ context.Context, source, chatID string) (models.Thread, bool, error) {
	if chatID == "" {
		return models.Thread{}, false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		t := s.threads[id]
		if t.ExternalChatID == chatID && t.HasSource(source) {
			return t.Clone(), true, nil
		}
	}
	return models.Thread{}, false, nil
}

func (s *MemoryStore) FindMessageByExternalID(_ context.Context, externalID string) (string, string, bool, error) {
	if externalID == "" {
		return "", "", false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		for _, m := range s.threads[id].Messages {
			if m.ExternalID == externalID {
				return id, m.ID, true, nil
			}
		}
	}
	return "", "", false, nil
}

func (s *MemoryStore) CountStaleMessages(_ context.Context, threshold time.Duration) (int, error) {
	cutoff := time.Now().Add(-threshold)
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, t := range s.threads {
		for _, m := range t.Messages {
			if m.Status == models.StatusSending && m.CreatedAt.Before(cutoff) {
				count++
			}
		}
	}
	return count, nil
}

func (s *MemoryStore) SaveParticipant(_ context.Context, p models.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.IsOnline = false
	s.participants[p.ID] = p
	return nil
}

func (s *MemoryStore) GetParticipant(_ context.Context, participantID string) (models.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[participantID]
	if !ok {
		return models.Participant{}, errors.NewNotFoundError("participant", participantID)
	}
	return p, nil
}

func (s *MemoryStore) ListParticipants(_ context.Context) ([]models.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Participant, 0, len(s.participants))
	for _, p := range s.participants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) SaveClient(_ context.Context, c models.ClientReference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.ID] = c
	return nil
}

func (s *MemoryStore) GetClient(_ context.Context, clientID string) (models.ClientReference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[clientID]
	if !ok {
		return models.ClientReference{}, errors.NewNotFoundError("client", clientID)
	}
	return c, nil
}
