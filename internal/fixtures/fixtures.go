// Package fixtures holds the demo staff, clients and conversations used by
// demo mode, cmd/migrate -seed and tests.
package fixtures

import (
	"context"
	"fmt"
	"time"

	"furnidesk/internal/models"
)

var (
	Ana    = models.Participant{ID: "u-ana", Name: "Ana Lima", Role: "sales"}
	Bruno  = models.Participant{ID: "u-bruno", Name: "Bruno Costa", Role: "workshop"}
	Carla  = models.Participant{ID: "u-carla", Name: "Carla Mendes", Role: "manager", IsAdmin: true}
	Daniel = models.Participant{ID: "u-daniel", Name: "Daniel Rocha", Role: "delivery"}

	Marina  = models.ClientReference{ID: "cl-marina", Name: "Marina Souza", Status: models.ClientActive, Phone: "5511999990000"}
	Ricardo = models.ClientReference{ID: "cl-ricardo", Name: "Ricardo Alves", Status: models.ClientProspect, Phone: "5511988881111"}
	Helena  = models.ClientReference{ID: "cl-helena", Name: "Helena Prado", Status: models.ClientInactive}
)

// Staff returns the demo users.
func Staff() []models.Participant {
	return []models.Participant{Ana, Bruno, Carla, Daniel}
}

func Clients() []models.ClientReference {
	return []models.ClientReference{Marina, Ricardo, Helena}
}

// contact is the thread participant standing for a client on WhatsApp.
func contact(c models.ClientReference) models.Participant {
	return models.Participant{ID: models.SourceWhatsApp + ":" + c.Phone, Name: c.Name, Role: "client"}
}

func chatID(c models.ClientReference) string {
	return c.Phone + "@c.us"
}

func ref(c models.ClientReference) *models.ClientReference {
	out := c
	return &out
}

// Threads builds the demo conversations with timestamps relative to now.
func Threads(now time.Time) []models.Thread {
	at := func(ago time.Duration) time.Time { return now.Add(-ago).UTC() }
	msg := func(threadID, id string, sender models.Participant, content string, ago time.Duration, status models.MessageStatus) models.Message {
		return models.Message{
			ID:         threadID + "-" + id,
			ThreadID:   threadID,
			SenderID:   sender.ID,
			SenderName: sender.Name,
			Content:    content,
			CreatedAt:  at(ago),
			Status:     status,
		}
	}

	workshop := models.Thread{
		ID:           "grp-workshop",
		Type:         models.ThreadGroup,
		Name:         "Workshop",
		Participants: []models.Participant{Ana, Bruno, Carla},
		Messages: []models.Message{
			msg("grp-workshop", "1", Carla, "Sofa order for Marina needs to ship Friday", 26*time.Hour, models.StatusRead),
			msg("grp-workshop", "2", Bruno, "Frame is done, upholstery starts tomorrow", 25*time.Hour, models.StatusRead),
			msg("grp-workshop", "3", Bruno, "Varnish on the oak table is dry", 2*time.Hour, models.StatusDelivered),
		},
		UnreadCount:  1,
		Pinned:       true,
		LastActivity: at(2 * time.Hour),
		CreatedAt:    at(30 * 24 * time.Hour),
		CreatedBy:    Carla.ID,
	}
	workshop.Messages[2].IsImportant = true

	deliveries := models.Thread{
		ID:           "grp-deliveries",
		Type:         models.ThreadGroup,
		Name:         "Deliveries",
		Participants: []models.Participant{Ana, Daniel, Carla},
		Messages: []models.Message{
			{ID: "grp-deliveries-0", ThreadID: "grp-deliveries", Content: "Daniel Rocha joined", CreatedAt: at(10 * 24 * time.Hour), Status: models.StatusRead, IsSystem: true},
			msg("grp-deliveries", "1", Daniel, "Truck is booked for Thursday morning", 3*24*time.Hour, models.StatusRead),
		},
		Muted:        true,
		LastActivity: at(3 * 24 * time.Hour),
		CreatedAt:    at(10 * 24 * time.Hour),
		CreatedBy:    Carla.ID,
	}

	direct := models.Thread{
		ID:           "dm-ana-bruno",
		Type:         models.ThreadDirect,
		Name:         "Ana Lima / Bruno Costa",
		Participants: []models.Participant{Ana, Bruno},
		Messages: []models.Message{
			msg("dm-ana-bruno", "1", Ana, "Can you send me the fabric samples?", 5*time.Hour, models.StatusRead),
			msg("dm-ana-bruno", "2", Bruno, "Left them on your desk", 4*time.Hour, models.StatusRead),
		},
		LastActivity: at(4 * time.Hour),
		CreatedAt:    at(60 * 24 * time.Hour),
		CreatedBy:    Ana.ID,
	}
	direct.Messages[1].ReplyTo = &models.ReplyRef{ID: "dm-ana-bruno-1", Content: "Can you send me the fabric samples?", SenderName: Ana.Name}

	marina := contact(Marina)
	marinaChat := models.Thread{
		ID:           "cli-marina",
		Type:         models.ThreadClient,
		Name:         Marina.Name,
		Participants: []models.Participant{marina},
		Messages: []models.Message{
			msg("cli-marina", "1", marina, "Hi! Is my sofa ready?", 90*time.Minute, models.StatusRead),
			msg("cli-marina", "2", Ana, "Almost! Upholstery starts tomorrow", 80*time.Minute, models.StatusRead),
			msg("cli-marina", "3", Ana, "Confirm the Friday slot with Daniel", 75*time.Minute, models.StatusSent),
			msg("cli-marina", "4", marina, "Great, Friday works for me", 20*time.Minute, models.StatusDelivered),
		},
		UnreadCount:    1,
		Client:         ref(Marina),
		Sources:        []string{models.SourceWhatsApp},
		ExternalChatID: chatID(Marina),
		LastActivity:   at(20 * time.Minute),
		CreatedAt:      at(14 * 24 * time.Hour),
	}
	marinaChat.Messages[0].Source = models.SourceWhatsApp
	marinaChat.Messages[1].Source = models.SourceWhatsApp
	marinaChat.Messages[2].IsInternalNote = true
	marinaChat.Messages[3].Source = models.SourceWhatsApp

	ricardo := contact(Ricardo)
	ricardoChat := models.Thread{
		ID:           "cli-ricardo",
		Type:         models.ThreadClient,
		Name:         Ricardo.Name,
		Participants: []models.Participant{ricardo},
		Messages: []models.Message{
			msg("cli-ricardo", "1", ricardo, "Do you make custom bookshelves?", 2*24*time.Hour, models.StatusDelivered),
		},
		UnreadCount:    1,
		Client:         ref(Ricardo),
		Sources:        []string{models.SourceWhatsApp},
		ExternalChatID: chatID(Ricardo),
		LastActivity:   at(2 * 24 * time.Hour),
		CreatedAt:      at(2 * 24 * time.Hour),
	}
	ricardoChat.Messages[0].Source = models.SourceWhatsApp

	helenaChat := models.Thread{
		ID:           "cli-helena",
		Type:         models.ThreadClient,
		Name:         Helena.Name,
		Participants: []models.Participant{},
		Messages: []models.Message{
			msg("cli-helena", "1", Ana, "Helena paid the final invoice, closing this out", 40*24*time.Hour, models.StatusSent),
		},
		Client:       ref(Helena),
		LastActivity: at(40 * 24 * time.Hour),
		CreatedAt:    at(90 * 24 * time.Hour),
	}
	helenaChat.Messages[0].IsInternalNote = true

	return []models.Thread{workshop, deliveries, direct, marinaChat, ricardoChat, helenaChat}
}

// Store is what Seed writes to.
type Store interface {
	SaveParticipant(ctx context.Context, p models.Participant) error
	SaveClient(ctx context.Context, c models.ClientReference) error
	SaveThread(ctx context.Context, thread models.Thread) error
}

// Seed writes the demo directory and conversations. Existing records with
// the same ids are overwritten.
func Seed(ctx context.Context, store Store, now time.Time) error {
	for _, p := range Staff() {
		if err := store.SaveParticipant(ctx, p); err != nil {
			return fmt.Errorf("failed to seed participant %s: %w", p.ID, err)
		}
	}
	for _, c := range Clients() {
		if err := store.SaveClient(ctx, c); err != nil {
			return fmt.Errorf("failed to seed client %s: %w", c.ID, err)
		}
	}
	for _, t := range Threads(now) {
		if err := store.SaveThread(ctx, t); err != nil {
			return fmt.Errorf("failed to seed thread %s: %w", t.ID, err)
		}
	}
	return nil
}
