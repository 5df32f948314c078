package models

// Participant is a member of a thread: a staff user or, in client threads,
// the external client contact.
type Participant struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar,omitempty"`
	IsOnline bool   `json:"isOnline"`
	Role     string `json:"role,omitempty"`
	IsAdmin  bool   `json:"isAdmin,omitempty"`
}

// GetDisplayName returns the best available display name
func (p Participant) GetDisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

type ClientStatus string

const (
	ClientProspect ClientStatus = "prospect"
	ClientActive   ClientStatus = "active"
	ClientInactive ClientStatus = "inactive"
)

func (s ClientStatus) Valid() bool {
	switch s {
	case ClientProspect, ClientActive, ClientInactive:
		return true
	}
	return false
}

// ClientReference links a thread to a customer record owned by the sales side.
type ClientReference struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Status ClientStatus `json:"status"`
	Phone  string       `json:"phone,omitempty"`
}

// Session identifies the user acting on the chat core. It is resolved per
// request and passed explicitly; it carries no authentication guarantees.
type Session struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	IsAdmin  bool   `json:"isAdmin"`
}

// SessionFor builds a session from a directory entry.
func SessionFor(p Participant) Session {
	return Session{UserID: p.ID, UserName: p.GetDisplayName(), IsAdmin: p.IsAdmin}
}

// AsParticipant returns the participant entry for the session user.
func (s Session) AsParticipant() Participant {
	return Participant{ID: s.UserID, Name: s.UserName, IsAdmin: s.IsAdmin}
}
