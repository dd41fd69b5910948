package store

// User is the persisted profile snapshot pushed by the identity provider.
type User struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	Username     string
	ProfileImage string
	CreatedAt    int64
	UpdatedAt    int64
}

// Chat is a persisted conversation between a fixed set of participants.
// ParticipantIDs is immutable after creation.
type Chat struct {
	ID             string
	Name           string
	CreatedBy      string
	IsGroup        bool
	LastMessage    string
	LastMessageAt  int64
	CreatedAt      int64
	UpdatedAt      int64
	ParticipantIDs []string
}

// Message is a persisted chat message. ReadBy holds the participant IDs
// that have read it; it always contains at least the author.
type Message struct {
	ID        string
	ChatID    string
	UserID    string
	Content   string
	ReadBy    []string
	CreatedAt int64
	UpdatedAt int64
}
