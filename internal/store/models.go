package store

import "time"

// Mood is one of the seven fixed mood categories.
type Mood string

const (
	MoodHappy     Mood = "happy"
	MoodSad       Mood = "sad"
	MoodStressed  Mood = "stressed"
	MoodEnergetic Mood = "energetic"
	MoodCalm      Mood = "calm"
	MoodAngry     Mood = "angry"
	MoodLoved     Mood = "loved"
)

var validMoods = map[Mood]struct{}{
	MoodHappy:     {},
	MoodSad:       {},
	MoodStressed:  {},
	MoodEnergetic: {},
	MoodCalm:      {},
	MoodAngry:     {},
	MoodLoved:     {},
}

// ValidMood reports whether m is a member of the closed mood set.
func ValidMood(m Mood) bool {
	_, ok := validMoods[m]
	return ok
}

type User struct {
	ID           string
	DisplayName  string
	Email        string
	PasswordHash string
	AvatarURL    string
	// PartnerID is empty when the user is unlinked. When set, the
	// referenced user's own PartnerID points back here.
	PartnerID string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MoodEntry is append-only: no update or delete path exists.
type MoodEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Mood      Mood      `json:"mood"`
	Intensity int       `json:"intensity"`
	Note      string    `json:"note"`
	Timestamp time.Time `json:"timestamp"`
}
