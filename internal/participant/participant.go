package participant

import (
	"fmt"
	"time"

	"golang.org/x/text/cases"
)

// Suspicion is the moderation state of a participant.
type Suspicion int

const (
	Unreviewed Suspicion = iota
	Whitelisted
	Blacklisted
)

func (s Suspicion) String() string {
	switch s {
	case Unreviewed:
		return "unreviewed"
	case Whitelisted:
		return "whitelisted"
	case Blacklisted:
		return "blacklisted"
	}
	return fmt.Sprintf("suspicion(%d)", int(s))
}

// ParseSuspicion is the inverse of Suspicion.String.
func ParseSuspicion(s string) (Suspicion, error) {
	switch s {
	case "unreviewed":
		return Unreviewed, nil
	case "whitelisted":
		return Whitelisted, nil
	case "blacklisted":
		return Blacklisted, nil
	}
	return Unreviewed, fmt.Errorf("participant: unknown suspicion %q", s)
}

// Participant is a registered account.
type Participant struct {
	ID            string
	Username      string // as typed at registration
	UsernameLower string // canonical lookup key
	IsAdmin       bool
	Suspicion     Suspicion

	SessionToken   string
	SessionExpires time.Time

	APIKey       string
	PasswordHash string

	CreatedAt time.Time
}

// NewParticipant holds the fields a caller chooses when registering.
type NewParticipant struct {
	Username     string
	IsAdmin      bool
	Suspicion    Suspicion
	PasswordHash string
}

// Canonical returns the lookup key for a username.
func Canonical(username string) string {
	return cases.Fold().String(username)
}
