package auth

import (
	"participant-auth/internal/participant"
)

// User is the identity a single request acts as. It is built fresh for
// every resolution and never persisted.
type User struct {
	participant *participant.Participant
}

// Anonymous returns a User with no participant.
func Anonymous() *User {
	return &User{}
}

func known(p *participant.Participant) *User {
	return &User{participant: p}
}

// Participant returns the resolved participant, or nil. A blacklisted
// participant is still returned; Anon reports the effective identity.
func (u *User) Participant() *participant.Participant {
	return u.participant
}

// Anon reports whether the user acts without an identity.
func (u *User) Anon() bool {
	if u.participant == nil {
		return true
	}

	switch u.participant.Suspicion {
	case participant.Blacklisted:
		return true
	case participant.Unreviewed, participant.Whitelisted:
		return false
	}
	return true
}

// Admin reports whether the user may act as an administrator.
func (u *User) Admin() bool {
	return !u.Anon() && u.participant.IsAdmin
}

// Username returns the participant's username, or "" for anonymous users.
func (u *User) Username() string {
	if u.Anon() {
		return ""
	}
	return u.participant.Username
}
