package conversation

import (
	"maps"
	"time"
)

// Key identifies a session. One reporter may hold separate sessions in
// different channels.
type Key struct {
	UserID    string
	ChannelID string
}

func (k Key) String() string {
	return k.ChannelID + "/" + k.UserID
}

// Session is the in-progress state of one reporter's conversation.
type Session struct {
	Key       Key
	State     State
	Answers   map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
	Completed bool
}

func newSession(key Key, now time.Time) Session {
	return Session{
		Key:       key,
		State:     InitialState,
		Answers:   map[string]string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s Session) clone() Session {
	s.Answers = maps.Clone(s.Answers)
	if s.Answers == nil {
		s.Answers = map[string]string{}
	}
	return s
}

// IdleSince reports whether the session saw no activity after cutoff.
func (s Session) IdleSince(cutoff time.Time) bool {
	return s.UpdatedAt.Before(cutoff)
}
