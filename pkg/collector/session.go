package collector

import (
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle position of a collector session.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateActive
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateActive:
		return "active"
	default:
		return "uninitialized"
	}
}

// Session is the per-page-load identity and bookkeeping.
type Session struct {
	ID           string
	CreatedAt    time.Time
	State        State
	LastSendTime time.Time // zero until the first delivered flush
	RetryCount   int       // consecutive terminal failures, capped at maxRetries
}

func newSession(now time.Time) Session {
	return Session{ID: uuid.NewString(), CreatedAt: now}
}
