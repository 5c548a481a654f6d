// Package session implements the trip-entry conversation: an explicit
// per-user state machine that asks one question per step, validates each
// answer against the answers already collected, and commits the assembled
// entry through the ledger exactly once.
//
// The machine never blocks: every Handle call completes synchronously and
// the "suspend" between steps lives at the transport boundary.
package session

import (
	"time"

	"github.com/avoronkov/triplog-bot/internal/domain"
)

// State is the current step of a user's dialogue.
type State int

const (
	StateIdle State = iota
	StateWaitingStartTime
	StateWaitingOdometerStart
	StateWaitingEndTime
	StateWaitingOdometerEnd
	StateWaitingProject
	StateWaitingAddress
	StateWaitingComment
	StateWaitingConfirmation

	// Edit sub-flow: pick a field of the latest entry, then enter its
	// new value.
	StateEditFieldChoice
	StateEditNewValue
)

// Session is the ephemeral per-user accumulator. It is created on first
// interaction, filled monotonically as steps complete, and cleared on
// commit, cancellation, or abandonment. It is never persisted: a process
// restart loses in-flight sessions and the user restarts the flow.
type Session struct {
	State State

	StartTime     time.Time
	EndTime       time.Time
	OdometerStart int
	OdometerEnd   int
	Project       string
	Address       string
	Comment       string

	EditEntry domain.TripEntry
	EditField string
}
