package domain

import (
	"context"
	"time"
)

// Rules is the rules-engine capability the session core delegates to.
// Load fails with ErrInvalidPosition when it cannot parse position.
type Rules interface {
	Load(position string, replay []string) (Board, error)
}

// Board is one loaded position.
type Board interface {
	// Apply plays move and advances the board. An unplayable move yields
	// ErrIllegalMove and leaves the board untouched.
	Apply(move string) (*MoveResult, error)
	// Classify reports the status of the current position, checking
	// checkmate, then stalemate, then draw.
	Classify() Status
	// FEN serialises the current position.
	FEN() string
}

// MoveResult describes a move accepted by a Board.
type MoveResult struct {
	SAN       string
	UCI       string
	From      string
	To        string
	Piece     string
	Color     string
	Promotion string
}

// SessionStore persists GameSession records.
// Fetch and Update fail with ErrNotFound for unknown ids; Update fails with
// ErrConflict when the stored version differs from patch.ExpectedVersion.
type SessionStore interface {
	Create(ctx context.Context, g *GameSession) (string, error)
	Fetch(ctx context.Context, id string) (*GameSession, error)
	Update(ctx context.Context, id string, patch SessionPatch) error
	ListByPlayer(ctx context.Context, playerID string, limit int) ([]*GameSession, error)
}

// EventType labels live-feed events.
type EventType string

const (
	EventCreated  EventType = "created"
	EventMove     EventType = "move"
	EventSnapshot EventType = "snapshot"
)

// GameEvent is published after a change has been committed.
type GameEvent struct {
	Type   EventType   `json:"type"`
	GameID string      `json:"gameId"`
	FEN    string      `json:"fen"`
	Status Status      `json:"status"`
	Move   *MoveRecord `json:"move,omitempty"`
	At     time.Time   `json:"at"`
}
