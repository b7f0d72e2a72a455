package domain

import "time"

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Status classifies a position. It is always derived, never chosen by a caller.
type Status string

const (
	StatusOngoing   Status = "ongoing"
	StatusCheckmate Status = "checkmate"
	StatusStalemate Status = "stalemate"
	StatusDraw      Status = "draw"
)

// Terminal reports whether no further play is expected from a position with this status.
func (s Status) Terminal() bool {
	return s == StatusCheckmate || s == StatusStalemate || s == StatusDraw
}

// Players holds the participant identifiers. Either side may be unset.
type Players struct {
	White *string `json:"white"`
	Black *string `json:"black"`
}

// MoveRecord is one accepted move. Records are appended and never modified.
type MoveRecord struct {
	SAN       string    `json:"san"`
	UCI       string    `json:"uci"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Piece     string    `json:"piece"`
	Color     string    `json:"color"`
	Promotion *string   `json:"promotion"`
	FEN       string    `json:"fen"`
	Timestamp time.Time `json:"timestamp"`
}

// GameSession is the authoritative record of one game as kept by a SessionStore.
type GameSession struct {
	ID         string       `json:"id"`
	FEN        string       `json:"fen"`
	InitialFEN string       `json:"initial_fen"`
	Status     Status       `json:"status"`
	Moves      []MoveRecord `json:"moves"`
	Players    Players      `json:"players"`
	CreatedBy  *string      `json:"created_by"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
	Version    int64        `json:"version"`
}

// Clone returns a deep copy safe to hand out of a store.
func (g *GameSession) Clone() *GameSession {
	if g == nil {
		return nil
	}
	cp := *g
	cp.Moves = append([]MoveRecord(nil), g.Moves...)
	cp.Players = Players{White: cloneStr(g.Players.White), Black: cloneStr(g.Players.Black)}
	cp.CreatedBy = cloneStr(g.CreatedBy)
	return &cp
}

// LastMove returns the most recent record, or nil for a fresh session.
func (g *GameSession) LastMove() *MoveRecord {
	if g == nil || len(g.Moves) == 0 {
		return nil
	}
	mv := g.Moves[len(g.Moves)-1]
	return &mv
}

// SessionPatch is the single atomic change produced by an accepted move.
type SessionPatch struct {
	ExpectedVersion int64
	FEN             string
	Status          Status
	UpdatedAt       time.Time
	Append          MoveRecord
}

// Apply returns a copy of g with the patch applied. It does not check the version.
func (p SessionPatch) Apply(g *GameSession) *GameSession {
	next := g.Clone()
	next.FEN = p.FEN
	next.Status = p.Status
	next.UpdatedAt = p.UpdatedAt
	next.Moves = append(next.Moves, p.Append)
	next.Version = g.Version + 1
	return next
}

func cloneStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
