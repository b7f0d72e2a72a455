package chessdto

import "time"

// Event is one frame of the live game feed.
type Event struct {
	Type   string    `json:"type"`
	GameID string    `json:"gameId"`
	FEN    string    `json:"fen"`
	Status string    `json:"status"`
	Move   *Move     `json:"move,omitempty"`
	At     time.Time `json:"at"`
}
