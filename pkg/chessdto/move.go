package chessdto

import "time"

type Move struct {
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

type MoveResponse struct {
	GameID string `json:"gameId"`
	FEN    string `json:"fen"`
	Status string `json:"status"`
	Move   Move   `json:"move"`
}
