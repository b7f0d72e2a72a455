package chessdto

import "time"

type Players struct {
	White *string `json:"white"`
	Black *string `json:"black"`
}

type Opening struct {
	ECO  string `json:"eco"`
	Name string `json:"name"`
}

type CreateGameResponse struct {
	GameID string `json:"gameId"`
	FEN    string `json:"fen"`
	Status string `json:"status"`
}

type Game struct {
	GameID     string    `json:"gameId"`
	FEN        string    `json:"fen"`
	InitialFEN string    `json:"initialFen"`
	Status     string    `json:"status"`
	Moves      []Move    `json:"moves"`
	Players    Players   `json:"players"`
	CreatedBy  *string   `json:"createdBy"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	Version    int64     `json:"version"`
	Opening    *Opening  `json:"opening,omitempty"`
}

type GameList struct {
	Player string `json:"player"`
	Games  []Game `json:"games"`
}

type ValidateResponse struct {
	FEN     string  `json:"fen"`
	IsValid bool    `json:"isValid"`
	Error   *string `json:"error"`
}

type Health struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type HealthCheck struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Data       any    `json:"data"`
	StatusCode int    `json:"statusCode"`
}
