package chesspresenter

import (
	"github.com/park285/chess-session-api/internal/domain"
	"github.com/park285/chess-session-api/internal/session"
	"github.com/park285/chess-session-api/pkg/chessdto"
)

// OpeningNamer names the opening reached by a move sequence.
type OpeningNamer interface {
	Opening(initialFEN string, movesUCI []string) (code, name string)
}

func ToDTOCreated(g *domain.GameSession) *chessdto.CreateGameResponse {
	if g == nil {
		return nil
	}
	return &chessdto.CreateGameResponse{GameID: g.ID, FEN: g.FEN, Status: string(g.Status)}
}

// ToDTOGame converts a stored session. namer may be nil.
func ToDTOGame(g *domain.GameSession, namer OpeningNamer) *chessdto.Game {
	if g == nil {
		return nil
	}
	moves := make([]chessdto.Move, 0, len(g.Moves))
	uci := make([]string, 0, len(g.Moves))
	for _, m := range g.Moves {
		moves = append(moves, ToDTOMove(m))
		uci = append(uci, m.UCI)
	}
	out := &chessdto.Game{
		GameID:     g.ID,
		FEN:        g.FEN,
		InitialFEN: g.InitialFEN,
		Status:     string(g.Status),
		Moves:      moves,
		Players:    chessdto.Players{White: copyStr(g.Players.White), Black: copyStr(g.Players.Black)},
		CreatedBy:  copyStr(g.CreatedBy),
		CreatedAt:  g.CreatedAt,
		UpdatedAt:  g.UpdatedAt,
		Version:    g.Version,
	}
	if namer != nil {
		if code, name := namer.Opening(g.InitialFEN, uci); code != "" {
			out.Opening = &chessdto.Opening{ECO: code, Name: name}
		}
	}
	return out
}

func ToDTOGames(player string, list []*domain.GameSession, namer OpeningNamer) *chessdto.GameList {
	out := &chessdto.GameList{Player: player, Games: make([]chessdto.Game, 0, len(list))}
	for _, g := range list {
		if dto := ToDTOGame(g, namer); dto != nil {
			out.Games = append(out.Games, *dto)
		}
	}
	return out
}

func ToDTOMove(m domain.MoveRecord) chessdto.Move {
	return chessdto.Move{
		SAN:       m.SAN,
		UCI:       m.UCI,
		From:      m.From,
		To:        m.To,
		Piece:     m.Piece,
		Color:     m.Color,
		Promotion: copyStr(m.Promotion),
		FEN:       m.FEN,
		Timestamp: m.Timestamp,
	}
}

func ToDTOMoveOutcome(o *session.MoveOutcome) *chessdto.MoveResponse {
	if o == nil {
		return nil
	}
	return &chessdto.MoveResponse{
		GameID: o.GameID,
		FEN:    o.FEN,
		Status: string(o.Status),
		Move:   ToDTOMove(o.Move),
	}
}

func copyStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
