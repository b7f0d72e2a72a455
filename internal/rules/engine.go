// Package rules adapts github.com/corentings/chess to the domain.Rules capability.
package rules

import (
	"fmt"
	"strings"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/corentings/chess/v2/opening"
	"github.com/park285/chess-session-api/internal/domain"
)

var (
	ecoOnce sync.Once
	ecoBook *opening.BookECO
)

// Engine is stateless; every Load builds an independent board.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// Load parses a full six-field FEN string and replays the UCI moves played
// since it, so repetition draws see every earlier position.
func (e *Engine) Load(position string, replay []string) (b domain.Board, err error) {
	text := strings.TrimSpace(position)
	if text == "" {
		return nil, fmt.Errorf("%w: empty position", domain.ErrInvalidPosition)
	}
	defer func() {
		if r := recover(); r != nil {
			b, err = nil, fmt.Errorf("%w: %v", domain.ErrInvalidPosition, r)
		}
	}()
	opt, ferr := nchess.FEN(text)
	if ferr != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPosition, ferr)
	}
	game := nchess.NewGame(opt)
	notation := nchess.UCINotation{}
	for i, mv := range replay {
		move, derr := notation.Decode(game.Position(), strings.ToLower(strings.TrimSpace(mv)))
		if derr == nil {
			derr = game.Move(move, nil)
		}
		if derr != nil {
			return nil, fmt.Errorf("%w: replay move %d %q: %v", domain.ErrInvalidPosition, i+1, mv, derr)
		}
	}
	return &board{game: game}, nil
}

// Opening returns the ECO code and title matching a move sequence played from
// the standard start. Custom starts and unknown lines yield empty strings.
func (e *Engine) Opening(initialFEN string, movesUCI []string) (string, string) {
	if initialFEN != "" && initialFEN != domain.StartFEN {
		return "", ""
	}
	if len(movesUCI) == 0 {
		return "", ""
	}
	game := nchess.NewGame()
	notation := nchess.UCINotation{}
	for _, mv := range movesUCI {
		move, err := notation.Decode(game.Position(), strings.ToLower(strings.TrimSpace(mv)))
		if err != nil {
			return "", ""
		}
		if err := game.Move(move, nil); err != nil {
			return "", ""
		}
	}
	ecoOnce.Do(func() { ecoBook = opening.NewBookECO() })
	if ecoBook == nil {
		return "", ""
	}
	if eco := ecoBook.Find(game.Moves()); eco != nil {
		return eco.Code(), eco.Title()
	}
	return "", ""
}

type board struct {
	game *nchess.Game
}

func (b *board) Apply(move string) (*domain.MoveResult, error) {
	text := strings.TrimSpace(move)
	if text == "" {
		return nil, fmt.Errorf("%w: empty move", domain.ErrIllegalMove)
	}
	notationSAN := nchess.AlgebraicNotation{}
	notationUCI := nchess.UCINotation{}
	pos := b.game.Position()
	mv, err := notationSAN.Decode(pos, text)
	if err != nil {
		mv, err = notationUCI.Decode(pos, strings.ToLower(text))
		if err != nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrIllegalMove, text)
		}
	}
	if err := b.game.Move(mv, nil); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrIllegalMove, text)
	}

	res := &domain.MoveResult{
		SAN:   notationSAN.Encode(pos, mv),
		UCI:   strings.ToLower(notationUCI.Encode(pos, mv)),
		From:  mv.S1().String(),
		To:    mv.S2().String(),
		Piece: pieceToken(pos.Board().Piece(mv.S1()).Type()),
		Color: colorToken(pos.Turn()),
	}
	if mv.Promo() != nchess.NoPieceType {
		res.Promotion = pieceToken(mv.Promo())
	}
	return res, nil
}

func (b *board) Classify() domain.Status {
	switch b.game.Position().Status() {
	case nchess.Checkmate:
		return domain.StatusCheckmate
	case nchess.Stalemate:
		return domain.StatusStalemate
	}
	if b.game.Outcome() == nchess.Draw || insufficientMaterial(b.game.Position().Board()) {
		return domain.StatusDraw
	}
	// the library only auto-draws at fivefold and 75 moves; threefold and
	// 50 moves are claimable draws
	for _, method := range b.game.EligibleDraws() {
		if method == nchess.ThreefoldRepetition || method == nchess.FiftyMoveRule {
			return domain.StatusDraw
		}
	}
	return domain.StatusOngoing
}

func (b *board) FEN() string { return b.game.FEN() }

// insufficientMaterial covers bare kings and a single minor piece; the
// library's own check only runs after a move has been played.
func insufficientMaterial(bd *nchess.Board) bool {
	minors := 0
	for _, piece := range bd.SquareMap() {
		switch piece.Type() {
		case nchess.King:
		case nchess.Knight, nchess.Bishop:
			minors++
		default:
			return false
		}
	}
	return minors <= 1
}

func pieceToken(pt nchess.PieceType) string {
	switch pt {
	case nchess.King:
		return "k"
	case nchess.Queen:
		return "q"
	case nchess.Rook:
		return "r"
	case nchess.Bishop:
		return "b"
	case nchess.Knight:
		return "n"
	case nchess.Pawn:
		return "p"
	}
	return ""
}

func colorToken(c nchess.Color) string {
	if c == nchess.White {
		return "w"
	}
	return "b"
}
