// Package archive keeps finished games in Postgres as PGN alongside their
// move lists. Archiving is best-effort; the session store stays authoritative.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/park285/chess-session-api/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS chess_games (
    game_id      TEXT PRIMARY KEY,
    white_id     TEXT,
    black_id     TEXT,
    created_by   TEXT,
    initial_fen  TEXT NOT NULL,
    final_fen    TEXT NOT NULL,
    status       TEXT NOT NULL,
    result       TEXT NOT NULL,
    termination  TEXT NOT NULL,
    moves_uci    JSONB NOT NULL,
    moves_san    JSONB NOT NULL,
    pgn          TEXT NOT NULL,
    started_at   TIMESTAMPTZ NOT NULL,
    ended_at     TIMESTAMPTZ NOT NULL,
    duration_ms  BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS chess_games_started_at_idx ON chess_games (started_at);
CREATE INDEX IF NOT EXISTS chess_games_white_id_idx ON chess_games (white_id);
CREATE INDEX IF NOT EXISTS chess_games_black_id_idx ON chess_games (black_id);
`

type Repository struct {
	db *sql.DB
}

func NewRepository(ctx context.Context, databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: postgres ping: %w", domain.ErrUnavailable, err)
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// EnsureSchema creates the archive table and its indexes if missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure archive schema: %w", err)
	}
	return nil
}

// Archive upserts a terminal game. Ongoing games are ignored.
func (r *Repository) Archive(ctx context.Context, g *domain.GameSession) error {
	if r == nil || r.db == nil || g == nil || !g.Status.Terminal() {
		return nil
	}
	result := Result(g)
	pgn := BuildPGN(g)

	uci := make([]string, 0, len(g.Moves))
	san := make([]string, 0, len(g.Moves))
	for _, m := range g.Moves {
		uci = append(uci, m.UCI)
		san = append(san, m.SAN)
	}
	movesUCI, err := json.Marshal(uci)
	if err != nil {
		return err
	}
	movesSAN, err := json.Marshal(san)
	if err != nil {
		return err
	}
	duration := g.UpdatedAt.Sub(g.CreatedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	q := `INSERT INTO chess_games (
        game_id, white_id, black_id, created_by, initial_fen, final_fen,
        status, result, termination, moves_uci, moves_san, pgn,
        started_at, ended_at, duration_ms
      ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
      ) ON CONFLICT (game_id) DO UPDATE SET
        final_fen=EXCLUDED.final_fen,
        status=EXCLUDED.status,
        result=EXCLUDED.result,
        termination=EXCLUDED.termination,
        moves_uci=EXCLUDED.moves_uci,
        moves_san=EXCLUDED.moves_san,
        pgn=EXCLUDED.pgn,
        ended_at=EXCLUDED.ended_at,
        duration_ms=EXCLUDED.duration_ms`

	_, err = r.db.ExecContext(ctx, q,
		g.ID,
		nullable(g.Players.White), nullable(g.Players.Black), nullable(g.CreatedBy),
		g.InitialFEN, g.FEN,
		string(g.Status), result, string(g.Status),
		string(movesUCI), string(movesSAN), pgn,
		g.CreatedAt, g.UpdatedAt, duration,
	)
	if err != nil {
		return fmt.Errorf("archive game %s: %w", g.ID, err)
	}
	return nil
}

// Result returns the PGN result token for g.
// In a checkmate the side to move has been mated.
func Result(g *domain.GameSession) string {
	switch g.Status {
	case domain.StatusCheckmate:
		if activeColor(g.FEN) == "w" {
			return "0-1"
		}
		return "1-0"
	case domain.StatusStalemate, domain.StatusDraw:
		return "1/2-1/2"
	default:
		return "*"
	}
}

// BuildPGN renders g as a PGN game. Custom starting positions get SetUp/FEN tags.
func BuildPGN(g *domain.GameSession) string {
	if g == nil {
		return ""
	}
	result := Result(g)
	date := g.CreatedAt
	if date.IsZero() {
		date = time.Now().UTC()
	}

	var b strings.Builder
	b.WriteString("[Event \"Casual Game\"]\n")
	b.WriteString("[Site \"chess-session-api\"]\n")
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", playerTag(g.Players.White)))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", playerTag(g.Players.Black)))
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n", result))
	if g.InitialFEN != "" && g.InitialFEN != domain.StartFEN {
		b.WriteString("[SetUp \"1\"]\n")
		b.WriteString(fmt.Sprintf("[FEN \"%s\"]\n", g.InitialFEN))
	}
	if g.Status.Terminal() {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", string(g.Status)))
	}
	b.WriteString("\n")

	number := fullmoveNumber(g.InitialFEN)
	black := activeColor(g.InitialFEN) == "b"
	for i, m := range g.Moves {
		switch {
		case !black:
			b.WriteString(fmt.Sprintf("%d. ", number))
		case i == 0:
			b.WriteString(fmt.Sprintf("%d... ", number))
		}
		b.WriteString(strings.TrimSpace(m.SAN))
		b.WriteString(" ")
		if black {
			number++
		}
		black = !black
	}
	b.WriteString(result)
	return b.String()
}

func activeColor(fen string) string {
	parts := strings.Fields(fen)
	if len(parts) < 2 {
		return "w"
	}
	return parts[1]
}

func fullmoveNumber(fen string) int {
	parts := strings.Fields(fen)
	if len(parts) < 6 {
		return 1
	}
	n, err := strconv.Atoi(parts[5])
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func playerTag(p *string) string {
	if p == nil || strings.TrimSpace(*p) == "" {
		return "?"
	}
	return sanitizePGN(*p)
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}

func nullable(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}
