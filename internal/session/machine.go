// Package session owns the lifecycle of a game session: creation, move
// application and status recomputation. It holds no session state between
// calls; every operation reads the authoritative record from the store.
package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/park285/chess-session-api/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Notifier receives committed changes. Failures are logged and never undo a change.
type Notifier interface {
	Publish(ctx context.Context, ev domain.GameEvent) error
}

// Archiver stores sessions that reached a terminal status.
type Archiver interface {
	Archive(ctx context.Context, g *domain.GameSession) error
}

type Option func(*Machine)

func WithNotifier(n Notifier) Option { return func(m *Machine) { m.notifier = n } }

func WithArchiver(a Archiver) Option { return func(m *Machine) { m.archiver = a } }

func WithLogger(l *zap.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock overrides the server clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// WithListLimit sets the default page size of List.
func WithListLimit(n int) Option {
	return func(m *Machine) {
		if n > 0 && n <= maxListLimit {
			m.listLimit = n
		}
	}
}

type Machine struct {
	store     domain.SessionStore
	rules     domain.Rules
	notifier  Notifier
	archiver  Archiver
	now       func() time.Time
	listLimit int
	logger    *zap.Logger
}

func NewMachine(store domain.SessionStore, rules domain.Rules, opts ...Option) (*Machine, error) {
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if rules == nil {
		return nil, fmt.Errorf("rules engine is required")
	}
	m := &Machine{
		store:     store,
		rules:     rules,
		now:       time.Now,
		listLimit: defaultListLimit,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// CreateRequest describes a new session. Empty InitialFEN means the standard start.
type CreateRequest struct {
	InitialFEN string
	White      string
	Black      string
	Creator    string
}

// MoveOutcome is the result of an accepted move.
type MoveOutcome struct {
	GameID string
	FEN    string
	Status domain.Status
	Move   domain.MoveRecord
}

// Create starts a session. A custom initial position is not run through the
// notation validator; the rules engine decides whether it loads.
func (m *Machine) Create(ctx context.Context, req CreateRequest) (*domain.GameSession, error) {
	position := strings.TrimSpace(req.InitialFEN)
	if position == "" {
		position = domain.StartFEN
	}
	board, err := m.rules.Load(position, nil)
	if err != nil {
		return nil, classify(err)
	}

	now := m.timestamp(time.Time{})
	creator := optional(req.Creator)
	white := optional(req.White)
	if white == nil {
		white = creator
	}
	g := &domain.GameSession{
		FEN:        board.FEN(),
		InitialFEN: board.FEN(),
		Status:     board.Classify(),
		Moves:      []domain.MoveRecord{},
		Players:    domain.Players{White: white, Black: optional(req.Black)},
		CreatedBy:  creator,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	id, err := m.store.Create(ctx, g)
	if err != nil {
		return nil, classify(err)
	}
	g.ID = id

	m.logger.Info("game_create",
		zap.String("game_id", g.ID),
		zap.String("status", string(g.Status)),
		zap.Bool("custom_start", g.InitialFEN != domain.StartFEN),
	)
	m.publish(ctx, domain.GameEvent{Type: domain.EventCreated, GameID: g.ID, FEN: g.FEN, Status: g.Status, At: now})
	return g, nil
}

func (m *Machine) Get(ctx context.Context, id string) (*domain.GameSession, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	g, err := m.store.Fetch(ctx, id)
	if err != nil {
		return nil, classify(err)
	}
	return g, nil
}

// ApplyMove plays moveInput on the stored position. A rejected move changes
// nothing. Terminal sessions are not blocked here: whether a move exists is
// the rules engine's call.
func (m *Machine) ApplyMove(ctx context.Context, id, moveInput string) (*MoveOutcome, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	move := strings.TrimSpace(moveInput)
	if move == "" {
		return nil, fmt.Errorf("%w: missing move", domain.ErrValidation)
	}

	g, err := m.store.Fetch(ctx, id)
	if err != nil {
		return nil, classify(err)
	}
	board, err := m.load(g)
	if err != nil {
		return nil, classify(err)
	}
	res, err := board.Apply(move)
	if err != nil {
		m.logger.Info("game_move_rejected", zap.String("game_id", id), zap.String("move", move), zap.Error(err))
		return nil, classify(err)
	}

	status := board.Classify()
	fen := board.FEN()
	now := m.timestamp(g.UpdatedAt)
	record := domain.MoveRecord{
		SAN:       res.SAN,
		UCI:       res.UCI,
		From:      res.From,
		To:        res.To,
		Piece:     res.Piece,
		Color:     res.Color,
		Promotion: optional(res.Promotion),
		FEN:       fen,
		Timestamp: now,
	}
	patch := domain.SessionPatch{
		ExpectedVersion: g.Version,
		FEN:             fen,
		Status:          status,
		UpdatedAt:       now,
		Append:          record,
	}
	if err := m.store.Update(ctx, id, patch); err != nil {
		return nil, classify(err)
	}

	m.logger.Info("game_move",
		zap.String("game_id", id),
		zap.String("san", record.SAN),
		zap.String("color", record.Color),
		zap.String("status", string(status)),
		zap.Int("ply", len(g.Moves)+1),
	)
	m.publish(ctx, domain.GameEvent{Type: domain.EventMove, GameID: id, FEN: fen, Status: status, Move: &record, At: now})
	if status.Terminal() {
		m.archive(ctx, patch.Apply(g))
	}
	return &MoveOutcome{GameID: id, FEN: fen, Status: status, Move: record}, nil
}

// List returns the sessions a player takes part in, newest first.
func (m *Machine) List(ctx context.Context, playerID string, limit int) ([]*domain.GameSession, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return nil, fmt.Errorf("%w: player is required", domain.ErrValidation)
	}
	if limit <= 0 {
		limit = m.listLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	games, err := m.store.ListByPlayer(ctx, playerID, limit)
	if err != nil {
		return nil, classify(err)
	}
	return games, nil
}

// load rebuilds the stored position with its move history so repetition
// draws are visible. A history that no longer reproduces the stored FEN
// falls back to the bare position.
func (m *Machine) load(g *domain.GameSession) (domain.Board, error) {
	if len(g.Moves) > 0 {
		history := make([]string, 0, len(g.Moves))
		for _, mv := range g.Moves {
			history = append(history, mv.UCI)
		}
		board, err := m.rules.Load(g.InitialFEN, history)
		if err == nil && board.FEN() == g.FEN {
			return board, nil
		}
		m.logger.Warn("game_history_replay_mismatch", zap.String("game_id", g.ID), zap.Error(err))
	}
	return m.rules.Load(g.FEN, nil)
}

// timestamp returns the server time, forced strictly after prev.
func (m *Machine) timestamp(prev time.Time) time.Time {
	now := m.now().UTC()
	if !prev.IsZero() && !now.After(prev) {
		now = prev.Add(time.Microsecond)
	}
	return now
}

func (m *Machine) publish(ctx context.Context, ev domain.GameEvent) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Publish(ctx, ev); err != nil {
		m.logger.Warn("game_event_publish_error", zap.String("game_id", ev.GameID), zap.String("type", string(ev.Type)), zap.Error(err))
	}
}

func (m *Machine) archive(ctx context.Context, g *domain.GameSession) {
	if m.archiver == nil {
		return
	}
	if err := m.archiver.Archive(ctx, g); err != nil {
		m.logger.Error("game_archive_error", zap.String("game_id", g.ID), zap.String("status", string(g.Status)), zap.Error(err))
		return
	}
	m.logger.Info("game_archive", zap.String("game_id", g.ID), zap.String("status", string(g.Status)))
}

// classify maps collaborator errors outside the taxonomy to ErrUnavailable.
func classify(err error) error {
	if domain.KindOf(err) == domain.KindInternal {
		return fmt.Errorf("%w: %w", domain.ErrUnavailable, err)
	}
	return err
}

func validateID(id string) error {
	if _, err := uuid.Parse(strings.TrimSpace(id)); err != nil {
		return fmt.Errorf("%w: invalid gameId", domain.ErrValidation)
	}
	return nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
