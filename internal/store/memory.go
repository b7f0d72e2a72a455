package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/park285/chess-session-api/internal/domain"
)

// MemoryStore is an in-process SessionStore for development and tests.
// Records are copied on the way in and out so callers never share state.
type MemoryStore struct {
	mu sync.RWMutex

	games    map[string]*domain.GameSession
	byPlayer map[string][]string // player id -> game ids, creation order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		games:    make(map[string]*domain.GameSession),
		byPlayer: make(map[string][]string),
	}
}

func (m *MemoryStore) Create(ctx context.Context, g *domain.GameSession) (string, error) {
	if g == nil {
		return "", fmt.Errorf("nil game session")
	}
	id := uuid.NewString()
	cp := g.Clone()
	cp.ID = id

	m.mu.Lock()
	defer m.mu.Unlock()
	m.games[id] = cp
	for _, p := range participants(cp) {
		m.byPlayer[p] = append(m.byPlayer[p], id)
	}
	return id, nil
}

func (m *MemoryStore) Fetch(ctx context.Context, id string) (*domain.GameSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[strings.TrimSpace(id)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return g.Clone(), nil
}

func (m *MemoryStore) Update(ctx context.Context, id string, patch domain.SessionPatch) error {
	id = strings.TrimSpace(id)
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.games[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	if cur.Version != patch.ExpectedVersion {
		return fmt.Errorf("%w: have version %d, expected %d", domain.ErrConflict, cur.Version, patch.ExpectedVersion)
	}
	m.games[id] = patch.Apply(cur)
	return nil
}

func (m *MemoryStore) ListByPlayer(ctx context.Context, playerID string, limit int) ([]*domain.GameSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.byPlayer[strings.TrimSpace(playerID)]
	items := make([]*domain.GameSession, 0, len(ids))
	for _, id := range ids {
		if g, ok := m.games[id]; ok {
			items = append(items, g.Clone())
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// participants returns the distinct non-empty player ids of g.
func participants(g *domain.GameSession) []string {
	var out []string
	for _, p := range []*string{g.Players.White, g.Players.Black} {
		if p == nil || strings.TrimSpace(*p) == "" {
			continue
		}
		id := strings.TrimSpace(*p)
		if len(out) == 1 && out[0] == id {
			continue
		}
		out = append(out, id)
	}
	return out
}
