package httpapi

import (
	"context"
	"fmt"
	"time"

	"github.com/park285/chess-session-api/internal/domain"
	"github.com/park285/chess-session-api/internal/render"
	gocache "github.com/patrickmn/go-cache"
)

// boardCache keeps rendered PNGs per session version.
type boardCache struct {
	images *gocache.Cache
}

func newBoardCache(ttl time.Duration) *boardCache {
	return &boardCache{images: gocache.New(ttl, 2*ttl)}
}

func (b *boardCache) PNG(ctx context.Context, g *domain.GameSession) ([]byte, error) {
	key := fmt.Sprintf("%s@%d", g.ID, g.Version)
	if v, ok := b.images.Get(key); ok {
		if img, ok := v.([]byte); ok {
			return img, nil
		}
	}
	img, err := render.RenderPNG(ctx, g.FEN, render.Options{LastMove: g.LastMove(), Caption: render.Caption(g)})
	if err != nil {
		return nil, err
	}
	b.images.SetDefault(key, img)
	return img, nil
}
