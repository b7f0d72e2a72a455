package livefeed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/park285/chess-session-api/internal/domain"
	"github.com/park285/chess-session-api/pkg/chessdto"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// Snapshotter loads the current state sent to a watcher on connect.
type Snapshotter interface {
	Get(ctx context.Context, id string) (*domain.GameSession, error)
}

type Handler struct {
	rdb          *redis.Client
	sessions     Snapshotter
	prefix       string
	pingInterval time.Duration
	writeTimeout time.Duration
	logger       *zap.Logger
}

func NewHandler(rdb *redis.Client, sessions Snapshotter, prefix string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		rdb:          rdb,
		sessions:     sessions,
		prefix:       strings.TrimRight(prefix, "/"),
		pingInterval: 30 * time.Second,
		writeTimeout: 5 * time.Second,
		logger:       logger,
	}
}

// Routes mounts the event stream and a liveness probe.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+h.prefix+"/games/{gameId}/events", h.serveEvents)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chessdto.Health{Status: "OK", Timestamp: time.Now().UTC()})
	})
	return mux
}

func (h *Handler) serveEvents(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("gameId"))
	ctx := r.Context()

	// the subscription is confirmed before the snapshot is read, so a move
	// committed during the read is still delivered
	sub := h.rdb.Subscribe(ctx, Channel(id))
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		h.logger.Warn("live_subscribe_error", zap.String("game_id", id), zap.Error(err))
		http.Error(w, "live feed unavailable", http.StatusServiceUnavailable)
		return
	}

	g, err := h.sessions.Get(ctx, id)
	if err != nil {
		http.Error(w, err.Error(), statusOf(err))
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		h.logger.Debug("live_accept_error", zap.String("game_id", id), zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	ctx = conn.CloseRead(ctx)

	h.logger.Info("live_watch_start", zap.String("game_id", id))
	defer h.logger.Info("live_watch_end", zap.String("game_id", id))

	snapshot := domain.GameEvent{
		Type:   domain.EventSnapshot,
		GameID: g.ID,
		FEN:    g.FEN,
		Status: g.Status,
		Move:   g.LastMove(),
		At:     g.UpdatedAt,
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "snapshot")
		return
	}
	if err := h.write(ctx, conn, payload); err != nil {
		return
	}

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "feed closed")
				return
			}
			if covered(msg.Payload, g.UpdatedAt) {
				continue
			}
			if err := h.write(ctx, conn, []byte(msg.Payload)); err != nil {
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, h.writeTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				h.logger.Debug("live_ping_error", zap.String("game_id", id), zap.Error(err))
				return
			}
		}
	}
}

func (h *Handler) write(ctx context.Context, conn *websocket.Conn, payload []byte) error {
	wctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, payload)
}

// covered reports whether an event is already reflected in a snapshot taken
// at seen. Session timestamps strictly increase, so anything not after seen
// was committed before the snapshot was read.
func covered(payload string, seen time.Time) bool {
	var ev domain.GameEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil || ev.At.IsZero() {
		return false
	}
	return !ev.At.After(seen)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
