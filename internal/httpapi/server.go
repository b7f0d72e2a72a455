// Package httpapi serves the game-session API over fasthttp.
package httpapi

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/park285/chess-session-api/internal/adapter/chesspresenter"
	"github.com/park285/chess-session-api/internal/domain"
	"github.com/park285/chess-session-api/internal/msgcat"
	"github.com/park285/chess-session-api/internal/session"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// Sessions is the session lifecycle the API drives.
type Sessions interface {
	Create(ctx context.Context, req session.CreateRequest) (*domain.GameSession, error)
	Get(ctx context.Context, id string) (*domain.GameSession, error)
	ApplyMove(ctx context.Context, id, move string) (*session.MoveOutcome, error)
	List(ctx context.Context, playerID string, limit int) ([]*domain.GameSession, error)
}

type Options struct {
	Prefix          string
	Version         string
	MaxBodyBytes    int
	RateLimitPerMin int
	RequestTimeout  time.Duration
	Logger          *zap.Logger
	Openings        chesspresenter.OpeningNamer
	Messages        *msgcat.Catalog
}

type Server struct {
	sessions Sessions
	openings chesspresenter.OpeningNamer
	prefix   string
	version  string
	timeout  time.Duration
	limiter  *rateLimiter
	boards   *boardCache
	messages *msgcat.Catalog
	logger   *zap.Logger
	srv      *fasthttp.Server
}

func NewServer(sessions Sessions, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 64 << 10
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	messages := opts.Messages
	if messages == nil {
		messages = msgcat.Default()
	}
	s := &Server{
		sessions: sessions,
		openings: opts.Openings,
		prefix:   strings.TrimRight(opts.Prefix, "/"),
		version:  opts.Version,
		timeout:  timeout,
		limiter:  newRateLimiter(opts.RateLimitPerMin, time.Minute),
		boards:   newBoardCache(10 * time.Minute),
		messages: messages,
		logger:   logger,
	}
	s.srv = &fasthttp.Server{
		Handler:            s.Handler,
		Name:               "chess-session-api",
		MaxRequestBodySize: maxBody,
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       15 * time.Second,
		IdleTimeout:        60 * time.Second,
	}
	return s
}

// Handler is the request entry point: rate limiting, routing and access logging.
func (s *Server) Handler(ctx *fasthttp.RequestCtx) {
	start := time.Now()
	defer func() {
		s.logger.Info("http_request",
			zap.String("method", string(ctx.Method())),
			zap.String("path", string(ctx.Path())),
			zap.Int("status", ctx.Response.StatusCode()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("remote", ctx.RemoteIP().String()),
		)
	}()

	if !s.limiter.Allow(clientKey(ctx)) {
		ctx.Response.Header.Set("Retry-After", "60")
		msg := s.messages.Text("api.rate_limited", map[string]int{"Seconds": 60}, "Too many requests")
		writeJSON(ctx, fasthttp.StatusTooManyRequests, errorBody("rate_limited", msg, true))
		return
	}
	s.route(ctx)
}

func (s *Server) ListenAndServe(addr string) error {
	s.logger.Info("http_listen", zap.String("addr", addr), zap.String("prefix", s.prefix))
	return s.srv.ListenAndServe(addr)
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	return s.srv.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.ShutdownWithContext(ctx)
}

// requestContext bounds collaborator calls made for one request.
func (s *Server) requestContext(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func clientKey(ctx *fasthttp.RequestCtx) string {
	if fwd := strings.TrimSpace(string(ctx.Request.Header.Peek("X-Forwarded-For"))); fwd != "" {
		if first, _, _ := strings.Cut(fwd, ","); strings.TrimSpace(first) != "" {
			return strings.TrimSpace(first)
		}
	}
	return ctx.RemoteIP().String()
}
