package httpapi

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/park285/chess-session-api/internal/adapter/chesspresenter"
	"github.com/park285/chess-session-api/internal/domain"
	"github.com/park285/chess-session-api/internal/fen"
	"github.com/park285/chess-session-api/internal/session"
	"github.com/park285/chess-session-api/pkg/chessdto"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const userHeader = "X-User-Id"

func (s *Server) route(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())
	if path == "/health" {
		s.onlyGET(ctx, s.handleHealth)
		return
	}
	rest, ok := strings.CutPrefix(path, s.prefix)
	if !ok || (rest != "" && rest[0] != '/') {
		s.notFound(ctx)
		return
	}

	switch {
	case rest == "/health-check":
		s.onlyGET(ctx, s.handleHealthCheck)
		return
	case strings.HasPrefix(rest, "/validate/"):
		s.onlyGET(ctx, s.handleValidate)
		return
	}

	segs := strings.Split(strings.Trim(rest, "/"), "/")
	if segs[0] != "games" {
		s.notFound(ctx)
		return
	}
	switch len(segs) {
	case 1:
		switch {
		case ctx.IsPost():
			s.handleCreate(ctx)
		case ctx.IsGet():
			s.handleList(ctx)
		default:
			s.methodNotAllowed(ctx)
		}
	case 2:
		s.onlyGET(ctx, func(ctx *fasthttp.RequestCtx) { s.handleGet(ctx, segs[1]) })
	case 3:
		id := segs[1]
		switch segs[2] {
		case "move":
			if !ctx.IsPost() {
				s.methodNotAllowed(ctx)
				return
			}
			s.handleMove(ctx, id)
		case "board.png":
			s.onlyGET(ctx, func(ctx *fasthttp.RequestCtx) { s.handleBoard(ctx, id) })
		default:
			s.notFound(ctx)
		}
	default:
		s.notFound(ctx)
	}
}

func (s *Server) handleCreate(ctx *fasthttp.RequestCtx) {
	var req chessdto.CreateGameRequest
	if body := ctx.PostBody(); len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			s.fail(ctx, fmt.Errorf("%w: invalid JSON body", domain.ErrValidation))
			return
		}
	}
	in := session.CreateRequest{Creator: userID(ctx)}
	if req.InitialFEN != nil {
		in.InitialFEN = *req.InitialFEN
	}
	if req.Players != nil {
		in.White = deref(req.Players.White)
		in.Black = deref(req.Players.Black)
	}

	rctx, cancel := s.requestContext(ctx)
	defer cancel()
	g, err := s.sessions.Create(rctx, in)
	if err != nil {
		s.fail(ctx, err)
		return
	}
	ctx.Response.Header.Set("Location", s.prefix+"/games/"+g.ID)
	writeJSON(ctx, fasthttp.StatusCreated, chesspresenter.ToDTOCreated(g))
}

func (s *Server) handleGet(ctx *fasthttp.RequestCtx, id string) {
	rctx, cancel := s.requestContext(ctx)
	defer cancel()
	g, err := s.sessions.Get(rctx, id)
	if err != nil {
		s.fail(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, chesspresenter.ToDTOGame(g, s.openings))
}

func (s *Server) handleMove(ctx *fasthttp.RequestCtx, id string) {
	var req chessdto.MoveRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		s.fail(ctx, fmt.Errorf("%w: invalid JSON body", domain.ErrValidation))
		return
	}
	rctx, cancel := s.requestContext(ctx)
	defer cancel()
	out, err := s.sessions.ApplyMove(rctx, id, req.Move.Text())
	if err != nil {
		s.fail(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, chesspresenter.ToDTOMoveOutcome(out))
}

func (s *Server) handleList(ctx *fasthttp.RequestCtx) {
	args := ctx.QueryArgs()
	player := strings.TrimSpace(string(args.Peek("player")))
	if player == "" {
		player = userID(ctx)
	}
	limit := 0
	if raw := strings.TrimSpace(string(args.Peek("limit"))); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.fail(ctx, fmt.Errorf("%w: limit must be a positive integer", domain.ErrValidation))
			return
		}
		limit = n
	}
	rctx, cancel := s.requestContext(ctx)
	defer cancel()
	games, err := s.sessions.List(rctx, player, limit)
	if err != nil {
		s.fail(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, chesspresenter.ToDTOGames(player, games, s.openings))
}

func (s *Server) handleBoard(ctx *fasthttp.RequestCtx, id string) {
	rctx, cancel := s.requestContext(ctx)
	defer cancel()
	g, err := s.sessions.Get(rctx, id)
	if err != nil {
		s.fail(ctx, err)
		return
	}
	img, err := s.boards.PNG(rctx, g)
	if err != nil {
		s.fail(ctx, err)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("image/png")
	ctx.Response.Header.Set("Cache-Control", "no-cache")
	ctx.SetBody(img)
}

// handleValidate reads the raw path so that encoded slashes in the position survive.
func (s *Server) handleValidate(ctx *fasthttp.RequestCtx) {
	raw := string(ctx.URI().PathOriginal())
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	_, encoded, _ := strings.Cut(raw, s.prefix+"/validate/")
	position, err := url.PathUnescape(encoded)
	if err != nil {
		writeJSON(ctx, fasthttp.StatusBadRequest, errorBody(string(domain.KindValidation), s.messages.Text("api.invalid_fen_param", nil, "Invalid FEN parameter"), false))
		return
	}
	res := fen.Validate(position)
	out := chessdto.ValidateResponse{FEN: position, IsValid: res.Valid}
	if !res.Valid {
		msg := res.Error
		out.Error = &msg
	}
	writeJSON(ctx, fasthttp.StatusOK, out)
}

func (s *Server) handleHealth(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, fasthttp.StatusOK, chessdto.Health{Status: "OK", Timestamp: time.Now().UTC()})
}

func (s *Server) handleHealthCheck(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, fasthttp.StatusOK, chessdto.HealthCheck{
		Success:    true,
		Message:    s.messages.Text("api.health_check", map[string]string{"Version": s.version}, "Service is healthy | Version "+s.version),
		StatusCode: fasthttp.StatusOK,
	})
}

func (s *Server) onlyGET(ctx *fasthttp.RequestCtx, h fasthttp.RequestHandler) {
	if !ctx.IsGet() && !ctx.IsHead() {
		s.methodNotAllowed(ctx)
		return
	}
	h(ctx)
}

func (s *Server) fail(ctx *fasthttp.RequestCtx, err error) {
	status, body := chesspresenter.ToDomainError(err)
	if status >= fasthttp.StatusInternalServerError {
		s.logger.Error("http_request_error", zap.String("path", string(ctx.Path())), zap.Error(err))
	}
	writeJSON(ctx, status, chessdto.ErrorResponse{Error: body})
}

func (s *Server) notFound(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, fasthttp.StatusNotFound, errorBody(string(domain.KindNotFound), s.messages.Text("api.endpoint_not_found", nil, "Endpoint not found"), false))
}

func (s *Server) methodNotAllowed(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, fasthttp.StatusMethodNotAllowed, errorBody("method_not_allowed", s.messages.Text("api.method_not_allowed", nil, "Method not allowed"), false))
}

func errorBody(code, message string, retryable bool) chessdto.ErrorResponse {
	return chessdto.ErrorResponse{Error: chessdto.DomainError{Code: code, Message: message, Retryable: retryable}}
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"error":{"code":"internal","message":"encode response","retryable":false}}`)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(payload)
}

func userID(ctx *fasthttp.RequestCtx) string {
	return strings.TrimSpace(string(ctx.Request.Header.Peek(userHeader)))
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
