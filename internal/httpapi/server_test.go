package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/park285/chess-session-api/internal/domain"
	"github.com/park285/chess-session-api/internal/msgcat"
	"github.com/park285/chess-session-api/internal/rules"
	"github.com/park285/chess-session-api/internal/session"
	"github.com/park285/chess-session-api/internal/store"
	"github.com/park285/chess-session-api/pkg/chessdto"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

type testAPI struct {
	t      *testing.T
	client *fasthttp.Client
}

func newTestAPI(t *testing.T, opts Options) *testAPI {
	t.Helper()
	engine := rules.NewEngine()
	machine, err := session.NewMachine(store.NewMemoryStore(), engine)
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	if opts.Prefix == "" {
		opts.Prefix = "/api/v1"
	}
	opts.Openings = engine
	srv := NewServer(machine, opts)

	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		_ = ln.Close()
	})
	return &testAPI{
		t:      t,
		client: &fasthttp.Client{Dial: func(string) (net.Conn, error) { return ln.Dial() }},
	}
}

type response struct {
	status      int
	contentType string
	location    string
	body        []byte
}

func (a *testAPI) do(method, path, body string, headers map[string]string) response {
	a.t.Helper()
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(method)
	req.SetRequestURI("http://chess.test" + path)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if body != "" {
		req.Header.SetContentType("application/json")
		req.SetBodyString(body)
	}
	if err := a.client.DoTimeout(req, resp, 5*time.Second); err != nil {
		a.t.Fatalf("%s %s: %v", method, path, err)
	}
	return response{
		status:      resp.StatusCode(),
		contentType: string(resp.Header.ContentType()),
		location:    string(resp.Header.Peek("Location")),
		body:        append([]byte(nil), resp.Body()...),
	}
}

func decodeJSON[T any](t *testing.T, r response) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(r.body, &v); err != nil {
		t.Fatalf("decode %s: %v", r.body, err)
	}
	return v
}

func (a *testAPI) create(body string, user string) chessdto.CreateGameResponse {
	a.t.Helper()
	headers := map[string]string{}
	if user != "" {
		headers[userHeader] = user
	}
	r := a.do("POST", "/api/v1/games", body, headers)
	if r.status != fasthttp.StatusCreated {
		a.t.Fatalf("create status = %d body = %s", r.status, r.body)
	}
	return decodeJSON[chessdto.CreateGameResponse](a.t, r)
}

func expectError(t *testing.T, r response, status int, code string) {
	t.Helper()
	if r.status != status {
		t.Fatalf("status = %d, want %d (body %s)", r.status, status, r.body)
	}
	body := decodeJSON[chessdto.ErrorResponse](t, r)
	if body.Error.Code != code {
		t.Fatalf("code = %q, want %q", body.Error.Code, code)
	}
}

func TestCreateAndGet(t *testing.T) {
	api := newTestAPI(t, Options{})
	created := api.create("", "alice")
	if created.FEN != domain.StartFEN || created.Status != "ongoing" {
		t.Fatalf("created = %+v", created)
	}

	r := api.do("GET", "/api/v1/games/"+created.GameID, "", nil)
	if r.status != fasthttp.StatusOK {
		t.Fatalf("get status = %d", r.status)
	}
	game := decodeJSON[chessdto.Game](t, r)
	if game.GameID != created.GameID || len(game.Moves) != 0 || game.Status != "ongoing" {
		t.Fatalf("game = %+v", game)
	}
	if game.Players.White == nil || *game.Players.White != "alice" || game.Players.Black != nil {
		t.Fatalf("players = %+v", game.Players)
	}
	if !bytes.Contains(r.body, []byte(`"moves":[]`)) {
		t.Fatalf("moves should serialise as an empty array: %s", r.body)
	}
}

func TestCreateLocationAndPlayers(t *testing.T) {
	api := newTestAPI(t, Options{})
	r := api.do("POST", "/api/v1/games", `{"players":{"white":"w1","black":"b1"}}`, nil)
	if r.status != fasthttp.StatusCreated {
		t.Fatalf("status = %d", r.status)
	}
	created := decodeJSON[chessdto.CreateGameResponse](t, r)
	if r.location != "/api/v1/games/"+created.GameID {
		t.Fatalf("location = %q", r.location)
	}
	game := decodeJSON[chessdto.Game](t, api.do("GET", r.location, "", nil))
	if *game.Players.White != "w1" || *game.Players.Black != "b1" {
		t.Fatalf("players = %+v", game.Players)
	}
}

func TestCreateRejectsBadInput(t *testing.T) {
	api := newTestAPI(t, Options{})
	expectError(t, api.do("POST", "/api/v1/games", `{"initialFen":"not a fen"}`, nil), fasthttp.StatusBadRequest, "invalid_position")
	expectError(t, api.do("POST", "/api/v1/games", `{"initialFen":`, nil), fasthttp.StatusBadRequest, "validation_error")
}

func TestCreateFromCustomTerminalPosition(t *testing.T) {
	api := newTestAPI(t, Options{})
	created := api.create(`{"initialFen":"7k/5Q2/6K1/8/8/8/8/8 b - - 0 1"}`, "")
	if created.Status != "stalemate" {
		t.Fatalf("status = %q, want stalemate", created.Status)
	}
}

func TestMoveFlow(t *testing.T) {
	api := newTestAPI(t, Options{})
	id := api.create("", "alice").GameID

	r := api.do("POST", "/api/v1/games/"+id+"/move", `{"move":"e4"}`, nil)
	if r.status != fasthttp.StatusOK {
		t.Fatalf("move status = %d body = %s", r.status, r.body)
	}
	mv := decodeJSON[chessdto.MoveResponse](t, r)
	if mv.GameID != id || mv.Move.SAN != "e4" || mv.Move.From != "e2" || mv.Move.Color != "w" || mv.Move.Promotion != nil {
		t.Fatalf("move = %+v", mv)
	}

	r = api.do("POST", "/api/v1/games/"+id+"/move", `{"move":{"from":"e7","to":"e5"}}`, nil)
	if r.status != fasthttp.StatusOK {
		t.Fatalf("object move status = %d body = %s", r.status, r.body)
	}

	game := decodeJSON[chessdto.Game](t, api.do("GET", "/api/v1/games/"+id, "", nil))
	if len(game.Moves) != 2 || game.Version != 2 {
		t.Fatalf("moves = %d version = %d", len(game.Moves), game.Version)
	}
	if !game.Moves[1].Timestamp.After(game.Moves[0].Timestamp) {
		t.Fatal("timestamps not increasing")
	}
	if game.Opening == nil || game.Opening.ECO == "" {
		t.Fatalf("opening = %+v", game.Opening)
	}
}

func TestMoveErrors(t *testing.T) {
	api := newTestAPI(t, Options{})
	id := api.create("", "").GameID
	before := api.do("GET", "/api/v1/games/"+id, "", nil).body

	expectError(t, api.do("POST", "/api/v1/games/"+id+"/move", `{"move":"e5"}`, nil), fasthttp.StatusBadRequest, "illegal_move")
	expectError(t, api.do("POST", "/api/v1/games/"+id+"/move", `{}`, nil), fasthttp.StatusBadRequest, "validation_error")
	expectError(t, api.do("POST", "/api/v1/games/"+id+"/move", `{"move":""}`, nil), fasthttp.StatusBadRequest, "validation_error")
	expectError(t, api.do("POST", "/api/v1/games/"+id+"/move", `{"move":7}`, nil), fasthttp.StatusBadRequest, "validation_error")
	expectError(t, api.do("POST", "/api/v1/games/"+uuid.NewString()+"/move", `{"move":"e4"}`, nil), fasthttp.StatusNotFound, "not_found")
	expectError(t, api.do("POST", "/api/v1/games/nope/move", `{"move":"e4"}`, nil), fasthttp.StatusBadRequest, "validation_error")

	after := api.do("GET", "/api/v1/games/"+id, "", nil).body
	if !bytes.Equal(before, after) {
		t.Fatalf("rejected moves changed the session:\n%s\n%s", before, after)
	}
}

func TestGetErrors(t *testing.T) {
	api := newTestAPI(t, Options{})
	expectError(t, api.do("GET", "/api/v1/games/"+uuid.NewString(), "", nil), fasthttp.StatusNotFound, "not_found")
	expectError(t, api.do("GET", "/api/v1/games/123", "", nil), fasthttp.StatusBadRequest, "validation_error")
}

func TestListByPlayer(t *testing.T) {
	api := newTestAPI(t, Options{})
	api.create("", "alice")
	api.create("", "alice")
	api.create("", "bob")

	list := decodeJSON[chessdto.GameList](t, api.do("GET", "/api/v1/games?player=alice", "", nil))
	if list.Player != "alice" || len(list.Games) != 2 {
		t.Fatalf("list = %+v", list)
	}
	list = decodeJSON[chessdto.GameList](t, api.do("GET", "/api/v1/games?limit=1", "", map[string]string{userHeader: "alice"}))
	if len(list.Games) != 1 {
		t.Fatalf("limited list = %d", len(list.Games))
	}
	expectError(t, api.do("GET", "/api/v1/games", "", nil), fasthttp.StatusBadRequest, "validation_error")
	expectError(t, api.do("GET", "/api/v1/games?player=alice&limit=zero", "", nil), fasthttp.StatusBadRequest, "validation_error")
}

func TestValidateEndpoint(t *testing.T) {
	api := newTestAPI(t, Options{})

	r := api.do("GET", "/api/v1/validate/"+url.PathEscape(domain.StartFEN), "", nil)
	if r.status != fasthttp.StatusOK {
		t.Fatalf("status = %d", r.status)
	}
	ok := decodeJSON[chessdto.ValidateResponse](t, r)
	if !ok.IsValid || ok.Error != nil || ok.FEN != domain.StartFEN {
		t.Fatalf("valid response = %+v", ok)
	}
	if !bytes.Contains(r.body, []byte(`"error":null`)) {
		t.Fatalf("error should be null: %s", r.body)
	}

	bad := decodeJSON[chessdto.ValidateResponse](t, api.do("GET", "/api/v1/validate/invalid-fen-string", "", nil))
	if bad.IsValid || bad.Error == nil || *bad.Error != "FEN must contain exactly 8 ranks separated by /" {
		t.Fatalf("invalid response = %+v", bad)
	}
}

func TestBoardImage(t *testing.T) {
	api := newTestAPI(t, Options{})
	id := api.create("", "").GameID
	api.do("POST", "/api/v1/games/"+id+"/move", `{"move":"d4"}`, nil)

	r := api.do("GET", "/api/v1/games/"+id+"/board.png", "", nil)
	if r.status != fasthttp.StatusOK || r.contentType != "image/png" {
		t.Fatalf("status = %d content-type = %q", r.status, r.contentType)
	}
	if !bytes.HasPrefix(r.body, []byte("\x89PNG")) {
		t.Fatal("body is not a png")
	}
	again := api.do("GET", "/api/v1/games/"+id+"/board.png", "", nil)
	if !bytes.Equal(r.body, again.body) {
		t.Fatal("cached image differs")
	}
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, Options{Version: "1.2.3"})
	h := decodeJSON[chessdto.Health](t, api.do("GET", "/health", "", nil))
	if h.Status != "OK" || h.Timestamp.IsZero() {
		t.Fatalf("health = %+v", h)
	}
	hc := decodeJSON[chessdto.HealthCheck](t, api.do("GET", "/api/v1/health-check", "", nil))
	if !hc.Success || hc.Message != "Service is healthy | Version 1.2.3" || hc.StatusCode != 200 {
		t.Fatalf("health-check = %+v", hc)
	}
}

func TestRoutingErrors(t *testing.T) {
	api := newTestAPI(t, Options{})
	id := api.create("", "").GameID
	expectError(t, api.do("DELETE", "/api/v1/games/"+id, "", nil), fasthttp.StatusMethodNotAllowed, "method_not_allowed")
	expectError(t, api.do("GET", "/api/v1/games/"+id+"/move", "", nil), fasthttp.StatusMethodNotAllowed, "method_not_allowed")
	expectError(t, api.do("GET", "/api/v1/players", "", nil), fasthttp.StatusNotFound, "not_found")
	expectError(t, api.do("GET", "/api/v1x/games", "", nil), fasthttp.StatusNotFound, "not_found")
	expectError(t, api.do("GET", "/games", "", nil), fasthttp.StatusNotFound, "not_found")
}

func TestMessageOverrides(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "api.yaml"), []byte("api:\n  endpoint_not_found: \"No such route\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cat, err := msgcat.New(dir)
	if err != nil {
		t.Fatalf("msgcat.New: %v", err)
	}
	api := newTestAPI(t, Options{Messages: cat})
	body := decodeJSON[chessdto.ErrorResponse](t, api.do("GET", "/api/v1/players", "", nil))
	if body.Error.Message != "No such route" {
		t.Fatalf("message = %q", body.Error.Message)
	}
}

func TestRateLimit(t *testing.T) {
	api := newTestAPI(t, Options{RateLimitPerMin: 2})
	for i := 0; i < 2; i++ {
		if r := api.do("GET", "/health", "", nil); r.status != fasthttp.StatusOK {
			t.Fatalf("request %d status = %d", i, r.status)
		}
	}
	expectError(t, api.do("GET", "/health", "", nil), fasthttp.StatusTooManyRequests, "rate_limited")
	if r := api.do("GET", "/health", "", map[string]string{"X-Forwarded-For": "10.0.0.9"}); r.status != fasthttp.StatusOK {
		t.Fatalf("other client status = %d", r.status)
	}
}
