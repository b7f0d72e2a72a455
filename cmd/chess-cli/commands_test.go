package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/park285/chess-session-api/internal/httpapi"
	"github.com/park285/chess-session-api/internal/rules"
	"github.com/park285/chess-session-api/internal/session"
	"github.com/park285/chess-session-api/internal/store"
	"github.com/park285/chess-session-api/pkg/chessdto"
)

func startServer(t *testing.T) string {
	t.Helper()
	engine := rules.NewEngine()
	machine, err := session.NewMachine(store.NewMemoryStore(), engine)
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	srv := httpapi.NewServer(machine, httpapi.Options{Prefix: "/api/v1", Version: "test", Openings: engine})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return "http://" + ln.Addr().String()
}

func run(t *testing.T, api string, args ...string) []byte {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(append([]string{"--api", api}, args...))
	if err := cmd.Execute(); err != nil {
		t.Fatalf("chess-cli %v: %v", args, err)
	}
	return out.Bytes()
}

func decode[T any](t *testing.T, b []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
	return v
}

func TestPlayThroughCLI(t *testing.T) {
	api := startServer(t)

	created := decode[chessdto.CreateGameResponse](t, run(t, api, "create", "-u", "alice", "--black", "bob"))
	if created.GameID == "" || created.Status != "ongoing" {
		t.Fatalf("create = %+v", created)
	}

	moved := decode[chessdto.MoveResponse](t, run(t, api, "move", created.GameID, "e4"))
	if moved.Move.SAN != "e4" || moved.Move.UCI != "e2e4" {
		t.Fatalf("move = %+v", moved)
	}

	game := decode[chessdto.Game](t, run(t, api, "show", created.GameID))
	if len(game.Moves) != 1 || game.Players.White == nil || *game.Players.White != "alice" {
		t.Fatalf("show = %+v", game)
	}

	list := decode[chessdto.GameList](t, run(t, api, "list", "bob"))
	if len(list.Games) != 1 || list.Games[0].GameID != created.GameID {
		t.Fatalf("list = %+v", list)
	}

	path := filepath.Join(t.TempDir(), "board.png")
	out := run(t, api, "board", created.GameID, "-o", path)
	if strings.TrimSpace(string(out)) != path {
		t.Fatalf("board output = %q", out)
	}
	img, err := os.ReadFile(path)
	if err != nil || !bytes.HasPrefix(img, []byte("\x89PNG")) {
		t.Fatalf("board file: %v", err)
	}
}

func TestValidateThroughCLI(t *testing.T) {
	api := startServer(t)

	res := decode[chessdto.ValidateResponse](t, run(t, api, "validate", "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"))
	if !res.IsValid || res.FEN != "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1" {
		t.Fatalf("validate = %+v", res)
	}
	bad := decode[chessdto.ValidateResponse](t, run(t, api, "validate", "not-a-fen"))
	if bad.IsValid || bad.Error == nil {
		t.Fatalf("validate bad = %+v", bad)
	}
}

func TestIllegalMoveFails(t *testing.T) {
	api := startServer(t)
	created := decode[chessdto.CreateGameResponse](t, run(t, api, "create"))

	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs([]string{"--api", api, "move", created.GameID, "e5"})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "status=400") {
		t.Fatalf("err = %v", err)
	}
}

func TestHealthThroughCLI(t *testing.T) {
	api := startServer(t)
	h := decode[chessdto.Health](t, run(t, api, "health"))
	if h.Status != "OK" {
		t.Fatalf("health = %+v", h)
	}
}
