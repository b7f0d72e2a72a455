package livefeed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/park285/chess-session-api/internal/domain"
	"github.com/park285/chess-session-api/internal/rules"
	"github.com/park285/chess-session-api/internal/session"
	"github.com/park285/chess-session-api/internal/store"
	"github.com/redis/go-redis/v9"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mr
}

func TestPublisherPublishes(t *testing.T) {
	rdb, _ := newRedis(t)
	ctx := context.Background()
	sub := rdb.Subscribe(ctx, Channel("g1"))
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	ev := domain.GameEvent{Type: domain.EventMove, GameID: "g1", FEN: domain.StartFEN, Status: domain.StatusOngoing}
	if err := NewPublisher(rdb).Publish(ctx, ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-sub.Channel():
		var got domain.GameEvent
		if err := json.Unmarshal([]byte(msg.Payload), &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.GameID != "g1" || got.Type != domain.EventMove {
			t.Fatalf("event = %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestNilPublisherIsNoop(t *testing.T) {
	var p *Publisher
	if err := p.Publish(context.Background(), domain.GameEvent{GameID: "x"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}

func TestHandlerStreamsSnapshotThenMoves(t *testing.T) {
	rdb, _ := newRedis(t)
	machine, err := session.NewMachine(store.NewMemoryStore(), rules.NewEngine(), session.WithNotifier(NewPublisher(rdb)))
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	g, err := machine.Create(ctx, session.CreateRequest{Creator: "alice"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	srv := httptest.NewServer(NewHandler(rdb, machine, "/api/v1", nil).Routes())
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/games/" + g.ID + "/events"

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	var snap domain.GameEvent
	if err := wsjson.Read(ctx, conn, &snap); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if snap.Type != domain.EventSnapshot || snap.FEN != domain.StartFEN || snap.Move != nil {
		t.Fatalf("snapshot = %+v", snap)
	}

	if _, err := machine.ApplyMove(ctx, g.ID, "e4"); err != nil {
		t.Fatalf("ApplyMove: %v", err)
	}
	var ev domain.GameEvent
	if err := wsjson.Read(ctx, conn, &ev); err != nil {
		t.Fatalf("read move: %v", err)
	}
	if ev.Type != domain.EventMove || ev.Move == nil || ev.Move.SAN != "e4" {
		t.Fatalf("move event = %+v", ev)
	}
}

// movingSnapshotter commits a move right after the snapshot read, before
// the watcher has been sent anything.
type movingSnapshotter struct {
	machine *session.Machine
	move    string
	once    sync.Once
	err     error
}

func (s *movingSnapshotter) Get(ctx context.Context, id string) (*domain.GameSession, error) {
	g, err := s.machine.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.once.Do(func() {
		_, s.err = s.machine.ApplyMove(ctx, id, s.move)
	})
	return g, nil
}

func TestHandlerKeepsMoveCommittedDuringSnapshot(t *testing.T) {
	rdb, _ := newRedis(t)
	machine, err := session.NewMachine(store.NewMemoryStore(), rules.NewEngine(), session.WithNotifier(NewPublisher(rdb)))
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	g, err := machine.Create(ctx, session.CreateRequest{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	snapshots := &movingSnapshotter{machine: machine, move: "e4"}
	srv := httptest.NewServer(NewHandler(rdb, snapshots, "/api/v1", nil).Routes())
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/games/" + g.ID + "/events"

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	var snap domain.GameEvent
	if err := wsjson.Read(ctx, conn, &snap); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if snapshots.err != nil {
		t.Fatalf("ApplyMove during snapshot: %v", snapshots.err)
	}
	if snap.Type != domain.EventSnapshot || snap.FEN != domain.StartFEN {
		t.Fatalf("snapshot = %+v", snap)
	}
	var ev domain.GameEvent
	if err := wsjson.Read(ctx, conn, &ev); err != nil {
		t.Fatalf("read move: %v", err)
	}
	if ev.Type != domain.EventMove || ev.Move == nil || ev.Move.SAN != "e4" {
		t.Fatalf("move event = %+v", ev)
	}
}

func TestCoveredSkipsEventsInSnapshot(t *testing.T) {
	seen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	encode := func(at time.Time) string {
		b, _ := json.Marshal(domain.GameEvent{Type: domain.EventMove, GameID: "g", At: at})
		return string(b)
	}
	if !covered(encode(seen), seen) || !covered(encode(seen.Add(-time.Second)), seen) {
		t.Fatal("events at or before the snapshot should be skipped")
	}
	if covered(encode(seen.Add(time.Millisecond)), seen) {
		t.Fatal("a later event must be relayed")
	}
	if covered("not json", seen) {
		t.Fatal("undecodable payloads are relayed as is")
	}
}

func TestHandlerUnknownGame(t *testing.T) {
	rdb, _ := newRedis(t)
	machine, _ := session.NewMachine(store.NewMemoryStore(), rules.NewEngine())
	srv := httptest.NewServer(NewHandler(rdb, machine, "/api/v1", nil).Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/games/" + uuid.NewString() + "/events")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/v1/games/not-a-uuid/events")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHandlerHealth(t *testing.T) {
	rdb, _ := newRedis(t)
	machine, _ := session.NewMachine(store.NewMemoryStore(), rules.NewEngine())
	srv := httptest.NewServer(NewHandler(rdb, machine, "/api/v1", nil).Routes())
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
