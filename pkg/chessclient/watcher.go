package chessclient

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/park285/chess-session-api/pkg/chessdto"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type WatchState string

const (
	StateDisconnected WatchState = "disconnected"
	StateConnecting   WatchState = "connecting"
	StateConnected    WatchState = "connected"
	StateReconnecting WatchState = "reconnecting"
	StateFailed       WatchState = "failed"
)

type EventCallback func(ev *chessdto.Event)

type StateCallback func(state WatchState)

type callbackEntry struct {
	id       int
	callback EventCallback
}

type stateCallbackEntry struct {
	id       int
	callback StateCallback
}

// EventsURL builds the live feed address of a game, e.g.
// EventsURL("ws://localhost:8081", "/api/v1", id).
func EventsURL(liveBase, prefix, gameID string) string {
	base := strings.TrimRight(liveBase, "/")
	p := strings.Trim(prefix, "/")
	if p != "" {
		base += "/" + p
	}
	return base + "/games/" + url.PathEscape(gameID) + "/events"
}

// Watcher follows one game's live feed and reconnects with backoff when the
// connection drops. Every (re)connect starts with a snapshot event.
type Watcher struct {
	wsURL string

	conn   *websocket.Conn
	connM  sync.Mutex
	state  WatchState
	stateM sync.RWMutex

	eventCbs []callbackEntry
	stateCbs []stateCallbackEntry
	nextID   int
	cbM      sync.RWMutex

	maxReconnectAttempts int
	reconnectDelay       time.Duration
	pingInterval         time.Duration

	stopped  bool
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc

	headerProvider HeaderProvider
}

func NewWatcher(wsURL string, maxReconnectAttempts int, reconnectDelay time.Duration) *Watcher {
	return &Watcher{
		wsURL:                wsURL,
		state:                StateDisconnected,
		maxReconnectAttempts: maxReconnectAttempts,
		reconnectDelay:       reconnectDelay,
		pingInterval:         30 * time.Second,
		stopCh:               make(chan struct{}),
	}
}

// SetHeaderProvider injects headers into the handshake.
func (w *Watcher) SetHeaderProvider(h HeaderProvider) {
	w.headerProvider = h
}

func (w *Watcher) State() WatchState {
	w.stateM.RLock()
	defer w.stateM.RUnlock()
	return w.state
}

func (w *Watcher) Connect(ctx context.Context) error {
	switch w.State() {
	case StateConnected, StateConnecting, StateReconnecting:
		return nil
	}

	w.connM.Lock()
	if w.rootCtx == nil {
		w.rootCtx, w.rootCancel = context.WithCancel(context.Background())
	}
	w.connM.Unlock()
	w.setState(StateConnecting)

	conn, err := w.dial(ctx)
	if err != nil {
		w.setState(StateFailed)
		w.scheduleReconnect()
		return err
	}
	w.start(conn)
	return nil
}

func (w *Watcher) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, w.wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      w.buildHeaders(),
	})
	return conn, err
}

func (w *Watcher) start(conn *websocket.Conn) {
	w.connM.Lock()
	if w.stopped {
		w.connM.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "close")
		return
	}
	w.conn = conn
	done := make(chan struct{})
	w.wg.Add(2)
	w.connM.Unlock()

	w.setState(StateConnected)
	go w.listen(conn, done)
	go w.pingLoop(conn, done)
}

func (w *Watcher) listen(conn *websocket.Conn, done chan struct{}) {
	defer w.wg.Done()
	defer close(done)
	for {
		var ev chessdto.Event
		if err := wsjson.Read(w.rootCtx, conn, &ev); err != nil {
			if w.isStopping() {
				return
			}
			w.setState(StateDisconnected)
			w.dropConn(conn, websocket.StatusGoingAway, "reconnect")
			w.scheduleReconnect()
			return
		}

		w.cbM.RLock()
		callbacks := make([]callbackEntry, len(w.eventCbs))
		copy(callbacks, w.eventCbs)
		w.cbM.RUnlock()
		for _, entry := range callbacks {
			if entry.callback != nil {
				entry.callback(&ev)
			}
		}
	}
}

// pingLoop closes conn after two failed pings; listen then takes over the reconnect.
func (w *Watcher) pingLoop(conn *websocket.Conn, done chan struct{}) {
	defer w.wg.Done()
	t := time.NewTicker(w.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-w.stopCh:
			return
		case <-done:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(w.rootCtx, 3*time.Second)
			err := conn.Ping(ctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				_ = conn.Close(websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}

func (w *Watcher) scheduleReconnect() {
	if w.maxReconnectAttempts <= 0 || w.isStopping() {
		return
	}
	w.setState(StateReconnecting)

	go func() {
		for attempt := 1; attempt <= w.maxReconnectAttempts; attempt++ {
			select {
			case <-w.stopCh:
				return
			case <-time.After(w.backoff(attempt)):
			}
			conn, err := w.dial(w.rootCtx)
			if err != nil {
				continue
			}
			w.start(conn)
			return
		}
		if !w.isStopping() {
			w.setState(StateFailed)
		}
	}()
}

func (w *Watcher) backoff(attempt int) time.Duration {
	if w.reconnectDelay <= 0 {
		return backoffDuration(attempt)
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * w.reconnectDelay
}

func (w *Watcher) OnEvent(cb EventCallback) int {
	w.cbM.Lock()
	defer w.cbM.Unlock()
	w.nextID++
	w.eventCbs = append(w.eventCbs, callbackEntry{id: w.nextID, callback: cb})
	return w.nextID
}

func (w *Watcher) RemoveEventCallback(id int) {
	w.cbM.Lock()
	defer w.cbM.Unlock()
	for i, cb := range w.eventCbs {
		if cb.id == id {
			w.eventCbs = append(w.eventCbs[:i], w.eventCbs[i+1:]...)
			break
		}
	}
}

func (w *Watcher) OnStateChange(cb StateCallback) int {
	w.cbM.Lock()
	defer w.cbM.Unlock()
	w.nextID++
	w.stateCbs = append(w.stateCbs, stateCallbackEntry{id: w.nextID, callback: cb})
	return w.nextID
}

func (w *Watcher) RemoveStateCallback(id int) {
	w.cbM.Lock()
	defer w.cbM.Unlock()
	for i, cb := range w.stateCbs {
		if cb.id == id {
			w.stateCbs = append(w.stateCbs[:i], w.stateCbs[i+1:]...)
			break
		}
	}
}

func (w *Watcher) setState(state WatchState) {
	w.stateM.Lock()
	w.state = state
	w.stateM.Unlock()

	w.cbM.RLock()
	callbacks := make([]stateCallbackEntry, len(w.stateCbs))
	copy(callbacks, w.stateCbs)
	w.cbM.RUnlock()
	for _, entry := range callbacks {
		if entry.callback != nil {
			entry.callback(state)
		}
	}
}

func (w *Watcher) Close(ctx context.Context) error {
	w.stopOnce.Do(func() { close(w.stopCh) })

	w.connM.Lock()
	w.stopped = true
	conn := w.conn
	w.conn = nil
	cancel := w.rootCancel
	w.connM.Unlock()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "close")
	}
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		w.setState(StateDisconnected)
		return nil
	}
}

func (w *Watcher) dropConn(conn *websocket.Conn, code websocket.StatusCode, reason string) {
	w.connM.Lock()
	if w.conn == conn {
		w.conn = nil
	}
	w.connM.Unlock()
	_ = conn.Close(code, reason)
}

func (w *Watcher) isStopping() bool {
	select {
	case <-w.stopCh:
		return true
	default:
		return false
	}
}

func (w *Watcher) buildHeaders() http.Header {
	hdr := http.Header{}
	if w.headerProvider == nil {
		return hdr
	}
	for k, v := range w.headerProvider() {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		hdr.Set(k, v)
	}
	return hdr
}
