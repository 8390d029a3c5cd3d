package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// FeedServer is an in-process feed endpoint for tests. It serves the
// same scripted JSONL lines over both transports: GET /stream is an SSE
// stream, GET /ws upgrades to a WebSocket, and POST /publish captures
// publish bodies. Lines set with SetScript are sent on connect; Push
// fans additional lines out to every live connection. Fault injection
// covers rejected connects, dropped connections, and silenced pongs.
type FeedServer struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu               sync.Mutex
	script           []string
	interval         time.Duration
	closeAfterScript bool
	silencePongs     bool
	rejects          []int
	conns            map[int64]*feedConn
	nextID           int64
	total            int
	published        []string
}

// feedConn is one live connection's server-side handle.
type feedConn struct {
	push chan string
	drop chan struct{}
}

// NewFeedServer starts the server. Callers own the shutdown via Close.
func NewFeedServer() *FeedServer {
	fs := &FeedServer{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[int64]*feedConn),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/stream", fs.handleSSE)
	mux.HandleFunc("/ws", fs.handleWS)
	mux.HandleFunc("/publish", fs.handlePublish)
	fs.srv = httptest.NewServer(mux)
	return fs
}

// Close drops every connection and shuts the server down.
func (fs *FeedServer) Close() {
	fs.DropConnections()
	fs.srv.Close()
}

// URL returns the http base URL.
func (fs *FeedServer) URL() string {
	return fs.srv.URL
}

// StreamURL returns the SSE endpoint.
func (fs *FeedServer) StreamURL() string {
	return fs.srv.URL + "/stream"
}

// SocketURL returns the WebSocket endpoint with the ws scheme.
func (fs *FeedServer) SocketURL() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http") + "/ws"
}

// PublishURL returns the POST capture endpoint.
func (fs *FeedServer) PublishURL() string {
	return fs.srv.URL + "/publish"
}

// SetScript sets the lines every new connection receives on connect.
func (fs *FeedServer) SetScript(lines ...string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.script = append([]string(nil), lines...)
}

// SetInterval spaces scripted lines by d instead of sending them
// back-to-back.
func (fs *FeedServer) SetInterval(d time.Duration) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.interval = d
}

// CloseAfterScript ends each connection once its script is sent,
// simulating a server that hangs up mid-stream.
func (fs *FeedServer) CloseAfterScript() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.closeAfterScript = true
}

// SilencePongs stops answering WebSocket pings on later connections, so
// a client with keepalive enabled times out.
func (fs *FeedServer) SilencePongs() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.silencePongs = true
}

// RejectNext answers the next connection attempt with the given HTTP
// status instead of a stream. Stacks in order across both endpoints.
func (fs *FeedServer) RejectNext(status int) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.rejects = append(fs.rejects, status)
}

// Push sends lines to every live connection. Connections that fell
// behind a full buffer miss them rather than blocking the test.
func (fs *FeedServer) Push(lines ...string) {
	fs.mu.Lock()
	targets := make([]*feedConn, 0, len(fs.conns))
	for _, c := range fs.conns {
		targets = append(targets, c)
	}
	fs.mu.Unlock()

	for _, c := range targets {
		for _, line := range lines {
			select {
			case c.push <- line:
			case <-c.drop:
			default:
			}
		}
	}
}

// PushJSON marshals v and pushes it as one line.
func (fs *FeedServer) PushJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	fs.Push(string(data))
	return nil
}

// DropConnections force-closes every live connection, the way a dead
// upstream would.
func (fs *FeedServer) DropConnections() {
	fs.mu.Lock()
	conns := fs.conns
	fs.conns = make(map[int64]*feedConn)
	fs.mu.Unlock()

	for _, c := range conns {
		close(c.drop)
	}
}

// ActiveConnections returns how many connections are currently open.
func (fs *FeedServer) ActiveConnections() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.conns)
}

// TotalConnections returns how many connections were ever accepted.
func (fs *FeedServer) TotalConnections() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.total
}

// Published returns the captured POST bodies, oldest first.
func (fs *FeedServer) Published() []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	out := make([]string, len(fs.published))
	copy(out, fs.published)
	return out
}

// checkReject consumes one scripted rejection, reporting whether the
// request should be refused.
func (fs *FeedServer) checkReject(w http.ResponseWriter) bool {
	fs.mu.Lock()
	if len(fs.rejects) == 0 {
		fs.mu.Unlock()
		return false
	}
	status := fs.rejects[0]
	fs.rejects = fs.rejects[1:]
	fs.mu.Unlock()

	http.Error(w, http.StatusText(status), status)
	return true
}

// register adds a connection, returning its handle, the script to
// replay, whether to hang up after it, and the cleanup.
func (fs *FeedServer) register() (*feedConn, []string, bool, func()) {
	c := &feedConn{
		push: make(chan string, 256),
		drop: make(chan struct{}),
	}

	fs.mu.Lock()
	fs.nextID++
	id := fs.nextID
	fs.conns[id] = c
	fs.total++
	script := append([]string(nil), fs.script...)
	closeAfter := fs.closeAfterScript
	fs.mu.Unlock()

	return c, script, closeAfter, func() {
		fs.mu.Lock()
		delete(fs.conns, id)
		fs.mu.Unlock()
	}
}

func (fs *FeedServer) pushInterval() time.Duration {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.interval
}

func (fs *FeedServer) handleSSE(w http.ResponseWriter, r *http.Request) {
	if fs.checkReject(w) {
		return
	}

	c, script, closeAfter, unregister := fs.register()
	defer unregister()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	interval := fs.pushInterval()
	ctx := r.Context()

	write := func(line string) bool {
		fmt.Fprintf(w, "data: %s\n\n", line)
		if flusher != nil {
			flusher.Flush()
		}
		if interval > 0 {
			select {
			case <-time.After(interval):
			case <-ctx.Done():
				return false
			case <-c.drop:
				return false
			}
		}
		return true
	}

	for _, line := range script {
		if !write(line) {
			return
		}
	}
	if closeAfter {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.drop:
			return
		case line := <-c.push:
			if !write(line) {
				return
			}
		}
	}
}

func (fs *FeedServer) handleWS(w http.ResponseWriter, r *http.Request) {
	if fs.checkReject(w) {
		return
	}

	conn, err := fs.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	fs.mu.Lock()
	silence := fs.silencePongs
	fs.mu.Unlock()
	if silence {
		conn.SetPingHandler(func(string) error { return nil })
	}

	c, script, closeAfter, unregister := fs.register()
	defer unregister()

	// Read pump: services control frames and detects client close.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	interval := fs.pushInterval()

	write := func(line string) bool {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(line+"\n")); err != nil {
			return false
		}
		if interval > 0 {
			select {
			case <-time.After(interval):
			case <-readDone:
				return false
			case <-c.drop:
				return false
			}
		}
		return true
	}

	for _, line := range script {
		if !write(line) {
			return
		}
	}
	if closeAfter {
		return
	}

	for {
		select {
		case <-readDone:
			return
		case <-c.drop:
			return
		case line := <-c.push:
			if !write(line) {
				return
			}
		}
	}
}

func (fs *FeedServer) handlePublish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	fs.mu.Lock()
	fs.published = append(fs.published, string(body))
	fs.mu.Unlock()

	w.WriteHeader(http.StatusAccepted)
}
