// Package fc2ws is the WebSocket Control Channel (C3): the
// long-lived connection that keeps a recording session alive,
// correlates request/response pairs, and demultiplexes chat and
// disconnect events.
package fc2ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fc2-live-dl/fc2-live-dl-go/internal/domain"
	"github.com/fc2-live-dl/fc2-live-dl-go/internal/metrics"
)

// HeartbeatInterval is both the keepalive cadence and the per-receive
// read deadline (spec.md §4.2, §5).
const HeartbeatInterval = 30 * time.Second

// State is the lifecycle of one control channel connection.
type State int

const (
	StateConnecting State = iota
	StateConnected
	StateReady
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

// outboundMessage is every frame this client ever sends.
type outboundMessage struct {
	Name      string `json:"name"`
	Arguments any    `json:"arguments,omitempty"`
	ID        int64  `json:"id"`
}

// inboundMessage is every frame shape the server may send.
type inboundMessage struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	ID        int64           `json:"id,omitempty"`
}

// Comment is one chat event, kept as a raw JSON value since the
// orchestrator only ever re-serializes it verbatim to the chat file.
type Comment = json.RawMessage

// PlaylistPayload is the decoded get_hls_information response body.
type PlaylistPayload struct {
	Playlists              []domain.Playlist `json:"playlists"`
	PlaylistsHighLatency   []domain.Playlist `json:"playlists_high_latency"`
	PlaylistsMiddleLatency []domain.Playlist `json:"playlists_middle_latency"`
}

// Merged concatenates every playlist bucket the payload carries.
func (p PlaylistPayload) Merged() []domain.Playlist {
	all := make([]domain.Playlist, 0, len(p.Playlists)+len(p.PlaylistsHighLatency)+len(p.PlaylistsMiddleLatency))
	all = append(all, p.Playlists...)
	all = append(all, p.PlaylistsHighLatency...)
	all = append(all, p.PlaylistsMiddleLatency...)
	return all
}

type pendingResponse struct {
	arguments json.RawMessage
	err       error
}

// Channel is one control WebSocket connection (C3).
type Channel struct {
	conn *websocket.Conn
	log  *slog.Logger

	state  atomic.Int32
	nextID atomic.Int64

	writeMu sync.Mutex
	dump    *os.File

	waitersMu sync.Mutex
	waiters   map[int64]chan pendingResponse

	comments chan Comment

	doneCh   chan struct{}
	doneErr  error
	doneOnce sync.Once
}

// Dial opens the control WebSocket and starts its receive loop.
// dumpPath, if non-empty, receives every inbound/outbound frame for
// debugging (spec.md §4.2).
func Dial(ctx context.Context, wsURL string, dumpPath string, logger *slog.Logger) (*Channel, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial control websocket: %w", err)
	}

	var dump *os.File
	if dumpPath != "" {
		dump, err = os.OpenFile(dumpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("open websocket dump file: %w", err)
		}
	}

	ch := &Channel{
		conn:     conn,
		log:      logger,
		dump:     dump,
		waiters:  make(map[int64]chan pendingResponse),
		comments: make(chan Comment, 64),
		doneCh:   make(chan struct{}),
	}
	ch.state.Store(int32(StateConnecting))
	go ch.receiveLoop()
	return ch, nil
}

// State returns the channel's current lifecycle state.
func (c *Channel) State() State {
	return State(c.state.Load())
}

// Comments returns the lazy stream of comment events. It closes when
// the receive loop exits.
func (c *Channel) Comments() <-chan Comment {
	return c.comments
}

// WaitDisconnection blocks until the receive loop ends, returning nil
// for a clean shutdown (Close was called) or the fatal error otherwise.
func (c *Channel) WaitDisconnection(ctx context.Context) error {
	select {
	case <-c.doneCh:
		return c.doneErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetHLSInformation requests the HLS playlist set, retrying up to 5
// times with exponential backoff on timeout or a response lacking
// playlists (spec.md §4.2).
func (c *Channel) GetHLSInformation(ctx context.Context) (PlaylistPayload, error) {
	const maxAttempts = 5
	for attempt := 0; attempt < maxAttempts; attempt++ {
		reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		args, err := c.sendAndWait(reqCtx, "get_hls_information", nil)
		cancel()
		if err == nil {
			var payload PlaylistPayload
			if json.Unmarshal(args, &payload) == nil && len(payload.Merged()) > 0 {
				return payload, nil
			}
			c.log.WarnContext(ctx, "get_hls_information response had no playlists", "attempt", attempt+1)
		} else {
			c.log.WarnContext(ctx, "get_hls_information attempt failed", "attempt", attempt+1, "error", err)
		}

		if attempt == maxAttempts-1 {
			break
		}
		backoff := time.Duration(1<<uint(attempt)) * time.Second
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return PlaylistPayload{}, ctx.Err()
		}
	}
	return PlaylistPayload{}, domain.ErrEmptyPlaylist
}

// sendAndWait allocates the next message id, sends name/arguments, and
// races the matching _response_ frame against reqCtx expiring and the
// receive loop ending (spec.md §4.2 send_and_wait).
func (c *Channel) sendAndWait(reqCtx context.Context, name string, arguments any) (json.RawMessage, error) {
	id := c.nextID.Add(1)
	slot := make(chan pendingResponse, 1)
	c.waitersMu.Lock()
	c.waiters[id] = slot
	c.waitersMu.Unlock()
	defer func() {
		c.waitersMu.Lock()
		delete(c.waiters, id)
		c.waitersMu.Unlock()
	}()

	if err := c.send(outboundMessage{Name: name, Arguments: arguments, ID: id}); err != nil {
		return nil, err
	}

	select {
	case resp := <-slot:
		return resp.arguments, resp.err
	case <-c.doneCh:
		return nil, c.doneErr
	case <-reqCtx.Done():
		return nil, reqCtx.Err()
	}
}

// Heartbeat sends an unacknowledged keepalive frame.
func (c *Channel) heartbeat() error {
	if err := c.send(outboundMessage{Name: "heartbeat", ID: c.nextID.Add(1)}); err != nil {
		return err
	}
	metrics.HeartbeatsSentTotal.Inc()
	return nil
}

func (c *Channel) send(msg outboundMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.dump != nil {
		fmt.Fprintf(c.dump, "> %s\n", raw)
	}
	return c.conn.WriteMessage(websocket.TextMessage, raw)
}

// Close begins a graceful shutdown: the underlying connection is
// closed, which unblocks the receive loop and any pending waiters.
func (c *Channel) Close() error {
	c.state.Store(int32(StateClosing))
	err := c.conn.Close()
	if c.dump != nil {
		c.dump.Close()
	}
	return err
}

func (c *Channel) finish(err error) {
	c.doneOnce.Do(func() {
		c.doneErr = err
		c.state.Store(int32(StateClosed))
		close(c.doneCh)
		close(c.comments)

		c.waitersMu.Lock()
		for id, slot := range c.waiters {
			slot <- pendingResponse{err: err}
			delete(c.waiters, id)
		}
		c.waitersMu.Unlock()
	})
}

// receiveLoop consumes frames until the connection ends, dispatching
// each to the right waiter/stream and issuing a heartbeat whenever
// HeartbeatInterval has elapsed since the last one (spec.md §4.2).
func (c *Channel) receiveLoop() {
	c.state.Store(int32(StateConnected))
	lastHeartbeat := time.Now()

	for {
		_ = c.conn.SetReadDeadline(time.Now().Add(HeartbeatInterval))
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if c.State() == StateClosing {
				c.finish(nil)
				return
			}
			c.finish(fmt.Errorf("control channel receive: %w", err))
			return
		}
		if c.dump != nil {
			c.writeMu.Lock()
			fmt.Fprintf(c.dump, "< %s\n", raw)
			c.writeMu.Unlock()
		}

		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Warn("unparseable control frame", "error", err)
			continue
		}

		switch msg.Name {
		case "connect_complete":
			c.state.Store(int32(StateReady))
		case "_response_":
			c.dispatchResponse(msg.ID, msg.Arguments)
		case "control_disconnection":
			var args struct {
				Code int `json:"code"`
			}
			_ = json.Unmarshal(msg.Arguments, &args)
			kind := domain.DisconnectKindFromCode(args.Code)
			c.finish(&domain.DisconnectionError{Kind: kind, Code: args.Code})
			return
		case "comment":
			c.dispatchComments(msg.Arguments)
		}

		if time.Since(lastHeartbeat) >= HeartbeatInterval {
			if err := c.heartbeat(); err != nil {
				c.finish(fmt.Errorf("send heartbeat: %w", err))
				return
			}
			lastHeartbeat = time.Now()
		}
	}
}

func (c *Channel) dispatchResponse(id int64, arguments json.RawMessage) {
	c.waitersMu.Lock()
	slot, ok := c.waiters[id]
	if ok {
		delete(c.waiters, id)
	}
	c.waitersMu.Unlock()
	if ok {
		slot <- pendingResponse{arguments: arguments}
	}
}

func (c *Channel) dispatchComments(arguments json.RawMessage) {
	var payload struct {
		Comments []Comment `json:"comments"`
	}
	if err := json.Unmarshal(arguments, &payload); err != nil {
		return
	}
	for _, comment := range payload.Comments {
		select {
		case c.comments <- comment:
		default:
			c.log.Warn("dropping comment, consumer is not keeping up")
		}
	}
}
