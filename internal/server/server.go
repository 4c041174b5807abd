package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/lotas/tabgenius/internal/applog"
)

var (
	// ErrNotConnected means no extension is connected, or it disconnected
	// while a call was in flight.
	ErrNotConnected = errors.New("browser extension not connected")
	// ErrHost wraps a command the browser rejected.
	ErrHost = errors.New("browser rejected command")
)

// Inbound message types.
const (
	TypeResult        = "result"
	TypeGroupByDomain = "groupByDomain"
	TypeGroupByAI     = "groupByAI"
	TypeCancelGroup   = "cancelGroup"
	TypeSetAPIKey     = "setApiKey"
	TypeSetSettings   = "setSettings"
	TypeTabUpdated    = "tabUpdated"
)

// ChangeInfo is the changed part of a tabUpdated event.
type ChangeInfo struct {
	URL    string `json:"url,omitempty"`
	Status string `json:"status,omitempty"`
}

// IncomingMsg is a message from the extension: a control request, a
// tab event, or the result of a command the daemon sent.
type IncomingMsg struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`

	// Control requests
	Tabs      json.RawMessage `json:"tabs,omitempty"`
	Provider  string          `json:"provider,omitempty"`
	Config    json.RawMessage `json:"config,omitempty"`
	Grouping  string          `json:"grouping,omitempty"`
	AutoGroup string          `json:"autoGroup,omitempty"`
	SortOrder string          `json:"sortOrder,omitempty"`

	// tabUpdated
	TabID      int             `json:"tabId,omitempty"`
	ChangeInfo *ChangeInfo     `json:"changeInfo,omitempty"`
	Tab        json.RawMessage `json:"tab,omitempty"`

	// Command results
	OK      *bool           `json:"ok,omitempty"`
	Error   string          `json:"error,omitempty"`
	GroupID int             `json:"groupId,omitempty"`
	Window  json.RawMessage `json:"window,omitempty"`
	Windows json.RawMessage `json:"windows,omitempty"`
	Groups  json.RawMessage `json:"groups,omitempty"`
}

// GroupPayload describes a group created by a bulk request.
type GroupPayload struct {
	ID       int    `json:"id"`
	Title    string `json:"title"`
	Color    string `json:"color"`
	WindowID int    `json:"windowId"`
	TabIDs   []int  `json:"tabIds"`
}

// OutgoingMsg is a command to the extension or a reply to one of its
// requests.
type OutgoingMsg struct {
	ID            string `json:"id"`
	Action        string `json:"action"`
	TabID         int    `json:"tabId,omitempty"`
	TabIDs        []int  `json:"tabIds,omitempty"`
	WindowID      int    `json:"windowId,omitempty"`
	GroupID       int    `json:"groupId,omitempty"`
	Title         string `json:"title,omitempty"`
	Color         string `json:"color,omitempty"`
	CurrentWindow bool   `json:"currentWindow,omitempty"`
	Populate      bool   `json:"populate,omitempty"`
	// Reply fields
	OK     *bool          `json:"ok,omitempty"`
	Error  string         `json:"error,omitempty"`
	Groups []GroupPayload `json:"groups,omitempty"`
}

type callResult struct {
	msg IncomingMsg
	err error
}

// Server manages the WebSocket connection to the extension and correlates
// commands with their results.
type Server struct {
	port int
	msgs chan IncomingMsg

	mu      sync.Mutex
	conn    *websocket.Conn
	connCtx context.Context
	pending map[string]chan callResult
}

// New creates a new Server. Port 0 means the caller manages the listener.
func New(port int) *Server {
	return &Server{
		port:    port,
		msgs:    make(chan IncomingMsg, 64),
		pending: make(map[string]chan callResult),
	}
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

// Messages returns the channel of requests and events from the extension.
// Command results are not delivered here.
func (s *Server) Messages() <-chan IncomingMsg {
	return s.msgs
}

// Connected reports whether an extension is connected.
func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Send writes msg to the connected extension.
func (s *Server) Send(msg OutgoingMsg) error {
	s.mu.Lock()
	conn := s.conn
	ctx := s.connCtx
	s.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	applog.Info("ws.send", "action", msg.Action, "id", msg.ID)
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// Reply answers a control request.
func (s *Server) Reply(id string, err error, groups []GroupPayload) error {
	ok := err == nil
	msg := OutgoingMsg{ID: id, Action: "reply", OK: &ok, Groups: groups}
	if err != nil {
		msg.Error = err.Error()
	}
	return s.Send(msg)
}

// Call sends a command and waits for its result. A result with ok=false is
// returned as an ErrHost error.
func (s *Server) Call(ctx context.Context, msg OutgoingMsg) (IncomingMsg, error) {
	msg.ID = uuid.NewString()
	ch := make(chan callResult, 1)

	s.mu.Lock()
	if s.conn == nil {
		s.mu.Unlock()
		return IncomingMsg{}, ErrNotConnected
	}
	s.pending[msg.ID] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, msg.ID)
		s.mu.Unlock()
	}()

	if err := s.Send(msg); err != nil {
		return IncomingMsg{}, fmt.Errorf("send %s: %w", msg.Action, err)
	}

	select {
	case <-ctx.Done():
		return IncomingMsg{}, ctx.Err()
	case res := <-ch:
		if res.err != nil {
			return IncomingMsg{}, res.err
		}
		if res.msg.OK != nil && !*res.msg.OK {
			return res.msg, fmt.Errorf("%w: %s: %s", ErrHost, msg.Action, res.msg.Error)
		}
		return res.msg, nil
	}
}

// deliver hands a result to its waiting call. It reports false if no call
// is waiting for it.
func (s *Server) deliver(msg IncomingMsg) bool {
	s.mu.Lock()
	ch, ok := s.pending[msg.ID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- callResult{msg: msg}:
	default:
	}
	return true
}

// failPending aborts every in-flight call.
func (s *Server) failPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.pending {
		select {
		case ch <- callResult{err: ErrNotConnected}:
		default:
		}
		delete(s.pending, id)
	}
}

// Handler returns an http.Handler that accepts WebSocket upgrades.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			applog.Error("ws.accept", err)
			return
		}

		conn.SetReadLimit(16 << 20) // windows with many tabs can be large

		ctx := r.Context()
		s.mu.Lock()
		if s.conn != nil {
			applog.Info("ws.replaced")
			s.conn.CloseNow()
		}
		s.conn = conn
		s.connCtx = ctx
		s.mu.Unlock()

		applog.Info("ws.connected", "remote", r.RemoteAddr)

		defer func() {
			s.mu.Lock()
			current := s.conn == conn
			if current {
				s.conn = nil
				s.connCtx = nil
			}
			s.mu.Unlock()
			if current {
				s.failPending()
			}
			conn.CloseNow()
			applog.Info("ws.disconnected")
		}()

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var msg IncomingMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				applog.Error("ws.parse", err)
				continue
			}
			if msg.Type == TypeResult {
				if !s.deliver(msg) {
					applog.Info("ws.orphan_result", "id", msg.ID)
				}
				continue
			}
			applog.Info("ws.recv", "type", msg.Type, "id", msg.ID)
			select {
			case s.msgs <- msg:
			default:
				applog.Info("ws.dropped", "type", msg.Type)
			}
		}
	})
}
