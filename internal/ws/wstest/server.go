// Package wstest runs an in-process recognition server that speaks enough
// of the protocol to drive a client end to end: it echoes probes, answers
// frames, and walks the registration hand-off.
package wstest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/coder/websocket"
)

// Ack is how the server answers one FRAME.
type Ack int

const (
	AckProcessed Ack = iota
	AckWarning
	AckNone
)

type Message struct {
	Type string
	Raw  []byte
}

type Server struct {
	URL string

	srv      *httptest.Server
	recv     chan Message
	ack      func(frame int) Ack
	storedID int64

	mu     sync.Mutex
	conns  []*websocket.Conn
	frames int
}

type Option func(*Server)

// WithAck decides the answer to the n-th frame (1-based).
func WithAck(f func(frame int) Ack) Option {
	return func(s *Server) { s.ack = f }
}

func WithStoredID(id int64) Option {
	return func(s *Server) { s.storedID = id }
}

func NewServer(t testing.TB, opts ...Option) *Server {
	t.Helper()
	s := &Server{
		recv:     make(chan Message, 4096),
		ack:      func(int) Ack { return AckProcessed },
		storedID: 20240101120000,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	s.URL = "ws" + strings.TrimPrefix(s.srv.URL, "http")
	t.Cleanup(s.Close)
	return s
}

// Received yields every message the server read, in order.
func (s *Server) Received() <-chan Message { return s.recv }

// Accepted is the number of connections accepted so far.
func (s *Server) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Push writes raw to the most recent connection.
func (s *Server) Push(ctx context.Context, raw string) error {
	s.mu.Lock()
	var c *websocket.Conn
	if n := len(s.conns); n > 0 {
		c = s.conns[n-1]
	}
	s.mu.Unlock()
	if c == nil {
		return errors.New("no connection")
	}
	return c.Write(ctx, websocket.MessageText, []byte(raw))
}

// DropAll closes every connection without a close handshake.
func (s *Server) DropAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		_ = c.CloseNow()
	}
}

func (s *Server) Close() {
	s.DropAll()
	s.srv.Close()
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(8 << 20)

	s.mu.Lock()
	s.conns = append(s.conns, conn)
	s.mu.Unlock()

	ctx := r.Context()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var env struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		select {
		case s.recv <- Message{Type: env.Type, Raw: data}:
		default:
		}

		if reply := s.reply(env.Type); reply != "" {
			if err := conn.Write(ctx, websocket.MessageText, []byte(reply)); err != nil {
				return
			}
		}
	}
}

func (s *Server) reply(tag string) string {
	switch tag {
	case "NULL":
		return `{"type":"NULL"}`
	case "FRAME":
		s.mu.Lock()
		s.frames++
		n := s.frames
		s.mu.Unlock()
		switch s.ack(n) {
		case AckProcessed:
			return `{"type":"PROCESSED"}`
		case AckWarning:
			return `{"type":"WARNING","message":"No face found, please be present in front of the camera, alone!!"}`
		}
	case "INFO":
		return `{"type":"END_FACE_COLLECTION"}`
	case "STOPPED_ACK":
		return `{"type":"STORED_PAGE2","id":` + strconv.FormatInt(s.storedID, 10) + `}`
	}
	return ""
}
