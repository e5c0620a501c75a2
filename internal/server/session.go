package server

import (
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"mapsync/internal/protocol"
)

// Session is one client connection. Its outbound frames go through a
// bounded queue drained by a dedicated writer goroutine so the server
// never writes to a socket while holding its mutex.
type Session struct {
	id     uuid.UUID
	remote string
	conn   io.ReadWriteCloser
	logger *slog.Logger

	// username is set once at login under the server mutex.
	username string
	limiter  *rate.Limiter

	queue      chan []byte
	done       chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once
	final      []byte
}

func newSession(conn io.ReadWriteCloser, remote string, queueSize int, limiter *rate.Limiter, logger *slog.Logger) *Session {
	id := uuid.New()
	return &Session{
		id:         id,
		remote:     remote,
		conn:       conn,
		logger:     logger.With("session", id.String(), "remote", remote),
		limiter:    limiter,
		queue:      make(chan []byte, queueSize),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
}

func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) Username() string { return s.username }

func (s *Session) Remote() string { return s.remote }

// enqueue queues an encoded frame without blocking. It reports false when
// the queue is full or the session is closing.
func (s *Session) enqueue(frame []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.queue <- frame:
		return true
	default:
		return false
	}
}

// close stops the writer after it has flushed the queue. A non-nil final
// frame is written last, then the connection is closed.
func (s *Session) close(final []byte) {
	s.closeOnce.Do(func() {
		s.final = final
		close(s.done)
	})
}

// abort closes the connection immediately, dropping anything queued.
func (s *Session) abort() {
	s.close(nil)
	_ = s.conn.Close()
}

func (s *Session) writeLoop() {
	defer close(s.writerDone)
	defer func() { _ = s.conn.Close() }()

	for {
		select {
		case frame := <-s.queue:
			if err := protocol.WriteFrame(s.conn, frame); err != nil {
				s.logger.Debug("write failed", "error", err)
				s.close(nil)
				return
			}
		case <-s.done:
			s.flush()
			return
		}
	}
}

func (s *Session) flush() {
	for {
		select {
		case frame := <-s.queue:
			if err := protocol.WriteFrame(s.conn, frame); err != nil {
				return
			}
		default:
			if s.final != nil {
				_ = protocol.WriteFrame(s.conn, s.final)
			}
			return
		}
	}
}
