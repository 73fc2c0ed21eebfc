package socket

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/Koteika1156/PSU-DB-LAB/internal/config"
	"github.com/Koteika1156/PSU-DB-LAB/internal/errs"
	"github.com/Koteika1156/PSU-DB-LAB/internal/logging"
	"github.com/Koteika1156/PSU-DB-LAB/internal/transport"
)

// Server accepts connections and splits each one into messages.
//
// Every accepted connection is served by its own goroutine, bounded by a
// ConnLimiter. A failed TLS handshake or read error closes that connection
// only. On shutdown the listener is closed, pending reads are interrupted
// and the server waits up to the shutdown timeout for handlers to finish.
type Server struct {
	addr             string
	tlsConfig        *tls.Config
	handshakeTimeout time.Duration
	maxMessageBytes  int
	shutdownTimeout  time.Duration
	limiter          *ConnLimiter

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closing  bool
}

var _ transport.Receiver = (*Server)(nil)

// NewServer builds a server from socket settings. tlsConfig may be nil.
func NewServer(cfg config.SocketConfig, tlsConfig *tls.Config, shutdownTimeout time.Duration) *Server {
	handshake := cfg.HandshakeTimeout
	if handshake <= 0 {
		handshake = 10 * time.Second
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	return &Server{
		addr:             cfg.Addr(),
		tlsConfig:        tlsConfig,
		handshakeTimeout: handshake,
		maxMessageBytes:  cfg.MaxMessageBytes,
		shutdownTimeout:  shutdownTimeout,
		limiter:          NewConnLimiter(cfg.MaxConnections),
		conns:            make(map[net.Conn]struct{}),
	}
}

// Name implements transport.Receiver.
func (s *Server) Name() string { return transport.NameSocket }

// Listen binds the server address. Serve calls it when needed; calling it
// first lets callers learn the bound address (useful with port 0).
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errs.Transport("socket.Listen", fmt.Errorf("bind %s: %w", s.addr, err))
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Limiter exposes the connection limiter for health reporting.
func (s *Server) Limiter() *ConnLimiter { return s.limiter }

// Ping reports an error while every connection slot is taken.
func (s *Server) Ping(context.Context) error {
	if s.limiter.Available() == 0 {
		return fmt.Errorf("all %d connection slots in use", s.limiter.MaxConnections())
	}
	return nil
}

// Serve accepts connections until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, h transport.Handler) error {
	if err := s.Listen(); err != nil {
		return err
	}

	ctx = logging.WithAttrs(ctx, slog.String("transport", transport.NameSocket))
	logger := logging.FromContext(ctx)
	logger.Info("socket server listening",
		"addr", s.Addr().String(),
		"tls", s.tlsConfig != nil,
		"max_connections", s.limiter.MaxConnections(),
	)

	stop := context.AfterFunc(ctx, s.closeListener)
	defer stop()

	var tempDelay time.Duration
	for {
		if err := s.limiter.Acquire(ctx); err != nil {
			break
		}

		conn, err := s.listener.Accept()
		if err != nil {
			s.limiter.Release()
			if ctx.Err() != nil || s.isClosing() {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				s.shutdown(logger)
				return errs.Transport("socket.Serve", fmt.Errorf("accept: %w", err))
			}
			// A failed accept (EMFILE, ENOBUFS, an aborted peer) costs
			// only that connection; keep listening.
			tempDelay = backoff(tempDelay)
			logger.Warn("accept failed, retrying", "error", err, "delay", tempDelay)
			select {
			case <-time.After(tempDelay):
			case <-ctx.Done():
			}
			continue
		}
		tempDelay = 0

		s.track(conn)
		go s.serveConn(ctx, conn, h)
	}

	s.shutdown(logger)
	return nil
}

func backoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > time.Second {
		d = time.Second
	}
	return d
}

func (s *Server) closeListener() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closing = true
	if s.listener != nil {
		s.listener.Close()
	}
}

// shutdown interrupts blocked reads and waits for workers to return.
func (s *Server) shutdown(logger *slog.Logger) {
	s.closeListener()

	s.mu.Lock()
	for c := range s.conns {
		_ = c.SetReadDeadline(time.Now())
	}
	s.mu.Unlock()

	drainCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := s.limiter.WaitForDrain(drainCtx); err != nil {
		logger.Warn("shutdown timeout reached, abandoning connection workers",
			"active", s.limiter.ActiveCount())
		return
	}
	logger.Info("socket server stopped")
}

func (s *Server) track(c net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[c] = struct{}{}
	if s.closing {
		_ = c.SetReadDeadline(time.Now())
	}
}

func (s *Server) untrack(c net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *Server) serveConn(ctx context.Context, raw net.Conn, h transport.Handler) {
	defer s.limiter.Release()
	defer s.untrack(raw)
	defer raw.Close()

	// Handlers finish their message even after shutdown begins.
	hctx := logging.WithAttrs(context.WithoutCancel(ctx),
		slog.String("remote_addr", raw.RemoteAddr().String()))
	logger := logging.FromContext(hctx)

	var conn net.Conn = raw
	if s.tlsConfig != nil {
		tlsConn := tls.Server(raw, s.tlsConfig)
		_ = raw.SetDeadline(time.Now().Add(s.handshakeTimeout))
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			logger.Warn("tls handshake failed",
				"error", errs.Loggable(errs.Transport("socket.Handshake", err)))
			return
		}
		_ = raw.SetDeadline(time.Time{})
		if s.isClosing() {
			_ = raw.SetReadDeadline(time.Now())
		}
		conn = tlsConn
	}

	logger.Debug("connection accepted")

	sc := newScanner(conn, s.maxMessageBytes)
	messages := 0
	for sc.Scan() {
		frame := sc.Bytes()
		if blank(frame) {
			continue
		}
		messages++
		h(hctx, frame)
	}

	switch err := sc.Err(); {
	case err == nil:
	case errors.Is(err, bufio.ErrTooLong):
		logger.Warn("message exceeds size limit, closing connection",
			"limit_bytes", s.maxMessageBytes)
	case errors.Is(err, net.ErrClosed), errors.Is(err, os.ErrDeadlineExceeded) && s.isClosing():
	default:
		logger.Warn("connection read failed",
			"error", errs.Loggable(errs.Transport("socket.Read", err)))
	}

	logger.Debug("connection closed", "messages", messages)
}
