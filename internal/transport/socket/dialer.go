package socket

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/Koteika1156/PSU-DB-LAB/internal/config"
	"github.com/Koteika1156/PSU-DB-LAB/internal/errs"
	"github.com/Koteika1156/PSU-DB-LAB/internal/transport"
)

// Dialer sends newline framed messages to the importer's socket server.
//
// With PerMessage set every Send opens and closes its own connection.
// Otherwise one connection is kept for the run and redialled on the next
// Send after a write failure.
type Dialer struct {
	addr       string
	timeout    time.Duration
	tlsConfig  *tls.Config
	perMessage bool

	mu   sync.Mutex
	conn net.Conn
}

var _ transport.Sender = (*Dialer)(nil)

// NewDialer builds a dialer from socket settings. tlsConfig may be nil.
func NewDialer(cfg config.SocketConfig, tlsConfig *tls.Config) *Dialer {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dialer{
		addr:       cfg.Addr(),
		timeout:    timeout,
		tlsConfig:  tlsConfig,
		perMessage: cfg.PerMessage,
	}
}

// Send writes msg followed by the delimiter.
func (d *Dialer) Send(ctx context.Context, msg []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.perMessage {
		conn, err := d.dial(ctx)
		if err != nil {
			return err
		}
		werr := write(ctx, conn, msg)
		cerr := conn.Close()
		if werr != nil {
			return werr
		}
		if cerr != nil {
			return errs.Transport("socket.Send", fmt.Errorf("close: %w", cerr))
		}
		return nil
	}

	if d.conn == nil {
		conn, err := d.dial(ctx)
		if err != nil {
			return err
		}
		d.conn = conn
	}
	if err := write(ctx, d.conn, msg); err != nil {
		d.conn.Close()
		d.conn = nil
		return err
	}
	return nil
}

// Close releases the run connection, if any.
func (d *Dialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}

func (d *Dialer) dial(ctx context.Context) (net.Conn, error) {
	nd := &net.Dialer{Timeout: d.timeout}

	var (
		conn net.Conn
		err  error
	)
	if d.tlsConfig != nil {
		td := &tls.Dialer{NetDialer: nd, Config: d.tlsConfig}
		conn, err = td.DialContext(ctx, "tcp", d.addr)
	} else {
		conn, err = nd.DialContext(ctx, "tcp", d.addr)
	}
	if err != nil {
		return nil, errs.Transport("socket.Dial", fmt.Errorf("connect %s: %w", d.addr, err))
	}
	return conn, nil
}

func write(ctx context.Context, conn net.Conn, msg []byte) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}

	frame := make([]byte, 0, len(msg)+1)
	frame = append(frame, msg...)
	frame = append(frame, Delimiter)

	if _, err := conn.Write(frame); err != nil {
		return errs.Transport("socket.Send", fmt.Errorf("write: %w", err))
	}
	return nil
}
