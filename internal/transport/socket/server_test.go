package socket

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Koteika1156/PSU-DB-LAB/internal/config"
	"github.com/Koteika1156/PSU-DB-LAB/internal/errs"
)

// collector records handled messages.
type collector struct {
	mu   sync.Mutex
	msgs []string
	got  chan struct{}
}

func newCollector() *collector {
	return &collector{got: make(chan struct{}, 100)}
}

func (c *collector) handle(_ context.Context, msg []byte) {
	c.mu.Lock()
	c.msgs = append(c.msgs, string(msg))
	c.mu.Unlock()
	c.got <- struct{}{}
}

func (c *collector) wait(t *testing.T, n int) []string {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.got:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for message %d of %d", i+1, n)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.msgs...)
}

func socketConfig() config.SocketConfig {
	return config.SocketConfig{
		Host:             "127.0.0.1",
		Port:             0,
		ConnectTimeout:   2 * time.Second,
		HandshakeTimeout: 2 * time.Second,
		PerMessage:       true,
		MaxConnections:   4,
		MaxMessageBytes:  DefaultMaxMessageBytes,
	}
}

// startServer runs srv in the background and returns the bound port.
func startServer(t *testing.T, srv *Server, h func(context.Context, []byte)) (int, func() error) {
	t.Helper()
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, h) }()

	stop := func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("server did not stop")
			return nil
		}
	}
	t.Cleanup(func() { cancel() })

	return srv.Addr().(*net.TCPAddr).Port, stop
}

func TestServerReceivesPerMessageConnections(t *testing.T) {
	c := newCollector()
	srv := NewServer(socketConfig(), nil, time.Second)
	port, stop := startServer(t, srv, c.handle)

	cfg := socketConfig()
	cfg.Port = port
	d := NewDialer(cfg, nil)
	defer d.Close()

	for _, m := range []string{"first", "second", "third"} {
		require.NoError(t, d.Send(context.Background(), []byte(m)))
	}

	got := c.wait(t, 3)
	assert.ElementsMatch(t, []string{"first", "second", "third"}, got)
	assert.NoError(t, stop())
}

func TestServerReceivesOnSharedConnectionInOrder(t *testing.T) {
	c := newCollector()
	srv := NewServer(socketConfig(), nil, time.Second)
	port, stop := startServer(t, srv, c.handle)

	cfg := socketConfig()
	cfg.Port = port
	cfg.PerMessage = false
	d := NewDialer(cfg, nil)

	for i := 0; i < 5; i++ {
		require.NoError(t, d.Send(context.Background(), []byte("msg-"+strconv.Itoa(i))))
	}
	require.NoError(t, d.Close())

	got := c.wait(t, 5)
	assert.Equal(t, []string{"msg-0", "msg-1", "msg-2", "msg-3", "msg-4"}, got)
	assert.NoError(t, stop())
}

func TestServerReassemblesPartialWrites(t *testing.T) {
	c := newCollector()
	srv := NewServer(socketConfig(), nil, time.Second)
	port, stop := startServer(t, srv, c.handle)

	msg := `{"scheme":"plain","payload":{"plaintext_b64":"e30="},"meta":{"source_table":"hospital_records"}}`

	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	require.NoError(t, err)
	for _, part := range []string{msg[:5], msg[5:40], msg[40:] + "\n"} {
		_, err := conn.Write([]byte(part))
		require.NoError(t, err)
		time.Sleep(20 * time.Millisecond)
	}
	// A trailing fragment without a newline is never delivered.
	_, err = conn.Write([]byte(`{"scheme":"pl`))
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	got := c.wait(t, 1)
	assert.Equal(t, []string{msg}, got)

	assert.NoError(t, stop())
	c.mu.Lock()
	assert.Len(t, c.msgs, 1)
	c.mu.Unlock()
}

func TestDialerConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	cfg := socketConfig()
	cfg.Port = port
	err = NewDialer(cfg, nil).Send(context.Background(), []byte("x"))
	require.Error(t, err)
	assert.Equal(t, errs.KindTransport, errs.KindOf(err))
}

func TestServerBindFailureIsTransportError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := socketConfig()
	cfg.Port = ln.Addr().(*net.TCPAddr).Port
	err = NewServer(cfg, nil, time.Second).Serve(context.Background(), func(context.Context, []byte) {})
	require.Error(t, err)
	assert.True(t, errs.IsFatal(err))
}

func TestServerTLSRoundTripAndHandshakeFailure(t *testing.T) {
	certFile, keyFile := writeSelfSigned(t)

	serverTLS, err := ServerTLSConfig(certFile, keyFile)
	require.NoError(t, err)

	c := newCollector()
	srv := NewServer(socketConfig(), serverTLS, time.Second)
	port, stop := startServer(t, srv, c.handle)

	// A plaintext client fails the handshake; the server keeps running.
	raw, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	require.NoError(t, err)
	_, _ = raw.Write([]byte("not a tls client hello\n"))
	raw.Close()

	// A client that does not trust the server certificate is rejected.
	untrusted := socketConfig()
	untrusted.Port = port
	err = NewDialer(untrusted, &tls.Config{RootCAs: x509.NewCertPool(), ServerName: "127.0.0.1"}).
		Send(context.Background(), []byte("nope"))
	require.Error(t, err)
	assert.Equal(t, errs.KindTransport, errs.KindOf(err))

	clientTLS, err := ClientTLSConfig(certFile, "127.0.0.1")
	require.NoError(t, err)

	cfg := socketConfig()
	cfg.Port = port
	d := NewDialer(cfg, clientTLS)
	require.NoError(t, d.Send(context.Background(), []byte(`{"scheme":"tls"}`)))

	got := c.wait(t, 1)
	assert.Equal(t, []string{`{"scheme":"tls"}`}, got)
	assert.NoError(t, stop())
}

func TestServerShutdownInterruptsIdleConnections(t *testing.T) {
	srv := NewServer(socketConfig(), nil, 5*time.Second)
	port, stop := startServer(t, srv, func(context.Context, []byte) {})

	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return srv.Limiter().ActiveCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	start := time.Now()
	assert.NoError(t, stop())
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 0, srv.Limiter().ActiveCount())
}

func TestClientTLSConfigBadCA(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o600))

	_, err := ClientTLSConfig(path, "localhost")
	require.Error(t, err)
	assert.Equal(t, errs.KindConfig, errs.KindOf(err))
}

// writeSelfSigned creates a certificate valid for 127.0.0.1 and localhost.
func writeSelfSigned(t *testing.T) (certFile, keyFile string) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{Organization: []string{"PSU Lab"}, CommonName: "localhost"},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)

	dir := t.TempDir()
	certFile = filepath.Join(dir, "server.crt")
	keyFile = filepath.Join(dir, "server.key")
	require.NoError(t, os.WriteFile(certFile,
		pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o644))
	require.NoError(t, os.WriteFile(keyFile,
		pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}), 0o600))
	return certFile, keyFile
}

// flakyListener fails its first Accept calls with a non-timeout error and
// then hands out the connections queued on conns.
type flakyListener struct {
	failures atomic.Int32
	conns    chan net.Conn
	closed   chan struct{}
	once     sync.Once
}

func newFlakyListener(failures int) *flakyListener {
	l := &flakyListener{conns: make(chan net.Conn, 1), closed: make(chan struct{})}
	l.failures.Store(int32(failures))
	return l
}

func (l *flakyListener) Accept() (net.Conn, error) {
	if l.failures.Add(-1) >= 0 {
		return nil, &net.OpError{Op: "accept", Net: "tcp", Err: os.NewSyscallError("accept", syscall.EMFILE)}
	}
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.closed:
		return nil, net.ErrClosed
	}
}

func (l *flakyListener) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

func (l *flakyListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)}
}

func TestServerKeepsAcceptingAfterAcceptError(t *testing.T) {
	ln := newFlakyListener(2)
	srv := NewServer(socketConfig(), nil, 2*time.Second)
	srv.listener = ln

	c := newCollector()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, c.handle) }()

	client, server := net.Pipe()
	ln.conns <- server
	_, err := client.Write([]byte("after-emfile\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"after-emfile"}, c.wait(t, 1))
	client.Close()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServerClosedListenerIsTransportError(t *testing.T) {
	ln := newFlakyListener(0)
	require.NoError(t, ln.Close())
	srv := NewServer(socketConfig(), nil, time.Second)
	srv.listener = ln

	err := srv.Serve(context.Background(), func(context.Context, []byte) {})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindTransport))
}

func TestServerPingReportsFullLimiter(t *testing.T) {
	cfg := socketConfig()
	cfg.MaxConnections = 1
	srv := NewServer(cfg, nil, time.Second)
	ctx := context.Background()

	assert.NoError(t, srv.Ping(ctx))
	require.NoError(t, srv.limiter.Acquire(ctx))
	assert.Error(t, srv.Ping(ctx))
	srv.limiter.Release()
	assert.NoError(t, srv.Ping(ctx))
}
