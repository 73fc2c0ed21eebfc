package exporter

import (
	"context"
	"crypto/tls"

	"github.com/Koteika1156/PSU-DB-LAB/internal/config"
	"github.com/Koteika1156/PSU-DB-LAB/internal/errs"
	"github.com/Koteika1156/PSU-DB-LAB/internal/transport"
	"github.com/Koteika1156/PSU-DB-LAB/internal/transport/jetstream"
	"github.com/Koteika1156/PSU-DB-LAB/internal/transport/rabbitmq"
	"github.com/Koteika1156/PSU-DB-LAB/internal/transport/socket"
)

// NewSender returns the sender selected by cfg.Mode. Broker backends
// connect immediately; the socket dialer connects on first send.
func NewSender(ctx context.Context, cfg *config.Config) (transport.Sender, error) {
	switch cfg.Mode {
	case config.ModeSocket:
		var tlsConfig *tls.Config
		if cfg.UseTLS {
			c, err := socket.ClientTLSConfig(cfg.TLS.CACert, cfg.Socket.Host)
			if err != nil {
				return nil, err
			}
			tlsConfig = c
		}
		return socket.NewDialer(cfg.Socket, tlsConfig), nil
	case config.ModeRabbitMQ:
		return rabbitmq.Dial(cfg.RabbitMQ)
	case config.ModeNATS:
		return jetstream.Dial(ctx, cfg.NATS)
	default:
		return nil, errs.Configf("exporter.NewSender", "unknown mode %q", cfg.Mode)
	}
}
