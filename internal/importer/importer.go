package importer

import (
	"context"
	"crypto/tls"
	"log/slog"

	"github.com/Koteika1156/PSU-DB-LAB/internal/config"
	"github.com/Koteika1156/PSU-DB-LAB/internal/envelope"
	"github.com/Koteika1156/PSU-DB-LAB/internal/errs"
	"github.com/Koteika1156/PSU-DB-LAB/internal/metrics"
	"github.com/Koteika1156/PSU-DB-LAB/internal/normalize"
	"github.com/Koteika1156/PSU-DB-LAB/internal/processor"
	"github.com/Koteika1156/PSU-DB-LAB/internal/transport"
	"github.com/Koteika1156/PSU-DB-LAB/internal/transport/jetstream"
	"github.com/Koteika1156/PSU-DB-LAB/internal/transport/rabbitmq"
	"github.com/Koteika1156/PSU-DB-LAB/internal/transport/socket"
)

// Importer receives messages on the configured transport and normalizes
// them into a store.
type Importer struct {
	receiver transport.Receiver
	pipeline *Pipeline
}

// New builds an importer for cfg writing to store. m may be nil.
func New(cfg *config.Config, store normalize.Store, m *metrics.Metrics) (*Importer, error) {
	codec, err := NewCodec(cfg)
	if err != nil {
		return nil, err
	}
	recv, err := NewReceiver(cfg)
	if err != nil {
		return nil, err
	}
	p := NewPipeline(processor.New(codec), normalize.NewEngine(store), m)
	return &Importer{receiver: recv, pipeline: p}, nil
}

// Run serves until ctx is cancelled or the transport fails to start.
func (i *Importer) Run(ctx context.Context) error {
	slog.Info("importer starting", "transport", i.receiver.Name())
	err := i.receiver.Serve(ctx, i.pipeline.Handler(i.receiver.Name()))
	slog.Info("importer stopped", "transport", i.receiver.Name())
	return err
}

// Health pings the receiver when it can report its own readiness.
// Receivers without a health probe are always healthy.
func (i *Importer) Health(ctx context.Context) error {
	if p, ok := i.receiver.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// NewReceiver returns the receiver selected by cfg.Mode.
func NewReceiver(cfg *config.Config) (transport.Receiver, error) {
	switch cfg.Mode {
	case config.ModeSocket:
		var tlsConfig *tls.Config
		if cfg.UseTLS {
			c, err := socket.ServerTLSConfig(cfg.TLS.CertFile, cfg.TLS.KeyFile)
			if err != nil {
				return nil, err
			}
			tlsConfig = c
		}
		return socket.NewServer(cfg.Socket, tlsConfig, cfg.ShutdownTimeout), nil
	case config.ModeRabbitMQ:
		return rabbitmq.NewConsumer(cfg.RabbitMQ), nil
	case config.ModeNATS:
		return jetstream.NewConsumer(cfg.NATS), nil
	default:
		return nil, errs.Configf("importer.NewReceiver", "unknown mode %q", cfg.Mode)
	}
}

// NewCodec returns the importer's envelope codec. The private key is loaded
// when custom crypto is enabled, or when the configured key file exists so
// that custom envelopes from a differently configured exporter still open.
func NewCodec(cfg *config.Config) (*envelope.Codec, error) {
	path := cfg.Crypto.ImporterPrivkeyPath
	if path == "" || (!cfg.UseCustomCrypto && !config.Exists(path)) {
		if cfg.UseCustomCrypto {
			return nil, errs.Configf("importer.NewCodec", "crypto.importer_privkey_path is required when use_custom_crypto is set")
		}
		return envelope.NewCodec(nil, nil), nil
	}
	key, err := envelope.LoadPrivateKey(path)
	if err != nil {
		return nil, err
	}
	return envelope.NewCodec(nil, key), nil
}
