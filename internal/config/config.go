// Package config provides centralized configuration management for the
// exporter and importer. A Config is built once at startup from struct
// defaults, an optional YAML file and environment variables (in that order of
// precedence, last wins), validated, and then passed by value or pointer into
// every component constructor. Nothing reads configuration globally.
package config

import (
	"net"
	"net/url"
	"strconv"
	"time"
)

// Transport modes.
const (
	ModeSocket   = "socket"
	ModeRabbitMQ = "rabbitmq"
	ModeNATS     = "nats"
)

// Store kinds for the importer.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds all application configuration.
// Keys mirror the YAML layout used by the exporter and importer config files.
type Config struct {
	// Mode selects the transport: socket, rabbitmq or nats (default: socket)
	Mode string `yaml:"mode" env:"MEDSYNC_MODE" default:"socket"`

	// UseTLS wraps socket connections in TLS and tags plain envelopes as "tls"
	UseTLS bool `yaml:"use_tls" env:"MEDSYNC_USE_TLS" default:"false"`

	// UseCustomCrypto enables hybrid payload encryption (scheme "custom")
	UseCustomCrypto bool `yaml:"use_custom_crypto" env:"MEDSYNC_USE_CUSTOM_CRYPTO" default:"false"`

	// SendIntervalSec is the fixed pause between exported messages (default: 0.1)
	SendIntervalSec float64 `yaml:"send_interval_sec" env:"MEDSYNC_SEND_INTERVAL_SEC" default:"0.1"`

	// ShutdownTimeout bounds how long the importer waits for in-flight work (default: 30s)
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"MEDSYNC_SHUTDOWN_TIMEOUT" default:"30s"`

	// Store selects the normalized store backend: postgres or memory (default: postgres)
	Store string `yaml:"store" env:"MEDSYNC_STORE" default:"postgres"`

	Socket   SocketConfig   `yaml:"socket"`
	TLS      TLSConfig      `yaml:"tls"`
	Crypto   CryptoConfig   `yaml:"crypto"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	NATS     NATSConfig     `yaml:"nats"`
	Postgres DatabaseConfig `yaml:"postgres"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	HTTP     HTTPConfig     `yaml:"http"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SocketConfig holds stream socket transport settings.
type SocketConfig struct {
	// Host is the address to dial (exporter) or bind (importer) (default: 127.0.0.1)
	Host string `yaml:"host" env:"SOCKET_HOST" default:"127.0.0.1"`

	// Port is the TCP port (default: 9000)
	Port int `yaml:"port" env:"SOCKET_PORT" default:"9000"`

	// ConnectTimeout bounds each outbound connection attempt (default: 10s)
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"SOCKET_CONNECT_TIMEOUT" default:"10s"`

	// HandshakeTimeout bounds the server side TLS handshake (default: 10s)
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" env:"SOCKET_HANDSHAKE_TIMEOUT" default:"10s"`

	// PerMessage opens a fresh connection for every message (default: true)
	PerMessage bool `yaml:"per_message" env:"SOCKET_PER_MESSAGE" default:"true"`

	// MaxConnections caps concurrently served inbound connections (default: 64)
	MaxConnections int `yaml:"max_connections" env:"SOCKET_MAX_CONNECTIONS" default:"64"`

	// MaxMessageBytes is the largest accepted line (default: 4 MiB)
	MaxMessageBytes int `yaml:"max_message_bytes" env:"SOCKET_MAX_MESSAGE_BYTES" default:"4194304"`
}

// TLSConfig holds certificate paths for the socket transport.
type TLSConfig struct {
	// CertFile and KeyFile are the importer's server certificate
	CertFile string `yaml:"certfile" env:"TLS_CERTFILE"`
	KeyFile  string `yaml:"keyfile" env:"TLS_KEYFILE"`

	// CACert is the trust anchor the exporter verifies the server against
	CACert string `yaml:"ca_cert" env:"TLS_CA_CERT"`
}

// CryptoConfig holds RSA key paths for hybrid encryption.
type CryptoConfig struct {
	ImporterPubkeyPath  string `yaml:"importer_pubkey_path" env:"CRYPTO_IMPORTER_PUBKEY_PATH"`
	ImporterPrivkeyPath string `yaml:"importer_privkey_path" env:"CRYPTO_IMPORTER_PRIVKEY_PATH"`
}

// RabbitMQConfig holds durable queue settings.
type RabbitMQConfig struct {
	// URL is the AMQP connection string, required in rabbitmq mode
	URL string `yaml:"url" env:"RABBITMQ_URL"`

	// Queue is the durable queue name (default: psu_lab_queue)
	Queue string `yaml:"queue" env:"RABBITMQ_QUEUE" default:"psu_lab_queue"`
}

// NATSConfig holds JetStream settings for the nats mode.
type NATSConfig struct {
	URL      string `yaml:"url" env:"NATS_URL" default:"nats://127.0.0.1:4222"`
	Stream   string `yaml:"stream" env:"NATS_STREAM" default:"PSU_LAB"`
	Subject  string `yaml:"subject" env:"NATS_SUBJECT" default:"psu.lab.records"`
	Consumer string `yaml:"consumer" env:"NATS_CONSUMER" default:"importer"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string. When empty it is built from
	// the discrete fields below.
	URL string `yaml:"url" env:"DATABASE_URL" envAlt:"DB_URL"`

	Host     string `yaml:"host" env:"PGHOST" default:"127.0.0.1"`
	Port     int    `yaml:"port" env:"PGPORT" default:"5432"`
	DBName   string `yaml:"dbname" env:"PGDATABASE" default:"psu"`
	User     string `yaml:"user" env:"PGUSER" default:"postgres"`
	Password string `yaml:"password" env:"PGPASSWORD"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `yaml:"max_conns" env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `yaml:"min_conns" env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// SQLiteConfig points at the denormalized source database.
type SQLiteConfig struct {
	Path  string `yaml:"path" env:"SQLITE_PATH" default:"hospital_denormalized.db"`
	Table string `yaml:"table" env:"SQLITE_TABLE" default:"hospital_records"`
}

// HTTPConfig holds the importer's ops endpoint settings.
type HTTPConfig struct {
	// Addr is the listen address for /healthz and /metrics; empty disables it
	Addr string `yaml:"addr" env:"HTTP_ADDR" default:"127.0.0.1:9100"`

	// TrustedProxies is a comma-separated list of proxy CIDRs whose
	// X-Real-IP / X-Forwarded-For headers are believed
	TrustedProxies []string `yaml:"trusted_proxies" env:"HTTP_TRUSTED_PROXIES"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `yaml:"level" env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `yaml:"format" env:"LOG_FORMAT" default:"text"`
}

// Addr returns the socket address in host:port format.
func (c SocketConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// SendInterval returns the inter-message pacing delay.
func (c *Config) SendInterval() time.Duration {
	return time.Duration(c.SendIntervalSec * float64(time.Second))
}

// DSN returns the connection string, building one from the discrete fields
// when URL is not set.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.DBName,
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.User, c.Password)
	} else if c.User != "" {
		u.User = url.User(c.User)
	}
	return u.String()
}

// DatabaseName returns the target database name for logging.
func (c DatabaseConfig) DatabaseName() string {
	if c.URL == "" {
		return c.DBName
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return ""
	}
	if len(u.Path) > 1 {
		return u.Path[1:]
	}
	return ""
}

func maskURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "[MASKED]"
	}
	return u.Redacted()
}
