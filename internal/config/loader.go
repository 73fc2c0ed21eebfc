package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/Koteika1156/PSU-DB-LAB/internal/errs"
	"gopkg.in/yaml.v3"
)

// Role names the process a configuration is validated for.
type Role int

const (
	RoleExporter Role = iota
	RoleImporter
	RoleAdmin // setup-db, report, reset: only the database is required
)

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and environment variables, then runs the role-independent
// checks. Callers run Validate for their role afterwards.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if err := walk(reflect.ValueOf(cfg).Elem(), applyDefault); err != nil {
		return nil, errs.Config("config.Load", fmt.Errorf("defaults: %w", err))
	}

	if path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, errs.Config("config.Load", err)
		}
	}

	if err := walk(reflect.ValueOf(cfg).Elem(), applyEnv); err != nil {
		return nil, errs.Config("config.Load", fmt.Errorf("environment: %w", err))
	}

	if err := cfg.validateCommon(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Exists reports whether a config file is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config file %s not found", path)
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

type fieldFunc func(field reflect.StructField, v reflect.Value) error

// walk recursively visits settable leaf fields.
func walk(v reflect.Value, fn fieldFunc) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := walk(fieldVal, fn); err != nil {
				return err
			}
			continue
		}

		if err := fn(field, fieldVal); err != nil {
			return err
		}
	}

	return nil
}

func applyDefault(field reflect.StructField, v reflect.Value) error {
	def, ok := field.Tag.Lookup("default")
	if !ok || def == "" {
		return nil
	}
	if err := setField(v, def); err != nil {
		return fmt.Errorf("invalid default for %s=%q: %w", field.Name, def, err)
	}
	return nil
}

func applyEnv(field reflect.StructField, v reflect.Value) error {
	envName := field.Tag.Get("env")
	if envName == "" {
		return nil
	}

	value := os.Getenv(envName)
	if value == "" {
		if alt := field.Tag.Get("envAlt"); alt != "" {
			value = os.Getenv(alt)
		}
	}
	if value == "" {
		return nil
	}

	if err := setField(v, value); err != nil {
		return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
	}
	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number: %w", err)
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				result = append(result, p)
			}
		}
		field.Set(reflect.ValueOf(result))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

func (c *Config) validateCommon() error {
	var problems []string

	switch c.Mode {
	case ModeSocket, ModeRabbitMQ, ModeNATS:
	default:
		problems = append(problems, fmt.Sprintf("mode (%q) must be one of: socket, rabbitmq, nats", c.Mode))
	}

	if c.Socket.Port <= 0 || c.Socket.Port > 65535 {
		problems = append(problems, fmt.Sprintf("socket.port (%d) must be 1-65535", c.Socket.Port))
	}
	if c.SendIntervalSec < 0 {
		problems = append(problems, "send_interval_sec must be non-negative")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		problems = append(problems, fmt.Sprintf("logging.level (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		problems = append(problems, fmt.Sprintf("logging.format (%q) must be one of: text, json", c.Logging.Format))
	}

	return problemsError(problems)
}

// Validate checks the settings the given role needs and reports all
// failures at once as a config error.
func (c *Config) Validate(role Role) error {
	if err := c.validateCommon(); err != nil {
		return err
	}

	var problems []string

	needsDB := role == RoleAdmin || (role == RoleImporter && c.Store == StorePostgres)
	if role == RoleImporter && c.Store != StorePostgres && c.Store != StoreMemory {
		problems = append(problems, fmt.Sprintf("store (%q) must be one of: postgres, memory", c.Store))
	}
	if needsDB {
		if c.Postgres.URL == "" && c.Postgres.DBName == "" {
			problems = append(problems, "postgres.url or postgres.dbname is required")
		}
		if c.Postgres.MaxConns <= 0 {
			problems = append(problems, "postgres.max_conns must be positive")
		}
		if c.Postgres.MinConns < 0 {
			problems = append(problems, "postgres.min_conns must be non-negative")
		}
		if c.Postgres.MaxConns < c.Postgres.MinConns {
			problems = append(problems, fmt.Sprintf("postgres.max_conns (%d) must be >= postgres.min_conns (%d)",
				c.Postgres.MaxConns, c.Postgres.MinConns))
		}
	}

	if role == RoleExporter || role == RoleImporter {
		switch c.Mode {
		case ModeRabbitMQ:
			if c.RabbitMQ.URL == "" {
				problems = append(problems, "rabbitmq.url is required in rabbitmq mode")
			}
			if c.RabbitMQ.Queue == "" {
				problems = append(problems, "rabbitmq.queue is required in rabbitmq mode")
			}
		case ModeNATS:
			if c.NATS.URL == "" || c.NATS.Stream == "" || c.NATS.Subject == "" {
				problems = append(problems, "nats.url, nats.stream and nats.subject are required in nats mode")
			}
		case ModeSocket:
			if c.Socket.ConnectTimeout <= 0 {
				problems = append(problems, "socket.connect_timeout must be positive")
			}
		}
	}

	switch role {
	case RoleExporter:
		if c.UseCustomCrypto && c.Crypto.ImporterPubkeyPath == "" {
			problems = append(problems, "crypto.importer_pubkey_path is required when use_custom_crypto is set")
		}
		if c.SQLite.Path == "" || c.SQLite.Table == "" {
			problems = append(problems, "sqlite.path and sqlite.table are required")
		}
	case RoleImporter:
		if c.Mode == ModeSocket && c.UseTLS && (c.TLS.CertFile == "" || c.TLS.KeyFile == "") {
			problems = append(problems, "tls.certfile and tls.keyfile are required when use_tls is set")
		}
		if c.Socket.MaxConnections <= 0 {
			problems = append(problems, "socket.max_connections must be positive")
		}
		if c.Socket.MaxMessageBytes <= 0 {
			problems = append(problems, "socket.max_message_bytes must be positive")
		}
		if c.ShutdownTimeout <= 0 {
			problems = append(problems, "shutdown_timeout must be positive")
		}
	}

	return problemsError(problems)
}

func problemsError(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return errs.Config("config.Validate",
		fmt.Errorf("validation failed:\n  - %s", strings.Join(problems, "\n  - ")))
}

// String returns a safe representation of the config for logging.
// Connection URLs are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Mode: %q, UseTLS: %v, UseCustomCrypto: %v, Store: %q, ",
		c.Mode, c.UseTLS, c.UseCustomCrypto, c.Store))
	b.WriteString(fmt.Sprintf("Socket: {Addr: %q, PerMessage: %v}, ", c.Socket.Addr(), c.Socket.PerMessage))
	b.WriteString(fmt.Sprintf("RabbitMQ: {URL: %q, Queue: %q}, ", maskURL(c.RabbitMQ.URL), c.RabbitMQ.Queue))
	b.WriteString(fmt.Sprintf("NATS: {URL: %q, Stream: %q}, ", maskURL(c.NATS.URL), c.NATS.Stream))
	b.WriteString(fmt.Sprintf("Postgres: {DSN: %q, MaxConns: %d}, ", maskURL(c.Postgres.DSN()), c.Postgres.MaxConns))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}
