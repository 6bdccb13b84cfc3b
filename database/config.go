/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/tomoncle/sqlkit/batch"
	"gopkg.in/yaml.v3"
)

// ConnectionConfig describes how to connect to a database and tune its pool.
type ConnectionConfig struct {
	Type string `json:"type" yaml:"type"` // postgres、mysql、sqlite
	// Driver selects the postgres driver: pq (default), pgx or pgdriver.
	Driver string `json:"driver" yaml:"driver"`
	// Dialect overrides the placeholder dialect; comma separated, and more
	// than one name falls back to "any".
	Dialect             string        `json:"dialect" yaml:"dialect"`
	DSN                 string        `json:"dsn" yaml:"dsn"`
	Host                string        `json:"host" yaml:"host"`
	Port                int           `json:"port" yaml:"port"`
	Username            string        `json:"username" yaml:"username"`
	Password            string        `json:"password" yaml:"password"`
	DBName              string        `json:"dbname" yaml:"dbname"`
	SSLMode             string        `json:"sslmode" yaml:"sslmode"`
	MaxIdleConns        int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	MaxOpenConns        int           `json:"max_open_conns" yaml:"max_open_conns"`
	ConnMaxLifetime     time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime     time.Duration `json:"conn_max_idle_time" yaml:"conn_max_idle_time"`
	ConnectTimeout      time.Duration `json:"connect_timeout" yaml:"connect_timeout"`
	ReadTimeout         time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout        time.Duration `json:"write_timeout" yaml:"write_timeout"`
	AcquireTimeout      time.Duration `json:"acquire_timeout" yaml:"acquire_timeout"`
	EnableReconnect     bool          `json:"enable_reconnect" yaml:"enable_reconnect"`
	ReconnectInterval   time.Duration `json:"reconnect_interval" yaml:"reconnect_interval"`
	MaxReconnectTries   int           `json:"max_reconnect_tries" yaml:"max_reconnect_tries"`
	HealthCheckInterval time.Duration `json:"health_check_interval" yaml:"health_check_interval"`
	EnableQueryLog      bool          `json:"enable_query_log" yaml:"enable_query_log"`
	SlowQueryTime       time.Duration `json:"slow_query_time" yaml:"slow_query_time"`
	Charset             string        `json:"charset" yaml:"charset"` // MySQL:utf8mb4
}

// BatchConfig sets the chunking policy used by repositories.
type BatchConfig struct {
	Size int `json:"size" yaml:"size"`
	// Concurrency only applies to batches that do not share a transaction.
	Concurrency int `json:"concurrency" yaml:"concurrency"`
}

// Config aggregates connection and batch settings.
type Config struct {
	ConnectionConfig ConnectionConfig `json:"connection_config" yaml:"connection"`
	BatchConfig      BatchConfig      `json:"batch_config" yaml:"batch"`
}

// DefaultConnectionConfig returns a connection config with sensible defaults.
func DefaultConnectionConfig() *ConnectionConfig {
	return &ConnectionConfig{
		Driver:              "pq",
		MaxIdleConns:        10,
		MaxOpenConns:        100,
		ConnMaxLifetime:     time.Hour,
		ConnMaxIdleTime:     time.Minute * 30,
		ConnectTimeout:      time.Second * 10,
		ReadTimeout:         time.Second * 30,
		WriteTimeout:        time.Second * 30,
		AcquireTimeout:      time.Second * 5,
		EnableReconnect:     true,
		ReconnectInterval:   time.Second * 5,
		MaxReconnectTries:   3,
		HealthCheckInterval: time.Minute * 5,
		EnableQueryLog:      false,
		SlowQueryTime:       time.Second * 2,
		Charset:             "utf8mb4",
	}
}

// DefaultConfig returns a Config with default connection and batch settings.
func DefaultConfig() *Config {
	return &Config{
		ConnectionConfig: *DefaultConnectionConfig(),
		BatchConfig:      BatchConfig{Size: batch.DefaultSize, Concurrency: 1},
	}
}

// LoadConfig reads a YAML file over the defaults and applies DB_* environment
// overrides.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig is LoadConfig for in-memory YAML.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	ApplyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFile loads .env style files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadEnvFile(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides configuration values from DB_* environment variables.
func ApplyEnv(cfg *Config) {
	c := &cfg.ConnectionConfig
	if v := os.Getenv("DB_TYPE"); v != "" {
		c.Type = v
	}
	if v := os.Getenv("DB_DRIVER"); v != "" {
		c.Driver = v
	}
	if v := os.Getenv("DB_DIALECT"); v != "" {
		c.Dialect = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		c.DSN = v
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		c.Host = v
	}
	envInt("DB_PORT", &c.Port)
	if v := os.Getenv("DB_USERNAME"); v != "" {
		c.Username = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		c.DBName = v
	}
	if v := os.Getenv("DB_SSLMODE"); v != "" {
		c.SSLMode = v
	}

	// Connection pool
	envInt("DB_MAX_IDLE_CONNS", &c.MaxIdleConns)
	envInt("DB_MAX_OPEN_CONNS", &c.MaxOpenConns)
	envSeconds("DB_CONN_MAX_LIFETIME", &c.ConnMaxLifetime)
	envSeconds("DB_ACQUIRE_TIMEOUT", &c.AcquireTimeout)

	// Reconnect
	if v := os.Getenv("DB_ENABLE_RECONNECT"); v != "" {
		c.EnableReconnect = v == "true"
	}
	envSeconds("DB_RECONNECT_INTERVAL", &c.ReconnectInterval)

	// Logging
	if v := os.Getenv("DB_ENABLE_QUERY_LOG"); v != "" {
		c.EnableQueryLog = v == "true"
	}

	// Batching
	envInt("DB_BATCH_SIZE", &cfg.BatchConfig.Size)
	envInt("DB_BATCH_CONCURRENCY", &cfg.BatchConfig.Concurrency)
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// envSeconds accepts either a Go duration ("1m30s") or a number of seconds.
func envSeconds(key string, dst *time.Duration) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(n) * time.Second
	}
}

var supportedTypes = []string{"mysql", "postgres", "sqlite"}

// Validate checks the settings Open relies on.
func (c *Config) Validate() error {
	conn := &c.ConnectionConfig
	switch normalizeType(conn.Type) {
	case "mysql", "sqlite":
	case "postgres":
		switch strings.ToLower(conn.Driver) {
		case "", "pq", "postgres", "pgx", "pgdriver":
		default:
			return fmt.Errorf("unsupported postgres driver: %s, supported drivers: [pq pgx pgdriver]", conn.Driver)
		}
	default:
		return fmt.Errorf("unsupported database type: %s, supported types: %v", conn.Type, supportedTypes)
	}
	if _, err := batch.New(c.BatchConfig.Size); err != nil {
		return fmt.Errorf("invalid batch size %d: %w", c.BatchConfig.Size, err)
	}
	if conn.AcquireTimeout < 0 {
		return fmt.Errorf("acquire timeout must not be negative")
	}
	return nil
}

// DialectNames returns the backends the placeholder dialect is derived from:
// the explicit override when set, otherwise the connection type.
func (c *ConnectionConfig) DialectNames() []string {
	if strings.TrimSpace(c.Dialect) == "" {
		return []string{c.Type}
	}
	var names []string
	for _, n := range strings.Split(c.Dialect, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return names
}

func normalizeType(t string) string {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "postgres", "postgresql":
		return "postgres"
	case "sqlite", "sqlite3":
		return "sqlite"
	case "mysql", "mariadb":
		return "mysql"
	}
	return strings.ToLower(t)
}
