package clickhouse

import (
	"fmt"
	"net"
	"strconv"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/creasty/defaults"
)

// Config describes one ClickHouse endpoint. Zero fields take the defaults.
type Config struct {
	Host     string
	Port     int    `default:"9000"`
	Database string `default:"default"`
	User     string `default:"default"`
	Password string
	// HTTP switches from the native protocol to HTTP (usually port 8123).
	HTTP bool
	// Compression is none, lz4 or zstd.
	Compression string `default:"lz4"`

	MaxOpenConns    int           `default:"10"`
	MaxIdleConns    int           `default:"5"`
	ConnMaxLifetime time.Duration `default:"5m"`
	DialTimeout     time.Duration `default:"5s"`
	ReadTimeout     time.Duration `default:"10s"`

	// MaxExecutionTime is sent as the max_execution_time setting when set.
	MaxExecutionTime time.Duration
	AsyncInsert      bool
	WaitForAsync     bool

	ConnectAttempts int           `default:"1"`
	ConnectBackoff  time.Duration `default:"1s"`
}

func (c *Config) setDefaults() error {
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("clickhouse defaults: %w", err)
	}
	if c.Host == "" {
		return fmt.Errorf("clickhouse: host is required")
	}
	if c.ConnectAttempts < 1 {
		c.ConnectAttempts = 1
	}
	return nil
}

// options translates c into driver options.
func (c Config) options() (*ch.Options, error) {
	o := &ch.Options{
		Addr: []string{net.JoinHostPort(c.Host, strconv.Itoa(c.Port))},
		Auth: ch.Auth{
			Database: c.Database,
			Username: c.User,
			Password: c.Password,
		},
		Protocol:        ch.Native,
		DialTimeout:     c.DialTimeout,
		ReadTimeout:     c.ReadTimeout,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		Settings:        ch.Settings{},
	}
	if c.HTTP {
		o.Protocol = ch.HTTP
	}

	switch c.Compression {
	case "", "none":
	case "lz4":
		o.Compression = &ch.Compression{Method: ch.CompressionLZ4}
	case "zstd":
		o.Compression = &ch.Compression{Method: ch.CompressionZSTD}
	default:
		return nil, fmt.Errorf("clickhouse: unknown compression %q", c.Compression)
	}

	if c.MaxExecutionTime > 0 {
		o.Settings["max_execution_time"] = int(c.MaxExecutionTime.Seconds())
	}
	if c.AsyncInsert {
		o.Settings["async_insert"] = 1
		if c.WaitForAsync {
			o.Settings["wait_for_async_insert"] = 1
		}
	}
	return o, nil
}
