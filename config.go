package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
	"i4.energy/across/cidmodem/notify"
)

// Config holds the application configuration
type Config struct {
	// BindAddress is the address the server listens on (e.g. "0.0.0.0:8080")
	BindAddress string `yaml:"bind_address"`
	// SerialPort is the path to the modem's serial port (e.g. "/dev/ttyACM0")
	SerialPort string `yaml:"serial_port"`
	// BaudRate is the baud rate for serial communication with the modem (e.g. 115200)
	BaudRate int `yaml:"baud_rate"`
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string `yaml:"log_level"`
	// RingTimeout is how long to wait for the next line while a call is ringing
	RingTimeout time.Duration `yaml:"ring_timeout"`
	// CIDRequired lists the caller ID fields (NMBR, NAME, DATE, TIME) that
	// must arrive before a call is reported
	CIDRequired []string `yaml:"cid_required"`
	// InitCommands overrides the AT commands sent when the modem is opened
	InitCommands []string `yaml:"init_commands"`
	// CallMaxWait is the default number of seconds to wait for a dial result
	CallMaxWait int `yaml:"call_max_wait"`
	// RedisAddr enables publishing caller ID events to Redis when set
	RedisAddr string `yaml:"redis_addr"`
	// RedisChannel is the pub/sub channel for caller ID events
	RedisChannel string `yaml:"redis_channel"`
}

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.BindAddress = "0.0.0.0:8080"
		c.SerialPort = "/dev/ttyACM0"
		c.BaudRate = 115200
		c.LogLevel = "info"
		c.RingTimeout = 10 * time.Second
		c.CIDRequired = []string{"NMBR"}
		c.CallMaxWait = 10
		c.RedisChannel = notify.DefaultChannel
		return nil
	}
}

// WithFile loads configuration from a YAML file. An empty path is a no-op.
// Keys missing from the file keep their current values.
func WithFile(path string) ConfigOption {
	return func(c *Config) error {
		if path == "" {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse config file %s: %w", path, err)
		}
		return nil
	}
}

// WithEnv loads configuration from environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		if addr := os.Getenv("BIND_ADDRESS"); addr != "" {
			c.BindAddress = addr
		}

		if serial := os.Getenv("SERIAL_PORT"); serial != "" {
			c.SerialPort = serial
		}

		if baud := os.Getenv("BAUD_RATE"); baud != "" {
			if b, err := strconv.Atoi(baud); err == nil {
				c.BaudRate = b
			}
		}

		if level := os.Getenv("LOG_LEVEL"); level != "" {
			c.LogLevel = level
		}

		if timeout := os.Getenv("RING_TIMEOUT"); timeout != "" {
			if d, err := time.ParseDuration(timeout); err == nil {
				c.RingTimeout = d
			}
		}

		if required := os.Getenv("CID_REQUIRED"); required != "" {
			c.CIDRequired = splitList(required)
		}

		if wait := os.Getenv("CALL_MAX_WAIT"); wait != "" {
			if w, err := strconv.Atoi(wait); err == nil {
				c.CallMaxWait = w
			}
		}

		if addr := os.Getenv("REDIS_ADDR"); addr != "" {
			c.RedisAddr = addr
		}

		if channel := os.Getenv("REDIS_CHANNEL"); channel != "" {
			c.RedisChannel = channel
		}

		return nil
	}
}

// WithFlags loads configuration from command-line flags that were set
// explicitly
func WithFlags(fSet *pflag.FlagSet) ConfigOption {
	return func(c *Config) error {
		fSet.Visit(func(f *pflag.Flag) {
			switch f.Name {
			case "bind-address":
				c.BindAddress = f.Value.String()
			case "serial-port":
				c.SerialPort = f.Value.String()
			case "baud-rate":
				if b, err := strconv.Atoi(f.Value.String()); err == nil {
					c.BaudRate = b
				}
			case "log-level":
				c.LogLevel = f.Value.String()
			case "ring-timeout":
				if d, err := time.ParseDuration(f.Value.String()); err == nil {
					c.RingTimeout = d
				}
			case "cid-required":
				if required, err := fSet.GetStringSlice(f.Name); err == nil {
					c.CIDRequired = required
				}
			case "max-wait":
				if w, err := strconv.Atoi(f.Value.String()); err == nil {
					c.CallMaxWait = w
				}
			case "redis-addr":
				c.RedisAddr = f.Value.String()
			case "redis-channel":
				c.RedisChannel = f.Value.String()
			}
		})
		return nil
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
