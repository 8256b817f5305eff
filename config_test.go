package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	config, err := LoadConfig(WithDefaults())
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", config.BindAddress)
	assert.Equal(t, "/dev/ttyACM0", config.SerialPort)
	assert.Equal(t, 115200, config.BaudRate)
	assert.Equal(t, "info", config.LogLevel)
	assert.Equal(t, 10*time.Second, config.RingTimeout)
	assert.Equal(t, []string{"NMBR"}, config.CIDRequired)
	assert.Equal(t, 10, config.CallMaxWait)
	assert.Equal(t, "cidmodem:calls", config.RedisChannel)
	assert.Empty(t, config.RedisAddr)
	assert.Nil(t, config.InitCommands)
}

func TestWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cidmodem.yaml")
	data := `
serial_port: /dev/ttyUSB3
ring_timeout: 4s
cid_required: [NMBR, NAME]
init_commands:
  - ATZ
  - AT+VCID=1
redis_addr: localhost:6379
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	config, err := LoadConfig(WithDefaults(), WithFile(path))
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB3", config.SerialPort)
	assert.Equal(t, 4*time.Second, config.RingTimeout)
	assert.Equal(t, []string{"NMBR", "NAME"}, config.CIDRequired)
	assert.Equal(t, []string{"ATZ", "AT+VCID=1"}, config.InitCommands)
	assert.Equal(t, "localhost:6379", config.RedisAddr)
	// untouched keys keep their defaults
	assert.Equal(t, 115200, config.BaudRate)
	assert.Equal(t, "0.0.0.0:8080", config.BindAddress)
}

func TestWithFileErrors(t *testing.T) {
	t.Run("empty path is ignored", func(t *testing.T) {
		_, err := LoadConfig(WithDefaults(), WithFile(""))
		assert.NoError(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(WithFile(filepath.Join(t.TempDir(), "nope.yaml")))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("ring_timeout: [1, 2"), 0o600))

		_, err := LoadConfig(WithFile(path))
		assert.ErrorContains(t, err, "parse config file")
	})
}

func TestWithEnv(t *testing.T) {
	t.Setenv("SERIAL_PORT", "/dev/ttyS1")
	t.Setenv("BAUD_RATE", "9600")
	t.Setenv("BIND_ADDRESS", "127.0.0.1:9000")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("RING_TIMEOUT", "2500ms")
	t.Setenv("CID_REQUIRED", "NMBR, DATE ,,TIME")
	t.Setenv("CALL_MAX_WAIT", "30")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_CHANNEL", "calls")

	config, err := LoadConfig(WithDefaults(), WithEnv())
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyS1", config.SerialPort)
	assert.Equal(t, 9600, config.BaudRate)
	assert.Equal(t, "127.0.0.1:9000", config.BindAddress)
	assert.Equal(t, "debug", config.LogLevel)
	assert.Equal(t, 2500*time.Millisecond, config.RingTimeout)
	assert.Equal(t, []string{"NMBR", "DATE", "TIME"}, config.CIDRequired)
	assert.Equal(t, 30, config.CallMaxWait)
	assert.Equal(t, "redis:6379", config.RedisAddr)
	assert.Equal(t, "calls", config.RedisChannel)
}

func TestWithEnvIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("BAUD_RATE", "fast")
	t.Setenv("RING_TIMEOUT", "soon")

	config, err := LoadConfig(WithDefaults(), WithEnv())
	require.NoError(t, err)

	assert.Equal(t, 115200, config.BaudRate)
	assert.Equal(t, 10*time.Second, config.RingTimeout)
}

func TestWithFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("serial-port", "/dev/ttyACM0", "")
	fs.Int("baud-rate", 115200, "")
	fs.Duration("ring-timeout", 10*time.Second, "")
	fs.StringSlice("cid-required", []string{"NMBR"}, "")
	fs.Int("max-wait", 10, "")
	fs.String("redis-addr", "", "")

	require.NoError(t, fs.Parse([]string{
		"--baud-rate=57600",
		"--ring-timeout=3s",
		"--cid-required=NAME,NMBR",
		"--max-wait=5",
	}))

	t.Setenv("SERIAL_PORT", "/dev/ttyS2")
	config, err := LoadConfig(WithDefaults(), WithEnv(), WithFlags(fs))
	require.NoError(t, err)

	// flags left at their defaults do not override the environment
	assert.Equal(t, "/dev/ttyS2", config.SerialPort)
	assert.Equal(t, 57600, config.BaudRate)
	assert.Equal(t, 3*time.Second, config.RingTimeout)
	assert.Equal(t, []string{"NAME", "NMBR"}, config.CIDRequired)
	assert.Equal(t, 5, config.CallMaxWait)
	assert.Empty(t, config.RedisAddr)
}

func TestRootCommandFlags(t *testing.T) {
	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--serial-port=/dev/ttyUSB9", "--redis-addr=r:6379"}))

	config, err := loadConfig(cmd)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB9", config.SerialPort)
	assert.Equal(t, "r:6379", config.RedisAddr)
}
