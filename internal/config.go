package internal

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/localnative/localnative/internal/nativemsg"
	"github.com/localnative/localnative/internal/rpc"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App   ApplicationConfig `yaml:"app"`
	Store StoreConfig       `yaml:"store"`
	Sync  SyncConfig        `yaml:"sync"`
	Host  HostConfig        `yaml:"host"`
	Inbox InboxConfig       `yaml:"inbox"`
	Auth  AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Sync.Validate(); err != nil {
		return err
	}
	if err := c.Host.Validate(); err != nil {
		return err
	}
	if err := c.Inbox.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration. Port 0 disables the HTTP API.
// The API listens on loopback unless Host says otherwise.
type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Enabled reports whether the HTTP API should be served.
func (c *HTTPConfig) Enabled() bool {
	return c.Port != 0
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Host, validation.When(c.Enabled(), validation.Required), is.Host),
		validation.Field(&c.Port, validation.Min(0), validation.Max(65535)),
	)
}

// StoreConfig locates the note database. An empty path resolves to
// $HOME/LocalNative/localnative.sqlite3.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// SyncConfig holds the peer sync transport settings.
type SyncConfig struct {
	Addr             string        `yaml:"addr"`
	Serve            bool          `yaml:"serve"`
	CallTimeout      time.Duration `yaml:"call_timeout"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout"`
	MaxChannelsPerIP int64         `yaml:"max_channels_per_ip"`
}

// Validate validates the sync configuration.
func (c *SyncConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Addr, validation.Required, is.DialString),
		validation.Field(&c.CallTimeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.ConnectTimeout, validation.Required, validation.Min(100*time.Millisecond)),
		validation.Field(&c.MaxChannelsPerIP, validation.Required, validation.Min(int64(1))),
	)
}

// Options converts the section into rpc options.
func (c *SyncConfig) Options(logger *slog.Logger) []rpc.Option {
	return []rpc.Option{
		rpc.WithLogger(logger),
		rpc.WithCallTimeout(c.CallTimeout),
		rpc.WithConnectTimeout(c.ConnectTimeout),
		rpc.WithMaxChannelsPerIP(c.MaxChannelsPerIP),
	}
}

// HostConfig holds native-messaging host settings.
type HostConfig struct {
	MaxFrameBytes uint32 `yaml:"max_frame_bytes"`
}

// Validate validates the host configuration.
func (c *HostConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxFrameBytes, validation.Required, validation.Min(uint32(1024)), validation.Max(uint32(nativemsg.MaxFrameBytes))),
	)
}

// InboxConfig holds the drop directory watched for store files to merge.
type InboxConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// Validate validates the inbox configuration.
func (c *InboxConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.When(c.Enabled, validation.Required)),
	)
}

// AuthConfig holds authentication configuration for the HTTP API.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for a loopback-only API.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Host: "127.0.0.1",
				Port: 3457,
			},
		},
		Sync: SyncConfig{
			Addr:             fmt.Sprintf("0.0.0.0:%d", rpc.DefaultPort),
			CallTimeout:      rpc.DefaultCallTimeout,
			ConnectTimeout:   rpc.DefaultConnectTimeout,
			MaxChannelsPerIP: rpc.DefaultMaxChannelsPerIP,
		},
		Host: HostConfig{
			MaxFrameBytes: nativemsg.MaxFrameBytes,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
