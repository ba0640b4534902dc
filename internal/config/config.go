package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"camclient/native/internal/domain"
	"camclient/native/internal/media"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. CAMCLIENT_URL.
const EnvPrefix = "CAMCLIENT"

// Config holds the application configuration.
type Config struct {
	URL      string `mapstructure:"url"`
	Key      string `mapstructure:"key"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	ModelID  string `mapstructure:"model-id"`

	ForceH264  bool     `mapstructure:"force-h264"`
	ICEServers []string `mapstructure:"ice-server"`

	Resolution string `mapstructure:"resolution"`
	FPS        int    `mapstructure:"fps"`
	Camera     string `mapstructure:"camera"`
	VideoFile  string `mapstructure:"video-file"`
	RTSPURL    string `mapstructure:"rtsp-url"`
	FFmpeg     string `mapstructure:"ffmpeg"`

	ReconnectDelay    time.Duration `mapstructure:"reconnect-delay"`
	ReconnectBackoff  string        `mapstructure:"reconnect-backoff"`
	ReconnectMaxDelay time.Duration `mapstructure:"reconnect-max-delay"`
	MaxAttempts       int           `mapstructure:"max-attempts"`

	Heartbeat     time.Duration `mapstructure:"heartbeat"`
	SignalTimeout time.Duration `mapstructure:"signal-timeout"`

	LogLevel string `mapstructure:"log"`
	LogFile  string `mapstructure:"log-file"`
	DataDir  string `mapstructure:"datadir"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		URL:               "http://localhost:9000/offer",
		Resolution:        "800x600",
		FPS:               30,
		FFmpeg:            "ffmpeg",
		ReconnectDelay:    10 * time.Second,
		ReconnectBackoff:  "fixed",
		ReconnectMaxDelay: 5 * time.Minute,
		Heartbeat:         time.Second,
		SignalTimeout:     10 * time.Second,
		LogLevel:          "info",
		DataDir:           ".",
	}
}

// Load reads configuration from a .env file (if present), CAMCLIENT_*
// environment variables, an optional camclient.{toml,yaml,json} in the data
// directory and flags. Flags set on the command line win over everything.
func Load(flags *pflag.FlagSet) (*Config, error) {
	// godotenv.Load does not overwrite existing env vars
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, err
		}
	}

	v.SetConfigName("camclient")
	v.AddConfigPath(v.GetString("datadir"))
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("url", d.URL)
	v.SetDefault("key", d.Key)
	v.SetDefault("username", d.Username)
	v.SetDefault("password", d.Password)
	v.SetDefault("model-id", d.ModelID)
	v.SetDefault("force-h264", d.ForceH264)
	v.SetDefault("ice-server", d.ICEServers)
	v.SetDefault("resolution", d.Resolution)
	v.SetDefault("fps", d.FPS)
	v.SetDefault("camera", d.Camera)
	v.SetDefault("video-file", d.VideoFile)
	v.SetDefault("rtsp-url", d.RTSPURL)
	v.SetDefault("ffmpeg", d.FFmpeg)
	v.SetDefault("reconnect-delay", d.ReconnectDelay)
	v.SetDefault("reconnect-backoff", d.ReconnectBackoff)
	v.SetDefault("reconnect-max-delay", d.ReconnectMaxDelay)
	v.SetDefault("max-attempts", d.MaxAttempts)
	v.SetDefault("heartbeat", d.Heartbeat)
	v.SetDefault("signal-timeout", d.SignalTimeout)
	v.SetDefault("log", d.LogLevel)
	v.SetDefault("log-file", d.LogFile)
	v.SetDefault("datadir", d.DataDir)
}

// Validate rejects settings the client cannot run with.
func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.New("url is required")
	}
	if c.FPS <= 0 {
		return fmt.Errorf("fps must be positive, got %d", c.FPS)
	}
	if c.ReconnectDelay < 0 {
		return fmt.Errorf("reconnect-delay must not be negative, got %s", c.ReconnectDelay)
	}
	if c.ReconnectMaxDelay < 0 {
		return fmt.Errorf("reconnect-max-delay must not be negative, got %s", c.ReconnectMaxDelay)
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("max-attempts must not be negative, got %d", c.MaxAttempts)
	}
	if c.VideoFile != "" && c.RTSPURL != "" {
		return errors.New("video-file and rtsp-url are mutually exclusive")
	}
	return nil
}

// Endpoint is the signaling URL with the routing key appended verbatim.
func (c *Config) Endpoint() string {
	return c.URL + c.Key
}

// Credentials returns basic-auth credentials when both parts are set.
func (c *Config) Credentials() *domain.Credentials {
	if c.Username == "" || c.Password == "" {
		return nil
	}
	return &domain.Credentials{Username: c.Username, Password: c.Password}
}

// Metadata returns the extra fields sent with every offer.
func (c *Config) Metadata() map[string]string {
	if c.ModelID == "" {
		return nil
	}
	return map[string]string{"modelId": c.ModelID}
}

// Media returns the media source settings. Relative video files resolve
// against the data directory.
func (c *Config) Media() media.Config {
	file := c.VideoFile
	if file != "" && !filepath.IsAbs(file) {
		file = filepath.Join(c.DataDir, file)
	}
	return media.Config{
		Camera:     c.Camera,
		VideoFile:  file,
		RTSPURL:    c.RTSPURL,
		FFmpeg:     c.FFmpeg,
		Resolution: c.Resolution,
		FPS:        c.FPS,
	}
}
