package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tuannm99/geovec/internal/engine"
	"github.com/tuannm99/geovec/internal/metrics"
)

type GeovecConfig struct {
	AppName string `mapstructure:"app_name"`

	Storage struct {
		DataDir     string        `mapstructure:"data_dir"`
		Mmap        bool          `mapstructure:"mmap"`
		WindowSize  int           `mapstructure:"window_size"`
		Charset     string        `mapstructure:"charset"`
		IDField     string        `mapstructure:"id_field"`
		LockTimeout time.Duration `mapstructure:"lock_timeout"`
		AutoRecover bool          `mapstructure:"auto_recover"`
	} `mapstructure:"storage"`

	Server struct {
		Listen string `mapstructure:"listen"`
	} `mapstructure:"server"`

	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "geovec")
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("storage.mmap", true)
	v.SetDefault("storage.window_size", 64<<10)
	v.SetDefault("storage.charset", "ISO-8859-1")
	v.SetDefault("storage.id_field", "")
	v.SetDefault("storage.lock_timeout", "30s")
	v.SetDefault("storage.auto_recover", false)
	v.SetDefault("server.listen", "127.0.0.1:8866")
	v.SetDefault("log.level", "info")
}

// LoadConfig reads path (YAML) over the defaults. An empty path uses the
// defaults alone. GEOVEC_<SECTION>_<KEY> environment variables win over
// both, e.g. GEOVEC_STORAGE_DATA_DIR.
func LoadConfig(path string) (*GeovecConfig, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("GEOVEC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg GeovecConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Storage.DataDir == "" {
		return nil, errors.New("config: storage.data_dir is empty")
	}
	if _, err := cfg.LogLevel(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LogLevel parses log.level.
func (c *GeovecConfig) LogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("config: log.level: %w", err)
	}
	return l, nil
}

// EngineOptions maps the storage section onto engine options.
func (c *GeovecConfig) EngineOptions(m *metrics.Metrics) engine.Options {
	return engine.Options{
		UseMmap:     c.Storage.Mmap,
		WindowSize:  c.Storage.WindowSize,
		Charset:     c.Storage.Charset,
		IDField:     c.Storage.IDField,
		LockTimeout: c.Storage.LockTimeout,
		AutoRecover: c.Storage.AutoRecover,
		Metrics:     m,
	}
}
