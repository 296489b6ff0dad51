package config

import (
	"errors"
	"strings"

	widget "github.com/goliatone/go-formwidget"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. FORMWIDGET_LOGGING_LEVEL.
const EnvPrefix = "FORMWIDGET"

// Config holds all configuration for the formwidget tooling
type Config struct {
	Widget   WidgetConfig   `mapstructure:"widget"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	DevHost  DevHostConfig  `mapstructure:"devhost"`
	Activity ActivityConfig `mapstructure:"activity"`
}

// WidgetConfig holds the widget core configuration
type WidgetConfig struct {
	ID              string              `mapstructure:"id"`
	AccessLevel     string              `mapstructure:"access_level"`
	FallbackTableID string              `mapstructure:"fallback_table_id"`
	MappingMode     string              `mapstructure:"mapping_mode"`
	Columns         []widget.ColumnSlot `mapstructure:"columns"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DevHostConfig holds the SQLite development host configuration
type DevHostConfig struct {
	DSN       string `mapstructure:"dsn"`
	Table     string `mapstructure:"table"`
	WidgetKey string `mapstructure:"widget_key"`
	Mapping   string `mapstructure:"mapping"`
}

// ActivityConfig holds activity emission configuration
type ActivityConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Channel   string `mapstructure:"channel"`
	Namespace string `mapstructure:"namespace"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("widget.access_level", string(widget.AccessFull))
	v.SetDefault("widget.fallback_table_id", widget.DefaultFallbackTableID)
	v.SetDefault("widget.mapping_mode", string(widget.MappingAuto))
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("devhost.dsn", "file:formwidget.db")
	v.SetDefault("devhost.widget_key", "default")
	v.SetDefault("activity.enabled", false)
	v.SetDefault("activity.channel", "widget")
	v.SetDefault("activity.namespace", "formwidget")
}

// LoadConfig loads configuration from defaults, an optional YAML file and
// environment overrides. With an empty path it looks for config.yaml in the
// working directory and ./config, and tolerates its absence.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// WidgetOptions converts the widget section into widget.New options.
func (c *Config) WidgetOptions() ([]widget.Option, error) {
	mode, err := widget.ParseMappingMode(c.Widget.MappingMode)
	if err != nil {
		return nil, err
	}
	opts := []widget.Option{
		widget.WithAccessLevel(widget.AccessLevel(c.Widget.AccessLevel)),
		widget.WithFallbackTableID(c.Widget.FallbackTableID),
		widget.WithMappingMode(mode),
		widget.WithActivityChannel(c.Activity.Channel),
	}
	if c.Widget.ID != "" {
		opts = append(opts, widget.WithWidgetID(c.Widget.ID))
	}
	if len(c.Widget.Columns) > 0 {
		opts = append(opts, widget.WithColumnSlots(c.Widget.Columns))
	}
	return opts, nil
}
