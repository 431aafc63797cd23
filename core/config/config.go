package config

import (
	_ "embed"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

var (
	//go:embed default/config.yaml
	defaultConfigData []byte
)

const (
	ConfigurationName = "config.yaml"
)

type Configuration struct {
	configFs afero.Fs

	Prompt      string `json:"prompt" validate:"required"`
	HistoryFile string `json:"history_file"`
	EventLog    string `json:"event_log" validate:"required"`
	LogLevel    string `json:"log_level" validate:"oneof=debug info warn error"`
	Color       string `json:"color" validate:"oneof=always auto never"`

	Plugins []Plugin `json:"plugins" validate:"unique=Name,dive"`

	PluginIdleTimeout      string `json:"plugin_idle_timeout" validate:"duration"`
	PluginReapSchedule     string `json:"plugin_reap_schedule" validate:"cron"`
	PluginHandshakeTimeout string `json:"plugin_handshake_timeout" validate:"duration"`

	PathCacheSize int `json:"path_cache_size" validate:"gte=1,lte=4096"`
}

// Plugin is an executable registered at startup.
type Plugin struct {
	Name string   `json:"name" validate:"required"`
	Path string   `json:"path" validate:"required"`
	Args []string `json:"args"`
}

// Validate the configuration for basic semantic errors.
func (c *Configuration) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		return name
	})
	validate.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		_, err := time.ParseDuration(fl.Field().String())
		return err == nil
	})
	validate.RegisterValidation("cron", func(fl validator.FieldLevel) bool {
		_, err := cron.ParseStandard(fl.Field().String())
		return err == nil
	})

	return validate.Struct(c)
}

func (c *Configuration) fs() afero.Fs {
	return c.configFs
}

// IdleTimeout is how long a plugin may sit unused before it is stopped.
func (c *Configuration) IdleTimeout() time.Duration {
	d, _ := time.ParseDuration(c.PluginIdleTimeout)
	return d
}

// HandshakeTimeout bounds plugin startup.
func (c *Configuration) HandshakeTimeout() time.Duration {
	d, _ := time.ParseDuration(c.PluginHandshakeTimeout)
	return d
}

// Level is the diagnostic log level.
func (c *Configuration) Level() log.Level {
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.WarnLevel
	}
	return lvl
}

// OpenEventLog opens the session event log in an append only state.
func (c *Configuration) OpenEventLog() (afero.File, error) {
	return c.fs().OpenFile(c.EventLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
}

func (c *Configuration) ReadEventLog() (afero.File, error) {
	return c.fs().OpenFile(c.EventLog, os.O_RDONLY, 0600)
}

// HistoryPath is the readline history file on the host filesystem, or ""
// when history isn't persisted.
func (c *Configuration) HistoryPath() string {
	if c.HistoryFile == "" {
		return ""
	}
	if real, ok := c.fs().(interface{ RealPath(string) (string, error) }); ok {
		if p, err := real.RealPath(c.HistoryFile); err == nil {
			return p
		}
	}
	return c.HistoryFile
}

func defaultConfig() *Configuration {
	var out Configuration
	if err := yaml.UnmarshalStrict(defaultConfigData, &out); err != nil {
		panic(err)
	}
	return &out
}
