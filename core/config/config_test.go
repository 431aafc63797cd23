package config

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v2"
)

func TestBuiltinConfig(t *testing.T) {
	rawConfig := make(map[string]interface{})
	assert.Nil(t, yaml.Unmarshal(defaultConfigData, &rawConfig))

	knownFields := make(map[string]bool)
	rt := reflect.TypeOf(Configuration{})
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		assert.NotEmpty(t, jsonTag)
		jsonField := strings.Split(jsonTag, ",")[0]
		knownFields[jsonField] = true

		if _, ok := rawConfig[jsonField]; !ok {
			assert.False(t, true, "default config missing field: %q", jsonField)
		}
	}

	for k := range rawConfig {
		_, ok := knownFields[k]
		assert.True(t, ok, "default config contains invalid field: %q", k)
	}
}

func TestDefaultConfig(t *testing.T) {
	// Will panic() on load failure because it should never happen at runtime.
	cfg := defaultConfig()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 5*time.Minute, cfg.IdleTimeout())
	assert.Equal(t, 10*time.Second, cfg.HandshakeTimeout())
}

func TestValidate(t *testing.T) {
	cases := map[string]struct {
		mutate func(*Configuration)
		field  string
	}{
		"bad level":     {func(c *Configuration) { c.LogLevel = "loud" }, "log_level"},
		"bad color":     {func(c *Configuration) { c.Color = "sometimes" }, "color"},
		"bad duration":  {func(c *Configuration) { c.PluginIdleTimeout = "5 minutes" }, "plugin_idle_timeout"},
		"bad schedule":  {func(c *Configuration) { c.PluginReapSchedule = "every minute" }, "plugin_reap_schedule"},
		"huge cache":    {func(c *Configuration) { c.PathCacheSize = 10000 }, "path_cache_size"},
		"nameless plug": {func(c *Configuration) { c.Plugins = []Plugin{{Path: "/bin/p"}} }, "name"},
		"duplicate plugins": {func(c *Configuration) {
			c.Plugins = []Plugin{{Name: "a", Path: "/a"}, {Name: "a", Path: "/b"}}
		}, "plugins"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := defaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tc.field)
			}
		})
	}
}
