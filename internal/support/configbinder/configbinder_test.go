package configbinder_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/bikeshare/internal/support/configbinder"
)

type sampleConfig struct {
	Type    string `yaml:"type"`
	Port    int    `yaml:"port"`
	Enabled bool   `yaml:"enabled"`
}

func TestBind_WeaklyTypedInput(t *testing.T) {
	var cfg sampleConfig
	err := configbinder.Bind(map[string]interface{}{
		"type":    "sqlite",
		"port":    "5432",
		"enabled": "true",
	}, &cfg)

	require.NoError(t, err)
	assert.Equal(t, sampleConfig{Type: "sqlite", Port: 5432, Enabled: true}, cfg)
}

func TestBind_InvalidValue(t *testing.T) {
	var cfg sampleConfig
	err := configbinder.Bind(map[string]interface{}{"port": "not-a-number"}, &cfg)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "sampleConfig")
}

func TestBindNamed(t *testing.T) {
	section := map[string]interface{}{
		"analytics": map[string]interface{}{"type": "mysql", "port": 3306},
	}

	var cfg sampleConfig
	require.NoError(t, configbinder.BindNamed(section, "analytics", &cfg))
	assert.Equal(t, "mysql", cfg.Type)

	err := configbinder.BindNamed(section, "missing", &cfg)
	assert.EqualError(t, err, "configuration 'missing' not found")
}
