package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gobuffalo/nulls"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:   "ok",
			config: Config{ServeAddr: ":8080"},
		},
		{
			name:    "no serve addr",
			config:  Config{},
			wantErr: true,
		},
		{
			name:    "serve addr without port",
			config:  Config{ServeAddr: "localhost"},
			wantErr: true,
		},
		{
			name: "port mapping without parsable port",
			config: Config{
				ServeAddr:   "localhost:http",
				PortMapping: PortMappingConfig{Enabled: true},
			},
			wantErr: true,
		},
		{
			name: "port mapping with override",
			config: Config{
				ServeAddr: "localhost:http",
				PortMapping: PortMappingConfig{
					Enabled:          true,
					InternalPort:     nulls.NewInt(7777),
					LeaseDurationSec: 3600,
				},
			},
		},
		{
			name: "port mapping with negative lease duration",
			config: Config{
				ServeAddr: ":8080",
				PortMapping: PortMappingConfig{
					Enabled:          true,
					LeaseDurationSec: -1,
				},
			},
			wantErr: true,
		},
		{
			name: "port mapping without lease duration",
			config: Config{
				ServeAddr:   ":8080",
				PortMapping: PortMappingConfig{Enabled: true},
			},
			wantErr: true,
		},
		{
			name: "bad match defaults",
			config: Config{
				ServeAddr: ":8080",
				Match:     MatchDefaultsConfig{MaxPlayers: nulls.NewInt(99)},
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfig(tt.config)
			if tt.wantErr {
				assert.Error(t, err, "validation should fail")
				return
			}
			assert.NoError(t, err, "validation should pass")
		})
	}
}

func TestServePort(t *testing.T) {
	t.Run("from serve addr", func(t *testing.T) {
		port, err := servePort(Config{ServeAddr: ":8080"})
		require.NoError(t, err)
		assert.Equal(t, 8080, port)
	})
	t.Run("override wins", func(t *testing.T) {
		port, err := servePort(Config{
			ServeAddr:   ":8080",
			PortMapping: PortMappingConfig{InternalPort: nulls.NewInt(7777)},
		})
		require.NoError(t, err)
		assert.Equal(t, 7777, port)
	})
}

func TestMatchDefaults(t *testing.T) {
	defaults := matchDefaults(Config{
		Match: MatchDefaultsConfig{
			MaxPlayers:        nulls.NewInt(6),
			TurnTimeoutSec:    nulls.NewInt(90),
			ReconnectGraceSec: nulls.NewInt(10),
			AllowSoloStart:    true,
		},
	})
	assert.Equal(t, 6, defaults.MaxPlayers)
	assert.Equal(t, 90*time.Second, defaults.TurnTimeout)
	assert.Equal(t, 10*time.Second, defaults.ReconnectGrace)
	assert.True(t, defaults.AllowSoloStart)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"serve_addr": ":9000",
		"mqtt_addr": "tcp://localhost:1883",
		"port_mapping": {"enabled": true},
		"match": {"allow_solo_start": true}
	}`), 0600))
	config, err := LoadConfigFromFile(path)
	require.NoError(t, err, "loading should not fail")
	assert.Equal(t, ":9000", config.ServeAddr)
	assert.True(t, config.MQTTAddr.Valid)
	assert.Equal(t, "tcp://localhost:1883", config.MQTTAddr.String)
	assert.True(t, config.PortMapping.Enabled)
	assert.Equal(t, int(defaultLeaseDuration/time.Second), config.PortMapping.LeaseDurationSec)
	assert.Equal(t, defaultLogMaxSize, config.Log.MaxSize)
}

func TestLoadConfigFromFile_Missing(t *testing.T) {
	_, err := LoadConfigFromFile(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err, "missing file should fail")
}
