package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  BrokerConfig
		wantErr bool
	}{
		{
			name: "Valid mqtt config",
			config: BrokerConfig{
				Protocol:       ProtocolMQTT,
				URLs:           []string{"tcp://localhost:1883"},
				ClientID:       "portal-1",
				RetryDelay:     "1s",
				ConnectTimeout: "10s",
			},
			wantErr: false,
		},
		{
			name: "Valid nats config with queue",
			config: BrokerConfig{
				Protocol:       ProtocolNATS,
				URLs:           []string{"nats://localhost:4222"},
				RetryDelay:     "1s",
				ConnectTimeout: "10s",
				Queue:          &QueueConfig{Name: "portal", Subject: "scene.>"},
			},
			wantErr: false,
		},
		{
			name: "Unknown protocol",
			config: BrokerConfig{
				Protocol:       Protocol("amqp"),
				URLs:           []string{"amqp://localhost"},
				RetryDelay:     "1s",
				ConnectTimeout: "10s",
			},
			wantErr: true,
		},
		{
			name: "Missing url",
			config: BrokerConfig{
				Protocol:       ProtocolMQTT,
				ClientID:       "portal-1",
				RetryDelay:     "1s",
				ConnectTimeout: "10s",
			},
			wantErr: true,
		},
		{
			name: "Missing mqtt client id",
			config: BrokerConfig{
				Protocol:       ProtocolMQTT,
				URLs:           []string{"tcp://localhost:1883"},
				RetryDelay:     "1s",
				ConnectTimeout: "10s",
			},
			wantErr: true,
		},
		{
			name: "Invalid TLS config",
			config: BrokerConfig{
				Protocol:       ProtocolMQTT,
				URLs:           []string{"ssl://localhost:8883"},
				ClientID:       "portal-1",
				RetryDelay:     "1s",
				ConnectTimeout: "10s",
				TLS:            &TLSConfig{Enable: true},
			},
			wantErr: true,
		},
		{
			name: "Queue on mqtt",
			config: BrokerConfig{
				Protocol:       ProtocolMQTT,
				URLs:           []string{"tcp://localhost:1883"},
				ClientID:       "portal-1",
				RetryDelay:     "1s",
				ConnectTimeout: "10s",
				Queue:          &QueueConfig{Name: "q", Subject: "a/#"},
			},
			wantErr: true,
		},
		{
			name: "Bad retry delay",
			config: BrokerConfig{
				Protocol:       ProtocolNATS,
				URLs:           []string{"nats://localhost:4222"},
				RetryDelay:     "soon",
				ConnectTimeout: "10s",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateBrokerConfig(&tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateBrokerConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name     string
		content  string
		wantErr  bool
		validate func(*testing.T, *Config)
	}{
		{
			name: "Minimal yaml gets defaults",
			content: `
broker:
  urls: ["tcp://localhost:1883"]
  clientId: portal-1
`,
			validate: func(t *testing.T, c *Config) {
				assert.Equal(t, ProtocolMQTT, c.Broker.Protocol)
				assert.Equal(t, time.Second, c.Broker.RetryDelayDuration())
				assert.Equal(t, 10*time.Second, c.Broker.ConnectTimeoutDuration())
				assert.Equal(t, SharePolicyFilter, c.Registry.SharePolicy)
				assert.Equal(t, "info", c.Logging.Level)
				assert.Equal(t, "json", c.Logging.Encoding)
				assert.Equal(t, "/metrics", c.Metrics.Path)
				assert.Equal(t, ":8080", c.API.Address)
			},
		},
		{
			name:    "JSON is accepted",
			content: `{"broker": {"protocol": "NATS", "urls": ["nats://localhost:4222"]}, "registry": {"sharePolicy": "handle"}}`,
			validate: func(t *testing.T, c *Config) {
				assert.Equal(t, ProtocolNATS, c.Broker.Protocol)
				assert.Equal(t, SharePolicyHandle, c.Registry.SharePolicy)
			},
		},
		{
			name: "Invalid log level",
			content: `
broker:
  urls: ["nats://localhost:4222"]
  protocol: nats
logging:
  level: loud
`,
			wantErr: true,
		},
		{
			name: "Invalid share policy",
			content: `
broker:
  urls: ["nats://localhost:4222"]
  protocol: nats
registry:
  sharePolicy: sometimes
`,
			wantErr: true,
		},
		{
			name:    "Malformed file",
			content: "broker: [",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(tmpDir, "config.yaml")
			require.NoError(t, os.WriteFile(configPath, []byte(tt.content), 0644))

			cfg, err := Load(configPath)
			if (err != nil) != tt.wantErr {
				t.Errorf("Load() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if err == nil && tt.validate != nil {
				tt.validate(t, cfg)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestApplyOverrides(t *testing.T) {
	cfg, err := Parse([]byte(`broker: {urls: ["tcp://a:1883"], clientId: c}`))
	require.NoError(t, err)

	cfg.ApplyOverrides("tcp://b:1883", "other", ":9090", "routes", 2*time.Second)

	assert.Equal(t, []string{"tcp://b:1883"}, cfg.Broker.URLs)
	assert.Equal(t, "other", cfg.Broker.ClientID)
	assert.True(t, cfg.API.Enabled)
	assert.Equal(t, ":9090", cfg.API.Address)
	assert.Equal(t, "routes", cfg.Routes.Directory)
	assert.Equal(t, 2*time.Second, cfg.Broker.RetryDelayDuration())
}
