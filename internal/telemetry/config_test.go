package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"disabled skips checks", func(c *Config) { c.Endpoint = "" }, ""},
		{"enabled defaults", func(c *Config) { c.Enabled = true }, ""},
		{"missing endpoint", func(c *Config) { c.Enabled = true; c.Endpoint = "" }, "endpoint"},
		{"missing service", func(c *Config) { c.Enabled = true; c.ServiceName = "" }, "service_name"},
		{"bad protocol", func(c *Config) { c.Enabled = true; c.Protocol = "udp" }, "protocol"},
		{"insecure remote", func(c *Config) { c.Enabled = true; c.Endpoint = "otel.example.com:4317" }, "insecure"},
		{"secure remote", func(c *Config) {
			c.Enabled = true
			c.Endpoint = "otel.example.com:4317"
			c.Insecure = false
		}, ""},
		{"rate too high", func(c *Config) { c.Enabled = true; c.Sampling.Rate = 1.5 }, "sampling.rate"},
		{"zero export interval", func(c *Config) { c.Enabled = true; c.Metrics.ExportInterval = 0 }, "export_interval"},
		{"zero shutdown", func(c *Config) { c.Enabled = true; c.Shutdown.Timeout = 0 }, "shutdown.timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestConfig_IsLocalEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		want     bool
	}{
		{"localhost:4317", true},
		{"localhost", true},
		{"127.0.0.1:4317", true},
		{"127.0.1.1:4317", true},
		{"[::1]:4317", true},
		{"::1", true},
		{"http://localhost:4318", true},
		{"collector:4317", false},
		{"10.0.0.5:4317", false},
		{"https://otel.example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			cfg := &Config{Endpoint: tt.endpoint}
			assert.Equal(t, tt.want, cfg.isLocalEndpoint())
		})
	}
}

func TestStripScheme(t *testing.T) {
	assert.Equal(t, "otel:4318", stripScheme("https://otel:4318"))
	assert.Equal(t, "otel:4318", stripScheme("http://otel:4318"))
	assert.Equal(t, "otel:4318", stripScheme("otel:4318"))
}
